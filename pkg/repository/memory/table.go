package memory

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

// clone deep-copies v through its JSON form. Every value handed out by the
// memory backend is a clone so callers cannot mutate stored rows.
func clone[T any](v *T) *T {
	if v == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		panic("memory: failed to marshal row: " + err.Error())
	}
	out := new(T)
	if err := json.Unmarshal(raw, out); err != nil {
		panic("memory: failed to unmarshal row: " + err.Error())
	}
	return out
}

// table stores rows of one entity per organization with auto-increment ids
type table[T any] struct {
	name  string
	mu    sync.RWMutex
	rows  map[string]map[int64]*T
	next  map[string]int64
	getID func(*T) int64
	setID func(*T, int64)
}

func newTable[T any](name string, getID func(*T) int64, setID func(*T, int64)) *table[T] {
	return &table[T]{
		name:  name,
		rows:  make(map[string]map[int64]*T),
		next:  make(map[string]int64),
		getID: getID,
		setID: setID,
	}
}

func (t *table[T]) ensureOrg(org string) {
	if _, ok := t.rows[org]; !ok {
		t.rows[org] = make(map[int64]*T)
	}
	if _, ok := t.next[org]; !ok {
		t.next[org] = 1
	}
}

func (t *table[T]) notFound(org string, id any) error {
	return goerr.Wrap(model.ErrNotFound, t.name+" not found", goerr.V(model.OrgKey, org), goerr.V("id", id))
}

// insertLocked stores a clone of v with a new id. Caller holds the lock.
func (t *table[T]) insertLocked(org string, v *T) *T {
	t.ensureOrg(org)
	row := clone(v)
	t.setID(row, t.next[org])
	t.next[org]++
	t.rows[org][t.getID(row)] = row
	return clone(row)
}

func (t *table[T]) insert(org string, v *T) *T {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insertLocked(org, v)
}

func (t *table[T]) update(org string, v *T) (*T, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.updateLocked(org, v)
}

func (t *table[T]) updateLocked(org string, v *T) (*T, error) {
	id := t.getID(v)
	if _, ok := t.rows[org][id]; !ok {
		return nil, t.notFound(org, id)
	}
	t.rows[org][id] = clone(v)
	return clone(v), nil
}

func (t *table[T]) get(org string, id int64) (*T, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	row, ok := t.rows[org][id]
	if !ok {
		return nil, t.notFound(org, id)
	}
	return clone(row), nil
}

func (t *table[T]) delete(org string, id int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.rows[org][id]; !ok {
		return t.notFound(org, id)
	}
	delete(t.rows[org], id)
	return nil
}

// find returns clones of rows matching fn ordered by id
func (t *table[T]) find(org string, fn func(*T) bool) []*T {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.findLocked(org, fn)
}

func (t *table[T]) findLocked(org string, fn func(*T) bool) []*T {
	out := []*T{}
	for _, row := range t.rows[org] {
		if fn == nil || fn(row) {
			out = append(out, clone(row))
		}
	}
	sort.Slice(out, func(i, j int) bool { return t.getID(out[i]) < t.getID(out[j]) })
	return out
}

// first returns the lowest-id row matching fn, or nil
func (t *table[T]) first(org string, fn func(*T) bool) *T {
	rows := t.find(org, fn)
	if len(rows) == 0 {
		return nil
	}
	return rows[0]
}

func (t *table[T]) deleteWhere(org string, fn func(*T) bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, row := range t.rows[org] {
		if fn(row) {
			delete(t.rows[org], id)
		}
	}
}
