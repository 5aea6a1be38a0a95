package firestore

import (
	"context"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

// record is the stored form of every row. The row itself is kept as JSON in
// Data; the remaining fields exist for queries and ordering.
type record struct {
	ID        int64     `firestore:"id"`
	ProjectID int64     `firestore:"project_id"`
	Subject   string    `firestore:"subject"`
	SignalID  int64     `firestore:"signal_id"`
	Key       string    `firestore:"key"`
	SortAt    time.Time `firestore:"sort_at"`
	Data      string    `firestore:"data"`
}

// coreScope names the collections holding organizations and users
const coreScope = "dispatch_core"

type store struct {
	client *firestore.Client
	prefix string
}

func (s *store) collection(org, name string) *firestore.CollectionRef {
	return s.client.Collection(collectionName(s.prefix, org, name))
}

func (s *store) counter(org, key string) *firestore.DocumentRef {
	return s.collection(org, "counters").Doc(docKey(key))
}

func collectionName(prefix, org, name string) string {
	return prefix + org + "_" + name
}

// docKey turns an arbitrary key into a valid document id
func docKey(key string) string {
	return "k_" + url.PathEscape(key)
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isAlreadyExists(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

func encode[T any](v *T, rec record) (record, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return rec, goerr.Wrap(err, "failed to encode row")
	}
	rec.Data = string(raw)
	return rec, nil
}

func decode[T any](doc *firestore.DocumentSnapshot) (*T, error) {
	var rec record
	if err := doc.DataTo(&rec); err != nil {
		return nil, goerr.Wrap(err, "failed to read record", goerr.V("doc", doc.Ref.Path))
	}
	out := new(T)
	if err := json.Unmarshal([]byte(rec.Data), out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode row", goerr.V("doc", doc.Ref.Path))
	}
	return out, nil
}

func decodeAll[T any](docs []*firestore.DocumentSnapshot) ([]*T, error) {
	out := make([]*T, 0, len(docs))
	for _, doc := range docs {
		v, err := decode[T](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// incrementTx bumps the counter document and returns the new value, starting
// at 1. Must run before any write of the transaction.
func incrementTx(tx *firestore.Transaction, ref *firestore.DocumentRef) (int64, error) {
	next := int64(1)
	doc, err := tx.Get(ref)
	switch {
	case err == nil:
		v, err := doc.DataAt("value")
		if err != nil {
			return 0, goerr.Wrap(err, "failed to get counter value", goerr.V("doc", ref.Path))
		}
		val, ok := v.(int64)
		if !ok {
			return 0, goerr.New("counter value is not of type int64", goerr.V("value", v))
		}
		next = val + 1
	case !isNotFound(err):
		return 0, goerr.Wrap(err, "failed to get counter", goerr.V("doc", ref.Path))
	}
	if err := tx.Set(ref, map[string]any{"value": next}); err != nil {
		return 0, goerr.Wrap(err, "failed to set counter", goerr.V("doc", ref.Path))
	}
	return next, nil
}

// where is an equality filter on a record field
type where struct {
	path  string
	value any
}

func byProject(id int64) []where {
	return []where{{path: "project_id", value: id}}
}

func bySubject(ref model.SubjectRef) []where {
	return []where{{path: "subject", value: ref.String()}}
}

func byKey(key string) []where {
	return []where{{path: "key", value: key}}
}

// table stores rows of one entity per organization with counter-backed ids
type table[T any] struct {
	s     *store
	name  string
	label string
	getID func(*T) int64
	setID func(*T, int64)
	index func(*T) record
}

func newTable[T any](s *store, name, label string, getID func(*T) int64, setID func(*T, int64), index func(*T) record) *table[T] {
	return &table[T]{s: s, name: name, label: label, getID: getID, setID: setID, index: index}
}

func (t *table[T]) col(org string) *firestore.CollectionRef {
	return t.s.collection(org, t.name)
}

func (t *table[T]) doc(org string, id int64) *firestore.DocumentRef {
	return t.col(org).Doc(strconv.FormatInt(id, 10))
}

func (t *table[T]) notFound(org string, id any) error {
	return goerr.Wrap(model.ErrNotFound, t.label+" not found", goerr.V(model.OrgKey, org), goerr.V("id", id))
}

func (t *table[T]) record(v *T) (record, error) {
	rec := record{}
	if t.index != nil {
		rec = t.index(v)
	}
	rec.ID = t.getID(v)
	return encode(v, rec)
}

func (t *table[T]) query(org string, filters []where) firestore.Query {
	q := t.col(org).Query
	for _, f := range filters {
		q = q.Where(f.path, "==", f.value)
	}
	return q.OrderBy("id", firestore.Asc)
}

func (t *table[T]) tx(ctx context.Context, fn func(tx *firestore.Transaction) error) error {
	return t.s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		return fn(tx)
	})
}

// insertTx assigns the next id to a copy of v and writes it. Every read of
// the transaction must happen before.
func (t *table[T]) insertTx(tx *firestore.Transaction, org string, v *T) (*T, error) {
	id, err := incrementTx(tx, t.s.counter(org, "id:"+t.name))
	if err != nil {
		return nil, err
	}
	row := *v
	t.setID(&row, id)
	if err := t.putTx(tx, org, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (t *table[T]) putTx(tx *firestore.Transaction, org string, v *T) error {
	rec, err := t.record(v)
	if err != nil {
		return err
	}
	if err := tx.Set(t.doc(org, rec.ID), rec); err != nil {
		return goerr.Wrap(err, "failed to write "+t.label, goerr.V(model.OrgKey, org), goerr.V("id", rec.ID))
	}
	return nil
}

func (t *table[T]) insert(ctx context.Context, org string, v *T) (*T, error) {
	var out *T
	err := t.tx(ctx, func(tx *firestore.Transaction) error {
		var err error
		out, err = t.insertTx(tx, org, v)
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create "+t.label, goerr.V(model.OrgKey, org))
	}
	return out, nil
}

func (t *table[T]) update(ctx context.Context, org string, v *T) (*T, error) {
	id := t.getID(v)
	err := t.tx(ctx, func(tx *firestore.Transaction) error {
		if _, err := tx.Get(t.doc(org, id)); err != nil {
			if isNotFound(err) {
				return t.notFound(org, id)
			}
			return goerr.Wrap(err, "failed to get "+t.label, goerr.V(model.OrgKey, org), goerr.V("id", id))
		}
		return t.putTx(tx, org, v)
	})
	if err != nil {
		return nil, err
	}
	row := *v
	return &row, nil
}

func (t *table[T]) get(ctx context.Context, org string, id int64) (*T, error) {
	doc, err := t.doc(org, id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, t.notFound(org, id)
		}
		return nil, goerr.Wrap(err, "failed to get "+t.label, goerr.V(model.OrgKey, org), goerr.V("id", id))
	}
	return decode[T](doc)
}

func (t *table[T]) delete(ctx context.Context, org string, id int64) error {
	return t.tx(ctx, func(tx *firestore.Transaction) error {
		ref := t.doc(org, id)
		if _, err := tx.Get(ref); err != nil {
			if isNotFound(err) {
				return t.notFound(org, id)
			}
			return goerr.Wrap(err, "failed to get "+t.label, goerr.V(model.OrgKey, org), goerr.V("id", id))
		}
		return tx.Delete(ref)
	})
}

// find returns rows matching the filters and fn ordered by id
func (t *table[T]) find(ctx context.Context, org string, filters []where, fn func(*T) bool) ([]*T, error) {
	docs, err := t.query(org, filters).Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list "+t.label, goerr.V(model.OrgKey, org))
	}
	return t.filter(docs, fn)
}

func (t *table[T]) findTx(tx *firestore.Transaction, org string, filters []where, fn func(*T) bool) ([]*T, error) {
	docs, err := tx.Documents(t.query(org, filters)).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list "+t.label, goerr.V(model.OrgKey, org))
	}
	return t.filter(docs, fn)
}

func (t *table[T]) filter(docs []*firestore.DocumentSnapshot, fn func(*T) bool) ([]*T, error) {
	rows, err := decodeAll[T](docs)
	if err != nil {
		return nil, err
	}
	out := []*T{}
	for _, row := range rows {
		if fn == nil || fn(row) {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return t.getID(out[i]) < t.getID(out[j]) })
	return out, nil
}

// first returns the lowest-id row matching, or nil
func (t *table[T]) first(ctx context.Context, org string, filters []where, fn func(*T) bool) (*T, error) {
	rows, err := t.find(ctx, org, filters, fn)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (t *table[T]) deleteWhere(ctx context.Context, org string, filters []where, fn func(*T) bool) error {
	return t.tx(ctx, func(tx *firestore.Transaction) error {
		rows, err := t.findTx(tx, org, filters, fn)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := tx.Delete(t.doc(org, t.getID(row))); err != nil {
				return goerr.Wrap(err, "failed to delete "+t.label, goerr.V(model.OrgKey, org))
			}
		}
		return nil
	})
}
