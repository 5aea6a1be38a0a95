package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type eventRepository struct {
	mu     sync.RWMutex
	events map[string]map[string]*model.Event
}

func newEventRepository() *eventRepository {
	return &eventRepository{events: make(map[string]map[string]*model.Event)}
}

func (r *eventRepository) Create(ctx context.Context, org string, e *model.Event) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row := clone(e)
	if row.ID == "" {
		row.ID = model.NewEventID()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.StartedAt.IsZero() {
		row.StartedAt = row.CreatedAt
	}
	if row.EndedAt.IsZero() {
		row.EndedAt = row.StartedAt
	}
	if _, ok := r.events[org]; !ok {
		r.events[org] = make(map[string]*model.Event)
	}
	r.events[org][row.ID] = row
	return clone(row), nil
}

func (r *eventRepository) Update(ctx context.Context, org string, e *model.Event) (*model.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[org][e.ID]; !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "event not found", goerr.V(model.OrgKey, org), goerr.V("id", e.ID))
	}
	r.events[org][e.ID] = clone(e)
	return clone(e), nil
}

func (r *eventRepository) Get(ctx context.Context, org string, id string) (*model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[org][id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "event not found", goerr.V(model.OrgKey, org), goerr.V("id", id))
	}
	return clone(e), nil
}

func (r *eventRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*model.Event{}
	for _, e := range r.events[org] {
		if e.Subject == subject {
			out = append(out, clone(e))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

func (r *eventRepository) FindLatestByKind(ctx context.Context, org string, subject model.SubjectRef, kind string, since time.Time) (*model.Event, error) {
	events, err := r.List(ctx, org, subject)
	if err != nil {
		return nil, err
	}
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		if e.Kind() == kind && !e.StartedAt.Before(since) {
			return e, nil
		}
	}
	return nil, nil
}

func (r *eventRepository) Delete(ctx context.Context, org string, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[org][id]; !ok {
		return goerr.Wrap(model.ErrNotFound, "event not found", goerr.V(model.OrgKey, org), goerr.V("id", id))
	}
	delete(r.events[org], id)
	return nil
}
