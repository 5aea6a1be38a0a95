package firestore

import (
	"context"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type eventRepository struct {
	s *store
}

func newEventRepository(s *store) *eventRepository {
	return &eventRepository{s: s}
}

func (r *eventRepository) doc(org, id string) *firestore.DocumentRef {
	return r.s.collection(org, "events").Doc(id)
}

func (r *eventRepository) notFound(org, id string) error {
	return goerr.Wrap(model.ErrNotFound, "event not found", goerr.V(model.OrgKey, org), goerr.V("id", id))
}

func (r *eventRepository) put(ctx context.Context, org string, e *model.Event) error {
	rec, err := encode(e, record{Subject: e.Subject.String(), SortAt: e.StartedAt})
	if err != nil {
		return err
	}
	if _, err := r.doc(org, e.ID).Set(ctx, rec); err != nil {
		return goerr.Wrap(err, "failed to write event", goerr.V(model.OrgKey, org), goerr.V("id", e.ID))
	}
	return nil
}

func (r *eventRepository) Create(ctx context.Context, org string, e *model.Event) (*model.Event, error) {
	row := *e
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
	if err := r.put(ctx, org, &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *eventRepository) Update(ctx context.Context, org string, e *model.Event) (*model.Event, error) {
	if _, err := r.Get(ctx, org, e.ID); err != nil {
		return nil, err
	}
	if err := r.put(ctx, org, e); err != nil {
		return nil, err
	}
	row := *e
	return &row, nil
}

func (r *eventRepository) Get(ctx context.Context, org string, id string) (*model.Event, error) {
	doc, err := r.doc(org, id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, r.notFound(org, id)
		}
		return nil, goerr.Wrap(err, "failed to get event", goerr.V(model.OrgKey, org), goerr.V("id", id))
	}
	return decode[model.Event](doc)
}

func (r *eventRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Event, error) {
	docs, err := r.s.collection(org, "events").
		Where("subject", "==", subject.String()).
		OrderBy("sort_at", firestore.Asc).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list events", goerr.V(model.OrgKey, org), goerr.V(model.SubjectKey, subject.String()))
	}
	out, err := decodeAll[model.Event](docs)
	if err != nil {
		return nil, err
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
	if _, err := r.Get(ctx, org, id); err != nil {
		return err
	}
	if _, err := r.doc(org, id).Delete(ctx); err != nil {
		return goerr.Wrap(err, "failed to delete event", goerr.V(model.OrgKey, org), goerr.V("id", id))
	}
	return nil
}
