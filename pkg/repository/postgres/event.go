package postgres

import (
	"context"
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type eventRepository struct {
	t *table[model.Event, string]
}

func newEventRepository(db *Postgres) *eventRepository {
	return &eventRepository{t: &table[model.Event, string]{
		db:      db,
		name:    "event",
		label:   "event",
		columns: []string{"subject_kind", "subject_id", "kind", "started_at", "created_at"},
		values: func(e *model.Event) []any {
			return []any{string(e.Subject.Kind), e.Subject.ID, e.Kind(), e.StartedAt, e.CreatedAt}
		},
		getID: func(e *model.Event) string { return e.ID },
		setID: func(e *model.Event, id string) { e.ID = id },
	}}
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
	return r.t.insert(ctx, org, &row)
}

func (r *eventRepository) Update(ctx context.Context, org string, e *model.Event) (*model.Event, error) {
	return r.t.update(ctx, org, e)
}

func (r *eventRepository) Get(ctx context.Context, org string, id string) (*model.Event, error) {
	return r.t.get(ctx, org, id)
}

func (r *eventRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Event, error) {
	return r.t.find(ctx, org, "subject_kind = $1 AND subject_id = $2", "started_at, created_at",
		string(subject.Kind), subject.ID)
}

func (r *eventRepository) FindLatestByKind(ctx context.Context, org string, subject model.SubjectRef, kind string, since time.Time) (*model.Event, error) {
	return r.t.first(ctx, org, "subject_kind = $1 AND subject_id = $2 AND kind = $3 AND started_at >= $4",
		"started_at DESC, created_at DESC", string(subject.Kind), subject.ID, kind, since)
}

func (r *eventRepository) Delete(ctx context.Context, org string, id string) error {
	return r.t.delete(ctx, org, id)
}
