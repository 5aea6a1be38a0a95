package firestore

import (
	"context"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type catalogRepository[E any, PT interface {
	*E
	model.CatalogItem
}] struct {
	t *table[E]
}

func newCatalogRepository[E any, PT interface {
	*E
	model.CatalogItem
}](s *store, name, label string) *catalogRepository[E, PT] {
	return &catalogRepository[E, PT]{
		t: newTable(s, name, label,
			func(v *E) int64 { return PT(v).GetID() },
			func(v *E, id int64) { PT(v).SetID(id) },
			func(v *E) record { return record{ProjectID: PT(v).GetProjectID()} },
		),
	}
}

func (r *catalogRepository[E, PT]) Create(ctx context.Context, org string, item PT) (PT, error) {
	v, err := r.t.insert(ctx, org, (*E)(item))
	if err != nil {
		return nil, err
	}
	return PT(v), nil
}

func (r *catalogRepository[E, PT]) Update(ctx context.Context, org string, item PT) (PT, error) {
	v, err := r.t.update(ctx, org, (*E)(item))
	if err != nil {
		return nil, err
	}
	return PT(v), nil
}

func (r *catalogRepository[E, PT]) Get(ctx context.Context, org string, id int64) (PT, error) {
	v, err := r.t.get(ctx, org, id)
	if err != nil {
		return nil, err
	}
	return PT(v), nil
}

func (r *catalogRepository[E, PT]) List(ctx context.Context, org string, projectID int64) ([]PT, error) {
	rows, err := r.t.find(ctx, org, byProject(projectID), nil)
	if err != nil {
		return nil, err
	}
	out := make([]PT, 0, len(rows))
	for _, row := range rows {
		out = append(out, PT(row))
	}
	return out, nil
}

func (r *catalogRepository[E, PT]) Delete(ctx context.Context, org string, id int64) error {
	return r.t.delete(ctx, org, id)
}
