package memory

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
}](name string) *catalogRepository[E, PT] {
	return &catalogRepository[E, PT]{
		t: newTable(name,
			func(v *E) int64 { return PT(v).GetID() },
			func(v *E, id int64) { PT(v).SetID(id) },
		),
	}
}

func (r *catalogRepository[E, PT]) Create(ctx context.Context, org string, item PT) (PT, error) {
	return PT(r.t.insert(org, (*E)(item))), nil
}

func (r *catalogRepository[E, PT]) Update(ctx context.Context, org string, item PT) (PT, error) {
	v, err := r.t.update(org, (*E)(item))
	if err != nil {
		return nil, err
	}
	return PT(v), nil
}

func (r *catalogRepository[E, PT]) Get(ctx context.Context, org string, id int64) (PT, error) {
	v, err := r.t.get(org, id)
	if err != nil {
		return nil, err
	}
	return PT(v), nil
}

func (r *catalogRepository[E, PT]) List(ctx context.Context, org string, projectID int64) ([]PT, error) {
	rows := r.t.find(org, func(v *E) bool { return PT(v).GetProjectID() == projectID })
	out := make([]PT, 0, len(rows))
	for _, row := range rows {
		out = append(out, PT(row))
	}
	return out, nil
}

func (r *catalogRepository[E, PT]) Delete(ctx context.Context, org string, id int64) error {
	return r.t.delete(org, id)
}
