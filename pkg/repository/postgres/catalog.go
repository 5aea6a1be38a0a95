package postgres

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

// catalogRepository stores every catalog kind in the shared catalog table,
// discriminated by kind.
type catalogRepository[E any, PT interface {
	*E
	model.CatalogItem
}] struct {
	kind string
	t    *table[E, int64]
}

func newCatalogRepository[E any, PT interface {
	*E
	model.CatalogItem
}](db *Postgres, kind string) *catalogRepository[E, PT] {
	return &catalogRepository[E, PT]{
		kind: kind,
		t: &table[E, int64]{
			db:      db,
			name:    "catalog",
			label:   kind,
			autoID:  true,
			columns: []string{"kind", "project_id"},
			values:  func(v *E) []any { return []any{kind, PT(v).GetProjectID()} },
			getID:   func(v *E) int64 { return PT(v).GetID() },
			setID:   func(v *E, id int64) { PT(v).SetID(id) },
		},
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
	// ids are shared across kinds; refuse to overwrite a row of another kind
	if _, err := r.Get(ctx, org, item.GetID()); err != nil {
		return nil, err
	}
	v, err := r.t.update(ctx, org, (*E)(item))
	if err != nil {
		return nil, err
	}
	return PT(v), nil
}

func (r *catalogRepository[E, PT]) Get(ctx context.Context, org string, id int64) (PT, error) {
	v, err := r.t.first(ctx, org, "id = $1 AND kind = $2", "", id, r.kind)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, goerr.Wrap(model.ErrNotFound, r.kind+" not found", goerr.V(model.OrgKey, org), goerr.V("id", id))
	}
	return PT(v), nil
}

func (r *catalogRepository[E, PT]) List(ctx context.Context, org string, projectID int64) ([]PT, error) {
	rows, err := r.t.find(ctx, org, "kind = $1 AND project_id = $2", "id", r.kind, projectID)
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
	if _, err := r.Get(ctx, org, id); err != nil {
		return err
	}
	return r.t.delete(ctx, org, id)
}
