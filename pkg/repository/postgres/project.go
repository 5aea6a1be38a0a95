package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type projectRepository struct {
	t *table[model.Project, int64]
}

func newProjectRepository(db *Postgres) *projectRepository {
	return &projectRepository{t: &table[model.Project, int64]{
		db:      db,
		name:    "project",
		label:   "project",
		autoID:  true,
		columns: []string{"name"},
		values:  func(p *model.Project) []any { return []any{p.Name} },
		getID:   func(p *model.Project) int64 { return p.ID },
		setID:   func(p *model.Project, id int64) { p.ID = id },
	}}
}

func (r *projectRepository) Create(ctx context.Context, org string, p *model.Project) (*model.Project, error) {
	row := *p
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	created, err := r.t.insert(ctx, org, &row)
	if isUniqueViolation(err) {
		return nil, goerr.Wrap(model.NewStateConflict("name", "project already exists"),
			"duplicated project", goerr.V(model.OrgKey, org), goerr.V("name", p.Name))
	}
	return created, err
}

func (r *projectRepository) Update(ctx context.Context, org string, p *model.Project) (*model.Project, error) {
	return r.t.update(ctx, org, p)
}

func (r *projectRepository) Get(ctx context.Context, org string, id int64) (*model.Project, error) {
	return r.t.get(ctx, org, id)
}

func (r *projectRepository) GetByName(ctx context.Context, org string, name string) (*model.Project, error) {
	p, err := r.t.first(ctx, org, "lower(name) = $1", "", strings.ToLower(name))
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "project not found", goerr.V(model.OrgKey, org), goerr.V("name", name))
	}
	return p, nil
}

func (r *projectRepository) List(ctx context.Context, org string) ([]*model.Project, error) {
	return r.t.find(ctx, org, "", "id")
}

type individualRepository struct {
	t *table[model.Individual, int64]
}

func newIndividualRepository(db *Postgres) *individualRepository {
	return &individualRepository{t: &table[model.Individual, int64]{
		db:      db,
		name:    "individual",
		label:   "individual",
		autoID:  true,
		columns: []string{"project_id", "email"},
		values:  func(i *model.Individual) []any { return []any{i.ProjectID, i.Email} },
		getID:   func(i *model.Individual) int64 { return i.ID },
		setID:   func(i *model.Individual, id int64) { i.ID = id },
	}}
}

func (r *individualRepository) Upsert(ctx context.Context, org string, i *model.Individual) (*model.Individual, error) {
	var result *model.Individual
	err := r.t.db.WithTx(ctx, org, func(ctx context.Context) error {
		now := time.Now().UTC()
		existing, err := r.t.first(ctx, org, "project_id = $1 AND lower(email) = $2", "id FOR UPDATE",
			i.ProjectID, strings.ToLower(i.Email))
		if err != nil {
			return err
		}
		if existing != nil {
			merged := mergeIndividual(existing, i)
			merged.UpdatedAt = now
			result, err = r.t.update(ctx, org, merged)
			return err
		}

		row := *i
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		result, err = r.t.insert(ctx, org, &row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func mergeIndividual(existing, in *model.Individual) *model.Individual {
	out := *existing
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&out.Name, in.Name)
	set(&out.Title, in.Title)
	set(&out.Weblink, in.Weblink)
	set(&out.Team, in.Team)
	set(&out.Location, in.Location)
	set(&out.ChatUserID, in.ChatUserID)
	return &out
}

func (r *individualRepository) Get(ctx context.Context, org string, id int64) (*model.Individual, error) {
	return r.t.get(ctx, org, id)
}

func (r *individualRepository) GetByEmail(ctx context.Context, org string, projectID int64, email string) (*model.Individual, error) {
	return r.t.first(ctx, org, "project_id = $1 AND lower(email) = $2", "", projectID, strings.ToLower(email))
}

func (r *individualRepository) List(ctx context.Context, org string, projectID int64) ([]*model.Individual, error) {
	return r.t.find(ctx, org, "project_id = $1", "id", projectID)
}
