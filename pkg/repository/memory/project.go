package memory

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type projectRepository struct {
	t *table[model.Project]
}

func newProjectRepository() *projectRepository {
	return &projectRepository{
		t: newTable("project",
			func(p *model.Project) int64 { return p.ID },
			func(p *model.Project, id int64) { p.ID = id }),
	}
}

func (r *projectRepository) Create(ctx context.Context, org string, p *model.Project) (*model.Project, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	for _, existing := range r.t.findLocked(org, nil) {
		if strings.EqualFold(existing.Name, p.Name) {
			return nil, goerr.Wrap(model.NewStateConflict("name", "project already exists"),
				"duplicated project", goerr.V(model.OrgKey, org), goerr.V("name", p.Name))
		}
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	return r.t.insertLocked(org, p), nil
}

func (r *projectRepository) Update(ctx context.Context, org string, p *model.Project) (*model.Project, error) {
	return r.t.update(org, p)
}

func (r *projectRepository) Get(ctx context.Context, org string, id int64) (*model.Project, error) {
	return r.t.get(org, id)
}

func (r *projectRepository) GetByName(ctx context.Context, org string, name string) (*model.Project, error) {
	p := r.t.first(org, func(p *model.Project) bool { return strings.EqualFold(p.Name, name) })
	if p == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "project not found", goerr.V(model.OrgKey, org), goerr.V("name", name))
	}
	return p, nil
}

func (r *projectRepository) List(ctx context.Context, org string) ([]*model.Project, error) {
	return r.t.find(org, nil), nil
}

type individualRepository struct {
	t *table[model.Individual]
}

func newIndividualRepository() *individualRepository {
	return &individualRepository{
		t: newTable("individual",
			func(i *model.Individual) int64 { return i.ID },
			func(i *model.Individual, id int64) { i.ID = id }),
	}
}

func (r *individualRepository) Upsert(ctx context.Context, org string, i *model.Individual) (*model.Individual, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	now := time.Now().UTC()
	for _, existing := range r.t.findLocked(org, func(v *model.Individual) bool {
		return v.ProjectID == i.ProjectID && strings.EqualFold(v.Email, i.Email)
	}) {
		merged := mergeIndividual(existing, i)
		merged.UpdatedAt = now
		return r.t.updateLocked(org, merged)
	}

	row := *i
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	return r.t.insertLocked(org, &row), nil
}

// mergeIndividual overlays the non-empty fields of in onto existing
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
	return r.t.get(org, id)
}

func (r *individualRepository) GetByEmail(ctx context.Context, org string, projectID int64, email string) (*model.Individual, error) {
	return r.t.first(org, func(v *model.Individual) bool {
		return v.ProjectID == projectID && strings.EqualFold(v.Email, email)
	}), nil
}

func (r *individualRepository) List(ctx context.Context, org string, projectID int64) ([]*model.Individual, error) {
	return r.t.find(org, func(v *model.Individual) bool { return v.ProjectID == projectID }), nil
}
