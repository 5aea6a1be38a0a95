package firestore

import (
	"context"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type projectRepository struct {
	t *table[model.Project]
}

func newProjectRepository(s *store) *projectRepository {
	return &projectRepository{
		t: newTable(s, "projects", "project",
			func(p *model.Project) int64 { return p.ID },
			func(p *model.Project, id int64) { p.ID = id },
			nil),
	}
}

func (r *projectRepository) Create(ctx context.Context, org string, p *model.Project) (*model.Project, error) {
	var out *model.Project
	err := r.t.tx(ctx, func(tx *firestore.Transaction) error {
		existing, err := r.t.findTx(tx, org, nil, func(v *model.Project) bool { return strings.EqualFold(v.Name, p.Name) })
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return goerr.Wrap(model.NewStateConflict("name", "project already exists"),
				"duplicated project", goerr.V(model.OrgKey, org), goerr.V("name", p.Name))
		}
		row := *p
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		out, err = r.t.insertTx(tx, org, &row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *projectRepository) Update(ctx context.Context, org string, p *model.Project) (*model.Project, error) {
	return r.t.update(ctx, org, p)
}

func (r *projectRepository) Get(ctx context.Context, org string, id int64) (*model.Project, error) {
	return r.t.get(ctx, org, id)
}

func (r *projectRepository) GetByName(ctx context.Context, org string, name string) (*model.Project, error) {
	p, err := r.t.first(ctx, org, nil, func(p *model.Project) bool { return strings.EqualFold(p.Name, name) })
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "project not found", goerr.V(model.OrgKey, org), goerr.V("name", name))
	}
	return p, nil
}

func (r *projectRepository) List(ctx context.Context, org string) ([]*model.Project, error) {
	return r.t.find(ctx, org, nil, nil)
}

type individualRepository struct {
	t *table[model.Individual]
}

func newIndividualRepository(s *store) *individualRepository {
	return &individualRepository{
		t: newTable(s, "individuals", "individual",
			func(i *model.Individual) int64 { return i.ID },
			func(i *model.Individual, id int64) { i.ID = id },
			func(i *model.Individual) record { return record{ProjectID: i.ProjectID} }),
	}
}

func (r *individualRepository) Upsert(ctx context.Context, org string, i *model.Individual) (*model.Individual, error) {
	var out *model.Individual
	err := r.t.tx(ctx, func(tx *firestore.Transaction) error {
		rows, err := r.t.findTx(tx, org, byProject(i.ProjectID), func(v *model.Individual) bool {
			return strings.EqualFold(v.Email, i.Email)
		})
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		if len(rows) > 0 {
			out = mergeIndividual(rows[0], i)
			out.UpdatedAt = now
			return r.t.putTx(tx, org, out)
		}
		row := *i
		if row.CreatedAt.IsZero() {
			row.CreatedAt = now
		}
		row.UpdatedAt = now
		out, err = r.t.insertTx(tx, org, &row)
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert individual", goerr.V(model.OrgKey, org), goerr.V(model.EmailKey, i.Email))
	}
	return out, nil
}

func mergeIndividual(existing, in *model.Individual) *model.Individual {
	out := *existing
	for dst, v := range map[*string]string{
		&out.Name:       in.Name,
		&out.Title:      in.Title,
		&out.Weblink:    in.Weblink,
		&out.Team:       in.Team,
		&out.Location:   in.Location,
		&out.ChatUserID: in.ChatUserID,
	} {
		if v != "" {
			*dst = v
		}
	}
	return &out
}

func (r *individualRepository) Get(ctx context.Context, org string, id int64) (*model.Individual, error) {
	return r.t.get(ctx, org, id)
}

func (r *individualRepository) GetByEmail(ctx context.Context, org string, projectID int64, email string) (*model.Individual, error) {
	return r.t.first(ctx, org, byProject(projectID), func(v *model.Individual) bool {
		return strings.EqualFold(v.Email, email)
	})
}

func (r *individualRepository) List(ctx context.Context, org string, projectID int64) ([]*model.Individual, error) {
	return r.t.find(ctx, org, byProject(projectID), nil)
}
