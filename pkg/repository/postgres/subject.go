package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

// searchClause accumulates the filters shared by incident and case listing.
// A "?" in a condition is replaced by the next positional parameter.
type searchClause struct {
	where []string
	args  []any
}

func (c *searchClause) add(cond string, args ...any) {
	for _, a := range args {
		c.args = append(c.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(c.args)), 1)
	}
	c.where = append(c.where, cond)
}

func (c *searchClause) build(text string, limit int) (string, string, []any) {
	order := "reported_at DESC, id DESC"
	if strings.TrimSpace(text) != "" {
		c.args = append(c.args, text)
		n := len(c.args)
		c.where = append(c.where, fmt.Sprintf("search_vector @@ plainto_tsquery('simple', $%d)", n))
		order = fmt.Sprintf("ts_rank(search_vector, plainto_tsquery('simple', $%d)) DESC, %s", n, order)
	}
	if limit > 0 {
		order += fmt.Sprintf(" LIMIT %d", limit)
	}
	return strings.Join(c.where, " AND "), order, c.args
}

type incidentRepository struct {
	t *table[model.Incident, int64]
}

func newIncidentRepository(db *Postgres) *incidentRepository {
	return &incidentRepository{t: &table[model.Incident, int64]{
		db:      db,
		name:    "incident",
		label:   "incident",
		autoID:  true,
		columns: []string{"project_id", "name", "title", "description", "status", "reported_at"},
		values: func(i *model.Incident) []any {
			return []any{i.ProjectID, i.Name, i.Title, i.Description, string(i.Status), i.ReportedAt}
		},
		getID: func(i *model.Incident) int64 { return i.ID },
		setID: func(i *model.Incident, id int64) { i.ID = id },
	}}
}

func (r *incidentRepository) Create(ctx context.Context, org string, i *model.Incident) (*model.Incident, error) {
	now := time.Now().UTC()
	row := *i
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.ReportedAt.IsZero() {
		row.ReportedAt = now
	}
	row.UpdatedAt = now
	return r.t.insert(ctx, org, &row)
}

func (r *incidentRepository) Update(ctx context.Context, org string, i *model.Incident) (*model.Incident, error) {
	row := *i
	row.UpdatedAt = time.Now().UTC()
	return r.t.update(ctx, org, &row)
}

func (r *incidentRepository) Get(ctx context.Context, org string, id int64) (*model.Incident, error) {
	return r.t.get(ctx, org, id)
}

func (r *incidentRepository) GetByName(ctx context.Context, org string, name string) (*model.Incident, error) {
	i, err := r.t.first(ctx, org, "name = $1", "", name)
	if err != nil {
		return nil, err
	}
	if i == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "incident not found", goerr.V(model.OrgKey, org), goerr.V("name", name))
	}
	return i, nil
}

func (r *incidentRepository) List(ctx context.Context, org string, q model.IncidentQuery) ([]*model.Incident, error) {
	c := &searchClause{where: []string{"TRUE"}}
	if q.ProjectID != 0 {
		c.add("project_id = ?", q.ProjectID)
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		c.add("status = ANY(?)", statuses)
	}
	if q.Since != nil {
		c.add("reported_at >= ?", *q.Since)
	}
	where, order, args := c.build(q.Text, q.Limit)
	return r.t.find(ctx, org, where, order, args...)
}

func (r *incidentRepository) Delete(ctx context.Context, org string, id int64) error {
	return r.t.delete(ctx, org, id)
}

type caseRepository struct {
	t *table[model.Case, int64]
}

func newCaseRepository(db *Postgres) *caseRepository {
	return &caseRepository{t: &table[model.Case, int64]{
		db:      db,
		name:    "case",
		label:   "case",
		autoID:  true,
		columns: []string{"project_id", "name", "title", "description", "status", "signal_id", "reported_at"},
		values: func(c *model.Case) []any {
			return []any{c.ProjectID, c.Name, c.Title, c.Description, string(c.Status), c.SignalID, c.ReportedAt}
		},
		getID: func(c *model.Case) int64 { return c.ID },
		setID: func(c *model.Case, id int64) { c.ID = id },
	}}
}

func (r *caseRepository) Create(ctx context.Context, org string, c *model.Case) (*model.Case, error) {
	now := time.Now().UTC()
	row := *c
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.ReportedAt.IsZero() {
		row.ReportedAt = now
	}
	row.UpdatedAt = now
	return r.t.insert(ctx, org, &row)
}

func (r *caseRepository) Update(ctx context.Context, org string, c *model.Case) (*model.Case, error) {
	row := *c
	row.UpdatedAt = time.Now().UTC()
	return r.t.update(ctx, org, &row)
}

func (r *caseRepository) Get(ctx context.Context, org string, id int64) (*model.Case, error) {
	return r.t.get(ctx, org, id)
}

func (r *caseRepository) GetByName(ctx context.Context, org string, name string) (*model.Case, error) {
	c, err := r.t.first(ctx, org, "name = $1", "", name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "case not found", goerr.V(model.OrgKey, org), goerr.V("name", name))
	}
	return c, nil
}

func (r *caseRepository) List(ctx context.Context, org string, q model.CaseQuery) ([]*model.Case, error) {
	c := &searchClause{where: []string{"TRUE"}}
	if q.ProjectID != 0 {
		c.add("project_id = ?", q.ProjectID)
	}
	if len(q.Statuses) > 0 {
		statuses := make([]string, len(q.Statuses))
		for i, s := range q.Statuses {
			statuses[i] = string(s)
		}
		c.add("status = ANY(?)", statuses)
	}
	if q.SignalID != 0 {
		c.add("signal_id = ?", q.SignalID)
	}
	if q.Since != nil {
		c.add("reported_at >= ?", *q.Since)
	}
	where, order, args := c.build(q.Text, q.Limit)
	return r.t.find(ctx, org, where, order, args...)
}

func (r *caseRepository) Delete(ctx context.Context, org string, id int64) error {
	return r.t.delete(ctx, org, id)
}
