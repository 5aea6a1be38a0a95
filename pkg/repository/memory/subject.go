package memory

import (
	"context"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

type ranked[T any] struct {
	row        *T
	rank       int
	reportedAt time.Time
}

func sortRanked[T any](rows []ranked[T], limit int) []*T {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].rank != rows[j].rank {
			return rows[i].rank > rows[j].rank
		}
		return rows[i].reportedAt.After(rows[j].reportedAt)
	})
	out := make([]*T, 0, len(rows))
	for _, r := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, r.row)
	}
	return out
}

type incidentRepository struct {
	t *table[model.Incident]
}

func newIncidentRepository() *incidentRepository {
	return &incidentRepository{
		t: newTable("incident",
			func(i *model.Incident) int64 { return i.ID },
			func(i *model.Incident, id int64) { i.ID = id }),
	}
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
	return r.t.insert(org, &row), nil
}

func (r *incidentRepository) Update(ctx context.Context, org string, i *model.Incident) (*model.Incident, error) {
	row := *i
	row.UpdatedAt = time.Now().UTC()
	return r.t.update(org, &row)
}

func (r *incidentRepository) Get(ctx context.Context, org string, id int64) (*model.Incident, error) {
	return r.t.get(org, id)
}

func (r *incidentRepository) GetByName(ctx context.Context, org string, name string) (*model.Incident, error) {
	i := r.t.first(org, func(i *model.Incident) bool { return i.Name == name })
	if i == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "incident not found", goerr.V(model.OrgKey, org), goerr.V("name", name))
	}
	return i, nil
}

func (r *incidentRepository) List(ctx context.Context, org string, q model.IncidentQuery) ([]*model.Incident, error) {
	var rows []ranked[model.Incident]
	for _, i := range r.t.find(org, nil) {
		if q.ProjectID != 0 && i.ProjectID != q.ProjectID {
			continue
		}
		if len(q.Statuses) > 0 && !containsStatus(q.Statuses, i.Status) {
			continue
		}
		if q.Since != nil && i.ReportedAt.Before(*q.Since) {
			continue
		}
		rank := model.TextRank(q.Text, i.Name, i.Title, i.Description)
		if rank == 0 {
			continue
		}
		rows = append(rows, ranked[model.Incident]{row: i, rank: rank, reportedAt: i.ReportedAt})
	}
	return sortRanked(rows, q.Limit), nil
}

func (r *incidentRepository) Delete(ctx context.Context, org string, id int64) error {
	return r.t.delete(org, id)
}

type caseRepository struct {
	t *table[model.Case]
}

func newCaseRepository() *caseRepository {
	return &caseRepository{
		t: newTable("case",
			func(c *model.Case) int64 { return c.ID },
			func(c *model.Case, id int64) { c.ID = id }),
	}
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
	return r.t.insert(org, &row), nil
}

func (r *caseRepository) Update(ctx context.Context, org string, c *model.Case) (*model.Case, error) {
	row := *c
	row.UpdatedAt = time.Now().UTC()
	return r.t.update(org, &row)
}

func (r *caseRepository) Get(ctx context.Context, org string, id int64) (*model.Case, error) {
	return r.t.get(org, id)
}

func (r *caseRepository) GetByName(ctx context.Context, org string, name string) (*model.Case, error) {
	c := r.t.first(org, func(c *model.Case) bool { return c.Name == name })
	if c == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "case not found", goerr.V(model.OrgKey, org), goerr.V("name", name))
	}
	return c, nil
}

func (r *caseRepository) List(ctx context.Context, org string, q model.CaseQuery) ([]*model.Case, error) {
	var rows []ranked[model.Case]
	for _, c := range r.t.find(org, nil) {
		if q.ProjectID != 0 && c.ProjectID != q.ProjectID {
			continue
		}
		if len(q.Statuses) > 0 && !containsStatus(q.Statuses, c.Status) {
			continue
		}
		if q.SignalID != 0 && c.SignalID != q.SignalID {
			continue
		}
		if q.Since != nil && c.ReportedAt.Before(*q.Since) {
			continue
		}
		rank := model.TextRank(q.Text, c.Name, c.Title, c.Description)
		if rank == 0 {
			continue
		}
		rows = append(rows, ranked[model.Case]{row: c, rank: rank, reportedAt: c.ReportedAt})
	}
	return sortRanked(rows, q.Limit), nil
}

func (r *caseRepository) Delete(ctx context.Context, org string, id int64) error {
	return r.t.delete(org, id)
}

func containsStatus[S types.IncidentStatus | types.CaseStatus](list []S, s S) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
