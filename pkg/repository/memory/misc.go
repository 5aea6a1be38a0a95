package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

type taskRepository struct {
	t *table[model.Task]
}

func newTaskRepository() *taskRepository {
	return &taskRepository{
		t: newTable("task",
			func(t *model.Task) int64 { return t.ID },
			func(t *model.Task, id int64) { t.ID = id }),
	}
}

func (r *taskRepository) Create(ctx context.Context, org string, t *model.Task) (*model.Task, error) {
	now := time.Now().UTC()
	row := *t
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	return r.t.insert(org, &row), nil
}

func (r *taskRepository) Update(ctx context.Context, org string, t *model.Task) (*model.Task, error) {
	row := *t
	row.UpdatedAt = time.Now().UTC()
	return r.t.update(org, &row)
}

func (r *taskRepository) Get(ctx context.Context, org string, id int64) (*model.Task, error) {
	return r.t.get(org, id)
}

func (r *taskRepository) GetByResourceID(ctx context.Context, org string, resourceID string) (*model.Task, error) {
	if resourceID == "" {
		return nil, nil
	}
	return r.t.first(org, func(t *model.Task) bool { return t.ResourceID == resourceID }), nil
}

func (r *taskRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Task, error) {
	return r.t.find(org, func(t *model.Task) bool { return t.Subject == subject }), nil
}

type reportRepository struct {
	t *table[model.Report]
}

func newReportRepository() *reportRepository {
	return &reportRepository{
		t: newTable("report",
			func(r *model.Report) int64 { return r.ID },
			func(r *model.Report, id int64) { r.ID = id }),
	}
}

func (r *reportRepository) Create(ctx context.Context, org string, rep *model.Report) (*model.Report, error) {
	row := *rep
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insert(org, &row), nil
}

func (r *reportRepository) Latest(ctx context.Context, org string, subject model.SubjectRef, t types.ReportType) (*model.Report, error) {
	rows := r.t.find(org, func(v *model.Report) bool { return v.Subject == subject && v.Type == t })
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[len(rows)-1], nil
}

func (r *reportRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Report, error) {
	return r.t.find(org, func(v *model.Report) bool { return v.Subject == subject }), nil
}

type promptRepository struct {
	t *table[model.Prompt]
}

func newPromptRepository() *promptRepository {
	return &promptRepository{
		t: newTable("prompt",
			func(p *model.Prompt) int64 { return p.ID },
			func(p *model.Prompt, id int64) { p.ID = id }),
	}
}

// conflictLocked reports whether another enabled prompt of the same project
// and type exists. Caller holds the lock.
func (r *promptRepository) conflictLocked(org string, p *model.Prompt) bool {
	if !p.Enabled {
		return false
	}
	return len(r.t.findLocked(org, func(v *model.Prompt) bool {
		return v.ID != p.ID && v.Enabled && v.ProjectID == p.ProjectID && v.GenAIType == p.GenAIType
	})) > 0
}

func (r *promptRepository) Create(ctx context.Context, org string, p *model.Prompt) (*model.Prompt, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	row := *p
	row.ID = 0
	if r.conflictLocked(org, &row) {
		return nil, goerr.Wrap(model.NewPromptConflict(p.GenAIType), "failed to create prompt",
			goerr.V(model.OrgKey, org), goerr.V(model.ProjectIDKey, p.ProjectID))
	}
	now := time.Now().UTC()
	row.CreatedAt = now
	row.UpdatedAt = now
	return r.t.insertLocked(org, &row), nil
}

func (r *promptRepository) Update(ctx context.Context, org string, p *model.Prompt) (*model.Prompt, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	if r.conflictLocked(org, p) {
		return nil, goerr.Wrap(model.NewPromptConflict(p.GenAIType), "failed to update prompt",
			goerr.V(model.OrgKey, org), goerr.V("id", p.ID))
	}
	row := *p
	row.UpdatedAt = time.Now().UTC()
	return r.t.updateLocked(org, &row)
}

func (r *promptRepository) Get(ctx context.Context, org string, id int64) (*model.Prompt, error) {
	return r.t.get(org, id)
}

func (r *promptRepository) GetEnabled(ctx context.Context, org string, projectID int64, t types.GenAIType) (*model.Prompt, error) {
	return r.t.first(org, func(v *model.Prompt) bool {
		return v.Enabled && v.ProjectID == projectID && v.GenAIType == t
	}), nil
}

func (r *promptRepository) List(ctx context.Context, org string, projectID int64) ([]*model.Prompt, error) {
	return r.t.find(org, func(v *model.Prompt) bool { return v.ProjectID == projectID }), nil
}

func (r *promptRepository) Delete(ctx context.Context, org string, id int64) error {
	return r.t.delete(org, id)
}

type signalInstanceRepository struct {
	mu        sync.RWMutex
	instances map[string]map[string]*model.SignalInstance
}

func newSignalInstanceRepository() *signalInstanceRepository {
	return &signalInstanceRepository{instances: make(map[string]map[string]*model.SignalInstance)}
}

func (r *signalInstanceRepository) Create(ctx context.Context, org string, s *model.SignalInstance) (*model.SignalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.ID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "signal instance id is required")
	}
	if _, ok := r.instances[org][s.ID]; ok {
		return nil, goerr.Wrap(model.NewStateConflict("id", "signal instance already exists"),
			"duplicated signal instance", goerr.V(model.OrgKey, org), goerr.V("id", s.ID))
	}
	row := clone(s)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if _, ok := r.instances[org]; !ok {
		r.instances[org] = make(map[string]*model.SignalInstance)
	}
	r.instances[org][row.ID] = row
	return clone(row), nil
}

func (r *signalInstanceRepository) Update(ctx context.Context, org string, s *model.SignalInstance) (*model.SignalInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instances[org][s.ID]; !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "signal instance not found", goerr.V(model.OrgKey, org), goerr.V("id", s.ID))
	}
	r.instances[org][s.ID] = clone(s)
	return clone(s), nil
}

func (r *signalInstanceRepository) Get(ctx context.Context, org string, id string) (*model.SignalInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.instances[org][id]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "signal instance not found", goerr.V(model.OrgKey, org), goerr.V("id", id))
	}
	return clone(s), nil
}

func (r *signalInstanceRepository) List(ctx context.Context, org string, q model.SignalInstanceQuery) ([]*model.SignalInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []*model.SignalInstance{}
	for _, s := range r.instances[org] {
		if q.SignalID != 0 && s.SignalID != q.SignalID {
			continue
		}
		if q.Fingerprint != "" && s.Fingerprint != q.Fingerprint {
			continue
		}
		if q.Since != nil && s.CreatedAt.Before(*q.Since) {
			continue
		}
		out = append(out, clone(s))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

type entityRepository struct {
	t *table[model.Entity]
}

func newEntityRepository() *entityRepository {
	return &entityRepository{
		t: newTable("entity",
			func(e *model.Entity) int64 { return e.ID },
			func(e *model.Entity, id int64) { e.ID = id }),
	}
}

func (r *entityRepository) Upsert(ctx context.Context, org string, e *model.Entity) (*model.Entity, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	for _, existing := range r.t.findLocked(org, func(v *model.Entity) bool {
		return v.ProjectID == e.ProjectID && v.EntityTypeID == e.EntityTypeID && strings.EqualFold(v.Value, e.Value)
	}) {
		return existing, nil
	}
	row := *e
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insertLocked(org, &row), nil
}

func (r *entityRepository) Get(ctx context.Context, org string, id int64) (*model.Entity, error) {
	return r.t.get(org, id)
}

func (r *entityRepository) List(ctx context.Context, org string, projectID int64) ([]*model.Entity, error) {
	return r.t.find(org, func(v *model.Entity) bool { return v.ProjectID == projectID }), nil
}

type reminderRepository struct {
	t *table[model.Reminder]
}

func newReminderRepository() *reminderRepository {
	return &reminderRepository{
		t: newTable("reminder",
			func(r *model.Reminder) int64 { return r.ID },
			func(r *model.Reminder, id int64) { r.ID = id }),
	}
}

func (r *reminderRepository) Create(ctx context.Context, org string, rem *model.Reminder) (*model.Reminder, error) {
	row := *rem
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insert(org, &row), nil
}

func (r *reminderRepository) Update(ctx context.Context, org string, rem *model.Reminder) (*model.Reminder, error) {
	return r.t.update(org, rem)
}

func (r *reminderRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Reminder, error) {
	return r.t.find(org, func(v *model.Reminder) bool { return v.Subject == subject }), nil
}

func (r *reminderRepository) ListDue(ctx context.Context, org string, now time.Time) ([]*model.Reminder, error) {
	return r.t.find(org, func(v *model.Reminder) bool { return v.SentAt == nil && !v.DueAt.After(now) }), nil
}

type feedbackRepository struct {
	t *table[model.Feedback]
}

func newFeedbackRepository() *feedbackRepository {
	return &feedbackRepository{
		t: newTable("feedback",
			func(f *model.Feedback) int64 { return f.ID },
			func(f *model.Feedback, id int64) { f.ID = id }),
	}
}

func (r *feedbackRepository) Create(ctx context.Context, org string, f *model.Feedback) (*model.Feedback, error) {
	row := *f
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insert(org, &row), nil
}

func (r *feedbackRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Feedback, error) {
	return r.t.find(org, func(v *model.Feedback) bool { return v.Subject == subject }), nil
}
