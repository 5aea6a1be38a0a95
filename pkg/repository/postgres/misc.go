package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

type taskRepository struct {
	t *table[model.Task, int64]
}

func newTaskRepository(db *Postgres) *taskRepository {
	return &taskRepository{t: &table[model.Task, int64]{
		db:      db,
		name:    "task",
		label:   "task",
		autoID:  true,
		columns: []string{"subject_kind", "subject_id", "resource_id"},
		values: func(t *model.Task) []any {
			return []any{string(t.Subject.Kind), t.Subject.ID, t.ResourceID}
		},
		getID: func(t *model.Task) int64 { return t.ID },
		setID: func(t *model.Task, id int64) { t.ID = id },
	}}
}

func (r *taskRepository) Create(ctx context.Context, org string, t *model.Task) (*model.Task, error) {
	now := time.Now().UTC()
	row := *t
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	return r.t.insert(ctx, org, &row)
}

func (r *taskRepository) Update(ctx context.Context, org string, t *model.Task) (*model.Task, error) {
	row := *t
	row.UpdatedAt = time.Now().UTC()
	return r.t.update(ctx, org, &row)
}

func (r *taskRepository) Get(ctx context.Context, org string, id int64) (*model.Task, error) {
	return r.t.get(ctx, org, id)
}

func (r *taskRepository) GetByResourceID(ctx context.Context, org string, resourceID string) (*model.Task, error) {
	if resourceID == "" {
		return nil, nil
	}
	return r.t.first(ctx, org, "resource_id = $1", "", resourceID)
}

func (r *taskRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Task, error) {
	return r.t.find(ctx, org, "subject_kind = $1 AND subject_id = $2", "id", string(subject.Kind), subject.ID)
}

type reportRepository struct {
	t *table[model.Report, int64]
}

func newReportRepository(db *Postgres) *reportRepository {
	return &reportRepository{t: &table[model.Report, int64]{
		db:      db,
		name:    "report",
		label:   "report",
		autoID:  true,
		columns: []string{"subject_kind", "subject_id", "report_type"},
		values: func(r *model.Report) []any {
			return []any{string(r.Subject.Kind), r.Subject.ID, string(r.Type)}
		},
		getID: func(r *model.Report) int64 { return r.ID },
		setID: func(r *model.Report, id int64) { r.ID = id },
	}}
}

func (r *reportRepository) Create(ctx context.Context, org string, rep *model.Report) (*model.Report, error) {
	row := *rep
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insert(ctx, org, &row)
}

func (r *reportRepository) Latest(ctx context.Context, org string, subject model.SubjectRef, t types.ReportType) (*model.Report, error) {
	return r.t.first(ctx, org, "subject_kind = $1 AND subject_id = $2 AND report_type = $3", "id DESC",
		string(subject.Kind), subject.ID, string(t))
}

func (r *reportRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Report, error) {
	return r.t.find(ctx, org, "subject_kind = $1 AND subject_id = $2", "id", string(subject.Kind), subject.ID)
}

// promptRepository relies on a partial unique index over enabled prompts of
// (project_id, genai_type) so a conflicting write fails atomically.
type promptRepository struct {
	t *table[model.Prompt, int64]
}

func newPromptRepository(db *Postgres) *promptRepository {
	return &promptRepository{t: &table[model.Prompt, int64]{
		db:      db,
		name:    "prompt",
		label:   "prompt",
		autoID:  true,
		columns: []string{"project_id", "genai_type", "enabled"},
		values: func(p *model.Prompt) []any {
			return []any{p.ProjectID, string(p.GenAIType), p.Enabled}
		},
		getID: func(p *model.Prompt) int64 { return p.ID },
		setID: func(p *model.Prompt, id int64) { p.ID = id },
	}}
}

func (r *promptRepository) Create(ctx context.Context, org string, p *model.Prompt) (*model.Prompt, error) {
	now := time.Now().UTC()
	row := *p
	row.ID = 0
	row.CreatedAt = now
	row.UpdatedAt = now
	created, err := r.t.insert(ctx, org, &row)
	if isUniqueViolation(err) {
		return nil, goerr.Wrap(model.NewPromptConflict(p.GenAIType), "failed to create prompt",
			goerr.V(model.OrgKey, org), goerr.V(model.ProjectIDKey, p.ProjectID))
	}
	return created, err
}

func (r *promptRepository) Update(ctx context.Context, org string, p *model.Prompt) (*model.Prompt, error) {
	row := *p
	row.UpdatedAt = time.Now().UTC()
	updated, err := r.t.update(ctx, org, &row)
	if isUniqueViolation(err) {
		return nil, goerr.Wrap(model.NewPromptConflict(p.GenAIType), "failed to update prompt",
			goerr.V(model.OrgKey, org), goerr.V("id", p.ID))
	}
	return updated, err
}

func (r *promptRepository) Get(ctx context.Context, org string, id int64) (*model.Prompt, error) {
	return r.t.get(ctx, org, id)
}

func (r *promptRepository) GetEnabled(ctx context.Context, org string, projectID int64, t types.GenAIType) (*model.Prompt, error) {
	return r.t.first(ctx, org, "project_id = $1 AND genai_type = $2 AND enabled", "", projectID, string(t))
}

func (r *promptRepository) List(ctx context.Context, org string, projectID int64) ([]*model.Prompt, error) {
	return r.t.find(ctx, org, "project_id = $1", "id", projectID)
}

func (r *promptRepository) Delete(ctx context.Context, org string, id int64) error {
	return r.t.delete(ctx, org, id)
}

type signalInstanceRepository struct {
	t *table[model.SignalInstance, string]
}

func newSignalInstanceRepository(db *Postgres) *signalInstanceRepository {
	return &signalInstanceRepository{t: &table[model.SignalInstance, string]{
		db:      db,
		name:    "signal_instance",
		label:   "signal instance",
		columns: []string{"project_id", "signal_id", "fingerprint", "created_at"},
		values: func(s *model.SignalInstance) []any {
			return []any{s.ProjectID, s.SignalID, s.Fingerprint, s.CreatedAt}
		},
		getID: func(s *model.SignalInstance) string { return s.ID },
		setID: func(s *model.SignalInstance, id string) { s.ID = id },
	}}
}

func (r *signalInstanceRepository) Create(ctx context.Context, org string, s *model.SignalInstance) (*model.SignalInstance, error) {
	if s.ID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "signal instance id is required")
	}
	row := *s
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	created, err := r.t.insert(ctx, org, &row)
	if isUniqueViolation(err) {
		return nil, goerr.Wrap(model.NewStateConflict("id", "signal instance already exists"),
			"duplicated signal instance", goerr.V(model.OrgKey, org), goerr.V("id", s.ID))
	}
	return created, err
}

func (r *signalInstanceRepository) Update(ctx context.Context, org string, s *model.SignalInstance) (*model.SignalInstance, error) {
	return r.t.update(ctx, org, s)
}

func (r *signalInstanceRepository) Get(ctx context.Context, org string, id string) (*model.SignalInstance, error) {
	return r.t.get(ctx, org, id)
}

func (r *signalInstanceRepository) List(ctx context.Context, org string, q model.SignalInstanceQuery) ([]*model.SignalInstance, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if q.SignalID != 0 {
		add("signal_id = $%d", q.SignalID)
	}
	if q.Fingerprint != "" {
		add("fingerprint = $%d", q.Fingerprint)
	}
	if q.Since != nil {
		add("created_at >= $%d", *q.Since)
	}
	order := "created_at DESC, id DESC"
	if q.Limit > 0 {
		order += fmt.Sprintf(" LIMIT %d", q.Limit)
	}
	return r.t.find(ctx, org, strings.Join(where, " AND "), order, args...)
}

type entityRepository struct {
	t *table[model.Entity, int64]
}

func newEntityRepository(db *Postgres) *entityRepository {
	return &entityRepository{t: &table[model.Entity, int64]{
		db:      db,
		name:    "entity",
		label:   "entity",
		autoID:  true,
		columns: []string{"project_id", "entity_type_id", "value"},
		values: func(e *model.Entity) []any {
			return []any{e.ProjectID, e.EntityTypeID, e.Value}
		},
		getID: func(e *model.Entity) int64 { return e.ID },
		setID: func(e *model.Entity, id int64) { e.ID = id },
	}}
}

func (r *entityRepository) Upsert(ctx context.Context, org string, e *model.Entity) (*model.Entity, error) {
	find := func(ctx context.Context) (*model.Entity, error) {
		return r.t.first(ctx, org, "project_id = $1 AND entity_type_id = $2 AND lower(value) = lower($3)", "",
			e.ProjectID, e.EntityTypeID, e.Value)
	}
	existing, err := find(ctx)
	if err != nil || existing != nil {
		return existing, err
	}

	row := *e
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	created, err := r.t.insert(ctx, org, &row)
	if isUniqueViolation(err) {
		// lost a race with a concurrent insert of the same value
		return find(ctx)
	}
	return created, err
}

func (r *entityRepository) Get(ctx context.Context, org string, id int64) (*model.Entity, error) {
	return r.t.get(ctx, org, id)
}

func (r *entityRepository) List(ctx context.Context, org string, projectID int64) ([]*model.Entity, error) {
	return r.t.find(ctx, org, "project_id = $1", "id", projectID)
}

type reminderRepository struct {
	t *table[model.Reminder, int64]
}

func newReminderRepository(db *Postgres) *reminderRepository {
	return &reminderRepository{t: &table[model.Reminder, int64]{
		db:      db,
		name:    "reminder",
		label:   "reminder",
		autoID:  true,
		columns: []string{"subject_kind", "subject_id", "due_at", "sent"},
		values: func(r *model.Reminder) []any {
			return []any{string(r.Subject.Kind), r.Subject.ID, r.DueAt, r.SentAt != nil}
		},
		getID: func(r *model.Reminder) int64 { return r.ID },
		setID: func(r *model.Reminder, id int64) { r.ID = id },
	}}
}

func (r *reminderRepository) Create(ctx context.Context, org string, rem *model.Reminder) (*model.Reminder, error) {
	row := *rem
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insert(ctx, org, &row)
}

func (r *reminderRepository) Update(ctx context.Context, org string, rem *model.Reminder) (*model.Reminder, error) {
	return r.t.update(ctx, org, rem)
}

func (r *reminderRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Reminder, error) {
	return r.t.find(ctx, org, "subject_kind = $1 AND subject_id = $2", "id", string(subject.Kind), subject.ID)
}

func (r *reminderRepository) ListDue(ctx context.Context, org string, now time.Time) ([]*model.Reminder, error) {
	return r.t.find(ctx, org, "NOT sent AND due_at <= $1", "id", now)
}

type feedbackRepository struct {
	t *table[model.Feedback, int64]
}

func newFeedbackRepository(db *Postgres) *feedbackRepository {
	return &feedbackRepository{t: &table[model.Feedback, int64]{
		db:      db,
		name:    "feedback",
		label:   "feedback",
		autoID:  true,
		columns: []string{"subject_kind", "subject_id"},
		values: func(f *model.Feedback) []any {
			return []any{string(f.Subject.Kind), f.Subject.ID}
		},
		getID: func(f *model.Feedback) int64 { return f.ID },
		setID: func(f *model.Feedback, id int64) { f.ID = id },
	}}
}

func (r *feedbackRepository) Create(ctx context.Context, org string, f *model.Feedback) (*model.Feedback, error) {
	row := *f
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insert(ctx, org, &row)
}

func (r *feedbackRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Feedback, error) {
	return r.t.find(ctx, org, "subject_kind = $1 AND subject_id = $2", "id", string(subject.Kind), subject.ID)
}
