package firestore

import (
	"context"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

type taskRepository struct {
	t *table[model.Task]
}

func newTaskRepository(s *store) *taskRepository {
	return &taskRepository{
		t: newTable(s, "tasks", "task",
			func(t *model.Task) int64 { return t.ID },
			func(t *model.Task, id int64) { t.ID = id },
			func(t *model.Task) record { return record{Subject: t.Subject.String(), Key: t.ResourceID} }),
	}
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
	return r.t.first(ctx, org, byKey(resourceID), nil)
}

func (r *taskRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Task, error) {
	return r.t.find(ctx, org, bySubject(subject), nil)
}

type reportRepository struct {
	t *table[model.Report]
}

func newReportRepository(s *store) *reportRepository {
	return &reportRepository{
		t: newTable(s, "reports", "report",
			func(r *model.Report) int64 { return r.ID },
			func(r *model.Report, id int64) { r.ID = id },
			func(r *model.Report) record { return record{Subject: r.Subject.String()} }),
	}
}

func (r *reportRepository) Create(ctx context.Context, org string, rep *model.Report) (*model.Report, error) {
	row := *rep
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insert(ctx, org, &row)
}

func (r *reportRepository) Latest(ctx context.Context, org string, subject model.SubjectRef, t types.ReportType) (*model.Report, error) {
	rows, err := r.t.find(ctx, org, bySubject(subject), func(v *model.Report) bool { return v.Type == t })
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[len(rows)-1], nil
}

func (r *reportRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Report, error) {
	return r.t.find(ctx, org, bySubject(subject), nil)
}

type promptRepository struct {
	t *table[model.Prompt]
}

func newPromptRepository(s *store) *promptRepository {
	return &promptRepository{
		t: newTable(s, "prompts", "prompt",
			func(p *model.Prompt) int64 { return p.ID },
			func(p *model.Prompt, id int64) { p.ID = id },
			func(p *model.Prompt) record { return record{ProjectID: p.ProjectID, Key: string(p.GenAIType)} }),
	}
}

// conflictTx reports whether another enabled prompt of the same project and
// type exists
func (r *promptRepository) conflictTx(tx *firestore.Transaction, org string, p *model.Prompt) (bool, error) {
	if !p.Enabled {
		return false, nil
	}
	rows, err := r.t.findTx(tx, org, byProject(p.ProjectID), func(v *model.Prompt) bool {
		return v.ID != p.ID && v.Enabled && v.GenAIType == p.GenAIType
	})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

func (r *promptRepository) Create(ctx context.Context, org string, p *model.Prompt) (*model.Prompt, error) {
	var out *model.Prompt
	err := r.t.tx(ctx, func(tx *firestore.Transaction) error {
		row := *p
		row.ID = 0
		conflict, err := r.conflictTx(tx, org, &row)
		if err != nil {
			return err
		}
		if conflict {
			return goerr.Wrap(model.NewPromptConflict(p.GenAIType), "failed to create prompt",
				goerr.V(model.OrgKey, org), goerr.V(model.ProjectIDKey, p.ProjectID))
		}
		now := time.Now().UTC()
		row.CreatedAt = now
		row.UpdatedAt = now
		out, err = r.t.insertTx(tx, org, &row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *promptRepository) Update(ctx context.Context, org string, p *model.Prompt) (*model.Prompt, error) {
	row := *p
	err := r.t.tx(ctx, func(tx *firestore.Transaction) error {
		if _, err := tx.Get(r.t.doc(org, p.ID)); err != nil {
			if isNotFound(err) {
				return r.t.notFound(org, p.ID)
			}
			return goerr.Wrap(err, "failed to get prompt", goerr.V(model.OrgKey, org), goerr.V("id", p.ID))
		}
		conflict, err := r.conflictTx(tx, org, p)
		if err != nil {
			return err
		}
		if conflict {
			return goerr.Wrap(model.NewPromptConflict(p.GenAIType), "failed to update prompt",
				goerr.V(model.OrgKey, org), goerr.V("id", p.ID))
		}
		row.UpdatedAt = time.Now().UTC()
		return r.t.putTx(tx, org, &row)
	})
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *promptRepository) Get(ctx context.Context, org string, id int64) (*model.Prompt, error) {
	return r.t.get(ctx, org, id)
}

func (r *promptRepository) GetEnabled(ctx context.Context, org string, projectID int64, t types.GenAIType) (*model.Prompt, error) {
	return r.t.first(ctx, org, byProject(projectID), func(v *model.Prompt) bool {
		return v.Enabled && v.GenAIType == t
	})
}

func (r *promptRepository) List(ctx context.Context, org string, projectID int64) ([]*model.Prompt, error) {
	return r.t.find(ctx, org, byProject(projectID), nil)
}

func (r *promptRepository) Delete(ctx context.Context, org string, id int64) error {
	return r.t.delete(ctx, org, id)
}

type signalInstanceRepository struct {
	s *store
}

func newSignalInstanceRepository(s *store) *signalInstanceRepository {
	return &signalInstanceRepository{s: s}
}

func (r *signalInstanceRepository) col(org string) *firestore.CollectionRef {
	return r.s.collection(org, "signal_instances")
}

func (r *signalInstanceRepository) record(s *model.SignalInstance) (record, error) {
	return encode(s, record{ProjectID: s.ProjectID, SignalID: s.SignalID, Key: s.Fingerprint, SortAt: s.CreatedAt})
}

func (r *signalInstanceRepository) Create(ctx context.Context, org string, s *model.SignalInstance) (*model.SignalInstance, error) {
	if s.ID == "" {
		return nil, goerr.Wrap(model.ErrInvalidInput, "signal instance id is required")
	}
	row := *s
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	rec, err := r.record(&row)
	if err != nil {
		return nil, err
	}
	if _, err := r.col(org).Doc(row.ID).Create(ctx, rec); err != nil {
		if isAlreadyExists(err) {
			return nil, goerr.Wrap(model.NewStateConflict("id", "signal instance already exists"),
				"duplicated signal instance", goerr.V(model.OrgKey, org), goerr.V("id", s.ID))
		}
		return nil, goerr.Wrap(err, "failed to create signal instance", goerr.V(model.OrgKey, org), goerr.V("id", s.ID))
	}
	return &row, nil
}

func (r *signalInstanceRepository) Update(ctx context.Context, org string, s *model.SignalInstance) (*model.SignalInstance, error) {
	if _, err := r.Get(ctx, org, s.ID); err != nil {
		return nil, err
	}
	rec, err := r.record(s)
	if err != nil {
		return nil, err
	}
	if _, err := r.col(org).Doc(s.ID).Set(ctx, rec); err != nil {
		return nil, goerr.Wrap(err, "failed to update signal instance", goerr.V(model.OrgKey, org), goerr.V("id", s.ID))
	}
	row := *s
	return &row, nil
}

func (r *signalInstanceRepository) Get(ctx context.Context, org string, id string) (*model.SignalInstance, error) {
	doc, err := r.col(org).Doc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, goerr.Wrap(model.ErrNotFound, "signal instance not found", goerr.V(model.OrgKey, org), goerr.V("id", id))
		}
		return nil, goerr.Wrap(err, "failed to get signal instance", goerr.V(model.OrgKey, org), goerr.V("id", id))
	}
	return decode[model.SignalInstance](doc)
}

func (r *signalInstanceRepository) List(ctx context.Context, org string, q model.SignalInstanceQuery) ([]*model.SignalInstance, error) {
	query := r.col(org).Query
	if q.SignalID != 0 {
		query = query.Where("signal_id", "==", q.SignalID)
	}
	if q.Fingerprint != "" {
		query = query.Where("key", "==", q.Fingerprint)
	}
	if q.Since != nil {
		query = query.Where("sort_at", ">=", *q.Since)
	}
	query = query.OrderBy("sort_at", firestore.Desc)
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	docs, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list signal instances", goerr.V(model.OrgKey, org))
	}
	out, err := decodeAll[model.SignalInstance](docs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

type entityRepository struct {
	t *table[model.Entity]
}

func newEntityRepository(s *store) *entityRepository {
	return &entityRepository{
		t: newTable(s, "entities", "entity",
			func(e *model.Entity) int64 { return e.ID },
			func(e *model.Entity, id int64) { e.ID = id },
			func(e *model.Entity) record { return record{ProjectID: e.ProjectID} }),
	}
}

func (r *entityRepository) Upsert(ctx context.Context, org string, e *model.Entity) (*model.Entity, error) {
	var out *model.Entity
	err := r.t.tx(ctx, func(tx *firestore.Transaction) error {
		rows, err := r.t.findTx(tx, org, byProject(e.ProjectID), func(v *model.Entity) bool {
			return v.EntityTypeID == e.EntityTypeID && strings.EqualFold(v.Value, e.Value)
		})
		if err != nil {
			return err
		}
		if len(rows) > 0 {
			out = rows[0]
			return nil
		}
		row := *e
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		out, err = r.t.insertTx(tx, org, &row)
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert entity", goerr.V(model.OrgKey, org))
	}
	return out, nil
}

func (r *entityRepository) Get(ctx context.Context, org string, id int64) (*model.Entity, error) {
	return r.t.get(ctx, org, id)
}

func (r *entityRepository) List(ctx context.Context, org string, projectID int64) ([]*model.Entity, error) {
	return r.t.find(ctx, org, byProject(projectID), nil)
}

type reminderRepository struct {
	t *table[model.Reminder]
}

func newReminderRepository(s *store) *reminderRepository {
	return &reminderRepository{
		t: newTable(s, "reminders", "reminder",
			func(r *model.Reminder) int64 { return r.ID },
			func(r *model.Reminder, id int64) { r.ID = id },
			func(r *model.Reminder) record { return record{Subject: r.Subject.String(), SortAt: r.DueAt} }),
	}
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
	return r.t.find(ctx, org, bySubject(subject), nil)
}

func (r *reminderRepository) ListDue(ctx context.Context, org string, now time.Time) ([]*model.Reminder, error) {
	return r.t.find(ctx, org, nil, func(v *model.Reminder) bool { return v.SentAt == nil && !v.DueAt.After(now) })
}

type feedbackRepository struct {
	t *table[model.Feedback]
}

func newFeedbackRepository(s *store) *feedbackRepository {
	return &feedbackRepository{
		t: newTable(s, "feedback", "feedback",
			func(f *model.Feedback) int64 { return f.ID },
			func(f *model.Feedback, id int64) { f.ID = id },
			func(f *model.Feedback) record { return record{Subject: f.Subject.String()} }),
	}
}

func (r *feedbackRepository) Create(ctx context.Context, org string, f *model.Feedback) (*model.Feedback, error) {
	row := *f
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insert(ctx, org, &row)
}

func (r *feedbackRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Feedback, error) {
	return r.t.find(ctx, org, bySubject(subject), nil)
}
