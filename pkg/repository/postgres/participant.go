package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type participantRepository struct {
	t *table[model.Participant, int64]
}

func newParticipantRepository(db *Postgres) *participantRepository {
	return &participantRepository{t: &table[model.Participant, int64]{
		db:      db,
		name:    "participant",
		label:   "participant",
		autoID:  true,
		columns: []string{"subject_kind", "subject_id", "email"},
		values: func(p *model.Participant) []any {
			return []any{string(p.Subject.Kind), p.Subject.ID, strings.ToLower(p.Email)}
		},
		getID: func(p *model.Participant) int64 { return p.ID },
		setID: func(p *model.Participant, id int64) { p.ID = id },
	}}
}

func (r *participantRepository) Create(ctx context.Context, org string, p *model.Participant) (*model.Participant, error) {
	row := *p
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insert(ctx, org, &row)
}

func (r *participantRepository) Update(ctx context.Context, org string, p *model.Participant) (*model.Participant, error) {
	return r.t.update(ctx, org, p)
}

func (r *participantRepository) Get(ctx context.Context, org string, id int64) (*model.Participant, error) {
	return r.t.get(ctx, org, id)
}

func (r *participantRepository) GetByEmail(ctx context.Context, org string, subject model.SubjectRef, email string) (*model.Participant, error) {
	return r.t.first(ctx, org, "subject_kind = $1 AND subject_id = $2 AND email = $3", "",
		string(subject.Kind), subject.ID, strings.ToLower(email))
}

func (r *participantRepository) List(ctx context.Context, org string, subject model.SubjectRef) (model.Participants, error) {
	rows, err := r.t.find(ctx, org, "subject_kind = $1 AND subject_id = $2", "id", string(subject.Kind), subject.ID)
	if err != nil {
		return nil, err
	}
	return model.Participants(rows), nil
}

func (r *participantRepository) DeleteBySubject(ctx context.Context, org string, subject model.SubjectRef) error {
	return r.t.deleteWhere(ctx, org, "subject_kind = $1 AND subject_id = $2", string(subject.Kind), subject.ID)
}
