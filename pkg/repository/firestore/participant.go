package firestore

import (
	"context"
	"strings"
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type participantRepository struct {
	t *table[model.Participant]
}

func newParticipantRepository(s *store) *participantRepository {
	return &participantRepository{
		t: newTable(s, "participants", "participant",
			func(p *model.Participant) int64 { return p.ID },
			func(p *model.Participant, id int64) { p.ID = id },
			func(p *model.Participant) record { return record{Subject: p.Subject.String()} }),
	}
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
	return r.t.first(ctx, org, bySubject(subject), func(p *model.Participant) bool {
		return strings.EqualFold(p.Email, email)
	})
}

func (r *participantRepository) List(ctx context.Context, org string, subject model.SubjectRef) (model.Participants, error) {
	return r.t.find(ctx, org, bySubject(subject), nil)
}

func (r *participantRepository) DeleteBySubject(ctx context.Context, org string, subject model.SubjectRef) error {
	return r.t.deleteWhere(ctx, org, bySubject(subject), nil)
}
