package memory

import (
	"context"
	"strings"
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type participantRepository struct {
	t *table[model.Participant]
}

func newParticipantRepository() *participantRepository {
	return &participantRepository{
		t: newTable("participant",
			func(p *model.Participant) int64 { return p.ID },
			func(p *model.Participant, id int64) { p.ID = id }),
	}
}

func (r *participantRepository) Create(ctx context.Context, org string, p *model.Participant) (*model.Participant, error) {
	row := *p
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	return r.t.insert(org, &row), nil
}

func (r *participantRepository) Update(ctx context.Context, org string, p *model.Participant) (*model.Participant, error) {
	return r.t.update(org, p)
}

func (r *participantRepository) Get(ctx context.Context, org string, id int64) (*model.Participant, error) {
	return r.t.get(org, id)
}

func (r *participantRepository) GetByEmail(ctx context.Context, org string, subject model.SubjectRef, email string) (*model.Participant, error) {
	return r.t.first(org, func(p *model.Participant) bool {
		return p.Subject == subject && strings.EqualFold(p.Email, email)
	}), nil
}

func (r *participantRepository) List(ctx context.Context, org string, subject model.SubjectRef) (model.Participants, error) {
	return r.t.find(org, func(p *model.Participant) bool { return p.Subject == subject }), nil
}

func (r *participantRepository) DeleteBySubject(ctx context.Context, org string, subject model.SubjectRef) error {
	r.t.deleteWhere(org, func(p *model.Participant) bool { return p.Subject == subject })
	return nil
}
