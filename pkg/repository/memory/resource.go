package memory

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

type resourceRepository struct {
	t *table[model.Resource]
}

func newResourceRepository() *resourceRepository {
	return &resourceRepository{
		t: newTable("resource",
			func(r *model.Resource) int64 { return r.ID },
			func(r *model.Resource, id int64) { r.ID = id }),
	}
}

func (r *resourceRepository) Put(ctx context.Context, org string, res *model.Resource) (*model.Resource, error) {
	r.t.mu.Lock()
	defer r.t.mu.Unlock()

	row := *res
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	for _, existing := range r.t.findLocked(org, func(v *model.Resource) bool {
		return v.Subject == res.Subject && v.Type == res.Type
	}) {
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		return r.t.updateLocked(org, &row)
	}
	return r.t.insertLocked(org, &row), nil
}

func (r *resourceRepository) Get(ctx context.Context, org string, subject model.SubjectRef, t types.ResourceType) (*model.Resource, error) {
	return r.t.first(org, func(v *model.Resource) bool { return v.Subject == subject && v.Type == t }), nil
}

func (r *resourceRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Resource, error) {
	return r.t.find(org, func(v *model.Resource) bool { return v.Subject == subject }), nil
}

func (r *resourceRepository) FindConversation(ctx context.Context, org string, channelID, threadID string) (*model.Resource, error) {
	rows := r.t.find(org, func(v *model.Resource) bool {
		return v.Type == types.ResourceTypeConversation && v.ChannelID == channelID && v.ThreadID == threadID
	})
	return preferredConversation(rows), nil
}

// preferredConversation picks the newest incident binding, else the newest
// binding. An escalated case shares its channel with the incident.
func preferredConversation(rows []*model.Resource) *model.Resource {
	var found *model.Resource
	for _, v := range rows {
		switch {
		case found == nil:
			found = v
		case v.Subject.Kind == types.SubjectKindIncident && found.Subject.Kind != types.SubjectKindIncident:
			found = v
		case v.Subject.Kind == found.Subject.Kind && v.ID > found.ID:
			found = v
		}
	}
	return found
}

func (r *resourceRepository) Delete(ctx context.Context, org string, subject model.SubjectRef, t types.ResourceType) error {
	existing := r.t.first(org, func(v *model.Resource) bool { return v.Subject == subject && v.Type == t })
	if existing == nil {
		return goerr.Wrap(model.ErrNotFound, "resource not found",
			goerr.V(model.OrgKey, org), goerr.V(model.SubjectKey, subject.String()), goerr.V("type", t))
	}
	return r.t.delete(org, existing.ID)
}
