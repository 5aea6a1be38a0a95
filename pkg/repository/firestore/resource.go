package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

type resourceRepository struct {
	t *table[model.Resource]
}

func newResourceRepository(s *store) *resourceRepository {
	return &resourceRepository{
		t: newTable(s, "resources", "resource",
			func(r *model.Resource) int64 { return r.ID },
			func(r *model.Resource, id int64) { r.ID = id },
			func(r *model.Resource) record { return record{Subject: r.Subject.String(), Key: r.ChannelID} }),
	}
}

func (r *resourceRepository) Put(ctx context.Context, org string, res *model.Resource) (*model.Resource, error) {
	var out *model.Resource
	err := r.t.tx(ctx, func(tx *firestore.Transaction) error {
		existing, err := r.t.findTx(tx, org, bySubject(res.Subject), func(v *model.Resource) bool { return v.Type == res.Type })
		if err != nil {
			return err
		}
		row := *res
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		if len(existing) == 0 {
			out, err = r.t.insertTx(tx, org, &row)
			return err
		}
		row.ID = existing[0].ID
		row.CreatedAt = existing[0].CreatedAt
		out = &row
		return r.t.putTx(tx, org, &row)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to put resource",
			goerr.V(model.OrgKey, org), goerr.V(model.SubjectKey, res.Subject.String()), goerr.V("type", res.Type))
	}
	return out, nil
}

func (r *resourceRepository) Get(ctx context.Context, org string, subject model.SubjectRef, t types.ResourceType) (*model.Resource, error) {
	return r.t.first(ctx, org, bySubject(subject), func(v *model.Resource) bool { return v.Type == t })
}

func (r *resourceRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Resource, error) {
	return r.t.find(ctx, org, bySubject(subject), nil)
}

func (r *resourceRepository) FindConversation(ctx context.Context, org string, channelID, threadID string) (*model.Resource, error) {
	rows, err := r.t.find(ctx, org, byKey(channelID), func(v *model.Resource) bool {
		return v.Type == types.ResourceTypeConversation && v.ThreadID == threadID
	})
	if err != nil {
		return nil, err
	}

	// an incident binding wins; otherwise the newest binding of the kind
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
	return found, nil
}

func (r *resourceRepository) Delete(ctx context.Context, org string, subject model.SubjectRef, t types.ResourceType) error {
	existing, err := r.Get(ctx, org, subject, t)
	if err != nil {
		return err
	}
	if existing == nil {
		return goerr.Wrap(model.ErrNotFound, "resource not found",
			goerr.V(model.OrgKey, org), goerr.V(model.SubjectKey, subject.String()), goerr.V("type", t))
	}
	return r.t.delete(ctx, org, existing.ID)
}
