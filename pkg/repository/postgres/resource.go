package postgres

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

type resourceRepository struct {
	t *table[model.Resource, int64]
}

func newResourceRepository(db *Postgres) *resourceRepository {
	return &resourceRepository{t: &table[model.Resource, int64]{
		db:      db,
		name:    "resource",
		label:   "resource",
		autoID:  true,
		columns: []string{"subject_kind", "subject_id", "resource_type", "channel_id", "thread_id"},
		values: func(r *model.Resource) []any {
			return []any{string(r.Subject.Kind), r.Subject.ID, string(r.Type), r.ChannelID, r.ThreadID}
		},
		getID: func(r *model.Resource) int64 { return r.ID },
		setID: func(r *model.Resource, id int64) { r.ID = id },
	}}
}

func (r *resourceRepository) Put(ctx context.Context, org string, res *model.Resource) (*model.Resource, error) {
	var result *model.Resource
	err := r.t.db.WithTx(ctx, org, func(ctx context.Context) error {
		existing, err := r.t.first(ctx, org, "subject_kind = $1 AND subject_id = $2 AND resource_type = $3", "id FOR UPDATE",
			string(res.Subject.Kind), res.Subject.ID, string(res.Type))
		if err != nil {
			return err
		}

		row := *res
		if existing != nil {
			row.ID = existing.ID
			row.CreatedAt = existing.CreatedAt
			result, err = r.t.update(ctx, org, &row)
			return err
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		result, err = r.t.insert(ctx, org, &row)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *resourceRepository) Get(ctx context.Context, org string, subject model.SubjectRef, t types.ResourceType) (*model.Resource, error) {
	return r.t.first(ctx, org, "subject_kind = $1 AND subject_id = $2 AND resource_type = $3", "",
		string(subject.Kind), subject.ID, string(t))
}

func (r *resourceRepository) List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Resource, error) {
	return r.t.find(ctx, org, "subject_kind = $1 AND subject_id = $2", "id", string(subject.Kind), subject.ID)
}

func (r *resourceRepository) FindConversation(ctx context.Context, org string, channelID, threadID string) (*model.Resource, error) {
	return r.t.first(ctx, org, "resource_type = $1 AND channel_id = $2 AND thread_id = $3",
		"(subject_kind = 'incident') DESC, id DESC",
		string(types.ResourceTypeConversation), channelID, threadID)
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
