package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type organizationRepository struct {
	t *table[model.Organization]
}

func newOrganizationRepository(s *store) *organizationRepository {
	return &organizationRepository{
		t: newTable(s, "organizations", "organization",
			func(o *model.Organization) int64 { return o.ID },
			func(o *model.Organization, id int64) { o.ID = id },
			nil),
	}
}

// Create returns the existing organization when the slug is taken
func (r *organizationRepository) Create(ctx context.Context, org *model.Organization) (*model.Organization, error) {
	var out *model.Organization
	err := r.t.tx(ctx, func(tx *firestore.Transaction) error {
		existing, err := r.t.findTx(tx, coreScope, nil, func(o *model.Organization) bool { return o.Slug == org.Slug })
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			out = existing[0]
			return nil
		}
		row := *org
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		out, err = r.t.insertTx(tx, coreScope, &row)
		return err
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create organization", goerr.V(model.OrgKey, org.Slug))
	}
	return out, nil
}

func (r *organizationRepository) Get(ctx context.Context, slug string) (*model.Organization, error) {
	org, err := r.t.first(ctx, coreScope, nil, func(o *model.Organization) bool { return o.Slug == slug })
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "organization not found", goerr.V(model.OrgKey, slug))
	}
	return org, nil
}

func (r *organizationRepository) List(ctx context.Context) ([]*model.Organization, error) {
	return r.t.find(ctx, coreScope, nil, nil)
}

type userRepository struct {
	t *table[model.User]
}

func newUserRepository(s *store) *userRepository {
	return &userRepository{
		t: newTable(s, "users", "user",
			func(u *model.User) int64 { return u.ID },
			func(u *model.User, id int64) { u.ID = id },
			nil),
	}
}

func (r *userRepository) Upsert(ctx context.Context, u *model.User) (*model.User, error) {
	var out *model.User
	err := r.t.tx(ctx, func(tx *firestore.Transaction) error {
		rows, err := r.t.findTx(tx, coreScope, nil, func(v *model.User) bool { return v.Email == u.Email })
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			row := *u
			if row.CreatedAt.IsZero() {
				row.CreatedAt = time.Now().UTC()
			}
			out, err = r.t.insertTx(tx, coreScope, &row)
			return err
		}

		existing := rows[0]
		if u.Role != "" {
			existing.Role = u.Role
		}
		for _, org := range u.Organizations {
			if !existing.BelongsTo(org) {
				existing.Organizations = append(existing.Organizations, org)
			}
		}
		out = existing
		return r.t.putTx(tx, coreScope, existing)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to upsert user", goerr.V(model.EmailKey, u.Email))
	}
	return out, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := r.t.first(ctx, coreScope, nil, func(v *model.User) bool { return v.Email == email })
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "user not found", goerr.V(model.EmailKey, email))
	}
	return u, nil
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	return r.t.find(ctx, coreScope, nil, nil)
}
