package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type organizationRepository struct {
	db *Postgres
}

func (r *organizationRepository) Create(ctx context.Context, org *model.Organization) (*model.Organization, error) {
	row := *org
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(&row)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal organization")
	}

	var id int64
	err = r.db.q(ctx).QueryRow(ctx,
		`INSERT INTO `+r.db.coreTable("organization")+` (slug, data, created_at) VALUES ($1, $2, $3)
		 ON CONFLICT (slug) DO NOTHING RETURNING id`,
		row.Slug, data, row.CreatedAt).Scan(&id)
	if isNoRows(err) {
		return r.Get(ctx, row.Slug)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create organization", goerr.V(model.OrgKey, row.Slug))
	}
	row.ID = id
	return &row, nil
}

func (r *organizationRepository) Get(ctx context.Context, slug string) (*model.Organization, error) {
	var (
		id   int64
		data []byte
	)
	err := r.db.q(ctx).QueryRow(ctx,
		`SELECT id, data FROM `+r.db.coreTable("organization")+` WHERE slug = $1`, slug).Scan(&id, &data)
	if isNoRows(err) {
		return nil, goerr.Wrap(model.ErrNotFound, "organization not found", goerr.V(model.OrgKey, slug))
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get organization", goerr.V(model.OrgKey, slug))
	}
	var org model.Organization
	if err := json.Unmarshal(data, &org); err != nil {
		return nil, goerr.Wrap(err, "failed to decode organization", goerr.V(model.OrgKey, slug))
	}
	org.ID = id
	return &org, nil
}

func (r *organizationRepository) List(ctx context.Context) ([]*model.Organization, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT id, data FROM `+r.db.coreTable("organization")+` ORDER BY id`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list organizations")
	}
	defer rows.Close()

	out := []*model.Organization{}
	for rows.Next() {
		var (
			id   int64
			data []byte
			org  model.Organization
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan organization")
		}
		if err := json.Unmarshal(data, &org); err != nil {
			return nil, goerr.Wrap(err, "failed to decode organization", goerr.V("id", id))
		}
		org.ID = id
		out = append(out, &org)
	}
	return out, rows.Err()
}

type userRepository struct {
	db *Postgres
}

func (r *userRepository) Upsert(ctx context.Context, u *model.User) (*model.User, error) {
	var result *model.User
	err := r.db.WithTx(ctx, "", func(ctx context.Context) error {
		existing, err := r.get(ctx, u.Email, true)
		if err != nil {
			return err
		}

		row := *u
		if existing != nil {
			row = *existing
			if u.Role != "" {
				row.Role = u.Role
			}
			for _, org := range u.Organizations {
				if !row.BelongsTo(org) {
					row.Organizations = append(row.Organizations, org)
				}
			}
		} else if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}

		data, err := json.Marshal(&row)
		if err != nil {
			return goerr.Wrap(err, "failed to marshal user")
		}
		var id int64
		err = r.db.q(ctx).QueryRow(ctx,
			`INSERT INTO `+r.db.coreTable("dispatch_user")+` (email, data, created_at) VALUES ($1, $2, $3)
			 ON CONFLICT (email) DO UPDATE SET data = EXCLUDED.data RETURNING id`,
			row.Email, data, row.CreatedAt).Scan(&id)
		if err != nil {
			return goerr.Wrap(err, "failed to upsert user", goerr.V(model.EmailKey, row.Email))
		}
		row.ID = id
		result = &row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// get returns nil, nil when the user does not exist
func (r *userRepository) get(ctx context.Context, email string, forUpdate bool) (*model.User, error) {
	query := `SELECT id, data FROM ` + r.db.coreTable("dispatch_user") + ` WHERE email = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	var (
		id   int64
		data []byte
	)
	err := r.db.q(ctx).QueryRow(ctx, query, email).Scan(&id, &data)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get user", goerr.V(model.EmailKey, email))
	}
	var u model.User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, goerr.Wrap(err, "failed to decode user", goerr.V(model.EmailKey, email))
	}
	u.ID = id
	return &u, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := r.get(ctx, email, false)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, goerr.Wrap(model.ErrNotFound, "user not found", goerr.V(model.EmailKey, email))
	}
	return u, nil
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.q(ctx).Query(ctx, `SELECT id, data FROM `+r.db.coreTable("dispatch_user")+` ORDER BY id`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list users")
	}
	defer rows.Close()

	out := []*model.User{}
	for rows.Next() {
		var (
			id   int64
			data []byte
			u    model.User
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, goerr.Wrap(err, "failed to scan user")
		}
		if err := json.Unmarshal(data, &u); err != nil {
			return nil, goerr.Wrap(err, "failed to decode user", goerr.V("id", id))
		}
		u.ID = id
		out = append(out, &u)
	}
	return out, rows.Err()
}
