package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

type organizationRepository struct {
	mu   sync.RWMutex
	orgs map[string]*model.Organization
	next int64
}

func newOrganizationRepository() *organizationRepository {
	return &organizationRepository{orgs: make(map[string]*model.Organization), next: 1}
}

func (r *organizationRepository) Create(ctx context.Context, org *model.Organization) (*model.Organization, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.orgs[org.Slug]; ok {
		return clone(existing), nil
	}
	row := clone(org)
	row.ID = r.next
	r.next++
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	r.orgs[row.Slug] = row
	return clone(row), nil
}

func (r *organizationRepository) Get(ctx context.Context, slug string) (*model.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.orgs[slug]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "organization not found", goerr.V(model.OrgKey, slug))
	}
	return clone(org), nil
}

func (r *organizationRepository) List(ctx context.Context) ([]*model.Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Organization, 0, len(r.orgs))
	for _, org := range r.orgs {
		out = append(out, clone(org))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type userRepository struct {
	mu    sync.RWMutex
	users map[string]*model.User
	next  int64
}

func newUserRepository() *userRepository {
	return &userRepository{users: make(map[string]*model.User), next: 1}
}

func (r *userRepository) Upsert(ctx context.Context, u *model.User) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.users[u.Email]
	if !ok {
		row := clone(u)
		row.ID = r.next
		r.next++
		if row.CreatedAt.IsZero() {
			row.CreatedAt = time.Now().UTC()
		}
		r.users[row.Email] = row
		return clone(row), nil
	}

	if u.Role != "" {
		existing.Role = u.Role
	}
	for _, org := range u.Organizations {
		if !existing.BelongsTo(org) {
			existing.Organizations = append(existing.Organizations, org)
		}
	}
	return clone(existing), nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[email]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "user not found", goerr.V(model.EmailKey, email))
	}
	return clone(u), nil
}

func (r *userRepository) List(ctx context.Context) ([]*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, clone(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
