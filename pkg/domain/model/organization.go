package model

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// CoreSchema is the schema holding cross-tenant tables
const CoreSchema = "core"

// DefaultSchemaPrefix prefixes every organization schema
const DefaultSchemaPrefix = "dispatch_organization"

var slugPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Organization is the top-level tenant. Each organization owns its own schema.
type Organization struct {
	ID          int64     `json:"id"`
	Slug        string    `json:"slug"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Default     bool      `json:"default"`
	CreatedAt   time.Time `json:"created_at"`
}

// ValidateOrganizationSlug checks that slug can be embedded in a schema name
func ValidateOrganizationSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return goerr.Wrap(ErrInvalidInput, "organization slug must match ^[a-z][a-z0-9_]*$", goerr.V(OrgKey, slug))
	}
	return nil
}

// SlugifyOrganization turns a display name into a valid organization slug
func SlugifyOrganization(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out == "" || out[0] < 'a' || out[0] > 'z' {
		out = "org_" + out
	}
	return out
}

// SchemaName returns the per-organization schema name <prefix>_<slug>
func SchemaName(prefix, slug string) string {
	if prefix == "" {
		prefix = DefaultSchemaPrefix
	}
	return prefix + "_" + slug
}

// User is a cross-tenant system user stored in the core schema
type User struct {
	ID            int64          `json:"id"`
	Email         string         `json:"email"`
	Role          types.UserRole `json:"role"`
	Organizations []string       `json:"organizations"`
	CreatedAt     time.Time      `json:"created_at"`
}

// BelongsTo reports whether the user is a member of the organization
func (u *User) BelongsTo(org string) bool {
	for _, o := range u.Organizations {
		if o == org {
			return true
		}
	}
	return false
}

// OrganizationRegistry caches the known organizations in registration order.
// It holds settings only; it is refreshed from the store at startup and after
// init.
type OrganizationRegistry struct {
	mu      sync.RWMutex
	entries map[string]*Organization
	order   []string
}

// NewOrganizationRegistry creates an empty registry
func NewOrganizationRegistry() *OrganizationRegistry {
	return &OrganizationRegistry{entries: make(map[string]*Organization)}
}

// Register adds or replaces an organization
func (r *OrganizationRegistry) Register(org *Organization) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[org.Slug]; !exists {
		r.order = append(r.order, org.Slug)
	}
	r.entries[org.Slug] = org
}

// Get returns the organization by slug
func (r *OrganizationRegistry) Get(slug string) (*Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	org, ok := r.entries[slug]
	if !ok {
		return nil, goerr.Wrap(ErrNotFound, "organization not found", goerr.V(OrgKey, slug))
	}
	return org, nil
}

// List returns all organizations in registration order
func (r *OrganizationRegistry) List() []*Organization {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Organization, 0, len(r.order))
	for _, slug := range r.order {
		out = append(out, r.entries[slug])
	}
	return out
}

// Slugs returns the slugs of all organizations in registration order
func (r *OrganizationRegistry) Slugs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Default returns the organization marked default, or the first registered
func (r *OrganizationRegistry) Default() (*Organization, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, slug := range r.order {
		if r.entries[slug].Default {
			return r.entries[slug], nil
		}
	}
	if len(r.order) > 0 {
		return r.entries[r.order[0]], nil
	}
	return nil, goerr.Wrap(ErrNotFound, "no organization registered")
}
