package plugin

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/secret"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
	"github.com/Netflix/dispatch-sub000/pkg/utils/safe"
)

// Factory builds a provider from a plugin instance configuration whose
// secrets are already resolved
type Factory func(ctx context.Context, conf map[string]any) (interfaces.Provider, error)

// Plugin describes an installable provider implementation
type Plugin struct {
	Slug        string
	Type        types.ProviderType
	Description string
	Factory     Factory
}

type cacheKey struct {
	org       string
	projectID int64
	typ       types.ProviderType
}

// Registry resolves the enabled plugin instances of a project into providers.
// Built providers are cached per (organization, project, type) until the
// project is invalidated.
type Registry struct {
	repo    interfaces.Repository
	secrets secret.Provider

	plugins map[string]Plugin

	mu    sync.Mutex
	cache map[cacheKey][]interfaces.Provider
}

var _ interfaces.PluginRegistry = (*Registry)(nil)

// Option configures the registry
type Option func(*Registry)

// WithSecrets sets the provider resolving secret:// configuration values
func WithSecrets(p secret.Provider) Option {
	return func(r *Registry) {
		r.secrets = p
	}
}

// WithPlugins registers additional plugins, replacing builtins of the same slug
func WithPlugins(plugins ...Plugin) Option {
	return func(r *Registry) {
		for _, p := range plugins {
			r.plugins[p.Slug] = p
		}
	}
}

// New creates a registry with the builtin plugins
func New(repo interfaces.Repository, opts ...Option) *Registry {
	r := &Registry{
		repo:    repo,
		secrets: secret.NewEnv(nil),
		plugins: make(map[string]Plugin),
		cache:   make(map[cacheKey][]interfaces.Provider),
	}
	for _, p := range Builtins() {
		r.plugins[p.Slug] = p
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plugins returns the known plugins ordered by type and slug
func (r *Registry) Plugins() []Plugin {
	out := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Plugin) int {
		if c := strings.Compare(string(a.Type), string(b.Type)); c != 0 {
			return c
		}
		return strings.Compare(a.Slug, b.Slug)
	})
	return out
}

// Lookup returns the plugin registered under slug
func (r *Registry) Lookup(slug string) (Plugin, bool) {
	p, ok := r.plugins[slug]
	return p, ok
}

// Validate checks that an instance names a known plugin of its type
func (r *Registry) Validate(inst *model.PluginInstance) error {
	p, ok := r.plugins[inst.Plugin]
	if !ok {
		return model.NewValidationError("plugin", "unknown plugin "+inst.Plugin)
	}
	if p.Type != inst.Type {
		return model.NewValidationError("type", "plugin "+inst.Plugin+" provides "+string(p.Type))
	}
	return nil
}

// Active returns the single enabled provider of the type for the project, or
// nil, nil when none is configured
func (r *Registry) Active(ctx context.Context, org string, projectID int64, t types.ProviderType) (interfaces.Provider, error) {
	providers, err := r.AllEnabled(ctx, org, projectID, t)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, nil
	}
	if len(providers) > 1 {
		logging.From(ctx).Warn("more than one enabled plugin instance, using the first",
			"organization", org, "project_id", projectID, "type", t, "plugin", providers[0].Slug())
	}
	return providers[0], nil
}

// AllEnabled returns every enabled provider of the type, ordered by instance id
func (r *Registry) AllEnabled(ctx context.Context, org string, projectID int64, t types.ProviderType) ([]interfaces.Provider, error) {
	key := cacheKey{org: org, projectID: projectID, typ: t}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.cache[key]; ok {
		return cached, nil
	}

	instances, err := r.repo.PluginInstance().List(ctx, org, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list plugin instances",
			goerr.V(model.OrgKey, org), goerr.V(model.ProjectIDKey, projectID))
	}

	var providers []interfaces.Provider
	for _, inst := range instances {
		if !inst.Enabled || inst.Type != t {
			continue
		}
		p, err := r.build(ctx, inst)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to build provider",
				goerr.V(model.OrgKey, org), goerr.V(model.ProjectIDKey, projectID), goerr.V(model.PluginKey, inst.Plugin))
		}
		providers = append(providers, p)
	}

	r.cache[key] = providers
	return providers, nil
}

func (r *Registry) build(ctx context.Context, inst *model.PluginInstance) (interfaces.Provider, error) {
	p, ok := r.plugins[inst.Plugin]
	if !ok {
		return nil, goerr.Wrap(model.ErrNotFound, "plugin is not installed")
	}
	if p.Type != inst.Type {
		return nil, goerr.New("plugin type mismatch", goerr.V("expected", p.Type), goerr.V("actual", inst.Type))
	}

	conf, err := secret.Resolve(ctx, r.secrets, inst.Configuration)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to resolve plugin secrets")
	}
	if conf == nil {
		conf = map[string]any{}
	}
	return p.Factory(ctx, conf)
}

// Invalidate drops the cached providers of the project, closing those that
// hold connections
func (r *Registry) Invalidate(org string, projectID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, providers := range r.cache {
		if key.org != org || key.projectID != projectID {
			continue
		}
		for _, p := range providers {
			if c, ok := p.(io.Closer); ok {
				safe.Close(context.Background(), c)
			}
		}
		delete(r.cache, key)
	}
}

// Close releases every cached provider
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, providers := range r.cache {
		for _, p := range providers {
			if c, ok := p.(io.Closer); ok {
				safe.Close(context.Background(), c)
			}
		}
		delete(r.cache, key)
	}
}

// Active returns the typed active provider of the project. It returns the
// zero value and nil when none is configured.
func Active[T interfaces.Provider](ctx context.Context, reg interfaces.PluginRegistry, org string, projectID int64, t types.ProviderType) (T, error) {
	var zero T
	p, err := reg.Active(ctx, org, projectID, t)
	if err != nil || p == nil {
		return zero, err
	}
	typed, ok := p.(T)
	if !ok {
		return zero, goerr.New("provider does not implement the requested capability",
			goerr.V(model.PluginKey, p.Slug()), goerr.V("type", t))
	}
	return typed, nil
}
