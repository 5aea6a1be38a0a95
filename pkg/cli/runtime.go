package cli

import (
	"context"
	"slices"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/cli/config"
	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/service/metrics"
	"github.com/Netflix/dispatch-sub000/pkg/service/plugin"
	"github.com/Netflix/dispatch-sub000/pkg/usecase"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// stack holds the flag groups every long running command needs
type stack struct {
	repoCfg    config.Repository
	secretCfg  config.Secret
	metricsCfg config.Metrics
	appCfg     config.App
}

func (s *stack) flags() []cli.Flag {
	var flags []cli.Flag
	flags = append(flags, s.repoCfg.Flags()...)
	flags = append(flags, s.secretCfg.Flags()...)
	flags = append(flags, s.metricsCfg.Flags()...)
	flags = append(flags, s.appCfg.Flags()...)
	return flags
}

// runtime is the wired engine of one command invocation
type runtime struct {
	repo     interfaces.Repository
	registry *plugin.Registry
	orgs     *model.OrganizationRegistry
	metrics  metrics.Recorder
	uc       *usecase.UseCases
}

func (r *runtime) Close() {
	r.uc.Wait()
	r.registry.Close()
	if err := r.repo.Close(); err != nil {
		logging.Default().Error("failed to close repository", "error", err.Error())
	}
}

func (s *stack) build(ctx context.Context) (*runtime, error) {
	logging.Default().Info("Configuration",
		"repository", s.repoCfg,
		"secret", s.secretCfg,
		"metrics", s.metricsCfg,
		"app", s.appCfg,
	)

	recorder, err := s.metricsCfg.Configure()
	if err != nil {
		return nil, err
	}
	secrets, err := s.secretCfg.Configure()
	if err != nil {
		return nil, err
	}
	ucOpts, err := s.appCfg.Options(recorder)
	if err != nil {
		return nil, err
	}

	repo, err := s.repoCfg.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize repository")
	}

	orgs, err := loadOrganizations(ctx, repo)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	registry := plugin.New(repo, plugin.WithSecrets(secrets))
	return &runtime{
		repo:     repo,
		registry: registry,
		orgs:     orgs,
		metrics:  recorder,
		uc:       usecase.New(repo, registry, orgs, ucOpts...),
	}, nil
}

// loadOrganizations reads the tenants from the core store
func loadOrganizations(ctx context.Context, repo interfaces.Repository) (*model.OrganizationRegistry, error) {
	list, err := repo.Organization().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list organizations")
	}
	orgs := model.NewOrganizationRegistry()
	for _, o := range list {
		orgs.Register(o)
	}
	if len(list) == 0 {
		logging.Default().Warn("No organization is configured; run `dispatch init` first")
	}
	return orgs, nil
}

func organizationSlugs(ctx context.Context, repo interfaces.Repository, extra ...string) ([]string, error) {
	list, err := repo.Organization().List(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list organizations")
	}
	slugs := slices.Clone(extra)
	for _, o := range list {
		if !slices.Contains(slugs, o.Slug) {
			slugs = append(slugs, o.Slug)
		}
	}
	return slugs, nil
}
