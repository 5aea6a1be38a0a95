package worker

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/plugin"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// IndividualRefreshWorker periodically refreshes individual profiles of every
// project from the project's contact provider.
//
// Assumes a single scheduler instance; concurrent instances only duplicate
// the lookups.
type IndividualRefreshWorker struct {
	repo     interfaces.Repository
	registry interfaces.PluginRegistry
	orgs     *model.OrganizationRegistry
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewIndividualRefreshWorker creates a profile refresh worker
func NewIndividualRefreshWorker(repo interfaces.Repository, registry interfaces.PluginRegistry, orgs *model.OrganizationRegistry, interval time.Duration) *IndividualRefreshWorker {
	return &IndividualRefreshWorker{
		repo:     repo,
		registry: registry,
		orgs:     orgs,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the refresh loop in the background. The first refresh runs
// immediately.
func (w *IndividualRefreshWorker) Start(ctx context.Context) {
	logging.Default().Info("individual refresh worker starting", "interval", w.interval.String())
	go w.run(ctx)
}

// Stop signals the worker to stop and waits for the loop to end
func (w *IndividualRefreshWorker) Stop() {
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("individual refresh worker stopped")
}

func (w *IndividualRefreshWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	if _, err := w.Refresh(ctx); err != nil {
		logging.From(ctx).Error("initial individual refresh failed, retrying next interval", "error", err)
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.Refresh(ctx); err != nil {
				logging.From(ctx).Error("individual refresh failed, retrying next interval", "error", err)
			}
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Refresh performs one cycle over all organizations and returns how many
// individuals changed. A failing project is logged and skipped.
func (w *IndividualRefreshWorker) Refresh(ctx context.Context) (int, error) {
	start := time.Now()
	updated := 0
	for _, org := range w.orgs.Slugs() {
		projects, err := w.repo.Project().List(ctx, org)
		if err != nil {
			return updated, goerr.Wrap(err, "failed to list projects", goerr.V(model.OrgKey, org))
		}
		for _, project := range projects {
			n, err := w.refreshProject(ctx, org, project)
			if err != nil {
				logging.From(ctx).Warn("failed to refresh individuals of project",
					"organization", org, "project", project.Name, "error", err)
			}
			updated += n
		}
	}

	logging.From(ctx).Info("individual refresh completed",
		"updated", updated,
		"duration", time.Since(start).String())
	return updated, nil
}

func (w *IndividualRefreshWorker) refreshProject(ctx context.Context, org string, project *model.Project) (int, error) {
	contact, err := plugin.Active[interfaces.ContactProvider](ctx, w.registry, org, project.ID, types.ProviderTypeContact)
	if err != nil {
		return 0, err
	}
	if contact == nil {
		return 0, nil
	}

	individuals, err := w.repo.Individual().List(ctx, org, project.ID)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list individuals")
	}

	updated := 0
	for _, ind := range individuals {
		info, err := contact.Lookup(ctx, ind.Email)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return updated, goerr.Wrap(err, "failed to look up individual", goerr.V(model.EmailKey, ind.Email))
		}
		if !applyContact(ind, info) {
			continue
		}
		if _, err := w.repo.Individual().Upsert(ctx, org, ind); err != nil {
			return updated, goerr.Wrap(err, "failed to save individual", goerr.V(model.EmailKey, ind.Email))
		}
		updated++
	}
	return updated, nil
}

// applyContact copies non-empty directory attributes onto ind and reports
// whether anything changed
func applyContact(ind *model.Individual, info *model.ContactInfo) bool {
	changed := false
	set := func(dst *string, v string) {
		if v != "" && *dst != v {
			*dst = v
			changed = true
		}
	}
	set(&ind.Name, info.Name)
	set(&ind.Title, info.Title)
	set(&ind.Team, info.Team)
	set(&ind.Location, info.Location)
	set(&ind.Weblink, info.Weblink)
	return changed
}
