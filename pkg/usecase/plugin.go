package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

// PluginValidator checks an instance against the installed plugins
type PluginValidator interface {
	Validate(inst *model.PluginInstance) error
}

// ListPluginInstances returns the plugin instances of a project
func (uc *UseCases) ListPluginInstances(ctx context.Context, org string, projectID int64) ([]*model.PluginInstance, error) {
	instances, err := uc.repo.PluginInstance().List(ctx, org, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list plugin instances", goerr.V(model.ProjectIDKey, projectID))
	}
	return instances, nil
}

// UpdatePluginInstance stores the instance and drops the providers cached
// for its project so the next request builds them from the new settings.
func (uc *UseCases) UpdatePluginInstance(ctx context.Context, org string, inst *model.PluginInstance) (*model.PluginInstance, error) {
	existing, err := uc.repo.PluginInstance().Get(ctx, org, inst.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get plugin instance", goerr.V("plugin_instance_id", inst.ID))
	}
	inst.ProjectID = existing.ProjectID
	inst.CreatedAt = existing.CreatedAt
	if inst.Plugin == "" {
		inst.Plugin = existing.Plugin
	}
	if inst.Type == "" {
		inst.Type = existing.Type
	}
	if v, ok := uc.registry.(PluginValidator); ok {
		if err := v.Validate(inst); err != nil {
			return nil, err
		}
	}

	updated, err := uc.repo.PluginInstance().Update(ctx, org, inst)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update plugin instance", goerr.V("plugin_instance_id", inst.ID))
	}
	uc.registry.Invalidate(org, updated.ProjectID)
	return updated, nil
}
