package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// CreatePrompt stores a prompt override. Enabling a second prompt of the
// same type in a project fails with a state conflict and writes nothing.
func (uc *UseCases) CreatePrompt(ctx context.Context, org string, p *model.Prompt) (*model.Prompt, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if _, err := uc.getProject(ctx, org, p.ProjectID); err != nil {
		return nil, err
	}
	now := uc.now()
	p.CreatedAt, p.UpdatedAt = now, now
	created, err := uc.repo.Prompt().Create(ctx, org, p)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create prompt", goerr.V(model.GenAITypeKey, p.GenAIType))
	}
	return created, nil
}

// UpdatePrompt replaces a prompt override under the same rule as CreatePrompt
func (uc *UseCases) UpdatePrompt(ctx context.Context, org string, p *model.Prompt) (*model.Prompt, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	existing, err := uc.repo.Prompt().Get(ctx, org, p.ID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get prompt", goerr.V("prompt_id", p.ID))
	}
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = uc.now()
	updated, err := uc.repo.Prompt().Update(ctx, org, p)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to update prompt", goerr.V(model.GenAITypeKey, p.GenAIType))
	}
	return updated, nil
}

// GetPrompt returns the prompt with id
func (uc *UseCases) GetPrompt(ctx context.Context, org string, id int64) (*model.Prompt, error) {
	p, err := uc.repo.Prompt().Get(ctx, org, id)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get prompt", goerr.V("prompt_id", id))
	}
	return p, nil
}

// ListPrompts returns the prompt overrides of a project
func (uc *UseCases) ListPrompts(ctx context.Context, org string, projectID int64) ([]*model.Prompt, error) {
	prompts, err := uc.repo.Prompt().List(ctx, org, projectID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list prompts", goerr.V(model.ProjectIDKey, projectID))
	}
	return prompts, nil
}

// DeletePrompt removes a prompt override
func (uc *UseCases) DeletePrompt(ctx context.Context, org string, id int64) error {
	if err := uc.repo.Prompt().Delete(ctx, org, id); err != nil {
		return goerr.Wrap(err, "failed to delete prompt", goerr.V("prompt_id", id))
	}
	return nil
}

// DefaultPrompt returns the built-in prompt and system message of a type
func DefaultPrompt(t types.GenAIType) (prompt, system string) {
	d := defaultPrompts[t]
	return d[0], d[1]
}
