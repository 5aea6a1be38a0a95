package usecase

import (
	"context"
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/plugin"
	"github.com/Netflix/dispatch-sub000/pkg/utils/retry"
)

// chatConfigurer is implemented by chat providers exposing their
// configuration
type chatConfigurer interface {
	Config() *model.ChatConfig
}

func active[T interfaces.Provider](ctx context.Context, uc *UseCases, org string, projectID int64, t types.ProviderType) (T, error) {
	return plugin.Active[T](ctx, uc.registry, org, projectID, t)
}

func (uc *UseCases) chat(ctx context.Context, org string, projectID int64) (interfaces.ChatProvider, error) {
	return active[interfaces.ChatProvider](ctx, uc, org, projectID, types.ProviderTypeChat)
}

// chatConfig returns the configuration of the project's chat provider, or
// an empty configuration when none is set
func (uc *UseCases) chatConfig(ctx context.Context, org string, projectID int64) (*model.ChatConfig, error) {
	chat, err := uc.chat(ctx, org, projectID)
	if err != nil {
		return nil, err
	}
	if c, ok := chat.(chatConfigurer); ok && c.Config() != nil {
		return c.Config(), nil
	}

	instances, err := uc.repo.PluginInstance().List(ctx, org, projectID)
	if err != nil {
		return nil, err
	}
	for _, inst := range instances {
		if inst.Enabled && inst.Type == types.ProviderTypeChat {
			var conf model.ChatConfig
			if err := model.DecodeConfiguration(inst.Configuration, &conf); err != nil {
				return nil, err
			}
			return &conf, nil
		}
	}
	return &model.ChatConfig{}, nil
}

// call runs a provider operation with the retry policy and records its
// duration
func (uc *UseCases) call(ctx context.Context, p interfaces.Provider, op string, fn func() error) error {
	start := time.Now()
	err := retry.Exec(ctx, p.Slug()+"."+op, fn)
	uc.metrics.ProviderCall(p.Slug(), op, err, time.Since(start))
	return err
}

func callValue[T any](ctx context.Context, uc *UseCases, p interfaces.Provider, op string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := retry.Do(ctx, p.Slug()+"."+op, fn)
	uc.metrics.ProviderCall(p.Slug(), op, err, time.Since(start))
	return v, err
}
