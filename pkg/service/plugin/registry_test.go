package plugin_test

import (
	"context"
	"errors"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/repository/memory"
	"github.com/Netflix/dispatch-sub000/pkg/service/plugin"
	"github.com/Netflix/dispatch-sub000/pkg/service/secret"
)

const org = "default"

type fakeTicket struct {
	token  string
	closed bool
}

func (f *fakeTicket) Slug() string             { return "fake-ticket" }
func (f *fakeTicket) Type() types.ProviderType { return types.ProviderTypeTicket }
func (f *fakeTicket) Close() error {
	f.closed = true
	return nil
}

func newRegistry(t *testing.T, built *[]*fakeTicket) (*plugin.Registry, *memory.Memory) {
	t.Helper()
	repo := memory.New()
	secrets := secret.NewEnv(func(name string) (string, bool) {
		if name == "TICKET_TOKEN" {
			return "s3cr3t", true
		}
		return "", false
	})
	reg := plugin.New(repo, plugin.WithSecrets(secrets), plugin.WithPlugins(plugin.Plugin{
		Slug: "fake-ticket",
		Type: types.ProviderTypeTicket,
		Factory: func(ctx context.Context, conf map[string]any) (interfaces.Provider, error) {
			token, _ := conf["token"].(string)
			p := &fakeTicket{token: token}
			*built = append(*built, p)
			return p, nil
		},
	}))
	return reg, repo
}

func TestActive(t *testing.T) {
	var built []*fakeTicket
	reg, repo := newRegistry(t, &built)
	ctx := context.Background()

	p, err := reg.Active(ctx, org, 1, types.ProviderTypeTicket)
	gt.NoError(t, err).Required()
	gt.Value(t, p).Nil()

	_, err = repo.PluginInstance().Create(ctx, org, &model.PluginInstance{
		CatalogBase:   model.CatalogBase{ProjectID: 1, Name: "tickets", Enabled: true},
		Type:          types.ProviderTypeTicket,
		Plugin:        "fake-ticket",
		Configuration: map[string]any{"token": "secret://TICKET_TOKEN"},
	})
	gt.NoError(t, err).Required()

	// the empty result above is cached until invalidated
	p, err = reg.Active(ctx, org, 1, types.ProviderTypeTicket)
	gt.NoError(t, err).Required()
	gt.Value(t, p).Nil()

	reg.Invalidate(org, 1)
	p, err = reg.Active(ctx, org, 1, types.ProviderTypeTicket)
	gt.NoError(t, err).Required()
	gt.Value(t, p.Slug()).Equal("fake-ticket")
	gt.Array(t, built).Length(1).Required()
	gt.Value(t, built[0].token).Equal("s3cr3t")

	_, err = reg.Active(ctx, org, 1, types.ProviderTypeTicket)
	gt.NoError(t, err).Required()
	gt.Array(t, built).Length(1)

	reg.Invalidate(org, 1)
	gt.Bool(t, built[0].closed).True()

	t.Run("typed lookup", func(t *testing.T) {
		_, err := plugin.Active[interfaces.TicketProvider](ctx, reg, org, 1, types.ProviderTypeTicket)
		gt.Value(t, err).NotNil()

		none, err := plugin.Active[interfaces.ChatProvider](ctx, reg, org, 1, types.ProviderTypeChat)
		gt.NoError(t, err).Required()
		gt.Value(t, none).Nil()
	})
}

func TestDisabledAndUnknownPlugins(t *testing.T) {
	var built []*fakeTicket
	reg, repo := newRegistry(t, &built)
	ctx := context.Background()

	_, err := repo.PluginInstance().Create(ctx, org, &model.PluginInstance{
		CatalogBase: model.CatalogBase{ProjectID: 2, Name: "off", Enabled: false},
		Type:        types.ProviderTypeTicket,
		Plugin:      "fake-ticket",
	})
	gt.NoError(t, err).Required()

	all, err := reg.AllEnabled(ctx, org, 2, types.ProviderTypeTicket)
	gt.NoError(t, err).Required()
	gt.Array(t, all).Length(0)

	_, err = repo.PluginInstance().Create(ctx, org, &model.PluginInstance{
		CatalogBase: model.CatalogBase{ProjectID: 3, Name: "ghost", Enabled: true},
		Type:        types.ProviderTypeTicket,
		Plugin:      "ghost-ticket",
	})
	gt.NoError(t, err).Required()
	_, err = reg.Active(ctx, org, 3, types.ProviderTypeTicket)
	gt.Bool(t, errors.Is(err, model.ErrNotFound)).True()
}

func TestPluginsAndValidate(t *testing.T) {
	var built []*fakeTicket
	reg, _ := newRegistry(t, &built)

	plugins := reg.Plugins()
	gt.Bool(t, len(plugins) > 10).True()
	for i := 1; i < len(plugins); i++ {
		gt.Bool(t, plugins[i-1].Type <= plugins[i].Type).True()
	}

	gt.NoError(t, reg.Validate(&model.PluginInstance{Type: types.ProviderTypeChat, Plugin: "slack-conversation"}))

	var verr *model.ValidationError
	err := reg.Validate(&model.PluginInstance{Type: types.ProviderTypeTicket, Plugin: "slack-conversation"})
	gt.Bool(t, errors.As(err, &verr)).True()
	gt.Value(t, verr.Details[0].Loc).Equal("type")
}
