package plugin

import (
	"context"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/service/gcs"
	"github.com/Netflix/dispatch-sub000/pkg/service/github"
	"github.com/Netflix/dispatch-sub000/pkg/service/google"
	"github.com/Netflix/dispatch-sub000/pkg/service/ldap"
	"github.com/Netflix/dispatch-sub000/pkg/service/llm"
	"github.com/Netflix/dispatch-sub000/pkg/service/notion"
	"github.com/Netflix/dispatch-sub000/pkg/service/pagerduty"
	"github.com/Netflix/dispatch-sub000/pkg/service/rule"
	"github.com/Netflix/dispatch-sub000/pkg/service/slack"
)

// factory adapts a typed constructor to a Factory by decoding the
// configuration map into C
func factory[C any, P interfaces.Provider](build func(ctx context.Context, conf C) (P, error)) Factory {
	return func(ctx context.Context, raw map[string]any) (interfaces.Provider, error) {
		var conf C
		if err := model.DecodeConfiguration(raw, &conf); err != nil {
			return nil, err
		}
		p, err := build(ctx, conf)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Builtins returns the plugins shipped with dispatch
func Builtins() []Plugin {
	return []Plugin{
		{
			Slug:        slack.PluginSlug,
			Type:        types.ProviderTypeChat,
			Description: "Slack conversations, messages and modals",
			Factory: factory(func(_ context.Context, c model.ChatConfig) (*slack.Client, error) {
				return slack.New(c)
			}),
		},
		{
			Slug:        notion.PluginSlug,
			Type:        types.ProviderTypeDocument,
			Description: "Notion pages created from templates",
			Factory: factory(func(_ context.Context, c notion.Config) (*notion.Client, error) {
				return notion.New(c)
			}),
		},
		{
			Slug:        github.TicketPluginSlug,
			Type:        types.ProviderTypeTicket,
			Description: "GitHub issues mirroring subjects",
			Factory: factory(func(_ context.Context, c github.Config) (*github.TicketProvider, error) {
				return github.NewTicketProvider(c)
			}),
		},
		{
			Slug:        github.TaskPluginSlug,
			Type:        types.ProviderTypeTask,
			Description: "GitHub issues mirroring subject tasks",
			Factory: factory(func(_ context.Context, c github.Config) (*github.TaskProvider, error) {
				return github.NewTaskProvider(c)
			}),
		},
		{
			Slug:        github.MonitorPluginSlug,
			Type:        types.ProviderTypeMonitor,
			Description: "Status of GitHub issues and pull requests posted in conversations",
			Factory: factory(func(_ context.Context, c github.Config) (*github.MonitorProvider, error) {
				return github.NewMonitorProvider(c)
			}),
		},
		{
			Slug:        gcs.PluginSlug,
			Type:        types.ProviderTypeStorage,
			Description: "Google Cloud Storage folders",
			Factory: factory(func(ctx context.Context, c gcs.Config) (*gcs.Client, error) {
				return gcs.New(ctx, c)
			}),
		},
		{
			Slug:        google.GroupPluginSlug,
			Type:        types.ProviderTypeGroup,
			Description: "Google Workspace mailing groups",
			Factory: factory(func(ctx context.Context, c google.Config) (*google.GroupProvider, error) {
				return google.NewGroupProvider(ctx, c)
			}),
		},
		{
			Slug:        google.ConferencePluginSlug,
			Type:        types.ProviderTypeConference,
			Description: "Google Calendar events with Meet conferences",
			Factory: factory(func(ctx context.Context, c google.Config) (*google.ConferenceProvider, error) {
				return google.NewConferenceProvider(ctx, c)
			}),
		},
		{
			Slug:        google.EmailPluginSlug,
			Type:        types.ProviderTypeEmail,
			Description: "Gmail notifications",
			Factory: factory(func(ctx context.Context, c google.Config) (*google.EmailProvider, error) {
				return google.NewEmailProvider(ctx, c)
			}),
		},
		{
			Slug:        ldap.PluginSlug,
			Type:        types.ProviderTypeContact,
			Description: "LDAP directory lookups",
			Factory: factory(func(_ context.Context, c ldap.Config) (*ldap.Client, error) {
				return ldap.New(c)
			}),
		},
		{
			Slug:        pagerduty.PluginSlug,
			Type:        types.ProviderTypeOncall,
			Description: "PagerDuty on-call resolution and paging",
			Factory: factory(func(_ context.Context, c pagerduty.Config) (*pagerduty.Client, error) {
				return pagerduty.New(c)
			}),
		},
		{
			Slug:        llm.PluginSlug,
			Type:        types.ProviderTypeAI,
			Description: "Gemini, OpenAI or Claude through gollem",
			Factory: factory(func(ctx context.Context, c llm.Config) (*llm.Client, error) {
				return llm.New(ctx, c)
			}),
		},
		{
			Slug:        rule.ParticipantPluginSlug,
			Type:        types.ProviderTypeParticipantResolver,
			Description: "Participants suggested by filter rules",
			Factory: factory(func(_ context.Context, c rule.ParticipantConfig) (*rule.ParticipantResolver, error) {
				return rule.NewParticipantResolver(c)
			}),
		},
		{
			Slug:        rule.DocumentPluginSlug,
			Type:        types.ProviderTypeDocumentResolver,
			Description: "Reference documents selected by their filters",
			Factory: factory(func(_ context.Context, _ struct{}) (*rule.DocumentResolver, error) {
				return rule.NewDocumentResolver(), nil
			}),
		},
	}
}
