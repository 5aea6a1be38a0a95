package config

import (
	"context"
	"errors"

	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// PluginValidator checks that a plugin instance names a registered plugin of
// the right type
type PluginValidator interface {
	Validate(inst *model.PluginInstance) error
}

// Apply writes the configuration into repo. Entries are matched by name, so
// applying the same file twice updates rows in place. The stores of the
// organizations must already be migrated.
func (b *Bootstrap) Apply(ctx context.Context, repo interfaces.Repository, plugins PluginValidator) error {
	for _, o := range b.Organizations {
		slug := o.slug()
		name := o.Name
		if name == "" {
			name = slug
		}
		if _, err := repo.Organization().Create(ctx, &model.Organization{
			Slug:        slug,
			Name:        name,
			Description: o.Description,
			Default:     o.Default,
		}); err != nil {
			return goerr.Wrap(err, "failed to create organization", goerr.V(model.OrgKey, slug))
		}

		for _, u := range o.Users {
			role := types.UserRole(u.Role)
			if role == "" {
				role = types.UserRoleMember
			}
			if _, err := repo.User().Upsert(ctx, &model.User{
				Email:         u.Email,
				Role:          role,
				Organizations: []string{slug},
			}); err != nil {
				return goerr.Wrap(err, "failed to upsert user", goerr.V(model.OrgKey, slug), goerr.V(model.EmailKey, u.Email))
			}
		}

		for i := range o.Projects {
			s := &seeder{repo: repo, org: slug, plugins: plugins}
			if err := s.project(ctx, &o.Projects[i]); err != nil {
				return goerr.Wrap(err, "failed to seed project", goerr.V(model.OrgKey, slug), goerr.V(ProjectKey, o.Projects[i].Name))
			}
		}
		logging.From(ctx).Info("organization seeded", "organization", slug, "projects", len(o.Projects))
	}
	return nil
}

// upsertCatalog creates item or updates the project entry of the same name
func upsertCatalog[T model.CatalogItem](ctx context.Context, repo interfaces.CatalogRepository[T], org string, item T) (T, error) {
	existing, err := repo.List(ctx, org, item.GetProjectID())
	if err != nil {
		var zero T
		return zero, err
	}
	if found, ok := model.FindByName(existing, item.GetName()); ok {
		item.SetID(found.GetID())
		return repo.Update(ctx, org, item)
	}
	return repo.Create(ctx, org, item)
}

type seeder struct {
	repo      interfaces.Repository
	org       string
	plugins   PluginValidator
	projectID int64
	ids       map[string]map[string]int64
}

func (s *seeder) remember(section, name string, id int64) {
	if s.ids[section] == nil {
		s.ids[section] = map[string]int64{}
	}
	s.ids[section][name] = id
}

// id resolves a name validated by Bootstrap.Validate. Empty names map to 0.
func (s *seeder) id(section, name string) int64 {
	if name == "" {
		return 0
	}
	return s.ids[section][name]
}

func (s *seeder) idList(section string, list []string) []int64 {
	var out []int64
	for _, name := range list {
		out = append(out, s.id(section, name))
	}
	return out
}

func decodeFilter(raw map[string]any) (model.FilterExpr, error) {
	var expr model.FilterExpr
	if len(raw) == 0 {
		return expr, nil
	}
	if err := model.DecodeConfiguration(raw, &expr); err != nil {
		return expr, err
	}
	return expr, nil
}

func (s *seeder) project(ctx context.Context, cfg *Project) error {
	p, err := s.repo.Project().GetByName(ctx, s.org, cfg.Name)
	switch {
	case errors.Is(err, model.ErrNotFound):
		p = &model.Project{Name: cfg.Name}
	case err != nil:
		return err
	}

	p.Slug = model.Slugify(cfg.Name)
	p.Description = cfg.Description
	p.Default = cfg.Default
	p.AllowSelfJoin = cfg.AllowSelfJoin
	p.AnnualEmployeeCost = cfg.AnnualEmployeeCost
	p.BusinessYearHours = cfg.BusinessYearHours
	p.OwnerEmail = cfg.OwnerEmail
	p.OwnerConversation = cfg.OwnerConversation
	p.SendDailyReports = cfg.SendDailyReports
	p.DailyReportChannels = cfg.DailyReportChannels
	p.OpenDocumentsOnClose = cfg.OpenDocumentsOnClose
	p.ReadOnlyOnClose = cfg.ReadOnlyOnClose
	p.StorageFolderID = cfg.StorageFolderID
	p.DocumentFolderID = cfg.DocumentFolderID
	p.GroupDomain = cfg.GroupDomain

	if p.ID == 0 {
		p, err = s.repo.Project().Create(ctx, s.org, p)
	} else {
		p, err = s.repo.Project().Update(ctx, s.org, p)
	}
	if err != nil {
		return err
	}

	s.projectID = p.ID
	s.ids = map[string]map[string]int64{}

	steps := []func(context.Context, *Project) error{
		s.services,
		s.incidentCatalog,
		s.caseCatalog,
		s.tagCatalog,
		s.documents,
		s.signalCatalog,
		s.pluginInstances,
		s.notifications,
		s.prompts,
	}
	for _, step := range steps {
		if err := step(ctx, cfg); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) services(ctx context.Context, cfg *Project) error {
	for _, c := range cfg.Services {
		out, err := upsertCatalog(ctx, s.repo.Service(), s.org, &model.Service{
			CatalogBase: c.base(s.projectID),
			Type:        c.Type,
			ExternalID:  c.ExternalID,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to seed service", goerr.V(NameKey, c.Name))
		}
		s.remember("service", c.Name, out.ID)
	}
	return nil
}

func (s *seeder) incidentCatalog(ctx context.Context, cfg *Project) error {
	for _, c := range cfg.IncidentTypes {
		out, err := upsertCatalog(ctx, s.repo.IncidentType(), s.org, &model.IncidentType{
			CatalogBase:        c.base(s.projectID),
			Visibility:         types.Visibility(c.Visibility),
			DocumentTemplateID: c.DocumentTemplateID,
			ReviewTemplateID:   c.ReviewTemplateID,
			ExecutiveTemplate:  c.ExecutiveTemplate,
			TicketLabels:       c.TicketLabels,
			ExcludeFromMetrics: c.ExcludeFromMetrics,
			ChannelDescription: c.ChannelDescription,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to seed incident type", goerr.V(NameKey, c.Name))
		}
		s.remember("incident_type", c.Name, out.ID)
	}

	for _, c := range cfg.IncidentPriorities {
		out, err := upsertCatalog(ctx, s.repo.IncidentPriority(), s.org, &model.IncidentPriority{
			CatalogBase:             c.base(s.projectID),
			PageCommander:           c.PageCommander,
			TacticalReportReminder:  c.TacticalReportReminder,
			ExecutiveReportReminder: c.ExecutiveReportReminder,
			Color:                   c.Color,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to seed incident priority", goerr.V(NameKey, c.Name))
		}
		s.remember("incident_priority", c.Name, out.ID)
	}

	for _, c := range cfg.IncidentSeverities {
		if _, err := upsertCatalog(ctx, s.repo.IncidentSeverity(), s.org, &model.IncidentSeverity{
			CatalogBase: c.base(s.projectID),
			Color:       c.Color,
		}); err != nil {
			return goerr.Wrap(err, "failed to seed incident severity", goerr.V(NameKey, c.Name))
		}
	}
	return nil
}

func (s *seeder) caseCatalog(ctx context.Context, cfg *Project) error {
	for _, c := range cfg.CaseTypes {
		out, err := upsertCatalog(ctx, s.repo.CaseType(), s.org, &model.CaseType{
			CatalogBase:        c.base(s.projectID),
			Visibility:         types.Visibility(c.Visibility),
			ConversationTarget: c.ConversationTarget,
			DedicatedChannel:   c.DedicatedChannel,
			CreateAllResources: c.CreateAllResources,
			CaseTemplateID:     c.CaseTemplateID,
			OncallServiceID:    s.id("service", c.OncallService),
			IncidentTypeID:     s.id("incident_type", c.IncidentType),
			IncidentPriorityID: s.id("incident_priority", c.IncidentPriority),
		})
		if err != nil {
			return goerr.Wrap(err, "failed to seed case type", goerr.V(NameKey, c.Name))
		}
		s.remember("case_type", c.Name, out.ID)
	}

	for _, c := range cfg.CasePriorities {
		out, err := upsertCatalog(ctx, s.repo.CasePriority(), s.org, &model.CasePriority{
			CatalogBase:  c.base(s.projectID),
			PageAssignee: c.PageAssignee,
			Color:        c.Color,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to seed case priority", goerr.V(NameKey, c.Name))
		}
		s.remember("case_priority", c.Name, out.ID)
	}

	for _, c := range cfg.CaseSeverities {
		out, err := upsertCatalog(ctx, s.repo.CaseSeverity(), s.org, &model.CaseSeverity{
			CatalogBase: c.base(s.projectID),
			Color:       c.Color,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to seed case severity", goerr.V(NameKey, c.Name))
		}
		s.remember("case_severity", c.Name, out.ID)
	}
	return nil
}

func (s *seeder) tagCatalog(ctx context.Context, cfg *Project) error {
	for _, c := range cfg.TagTypes {
		out, err := upsertCatalog(ctx, s.repo.TagType(), s.org, &model.TagType{
			CatalogBase:          c.base(s.projectID),
			DiscoverableIncident: c.DiscoverableIncident,
			DiscoverableCase:     c.DiscoverableCase,
			GenAISuggestions:     c.GenAISuggestions,
			Exclusive:            c.Exclusive,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to seed tag type", goerr.V(NameKey, c.Name))
		}
		s.remember("tag_type", c.Name, out.ID)
	}

	for _, c := range cfg.Tags {
		out, err := upsertCatalog(ctx, s.repo.Tag(), s.org, &model.Tag{
			CatalogBase:  c.base(s.projectID),
			TagTypeID:    s.id("tag_type", c.TagType),
			Discoverable: c.Discoverable,
			ExternalID:   c.ExternalID,
			Source:       c.Source,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to seed tag", goerr.V(NameKey, c.Name))
		}
		s.remember("tag", c.Name, out.ID)
	}
	return nil
}

func (s *seeder) documents(ctx context.Context, cfg *Project) error {
	for _, c := range cfg.Documents {
		filter, err := decodeFilter(c.Filter)
		if err != nil {
			return goerr.Wrap(err, "invalid document filter", goerr.V(NameKey, c.Name))
		}
		if _, err := upsertCatalog(ctx, s.repo.Document(), s.org, &model.Document{
			CatalogBase:                   c.base(s.projectID),
			ResourceID:                    c.ResourceID,
			Weblink:                       c.Weblink,
			Filter:                        filter,
			Evergreen:                     c.Evergreen,
			EvergreenOwner:                c.EvergreenOwner,
			EvergreenReminderIntervalDays: c.EvergreenReminderIntervalDays,
		}); err != nil {
			return goerr.Wrap(err, "failed to seed document", goerr.V(NameKey, c.Name))
		}
	}
	return nil
}

func (s *seeder) signalCatalog(ctx context.Context, cfg *Project) error {
	for _, c := range cfg.EntityTypes {
		out, err := upsertCatalog(ctx, s.repo.EntityType(), s.org, &model.EntityType{
			CatalogBase: c.base(s.projectID),
			JPath:       c.JPath,
			Regex:       c.Regex,
			Global:      c.Global,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to seed entity type", goerr.V(NameKey, c.Name))
		}
		s.remember("entity_type", c.Name, out.ID)
	}

	for _, c := range cfg.SignalFilters {
		expr, err := decodeFilter(c.Expression)
		if err != nil {
			return goerr.Wrap(err, "invalid signal filter expression", goerr.V(NameKey, c.Name))
		}
		out, err := upsertCatalog(ctx, s.repo.SignalFilter(), s.org, &model.SignalFilter{
			CatalogBase: c.base(s.projectID),
			Action:      types.FilterAction(c.Action),
			Expression:  expr,
			Window:      c.Window,
			ExpiresAt:   c.ExpiresAt,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to seed signal filter", goerr.V(NameKey, c.Name))
		}
		s.remember("signal_filter", c.Name, out.ID)
	}

	for _, c := range cfg.Signals {
		if _, err := upsertCatalog(ctx, s.repo.Signal(), s.org, &model.Signal{
			CatalogBase:        c.base(s.projectID),
			Owner:              c.Owner,
			ExternalID:         c.ExternalID,
			Variant:            c.Variant,
			CaseTypeID:         s.id("case_type", c.CaseType),
			CasePriorityID:     s.id("case_priority", c.CasePriority),
			CaseSeverityID:     s.id("case_severity", c.CaseSeverity),
			CreateCase:         c.CreateCase,
			EntityTypeIDs:      s.idList("entity_type", c.EntityTypes),
			FilterIDs:          s.idList("signal_filter", c.Filters),
			TagIDs:             s.idList("tag", c.Tags),
			GenAIEnabled:       c.GenAIEnabled,
			GenAIModel:         c.GenAIModel,
			GenAIPrompt:        c.GenAIPrompt,
			GenAISystemMessage: c.GenAISystemMessage,
		}); err != nil {
			return goerr.Wrap(err, "failed to seed signal", goerr.V(NameKey, c.Name))
		}
	}
	return nil
}

func (s *seeder) pluginInstances(ctx context.Context, cfg *Project) error {
	for _, c := range cfg.Plugins {
		base := c.base(s.projectID)
		base.Name = c.name()
		inst := &model.PluginInstance{
			CatalogBase:   base,
			Type:          types.ProviderType(c.Type),
			Plugin:        c.Plugin,
			Configuration: c.Configuration,
		}
		if s.plugins != nil {
			if err := s.plugins.Validate(inst); err != nil {
				return goerr.Wrap(ErrInvalidProvider, err.Error(), goerr.V(NameKey, base.Name), goerr.V("plugin", c.Plugin))
			}
		}
		if _, err := upsertCatalog(ctx, s.repo.PluginInstance(), s.org, inst); err != nil {
			return goerr.Wrap(err, "failed to seed plugin instance", goerr.V(NameKey, base.Name))
		}
	}
	return nil
}

func (s *seeder) notifications(ctx context.Context, cfg *Project) error {
	for _, c := range cfg.Notifications {
		filter, err := decodeFilter(c.Filter)
		if err != nil {
			return goerr.Wrap(err, "invalid notification filter", goerr.V(NameKey, c.Name))
		}
		if _, err := upsertCatalog(ctx, s.repo.Notification(), s.org, &model.Notification{
			CatalogBase: c.base(s.projectID),
			Type:        types.NotificationTarget(c.Type),
			Targets:     c.Targets,
			SubjectKind: types.SubjectKind(c.SubjectKind),
			Filter:      filter,
			Restricted:  c.Restricted,
		}); err != nil {
			return goerr.Wrap(err, "failed to seed notification", goerr.V(NameKey, c.Name))
		}
	}
	return nil
}

func (s *seeder) prompts(ctx context.Context, cfg *Project) error {
	if len(cfg.Prompts) == 0 {
		return nil
	}
	existing, err := s.repo.Prompt().List(ctx, s.org, s.projectID)
	if err != nil {
		return goerr.Wrap(err, "failed to list prompts")
	}
	byType := map[types.GenAIType]*model.Prompt{}
	for _, p := range existing {
		if cur, ok := byType[p.GenAIType]; !ok || (p.Enabled && !cur.Enabled) {
			byType[p.GenAIType] = p
		}
	}

	for _, c := range cfg.Prompts {
		enabled := true
		if c.Enabled != nil {
			enabled = *c.Enabled
		}
		t := types.GenAIType(c.GenAIType)
		p := &model.Prompt{
			ProjectID:     s.projectID,
			GenAIType:     t,
			Prompt:        c.Prompt,
			SystemMessage: c.SystemMessage,
			Enabled:       enabled,
		}
		if cur, ok := byType[t]; ok {
			p.ID = cur.ID
			p.CreatedAt = cur.CreatedAt
			_, err = s.repo.Prompt().Update(ctx, s.org, p)
		} else {
			_, err = s.repo.Prompt().Create(ctx, s.org, p)
		}
		if err != nil {
			return goerr.Wrap(err, "failed to seed prompt", goerr.V("genai_type", c.GenAIType))
		}
	}
	return nil
}
