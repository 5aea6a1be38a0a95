package config

import (
	"errors"
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Bootstrap is the organization and project configuration seeded by `init`
type Bootstrap struct {
	Organizations []Organization `toml:"organization"`
}

// Organization is a tenant with its users and projects
type Organization struct {
	Slug        string    `toml:"slug"`
	Name        string    `toml:"name"`
	Description string    `toml:"description"`
	Default     bool      `toml:"default"`
	Users       []User    `toml:"user"`
	Projects    []Project `toml:"project"`
}

// User is a system user granted access to the organization
type User struct {
	Email string `toml:"email"`
	Role  string `toml:"role"`
}

// Project carries the project settings and its reference data. Entries refer
// to each other by name.
type Project struct {
	Name                 string   `toml:"name"`
	Description          string   `toml:"description"`
	Default              bool     `toml:"default"`
	AllowSelfJoin        bool     `toml:"allow_self_join"`
	AnnualEmployeeCost   float64  `toml:"annual_employee_cost"`
	BusinessYearHours    float64  `toml:"business_year_hours"`
	OwnerEmail           string   `toml:"owner_email"`
	OwnerConversation    string   `toml:"owner_conversation"`
	SendDailyReports     bool     `toml:"send_daily_reports"`
	DailyReportChannels  []string `toml:"daily_report_channels"`
	OpenDocumentsOnClose bool     `toml:"open_documents_on_close"`
	ReadOnlyOnClose      bool     `toml:"read_only_on_close"`
	StorageFolderID      string   `toml:"storage_folder_id"`
	DocumentFolderID     string   `toml:"document_folder_id"`
	GroupDomain          string   `toml:"group_domain"`

	IncidentTypes      []IncidentType     `toml:"incident_type"`
	IncidentPriorities []IncidentPriority `toml:"incident_priority"`
	IncidentSeverities []Severity         `toml:"incident_severity"`
	CaseTypes          []CaseType         `toml:"case_type"`
	CasePriorities     []CasePriority     `toml:"case_priority"`
	CaseSeverities     []Severity         `toml:"case_severity"`
	TagTypes           []TagType          `toml:"tag_type"`
	Tags               []Tag              `toml:"tag"`
	Services           []Service          `toml:"service"`
	Documents          []Document         `toml:"document"`
	EntityTypes        []EntityType       `toml:"entity_type"`
	SignalFilters      []SignalFilter     `toml:"signal_filter"`
	Signals            []Signal           `toml:"signal"`
	Plugins            []Plugin           `toml:"plugin"`
	Notifications      []Notification     `toml:"notification"`
	Prompts            []Prompt           `toml:"prompt"`
}

// Entry holds the attributes shared by every catalog entry
type Entry struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Default     bool   `toml:"default"`
	// Enabled defaults to true
	Enabled *bool `toml:"enabled"`
}

func (e Entry) base(projectID int64) model.CatalogBase {
	enabled := true
	if e.Enabled != nil {
		enabled = *e.Enabled
	}
	return model.CatalogBase{
		ProjectID:   projectID,
		Name:        e.Name,
		Description: e.Description,
		Default:     e.Default,
		Enabled:     enabled,
	}
}

type IncidentType struct {
	Entry
	Visibility         string   `toml:"visibility"`
	DocumentTemplateID string   `toml:"document_template_id"`
	ReviewTemplateID   string   `toml:"review_template_id"`
	ExecutiveTemplate  string   `toml:"executive_template_id"`
	TicketLabels       []string `toml:"ticket_labels"`
	ExcludeFromMetrics bool     `toml:"exclude_from_metrics"`
	ChannelDescription string   `toml:"channel_description"`
}

type IncidentPriority struct {
	Entry
	PageCommander           bool   `toml:"page_commander"`
	TacticalReportReminder  int    `toml:"tactical_report_reminder"`
	ExecutiveReportReminder int    `toml:"executive_report_reminder"`
	Color                   string `toml:"color"`
}

type Severity struct {
	Entry
	Color string `toml:"color"`
}

type CaseType struct {
	Entry
	Visibility         string `toml:"visibility"`
	ConversationTarget string `toml:"conversation_target"`
	DedicatedChannel   bool   `toml:"dedicated_channel"`
	CreateAllResources bool   `toml:"create_all_resources"`
	CaseTemplateID     string `toml:"case_template_id"`
	OncallService      string `toml:"oncall_service"`
	IncidentType       string `toml:"incident_type"`
	IncidentPriority   string `toml:"incident_priority"`
}

type CasePriority struct {
	Entry
	PageAssignee bool   `toml:"page_assignee"`
	Color        string `toml:"color"`
}

type TagType struct {
	Entry
	DiscoverableIncident bool `toml:"discoverable_incident"`
	DiscoverableCase     bool `toml:"discoverable_case"`
	GenAISuggestions     bool `toml:"genai_suggestions"`
	Exclusive            bool `toml:"exclusive"`
}

type Tag struct {
	Entry
	TagType      string `toml:"tag_type"`
	Discoverable bool   `toml:"discoverable"`
	ExternalID   string `toml:"external_id"`
	Source       string `toml:"source"`
}

type Service struct {
	Entry
	Type       string `toml:"type"`
	ExternalID string `toml:"external_id"`
}

type Document struct {
	Entry
	ResourceID                    string         `toml:"resource_id"`
	Weblink                       string         `toml:"weblink"`
	Filter                        map[string]any `toml:"filter"`
	Evergreen                     bool           `toml:"evergreen"`
	EvergreenOwner                string         `toml:"evergreen_owner"`
	EvergreenReminderIntervalDays int            `toml:"evergreen_reminder_interval"`
}

type EntityType struct {
	Entry
	JPath  string `toml:"jpath"`
	Regex  string `toml:"regular_expression"`
	Global bool   `toml:"global"`
}

type SignalFilter struct {
	Entry
	Action     string         `toml:"action"`
	Expression map[string]any `toml:"expression"`
	Window     int            `toml:"window"`
	ExpiresAt  *time.Time     `toml:"expiration"`
}

type Signal struct {
	Entry
	Owner              string   `toml:"owner"`
	ExternalID         string   `toml:"external_id"`
	Variant            string   `toml:"variant"`
	CaseType           string   `toml:"case_type"`
	CasePriority       string   `toml:"case_priority"`
	CaseSeverity       string   `toml:"case_severity"`
	CreateCase         bool     `toml:"create_case"`
	EntityTypes        []string `toml:"entity_types"`
	Filters            []string `toml:"filters"`
	Tags               []string `toml:"tags"`
	GenAIEnabled       bool     `toml:"genai_enabled"`
	GenAIModel         string   `toml:"genai_model"`
	GenAIPrompt        string   `toml:"genai_prompt"`
	GenAISystemMessage string   `toml:"genai_system_message"`
}

// Plugin is a plugin instance. Its name defaults to the plugin slug.
type Plugin struct {
	Entry
	Plugin        string         `toml:"plugin"`
	Type          string         `toml:"type"`
	Configuration map[string]any `toml:"configuration"`
}

func (p Plugin) name() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Plugin
}

type Notification struct {
	Entry
	Type        string         `toml:"type"`
	Targets     []string       `toml:"targets"`
	SubjectKind string         `toml:"subject_kind"`
	Filter      map[string]any `toml:"filter"`
	Restricted  bool           `toml:"restricted"`
}

type Prompt struct {
	GenAIType     string `toml:"genai_type"`
	Prompt        string `toml:"prompt"`
	SystemMessage string `toml:"system_message"`
	Enabled       *bool  `toml:"enabled"`
}

// LoadBootstrap reads and validates the bootstrap TOML file at path
func LoadBootstrap(path string) (*Bootstrap, error) {
	// #nosec G304 - path is expected to be provided by CLI argument
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, goerr.Wrap(ErrConfigNotFound, "config file does not exist", goerr.V(ConfigPathKey, path))
		}
		return nil, goerr.Wrap(err, "failed to read config file", goerr.V(ConfigPathKey, path))
	}

	return ParseBootstrap(data)
}

// ParseBootstrap decodes and validates bootstrap TOML
func ParseBootstrap(data []byte) (*Bootstrap, error) {
	var b Bootstrap
	if err := toml.Unmarshal(data, &b); err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "failed to parse TOML config", goerr.V("error", err.Error()))
	}
	if err := b.Validate(); err != nil {
		return nil, goerr.Wrap(err, "config validation failed")
	}
	return &b, nil
}

// Slugs returns the organization slugs in configuration order
func (b *Bootstrap) Slugs() []string {
	slugs := make([]string, 0, len(b.Organizations))
	for _, o := range b.Organizations {
		slugs = append(slugs, o.slug())
	}
	return slugs
}

func (o *Organization) slug() string {
	if o.Slug != "" {
		return o.Slug
	}
	if o.Name != "" {
		return model.SlugifyOrganization(o.Name)
	}
	return ""
}

// names tracks the unique names of one section
type names struct {
	section string
	seen    map[string]bool
}

func newNames(section string) *names {
	return &names{section: section, seen: map[string]bool{}}
}

func (n *names) add(name string) error {
	if name == "" {
		return goerr.Wrap(ErrMissingName, "entry has no name", goerr.V(SectionKey, n.section))
	}
	if n.seen[name] {
		return goerr.Wrap(ErrDuplicateName, "entry name is used twice", goerr.V(SectionKey, n.section), goerr.V(NameKey, name))
	}
	n.seen[name] = true
	return nil
}

// ref checks an optional reference
func (n *names) ref(from, name string) error {
	if name == "" || n.seen[name] {
		return nil
	}
	return goerr.Wrap(ErrUnknownRef, "referenced entry is not defined",
		goerr.V(SectionKey, from), goerr.V(RefKey, n.section+"/"+name))
}

func collect[T any](section string, entries []T, name func(T) string) (*names, error) {
	n := newNames(section)
	for _, e := range entries {
		if err := n.add(name(e)); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func entryName[T interface{ entry() Entry }](e T) string { return e.entry().Name }

func (e Entry) entry() Entry { return e }

func validFilter(section, name string, raw map[string]any) error {
	if len(raw) == 0 {
		return nil
	}
	var expr model.FilterExpr
	if err := model.DecodeConfiguration(raw, &expr); err != nil {
		return goerr.Wrap(ErrInvalidConfig, "filter is malformed", goerr.V(SectionKey, section), goerr.V(NameKey, name))
	}
	if err := expr.Validate(); err != nil {
		return goerr.Wrap(ErrInvalidConfig, err.Error(), goerr.V(SectionKey, section), goerr.V(NameKey, name))
	}
	return nil
}

func validVisibility(section, name, v string) error {
	if v == "" || types.Visibility(v).IsValid() {
		return nil
	}
	return goerr.Wrap(ErrInvalidConfig, "invalid visibility", goerr.V(SectionKey, section), goerr.V(NameKey, name), goerr.V("visibility", v))
}

// Validate checks names, references and enumerations of the configuration
func (b *Bootstrap) Validate() error {
	orgs := newNames("organization")
	for _, o := range b.Organizations {
		slug := o.slug()
		if err := orgs.add(slug); err != nil {
			return err
		}
		if err := model.ValidateOrganizationSlug(slug); err != nil {
			return goerr.Wrap(ErrInvalidConfig, "invalid organization slug", goerr.V(OrganizationKey, slug))
		}

		for _, u := range o.Users {
			if u.Email == "" {
				return goerr.Wrap(ErrMissingName, "user has no email", goerr.V(OrganizationKey, slug))
			}
			switch types.UserRole(u.Role) {
			case "", types.UserRoleMember, types.UserRoleAdmin, types.UserRoleOwner:
			default:
				return goerr.Wrap(ErrInvalidConfig, "invalid user role", goerr.V(OrganizationKey, slug), goerr.V("role", u.Role))
			}
		}

		projects := newNames("project")
		for _, p := range o.Projects {
			if err := projects.add(p.Name); err != nil {
				return goerr.Wrap(err, "invalid project", goerr.V(OrganizationKey, slug))
			}
			if err := p.validate(); err != nil {
				return goerr.Wrap(err, "invalid project", goerr.V(OrganizationKey, slug), goerr.V(ProjectKey, p.Name))
			}
		}
	}
	return nil
}

func (p *Project) validate() error {
	if p.AnnualEmployeeCost < 0 || p.BusinessYearHours < 0 {
		return goerr.Wrap(ErrInvalidConfig, "cost model values must not be negative")
	}

	incidentTypes, err := collect("incident_type", p.IncidentTypes, entryName[IncidentType])
	if err != nil {
		return err
	}
	for _, t := range p.IncidentTypes {
		if err := validVisibility("incident_type", t.Name, t.Visibility); err != nil {
			return err
		}
	}
	incidentPriorities, err := collect("incident_priority", p.IncidentPriorities, entryName[IncidentPriority])
	if err != nil {
		return err
	}
	if _, err := collect("incident_severity", p.IncidentSeverities, entryName[Severity]); err != nil {
		return err
	}
	services, err := collect("service", p.Services, entryName[Service])
	if err != nil {
		return err
	}

	caseTypes, err := collect("case_type", p.CaseTypes, entryName[CaseType])
	if err != nil {
		return err
	}
	for _, t := range p.CaseTypes {
		if err := validVisibility("case_type", t.Name, t.Visibility); err != nil {
			return err
		}
		if err := incidentTypes.ref("case_type", t.IncidentType); err != nil {
			return err
		}
		if err := incidentPriorities.ref("case_type", t.IncidentPriority); err != nil {
			return err
		}
		if err := services.ref("case_type", t.OncallService); err != nil {
			return err
		}
	}
	casePriorities, err := collect("case_priority", p.CasePriorities, entryName[CasePriority])
	if err != nil {
		return err
	}
	caseSeverities, err := collect("case_severity", p.CaseSeverities, entryName[Severity])
	if err != nil {
		return err
	}

	tagTypes, err := collect("tag_type", p.TagTypes, entryName[TagType])
	if err != nil {
		return err
	}
	tags, err := collect("tag", p.Tags, entryName[Tag])
	if err != nil {
		return err
	}
	for _, t := range p.Tags {
		if t.TagType == "" {
			return goerr.Wrap(ErrMissingName, "tag has no tag type", goerr.V(NameKey, t.Name))
		}
		if err := tagTypes.ref("tag", t.TagType); err != nil {
			return err
		}
	}

	if _, err := collect("document", p.Documents, entryName[Document]); err != nil {
		return err
	}
	for _, d := range p.Documents {
		if err := validFilter("document", d.Name, d.Filter); err != nil {
			return err
		}
	}

	entityTypes, err := collect("entity_type", p.EntityTypes, entryName[EntityType])
	if err != nil {
		return err
	}
	for _, e := range p.EntityTypes {
		if e.JPath == "" && e.Regex == "" {
			return goerr.Wrap(ErrInvalidConfig, "entity type needs a jpath or a regular expression", goerr.V(NameKey, e.Name))
		}
	}

	filters, err := collect("signal_filter", p.SignalFilters, entryName[SignalFilter])
	if err != nil {
		return err
	}
	for _, f := range p.SignalFilters {
		if !types.FilterAction(f.Action).IsValid() {
			return goerr.Wrap(ErrInvalidConfig, "invalid signal filter action", goerr.V(NameKey, f.Name), goerr.V("action", f.Action))
		}
		if err := validFilter("signal_filter", f.Name, f.Expression); err != nil {
			return err
		}
	}

	if _, err := collect("signal", p.Signals, entryName[Signal]); err != nil {
		return err
	}
	for _, s := range p.Signals {
		if s.CaseType == "" {
			return goerr.Wrap(ErrMissingName, "signal has no case type", goerr.V(NameKey, s.Name))
		}
		checks := []error{
			caseTypes.ref("signal", s.CaseType),
			casePriorities.ref("signal", s.CasePriority),
			caseSeverities.ref("signal", s.CaseSeverity),
		}
		for _, name := range s.EntityTypes {
			checks = append(checks, entityTypes.ref("signal", name))
		}
		for _, name := range s.Filters {
			checks = append(checks, filters.ref("signal", name))
		}
		for _, name := range s.Tags {
			checks = append(checks, tags.ref("signal", name))
		}
		if err := errors.Join(checks...); err != nil {
			return err
		}
	}

	if _, err := collect("plugin", p.Plugins, Plugin.name); err != nil {
		return err
	}
	for _, pl := range p.Plugins {
		if pl.Plugin == "" {
			return goerr.Wrap(ErrInvalidProvider, "plugin slug is required", goerr.V(NameKey, pl.Name))
		}
		if !types.ProviderType(pl.Type).IsValid() {
			return goerr.Wrap(ErrInvalidProvider, "invalid provider type", goerr.V(NameKey, pl.name()), goerr.V("type", pl.Type))
		}
	}

	if _, err := collect("notification", p.Notifications, entryName[Notification]); err != nil {
		return err
	}
	for _, n := range p.Notifications {
		if !types.NotificationTarget(n.Type).IsValid() {
			return goerr.Wrap(ErrInvalidConfig, "invalid notification type", goerr.V(NameKey, n.Name), goerr.V("type", n.Type))
		}
		if n.SubjectKind != "" && !types.SubjectKind(n.SubjectKind).IsValid() {
			return goerr.Wrap(ErrInvalidConfig, "invalid notification subject kind", goerr.V(NameKey, n.Name), goerr.V("subject_kind", n.SubjectKind))
		}
		if err := validFilter("notification", n.Name, n.Filter); err != nil {
			return err
		}
	}

	// One prompt per type keeps the single enabled prompt rule satisfiable
	if _, err := collect("prompt", p.Prompts, func(pr Prompt) string { return pr.GenAIType }); err != nil {
		return err
	}
	for _, pr := range p.Prompts {
		if !types.GenAIType(pr.GenAIType).IsValid() {
			return goerr.Wrap(ErrInvalidConfig, "invalid prompt type", goerr.V("genai_type", pr.GenAIType))
		}
		if pr.Prompt == "" {
			return goerr.Wrap(ErrInvalidConfig, "prompt text is required", goerr.V("genai_type", pr.GenAIType))
		}
	}

	return nil
}
