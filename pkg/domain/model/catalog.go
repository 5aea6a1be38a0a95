package model

import (
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// CatalogItem is a project-scoped configuration entity stored by the generic
// catalog repositories.
type CatalogItem interface {
	GetID() int64
	SetID(id int64)
	GetProjectID() int64
	GetName() string
	IsDefault() bool
	IsEnabled() bool
}

// CatalogBase carries the attributes every catalog item shares
type CatalogBase struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Default     bool      `json:"default"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func (b *CatalogBase) GetID() int64        { return b.ID }
func (b *CatalogBase) SetID(id int64)      { b.ID = id }
func (b *CatalogBase) GetProjectID() int64 { return b.ProjectID }
func (b *CatalogBase) GetName() string     { return b.Name }
func (b *CatalogBase) IsDefault() bool     { return b.Default }
func (b *CatalogBase) IsEnabled() bool     { return b.Enabled }

// IncidentType classifies incidents and selects their document templates
type IncidentType struct {
	CatalogBase
	Visibility         types.Visibility `json:"visibility"`
	DocumentTemplateID string           `json:"document_template_id,omitempty"`
	ReviewTemplateID   string           `json:"review_template_id,omitempty"`
	ExecutiveTemplate  string           `json:"executive_template_id,omitempty"`
	TicketLabels       []string         `json:"ticket_labels,omitempty"`
	ExcludeFromMetrics bool             `json:"exclude_from_metrics"`
	ChannelDescription string           `json:"channel_description,omitempty"`
}

// Slug returns the name segment used in generated incident names
func (t *IncidentType) Slug() string {
	return Slugify(t.Name)
}

// IncidentSeverity describes the impact of an incident
type IncidentSeverity struct {
	CatalogBase
	Color string `json:"color,omitempty"`
}

// IncidentPriority describes the urgency of an incident and its report cadence
type IncidentPriority struct {
	CatalogBase
	PageCommander bool `json:"page_commander"`
	// Hours between tactical / executive report reminders
	TacticalReportReminder  int    `json:"tactical_report_reminder"`
	ExecutiveReportReminder int    `json:"executive_report_reminder"`
	Color                   string `json:"color,omitempty"`
}

// CaseType classifies cases and decides how their conversation is created
type CaseType struct {
	CatalogBase
	Visibility types.Visibility `json:"visibility"`
	// ConversationTarget is the shared channel receiving case threads
	ConversationTarget string `json:"conversation_target,omitempty"`
	DedicatedChannel   bool   `json:"dedicated_channel"`
	CreateAllResources bool   `json:"create_all_resources"`
	CaseTemplateID     string `json:"case_template_id,omitempty"`
	OncallServiceID    int64  `json:"oncall_service_id,omitempty"`
	// Defaults used when a case of this type escalates
	IncidentTypeID     int64 `json:"incident_type_id,omitempty"`
	IncidentPriorityID int64 `json:"incident_priority_id,omitempty"`
}

// CaseSeverity describes the impact of a case
type CaseSeverity struct {
	CatalogBase
	Color string `json:"color,omitempty"`
}

// CasePriority describes the urgency of a case
type CasePriority struct {
	CatalogBase
	PageAssignee bool   `json:"page_assignee"`
	Color        string `json:"color,omitempty"`
}

// TagType groups tags
type TagType struct {
	CatalogBase
	DiscoverableIncident bool `json:"discoverable_incident"`
	DiscoverableCase     bool `json:"discoverable_case"`
	GenAISuggestions     bool `json:"genai_suggestions"`
	Exclusive            bool `json:"exclusive"`
}

// Tag labels subjects
type Tag struct {
	CatalogBase
	TagTypeID    int64  `json:"tag_type_id"`
	Discoverable bool   `json:"discoverable"`
	ExternalID   string `json:"external_id,omitempty"`
	Source       string `json:"source,omitempty"`
}

// Service is an on-call service that can be engaged or resolved to a person
type Service struct {
	CatalogBase
	Type       string `json:"type"`
	ExternalID string `json:"external_id"`
}

// Document is a project reference document. Evergreen documents remind their
// owner periodically to review them.
type Document struct {
	CatalogBase
	ResourceID string     `json:"resource_id,omitempty"`
	Weblink    string     `json:"weblink"`
	Filter     FilterExpr `json:"filter,omitempty"`

	Evergreen                     bool       `json:"evergreen"`
	EvergreenOwner                string     `json:"evergreen_owner,omitempty"`
	EvergreenReminderIntervalDays int        `json:"evergreen_reminder_interval"`
	EvergreenLastReminderAt       *time.Time `json:"evergreen_last_reminder_at,omitempty"`
}

// EvergreenDue reports whether the owner should be reminded at now
func (d *Document) EvergreenDue(now time.Time) bool {
	if !d.Evergreen || d.EvergreenOwner == "" {
		return false
	}
	interval := d.EvergreenReminderIntervalDays
	if interval <= 0 {
		interval = 90
	}
	if d.EvergreenLastReminderAt == nil {
		return true
	}
	return now.Sub(*d.EvergreenLastReminderAt) >= time.Duration(interval)*24*time.Hour
}

// Notification fans a templated message out to targets when its filter
// matches the subject.
type Notification struct {
	CatalogBase
	Type        types.NotificationTarget `json:"type"`
	Targets     []string                 `json:"targets"`
	SubjectKind types.SubjectKind        `json:"subject_kind,omitempty"`
	Filter      FilterExpr               `json:"filter,omitempty"`
	// Restricted notifications also receive restricted subjects
	Restricted bool `json:"restricted"`
}

// PluginInstance is a configured provider for a project
type PluginInstance struct {
	CatalogBase
	Type          types.ProviderType `json:"type"`
	Plugin        string             `json:"plugin"`
	Configuration map[string]any     `json:"configuration,omitempty"`
}

// FindDefault returns the default item of items, or the first enabled one
func FindDefault[T CatalogItem](items []T) (T, bool) {
	for _, item := range items {
		if item.IsDefault() && item.IsEnabled() {
			return item, true
		}
	}
	for _, item := range items {
		if item.IsEnabled() {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// FindByName returns the item of items with the given name
func FindByName[T CatalogItem](items []T, name string) (T, bool) {
	for _, item := range items {
		if item.GetName() == name {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// FindByID returns the item of items with the given id
func FindByID[T CatalogItem](items []T, id int64) (T, bool) {
	for _, item := range items {
		if item.GetID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}
