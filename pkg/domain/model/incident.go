package model

import (
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Incident is the primary subject coordinated by the flow engine
type Incident struct {
	ID          int64                `json:"id"`
	ProjectID   int64                `json:"project_id"`
	Name        string               `json:"name"`
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Resolution  string               `json:"resolution,omitempty"`
	Status      types.IncidentStatus `json:"status"`
	Visibility  types.Visibility     `json:"visibility"`

	TypeID     int64 `json:"incident_type_id"`
	SeverityID int64 `json:"incident_severity_id"`
	PriorityID int64 `json:"incident_priority_id"`

	ReportedAt    time.Time  `json:"reported_at"`
	StableAt      *time.Time `json:"stable_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	ReactivatedAt *time.Time `json:"reactivated_at,omitempty"`

	Cost         float64 `json:"cost"`
	TagIDs       []int64 `json:"tag_ids,omitempty"`
	DuplicateIDs []int64 `json:"duplicate_ids,omitempty"`

	DelayTacticalReportReminder  *time.Time `json:"delay_tactical_report_reminder,omitempty"`
	DelayExecutiveReportReminder *time.Time `json:"delay_executive_report_reminder,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var _ Subject = (*Incident)(nil)

func (i *Incident) Ref() SubjectRef        { return IncidentRef(i.ID) }
func (i *Incident) GetName() string        { return i.Name }
func (i *Incident) GetTitle() string       { return i.Title }
func (i *Incident) GetDescription() string { return i.Description }
func (i *Incident) GetProjectID() int64    { return i.ProjectID }
func (i *Incident) GetStatus() string      { return string(i.Status) }
func (i *Incident) GetTagIDs() []int64     { return i.TagIDs }
func (i *Incident) IsClosed() bool         { return i.Status == types.IncidentStatusClosed }

func (i *Incident) IsRestricted() bool {
	return i.Visibility == types.VisibilityRestricted
}

// EndTime returns when the response ended, or now for unresolved incidents.
func (i *Incident) EndTime(now time.Time) time.Time {
	if i.ClosedAt != nil && i.Status == types.IncidentStatusClosed {
		return *i.ClosedAt
	}
	if i.StableAt != nil && i.Status == types.IncidentStatusStable {
		return *i.StableAt
	}
	return now
}

// HasTag reports whether the incident carries the tag
func (i *Incident) HasTag(id int64) bool {
	for _, t := range i.TagIDs {
		if t == id {
			return true
		}
	}
	return false
}

// IncidentQuery filters incident listings
type IncidentQuery struct {
	ProjectID int64
	Statuses  []types.IncidentStatus
	Text      string
	Since     *time.Time
	Limit     int
}
