package model

import (
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Case is a secondary subject. It may escalate into one or more incidents.
type Case struct {
	ID               int64            `json:"id"`
	ProjectID        int64            `json:"project_id"`
	Name             string           `json:"name"`
	Title            string           `json:"title"`
	Description      string           `json:"description"`
	Resolution       string           `json:"resolution,omitempty"`
	ResolutionReason string           `json:"resolution_reason,omitempty"`
	Status           types.CaseStatus `json:"status"`
	Visibility       types.Visibility `json:"visibility"`

	TypeID     int64 `json:"case_type_id"`
	SeverityID int64 `json:"case_severity_id"`
	PriorityID int64 `json:"case_priority_id"`

	// DedicatedChannel decides whether the case owns a chat channel or lives
	// in a thread on the case type's conversation target.
	DedicatedChannel bool `json:"dedicated_channel"`

	ReportedAt  time.Time  `json:"reported_at"`
	TriageAt    *time.Time `json:"triage_at,omitempty"`
	EscalatedAt *time.Time `json:"escalated_at,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	ReopenedAt  *time.Time `json:"reopened_at,omitempty"`

	IncidentIDs []int64 `json:"incident_ids,omitempty"`
	TagIDs      []int64 `json:"tag_ids,omitempty"`
	SignalID    int64   `json:"signal_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var _ Subject = (*Case)(nil)

func (c *Case) Ref() SubjectRef        { return CaseRef(c.ID) }
func (c *Case) GetName() string        { return c.Name }
func (c *Case) GetTitle() string       { return c.Title }
func (c *Case) GetDescription() string { return c.Description }
func (c *Case) GetProjectID() int64    { return c.ProjectID }
func (c *Case) GetStatus() string      { return string(c.Status) }
func (c *Case) GetTagIDs() []int64     { return c.TagIDs }
func (c *Case) IsClosed() bool         { return c.Status == types.CaseStatusClosed }

func (c *Case) IsRestricted() bool {
	return c.Visibility == types.VisibilityRestricted
}

// HasIncident reports whether the case already escalated into the incident
func (c *Case) HasIncident(id int64) bool {
	for _, i := range c.IncidentIDs {
		if i == id {
			return true
		}
	}
	return false
}

// CaseQuery filters case listings
type CaseQuery struct {
	ProjectID int64
	Statuses  []types.CaseStatus
	SignalID  int64
	Text      string
	Since     *time.Time
	Limit     int
}
