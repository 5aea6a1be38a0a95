package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Event detail kinds used to find derived events again
const (
	EventKindReadInSummary  = "read_in_summary_created"
	EventKindSignalAnalysis = "signal_analysis_created"
	EventKindRolePromotion  = "observer_promoted"
)

// Event is an append-only timeline entry of a subject
type Event struct {
	ID           string          `json:"id"`
	Subject      SubjectRef      `json:"subject"`
	StartedAt    time.Time       `json:"started_at"`
	EndedAt      time.Time       `json:"ended_at"`
	Source       string          `json:"source"`
	Description  string          `json:"description"`
	Details      map[string]any  `json:"details,omitempty"`
	Type         types.EventType `json:"type"`
	Owner        string          `json:"owner,omitempty"`
	IndividualID int64           `json:"individual_id,omitempty"`
	Pinned       bool            `json:"pinned"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewEventID returns a new random event id
func NewEventID() string {
	return uuid.NewString()
}

// Kind returns the "kind" detail of the event, if any
func (e *Event) Kind() string {
	if e.Details == nil {
		return ""
	}
	if k, ok := e.Details["kind"].(string); ok {
		return k
	}
	return ""
}
