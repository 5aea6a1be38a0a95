package types

import "fmt"

// IncidentStatus represents the lifecycle state of an incident
type IncidentStatus string

const (
	IncidentStatusActive IncidentStatus = "active"
	IncidentStatusStable IncidentStatus = "stable"
	IncidentStatusClosed IncidentStatus = "closed"
)

// AllIncidentStatuses returns all valid incident statuses
func AllIncidentStatuses() []IncidentStatus {
	return []IncidentStatus{
		IncidentStatusActive,
		IncidentStatusStable,
		IncidentStatusClosed,
	}
}

// IsValid checks if the incident status is valid
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentStatusActive,
		IncidentStatusStable,
		IncidentStatusClosed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the incident status
func (s IncidentStatus) String() string {
	return string(s)
}

// Title returns a human readable label
func (s IncidentStatus) Title() string {
	switch s {
	case IncidentStatusActive:
		return "Active"
	case IncidentStatusStable:
		return "Stable"
	case IncidentStatusClosed:
		return "Closed"
	default:
		return string(s)
	}
}

// ParseIncidentStatus parses a string into an IncidentStatus
func ParseIncidentStatus(s string) (IncidentStatus, error) {
	status := IncidentStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid incident status: %s", s)
	}
	return status, nil
}
