package types

import "fmt"

// CaseStatus represents the lifecycle state of a case
type CaseStatus string

const (
	CaseStatusNew       CaseStatus = "new"
	CaseStatusTriage    CaseStatus = "triage"
	CaseStatusEscalated CaseStatus = "escalated"
	CaseStatusClosed    CaseStatus = "closed"
)

// AllCaseStatuses returns all valid case statuses
func AllCaseStatuses() []CaseStatus {
	return []CaseStatus{
		CaseStatusNew,
		CaseStatusTriage,
		CaseStatusEscalated,
		CaseStatusClosed,
	}
}

// IsValid checks if the case status is valid
func (s CaseStatus) IsValid() bool {
	switch s {
	case CaseStatusNew,
		CaseStatusTriage,
		CaseStatusEscalated,
		CaseStatusClosed:
		return true
	default:
		return false
	}
}

// Normalize returns the status, treating empty as CaseStatusNew.
func (s CaseStatus) Normalize() CaseStatus {
	if s == "" {
		return CaseStatusNew
	}
	return s
}

// String returns the string representation of the case status
func (s CaseStatus) String() string {
	return string(s)
}

// Title returns a human readable label
func (s CaseStatus) Title() string {
	switch s {
	case CaseStatusNew:
		return "New"
	case CaseStatusTriage:
		return "Triage"
	case CaseStatusEscalated:
		return "Escalated"
	case CaseStatusClosed:
		return "Closed"
	default:
		return string(s)
	}
}

// ParseCaseStatus parses a string into a CaseStatus
func ParseCaseStatus(s string) (CaseStatus, error) {
	status := CaseStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid case status: %s", s)
	}
	return status, nil
}
