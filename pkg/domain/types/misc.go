package types

import "fmt"

// SubjectKind distinguishes incidents from cases
type SubjectKind string

const (
	SubjectKindIncident SubjectKind = "incident"
	SubjectKindCase     SubjectKind = "case"
)

// IsValid checks if the subject kind is valid
func (k SubjectKind) IsValid() bool {
	return k == SubjectKindIncident || k == SubjectKindCase
}

func (k SubjectKind) String() string {
	return string(k)
}

// FilterAction is what a signal filter does with matching instances
type FilterAction string

const (
	FilterActionSnooze      FilterAction = "snooze"
	FilterActionDeduplicate FilterAction = "deduplicate"
	FilterActionNone        FilterAction = "none"
)

// IsValid checks if the filter action is valid
func (a FilterAction) IsValid() bool {
	switch a {
	case FilterActionSnooze, FilterActionDeduplicate, FilterActionNone:
		return true
	default:
		return false
	}
}

// AssignResult is the outcome of a role assignment
type AssignResult string

const (
	AssignResultAssigned        AssignResult = "assigned"
	AssignResultAssigneeHasRole AssignResult = "assignee_has_role"
	AssignResultRoleNotAssigned AssignResult = "role_not_assigned"
)

// ReportType identifies incident report kinds
type ReportType string

const (
	ReportTypeTactical  ReportType = "tactical_report"
	ReportTypeExecutive ReportType = "executive_report"
)

// IsValid checks if the report type is valid
func (r ReportType) IsValid() bool {
	return r == ReportTypeTactical || r == ReportTypeExecutive
}

// ParseReportType parses a string into a ReportType
func ParseReportType(s string) (ReportType, error) {
	r := ReportType(s)
	if !r.IsValid() {
		return "", fmt.Errorf("invalid report type: %s", s)
	}
	return r, nil
}

// TaskStatus is the state of a subject task
type TaskStatus string

const (
	TaskStatusOpen     TaskStatus = "open"
	TaskStatusResolved TaskStatus = "resolved"
)

// IsValid checks if the task status is valid
func (s TaskStatus) IsValid() bool {
	return s == TaskStatusOpen || s == TaskStatusResolved
}

// NotificationTarget is the delivery channel of a notification
type NotificationTarget string

const (
	NotificationTargetConversation NotificationTarget = "conversation"
	NotificationTargetEmail        NotificationTarget = "email"
)

// IsValid checks if the notification target is valid
func (n NotificationTarget) IsValid() bool {
	return n == NotificationTargetConversation || n == NotificationTargetEmail
}

// ReminderKind identifies what a persisted reminder is for
type ReminderKind string

const (
	ReminderKindTacticalReport  ReminderKind = "tactical_report"
	ReminderKindExecutiveReport ReminderKind = "executive_report"
	ReminderKindReviewDocument  ReminderKind = "review_document"
	ReminderKindRating          ReminderKind = "rating"
)

// UserRole is the system-wide role of a user
type UserRole string

const (
	UserRoleMember UserRole = "member"
	UserRoleAdmin  UserRole = "admin"
	UserRoleOwner  UserRole = "owner"
)
