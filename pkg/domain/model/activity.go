package model

import (
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Task is a unit of follow-up work on a subject
type Task struct {
	ID          int64            `json:"id"`
	Subject     SubjectRef       `json:"subject"`
	Description string           `json:"description"`
	Status      types.TaskStatus `json:"status"`
	Owner       string           `json:"owner,omitempty"`
	Creator     string           `json:"creator,omitempty"`
	Assignees   []string         `json:"assignees,omitempty"`
	ResourceID  string           `json:"resource_id,omitempty"`
	Weblink     string           `json:"weblink,omitempty"`
	ChannelID   string           `json:"channel_id,omitempty"`
	MessageTS   string           `json:"message_ts,omitempty"`
	ResolveBy   *time.Time       `json:"resolve_by,omitempty"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// IsAssignedTo reports whether email is among the assignees
func (t *Task) IsAssignedTo(email string) bool {
	for _, a := range t.Assignees {
		if a == email {
			return true
		}
	}
	return false
}

// Report is a submitted tactical or executive report
type Report struct {
	ID        int64            `json:"id"`
	Subject   SubjectRef       `json:"subject"`
	Type      types.ReportType `json:"type"`
	Details   map[string]any   `json:"details"`
	CreatedBy string           `json:"created_by,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// Reminder is a scheduled notification for a subject
type Reminder struct {
	ID        int64              `json:"id"`
	Subject   SubjectRef         `json:"subject"`
	Kind      types.ReminderKind `json:"kind"`
	Recipient string             `json:"recipient,omitempty"`
	DueAt     time.Time          `json:"due_at"`
	SentAt    *time.Time         `json:"sent_at,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// Feedback is a participant's rating of an incident response
type Feedback struct {
	ID        int64      `json:"id"`
	Subject   SubjectRef `json:"subject"`
	Email     string     `json:"email"`
	Rating    string     `json:"rating"`
	Feedback  string     `json:"feedback,omitempty"`
	Anonymous bool       `json:"anonymous"`
	CreatedAt time.Time  `json:"created_at"`
}
