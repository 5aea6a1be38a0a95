package model

import (
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// ObserverPromotionActivity is the activity count at which an observer is
// promoted to participant.
const ObserverPromotionActivity = 10

// ParticipantRole is one role assignment of a participant. Assignments are
// append-only; renouncing sets RenouncedAt.
type ParticipantRole struct {
	Role        types.ParticipantRole `json:"role"`
	AssumedAt   time.Time             `json:"assumed_at"`
	RenouncedAt *time.Time            `json:"renounced_at,omitempty"`
	Activity    int                   `json:"activity"`
}

// IsActive reports whether the role has not been renounced
func (r *ParticipantRole) IsActive() bool {
	return r.RenouncedAt == nil
}

// Participant relates an individual to a subject
type Participant struct {
	ID           int64              `json:"id"`
	Subject      SubjectRef         `json:"subject"`
	IndividualID int64              `json:"individual_id"`
	Email        string             `json:"email"`
	Roles        []*ParticipantRole `json:"roles"`

	UserConversationID     string `json:"user_conversation_id,omitempty"`
	AddedBy                string `json:"added_by,omitempty"`
	AddedReason            string `json:"added_reason,omitempty"`
	AfterHoursNotification bool   `json:"after_hours_notification"`
	ServiceID              string `json:"service_id,omitempty"`
	Team                   string `json:"team,omitempty"`
	Location               string `json:"location,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// ActiveRoles returns roles with no renounced timestamp
func (p *Participant) ActiveRoles() []*ParticipantRole {
	var active []*ParticipantRole
	for _, r := range p.Roles {
		if r.IsActive() {
			active = append(active, r)
		}
	}
	return active
}

// IsActive reports whether the participant holds at least one active role
func (p *Participant) IsActive() bool {
	return len(p.ActiveRoles()) > 0
}

// ActiveRole returns the active assignment of role, or nil
func (p *Participant) ActiveRole(role types.ParticipantRole) *ParticipantRole {
	for _, r := range p.Roles {
		if r.Role == role && r.IsActive() {
			return r
		}
	}
	return nil
}

// HasActiveRole reports whether the participant actively holds role
func (p *Participant) HasActiveRole(role types.ParticipantRole) bool {
	return p.ActiveRole(role) != nil
}

// AddRole appends a new active role assignment
func (p *Participant) AddRole(role types.ParticipantRole, at time.Time) *ParticipantRole {
	r := &ParticipantRole{Role: role, AssumedAt: at}
	p.Roles = append(p.Roles, r)
	return r
}

// Renounce sets the renounced timestamp on the active assignment of role and
// reports whether anything changed.
func (p *Participant) Renounce(role types.ParticipantRole, at time.Time) bool {
	r := p.ActiveRole(role)
	if r == nil {
		return false
	}
	t := at
	r.RenouncedAt = &t
	return true
}

// RenounceAll renounces every active role and returns how many were renounced
func (p *Participant) RenounceAll(at time.Time) int {
	n := 0
	for _, r := range p.Roles {
		if r.IsActive() {
			t := at
			r.RenouncedAt = &t
			n++
		}
	}
	return n
}

// LatestRenouncedAt returns the most recent renounce time, or nil when no
// role was ever renounced.
func (p *Participant) LatestRenouncedAt() *time.Time {
	var latest *time.Time
	for _, r := range p.Roles {
		if r.RenouncedAt != nil && (latest == nil || r.RenouncedAt.After(*latest)) {
			latest = r.RenouncedAt
		}
	}
	return latest
}

// Participants is a list of participants with lookup helpers
type Participants []*Participant

// ByEmail returns the participant with the given email
func (ps Participants) ByEmail(email string) *Participant {
	for _, p := range ps {
		if p.Email == email {
			return p
		}
	}
	return nil
}

// WithActiveRole returns participants actively holding role
func (ps Participants) WithActiveRole(role types.ParticipantRole) Participants {
	var out Participants
	for _, p := range ps {
		if p.HasActiveRole(role) {
			out = append(out, p)
		}
	}
	return out
}

// Active returns participants holding at least one active role
func (ps Participants) Active() Participants {
	var out Participants
	for _, p := range ps {
		if p.IsActive() {
			out = append(out, p)
		}
	}
	return out
}

// Emails returns the emails of the participants
func (ps Participants) Emails() []string {
	out := make([]string, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.Email)
	}
	return out
}
