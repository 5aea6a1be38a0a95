package model

import (
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Resource is an external resource bound to a subject. Kind specific
// attributes are optional fields.
type Resource struct {
	ID         int64              `json:"id"`
	Subject    SubjectRef         `json:"subject"`
	Type       types.ResourceType `json:"resource_type"`
	ResourceID string             `json:"resource_id"`
	Weblink    string             `json:"weblink,omitempty"`

	// conversation
	ChannelID string `json:"channel_id,omitempty"`
	ThreadID  string `json:"thread_id,omitempty"`
	// group
	Email string `json:"email,omitempty"`
	// conference
	ConferenceID string `json:"conference_id,omitempty"`
	Challenge    string `json:"conference_challenge,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Bundle is the set of resources of one subject, by type
type Bundle map[types.ResourceType]*Resource

// NewBundle indexes resources by type
func NewBundle(resources []*Resource) Bundle {
	b := Bundle{}
	for _, r := range resources {
		b[r.Type] = r
	}
	return b
}

// Get returns the resource of type t or nil
func (b Bundle) Get(t types.ResourceType) *Resource {
	if b == nil {
		return nil
	}
	return b[t]
}

// Has reports whether a resource of type t exists
func (b Bundle) Has(t types.ResourceType) bool {
	return b.Get(t) != nil
}

// GroupEmails returns the email addresses of the tactical and notifications
// groups present in the bundle.
func (b Bundle) GroupEmails() []string {
	var emails []string
	for _, t := range []types.ResourceType{types.ResourceTypeTacticalGroup, types.ResourceTypeNotificationsGroup} {
		if r := b.Get(t); r != nil && r.Email != "" {
			emails = append(emails, r.Email)
		}
	}
	return emails
}

// ChannelID returns the conversation channel id, or empty
func (b Bundle) ChannelID() string {
	if r := b.Get(types.ResourceTypeConversation); r != nil {
		return r.ChannelID
	}
	return ""
}

// ThreadID returns the conversation thread id, or empty
func (b Bundle) ThreadID() string {
	if r := b.Get(types.ResourceTypeConversation); r != nil {
		return r.ThreadID
	}
	return ""
}

// ConversationLocation is where a subject's conversation lives
type ConversationLocation struct {
	Organization string
	Subject      SubjectRef
	ProjectID    int64
}
