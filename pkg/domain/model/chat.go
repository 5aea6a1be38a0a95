package model

import "time"

// ChatUser is a chat workspace user profile
type ChatUser struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	RealName string `json:"real_name"`
	Email    string `json:"email"`
	Title    string `json:"title,omitempty"`
	TZ       string `json:"tz,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
	IsBot    bool   `json:"is_bot"`
}

// DisplayName returns the real name, falling back to the user name
func (u *ChatUser) DisplayName() string {
	if u.RealName != "" {
		return u.RealName
	}
	return u.Name
}

// IsAfterHours reports whether t is on a weekend or outside 09:00-17:00 in
// the user's timezone. Unknown timezones are evaluated in UTC.
func (u *ChatUser) IsAfterHours(t time.Time) bool {
	loc := time.UTC
	if u.TZ != "" {
		if l, err := time.LoadLocation(u.TZ); err == nil {
			loc = l
		}
	}
	local := t.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return true
	}
	return local.Hour() < 9 || local.Hour() >= 17
}

// ChatMessage is a message fetched from the chat provider
type ChatMessage struct {
	TS        string    `json:"ts"`
	ThreadTS  string    `json:"thread_ts,omitempty"`
	UserID    string    `json:"user_id"`
	UserName  string    `json:"user_name,omitempty"`
	UserEmail string    `json:"user_email,omitempty"`
	Text      string    `json:"text"`
	Reactions []string  `json:"reactions,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HasReaction reports whether the message carries the named reaction
func (m *ChatMessage) HasReaction(name string) bool {
	for _, r := range m.Reactions {
		if r == name {
			return true
		}
	}
	return false
}

// ChatMessageOptions controls how a message is posted
type ChatMessageOptions struct {
	ThreadTS string
	// ResponseURL posts through a slash command response url instead
	ResponseURL string
}
