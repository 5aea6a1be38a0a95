package model

// TicketRequest describes a ticket to create for a subject
type TicketRequest struct {
	Subject     SubjectRef
	Name        string
	Title       string
	Description string
	Kind        string
	Priority    string
	Commander   string
	Reporter    string
	Labels      []string
	Visibility  string
}

// TicketUpdate carries the fields synchronized to the ticket after resources
// are created or the subject changes.
type TicketUpdate struct {
	Name        string
	Title       string
	Description string
	Resolution  string
	Status      string
	Kind        string
	Priority    string
	Commander   string
	Reporter    string
	Cost        float64
	Labels      []string
	// Links maps resource type names to weblinks
	Links map[string]string
}

// StoredFile is a file fetched from a storage provider
type StoredFile struct {
	ID       string
	Name     string
	MimeType string
	Content  []byte
}

// PageRequest is sent to an on-call provider
type PageRequest struct {
	Title       string
	Description string
	Weblink     string
	Source      string
	DedupKey    string
}

// ContactInfo is the directory profile of a person
type ContactInfo struct {
	Email    string
	Name     string
	Title    string
	Team     string
	Location string
	Weblink  string
}

// ResolvedParticipant is a participant suggested by a participant resolver
type ResolvedParticipant struct {
	Email     string
	ServiceID string
	Reason    string
}

// MonitorStatus is the status of a monitored link
type MonitorStatus struct {
	URL     string         `json:"url"`
	State   string         `json:"state"`
	Title   string         `json:"title,omitempty"`
	Details map[string]any `json:"details,omitempty"`
}
