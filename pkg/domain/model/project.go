package model

import (
	"strings"
	"time"
)

// Default cost model parameters
const (
	DefaultAnnualEmployeeCost = 650000
	DefaultBusinessYearHours  = 2080
)

// Project is the unit of configuration scope inside an organization
type Project struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`

	AllowSelfJoin      bool    `json:"allow_self_join"`
	AnnualEmployeeCost float64 `json:"annual_employee_cost"`
	BusinessYearHours  float64 `json:"business_year_hours"`

	OwnerEmail        string `json:"owner_email,omitempty"`
	OwnerConversation string `json:"owner_conversation,omitempty"`

	SendDailyReports    bool     `json:"send_daily_reports"`
	DailyReportChannels []string `json:"daily_report_channels,omitempty"`

	// Documents are opened to the organization and marked read-only when a
	// subject closes.
	OpenDocumentsOnClose bool `json:"open_documents_on_close"`
	ReadOnlyOnClose      bool `json:"read_only_on_close"`

	// StorageFolderID is the parent folder for subject storage folders
	StorageFolderID string `json:"storage_folder_id,omitempty"`
	// DocumentFolderID is the parent for subject documents
	DocumentFolderID string `json:"document_folder_id,omitempty"`
	// GroupDomain is the mail domain of created groups
	GroupDomain string `json:"group_domain,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// HourlyRate returns the employee hourly cost used by the cost model
func (p *Project) HourlyRate() float64 {
	annual := p.AnnualEmployeeCost
	if annual <= 0 {
		annual = DefaultAnnualEmployeeCost
	}
	hours := p.BusinessYearHours
	if hours <= 0 {
		hours = DefaultBusinessYearHours
	}
	return annual / hours
}

// Slugify lowercases s and replaces runs of non alphanumerics with a dash
func Slugify(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}

// Individual is a project-scoped person who can participate in subjects
type Individual struct {
	ID         int64     `json:"id"`
	ProjectID  int64     `json:"project_id"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Title      string    `json:"title,omitempty"`
	Weblink    string    `json:"weblink,omitempty"`
	Team       string    `json:"team,omitempty"`
	Location   string    `json:"location,omitempty"`
	ChatUserID string    `json:"chat_user_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DisplayName returns the name or the email when no name is known
func (i *Individual) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	return i.Email
}
