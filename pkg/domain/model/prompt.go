package model

import (
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Prompt is a project-level AI prompt override. At most one prompt per
// (project, genai_type) may be enabled.
type Prompt struct {
	ID            int64           `json:"id"`
	ProjectID     int64           `json:"project_id"`
	GenAIType     types.GenAIType `json:"genai_type"`
	Prompt        string          `json:"genai_prompt"`
	SystemMessage string          `json:"genai_system_message,omitempty"`
	Enabled       bool            `json:"enabled"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Validate checks the prompt fields
func (p *Prompt) Validate() error {
	verr := &ValidationError{}
	if p.ProjectID == 0 {
		verr.Add("project", "project is required")
	}
	if !p.GenAIType.IsValid() {
		verr.Add("genai_type", "unknown genai type")
	}
	if p.Prompt == "" {
		verr.Add("genai_prompt", "prompt must not be empty")
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// NewPromptConflict is returned when a second prompt of the same type would
// be enabled.
func NewPromptConflict(t types.GenAIType) error {
	return &StateConflictError{
		Loc: "genai_type",
		Msg: "an enabled prompt of type " + t.String() + " already exists for this project",
	}
}
