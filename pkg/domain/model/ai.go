package model

import (
	"encoding/json"

	"github.com/m-mizutani/goerr/v2"
)

// ReadInSummary is the structured summary served to a participant joining a
// live subject.
type ReadInSummary struct {
	Timeline      []string `json:"timeline"`
	ActionsTaken  []string `json:"actions_taken"`
	CurrentStatus string   `json:"current_status"`
	Summary       string   `json:"summary"`
}

// SignalAnalysis is the AI assessment of a case opened by a signal
type SignalAnalysis struct {
	Summary           string   `json:"summary"`
	HistoricalSummary string   `json:"historical_summary"`
	CriticalAnalysis  string   `json:"critical_analysis"`
	Recommendation    string   `json:"recommendation"`
	Confidence        string   `json:"confidence,omitempty"`
	Indicators        []string `json:"indicators,omitempty"`
}

// TagRecommendation lists suggested tag names for one tag type
type TagRecommendation struct {
	TagType string   `json:"tag_type"`
	Tags    []string `json:"tags"`
}

// TagRecommendations is the AI response for tag suggestions
type TagRecommendations struct {
	Recommendations []TagRecommendation `json:"recommendations"`
}

// ToDetails converts a structured AI result into event details
func ToDetails(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal details")
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal details")
	}
	return out, nil
}

// FromDetails decodes event details into out
func FromDetails(details map[string]any, out any) error {
	raw, err := json.Marshal(details)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal details")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return goerr.Wrap(err, "failed to unmarshal details")
	}
	return nil
}
