package types

import "fmt"

// GenAIType identifies which AI generation a prompt is used for
type GenAIType string

const (
	GenAITypeTagRecommendation     GenAIType = "tag_recommendation"
	GenAITypeIncidentSummary       GenAIType = "incident_summary"
	GenAITypeSignalAnalysis        GenAIType = "signal_analysis"
	GenAITypeConversationSummary   GenAIType = "conversation_summary"
	GenAITypeTacticalReportSummary GenAIType = "tactical_report_summary"
)

// AllGenAITypes returns all valid GenAI types
func AllGenAITypes() []GenAIType {
	return []GenAIType{
		GenAITypeTagRecommendation,
		GenAITypeIncidentSummary,
		GenAITypeSignalAnalysis,
		GenAITypeConversationSummary,
		GenAITypeTacticalReportSummary,
	}
}

// IsValid checks if the GenAI type is valid
func (g GenAIType) IsValid() bool {
	for _, v := range AllGenAITypes() {
		if g == v {
			return true
		}
	}
	return false
}

func (g GenAIType) String() string {
	return string(g)
}

// ParseGenAIType parses a string into a GenAIType
func ParseGenAIType(s string) (GenAIType, error) {
	g := GenAIType(s)
	if !g.IsValid() {
		return "", fmt.Errorf("invalid genai type: %s", s)
	}
	return g, nil
}
