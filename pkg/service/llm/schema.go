package llm

import "github.com/m-mizutani/gollem"

func stringList(desc string) *gollem.Parameter {
	return &gollem.Parameter{
		Type:        gollem.TypeArray,
		Description: desc,
		Required:    true,
		Items:       &gollem.Parameter{Type: gollem.TypeString},
	}
}

func requiredString(desc string) *gollem.Parameter {
	return &gollem.Parameter{Type: gollem.TypeString, Description: desc, Required: true}
}

// ReadInSummarySchema is the response schema of model.ReadInSummary
func ReadInSummarySchema() *gollem.Parameter {
	return &gollem.Parameter{
		Type: gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"timeline":       stringList("Chronological key events, each prefixed with its UTC time"),
			"actions_taken":  stringList("Actions taken by responders so far"),
			"current_status": requiredString("Current status of the response"),
			"summary":        requiredString("Short summary for someone joining now"),
		},
	}
}

// SignalAnalysisSchema is the response schema of model.SignalAnalysis
func SignalAnalysisSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Type: gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"summary":            requiredString("What the alert is about"),
			"historical_summary": requiredString("How similar past cases were resolved"),
			"critical_analysis":  requiredString("Assessment of whether the alert is a true positive"),
			"recommendation":     requiredString("Recommended next step"),
			"confidence": {
				Type: gollem.TypeString,
				Enum: []string{"low", "medium", "high"},
			},
			"indicators": {
				Type:        gollem.TypeArray,
				Description: "Indicators worth investigating",
				Items:       &gollem.Parameter{Type: gollem.TypeString},
			},
		},
	}
}

// TagRecommendationsSchema is the response schema of model.TagRecommendations
func TagRecommendationsSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Type: gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"recommendations": {
				Type:     gollem.TypeArray,
				Required: true,
				Items: &gollem.Parameter{
					Type: gollem.TypeObject,
					Properties: map[string]*gollem.Parameter{
						"tag_type": requiredString("Name of the tag type"),
						"tags":     stringList("Tag names of this tag type"),
					},
				},
			},
		},
	}
}

// TacticalReportSchema is the response schema of a drafted tactical report
func TacticalReportSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Type: gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"conditions": requiredString("Current conditions of the incident"),
			"actions":    requiredString("Actions being taken"),
			"needs":      requiredString("What the responders need"),
		},
	}
}
