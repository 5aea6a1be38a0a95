package types

import "fmt"

// EventType categorizes timeline events
type EventType string

const (
	EventTypeOther              EventType = "other"
	EventTypeParticipantUpdated EventType = "participant_updated"
	EventTypeFieldUpdated       EventType = "field_updated"
	EventTypeAssessmentUpdated  EventType = "assessment_updated"
	EventTypeImportedMessage    EventType = "imported_message"
)

// IsValid checks if the event type is valid
func (e EventType) IsValid() bool {
	switch e {
	case EventTypeOther,
		EventTypeParticipantUpdated,
		EventTypeFieldUpdated,
		EventTypeAssessmentUpdated,
		EventTypeImportedMessage:
		return true
	default:
		return false
	}
}

func (e EventType) String() string {
	return string(e)
}

// ParseEventType parses a string into an EventType
func ParseEventType(s string) (EventType, error) {
	e := EventType(s)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type: %s", s)
	}
	return e, nil
}
