package types

import "fmt"

// ProviderType groups plugin implementations by capability
type ProviderType string

const (
	ProviderTypeChat                ProviderType = "chat"
	ProviderTypeDocument            ProviderType = "document"
	ProviderTypeStorage             ProviderType = "storage"
	ProviderTypeTicket              ProviderType = "ticket"
	ProviderTypeConference          ProviderType = "conference"
	ProviderTypeGroup               ProviderType = "group"
	ProviderTypeOncall              ProviderType = "oncall"
	ProviderTypeContact             ProviderType = "contact"
	ProviderTypeAI                  ProviderType = "ai"
	ProviderTypeTask                ProviderType = "task"
	ProviderTypeMonitor             ProviderType = "monitor"
	ProviderTypeEmail               ProviderType = "email"
	ProviderTypeParticipantResolver ProviderType = "participant-resolver"
	ProviderTypeDocumentResolver    ProviderType = "document-resolver"
)

// AllProviderTypes returns all valid provider types
func AllProviderTypes() []ProviderType {
	return []ProviderType{
		ProviderTypeChat,
		ProviderTypeDocument,
		ProviderTypeStorage,
		ProviderTypeTicket,
		ProviderTypeConference,
		ProviderTypeGroup,
		ProviderTypeOncall,
		ProviderTypeContact,
		ProviderTypeAI,
		ProviderTypeTask,
		ProviderTypeMonitor,
		ProviderTypeEmail,
		ProviderTypeParticipantResolver,
		ProviderTypeDocumentResolver,
	}
}

// IsValid checks if the provider type is valid
func (p ProviderType) IsValid() bool {
	for _, v := range AllProviderTypes() {
		if p == v {
			return true
		}
	}
	return false
}

func (p ProviderType) String() string {
	return string(p)
}

// ParseProviderType parses a string into a ProviderType
func ParseProviderType(s string) (ProviderType, error) {
	p := ProviderType(s)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid provider type: %s", s)
	}
	return p, nil
}
