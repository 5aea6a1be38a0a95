package types

// ResourceType identifies the kind of external resource bound to a subject
type ResourceType string

const (
	ResourceTypeConversation       ResourceType = "conversation"
	ResourceTypeDocument           ResourceType = "document"
	ResourceTypeReviewDocument     ResourceType = "review_document"
	ResourceTypeConference         ResourceType = "conference"
	ResourceTypeStorage            ResourceType = "storage"
	ResourceTypeTicket             ResourceType = "ticket"
	ResourceTypeTacticalGroup      ResourceType = "tactical_group"
	ResourceTypeNotificationsGroup ResourceType = "notifications_group"
)

// AllResourceTypes returns resource types in creation order
func AllResourceTypes() []ResourceType {
	return []ResourceType{
		ResourceTypeTicket,
		ResourceTypeTacticalGroup,
		ResourceTypeNotificationsGroup,
		ResourceTypeStorage,
		ResourceTypeDocument,
		ResourceTypeConference,
		ResourceTypeConversation,
		ResourceTypeReviewDocument,
	}
}

// IsValid checks if the resource type is valid
func (r ResourceType) IsValid() bool {
	for _, v := range AllResourceTypes() {
		if r == v {
			return true
		}
	}
	return false
}

func (r ResourceType) String() string {
	return string(r)
}
