package interfaces

import (
	"context"
	"regexp"

	"github.com/m-mizutani/gollem"
	"github.com/slack-go/slack"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Provider is a configured plugin instance of one provider type
type Provider interface {
	// Slug is the plugin slug, e.g. "slack-conversation"
	Slug() string
	Type() types.ProviderType
}

// PluginRegistry resolves the providers configured for a project
type PluginRegistry interface {
	// Active returns the single enabled provider of the type, or nil, nil
	// when the project has none.
	Active(ctx context.Context, org string, projectID int64, t types.ProviderType) (Provider, error)
	// AllEnabled returns every enabled provider of the type
	AllEnabled(ctx context.Context, org string, projectID int64, t types.ProviderType) ([]Provider, error)
	// Invalidate drops cached providers of the project
	Invalidate(org string, projectID int64)
}

// ChatProvider is the chat capability set. Users are addressed by email;
// providers map emails to their own user ids.
type ChatProvider interface {
	Provider

	CreateConversation(ctx context.Context, name string, private bool) (*model.Resource, error)
	ArchiveConversation(ctx context.Context, channelID string) error
	UnarchiveConversation(ctx context.Context, channelID string) error
	RenameConversation(ctx context.Context, channelID, name string) error
	InviteToConversation(ctx context.Context, channelID string, emails []string) error
	SetTopic(ctx context.Context, channelID, topic string) error
	SetDescription(ctx context.Context, channelID, description string) error
	AddBookmark(ctx context.Context, channelID, title, link string) error
	IsBotMember(ctx context.Context, channelID string) (bool, error)

	// SendMessage posts to a channel (or thread) and returns the message ts
	SendMessage(ctx context.Context, channelID string, text string, blocks []slack.Block, opts model.ChatMessageOptions) (string, error)
	SendDirect(ctx context.Context, email string, text string, blocks []slack.Block) error
	SendEphemeral(ctx context.Context, channelID, email string, text string, blocks []slack.Block, opts model.ChatMessageOptions) error
	UpdateMessage(ctx context.Context, channelID, ts string, text string, blocks []slack.Block) error

	// FetchMessage returns the single message at ts
	FetchMessage(ctx context.Context, channelID, ts string) (*model.ChatMessage, error)
	// FetchTranscript returns the conversation (or thread) oldest first with
	// user names and emails resolved
	FetchTranscript(ctx context.Context, channelID, threadTS string) ([]*model.ChatMessage, error)

	GetUser(ctx context.Context, userID string) (*model.ChatUser, error)
	GetUserByEmail(ctx context.Context, email string) (*model.ChatUser, error)

	OpenModal(ctx context.Context, triggerID string, view slack.ModalViewRequest) (string, error)
	UpdateModal(ctx context.Context, viewID string, view slack.ModalViewRequest) error
}

// DocumentProvider creates and maintains subject documents
type DocumentProvider interface {
	Provider

	CreateFromTemplate(ctx context.Context, name, templateID, parentID string) (*model.Resource, error)
	// Update fills template placeholders ({{key}}) with values
	Update(ctx context.Context, documentID string, values map[string]string) error
	OpenAccess(ctx context.Context, documentID string) error
	MarkReadOnly(ctx context.Context, documentID string) error
	FetchText(ctx context.Context, documentID string) (string, error)
	Delete(ctx context.Context, documentID string) error
}

// StorageProvider manages subject storage folders
type StorageProvider interface {
	Provider

	CreateFolder(ctx context.Context, name, parentID string, members []string) (*model.Resource, error)
	AddMembers(ctx context.Context, folderID string, emails []string) error
	RemoveMembers(ctx context.Context, folderID string, emails []string) error
	Delete(ctx context.Context, folderID string) error
	FetchFiles(ctx context.Context, folderID string, mimeTypes []string) ([]*model.StoredFile, error)
}

// TicketProvider mirrors subjects into an external tracker
type TicketProvider interface {
	Provider

	Create(ctx context.Context, req model.TicketRequest) (*model.Resource, error)
	Update(ctx context.Context, ticketID string, upd model.TicketUpdate) error
	Delete(ctx context.Context, ticketID string) error
}

// ConferenceProvider creates conference bridges
type ConferenceProvider interface {
	Provider

	Create(ctx context.Context, name string, invitees []string) (*model.Resource, error)
	Delete(ctx context.Context, conferenceID string) error
}

// GroupProvider manages mailing groups
type GroupProvider interface {
	Provider

	Create(ctx context.Context, name, description string, members []string) (*model.Resource, error)
	AddMembers(ctx context.Context, groupEmail string, members []string) error
	RemoveMembers(ctx context.Context, groupEmail string, members []string) error
	ListMembers(ctx context.Context, groupEmail string) ([]string, error)
	Delete(ctx context.Context, groupEmail string) error
}

// OncallProvider answers who is on call and pages services
type OncallProvider interface {
	Provider

	ResolveOncall(ctx context.Context, serviceID string) (string, error)
	Page(ctx context.Context, serviceID string, req model.PageRequest) error
}

// ContactProvider looks people up in a directory
type ContactProvider interface {
	Provider

	Lookup(ctx context.Context, email string) (*model.ContactInfo, error)
}

// EmailProvider sends mail
type EmailProvider interface {
	Provider

	Send(ctx context.Context, to []string, subject, html string) error
}

// AIProvider runs prompts against a language model
type AIProvider interface {
	Provider

	// Model is the model name used for token budgeting
	Model() string
	ChatCompletion(ctx context.Context, prompt, system string) (string, error)
	// ChatParse asks for a JSON response matching schema and decodes it into out
	ChatParse(ctx context.Context, prompt string, schema *gollem.Parameter, system string, out any) error
}

// TaskProvider mirrors subject tasks into an external tracker
type TaskProvider interface {
	Provider

	Create(ctx context.Context, subjectName string, task *model.Task) (*model.Resource, error)
	SetStatus(ctx context.Context, resourceID string, status types.TaskStatus) error
	// List returns the external tasks of the subject
	List(ctx context.Context, subjectName string) ([]*model.Task, error)
}

// MonitorProvider watches links posted in conversations
type MonitorProvider interface {
	Provider

	Matchers() []*regexp.Regexp
	Status(ctx context.Context, url string) (*model.MonitorStatus, error)
}

// ParticipantResolver suggests participants for a subject from its attributes
type ParticipantResolver interface {
	Provider

	Resolve(ctx context.Context, attrs map[string]any) ([]*model.ResolvedParticipant, error)
}

// DocumentResolver suggests reference documents for a subject
type DocumentResolver interface {
	Provider

	Resolve(ctx context.Context, attrs map[string]any, documents []*model.Document) ([]*model.Document, error)
}
