package interfaces

import (
	"context"
	"time"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/domain/types"
)

// Repository defines the interface for data persistence. Every tenant-scoped
// call takes the organization slug; backends map it to the organization's
// schema or collection prefix.
type Repository interface {
	Organization() OrganizationRepository
	User() UserRepository

	Project() ProjectRepository
	Individual() IndividualRepository
	Incident() IncidentRepository
	Case() CaseRepository
	Participant() ParticipantRepository
	Event() EventRepository
	Resource() ResourceRepository
	Task() TaskRepository
	Report() ReportRepository
	Prompt() PromptRepository
	SignalInstance() SignalInstanceRepository
	Entity() EntityRepository
	Reminder() ReminderRepository
	Feedback() FeedbackRepository

	IncidentType() CatalogRepository[*model.IncidentType]
	IncidentPriority() CatalogRepository[*model.IncidentPriority]
	IncidentSeverity() CatalogRepository[*model.IncidentSeverity]
	CaseType() CatalogRepository[*model.CaseType]
	CasePriority() CatalogRepository[*model.CasePriority]
	CaseSeverity() CatalogRepository[*model.CaseSeverity]
	Tag() CatalogRepository[*model.Tag]
	TagType() CatalogRepository[*model.TagType]
	Signal() CatalogRepository[*model.Signal]
	SignalFilter() CatalogRepository[*model.SignalFilter]
	EntityType() CatalogRepository[*model.EntityType]
	Notification() CatalogRepository[*model.Notification]
	PluginInstance() CatalogRepository[*model.PluginInstance]
	Document() CatalogRepository[*model.Document]
	Service() CatalogRepository[*model.Service]

	// Migrate creates the core store and the store of every given
	// organization, bringing them to the latest version.
	Migrate(ctx context.Context, orgs ...string) error

	// NextSequence returns the next value of a named per-organization
	// counter, starting at 1.
	NextSequence(ctx context.Context, org string, key string) (int64, error)

	// Lock acquires an exclusive lock on key within the organization and
	// returns its release function. It blocks until acquired or ctx is done.
	Lock(ctx context.Context, org string, key string) (func(), error)

	// WithTx runs fn with a context that groups repository writes of the
	// organization into a single transaction where the backend supports it.
	WithTx(ctx context.Context, org string, fn func(ctx context.Context) error) error

	Close() error
}

// OrganizationRepository stores organizations in the core store
type OrganizationRepository interface {
	Create(ctx context.Context, org *model.Organization) (*model.Organization, error)
	Get(ctx context.Context, slug string) (*model.Organization, error)
	List(ctx context.Context) ([]*model.Organization, error)
}

// UserRepository stores system users in the core store
type UserRepository interface {
	// Upsert creates the user or merges organizations into an existing one
	Upsert(ctx context.Context, u *model.User) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	List(ctx context.Context) ([]*model.User, error)
}

// ProjectRepository stores projects
type ProjectRepository interface {
	Create(ctx context.Context, org string, p *model.Project) (*model.Project, error)
	Update(ctx context.Context, org string, p *model.Project) (*model.Project, error)
	Get(ctx context.Context, org string, id int64) (*model.Project, error)
	GetByName(ctx context.Context, org string, name string) (*model.Project, error)
	List(ctx context.Context, org string) ([]*model.Project, error)
}

// IndividualRepository stores project-scoped people
type IndividualRepository interface {
	// Upsert creates or updates the individual identified by (project, email)
	Upsert(ctx context.Context, org string, i *model.Individual) (*model.Individual, error)
	Get(ctx context.Context, org string, id int64) (*model.Individual, error)
	// GetByEmail returns nil, nil when no individual exists
	GetByEmail(ctx context.Context, org string, projectID int64, email string) (*model.Individual, error)
	List(ctx context.Context, org string, projectID int64) ([]*model.Individual, error)
}

// IncidentRepository stores incidents
type IncidentRepository interface {
	Create(ctx context.Context, org string, i *model.Incident) (*model.Incident, error)
	Update(ctx context.Context, org string, i *model.Incident) (*model.Incident, error)
	Get(ctx context.Context, org string, id int64) (*model.Incident, error)
	GetByName(ctx context.Context, org string, name string) (*model.Incident, error)
	// List returns incidents ordered by reported_at descending. A Text query
	// ranks matches of name over title over description.
	List(ctx context.Context, org string, q model.IncidentQuery) ([]*model.Incident, error)
	Delete(ctx context.Context, org string, id int64) error
}

// CaseRepository stores cases
type CaseRepository interface {
	Create(ctx context.Context, org string, c *model.Case) (*model.Case, error)
	Update(ctx context.Context, org string, c *model.Case) (*model.Case, error)
	Get(ctx context.Context, org string, id int64) (*model.Case, error)
	GetByName(ctx context.Context, org string, name string) (*model.Case, error)
	List(ctx context.Context, org string, q model.CaseQuery) ([]*model.Case, error)
	Delete(ctx context.Context, org string, id int64) error
}

// ParticipantRepository stores participants and their role assignments
type ParticipantRepository interface {
	Create(ctx context.Context, org string, p *model.Participant) (*model.Participant, error)
	// Update replaces the participant including its role list
	Update(ctx context.Context, org string, p *model.Participant) (*model.Participant, error)
	Get(ctx context.Context, org string, id int64) (*model.Participant, error)
	// GetByEmail returns nil, nil when the email does not participate
	GetByEmail(ctx context.Context, org string, subject model.SubjectRef, email string) (*model.Participant, error)
	List(ctx context.Context, org string, subject model.SubjectRef) (model.Participants, error)
	DeleteBySubject(ctx context.Context, org string, subject model.SubjectRef) error
}

// EventRepository stores the append-only subject timeline
type EventRepository interface {
	Create(ctx context.Context, org string, e *model.Event) (*model.Event, error)
	Update(ctx context.Context, org string, e *model.Event) (*model.Event, error)
	Get(ctx context.Context, org string, id string) (*model.Event, error)
	// List returns events ordered by started_at ascending
	List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Event, error)
	// FindLatestByKind returns the newest event whose details kind equals
	// kind and that started at or after since, or nil, nil.
	FindLatestByKind(ctx context.Context, org string, subject model.SubjectRef, kind string, since time.Time) (*model.Event, error)
	Delete(ctx context.Context, org string, id string) error
}

// ResourceRepository stores the resource bundle of subjects
type ResourceRepository interface {
	// Put creates or replaces the resource of (subject, type)
	Put(ctx context.Context, org string, r *model.Resource) (*model.Resource, error)
	// Get returns nil, nil when the subject has no resource of the type
	Get(ctx context.Context, org string, subject model.SubjectRef, t types.ResourceType) (*model.Resource, error)
	List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Resource, error)
	// FindConversation returns the conversation resource bound to the channel
	// and thread. An empty threadID matches dedicated channels only. An
	// incident binding wins over a case binding of the same channel. Returns
	// nil, nil when nothing matches.
	FindConversation(ctx context.Context, org string, channelID, threadID string) (*model.Resource, error)
	Delete(ctx context.Context, org string, subject model.SubjectRef, t types.ResourceType) error
}

// TaskRepository stores subject tasks
type TaskRepository interface {
	Create(ctx context.Context, org string, t *model.Task) (*model.Task, error)
	Update(ctx context.Context, org string, t *model.Task) (*model.Task, error)
	Get(ctx context.Context, org string, id int64) (*model.Task, error)
	// GetByResourceID returns nil, nil when no task mirrors the external id
	GetByResourceID(ctx context.Context, org string, resourceID string) (*model.Task, error)
	List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Task, error)
}

// ReportRepository stores tactical and executive reports
type ReportRepository interface {
	Create(ctx context.Context, org string, r *model.Report) (*model.Report, error)
	// Latest returns the newest report of the type, or nil, nil
	Latest(ctx context.Context, org string, subject model.SubjectRef, t types.ReportType) (*model.Report, error)
	List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Report, error)
}

// PromptRepository stores AI prompt overrides. Create and Update fail with a
// *model.StateConflictError when the write would leave two enabled prompts
// of the same (project, genai_type); nothing is written in that case.
type PromptRepository interface {
	Create(ctx context.Context, org string, p *model.Prompt) (*model.Prompt, error)
	Update(ctx context.Context, org string, p *model.Prompt) (*model.Prompt, error)
	Get(ctx context.Context, org string, id int64) (*model.Prompt, error)
	// GetEnabled returns nil, nil when no prompt of the type is enabled
	GetEnabled(ctx context.Context, org string, projectID int64, t types.GenAIType) (*model.Prompt, error)
	List(ctx context.Context, org string, projectID int64) ([]*model.Prompt, error)
	Delete(ctx context.Context, org string, id int64) error
}

// SignalInstanceRepository stores signal emissions
type SignalInstanceRepository interface {
	Create(ctx context.Context, org string, s *model.SignalInstance) (*model.SignalInstance, error)
	Update(ctx context.Context, org string, s *model.SignalInstance) (*model.SignalInstance, error)
	Get(ctx context.Context, org string, id string) (*model.SignalInstance, error)
	// List returns instances ordered by created_at descending
	List(ctx context.Context, org string, q model.SignalInstanceQuery) ([]*model.SignalInstance, error)
}

// EntityRepository stores entities extracted from signals
type EntityRepository interface {
	// Upsert returns the existing entity of (project, type, value) or creates it
	Upsert(ctx context.Context, org string, e *model.Entity) (*model.Entity, error)
	Get(ctx context.Context, org string, id int64) (*model.Entity, error)
	List(ctx context.Context, org string, projectID int64) ([]*model.Entity, error)
}

// ReminderRepository stores scheduled reminders
type ReminderRepository interface {
	Create(ctx context.Context, org string, r *model.Reminder) (*model.Reminder, error)
	Update(ctx context.Context, org string, r *model.Reminder) (*model.Reminder, error)
	List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Reminder, error)
	// ListDue returns unsent reminders due at or before now
	ListDue(ctx context.Context, org string, now time.Time) ([]*model.Reminder, error)
}

// FeedbackRepository stores incident feedback
type FeedbackRepository interface {
	Create(ctx context.Context, org string, f *model.Feedback) (*model.Feedback, error)
	List(ctx context.Context, org string, subject model.SubjectRef) ([]*model.Feedback, error)
}

// CatalogRepository stores project-scoped configuration items of one kind
type CatalogRepository[T model.CatalogItem] interface {
	Create(ctx context.Context, org string, item T) (T, error)
	Update(ctx context.Context, org string, item T) (T, error)
	Get(ctx context.Context, org string, id int64) (T, error)
	// List returns the items of the project ordered by id
	List(ctx context.Context, org string, projectID int64) ([]T, error)
	Delete(ctx context.Context, org string, id int64) error
}
