package memory

import (
	"context"
	"sync"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
)

// Repository is an alias for Memory to match the pattern
type Repository = Memory

// Memory is the in-process backend used by tests and --repository-backend=memory
type Memory struct {
	orgs  *organizationRepository
	users *userRepository

	project        *projectRepository
	individual     *individualRepository
	incident       *incidentRepository
	caseRepo       *caseRepository
	participant    *participantRepository
	event          *eventRepository
	resource       *resourceRepository
	task           *taskRepository
	report         *reportRepository
	prompt         *promptRepository
	signalInstance *signalInstanceRepository
	entity         *entityRepository
	reminder       *reminderRepository
	feedback       *feedbackRepository

	incidentType     *catalogRepository[model.IncidentType, *model.IncidentType]
	incidentPriority *catalogRepository[model.IncidentPriority, *model.IncidentPriority]
	incidentSeverity *catalogRepository[model.IncidentSeverity, *model.IncidentSeverity]
	caseType         *catalogRepository[model.CaseType, *model.CaseType]
	casePriority     *catalogRepository[model.CasePriority, *model.CasePriority]
	caseSeverity     *catalogRepository[model.CaseSeverity, *model.CaseSeverity]
	tag              *catalogRepository[model.Tag, *model.Tag]
	tagType          *catalogRepository[model.TagType, *model.TagType]
	signal           *catalogRepository[model.Signal, *model.Signal]
	signalFilter     *catalogRepository[model.SignalFilter, *model.SignalFilter]
	entityType       *catalogRepository[model.EntityType, *model.EntityType]
	notification     *catalogRepository[model.Notification, *model.Notification]
	pluginInstance   *catalogRepository[model.PluginInstance, *model.PluginInstance]
	document         *catalogRepository[model.Document, *model.Document]
	service          *catalogRepository[model.Service, *model.Service]

	seqMu     sync.Mutex
	sequences map[string]map[string]int64

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

var _ interfaces.Repository = &Memory{}

func New() *Memory {
	return &Memory{
		orgs:           newOrganizationRepository(),
		users:          newUserRepository(),
		project:        newProjectRepository(),
		individual:     newIndividualRepository(),
		incident:       newIncidentRepository(),
		caseRepo:       newCaseRepository(),
		participant:    newParticipantRepository(),
		event:          newEventRepository(),
		resource:       newResourceRepository(),
		task:           newTaskRepository(),
		report:         newReportRepository(),
		prompt:         newPromptRepository(),
		signalInstance: newSignalInstanceRepository(),
		entity:         newEntityRepository(),
		reminder:       newReminderRepository(),
		feedback:       newFeedbackRepository(),

		incidentType:     newCatalogRepository[model.IncidentType]("incident type"),
		incidentPriority: newCatalogRepository[model.IncidentPriority]("incident priority"),
		incidentSeverity: newCatalogRepository[model.IncidentSeverity]("incident severity"),
		caseType:         newCatalogRepository[model.CaseType]("case type"),
		casePriority:     newCatalogRepository[model.CasePriority]("case priority"),
		caseSeverity:     newCatalogRepository[model.CaseSeverity]("case severity"),
		tag:              newCatalogRepository[model.Tag]("tag"),
		tagType:          newCatalogRepository[model.TagType]("tag type"),
		signal:           newCatalogRepository[model.Signal]("signal"),
		signalFilter:     newCatalogRepository[model.SignalFilter]("signal filter"),
		entityType:       newCatalogRepository[model.EntityType]("entity type"),
		notification:     newCatalogRepository[model.Notification]("notification"),
		pluginInstance:   newCatalogRepository[model.PluginInstance]("plugin instance"),
		document:         newCatalogRepository[model.Document]("document"),
		service:          newCatalogRepository[model.Service]("service"),

		sequences: make(map[string]map[string]int64),
		locks:     make(map[string]chan struct{}),
	}
}

func (m *Memory) Organization() interfaces.OrganizationRepository { return m.orgs }
func (m *Memory) User() interfaces.UserRepository                 { return m.users }

func (m *Memory) Project() interfaces.ProjectRepository               { return m.project }
func (m *Memory) Individual() interfaces.IndividualRepository         { return m.individual }
func (m *Memory) Incident() interfaces.IncidentRepository             { return m.incident }
func (m *Memory) Case() interfaces.CaseRepository                     { return m.caseRepo }
func (m *Memory) Participant() interfaces.ParticipantRepository       { return m.participant }
func (m *Memory) Event() interfaces.EventRepository                   { return m.event }
func (m *Memory) Resource() interfaces.ResourceRepository             { return m.resource }
func (m *Memory) Task() interfaces.TaskRepository                     { return m.task }
func (m *Memory) Report() interfaces.ReportRepository                 { return m.report }
func (m *Memory) Prompt() interfaces.PromptRepository                 { return m.prompt }
func (m *Memory) SignalInstance() interfaces.SignalInstanceRepository { return m.signalInstance }
func (m *Memory) Entity() interfaces.EntityRepository                 { return m.entity }
func (m *Memory) Reminder() interfaces.ReminderRepository             { return m.reminder }
func (m *Memory) Feedback() interfaces.FeedbackRepository             { return m.feedback }

func (m *Memory) IncidentType() interfaces.CatalogRepository[*model.IncidentType] {
	return m.incidentType
}
func (m *Memory) IncidentPriority() interfaces.CatalogRepository[*model.IncidentPriority] {
	return m.incidentPriority
}
func (m *Memory) IncidentSeverity() interfaces.CatalogRepository[*model.IncidentSeverity] {
	return m.incidentSeverity
}
func (m *Memory) CaseType() interfaces.CatalogRepository[*model.CaseType] {
	return m.caseType
}
func (m *Memory) CasePriority() interfaces.CatalogRepository[*model.CasePriority] {
	return m.casePriority
}
func (m *Memory) CaseSeverity() interfaces.CatalogRepository[*model.CaseSeverity] {
	return m.caseSeverity
}
func (m *Memory) Tag() interfaces.CatalogRepository[*model.Tag] {
	return m.tag
}
func (m *Memory) TagType() interfaces.CatalogRepository[*model.TagType] {
	return m.tagType
}
func (m *Memory) Signal() interfaces.CatalogRepository[*model.Signal] {
	return m.signal
}
func (m *Memory) SignalFilter() interfaces.CatalogRepository[*model.SignalFilter] {
	return m.signalFilter
}
func (m *Memory) EntityType() interfaces.CatalogRepository[*model.EntityType] {
	return m.entityType
}
func (m *Memory) Notification() interfaces.CatalogRepository[*model.Notification] {
	return m.notification
}
func (m *Memory) PluginInstance() interfaces.CatalogRepository[*model.PluginInstance] {
	return m.pluginInstance
}
func (m *Memory) Document() interfaces.CatalogRepository[*model.Document] {
	return m.document
}
func (m *Memory) Service() interfaces.CatalogRepository[*model.Service] {
	return m.service
}

// Migrate is a no-op; the memory backend has no schema
func (m *Memory) Migrate(ctx context.Context, orgs ...string) error {
	return nil
}

func (m *Memory) NextSequence(ctx context.Context, org string, key string) (int64, error) {
	m.seqMu.Lock()
	defer m.seqMu.Unlock()
	if _, ok := m.sequences[org]; !ok {
		m.sequences[org] = make(map[string]int64)
	}
	m.sequences[org][key]++
	return m.sequences[org][key], nil
}

func (m *Memory) Lock(ctx context.Context, org string, key string) (func(), error) {
	m.locksMu.Lock()
	ch, ok := m.locks[org+"/"+key]
	if !ok {
		ch = make(chan struct{}, 1)
		m.locks[org+"/"+key] = ch
	}
	m.locksMu.Unlock()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WithTx runs fn directly; memory writes are applied immediately
func (m *Memory) WithTx(ctx context.Context, org string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *Memory) Close() error {
	return nil
}
