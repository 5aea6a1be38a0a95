package firestore

import (
	"context"
	"errors"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Firestore keeps every organization in its own set of collections named
// <prefix><slug>_<entity>. Organizations and users live under the core scope.
type Firestore struct {
	client     *firestore.Client
	s          *store
	databaseID string
	lockLease  time.Duration

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
}

var _ interfaces.Repository = &Firestore{}

type Option func(*Firestore)

func WithCollectionPrefix(prefix string) Option {
	return func(f *Firestore) {
		f.s.prefix = prefix
	}
}

func WithDatabaseID(id string) Option {
	return func(f *Firestore) {
		f.databaseID = id
	}
}

// WithLockLease sets how long a lock survives a holder that never releases it
func WithLockLease(d time.Duration) Option {
	return func(f *Firestore) {
		f.lockLease = d
	}
}

func New(ctx context.Context, projectID string, opts ...Option) (*Firestore, error) {
	f := &Firestore{
		s:         &store{},
		lockLease: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}

	var (
		client *firestore.Client
		err    error
	)
	if f.databaseID != "" {
		client, err = firestore.NewClientWithDatabase(ctx, projectID, f.databaseID)
	} else {
		client, err = firestore.NewClient(ctx, projectID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("projectID", projectID), goerr.V("databaseID", f.databaseID))
	}
	f.client = client
	f.s.client = client

	s := f.s
	f.orgs = newOrganizationRepository(s)
	f.users = newUserRepository(s)
	f.project = newProjectRepository(s)
	f.individual = newIndividualRepository(s)
	f.incident = newIncidentRepository(s)
	f.caseRepo = newCaseRepository(s)
	f.participant = newParticipantRepository(s)
	f.event = newEventRepository(s)
	f.resource = newResourceRepository(s)
	f.task = newTaskRepository(s)
	f.report = newReportRepository(s)
	f.prompt = newPromptRepository(s)
	f.signalInstance = newSignalInstanceRepository(s)
	f.entity = newEntityRepository(s)
	f.reminder = newReminderRepository(s)
	f.feedback = newFeedbackRepository(s)

	f.incidentType = newCatalogRepository[model.IncidentType](s, "incident_types", "incident type")
	f.incidentPriority = newCatalogRepository[model.IncidentPriority](s, "incident_priorities", "incident priority")
	f.incidentSeverity = newCatalogRepository[model.IncidentSeverity](s, "incident_severities", "incident severity")
	f.caseType = newCatalogRepository[model.CaseType](s, "case_types", "case type")
	f.casePriority = newCatalogRepository[model.CasePriority](s, "case_priorities", "case priority")
	f.caseSeverity = newCatalogRepository[model.CaseSeverity](s, "case_severities", "case severity")
	f.tag = newCatalogRepository[model.Tag](s, "tags", "tag")
	f.tagType = newCatalogRepository[model.TagType](s, "tag_types", "tag type")
	f.signal = newCatalogRepository[model.Signal](s, "signals", "signal")
	f.signalFilter = newCatalogRepository[model.SignalFilter](s, "signal_filters", "signal filter")
	f.entityType = newCatalogRepository[model.EntityType](s, "entity_types", "entity type")
	f.notification = newCatalogRepository[model.Notification](s, "notifications", "notification")
	f.pluginInstance = newCatalogRepository[model.PluginInstance](s, "plugin_instances", "plugin instance")
	f.document = newCatalogRepository[model.Document](s, "documents", "document")
	f.service = newCatalogRepository[model.Service](s, "services", "service")

	return f, nil
}

func (f *Firestore) Organization() interfaces.OrganizationRepository { return f.orgs }
func (f *Firestore) User() interfaces.UserRepository                 { return f.users }

func (f *Firestore) Project() interfaces.ProjectRepository               { return f.project }
func (f *Firestore) Individual() interfaces.IndividualRepository         { return f.individual }
func (f *Firestore) Incident() interfaces.IncidentRepository             { return f.incident }
func (f *Firestore) Case() interfaces.CaseRepository                     { return f.caseRepo }
func (f *Firestore) Participant() interfaces.ParticipantRepository       { return f.participant }
func (f *Firestore) Event() interfaces.EventRepository                   { return f.event }
func (f *Firestore) Resource() interfaces.ResourceRepository             { return f.resource }
func (f *Firestore) Task() interfaces.TaskRepository                     { return f.task }
func (f *Firestore) Report() interfaces.ReportRepository                 { return f.report }
func (f *Firestore) Prompt() interfaces.PromptRepository                 { return f.prompt }
func (f *Firestore) SignalInstance() interfaces.SignalInstanceRepository { return f.signalInstance }
func (f *Firestore) Entity() interfaces.EntityRepository                 { return f.entity }
func (f *Firestore) Reminder() interfaces.ReminderRepository             { return f.reminder }
func (f *Firestore) Feedback() interfaces.FeedbackRepository             { return f.feedback }

func (f *Firestore) IncidentType() interfaces.CatalogRepository[*model.IncidentType] {
	return f.incidentType
}
func (f *Firestore) IncidentPriority() interfaces.CatalogRepository[*model.IncidentPriority] {
	return f.incidentPriority
}
func (f *Firestore) IncidentSeverity() interfaces.CatalogRepository[*model.IncidentSeverity] {
	return f.incidentSeverity
}
func (f *Firestore) CaseType() interfaces.CatalogRepository[*model.CaseType] {
	return f.caseType
}
func (f *Firestore) CasePriority() interfaces.CatalogRepository[*model.CasePriority] {
	return f.casePriority
}
func (f *Firestore) CaseSeverity() interfaces.CatalogRepository[*model.CaseSeverity] {
	return f.caseSeverity
}
func (f *Firestore) Tag() interfaces.CatalogRepository[*model.Tag] {
	return f.tag
}
func (f *Firestore) TagType() interfaces.CatalogRepository[*model.TagType] {
	return f.tagType
}
func (f *Firestore) Signal() interfaces.CatalogRepository[*model.Signal] {
	return f.signal
}
func (f *Firestore) SignalFilter() interfaces.CatalogRepository[*model.SignalFilter] {
	return f.signalFilter
}
func (f *Firestore) EntityType() interfaces.CatalogRepository[*model.EntityType] {
	return f.entityType
}
func (f *Firestore) Notification() interfaces.CatalogRepository[*model.Notification] {
	return f.notification
}
func (f *Firestore) PluginInstance() interfaces.CatalogRepository[*model.PluginInstance] {
	return f.pluginInstance
}
func (f *Firestore) Document() interfaces.CatalogRepository[*model.Document] {
	return f.document
}
func (f *Firestore) Service() interfaces.CatalogRepository[*model.Service] {
	return f.service
}

// Migrate only checks connectivity. Collections appear on first write and
// composite indexes are applied with fireconf from Indexes.
func (f *Firestore) Migrate(ctx context.Context, orgs ...string) error {
	if _, err := f.orgs.List(ctx); err != nil {
		return goerr.Wrap(err, "failed to reach firestore")
	}
	return nil
}

func (f *Firestore) NextSequence(ctx context.Context, org string, key string) (int64, error) {
	var next int64
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var err error
		next, err = incrementTx(tx, f.s.counter(org, "seq:"+key))
		return err
	})
	if err != nil {
		return 0, goerr.Wrap(err, "failed to get next sequence", goerr.V(model.OrgKey, org), goerr.V("key", key))
	}
	return next, nil
}

type lockRecord struct {
	Owner     string    `firestore:"owner"`
	ExpiresAt time.Time `firestore:"expires_at"`
}

var errLockHeld = errors.New("lock is held by another owner")

// Lock takes a lease document in the organization's locks collection. An
// expired lease is taken over.
func (f *Firestore) Lock(ctx context.Context, org string, key string) (func(), error) {
	ref := f.s.collection(org, "locks").Doc(docKey(key))
	owner := uuid.NewString()

	acquire := func() (struct{}, error) {
		err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			doc, err := tx.Get(ref)
			switch {
			case err == nil:
				var held lockRecord
				if err := doc.DataTo(&held); err != nil {
					return goerr.Wrap(err, "failed to read lock")
				}
				if time.Now().Before(held.ExpiresAt) {
					return errLockHeld
				}
			case !isNotFound(err):
				return goerr.Wrap(err, "failed to get lock")
			}
			return tx.Set(ref, lockRecord{Owner: owner, ExpiresAt: time.Now().Add(f.lockLease)})
		})
		if errors.Is(err, errLockHeld) {
			return struct{}{}, err
		}
		if err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second
	if _, err := backoff.Retry(ctx, acquire, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(0)); err != nil {
		return nil, goerr.Wrap(err, "failed to acquire lock", goerr.V(model.OrgKey, org), goerr.V("key", key))
	}

	release := func() {
		ctx := context.WithoutCancel(ctx)
		err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
			doc, err := tx.Get(ref)
			if err != nil {
				if isNotFound(err) {
					return nil
				}
				return err
			}
			var held lockRecord
			if err := doc.DataTo(&held); err != nil {
				return err
			}
			if held.Owner != owner {
				return nil
			}
			return tx.Delete(ref)
		})
		if err != nil {
			logging.From(ctx).Warn("failed to release lock", "org", org, "key", key, "error", err)
		}
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

// WithTx runs fn directly. Repository methods that must be atomic use
// Firestore transactions internally.
func (f *Firestore) WithTx(ctx context.Context, org string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (f *Firestore) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
