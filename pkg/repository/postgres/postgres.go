package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Postgres stores the core tables in one schema and each organization in a
// schema of its own, named <prefix>_<slug>.
type Postgres struct {
	pool         *pgxpool.Pool
	schemaPrefix string
	coreSchema   string
	maxConns     int32

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

var _ interfaces.Repository = &Postgres{}

type Option func(*Postgres)

// WithSchemaPrefix sets the prefix of organization schemas
func WithSchemaPrefix(prefix string) Option {
	return func(p *Postgres) {
		p.schemaPrefix = prefix
	}
}

// WithCoreSchema sets the schema holding organizations and users
func WithCoreSchema(schema string) Option {
	return func(p *Postgres) {
		p.coreSchema = schema
	}
}

func WithMaxConns(n int32) Option {
	return func(p *Postgres) {
		p.maxConns = n
	}
}

func New(ctx context.Context, dsn string, opts ...Option) (*Postgres, error) {
	p := &Postgres{
		schemaPrefix: model.DefaultSchemaPrefix,
		coreSchema:   model.CoreSchema,
		maxConns:     25,
	}
	for _, opt := range opts {
		opt(p)
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse database URL")
	}
	cfg.MaxConns = p.maxConns
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, goerr.Wrap(err, "failed to ping database", goerr.V("host", cfg.ConnConfig.Host))
	}
	p.pool = pool

	p.orgs = &organizationRepository{db: p}
	p.users = &userRepository{db: p}
	p.project = newProjectRepository(p)
	p.individual = newIndividualRepository(p)
	p.incident = newIncidentRepository(p)
	p.caseRepo = newCaseRepository(p)
	p.participant = newParticipantRepository(p)
	p.event = newEventRepository(p)
	p.resource = newResourceRepository(p)
	p.task = newTaskRepository(p)
	p.report = newReportRepository(p)
	p.prompt = newPromptRepository(p)
	p.signalInstance = newSignalInstanceRepository(p)
	p.entity = newEntityRepository(p)
	p.reminder = newReminderRepository(p)
	p.feedback = newFeedbackRepository(p)

	p.incidentType = newCatalogRepository[model.IncidentType](p, "incident_type")
	p.incidentPriority = newCatalogRepository[model.IncidentPriority](p, "incident_priority")
	p.incidentSeverity = newCatalogRepository[model.IncidentSeverity](p, "incident_severity")
	p.caseType = newCatalogRepository[model.CaseType](p, "case_type")
	p.casePriority = newCatalogRepository[model.CasePriority](p, "case_priority")
	p.caseSeverity = newCatalogRepository[model.CaseSeverity](p, "case_severity")
	p.tag = newCatalogRepository[model.Tag](p, "tag")
	p.tagType = newCatalogRepository[model.TagType](p, "tag_type")
	p.signal = newCatalogRepository[model.Signal](p, "signal")
	p.signalFilter = newCatalogRepository[model.SignalFilter](p, "signal_filter")
	p.entityType = newCatalogRepository[model.EntityType](p, "entity_type")
	p.notification = newCatalogRepository[model.Notification](p, "notification")
	p.pluginInstance = newCatalogRepository[model.PluginInstance](p, "plugin_instance")
	p.document = newCatalogRepository[model.Document](p, "document")
	p.service = newCatalogRepository[model.Service](p, "service")

	return p, nil
}

func (p *Postgres) Organization() interfaces.OrganizationRepository { return p.orgs }
func (p *Postgres) User() interfaces.UserRepository                 { return p.users }

func (p *Postgres) Project() interfaces.ProjectRepository               { return p.project }
func (p *Postgres) Individual() interfaces.IndividualRepository         { return p.individual }
func (p *Postgres) Incident() interfaces.IncidentRepository             { return p.incident }
func (p *Postgres) Case() interfaces.CaseRepository                     { return p.caseRepo }
func (p *Postgres) Participant() interfaces.ParticipantRepository       { return p.participant }
func (p *Postgres) Event() interfaces.EventRepository                   { return p.event }
func (p *Postgres) Resource() interfaces.ResourceRepository             { return p.resource }
func (p *Postgres) Task() interfaces.TaskRepository                     { return p.task }
func (p *Postgres) Report() interfaces.ReportRepository                 { return p.report }
func (p *Postgres) Prompt() interfaces.PromptRepository                 { return p.prompt }
func (p *Postgres) SignalInstance() interfaces.SignalInstanceRepository { return p.signalInstance }
func (p *Postgres) Entity() interfaces.EntityRepository                 { return p.entity }
func (p *Postgres) Reminder() interfaces.ReminderRepository             { return p.reminder }
func (p *Postgres) Feedback() interfaces.FeedbackRepository             { return p.feedback }

func (p *Postgres) IncidentType() interfaces.CatalogRepository[*model.IncidentType] {
	return p.incidentType
}
func (p *Postgres) IncidentPriority() interfaces.CatalogRepository[*model.IncidentPriority] {
	return p.incidentPriority
}
func (p *Postgres) IncidentSeverity() interfaces.CatalogRepository[*model.IncidentSeverity] {
	return p.incidentSeverity
}
func (p *Postgres) CaseType() interfaces.CatalogRepository[*model.CaseType] {
	return p.caseType
}
func (p *Postgres) CasePriority() interfaces.CatalogRepository[*model.CasePriority] {
	return p.casePriority
}
func (p *Postgres) CaseSeverity() interfaces.CatalogRepository[*model.CaseSeverity] {
	return p.caseSeverity
}
func (p *Postgres) Tag() interfaces.CatalogRepository[*model.Tag] {
	return p.tag
}
func (p *Postgres) TagType() interfaces.CatalogRepository[*model.TagType] {
	return p.tagType
}
func (p *Postgres) Signal() interfaces.CatalogRepository[*model.Signal] {
	return p.signal
}
func (p *Postgres) SignalFilter() interfaces.CatalogRepository[*model.SignalFilter] {
	return p.signalFilter
}
func (p *Postgres) EntityType() interfaces.CatalogRepository[*model.EntityType] {
	return p.entityType
}
func (p *Postgres) Notification() interfaces.CatalogRepository[*model.Notification] {
	return p.notification
}
func (p *Postgres) PluginInstance() interfaces.CatalogRepository[*model.PluginInstance] {
	return p.pluginInstance
}
func (p *Postgres) Document() interfaces.CatalogRepository[*model.Document] {
	return p.document
}
func (p *Postgres) Service() interfaces.CatalogRepository[*model.Service] {
	return p.service
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

// q returns the transaction bound to ctx by WithTx, or the pool
func (p *Postgres) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return p.pool
}

func (p *Postgres) WithTx(ctx context.Context, org string, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction", goerr.V(model.OrgKey, org))
	}
	defer func() {
		if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			logging.From(ctx).Warn("failed to rollback transaction", "error", err)
		}
	}()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return goerr.Wrap(err, "failed to commit transaction", goerr.V(model.OrgKey, org))
	}
	return nil
}

// schema returns the schema of the organization
func (p *Postgres) schema(org string) (string, error) {
	if err := model.ValidateOrganizationSlug(org); err != nil {
		return "", goerr.Wrap(model.ErrInvalidInput, "invalid organization", goerr.V(model.OrgKey, org))
	}
	return model.SchemaName(p.schemaPrefix, org), nil
}

// table returns the quoted, schema-qualified name of an organization table
func (p *Postgres) table(org, name string) (string, error) {
	schema, err := p.schema(org)
	if err != nil {
		return "", err
	}
	return pgx.Identifier{schema, name}.Sanitize(), nil
}

func (p *Postgres) coreTable(name string) string {
	return pgx.Identifier{p.coreSchema, name}.Sanitize()
}

func (p *Postgres) NextSequence(ctx context.Context, org string, key string) (int64, error) {
	tbl, err := p.table(org, "sequence")
	if err != nil {
		return 0, err
	}
	var v int64
	err = p.q(ctx).QueryRow(ctx,
		`INSERT INTO `+tbl+` AS s (key, value) VALUES ($1, 1)
		 ON CONFLICT (key) DO UPDATE SET value = s.value + 1
		 RETURNING value`, key).Scan(&v)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to increment sequence", goerr.V(model.OrgKey, org), goerr.V("key", key))
	}
	return v, nil
}

// Lock holds a session advisory lock on a dedicated connection until the
// returned function is called.
func (p *Postgres) Lock(ctx context.Context, org string, key string) (func(), error) {
	schema, err := p.schema(org)
	if err != nil {
		return nil, err
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to acquire connection for lock", goerr.V(model.OrgKey, org), goerr.V("key", key))
	}

	lockKey := schema + ":" + key
	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtextextended($1, 0))`, lockKey); err != nil {
		conn.Release()
		return nil, goerr.Wrap(err, "failed to take advisory lock", goerr.V(model.OrgKey, org), goerr.V("key", key))
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock(hashtextextended($1, 0))`, lockKey); err != nil {
			logging.Default().Warn("failed to release advisory lock", "key", lockKey, "error", err)
		}
		conn.Release()
	}, nil
}

// Drop removes the schemas of the given organizations and the core schema
func (p *Postgres) Drop(ctx context.Context, orgs ...string) error {
	for _, org := range orgs {
		schema, err := p.schema(org)
		if err != nil {
			return err
		}
		if _, err := p.pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{schema}.Sanitize()+` CASCADE`); err != nil {
			return goerr.Wrap(err, "failed to drop schema", goerr.V("schema", schema))
		}
	}
	if _, err := p.pool.Exec(ctx, `DROP SCHEMA IF EXISTS `+pgx.Identifier{p.coreSchema}.Sanitize()+` CASCADE`); err != nil {
		return goerr.Wrap(err, "failed to drop core schema", goerr.V("schema", p.coreSchema))
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
