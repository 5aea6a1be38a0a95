package config

import (
	"context"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/domain/interfaces"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/repository/firestore"
	"github.com/Netflix/dispatch-sub000/pkg/repository/memory"
	"github.com/Netflix/dispatch-sub000/pkg/repository/postgres"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Repository backends
const (
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
	BackendMemory    = "memory"
)

// Repository holds CLI flags for repository backend configuration
type Repository struct {
	backend string

	databaseURL         string
	databaseHostname    string
	databasePort        int
	databaseName        string
	databaseCredentials string
	schemaPrefix        string
	maxConns            int

	projectID        string
	databaseID       string
	collectionPrefix string
}

// Flags returns CLI flags for repository configuration
func (r *Repository) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "repository-backend",
			Category:    "Repository",
			Usage:       "Repository backend type (postgres, firestore or memory)",
			Value:       BackendPostgres,
			Sources:     cli.EnvVars("DISPATCH_REPOSITORY_BACKEND"),
			Destination: &r.backend,
		},
		&cli.StringFlag{
			Name:        "database-url",
			Category:    "Repository",
			Usage:       "PostgreSQL connection URL. Overrides the hostname/name/credentials flags",
			Sources:     cli.EnvVars("DATABASE_URL"),
			Destination: &r.databaseURL,
		},
		&cli.StringFlag{
			Name:        "database-hostname",
			Category:    "Repository",
			Usage:       "PostgreSQL hostname",
			Value:       "localhost",
			Sources:     cli.EnvVars("DATABASE_HOSTNAME"),
			Destination: &r.databaseHostname,
		},
		&cli.IntFlag{
			Name:        "database-port",
			Category:    "Repository",
			Usage:       "PostgreSQL port",
			Value:       5432,
			Sources:     cli.EnvVars("DISPATCH_DATABASE_PORT"),
			Destination: &r.databasePort,
		},
		&cli.StringFlag{
			Name:        "database-name",
			Category:    "Repository",
			Usage:       "PostgreSQL database name",
			Value:       "dispatch",
			Sources:     cli.EnvVars("DATABASE_NAME"),
			Destination: &r.databaseName,
		},
		&cli.StringFlag{
			Name:        "database-credentials",
			Category:    "Repository",
			Usage:       "PostgreSQL credentials as user:password",
			Sources:     cli.EnvVars("DATABASE_CREDENTIALS"),
			Destination: &r.databaseCredentials,
		},
		&cli.StringFlag{
			Name:        "database-schema-prefix",
			Category:    "Repository",
			Usage:       "Prefix of the per-organization schemas",
			Value:       model.DefaultSchemaPrefix,
			Sources:     cli.EnvVars("DISPATCH_DATABASE_SCHEMA_PREFIX"),
			Destination: &r.schemaPrefix,
		},
		&cli.IntFlag{
			Name:        "database-max-conns",
			Category:    "Repository",
			Usage:       "Maximum size of the PostgreSQL connection pool",
			Value:       10,
			Sources:     cli.EnvVars("DISPATCH_DATABASE_MAX_CONNS"),
			Destination: &r.maxConns,
		},
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Category:    "Repository",
			Usage:       "Firestore Project ID (required when using firestore backend)",
			Sources:     cli.EnvVars("DISPATCH_FIRESTORE_PROJECT_ID"),
			Destination: &r.projectID,
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Category:    "Repository",
			Usage:       "Firestore Database ID",
			Sources:     cli.EnvVars("DISPATCH_FIRESTORE_DATABASE_ID"),
			Destination: &r.databaseID,
		},
		&cli.StringFlag{
			Name:        "firestore-collection-prefix",
			Category:    "Repository",
			Usage:       "Prefix of every Firestore collection",
			Value:       "dispatch_",
			Sources:     cli.EnvVars("DISPATCH_FIRESTORE_COLLECTION_PREFIX"),
			Destination: &r.collectionPrefix,
		},
	}
}

// LogValue implements slog.LogValuer
func (r Repository) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("backend", r.backend),
		slog.String("database_hostname", r.databaseHostname),
		slog.String("database_name", r.databaseName),
		slog.Bool("database_url.set", r.databaseURL != ""),
		slog.Int("database_credentials.len", len(r.databaseCredentials)),
		slog.String("schema_prefix", r.schemaPrefix),
		slog.String("firestore_project_id", r.projectID),
		slog.String("firestore_database_id", r.databaseID),
	)
}

// Backend returns the configured backend type
func (r *Repository) Backend() string {
	return r.backend
}

// ProjectID returns the Firestore project ID
func (r *Repository) ProjectID() string {
	return r.projectID
}

// DatabaseID returns the Firestore database ID
func (r *Repository) DatabaseID() string {
	return r.databaseID
}

// CollectionPrefix returns the Firestore collection prefix
func (r *Repository) CollectionPrefix() string {
	return r.collectionPrefix
}

// DSN returns the PostgreSQL connection string. An explicit URL wins over the
// individual connection flags.
func (r *Repository) DSN() (string, error) {
	if r.databaseURL != "" {
		return r.databaseURL, nil
	}
	if r.databaseHostname == "" || r.databaseName == "" {
		return "", goerr.Wrap(ErrInvalidConfig, "database hostname and name are required")
	}

	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(r.databaseHostname, strconv.Itoa(r.databasePort)),
		Path:   "/" + r.databaseName,
	}
	if r.databaseCredentials != "" {
		user, password, ok := strings.Cut(r.databaseCredentials, ":")
		if !ok {
			u.User = url.User(user)
		} else {
			u.User = url.UserPassword(user, password)
		}
	}
	return u.String(), nil
}

// Configure initializes and returns a repository based on the configured backend.
// The caller is responsible for calling Close() on the returned repository.
func (r *Repository) Configure(ctx context.Context) (interfaces.Repository, error) {
	switch r.backend {
	case BackendPostgres:
		dsn, err := r.DSN()
		if err != nil {
			return nil, err
		}
		opts := []postgres.Option{postgres.WithSchemaPrefix(r.schemaPrefix)}
		if r.maxConns > 0 {
			opts = append(opts, postgres.WithMaxConns(int32(r.maxConns))) // #nosec G115
		}
		repo, err := postgres.New(ctx, dsn, opts...)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize postgres repository")
		}
		logging.Default().Info("Using PostgreSQL repository",
			"hostname", r.databaseHostname,
			"database", r.databaseName,
			"schema_prefix", r.schemaPrefix,
		)
		return repo, nil

	case BackendFirestore:
		if r.projectID == "" {
			return nil, goerr.Wrap(ErrInvalidConfig, "firestore-project-id is required when using firestore backend")
		}
		repo, err := firestore.New(ctx, r.projectID,
			firestore.WithDatabaseID(r.databaseID),
			firestore.WithCollectionPrefix(r.collectionPrefix),
		)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to initialize firestore repository")
		}
		logging.Default().Info("Using Firestore repository",
			"project_id", r.projectID,
			"database_id", r.databaseID,
			"collection_prefix", r.collectionPrefix,
		)
		return repo, nil

	case BackendMemory:
		logging.Default().Info("Using in-memory repository (development mode)")
		return memory.New(), nil

	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid repository backend", goerr.V("backend", r.backend))
	}
}
