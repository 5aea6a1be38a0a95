package postgres

import (
	"context"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/m-mizutani/goerr/v2"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

//go:embed migrations/core/*.sql migrations/tenant/*.sql
var migrations embed.FS

// Migrate brings the core schema and the schema of each organization to the
// latest version. It is idempotent.
func (p *Postgres) Migrate(ctx context.Context, orgs ...string) error {
	if err := p.migrateSchema(ctx, p.coreSchema, "migrations/core"); err != nil {
		return err
	}
	for _, org := range orgs {
		schema, err := p.schema(org)
		if err != nil {
			return err
		}
		if err := p.migrateSchema(ctx, schema, "migrations/tenant"); err != nil {
			return goerr.Wrap(err, "failed to migrate organization", goerr.V(model.OrgKey, org))
		}
	}
	return nil
}

func (p *Postgres) migrateSchema(ctx context.Context, schema, dir string) error {
	logger := logging.From(ctx).With("schema", schema)

	if _, err := p.pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return goerr.Wrap(err, "failed to create schema", goerr.V("schema", schema))
	}

	// Migration files are unqualified; they land in the schema through the
	// connection's search_path.
	connCfg := p.pool.Config().ConnConfig.Copy()
	if connCfg.RuntimeParams == nil {
		connCfg.RuntimeParams = map[string]string{}
	}
	connCfg.RuntimeParams["search_path"] = schema
	db := stdlib.OpenDB(*connCfg)
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn("failed to close migration connection", "error", err)
		}
	}()

	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{
		SchemaName:      schema,
		MigrationsTable: "schema_migrations",
	})
	if err != nil {
		return goerr.Wrap(err, "failed to create migration driver", goerr.V("schema", schema))
	}

	src, err := iofs.New(migrations, dir)
	if err != nil {
		return goerr.Wrap(err, "failed to open migrations", goerr.V("dir", dir))
	}

	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return goerr.Wrap(err, "failed to create migration instance", goerr.V("schema", schema))
	}
	defer func() {
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			logger.Warn("failed to close migration source", "error", srcErr)
		}
		if dbErr != nil {
			logger.Warn("failed to close migration database", "error", dbErr)
		}
	}()

	err = m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		logger.Debug("schema is up to date")
		return nil
	}
	if err != nil {
		return goerr.Wrap(err, "failed to run migrations", goerr.V("schema", schema))
	}

	version, _, _ := m.Version()
	logger.Info("applied migrations", "version", version)
	return nil
}
