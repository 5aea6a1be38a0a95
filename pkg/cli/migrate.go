package cli

import (
	"context"

	"github.com/m-mizutani/fireconf"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/cli/config"
	"github.com/Netflix/dispatch-sub000/pkg/repository/firestore"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

func cmdMigrate() *cli.Command {
	var repoCfg config.Repository
	var dryRun bool

	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:        "dry-run",
			Usage:       "Preview Firestore index changes without applying",
			Destination: &dryRun,
		},
	}
	flags = append(flags, repoCfg.Flags()...)

	return &cli.Command{
		Name:    "migrate",
		Aliases: []string{"m"},
		Usage:   "Migrate the core store and every organization store",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			// The core store holds the organization list
			if err := repo.Migrate(ctx); err != nil {
				return goerr.Wrap(err, "failed to migrate core store")
			}
			orgs, err := organizationSlugs(ctx, repo)
			if err != nil {
				return err
			}

			if !dryRun {
				if err := repo.Migrate(ctx, orgs...); err != nil {
					return goerr.Wrap(err, "failed to migrate organizations")
				}
				logging.Default().Info("Stores migrated", "backend", repoCfg.Backend(), "organizations", orgs)
			}

			if repoCfg.Backend() == config.BackendFirestore {
				return migrateFirestoreIndexes(ctx, &repoCfg, orgs, dryRun)
			}
			return nil
		},
	}
}

// migrateFirestoreIndexes creates the composite indexes the Firestore
// repository queries need
func migrateFirestoreIndexes(ctx context.Context, repoCfg *config.Repository, orgs []string, dryRun bool) error {
	logger := logging.Default()

	logger.Info("Migrate configuration",
		"projectID", repoCfg.ProjectID(),
		"databaseID", repoCfg.DatabaseID(),
		"organizations", orgs,
		"dryRun", dryRun)

	indexConfig := firestore.Indexes(repoCfg.CollectionPrefix(), orgs...)

	client, err := fireconf.NewClient(ctx, repoCfg.ProjectID(), repoCfg.DatabaseID())
	if err != nil {
		return goerr.Wrap(err, "failed to create fireconf client")
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close fireconf client", "error", err.Error())
		}
	}()

	if dryRun {
		logger.Info("Dry run mode - previewing changes")
		plan, err := client.GetMigrationPlan(ctx, indexConfig)
		if err != nil {
			return goerr.Wrap(err, "failed to create migration plan")
		}

		if len(plan.Steps) == 0 {
			logger.Info("No changes required")
			return nil
		}

		for _, step := range plan.Steps {
			logger.Info("Migration step",
				"collection", step.Collection,
				"operation", step.Operation,
				"description", step.Description,
				"destructive", step.Destructive)
		}
		return nil
	}

	logger.Info("Applying index migrations")
	if err := client.Migrate(ctx, indexConfig); err != nil {
		return goerr.Wrap(err, "failed to apply migrations")
	}
	logger.Info("Index migrations applied successfully")
	return nil
}
