package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/cli/config"
	"github.com/Netflix/dispatch-sub000/pkg/service/plugin"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

func cmdInit() *cli.Command {
	var repoCfg config.Repository
	var secretCfg config.Secret
	var configPath string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "Bootstrap TOML file with organizations, projects and reference data",
			Required:    true,
			Sources:     cli.EnvVars("DISPATCH_CONFIG"),
			Destination: &configPath,
		},
	}
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, secretCfg.Flags()...)

	return &cli.Command{
		Name:  "init",
		Usage: "Create the stores and seed organizations and projects from the bootstrap file",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			bootstrap, err := config.LoadBootstrap(configPath)
			if err != nil {
				return goerr.Wrap(err, "failed to load bootstrap config", goerr.V(config.ConfigPathKey, configPath))
			}
			secrets, err := secretCfg.Configure()
			if err != nil {
				return err
			}

			repo, err := repoCfg.Configure(ctx)
			if err != nil {
				return goerr.Wrap(err, "failed to initialize repository")
			}
			defer func() {
				if err := repo.Close(); err != nil {
					logging.Default().Error("failed to close repository", "error", err.Error())
				}
			}()

			orgs := bootstrap.Slugs()
			if err := repo.Migrate(ctx, orgs...); err != nil {
				return goerr.Wrap(err, "failed to migrate stores")
			}
			if repoCfg.Backend() == config.BackendFirestore {
				if err := migrateFirestoreIndexes(ctx, &repoCfg, orgs, false); err != nil {
					return err
				}
			}

			registry := plugin.New(repo, plugin.WithSecrets(secrets))
			defer registry.Close()

			if err := bootstrap.Apply(ctx, repo, registry); err != nil {
				return goerr.Wrap(err, "failed to seed organizations")
			}

			logging.Default().Info("Initialization completed", "organizations", orgs)
			return nil
		},
	}
}
