package cli

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/cli/config"
	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

// Exit codes
const (
	ExitOK          = 0
	ExitUserError   = 1
	ExitSystemError = 2
)

func Run(ctx context.Context, args []string, version string) error {
	var loggerCfg config.Logger
	var sentryCfg config.Sentry
	var closers []func()

	flags := append(loggerCfg.Flags(), sentryCfg.Flags()...)

	app := &cli.Command{
		Name:    "dispatch",
		Usage:   "Incident and case response coordinator",
		Version: version,
		Flags:   flags,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closers = append(closers, f)

			flush, err := sentryCfg.Configure(version)
			if err != nil {
				return ctx, err
			}
			closers = append(closers, flush)

			logging.Default().Info("Starting dispatch", "logger", loggerCfg, "sentry", sentryCfg)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			return nil
		},
		OnUsageError: func(ctx context.Context, c *cli.Command, err error, isSubcommand bool) error {
			return cli.Exit(err.Error(), ExitUserError)
		},
		// Exit codes are decided by the caller through ExitCode
		ExitErrHandler: func(ctx context.Context, c *cli.Command, err error) {},
		Commands: []*cli.Command{
			cmdInit(),
			cmdMigrate(),
			cmdShell(),
			cmdPlugins(),
			cmdScheduler(),
			cmdServer(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		logging.Default().Error("failed to run app", "error", err)
		return err
	}

	return nil
}

// ExitCode maps a Run error to the process exit status: 1 for operator
// mistakes, 2 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		return exitCoder.ExitCode()
	}

	var verr *model.ValidationError
	if errors.As(err, &verr) || errors.Is(err, model.ErrInvalidInput) || config.IsUserError(err) {
		return ExitUserError
	}
	return ExitSystemError
}
