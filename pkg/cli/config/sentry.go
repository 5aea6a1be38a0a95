package config

import (
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/utils/errutil"
)

// Sentry holds the error reporting flags
type Sentry struct {
	dsn string
	env string
}

func (x *Sentry) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sentry-dsn",
			Category:    "Sentry",
			Usage:       "Sentry DSN. Error reporting is disabled when empty",
			Sources:     cli.EnvVars("DISPATCH_SENTRY_DSN", "SENTRY_DSN"),
			Destination: &x.dsn,
		},
		&cli.StringFlag{
			Name:        "sentry-env",
			Category:    "Sentry",
			Usage:       "Sentry environment",
			Value:       "production",
			Sources:     cli.EnvVars("DISPATCH_SENTRY_ENV"),
			Destination: &x.env,
		},
	}
}

func (x Sentry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("enabled", x.dsn != ""),
		slog.String("env", x.env),
	)
}

// Configure enables Sentry reporting in errutil. The returned function
// flushes pending events.
func (x *Sentry) Configure(release string) (func(), error) {
	if err := errutil.InitSentry(x.dsn, x.env, release); err != nil {
		return nil, err
	}
	return errutil.Flush, nil
}
