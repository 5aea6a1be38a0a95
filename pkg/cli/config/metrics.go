package config

import (
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/service/metrics"
)

// Metrics holds the metric exporter selection
type Metrics struct {
	providers string
}

func (x *Metrics) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "metric-providers",
			Category:    "Metrics",
			Usage:       "Comma separated metric providers (prometheus)",
			Sources:     cli.EnvVars("METRIC_PROVIDERS"),
			Destination: &x.providers,
		},
	}
}

func (x Metrics) LogValue() slog.Value {
	return slog.GroupValue(slog.String("providers", x.providers))
}

func (x *Metrics) Configure() (metrics.Recorder, error) {
	r, err := metrics.New(x.providers)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, err.Error(), goerr.V("providers", x.providers))
	}
	return r, nil
}
