package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/domain/model"
	"github.com/Netflix/dispatch-sub000/pkg/service/metrics"
	"github.com/Netflix/dispatch-sub000/pkg/usecase"
)

// App holds the flags tuning the flow engine
type App struct {
	uiURL              string
	annualEmployeeCost float64
	businessYearHours  float64
	readInCache        time.Duration
	workerPoolSize     int
}

func (x *App) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "ui-url",
			Category:    "Application",
			Usage:       "Base URL of the web UI used in links",
			Sources:     cli.EnvVars("UI_URL"),
			Destination: &x.uiURL,
		},
		&cli.FloatFlag{
			Name:        "annual-cost-employee",
			Category:    "Application",
			Usage:       "Default annual employee cost for response cost calculation",
			Value:       model.DefaultAnnualEmployeeCost,
			Sources:     cli.EnvVars("ANNUAL_COST_EMPLOYEE"),
			Destination: &x.annualEmployeeCost,
		},
		&cli.FloatFlag{
			Name:        "business-hours-year",
			Category:    "Application",
			Usage:       "Default business hours per year for response cost calculation",
			Value:       model.DefaultBusinessYearHours,
			Sources:     cli.EnvVars("BUSINESS_HOURS_YEAR"),
			Destination: &x.businessYearHours,
		},
		&cli.DurationFlag{
			Name:        "read-in-summary-cache-duration",
			Category:    "Application",
			Usage:       "How long a generated read-in summary is reused",
			Value:       usecase.DefaultReadInCacheDuration,
			Sources:     cli.EnvVars("DISPATCH_READ_IN_SUMMARY_CACHE_DURATION"),
			Destination: &x.readInCache,
		},
		&cli.IntFlag{
			Name:        "worker-pool-size",
			Category:    "Application",
			Usage:       "Maximum number of concurrently running background tasks",
			Value:       usecase.DefaultWorkerPoolSize,
			Sources:     cli.EnvVars("DISPATCH_WORKER_POOL_SIZE"),
			Destination: &x.workerPoolSize,
		},
	}
}

func (x App) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("ui-url", x.uiURL),
		slog.Float64("annual-cost-employee", x.annualEmployeeCost),
		slog.Float64("business-hours-year", x.businessYearHours),
		slog.Duration("read-in-summary-cache-duration", x.readInCache),
		slog.Int("worker-pool-size", x.workerPoolSize),
	)
}

// Validate checks the numeric settings
func (x *App) Validate() error {
	if x.annualEmployeeCost <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "annual-cost-employee must be positive", goerr.V("value", x.annualEmployeeCost))
	}
	if x.businessYearHours <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "business-hours-year must be positive", goerr.V("value", x.businessYearHours))
	}
	if x.readInCache < 0 {
		return goerr.Wrap(ErrInvalidConfig, "read-in-summary-cache-duration must not be negative")
	}
	if x.workerPoolSize <= 0 {
		return goerr.Wrap(ErrInvalidConfig, "worker-pool-size must be positive", goerr.V("value", x.workerPoolSize))
	}
	return nil
}

// Options converts the flags into use case options
func (x *App) Options(recorder metrics.Recorder) ([]usecase.Option, error) {
	if err := x.Validate(); err != nil {
		return nil, err
	}
	opts := []usecase.Option{
		usecase.WithCostModel(x.annualEmployeeCost, x.businessYearHours),
		usecase.WithReadInCacheDuration(x.readInCache),
		usecase.WithWorkerPoolSize(x.workerPoolSize),
	}
	if x.uiURL != "" {
		opts = append(opts, usecase.WithUIURL(x.uiURL))
	}
	if recorder != nil {
		opts = append(opts, usecase.WithMetrics(recorder))
	}
	return opts, nil
}

// Scheduler holds the flags of the periodic job runner
type Scheduler struct {
	timezone        string
	refreshInterval time.Duration
}

func (x *Scheduler) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "scheduler-timezone",
			Category:    "Scheduler",
			Usage:       "Time zone evaluating job schedules",
			Value:       "UTC",
			Sources:     cli.EnvVars("DISPATCH_SCHEDULER_TIMEZONE"),
			Destination: &x.timezone,
		},
		&cli.DurationFlag{
			Name:        "individual-refresh-interval",
			Category:    "Scheduler",
			Usage:       "Interval of the individual profile refresh. Zero disables it",
			Value:       time.Hour,
			Sources:     cli.EnvVars("DISPATCH_INDIVIDUAL_REFRESH_INTERVAL"),
			Destination: &x.refreshInterval,
		},
	}
}

func (x Scheduler) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("timezone", x.timezone),
		slog.Duration("individual-refresh-interval", x.refreshInterval),
	)
}

// Location loads the configured time zone
func (x *Scheduler) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(x.timezone)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid scheduler time zone", goerr.V("timezone", x.timezone))
	}
	return loc, nil
}

// RefreshInterval returns the individual refresh interval
func (x *Scheduler) RefreshInterval() time.Duration {
	return x.refreshInterval
}
