package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/cli/config"
	"github.com/Netflix/dispatch-sub000/pkg/service/worker"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

func cmdScheduler() *cli.Command {
	var st stack
	var schedCfg config.Scheduler
	var runOnce string

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "run",
			Usage:       "Run the named job once and exit",
			Destination: &runOnce,
		},
	}
	flags = append(flags, st.flags()...)
	flags = append(flags, schedCfg.Flags()...)

	return &cli.Command{
		Name:  "scheduler",
		Usage: "Periodic jobs",
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start the job scheduler",
				Flags: flags,
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := st.build(ctx)
					if err != nil {
						return err
					}
					defer rt.Close()

					loc, err := schedCfg.Location()
					if err != nil {
						return err
					}

					sched := worker.NewScheduler(worker.WithMetrics(rt.metrics), worker.WithLocation(loc))
					for _, job := range rt.uc.Jobs() {
						if err := sched.Register(ctx, job); err != nil {
							return goerr.Wrap(err, "failed to register job")
						}
					}

					if runOnce != "" {
						return sched.RunNow(ctx, runOnce)
					}

					var refresher *worker.IndividualRefreshWorker
					if interval := schedCfg.RefreshInterval(); interval > 0 {
						refresher = worker.NewIndividualRefreshWorker(rt.repo, rt.registry, rt.orgs, interval)
						refresher.Start(ctx)
					}

					sched.Start()
					logging.Default().Info("Scheduler started", "jobs", sched.Jobs(), "scheduler", schedCfg)

					sigCh := make(chan os.Signal, 1)
					signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
					select {
					case sig := <-sigCh:
						logging.Default().Info("Received shutdown signal", "signal", sig)
					case <-ctx.Done():
					}

					if refresher != nil {
						refresher.Stop()
					}
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
					defer cancel()
					sched.Stop(shutdownCtx)
					return nil
				},
			},
		},
	}
}
