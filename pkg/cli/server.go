package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"github.com/Netflix/dispatch-sub000/pkg/cli/config"
	httpctrl "github.com/Netflix/dispatch-sub000/pkg/controller/http"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
)

func cmdServer() *cli.Command {
	var st stack
	var serverCfg config.Server
	var slackCfg config.Slack

	flags := st.flags()
	flags = append(flags, serverCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)

	return &cli.Command{
		Name:  "server",
		Usage: "HTTP server",
		Commands: []*cli.Command{
			{
				Name:    "start",
				Aliases: []string{"s"},
				Usage:   "Start HTTP server",
				Flags:   flags,
				Action: func(ctx context.Context, c *cli.Command) error {
					rt, err := st.build(ctx)
					if err != nil {
						return err
					}
					defer rt.Close()

					if slackCfg.IsWebhookConfigured() {
						logging.Default().Info("Slack ingress enabled")
					} else {
						logging.Default().Warn("Slack signing secret not configured, Slack ingress is disabled")
					}

					server := &http.Server{
						Addr:              serverCfg.Addr(),
						Handler:           httpctrl.New(rt.uc, serverCfg.Options(&slackCfg, rt.metrics)...),
						ReadHeaderTimeout: 30 * time.Second,
					}

					// Setup signal handling for graceful shutdown
					sigCh := make(chan os.Signal, 1)
					signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

					errCh := make(chan error, 1)
					go func() {
						logging.Default().Info("Starting HTTP server", "server", serverCfg, "slack", slackCfg)
						if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
							errCh <- goerr.Wrap(err, "failed to start server")
						}
					}()

					select {
					case err := <-errCh:
						return err
					case sig := <-sigCh:
						logging.Default().Info("Received shutdown signal", "signal", sig)

						shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
						defer cancel()

						if err := server.Shutdown(shutdownCtx); err != nil {
							return goerr.Wrap(err, "failed to shutdown server gracefully")
						}

						logging.Default().Info("Server shutdown completed")
						return nil
					}
				},
			},
		},
	}
}
