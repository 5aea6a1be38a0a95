package config

import (
	"log/slog"

	"github.com/urfave/cli/v3"

	httpctrl "github.com/Netflix/dispatch-sub000/pkg/controller/http"
	"github.com/Netflix/dispatch-sub000/pkg/service/metrics"
)

// Server holds the HTTP server flags
type Server struct {
	addr      string
	jwtSecret string
	staticDir string
}

func (x *Server) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Category:    "Server",
			Usage:       "Listen address",
			Value:       "127.0.0.1:8000",
			Sources:     cli.EnvVars("DISPATCH_ADDR"),
			Destination: &x.addr,
		},
		&cli.StringFlag{
			Name:        "jwt-secret",
			Category:    "Server",
			Usage:       "HS256 secret for signal ingress and admin API bearer tokens",
			Sources:     cli.EnvVars("JWT_SECRET"),
			Destination: &x.jwtSecret,
		},
		&cli.StringFlag{
			Name:        "static-dir",
			Category:    "Server",
			Usage:       "Directory of the web UI build served at /",
			Sources:     cli.EnvVars("STATIC_DIR"),
			Destination: &x.staticDir,
		},
	}
}

func (x Server) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("addr", x.addr),
		slog.Int("jwt-secret.len", len(x.jwtSecret)),
		slog.String("static-dir", x.staticDir),
	)
}

// Addr returns the listen address
func (x *Server) Addr() string {
	return x.addr
}

// Options builds the HTTP server options. Slack ingress is enabled only with
// a signing secret.
func (x *Server) Options(slack *Slack, recorder metrics.Recorder) []httpctrl.Options {
	var opts []httpctrl.Options
	if slack != nil && slack.IsWebhookConfigured() {
		opts = append(opts, httpctrl.WithSlackSigningSecret(slack.SigningSecret()))
	}
	if x.jwtSecret != "" {
		opts = append(opts, httpctrl.WithJWTSecret(x.jwtSecret))
	}
	if recorder != nil {
		if h := recorder.Handler(); h != nil {
			opts = append(opts, httpctrl.WithMetricsHandler(h))
		}
	}
	if x.staticDir != "" {
		opts = append(opts, httpctrl.WithStaticDir(x.staticDir))
	}
	return opts
}
