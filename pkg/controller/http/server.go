package http

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Netflix/dispatch-sub000/pkg/usecase"
	"github.com/Netflix/dispatch-sub000/pkg/utils/logging"
	"github.com/Netflix/dispatch-sub000/pkg/utils/safe"
)

type Server struct {
	router             *chi.Mux
	uc                 *usecase.UseCases
	slackSigningSecret string
	jwtSecret          []byte
	metricsHandler     http.Handler
	staticDir          string
}

type Options func(*Server)

// WithSlackSigningSecret enables the Slack ingress endpoints
func WithSlackSigningSecret(secret string) Options {
	return func(s *Server) {
		s.slackSigningSecret = secret
	}
}

// WithJWTSecret enables signal ingress and the admin API. Requests must carry
// an HS256 bearer token signed with secret.
func WithJWTSecret(secret string) Options {
	return func(s *Server) {
		s.jwtSecret = []byte(secret)
	}
}

// WithMetricsHandler serves h at /metrics
func WithMetricsHandler(h http.Handler) Options {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// WithStaticDir serves the web UI build in dir at /
func WithStaticDir(dir string) Options {
	return func(s *Server) {
		s.staticDir = dir
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router: r,
		uc:     uc,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(middleware.RequestID)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	// Slack ingress, authenticated by request signature
	if s.slackSigningSecret != "" {
		r.Route("/slack", func(r chi.Router) {
			r.Use(SlackSignatureMiddleware(s.slackSigningSecret))
			r.Post("/event", slackEventHandler(uc))
			r.Post("/command", slackCommandHandler(uc))
			r.Post("/action", slackActionHandler(uc))
		})
	}

	if len(s.jwtSecret) > 0 {
		r.With(jwtMiddleware(s.jwtSecret)).Post("/signals/instance", signalInstanceHandler(uc))

		r.Route("/api/v1/{organization}", func(r chi.Router) {
			r.Use(jwtMiddleware(s.jwtSecret))
			r.Use(organizationMiddleware(uc))
			r.Get("/incidents", listIncidentsHandler(uc))
			r.Get("/incidents/{id}", getIncidentHandler(uc))
			r.Get("/cases", listCasesHandler(uc))
			r.Get("/cases/{id}", getCaseHandler(uc))
			r.Get("/prompts", listPromptsHandler(uc))
			r.Post("/prompts", createPromptHandler(uc))
			r.Get("/prompts/{id}", getPromptHandler(uc))
			r.Put("/prompts/{id}", updatePromptHandler(uc))
			r.Delete("/prompts/{id}", deletePromptHandler(uc))
			r.Get("/plugins", listPluginInstancesHandler(uc))
			r.Put("/plugins/{id}", updatePluginInstanceHandler(uc))
			r.Get("/signals", listSignalsHandler(uc))
			r.Get("/signals/instances", listSignalInstancesHandler(uc))
			r.Post("/signals/instances", signalInstanceHandler(uc))
		})
	}

	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler)
	}

	// Static file serving for SPA (catch-all, must be last)
	if s.staticDir != "" {
		r.Get("/*", spaHandler(os.DirFS(s.staticDir)))
	}

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		logger := logging.Default().With("request_id", middleware.GetReqID(r.Context()))
		ctx := logging.With(r.Context(), logger)

		defer func() {
			logger.Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r.WithContext(ctx))
	})
}

// writeJSON writes v with the status code
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.From(r.Context()).Error("failed to write response", "error", err)
	}
}

// spaHandler handles SPA routing by serving static files and falling back to index.html
func spaHandler(staticFS fs.FS) http.HandlerFunc {
	fileServer := http.FileServer(http.FS(staticFS))

	return func(w http.ResponseWriter, r *http.Request) {
		urlPath := strings.TrimPrefix(r.URL.Path, "/")
		if urlPath == "" {
			urlPath = "index.html"
		}

		file, err := staticFS.Open(urlPath)
		if err != nil {
			indexFile, err := staticFS.Open("index.html")
			if err != nil {
				http.NotFound(w, r)
				return
			}
			defer safe.Close(r.Context(), indexFile)
			w.Header().Set("Content-Type", "text/html")
			safe.Copy(r.Context(), w, indexFile)
			return
		}
		safe.Close(r.Context(), file)

		fileServer.ServeHTTP(w, r)
	}
}
