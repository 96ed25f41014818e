package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"vidpipe/internal/config"
	"vidpipe/internal/jobs"
	"vidpipe/internal/logging"
	"vidpipe/internal/pipeline"
	"vidpipe/internal/progress"
	"vidpipe/internal/provider"
	"vidpipe/internal/services"
)

// JobService is the job manager surface used by the API.
type JobService interface {
	Start(job pipeline.Job) (jobs.Record, error)
	Get(id string) (jobs.Record, error)
	List() []jobs.Record
	Cancel(id string) (jobs.Record, error)
	Subscribe(id string) (<-chan progress.State, func(), error)
}

// BackendService reports and resets router backends.
type BackendService interface {
	Status(now time.Time) []provider.BackendStatus
	Reset(backendID string) error
}

// Server serves the vidpipe API.
type Server struct {
	cfg      config.Server
	workDir  string
	resetDay int
	jobs     JobService
	backends BackendService
	hub      *logging.StreamHub
	metrics  http.Handler
	logger   *slog.Logger
	now      func() time.Time

	httpServer *http.Server
	listener   net.Listener
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBackends enables the backend and quota views.
func WithBackends(b BackendService) Option {
	return func(s *Server) { s.backends = b }
}

// WithLogHub enables the /api/logs long-poll.
func WithLogHub(hub *logging.StreamHub) Option {
	return func(s *Server) { s.hub = hub }
}

// WithMetrics mounts handler at /metrics.
func WithMetrics(handler http.Handler) Option {
	return func(s *Server) { s.metrics = handler }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a server for cfg backed by the job service.
func New(cfg *config.Config, jobSvc JobService, opts ...Option) *Server {
	s := &Server{
		cfg:      cfg.Server,
		workDir:  cfg.Paths.WorkDir,
		resetDay: cfg.Quota.ResetDay,
		jobs:     jobSvc,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "api-server")
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestContext)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware(s.cfg.Token))

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJob)
				r.Delete("/", s.handleCancelJob)
				r.Get("/result", s.handleJobResult)
				r.Get("/events", s.handleEvents)
				r.Get("/ws", s.handleWebSocket)
			})
		})
		r.Get("/backends", s.handleBackends)
		r.Post("/backends/{id}/reset", s.handleResetBackend)
		r.Get("/quota", s.handleQuota)
		r.Get("/logs", s.handleLogs)
	})
	return r
}

// requestContext carries chi's request id into the services context so
// handler logs share a correlation id.
func (s *Server) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			r = r.WithContext(services.WithRequestID(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// Start listens on the configured bind address and serves until ctx ends
// or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.httpServer.BaseContext = func(net.Listener) context.Context { return ctx }
	s.logger.Info("api server listening",
		logging.String(logging.FieldEventType, "api_listening"),
		logging.String("address", listener.Addr().String()),
	)
	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

// Addr returns the bound address once Start is listening.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops accepting connections and waits for handlers to drain.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
