package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/housing-backoffice/internal/audit"
	"github.com/nerrad567/housing-backoffice/internal/auth"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/config"
	"github.com/nerrad567/housing-backoffice/internal/infrastructure/logging"
	"github.com/nerrad567/housing-backoffice/internal/records"
)

// gracefulShutdownTimeout bounds how long Close waits for in-flight requests.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a dependency reported by /api/v1/health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EventRecorder accepts audit events without blocking.
type EventRecorder interface {
	Record(e audit.Event) bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    config.APIConfig
	WS        config.WebSocketConfig
	RateLimit config.RateLimitConfig
	Logger    *logging.Logger

	Auth    *auth.Service
	Pages   *auth.PageAccess // defaults to auth.DefaultPageAccess()
	Records records.Store
	Audit   audit.Repository

	// Recorder receives audit events. Optional.
	Recorder EventRecorder

	// Hub is the activity feed hub. If nil the server creates its own; pass
	// one in when an audit HubSink needs it before the server exists.
	Hub *Hub

	// Registry holds the Prometheus collectors served on /metrics.
	// If nil the server creates a private registry.
	Registry *prometheus.Registry

	// Checks are reported by name on the health endpoint.
	Checks map[string]HealthChecker

	// AllowAdminRegistration lets POST /register create Admin accounts.
	AllowAdminRegistration bool

	Version string
}

// Server is the back office HTTP server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	auth      *auth.Service
	pages     *auth.PageAccess
	records   records.Store
	audit     audit.Repository
	recorder  EventRecorder
	hub       *Hub
	tickets   *ticketStore
	limiter   *loginLimiter
	registry  *prometheus.Registry
	httpStats *httpMetrics
	checks    map[string]HealthChecker
	version   string
	startTime time.Time

	allowAdminRegistration bool

	server *http.Server
	cancel context.CancelFunc
}

// New creates a server. It is not listening until Start is called.
//
// Returns an error if a required dependency (logger, auth service, record
// store, audit repository) is missing or metrics cannot be registered.
func New(deps Deps) (*Server, error) {
	switch {
	case deps.Logger == nil:
		return nil, fmt.Errorf("logger is required")
	case deps.Auth == nil:
		return nil, fmt.Errorf("auth service is required")
	case deps.Records == nil:
		return nil, fmt.Errorf("record store is required")
	case deps.Audit == nil:
		return nil, fmt.Errorf("audit repository is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		auth:      deps.Auth,
		pages:     deps.Pages,
		records:   deps.Records,
		audit:     deps.Audit,
		recorder:  deps.Recorder,
		hub:       deps.Hub,
		tickets:   newTicketStore(),
		limiter:   newLoginLimiter(deps.RateLimit),
		registry:  deps.Registry,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),

		allowAdminRegistration: deps.AllowAdminRegistration,
	}
	if s.pages == nil {
		s.pages = auth.DefaultPageAccess()
	}
	if s.hub == nil {
		s.hub = NewHub(deps.WS, deps.Logger)
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
	}

	stats, err := newHTTPMetrics(s.registry)
	if err != nil {
		return nil, err
	}
	s.httpStats = stats

	return s, nil
}

// Handler returns the fully wired router. Start uses it; tests call it
// directly with httptest.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start launches the hub, the housekeeping loops and the HTTP listener.
// It returns immediately; listener errors are logged.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)
	go s.tickets.cleanLoop(srvCtx)
	go s.limiter.cleanLoop(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.Handler(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS", "address", s.server.Addr, "cert", s.cfg.TLS.CertFile)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close stops background loops and shuts the listener down, waiting up to
// gracefulShutdownTimeout for in-flight requests.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// Hub returns the activity feed hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// record forwards an audit event, stamping the client address.
func (s *Server) record(r *http.Request, e audit.Event) {
	if s.recorder == nil {
		return
	}
	if e.SourceIP == "" {
		e.SourceIP = clientIP(r)
	}
	s.recorder.Record(e)
}
