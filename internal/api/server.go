package api

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-relay/internal/audit"
	"github.com/nerrad567/gray-logic-relay/internal/auth"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-relay/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-relay/internal/relay"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// CommandSubmitter publishes a device command on behalf of a session.
type CommandSubmitter interface {
	Submit(ctx context.Context, cmd relay.Command, session auth.Session) error
}

// BrokerStatus exposes the broker connection state without the ability to
// change it.
type BrokerStatus interface {
	HealthCheck(ctx context.Context) error
	State() mqtt.State
	Reconnects() uint64
	SubscriptionCount() int
}

// AuditRecorder receives account activity entries.
type AuditRecorder interface {
	Record(entry *audit.AuditLog)
	Dropped() uint64
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Security config.SecurityConfig
	Logger   *logging.Logger

	Auth     *auth.Service
	Commands CommandSubmitter

	Hub        *Hub             // If nil, the server creates its own
	Broker     BrokerStatus     // optional: health and metrics
	Metrics    *relay.Metrics   // optional: relay counters in /metrics
	DB         *database.DB     // optional: health and pool stats
	Migrations fs.FS            // optional: schema status in /metrics
	Audit      AuditRecorder    // optional: account activity trail
	Records    audit.Repository // optional: GET /audit

	Version string
}

// Server is the relay's HTTP API: account endpoints, command submission
// and the WebSocket event stream.
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	secCfg   config.SecurityConfig
	logger   *logging.Logger
	auth     *auth.Service
	gate     *auth.Gate
	commands CommandSubmitter
	broker   BrokerStatus
	metrics  *relay.Metrics
	db       *database.DB
	migrate  fs.FS
	audit    AuditRecorder
	records  audit.Repository
	version  string

	hub         *Hub
	externalHub bool

	server    *http.Server
	listener  net.Listener
	startTime time.Time
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates a new API server. It is not listening until Start.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Auth == nil {
		return nil, fmt.Errorf("auth service is required")
	}
	if deps.Commands == nil {
		return nil, fmt.Errorf("command publisher is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		secCfg:    deps.Security,
		logger:    deps.Logger.With("component", "api"),
		auth:      deps.Auth,
		gate:      deps.Auth.Gate(),
		commands:  deps.Commands,
		broker:    deps.Broker,
		metrics:   deps.Metrics,
		db:        deps.DB,
		migrate:   deps.Migrations,
		audit:     deps.Audit,
		records:   deps.Records,
		version:   deps.Version,
		startTime: time.Now(),
	}

	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	} else {
		s.hub = NewHub(s.wsCfg, s.logger)
	}

	return s, nil
}

// Hub returns the WebSocket hub events are broadcast through.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the fully wired router.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background. It also runs the
// hub (unless injected) and the ticket cleanup loop until Close.
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if !s.externalHub {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.hub.Run(srvCtx)
		}()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.gate.CleanTicketsLoop(srvCtx)
	}()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}
	s.listener = ln

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", ln.Addr().String(),
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ServeTLS(ln, s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", ln.Addr().String())
			err = s.server.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close stops background goroutines and shuts the listener down, waiting up
// to 10 seconds for in-flight requests.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.wg.Wait()
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
