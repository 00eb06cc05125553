package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/kettle-bridge/internal/bridges/kettlebridge"
	"github.com/nerrad567/kettle-bridge/internal/fsr"
	"github.com/nerrad567/kettle-bridge/internal/infrastructure/config"
	"github.com/nerrad567/kettle-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/kettle-bridge/internal/kettle"
	"github.com/nerrad567/kettle-bridge/internal/process"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// TelemetrySource exposes what the bridge last published.
// *kettlebridge.Bridge satisfies it.
type TelemetrySource interface {
	LastTelemetry() (kettlebridge.Telemetry, bool)
	Stats() kettlebridge.Stats
}

// SessionStats exposes kettle connection counters.
// *kettle.SessionManager satisfies it.
type SessionStats interface {
	Stats() kettle.Stats
}

// SampleSource exposes the fill-level sampler window.
// *fsr.Sampler satisfies it.
type SampleSource interface {
	Snapshot() fsr.Snapshot
}

// LoopStats reports on a supervised loop. *process.Supervisor satisfies it.
type LoopStats interface {
	Stats() process.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Bridge  TelemetrySource
	Session SessionStats // optional
	Sampler SampleSource // optional; nil when the FSR is disabled
	Loops   []LoopStats  // optional; reported by the health endpoint
	Hub     *Hub         // If set, the server uses this hub instead of creating its own
	Version string
}

// Server is the HTTP status server.
type Server struct {
	cfg     config.APIConfig
	logger  *logging.Logger
	bridge  TelemetrySource
	session SessionStats
	sampler SampleSource
	loops   []LoopStats
	version string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	hub      *Hub
	cancel   context.CancelFunc
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("telemetry source is required")
	}

	hub := deps.Hub
	if hub == nil {
		hub = NewHub(deps.Logger)
	}

	return &Server{
		cfg:     deps.Config,
		logger:  deps.Logger,
		bridge:  deps.Bridge,
		session: deps.Session,
		sampler: deps.Sampler,
		loops:   deps.Loops,
		version: deps.Version,
		hub:     hub,
	}, nil
}

// Hub returns the WebSocket hub the server broadcasts through.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start binds the listener and serves HTTP in a background goroutine.
//
// The bind happens before Start returns, so an address already in use is
// reported here rather than logged later. The hub stays open until Close or
// until ctx is cancelled.
//
// Returns:
//   - error: If the listener cannot be bound
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.cancel = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	// Stops the hub and disconnects WebSocket clients.
	cancel()

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
