package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/lyngdorf-core/internal/discovery"
	"github.com/nerrad567/lyngdorf-core/internal/entry"
	"github.com/nerrad567/lyngdorf-core/internal/flow"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/config"
	"github.com/nerrad567/lyngdorf-core/internal/infrastructure/logging"
	"github.com/nerrad567/lyngdorf-core/internal/setup"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// FlowManager is satisfied by *flow.Manager.
type FlowManager interface {
	Start(ctx context.Context, source entry.Source, data map[string]string) (flow.Result, error)
	Step(ctx context.Context, flowID string, input map[string]string) (flow.Result, error)
	Get(flowID string) (flow.Result, error)
	List() []flow.Result
	Abort(ctx context.Context, flowID string) error
}

// EntryStore is satisfied by *entry.Registry.
type EntryStore interface {
	List(ctx context.Context, includeIgnored bool) ([]entry.ConfigEntry, error)
	Get(ctx context.Context, id string) (*entry.ConfigEntry, error)
	Delete(ctx context.Context, id string) error
	ConfiguredIDs(ctx context.Context, includeIgnored bool) (map[string]struct{}, error)
}

// ReceiverManager is satisfied by *setup.Manager.
type ReceiverManager interface {
	State(entryID string) (setup.StateMessage, error)
	Command(ctx context.Context, entryID string, cmd setup.CommandMessage) error
	Unload(entryID string) error
}

// DiscoverySource is satisfied by *discovery.Cache.
type DiscoverySource interface {
	ByServiceTypes(sts []string) []discovery.Record
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Flows        FlowManager
	Entries      EntryStore
	Receivers    ReceiverManager // optional: state and commands return 503 without it
	Discoveries  DiscoverySource // optional
	ServiceTypes []string
	Hub          *Hub // If set, the server uses this hub instead of creating its own
	Version      string
}

// Server is the HTTP API server for Lyngdorf Core.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	secCfg       config.SecurityConfig
	logger       *logging.Logger
	flows        FlowManager
	entries      EntryStore
	receivers    ReceiverManager
	discoveries  DiscoverySource
	serviceTypes []string
	version      string
	server       *http.Server
	hub          *Hub
	externalHub  bool               // true if hub was injected externally
	cancel       context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Flows == nil {
		return nil, fmt.Errorf("flow manager is required")
	}
	if deps.Entries == nil {
		return nil, fmt.Errorf("entry registry is required")
	}

	s := &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		secCfg:       deps.Security,
		logger:       deps.Logger,
		flows:        deps.Flows,
		entries:      deps.Entries,
		receivers:    deps.Receivers,
		discoveries:  deps.Discoveries,
		serviceTypes: deps.ServiceTypes,
		version:      deps.Version,
	}

	// The flow manager and receiver setup broadcast through the hub, so
	// main usually creates it first.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the WebSocket hub. It is nil until Start unless one was
// injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub and launches the HTTP
// listener in a background goroutine. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
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

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
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
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
