// Package server exposes the scheduler, the approval gate and the execution
// gateway over HTTP, streams their events over a websocket and serves
// Prometheus metrics.
package server

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/teranos/tradepulse/am"
	"github.com/teranos/tradepulse/approval"
	"github.com/teranos/tradepulse/errors"
	"github.com/teranos/tradepulse/execution"
	"github.com/teranos/tradepulse/logger"
	"github.com/teranos/tradepulse/pulse/schedule"
)

// Deps are the components the server exposes. Scheduler, Gate and Gateway
// are required; the rest are optional.
type Deps struct {
	Scheduler *schedule.Scheduler
	Gate      *approval.Gate
	Gateway   *execution.Gateway
	Sweeper   *approval.Sweeper
	Janitor   *execution.Janitor
	Watcher   *am.ConfigWatcher
	Registry  *prometheus.Registry // nil disables /metrics

	// closers release what the server owns (database, redis), in order
	closers []func() error
}

// Options configures the HTTP surface
type Options struct {
	Port           int
	AllowedOrigins []string
}

// Server is the tradepulse HTTP API
type Server struct {
	scheduler *schedule.Scheduler
	gate      *approval.Gate
	gateway   *execution.Gateway
	sweeper   *approval.Sweeper
	janitor   *execution.Janitor
	watcher   *am.ConfigWatcher
	registry  *prometheus.Registry
	closers   []func() error

	hub            *Hub
	mux            *http.ServeMux
	handler        http.Handler
	httpServer     *http.Server
	port           int
	allowedOrigins []string

	state    atomic.Int32
	stopOnce sync.Once
	logger   *zap.SugaredLogger
}

// ServerState is the lifecycle phase of the server
type ServerState int32

const (
	ServerStateCreated ServerState = iota
	ServerStateRunning
	ServerStateDraining
	ServerStateStopped
)

// New wires the hub into every component and builds the routes
func New(deps Deps, opts Options, log *zap.SugaredLogger) (*Server, error) {
	if deps.Scheduler == nil || deps.Gate == nil || deps.Gateway == nil {
		return nil, errors.New("scheduler, gate and gateway are required")
	}
	if log == nil {
		log = logger.ComponentLogger("server")
	}
	if opts.Port == 0 {
		opts.Port = am.DefaultServerPort
	}

	hub := NewHub(log)
	deps.Scheduler.SetBroadcaster(hub)
	deps.Gate.SetBroadcaster(hub)
	deps.Gateway.SetBroadcaster(hub)

	s := &Server{
		scheduler:      deps.Scheduler,
		gate:           deps.Gate,
		gateway:        deps.Gateway,
		sweeper:        deps.Sweeper,
		janitor:        deps.Janitor,
		watcher:        deps.Watcher,
		registry:       deps.Registry,
		closers:        deps.closers,
		hub:            hub,
		port:           opts.Port,
		allowedOrigins: opts.AllowedOrigins,
		logger:         log,
	}
	s.setupHTTPRoutes()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Handler returns the routed API with CORS applied, for httptest or embedding
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub returns the event hub
func (s *Server) Hub() *Hub {
	return s.hub
}

// State returns the current lifecycle phase
func (s *Server) State() ServerState {
	return ServerState(s.state.Load())
}

func (s *Server) setState(state ServerState) {
	s.state.Store(int32(state))
	s.logger.Infow("Server state changed", logger.FieldStatus, state.String())
}

// String returns the human-readable state name
func (st ServerState) String() string {
	switch st {
	case ServerStateCreated:
		return "created"
	case ServerStateRunning:
		return "running"
	case ServerStateDraining:
		return "draining"
	case ServerStateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}
