package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/roostlabs/roost/pkg/errdefs"
	"github.com/roostlabs/roost/pkg/events"
	"github.com/roostlabs/roost/pkg/log"
	"github.com/roostlabs/roost/pkg/types"
)

// DefaultListenAddr is where the control API listens unless configured.
const DefaultListenAddr = "127.0.0.1:7441"

// Backend is the control plane the server dispatches to.
type Backend interface {
	ApplyWorkload(w *types.Workload) (*types.Workload, error)
	GetWorkload(namespace, name string) (*types.Workload, error)
	ListWorkloads() ([]*types.Workload, error)
	// DeleteWorkload requests teardown; the reconcile loop drains the
	// units and removes the records.
	DeleteWorkload(namespace, name string) error
	ScaleWorkload(namespace, name string, replicas int) (*types.Workload, error)
	PauseWorkload(namespace, name string, paused bool) (*types.Workload, error)
	// RetireUnit terminates one unit and lets the current template
	// recreate it at the same ordinal with the same volume binding.
	RetireUnit(namespace, workload string, ordinal int) error
	ListUnits(namespace, workload string) ([]*types.Unit, error)
	ListBindings(namespace, workload string) ([]*types.VolumeBinding, error)
}

// Config wires an API server.
type Config struct {
	ListenAddr string
	Backend    Backend
	// Broker feeds the event stream endpoint; nil disables it.
	Broker *events.Broker
}

// Server is the HTTP/JSON control API.
type Server struct {
	backend Backend
	broker  *events.Broker
	logger  zerolog.Logger

	httpServer *http.Server
}

// NewServer builds the API server and its route table.
func NewServer(cfg Config) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}

	s := &Server{
		backend: cfg.Backend,
		broker:  cfg.Broker,
		logger:  log.WithComponent("api"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/workloads", s.handleApply)
	mux.HandleFunc("GET /v1/workloads", s.handleListWorkloads)
	mux.HandleFunc("GET /v1/namespaces/{namespace}/workloads/{name}", s.handleGetWorkload)
	mux.HandleFunc("DELETE /v1/namespaces/{namespace}/workloads/{name}", s.handleDeleteWorkload)
	mux.HandleFunc("POST /v1/namespaces/{namespace}/workloads/{name}/scale", s.handleScale)
	mux.HandleFunc("POST /v1/namespaces/{namespace}/workloads/{name}/pause", s.handlePause)
	mux.HandleFunc("POST /v1/namespaces/{namespace}/workloads/{name}/resume", s.handleResume)
	mux.HandleFunc("GET /v1/namespaces/{namespace}/workloads/{name}/units", s.handleListUnits)
	mux.HandleFunc("DELETE /v1/namespaces/{namespace}/workloads/{name}/units/{ordinal}", s.handleRetireUnit)
	mux.HandleFunc("GET /v1/namespaces/{namespace}/workloads/{name}/bindings", s.handleListBindings)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.httpServer = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: s.withLogging(mux),
		// No WriteTimeout: /v1/events streams indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the route table for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the listener and serves until Stop. Returns once the
// listener is up, or with the bind error.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("bind api listener: %w", err)
	}
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Control API listening")
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server exited")
		}
	}()
	return nil
}

// Stop drains in-flight requests and shuts the listener down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("Handled request")
	})
}

// errorBody is the uniform error payload.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errdefs.IsNotFound(err):
		status = http.StatusNotFound
	case errdefs.IsInvalidSpec(err):
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
