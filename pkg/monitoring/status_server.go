package monitoring

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
	"github.com/core-tools/hsu-bootstrap/pkg/processstate"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProcessStatus describes the supervised process at one point in time
type ProcessStatus struct {
	ID       string `json:"id"`
	PID      int    `json:"pid,omitempty"`
	Alive    bool   `json:"alive"`
	ExitCode *int   `json:"exit_code,omitempty"`
}

type ProcessStatusSource interface {
	ProcessStatus() ProcessStatus
}

type RunningChecker interface {
	IsRunning() bool
}

type StatusOptions struct {
	Address string
	Metrics *Metrics
	Health  *HealthMonitor
	Process ProcessStatusSource
	Running RunningChecker
}

type HealthResponse struct {
	Status   string                 `json:"status"`
	Running  bool                   `json:"running"`
	Process  *ProcessStatus         `json:"process,omitempty"`
	Snapshot *processstate.Snapshot `json:"snapshot,omitempty"`
	Check    *HealthCheckState      `json:"check,omitempty"`
}

// StatusServer exposes /metrics and /health for the bootstrap itself
type StatusServer struct {
	options StatusOptions
	logger  logging.Logger
	router  *mux.Router

	mutex    sync.Mutex
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

func NewStatusServer(options StatusOptions, logger logging.Logger) *StatusServer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &StatusServer{
		options: options,
		logger:  logger,
		router:  mux.NewRouter(),
	}

	if registry := options.Metrics.Registry(); registry != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")
	}
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	return s
}

func (s *StatusServer) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background
func (s *StatusServer) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.server != nil {
		return errors.NewConflictError("status server already started", nil)
	}

	listener, err := net.Listen("tcp", s.options.Address)
	if err != nil {
		return errors.NewIOError("failed to listen for status endpoint", err).
			WithContext("address", s.options.Address)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	s.done = make(chan struct{})

	s.logger.Infof("Status endpoint listening on %s", listener.Addr())
	s.logger.Debugf("  GET  /metrics")
	s.logger.Debugf("  GET  /health")

	go func(server *http.Server, done chan struct{}) {
		defer close(done)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Errorf("Status endpoint failed: %v", err)
		}
	}(s.server, s.done)

	return nil
}

// Addr is the bound address, or "" before Start
func (s *StatusServer) Addr() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *StatusServer) Stop(ctx context.Context) error {
	s.mutex.Lock()
	server, done := s.server, s.done
	s.mutex.Unlock()

	if server == nil {
		return nil
	}
	if err := server.Shutdown(ctx); err != nil {
		return errors.NewShutdownError("status endpoint shutdown failed", err)
	}
	<-done
	return nil
}

func (s *StatusServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok", Running: true}

	if s.options.Running != nil {
		response.Running = s.options.Running.IsRunning()
	}
	if s.options.Process != nil {
		status := s.options.Process.ProcessStatus()
		response.Process = &status
		if status.Alive && status.PID > 0 {
			if snapshot, err := processstate.Inspect(r.Context(), status.PID); err == nil {
				response.Snapshot = snapshot
			}
		} else {
			response.Status = "degraded"
		}
	}
	if s.options.Health != nil {
		check := s.options.Health.State()
		response.Check = &check
		if check.Status == HealthCheckStatusDegraded || check.Status == HealthCheckStatusUnhealthy {
			response.Status = "degraded"
		}
	}
	if !response.Running {
		response.Status = "stopping"
	}

	code := http.StatusOK
	if response.Status != "ok" {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response)
}
