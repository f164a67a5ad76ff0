package monitoring

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
	"github.com/core-tools/hsu-bootstrap/pkg/processstate"
)

type HealthCheckType string

const (
	HealthCheckTypeProcess HealthCheckType = "process"
	HealthCheckTypeTCP     HealthCheckType = "tcp"
	HealthCheckTypeHTTP    HealthCheckType = "http"
)

const (
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultHealthCheckTimeout  = 5 * time.Second
)

type HealthCheckConfig struct {
	// Empty type disables the monitor
	Type HealthCheckType `yaml:"type"`

	// host:port for tcp, full URL for http
	Address string `yaml:"address,omitempty"`

	Interval     time.Duration `yaml:"interval,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
	InitialDelay time.Duration `yaml:"initial_delay,omitempty"`
}

type HealthCheckStatus string

const (
	HealthCheckStatusUnknown   HealthCheckStatus = "unknown"
	HealthCheckStatusHealthy   HealthCheckStatus = "healthy"
	HealthCheckStatusDegraded  HealthCheckStatus = "degraded"
	HealthCheckStatusUnhealthy HealthCheckStatus = "unhealthy"
)

type HealthCheckState struct {
	Status               HealthCheckStatus `json:"status"`
	LastCheck            time.Time         `json:"last_check"`
	Message              string            `json:"message,omitempty"`
	ConsecutiveFailures  int               `json:"consecutive_failures"`
	ConsecutiveSuccesses int               `json:"consecutive_successes"`
}

// PIDSource reports the PID of the supervised process, 0 when there is none
type PIDSource func() int

// HealthMonitor periodically probes the auxiliary process. It only reports;
// it never restarts anything.
type HealthMonitor struct {
	config  HealthCheckConfig
	pid     PIDSource
	client  *http.Client
	logger  logging.Logger
	metrics *Metrics

	mutex    sync.Mutex
	state    HealthCheckState
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewHealthMonitor(config HealthCheckConfig, pid PIDSource, metrics *Metrics, logger logging.Logger) *HealthMonitor {
	if config.Interval <= 0 {
		config.Interval = DefaultHealthCheckInterval
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultHealthCheckTimeout
	}
	if pid == nil {
		pid = func() int { return 0 }
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &HealthMonitor{
		config:   config,
		pid:      pid,
		client:   &http.Client{Timeout: config.Timeout},
		logger:   logger,
		metrics:  metrics,
		state:    HealthCheckState{Status: HealthCheckStatusUnknown},
		stopChan: make(chan struct{}),
	}
}

func (h *HealthMonitor) Start(ctx context.Context) error {
	if err := ValidateHealthCheckConfig(h.config); err != nil {
		return errors.NewValidationError("invalid health check configuration", err)
	}
	if h.config.Type == "" {
		h.logger.Debugf("Health monitor disabled")
		return nil
	}

	h.logger.Infof("Starting health monitor, type: %s, interval: %v", h.config.Type, h.config.Interval)

	h.wg.Add(1)
	go h.loop(ctx)
	return nil
}

// Stop ends the loop and waits for it. Safe to call more than once.
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopChan)
	})
	h.wg.Wait()
}

// State returns a copy of the latest result
func (h *HealthMonitor) State() HealthCheckState {
	if h == nil {
		return HealthCheckState{Status: HealthCheckStatusUnknown}
	}
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.state
}

func (h *HealthMonitor) loop(ctx context.Context) {
	defer h.wg.Done()

	if h.config.InitialDelay > 0 {
		select {
		case <-time.After(h.config.InitialDelay):
		case <-h.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}

	ticker := time.NewTicker(h.config.Interval)
	defer ticker.Stop()

	h.Check()

	for {
		select {
		case <-ticker.C:
			h.Check()
		case <-h.stopChan:
			h.logger.Debugf("Health monitor stopped")
			return
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one probe and folds the result into the state
func (h *HealthMonitor) Check() HealthCheckState {
	var healthy bool
	var message string

	switch h.config.Type {
	case HealthCheckTypeProcess:
		healthy, message = h.checkProcess()
	case HealthCheckTypeTCP:
		healthy, message = h.checkTCP()
	case HealthCheckTypeHTTP:
		healthy, message = h.checkHTTP()
	default:
		healthy, message = false, "unknown health check type: "+string(h.config.Type)
	}

	return h.updateState(healthy, message)
}

func (h *HealthMonitor) updateState(healthy bool, message string) HealthCheckState {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	previous := h.state.Status
	h.state.LastCheck = time.Now()
	h.state.Message = message

	if healthy {
		h.state.ConsecutiveSuccesses++
		h.state.ConsecutiveFailures = 0
		h.state.Status = HealthCheckStatusHealthy
		if previous != HealthCheckStatusHealthy {
			h.logger.Infof("Health check passing, previous: %s, message: %s", previous, message)
		}
	} else {
		h.state.ConsecutiveFailures++
		h.state.ConsecutiveSuccesses = 0
		if h.state.ConsecutiveFailures == 1 {
			h.state.Status = HealthCheckStatusDegraded
		} else {
			h.state.Status = HealthCheckStatusUnhealthy
		}
		h.logger.Warnf("Health check failed, status: %s->%s, consecutive_failures: %d, message: %s",
			previous, h.state.Status, h.state.ConsecutiveFailures, message)
	}

	h.metrics.SetHealth(string(h.state.Status))
	return h.state
}

func (h *HealthMonitor) checkProcess() (bool, string) {
	pid := h.pid()
	if pid <= 0 {
		return false, "no supervised process"
	}
	running, err := processstate.IsProcessRunning(pid)
	if err != nil {
		return false, fmt.Sprintf("process check failed: PID %d: %v", pid, err)
	}
	if !running {
		return false, fmt.Sprintf("process not running: PID %d", pid)
	}
	return true, fmt.Sprintf("process is running: PID %d", pid)
}

func (h *HealthMonitor) checkTCP() (bool, string) {
	conn, err := net.DialTimeout("tcp", h.config.Address, h.config.Timeout)
	if err != nil {
		return false, fmt.Sprintf("TCP connection failed: %v", err)
	}
	defer conn.Close()
	return true, "TCP connection successful to " + h.config.Address
}

func (h *HealthMonitor) checkHTTP() (bool, string) {
	resp, err := h.client.Get(h.config.Address)
	if err != nil {
		return false, fmt.Sprintf("HTTP request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, fmt.Sprintf("HTTP health check passed: %s", resp.Status)
	}
	return false, fmt.Sprintf("HTTP health check failed: %s", resp.Status)
}
