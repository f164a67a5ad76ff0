package renewal

import (
	"context"
	stderrors "errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
	"github.com/core-tools/hsu-bootstrap/pkg/monitoring"
)

// Doer is the subset of *http.Client the scheduler uses
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RunningChecker is polled before every attempt
type RunningChecker interface {
	IsRunning() bool
}

// SleepFunc pauses for d and reports false if ctx ended first
type SleepFunc func(ctx context.Context, d time.Duration) bool

type Outcome string

const (
	OutcomeSuccess    Outcome = monitoring.OutcomeSuccess
	OutcomeHTTPStatus Outcome = monitoring.OutcomeSoftFail
	OutcomeTransport  Outcome = monitoring.OutcomeTransport
)

// Scheduler repeats the renewal request while the running flag holds.
// A 200 and any other HTTP status both wait SuccessInterval; only transport
// failures wait FailureInterval.
type Scheduler struct {
	task    Task
	client  Doer
	sleep   SleepFunc
	now     func() time.Time
	metrics *monitoring.Metrics
	logger  logging.Logger

	mutex   sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewScheduler(task Task, logger logging.Logger) *Scheduler {
	task = task.WithDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Scheduler{
		task:   task,
		client: &http.Client{Timeout: task.RequestTimeout},
		sleep:  sleepContext,
		now:    time.Now,
		logger: logger,
		done:   make(chan struct{}),
	}
}

func (s *Scheduler) WithDoer(client Doer) *Scheduler {
	if client != nil {
		s.client = client
	}
	return s
}

func (s *Scheduler) WithSleep(sleep SleepFunc) *Scheduler {
	if sleep != nil {
		s.sleep = sleep
	}
	return s
}

func (s *Scheduler) WithMetrics(metrics *monitoring.Metrics) *Scheduler {
	s.metrics = metrics
	return s
}

// Attempt performs one request under its own timeout
func (s *Scheduler) Attempt() (Outcome, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.task.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, s.task.Method, s.task.Endpoint, http.NoBody)
	if err != nil {
		return OutcomeTransport, errors.NewTransportError("failed to build renewal request", err)
	}
	for key, value := range s.task.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return OutcomeTransport, errors.NewTransportError("renewal request failed", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode != http.StatusOK {
		return OutcomeHTTPStatus, errors.NewHTTPStatusError("unexpected renewal status", nil).
			WithContext("status", resp.StatusCode)
	}
	return OutcomeSuccess, nil
}

// Run loops until flag reports false or ctx is done. Errors never leave the loop.
func (s *Scheduler) Run(ctx context.Context, flag RunningChecker) {
	s.logger.Infof("Renewal loop started, endpoint: %s, interval: %v, retry interval: %v",
		s.task.Endpoint, s.task.SuccessInterval, s.task.FailureInterval)

	for flag.IsRunning() {
		if ctx.Err() != nil {
			break
		}

		outcome, err := s.Attempt()
		s.metrics.RecordRenewal(string(outcome))

		interval := s.task.SuccessInterval
		switch outcome {
		case OutcomeSuccess:
			s.logger.Infof("Renew successful at %s", s.now().Format(time.RFC1123))
		case OutcomeHTTPStatus:
			s.logger.Errorf("Renew failed, HTTP %v", statusOf(err))
		default:
			s.logger.Errorf("Renew error: %v", err)
			interval = s.task.FailureInterval
		}

		if !s.sleep(ctx, interval) {
			break
		}
	}

	s.logger.Infof("Renewal loop stopped")
}

// Start runs the loop on its own goroutine. The goroutine never keeps the
// process alive and is only stopped cooperatively.
func (s *Scheduler) Start(ctx context.Context, flag RunningChecker) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.started {
		return errors.NewConflictError("renewal loop already started", nil)
	}
	s.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go func() {
		defer close(s.done)
		defer cancel()
		s.Run(loopCtx, flag)
	}()
	return nil
}

// Stop interrupts the current sleep. A request in flight finishes under its own timeout.
func (s *Scheduler) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Done is closed when a started loop has returned
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

func statusOf(err error) interface{} {
	var domainErr *errors.DomainError
	if stderrors.As(err, &domainErr) {
		if status, ok := domainErr.Context["status"]; ok {
			return status
		}
	}
	return "unknown"
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
