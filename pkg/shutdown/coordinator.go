package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
)

const (
	DefaultGracePeriod = 5 * time.Second

	// hookOverhead is added to the grace period to cap the whole hook
	hookOverhead = 10 * time.Second
)

// Terminator stops the supervised process within grace
type Terminator interface {
	Terminate(grace time.Duration) error
}

// Stopper asks a background task to stop without waiting for it
type Stopper interface {
	Stop()
}

type Options struct {
	// GracePeriod is passed to Terminate as is; zero forces termination
	// right after the signal. Settings default it to DefaultGracePeriod.
	GracePeriod time.Duration
	HookTimeout time.Duration

	// Signals that fire the hook; SIGINT and SIGTERM when empty
	Signals []os.Signal
}

// Coordinator is the single exit hook of the boot sequence
type Coordinator struct {
	options Options
	flag    *RunningFlag
	logger  logging.Logger

	mutex      sync.Mutex
	registered bool
	target     Terminator
	renewal    Stopper

	signals  chan os.Signal
	stopWait chan struct{}

	fireOnce sync.Once
	done     chan struct{}
	err      error
}

func NewCoordinator(flag *RunningFlag, options Options, logger logging.Logger) *Coordinator {
	if options.GracePeriod < 0 {
		options.GracePeriod = 0
	}
	if options.HookTimeout <= 0 {
		options.HookTimeout = options.GracePeriod + hookOverhead
	}
	if len(options.Signals) == 0 {
		options.Signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	if flag == nil {
		flag = NewRunningFlag()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Coordinator{
		options:  options,
		flag:     flag,
		logger:   logger,
		stopWait: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *Coordinator) Flag() *RunningFlag {
	return c.flag
}

// Register records what the hook stops and installs the signal handler.
// Either argument may be nil. Only the first call succeeds.
func (c *Coordinator) Register(target Terminator, renewal Stopper) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.registered {
		return errors.NewConflictError("shutdown hook already registered", nil)
	}
	select {
	case <-c.done:
		return errors.NewConflictError("shutdown hook already fired", nil)
	default:
	}
	c.registered = true
	c.target = target
	c.renewal = renewal

	c.signals = make(chan os.Signal, 1)
	signal.Notify(c.signals, c.options.Signals...)
	go c.waitForSignal()

	c.logger.Debugf("Shutdown hook registered, grace period: %v, hook timeout: %v", c.options.GracePeriod, c.options.HookTimeout)
	return nil
}

func (c *Coordinator) waitForSignal() {
	select {
	case sig := <-c.signals:
		c.logger.Infof("Received signal: %v", sig)
		c.Fire("signal: " + sig.String())
	case <-c.stopWait:
	}
}

// Fire runs the hook once: clear the flag, stop the renewal loop without
// joining it, then terminate the supervised process. Later calls wait for the
// first one and return its result.
func (c *Coordinator) Fire(reason string) error {
	c.fireOnce.Do(func() {
		defer close(c.done)

		c.mutex.Lock()
		target, renewal := c.target, c.renewal
		if c.signals != nil {
			signal.Stop(c.signals)
			close(c.stopWait)
		}
		c.mutex.Unlock()

		c.logger.Infof("Shutting down, reason: %s", reason)
		c.flag.Stop()

		if renewal != nil {
			renewal.Stop()
		}

		c.err = c.terminate(target)
		if c.err != nil {
			c.logger.Errorf("Shutdown finished with errors: %v", c.err)
		} else {
			c.logger.Infof("Shutdown complete")
		}
	})

	<-c.done
	return c.err
}

func (c *Coordinator) terminate(target Terminator) error {
	if target == nil {
		return nil
	}

	result := make(chan error, 1)
	go func() {
		result <- target.Terminate(c.options.GracePeriod)
	}()

	timer := time.NewTimer(c.options.HookTimeout)
	defer timer.Stop()

	collection := errors.NewErrorCollection()
	select {
	case err := <-result:
		if err != nil {
			collection.Add(errors.NewShutdownError("failed to terminate supervised process", err))
		}
	case <-timer.C:
		collection.Add(errors.NewTimeoutError("shutdown hook timed out", nil).
			WithContext("timeout", c.options.HookTimeout.String()))
	}
	return collection.ToError()
}

// Done is closed once the hook has completed
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}
