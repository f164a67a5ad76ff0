package supervisor

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/envconfig"
	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
	"github.com/core-tools/hsu-bootstrap/pkg/monitoring"
	"github.com/core-tools/hsu-bootstrap/pkg/process"
	"github.com/core-tools/hsu-bootstrap/pkg/processfile"
)

const (
	DefaultGracePeriod = 5 * time.Second

	// ForceKillTimeout bounds the wait after the forceful kill
	ForceKillTimeout = 5 * time.Second
)

type Options struct {
	// ID names the process in logs, output prefixes, metrics and the PID file
	ID string

	// Output receives the child's merged stdout and stderr, os.Stdout if nil
	Output io.Writer

	WaitDelay time.Duration

	// Optional collaborators
	PIDFiles *processfile.ProcessFileManager
	Metrics  *monitoring.Metrics
}

// Supervisor owns at most one external process at a time
type Supervisor struct {
	options Options
	logger  logging.Logger

	mutex   sync.Mutex
	current *SupervisedProcess

	terminate func(pid int) error
	kill      func(pid int) error
}

func NewSupervisor(options Options, logger logging.Logger) *Supervisor {
	if options.ID == "" {
		options.ID = "supervised"
	}
	if options.Output == nil {
		options.Output = os.Stdout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Supervisor{
		options:   options,
		logger:    logger,
		terminate: process.SendTerminationSignal,
		kill:      process.KillProcessGroup,
	}
}

// Start launches command with cfg overlaid on the inherited environment.
// An empty workingDir means the current directory.
func (s *Supervisor) Start(ctx context.Context, command string, args []string, workingDir string, cfg *envconfig.EffectiveConfig) (*SupervisedProcess, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	id := s.options.ID

	if s.current.IsAlive() {
		return nil, errors.NewConflictError("a supervised process is already running", nil).
			WithContext("id", id).
			WithContext("pid", s.current.pid)
	}

	if s.options.PIDFiles != nil {
		s.options.PIDFiles.CheckStale(id)
	}

	output := process.NewPrefixedWriter(id, s.options.Output)
	execution := process.ExecutionConfig{
		ExecutablePath:   command,
		Args:             args,
		Environment:      cfg.Environ(),
		WorkingDirectory: workingDir,
		WaitDelay:        s.options.WaitDelay,
	}

	cmd, err := process.NewStdExecuteCmd(execution, id, output, s.logger)(ctx)
	if err != nil {
		s.logger.Errorf("Failed to start process, id: %s, command: %s, error: %v", id, command, err)
		if errors.IsProcessStartError(err) {
			return nil, err
		}
		return nil, errors.NewProcessStartError("failed to start process", err).WithContext("id", id)
	}

	p := &SupervisedProcess{
		id:         id,
		command:    command,
		args:       append([]string(nil), args...),
		workingDir: workingDir,
		config:     cfg,
		pid:        cmd.Process.Pid,
		cmd:        cmd,
		output:     output,
		done:       make(chan struct{}),
	}
	s.current = p

	s.options.Metrics.SetProcessUp(id, true)
	if s.options.PIDFiles != nil {
		if err := s.options.PIDFiles.WritePIDFile(id, p.pid); err != nil {
			s.logger.Warnf("Continuing without PID file, id: %s, error: %v", id, err)
		}
	}

	go s.monitor(p)

	s.logger.Infof("Supervising process, id: %s, PID: %d, variables: %d", id, p.pid, cfg.Len())
	return p, nil
}

func (s *Supervisor) monitor(p *SupervisedProcess) {
	err := p.cmd.Wait()
	_ = p.output.Flush()

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}
	p.exitCode = code

	switch {
	case code == 0:
		s.logger.Infof("Process exited, id: %s, PID: %d, exit code: 0", p.id, p.pid)
	case code > 0:
		s.logger.Warnf("Process exited with nonzero code, id: %s, PID: %d, exit code: %d", p.id, p.pid, code)
	default:
		s.logger.Warnf("Process ended without exit code, id: %s, PID: %d, error: %v", p.id, p.pid, err)
	}

	s.options.Metrics.SetProcessUp(p.id, false)
	s.options.Metrics.RecordExit(p.id, code)
	if s.options.PIDFiles != nil {
		_ = s.options.PIDFiles.RemovePIDFile(p.id)
	}

	close(p.done)
}

// Current returns the most recently started process, or nil
func (s *Supervisor) Current() *SupervisedProcess {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.current
}

func (s *Supervisor) IsAlive(p *SupervisedProcess) bool {
	return p.IsAlive()
}

// AwaitExit waits up to timeout for p to exit. It returns the exit code and
// true if it did; otherwise false, leaving the process running.
func (s *Supervisor) AwaitExit(p *SupervisedProcess, timeout time.Duration) (int, bool) {
	if p == nil {
		return 0, false
	}
	if timeout <= 0 {
		return p.ExitCode()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-p.done:
		return p.exitCode, true
	case <-timer.C:
		return 0, false
	}
}

// Shutdown stops p: a termination signal, up to grace for a clean exit, then a
// forceful kill bounded by ForceKillTimeout. It does nothing once p has exited,
// and concurrent calls are serialized.
func (s *Supervisor) Shutdown(p *SupervisedProcess, grace time.Duration) error {
	if p == nil {
		return nil
	}

	p.shutdownMutex.Lock()
	defer p.shutdownMutex.Unlock()

	if !p.IsAlive() {
		s.logger.Debugf("Process already exited, id: %s, PID: %d", p.id, p.pid)
		return nil
	}
	if grace < 0 {
		grace = 0
	}

	s.logger.Infof("Sending termination signal, id: %s, PID: %d, grace period: %v", p.id, p.pid, grace)
	if err := s.terminate(p.pid); err != nil {
		s.logger.Warnf("Failed to send termination signal, id: %s, PID: %d, error: %v", p.id, p.pid, err)
	}

	graceTimer := time.NewTimer(grace)
	defer graceTimer.Stop()

	select {
	case <-p.done:
		s.logger.Infof("Process %s (PID %d) terminated gracefully", p.id, p.pid)
		s.options.Metrics.RecordShutdown(monitoring.ShutdownGraceful)
		return nil
	case <-graceTimer.C:
		s.logger.Warnf("Process %s (PID %d) did not terminate within %v, forcing termination", p.id, p.pid, grace)
	}

	if err := s.kill(p.pid); err != nil {
		s.logger.Warnf("Failed to kill process group, id: %s, PID: %d, error: %v", p.id, p.pid, err)
		if err := p.cmd.Process.Kill(); err != nil {
			s.logger.Errorf("Failed to kill process, id: %s, PID: %d, error: %v", p.id, p.pid, err)
		}
	}

	forceTimer := time.NewTimer(ForceKillTimeout)
	defer forceTimer.Stop()

	select {
	case <-p.done:
		s.logger.Warnf("Process %s (PID %d) force terminated", p.id, p.pid)
		s.options.Metrics.RecordShutdown(monitoring.ShutdownForced)
		return nil
	case <-forceTimer.C:
		s.logger.Errorf("Process %s (PID %d) did not terminate after force termination, giving up", p.id, p.pid)
		s.options.Metrics.RecordShutdown(monitoring.ShutdownFailed)
		return errors.NewShutdownError("process did not terminate even after force termination", nil).
			WithContext("id", p.id).
			WithContext("pid", p.pid)
	}
}

// Terminate shuts down the current process, if any
func (s *Supervisor) Terminate(grace time.Duration) error {
	return s.Shutdown(s.Current(), grace)
}
