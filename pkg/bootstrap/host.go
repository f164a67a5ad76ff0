package bootstrap

import (
	"context"
	"os"
	"os/exec"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
)

// HostFunc is the host application's blocking entry point. It returns the
// exit code the bootstrap should finish with. ctx is cancelled once shutdown
// begins.
type HostFunc func(ctx context.Context) (int, error)

// HostStartFailedCode mirrors the shell convention for a command that could not run
const HostStartFailedCode = 127

// CommandHost runs args as a foreground child with inherited stdio.
// Cancellation asks the child to stop and kills it after stopTimeout.
func CommandHost(args []string, stopTimeout time.Duration, logger logging.Logger) HostFunc {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return func(ctx context.Context) (int, error) {
		if len(args) == 0 {
			return HostStartFailedCode, errors.NewValidationError("host command is empty", nil)
		}

		cmd := exec.CommandContext(ctx, args[0], args[1:]...)
		cmd.Stdin = os.Stdin
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		cmd.Cancel = func() error {
			logger.Infof("Stopping host command, PID: %d", cmd.Process.Pid)
			return interruptHost(cmd.Process)
		}
		cmd.WaitDelay = stopTimeout

		if err := cmd.Start(); err != nil {
			return HostStartFailedCode, errors.NewProcessStartError("failed to start host command", err).
				WithContext("command", args[0])
		}
		logger.Infof("Host command started, command: %s, PID: %d", args[0], cmd.Process.Pid)

		err := cmd.Wait()
		if cmd.ProcessState == nil {
			return 1, errors.NewProcessError("host command failed", err).WithContext("command", args[0])
		}

		// -1 when the child was killed by a signal
		code := cmd.ProcessState.ExitCode()
		if code < 0 {
			code = 1
		}
		return code, nil
	}
}

// WaitHost blocks until ctx is cancelled, for running the bootstrap with no
// host command at all
func WaitHost() HostFunc {
	return func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, nil
	}
}
