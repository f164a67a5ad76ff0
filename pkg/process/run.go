package process

import (
	"context"
	stderrors "errors"
	"io"
	"os/exec"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
)

// RunToCompletion runs a synchronous setup step and waits for it. Any failure,
// including a nonzero exit code, is a provisioning error. Cancelling ctx
// kills the step's process group.
func RunToCompletion(ctx context.Context, execution ExecutionConfig, id string, output io.Writer, logger logging.Logger) error {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	cmd, err := NewStdExecuteCmd(execution, id, output, logger)(ctx)
	if err != nil {
		return errors.NewProvisioningError("failed to start setup step", err).WithContext("id", id)
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	select {
	case err = <-waitDone:
	case <-ctx.Done():
		logger.Warnf("Setup step cancelled, killing, id: %s, PID: %d", id, cmd.Process.Pid)
		_ = KillProcessGroup(cmd.Process.Pid)
		<-waitDone
		return errors.NewProvisioningError("setup step cancelled", ctx.Err()).WithContext("id", id)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			logger.Errorf("Setup step failed, id: %s, exit code: %d", id, code)
			return errors.NewProvisioningError("setup step exited with nonzero code", err).
				WithContext("id", id).
				WithContext("exit_code", code)
		}
		return errors.NewProvisioningError("setup step failed", err).WithContext("id", id)
	}

	logger.Debugf("Setup step completed, id: %s", id)
	return nil
}
