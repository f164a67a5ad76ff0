package process

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
	"github.com/core-tools/hsu-bootstrap/pkg/logging"
)

// DefaultWaitDelay bounds how long Wait keeps copying output after the child exits
const DefaultWaitDelay = 5 * time.Second

type ExecutionConfig struct {
	ExecutablePath   string        `yaml:"executable_path"`
	Args             []string      `yaml:"args,omitempty"`
	Environment      []string      `yaml:"environment,omitempty"`
	WorkingDirectory string        `yaml:"working_directory,omitempty"`
	WaitDelay        time.Duration `yaml:"wait_delay,omitempty"`
}

// StdExecuteCmd starts the configured command and returns the running *exec.Cmd.
// The caller owns the command and must call Wait on it.
type StdExecuteCmd func(ctx context.Context) (*exec.Cmd, error)

// NewStdExecuteCmd builds a launcher for execution. Environment entries are
// overlaid on the inherited environment; stderr is merged into stdout and
// both go to output.
func NewStdExecuteCmd(execution ExecutionConfig, id string, output io.Writer, logger logging.Logger) StdExecuteCmd {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if output == nil {
		output = os.Stdout
	}

	return func(ctx context.Context) (*exec.Cmd, error) {
		if ctx == nil {
			return nil, errors.NewValidationError("context cannot be nil", nil).WithContext("id", id)
		}
		if err := ctx.Err(); err != nil {
			return nil, errors.NewCancelledError("start cancelled", err).WithContext("id", id)
		}

		if err := ValidateExecutionConfig(execution); err != nil {
			logger.Errorf("Execution configuration validation failed, id: %s, error: %v", id, err)
			return nil, errors.NewProcessStartError("invalid execution configuration", err).WithContext("id", id)
		}

		if err := ensureExecutable(execution.ExecutablePath); err != nil {
			return nil, errors.NewProcessStartError("failed to ensure process is executable", err).
				WithContext("id", id).
				WithContext("executable_path", execution.ExecutablePath)
		}

		logger.Debugf("Executing process, id: %s, executable path: '%s', args: %v, working directory: '%s'",
			id, execution.ExecutablePath, execution.Args, execution.WorkingDirectory)

		// The child must outlive ctx, so it is not bound to it
		cmd := exec.Command(execution.ExecutablePath, execution.Args...)
		cmd.Dir = execution.WorkingDirectory
		cmd.Env = append(os.Environ(), execution.Environment...)
		cmd.Stdout = output
		cmd.Stderr = output

		setupProcessAttributes(cmd)

		cmd.WaitDelay = execution.WaitDelay
		if cmd.WaitDelay == 0 {
			cmd.WaitDelay = DefaultWaitDelay
		}

		if err := cmd.Start(); err != nil {
			return nil, errors.NewProcessStartError("failed to start the process", err).
				WithContext("id", id).
				WithContext("executable_path", execution.ExecutablePath)
		}

		logger.Infof("Started process, id: %s, PID: %d", id, cmd.Process.Pid)

		return cmd, nil
	}
}

// ensureExecutable adds execute bits to path when it has none
func ensureExecutable(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}

	resolved := path
	if filepath.Base(path) == path {
		// Bare names are looked up on PATH
		found, err := exec.LookPath(path)
		if err != nil {
			return errors.NewNotFoundError("executable not found in PATH", err).WithContext("path", path)
		}
		resolved = found
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return errors.NewIOError("file does not exist", err).WithContext("path", resolved)
	}

	mode := info.Mode()
	if mode&0111 != 0 {
		return nil
	}

	if err := os.Chmod(resolved, mode|0111); err != nil {
		return errors.NewPermissionError("failed to make file executable", err).WithContext("path", resolved)
	}
	return nil
}
