//go:build !windows

package process

import (
	"syscall"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
)

// SendTerminationSignal sends SIGTERM to the process group led by pid
func SendTerminationSignal(pid int) error {
	if pid <= 0 {
		return errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}

// KillProcessGroup sends SIGKILL to the process group led by pid
func KillProcessGroup(pid int) error {
	if pid <= 0 {
		return errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && err != syscall.ESRCH {
		return err
	}
	return nil
}
