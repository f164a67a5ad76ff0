//go:build windows

package process

import (
	"fmt"
	"os"
	"sync"
	"syscall"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"
)

var consoleOperationLock sync.Mutex

// SendTerminationSignal sends CTRL_BREAK to the process group led by pid
func SendTerminationSignal(pid int) error {
	if pid <= 0 {
		return errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}

	consoleOperationLock.Lock()
	defer consoleOperationLock.Unlock()

	dll, err := syscall.LoadDLL("kernel32.dll")
	if err != nil {
		return fmt.Errorf("failed to load kernel32.dll: %v", err)
	}
	defer dll.Release()

	proc, err := dll.FindProc("GenerateConsoleCtrlEvent")
	if err != nil {
		return err
	}
	result, _, err := proc.Call(uintptr(syscall.CTRL_BREAK_EVENT), uintptr(pid))
	if result == 0 {
		return fmt.Errorf("failed to send Ctrl+Break to PID %d: %v", pid, err)
	}
	return nil
}

// KillProcessGroup terminates pid. Windows has no group kill without job objects.
func KillProcessGroup(pid int) error {
	if pid <= 0 {
		return errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return p.Kill()
}
