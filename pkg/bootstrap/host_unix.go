//go:build !windows

package bootstrap

import (
	"os"
	"syscall"
)

func interruptHost(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
