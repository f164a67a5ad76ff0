//go:build windows

package bootstrap

import "os"

// Console control events would also reach the bootstrap itself
func interruptHost(p *os.Process) error {
	return p.Kill()
}
