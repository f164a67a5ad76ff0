package supervisor

import (
	"os/exec"
	"sync"

	"github.com/core-tools/hsu-bootstrap/pkg/envconfig"
	"github.com/core-tools/hsu-bootstrap/pkg/process"
)

// SupervisedProcess is a running or finished external process owned by a Supervisor
type SupervisedProcess struct {
	id         string
	command    string
	args       []string
	workingDir string
	config     *envconfig.EffectiveConfig
	pid        int

	cmd    *exec.Cmd
	output *process.PrefixedWriter

	// exitCode is written once before done is closed
	done     chan struct{}
	exitCode int

	// serializes shutdown sequences
	shutdownMutex sync.Mutex
}

func (p *SupervisedProcess) ID() string {
	return p.id
}

func (p *SupervisedProcess) Command() string {
	return p.command
}

func (p *SupervisedProcess) Args() []string {
	return append([]string(nil), p.args...)
}

func (p *SupervisedProcess) WorkingDir() string {
	return p.workingDir
}

// Config returns the effective configuration the process was started with
func (p *SupervisedProcess) Config() *envconfig.EffectiveConfig {
	return p.config
}

func (p *SupervisedProcess) PID() int {
	return p.pid
}

// Done is closed once the process has exited and been reaped
func (p *SupervisedProcess) Done() <-chan struct{} {
	return p.done
}

func (p *SupervisedProcess) IsAlive() bool {
	if p == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// ExitCode returns the exit code and true once the process has exited.
// A process killed by a signal reports -1.
func (p *SupervisedProcess) ExitCode() (int, bool) {
	if p == nil || p.IsAlive() {
		return 0, false
	}
	return p.exitCode, true
}
