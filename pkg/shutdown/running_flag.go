package shutdown

import "sync/atomic"

// RunningFlag is the shared "still running" token. It starts true and can be
// cleared exactly once.
type RunningFlag struct {
	running atomic.Bool
}

func NewRunningFlag() *RunningFlag {
	f := &RunningFlag{}
	f.running.Store(true)
	return f
}

func (f *RunningFlag) IsRunning() bool {
	return f.running.Load()
}

// Stop clears the flag and reports whether this call did it
func (f *RunningFlag) Stop() bool {
	return f.running.CompareAndSwap(true, false)
}
