package processstate

import (
	"context"

	"github.com/core-tools/hsu-bootstrap/pkg/errors"

	"github.com/shirou/gopsutil/v3/process"
)

// IsProcessRunning reports whether a process with pid exists
func IsProcessRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}
	return process.PidExists(int32(pid))
}

// Snapshot is a point-in-time view of a running process
type Snapshot struct {
	PID        int     `json:"pid"`
	Name       string  `json:"name,omitempty"`
	RSSBytes   uint64  `json:"rss_bytes"`
	CPUPercent float64 `json:"cpu_percent"`
}

// Inspect reads name, resident memory and CPU usage for pid
func Inspect(ctx context.Context, pid int) (*Snapshot, error) {
	if pid <= 0 {
		return nil, errors.NewValidationError("invalid PID", nil).WithContext("pid", pid)
	}

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, errors.NewNotFoundError("process not found", err).WithContext("pid", pid)
	}

	snapshot := &Snapshot{PID: pid}
	if name, err := proc.NameWithContext(ctx); err == nil {
		snapshot.Name = name
	}
	if mem, err := proc.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		snapshot.RSSBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		snapshot.CPUPercent = cpu
	}
	return snapshot, nil
}
