// SPDX-License-Identifier: MIT

package diagnose

import (
	"os"

	"github.com/shirou/gopsutil/v3/process"
)

// ResourceSnapshot is a point-in-time CPU/memory reading for one
// process, surfaced through Live Status during an active session.
type ResourceSnapshot struct {
	CPUPercent  float64
	MemoryRSSMB float64
}

// SelfSnapshot reads the current process's CPU and resident-memory
// usage, mirroring the gopsutil/v3/process usage pattern the example
// pack's process-snapshot/metrics collectors use, scoped here to a
// single PID rather than system-wide since the host process is what
// Live Status reports on.
func SelfSnapshot() (ResourceSnapshot, error) {
	return PIDSnapshot(int32(os.Getpid()))
}

// PIDSnapshot reads CPU/memory usage for an arbitrary process;
// SelfSnapshot calls it with the host's own PID.
func PIDSnapshot(pid int32) (ResourceSnapshot, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return ResourceSnapshot{}, err
	}

	cpuPct, err := p.Percent(0)
	if err != nil {
		return ResourceSnapshot{}, err
	}

	var rssMB float64
	if mem, err := p.MemoryInfo(); err == nil && mem != nil {
		rssMB = float64(mem.RSS) / (1024 * 1024)
	}

	return ResourceSnapshot{CPUPercent: cpuPct, MemoryRSSMB: rssMB}, nil
}
