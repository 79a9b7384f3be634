// SPDX-License-Identifier: MIT

package worker

import (
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcStat is a point-in-time view of the worker process for the operator
// listing.
type ProcStat struct {
	PID        int       `json:"pid"`
	Alive      bool      `json:"alive"`
	RSSBytes   uint64    `json:"rss_bytes,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
	StartedAt  time.Time `json:"started_at"`
}

// Stat samples the process. Resource numbers are best effort; a dead or
// unreadable process yields Alive=false with zero stats.
func (h *Handle) Stat() ProcStat {
	st := ProcStat{
		PID:       h.PID(),
		Alive:     h.Alive(),
		StartedAt: h.startedAt,
	}
	if !st.Alive || st.PID == 0 {
		return st
	}

	proc, err := process.NewProcess(int32(st.PID))
	if err != nil {
		return st
	}
	if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
		st.RSSBytes = mem.RSS
	}
	if cpu, err := proc.CPUPercent(); err == nil {
		st.CPUPercent = cpu
	}
	return st
}
