// Package health reports the relay's liveness summary and process usage.
package health

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// Snapshot is the /healthz response body.
type Snapshot struct {
	Status        string  `json:"status"`
	Sessions      int     `json:"sessions"`
	Controller    bool    `json:"controller"`
	Categories    int     `json:"categories"`
	Effects       int     `json:"effects"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	RSSBytes      uint64  `json:"rss_bytes"`
	CPUPercent    float64 `json:"cpu_percent"`
	Goroutines    int     `json:"goroutines"`
}

// RelayState is the registry summary a Reporter folds into a Snapshot.
type RelayState struct {
	Sessions   int
	Controller bool
	Categories int
	Effects    int
}

// Reporter samples the current process. A failed process lookup leaves the
// usage fields zero rather than failing the health check.
type Reporter struct {
	started time.Time

	once sync.Once
	proc *process.Process
}

func NewReporter(started time.Time) *Reporter {
	return &Reporter{started: started}
}

func (r *Reporter) Snapshot(state RelayState) Snapshot {
	snap := Snapshot{
		Status:        "ok",
		Sessions:      state.Sessions,
		Controller:    state.Controller,
		Categories:    state.Categories,
		Effects:       state.Effects,
		UptimeSeconds: time.Since(r.started).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}

	r.once.Do(func() {
		p, err := process.NewProcess(int32(os.Getpid()))
		if err == nil {
			r.proc = p
		}
	})
	if r.proc == nil {
		return snap
	}
	if mem, err := r.proc.MemoryInfo(); err == nil && mem != nil {
		snap.RSSBytes = mem.RSS
	}
	if cpu, err := r.proc.CPUPercent(); err == nil {
		snap.CPUPercent = cpu
	}
	return snap
}
