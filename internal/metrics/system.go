package metrics

import (
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemSnapshot is the JSON body of the /stats endpoint.
type SystemSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	Goroutines    int       `json:"goroutines"`
	HeapAllocMB   float64   `json:"heap_alloc_mb"`
	HeapSysMB     float64   `json:"heap_sys_mb"`
	NumGC         uint32    `json:"num_gc"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemUsedMB     float64   `json:"mem_used_mb"`
	MemTotalMB    float64   `json:"mem_total_mb"`
	MemPercent    float64   `json:"mem_percent"`
	Sessions      int       `json:"sessions"`
	Subscriptions int       `json:"subscriptions"`
	Streams       int       `json:"streams"`
}

// Counts supplies the live lifecycle numbers for the snapshot.
type Counts struct {
	Sessions      int
	Subscriptions int
	Streams       int
}

// Snapshot gathers runtime and host readings. Host readings are best
// effort; zero values are reported when the probe fails.
func Snapshot(c Counts) SystemSnapshot {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	snap := SystemSnapshot{
		Timestamp:     time.Now().UTC(),
		Goroutines:    runtime.NumGoroutine(),
		HeapAllocMB:   float64(ms.HeapAlloc) / (1024 * 1024),
		HeapSysMB:     float64(ms.HeapSys) / (1024 * 1024),
		NumGC:         ms.NumGC,
		Sessions:      c.Sessions,
		Subscriptions: c.Subscriptions,
		Streams:       c.Streams,
	}

	if pct, err := cpu.Percent(0, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		snap.MemUsedMB = float64(vm.Used) / (1024 * 1024)
		snap.MemTotalMB = float64(vm.Total) / (1024 * 1024)
		snap.MemPercent = vm.UsedPercent
	}
	return snap
}
