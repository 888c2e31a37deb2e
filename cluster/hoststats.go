package cluster

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// HostStats is a best-effort snapshot of the registering machine's load,
// carried as an additive field on Heartbeat. It is sampled by the
// machine itself, never inferred by a peer.
type HostStats struct {
	LoadPercent       float64
	MemoryUsedPercent float64
}

// SampleHostStats reads current CPU and memory utilization via gopsutil.
// Either field is left at zero if its underlying sample fails -- this is
// operator-visibility telemetry, not load-bearing for any cluster-state
// decision, so a sampling failure must never block a heartbeat.
func SampleHostStats(ctx context.Context) *HostStats {
	stats := &HostStats{}

	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		stats.LoadPercent = pcts[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		stats.MemoryUsedPercent = vm.UsedPercent
	}
	return stats
}

// sampleHostStatsTimeout bounds how long a heartbeat waits on gopsutil;
// a field whose sample has not finished by then is sent as zero.
const sampleHostStatsTimeout = 500 * time.Millisecond

// SampleHostStatsBounded is SampleHostStats with a short deadline, for
// callers on the heartbeat's hot path who would rather skip stats than
// miss a heartbeat interval.
func SampleHostStatsBounded() *HostStats {
	ctx, cancel := context.WithTimeout(context.Background(), sampleHostStatsTimeout)
	defer cancel()
	return SampleHostStats(ctx)
}
