package metrics

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/taskerr"
)

// GopsutilProbe is the reference SystemProbe adapter, grounded on the
// pack's pulse/async/system_metrics_linux.go gopsutil usage.
type GopsutilProbe struct{}

func (GopsutilProbe) Sample(ctx context.Context) (SystemSnapshot, error) {
	percents, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return SystemSnapshot{}, taskerr.Wrap(err, "failed to sample cpu percent")
	}
	var cpuPct float64
	if len(percents) > 0 {
		cpuPct = percents[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return SystemSnapshot{}, taskerr.Wrap(err, "failed to sample memory stats")
	}

	return SystemSnapshot{
		Timestamp:  time.Now().UTC(),
		CPUPercent: cpuPct,
		MemPercent: vm.UsedPercent,
	}, nil
}
