package perf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyze_ComputesAveragesAndPeaks(t *testing.T) {
	o := NewOptimizer()
	now := time.Now()
	for i := 0; i < 5; i++ {
		o.RecordSample(Sample{Timestamp: now.Add(-time.Duration(i) * time.Minute), CPUPercent: 0.5, MemoryPercent: 0.4})
	}
	analysis := o.Analyze(now, 1)
	assert.InDelta(t, 0.5, analysis.AverageCPU, 0.001)
	assert.InDelta(t, 0.4, analysis.AverageMemory, 0.001)
}

func TestAnalyze_FlagsBottlenecksAboveThreshold(t *testing.T) {
	o := NewOptimizer()
	now := time.Now()
	for i := 0; i < 5; i++ {
		o.RecordSample(Sample{Timestamp: now.Add(-time.Duration(i) * time.Minute), CPUPercent: 0.95, MemoryPercent: 0.9})
	}
	analysis := o.Analyze(now, 1)
	assert.Contains(t, analysis.Bottlenecks, "cpu")
	assert.Contains(t, analysis.Bottlenecks, "memory")
}

func TestAnalyze_ExcludesSamplesOutsideWindow(t *testing.T) {
	o := NewOptimizer()
	now := time.Now()
	o.RecordSample(Sample{Timestamp: now.Add(-48 * time.Hour), CPUPercent: 0.99})
	analysis := o.Analyze(now, 1)
	assert.Equal(t, Analysis{}, analysis)
}

func TestOptimizeWorkerConfiguration_ScalesDownUnderHighCPU(t *testing.T) {
	current := WorkerConfig{ConcurrencyByQueue: map[string]int{"ai_tasks": 10}, CPUCores: 8}
	next := OptimizeWorkerConfiguration(current, 0.9, 0.1, 1.0)
	assert.Equal(t, 8, next.ConcurrencyByQueue["ai_tasks"])
}

func TestOptimizeWorkerConfiguration_ScalesUpUnderLowCPU(t *testing.T) {
	current := WorkerConfig{ConcurrencyByQueue: map[string]int{"ai_tasks": 10}, CPUCores: 8}
	next := OptimizeWorkerConfiguration(current, 0.1, 0.1, 1.0)
	assert.Equal(t, 12, next.ConcurrencyByQueue["ai_tasks"])
}

func TestOptimizeWorkerConfiguration_NeverGoesBelowFloorOfOne(t *testing.T) {
	current := WorkerConfig{ConcurrencyByQueue: map[string]int{"q": 1}, CPUCores: 4}
	next := OptimizeWorkerConfiguration(current, 0.9, 0.1, 1.0)
	assert.Equal(t, 1, next.ConcurrencyByQueue["q"])
}

func TestOptimizeWorkerConfiguration_LowersMaxMemoryUnderHighMemory(t *testing.T) {
	current := WorkerConfig{ConcurrencyByQueue: map[string]int{}, TotalMemoryMB: 1000, CPUCores: 4}
	next := OptimizeWorkerConfiguration(current, 0.1, 0.9, 0.1)
	assert.Equal(t, 600, next.WorkerMaxMemoryMB)
}

func TestForecast_ClampsToHoursLimitAndRange(t *testing.T) {
	o := NewOptimizer()
	now := time.Now()
	for i := 0; i < 20; i++ {
		o.RecordSample(Sample{Timestamp: now.Add(time.Duration(i) * time.Minute), CPUPercent: 0.5, MemoryPercent: 0.5})
	}
	points := o.Forecast(30)
	require.Len(t, points, 24)
	for _, p := range points {
		assert.GreaterOrEqual(t, p.CPUPercent, 0.0)
		assert.LessOrEqual(t, p.CPUPercent, 100.0)
	}
}

func TestForecast_ConfidenceScalesWithSampleCount(t *testing.T) {
	o := NewOptimizer()
	now := time.Now()
	o.RecordSample(Sample{Timestamp: now, CPUPercent: 0.5, MemoryPercent: 0.5})
	points := o.Forecast(1)
	require.Len(t, points, 1)
	assert.Equal(t, ConfidenceLow, points[0].Confidence)
}
