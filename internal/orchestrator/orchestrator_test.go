package orchestrator

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/beat"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/broker"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/config"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/logging"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/metrics"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/notify"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/perf"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/runner"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/store"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/task"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/worker"
)

// stubRunner always succeeds; orchestrator-level tests only need the
// lifecycle to run end-to-end, not real execution semantics (covered by
// internal/worker's own tests).
type stubRunner struct{}

func (stubRunner) Execute(_ context.Context, t *task.AITask) runner.ExecutionResult {
	return runner.ExecutionResult{Success: true, Message: "ok"}
}

// newTestOrchestrator builds an Orchestrator wired entirely against
// in-memory adapters, bypassing Configure's live Postgres/Redis dials so
// the lifecycle (Start/Shutdown, queueDepths, workerID) can be exercised
// without any external service.
func newTestOrchestrator(t *testing.T) (*Orchestrator, store.Store, broker.Broker) {
	t.Helper()

	st := store.NewMemoryStore()
	b := broker.NewMemoryBroker()

	maintenanceFuncs := worker.DefaultMaintenanceFuncs(st, b)
	maintenanceHandler := &worker.MaintenanceHandler{Funcs: maintenanceFuncs}
	handlers := map[string]worker.Handler{
		"execute_task": &worker.TaskHandler{Store: st, Run: stubRunner{}},
	}
	for name := range maintenanceFuncs {
		handlers[name] = maintenanceHandler
	}

	w := worker.New("worker-0", worker.Config{
		Queues:           broker.AllQueues,
		Concurrency:      defaultConcurrencyPerQueue,
		MaxTasksPerChild: defaultMaxTasksPerChild,
		TaskTimeout:      defaultTaskTimeout,
	}, b, st, nil, metrics.NewCollector(nil), nil, notify.NewDispatcher(nil), handlers)

	bt := beat.New(b, beat.NewMemoryTickStore(), beat.DefaultSchedule())
	health := NewHealthHub(st)
	mux := http.NewServeMux()
	mux.Handle("/health", health)

	o := &Orchestrator{
		cfg:     &config.Config{},
		log:     logging.Component("orchestrator-test"),
		store:   st,
		brk:     b,
		mc:      metrics.NewCollector(nil),
		opt:     perf.NewOptimizer(),
		beat:    bt,
		workers: []*worker.Worker{w},
		health:  health,
		httpSrv: &http.Server{Addr: "127.0.0.1:0", Handler: mux},
	}
	return o, st, b
}

func TestMonitorTick_NoSampleIsANoop(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	assert.NotPanics(t, func() { o.monitorTick(time.Now().UTC()) })
}

func TestMonitorTick_AppliesOptimizedConcurrencyWhenEnabled(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	o.cfg.Flags.PerformanceOptimizationEnabled = true
	o.workerCfg = perf.WorkerConfig{
		ConcurrencyByQueue: map[string]int{"ai_tasks": 4},
		CPUCores:           4,
		TotalMemoryMB:      1024,
	}
	o.opt.RecordSample(perf.Sample{Timestamp: time.Now().UTC(), CPUPercent: 0.75, MemoryPercent: 0.5})

	o.monitorTick(time.Now().UTC())

	assert.Equal(t, int32(3), o.workers[0].ActiveSlots())
}

func TestWorkerID_FormatsByIndex(t *testing.T) {
	assert.Equal(t, "worker-0", workerID(0))
	assert.Equal(t, "worker-7", workerID(7))
}

func TestQueueDepths_ReflectsEnqueuedJobs(t *testing.T) {
	o, _, b := newTestOrchestrator(t)

	_, err := b.Enqueue(broker.QueueAITasks, "execute_task", nil, 10, time.Time{})
	require.NoError(t, err)

	depths := o.queueDepths()
	assert.Equal(t, 1, depths[string(broker.QueueAITasks)])
	assert.Equal(t, 0, depths[string(broker.QueueMaintenance)])
}

func TestOrchestrator_ShutdownBeforeStartIsANoop(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)
	assert.NotPanics(t, func() { o.Shutdown() })
}

func TestOrchestrator_StartRunsUntilCancelThenReturns(t *testing.T) {
	o, _, _ := newTestOrchestrator(t)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- o.Start(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
