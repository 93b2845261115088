// Package orchestrator implements the Orchestrator (C12): the top-level
// lifecycle that wires every other component together, owns the single
// cancellable context the whole process derives from, and handles shutdown
// signals. Grounded on the teacher's cmd/server main-wiring shape
// (configure -> start -> run -> shutdown, errgroup fan-in of long-running
// loops, signal.NotifyContext for SIGTERM/SIGINT) adapted from an HTTP
// server's listener lifecycle to a pool of Workers plus a Beat.
package orchestrator

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/alert"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/beat"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/broker"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/config"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/depgraph"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/logging"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/metrics"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/notify"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/perf"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/runner"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/store"
	"github.com/BlokusPokus/ai-assistant-sub002/internal/worker"
)

// defaults mirror spec §4.10/§4.11's stated defaults.
const (
	defaultConcurrencyPerQueue  = 4
	defaultMaxTasksPerChild     = 1000
	defaultTaskTimeout          = 60 * time.Second
	defaultMetricsSampleEvery   = 30 * time.Second
	defaultPerfSampleEvery      = 60 * time.Second
	defaultWorkerCount          = 1
	defaultHealthBroadcastEvery = 5 * time.Second
	// defaultMonitorEvery drives the AlertManager.Evaluate /
	// OptimizeWorkerConfiguration loop — spec §2's "AlertManager evaluates
	// them; PerformanceOptimizer adjusts worker counts" dataflow step.
	defaultMonitorEvery = 30 * time.Second
)

// Orchestrator owns every wired component and the single top-level context
// every long-running loop derives from.
type Orchestrator struct {
	cfg *config.Config
	log *zap.SugaredLogger

	store   store.Store
	brk     broker.Broker
	deps    *depgraph.Graph
	mc      *metrics.Collector
	am      *alert.Manager
	nd      *notify.Dispatcher
	opt     *perf.Optimizer
	beat    *beat.Beat
	workers []*worker.Worker
	health  *HealthHub
	httpSrv *http.Server

	// workerCfg tracks the current tuning surface OptimizeWorkerConfiguration
	// adjusts; runMonitor feeds its output back in here each tick so scaling
	// compounds relative to the last applied configuration, not the original.
	workerCfg perf.WorkerConfig

	cancel context.CancelFunc
}

// Configure wires every component from cfg (spec §4.12's configure(env)).
// It does not start any goroutines yet.
func Configure(ctx context.Context, cfg *config.Config) (*Orchestrator, error) {
	log := logging.Component("orchestrator")

	st, err := store.NewPostgresStore(ctx, cfg.Store.DatabaseURL, cfg.Store.PoolSize, cfg.Store.MaxOverflow, cfg.Store.PoolRecycle, cfg.Store.HealthCheckInterval)
	if err != nil {
		return nil, err
	}

	opts, err := redis.ParseURL(cfg.Broker.BrokerURL)
	if err != nil {
		return nil, err
	}
	brk, err := broker.NewRedisBroker(ctx, opts.Addr, opts.Password, opts.DB)
	if err != nil {
		return nil, err
	}

	deps := depgraph.NewGraph(24)

	var mc *metrics.Collector
	if cfg.Flags.MetricsEnabled {
		mc = metrics.NewCollector(metrics.GopsutilProbe{})
	} else {
		mc = metrics.NewCollector(nil)
	}

	senders := map[string]notify.Sender{
		notify.ChannelSMS:   notify.NewSMSSender(notify.SMSConfig{AccountSID: cfg.SMS.TwilioAccountSID, AuthToken: cfg.SMS.TwilioAuthToken, FromNumber: cfg.SMS.TwilioFromNumber}, 1, 1),
		notify.ChannelEmail: notify.NewEmailSender(notify.EmailConfig{ServerToken: cfg.Notify.PostmarkServerToken, FromAddress: cfg.Notify.FromEmail}),
	}
	nd := notify.NewDispatcher(senders)

	var am *alert.Manager
	if cfg.Flags.AlertingEnabled {
		am = alert.NewManager(map[alert.Channel]alert.ChannelSender{
			alert.ChannelLog:     alert.NewLogSender(),
			alert.ChannelConsole: alert.ConsoleSender{},
			alert.ChannelSlack:   alert.NewSlackSender(cfg.Alert.SlackWebhook),
			alert.ChannelWebhook: alert.NewWebhookSender(cfg.Alert.WebhookURL),
		})
	}

	opt := perf.NewOptimizer()

	run := runner.WithTimeout(runner.NewOpenAIRunner(cfg.OpenAI.APIKey, cfg.OpenAI.Model), defaultTaskTimeout)
	taskHandler := &worker.TaskHandler{Store: st, Deps: deps, Run: run}
	maintenanceHandler := &worker.MaintenanceHandler{Funcs: worker.DefaultMaintenanceFuncs(st, brk)}
	handlers := map[string]worker.Handler{"execute_task": taskHandler}
	for name := range worker.DefaultMaintenanceFuncs(st, brk) {
		handlers[name] = maintenanceHandler
	}

	workers := make([]*worker.Worker, 0, defaultWorkerCount)
	for i := 0; i < defaultWorkerCount; i++ {
		wcfg := worker.Config{
			Queues:           broker.AllQueues,
			Concurrency:      defaultConcurrencyPerQueue,
			MaxTasksPerChild: defaultMaxTasksPerChild,
			TaskTimeout:      defaultTaskTimeout,
		}
		var depsForWorker *depgraph.Graph
		if cfg.Flags.DependencySchedulingEnabled {
			depsForWorker = deps
		}
		workers = append(workers, worker.New(
			workerID(i), wcfg, brk, st, depsForWorker, mc, am, nd, handlers,
		))
	}

	b := beat.New(brk, beat.NewMemoryTickStore(), beat.DefaultSchedule())

	health := NewHealthHub(st)
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	httpSrv := &http.Server{Addr: cfg.Health.ListenAddr, Handler: mux}

	concurrencyByQueue := make(map[string]int, len(broker.AllQueues))
	for _, q := range broker.AllQueues {
		concurrencyByQueue[string(q)] = defaultConcurrencyPerQueue
	}
	totalMemoryMB := 0
	if vm, vmErr := mem.VirtualMemory(); vmErr == nil {
		totalMemoryMB = int(vm.Total / (1024 * 1024))
	}
	workerCfg := perf.WorkerConfig{
		ConcurrencyByQueue: concurrencyByQueue,
		WorkerMaxMemoryMB:  totalMemoryMB,
		CPUCores:           runtime.NumCPU(),
		TotalMemoryMB:      totalMemoryMB,
	}

	return &Orchestrator{
		cfg: cfg, log: log,
		store: st, brk: brk, deps: deps, mc: mc, am: am, nd: nd, opt: opt,
		beat: b, workers: workers, health: health, httpSrv: httpSrv,
		workerCfg: workerCfg,
	}, nil
}

// Start launches every long-running loop (Workers, Beat, and — when
// enabled — the metrics sampler and performance optimizer's collector) and
// blocks until ctx is cancelled or a SIGTERM/SIGINT arrives, at which point
// it cancels the shared context and waits for every loop to wind down
// (spec §4.12: "owns the single top-level context that is cancelled on
// shutdown; all long-running loops derive from this context").
func (o *Orchestrator) Start(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	runCtx, cancel := context.WithCancel(sigCtx)
	o.cancel = cancel
	defer cancel()

	g, gctx := errgroup.WithContext(runCtx)

	if err := o.beat.Start(gctx); err != nil {
		return err
	}

	for _, w := range o.workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}

	if o.cfg.Flags.MetricsEnabled {
		g.Go(func() error {
			o.mc.RunSampler(gctx, defaultMetricsSampleEvery)
			return nil
		})
	}

	if o.cfg.Flags.PerformanceOptimizationEnabled {
		g.Go(func() error {
			o.opt.RunCollector(gctx, metrics.GopsutilProbe{}, defaultPerfSampleEvery, o.queueDepths)
			return nil
		})
	}

	g.Go(func() error {
		o.runMonitor(gctx, defaultMonitorEvery)
		return nil
	})

	g.Go(func() error {
		o.health.Run(gctx, defaultHealthBroadcastEvery)
		return nil
	})

	g.Go(func() error {
		if err := o.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return o.httpSrv.Shutdown(shutdownCtx)
	})

	o.log.Infow("orchestrator started", "workers", len(o.workers))
	return g.Wait()
}

// Shutdown cancels the shared context, triggering every long-running loop's
// cooperative exit (in-flight Worker handlers see their context cancelled
// at once, with no graceful_timeout wait; Beat stops its cron scheduler).
func (o *Orchestrator) Shutdown() {
	if o.cancel != nil {
		o.cancel()
	}
}

func (o *Orchestrator) queueDepths() map[string]int {
	depths := make(map[string]int, len(broker.AllQueues))
	for _, q := range broker.AllQueues {
		n, err := o.brk.QueueLength(q)
		if err != nil {
			continue
		}
		depths[string(q)] = n
	}
	return depths
}

// runMonitor ticks every interval, feeding the latest resource sample and
// queue depths into AlertManager.Evaluate and, when enabled,
// PerformanceOptimizer.OptimizeWorkerConfiguration — spec §2's "AlertManager
// evaluates them; PerformanceOptimizer adjusts worker counts" dataflow and
// §5's back-pressure rules, both otherwise unreachable at runtime.
func (o *Orchestrator) runMonitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = defaultMonitorEvery
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.monitorTick(time.Now().UTC())
		}
	}
}

// latestResourceReading returns the most recent CPU/memory percentages from
// whichever sampler is running (the PerformanceOptimizer's own ring, falling
// back to the MetricsCollector's SystemSnapshot history), since
// PerformanceOptimizationEnabled and MetricsEnabled are independent flags
// and either may be the only one on.
func (o *Orchestrator) latestResourceReading() (cpuPercent, memPercent float64, ok bool) {
	if o.opt != nil {
		if sample, ok := o.opt.LatestSample(); ok {
			return sample.CPUPercent, sample.MemoryPercent, true
		}
	}
	if o.mc != nil {
		snaps := o.mc.SnapshotHistory()
		if len(snaps) > 0 {
			last := snaps[len(snaps)-1]
			return last.CPUPercent / 100, last.MemPercent / 100, true
		}
	}
	return 0, 0, false
}

func (o *Orchestrator) monitorTick(now time.Time) {
	depths := o.queueDepths()
	maxDepth := 0
	for _, n := range depths {
		if n > maxDepth {
			maxDepth = n
		}
	}

	cpuPercent, memPercent, ok := o.latestResourceReading()
	if ok && o.am != nil {
		o.am.Evaluate(now, map[alert.Condition]float64{
			alert.ConditionCPUPercent:    cpuPercent,
			alert.ConditionMemoryPercent: memPercent,
			alert.ConditionQueueBacklog:  float64(maxDepth),
		})
	}

	if !o.cfg.Flags.PerformanceOptimizationEnabled || !ok {
		return
	}

	avgLoad := cpuPercent * float64(o.workerCfg.CPUCores)
	next := perf.OptimizeWorkerConfiguration(o.workerCfg, cpuPercent, memPercent, avgLoad)
	o.workerCfg = next

	target := 0
	for _, c := range next.ConcurrencyByQueue {
		if target == 0 || c < target {
			target = c
		}
	}
	if target <= 0 {
		return
	}
	for _, w := range o.workers {
		w.SetConcurrency(target)
	}
}

func workerID(i int) string {
	return "worker-" + strconv.Itoa(i)
}
