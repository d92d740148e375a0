package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"aviator-tracker-go/internal/config"
	"aviator-tracker-go/internal/input"
	"aviator-tracker-go/internal/recovery"

	"github.com/jmoiron/sqlx"
)

// Orchestrator owns the producer goroutines, the batch worker and the bet
// controller, and enforces the startup/shutdown ordering between them: sinks
// start before sources, and shutdown runs the reverse carefully enough that
// in-flight work is neither duplicated nor dropped.
type Orchestrator struct {
	cfg     *config.Config
	queue   *RecordQueue
	worker  *BatchWorker
	bets    *BetController
	devices *input.DeviceLock
	logger  *slog.Logger

	producers []*producer
	shutdown  chan struct{}
	wg        sync.WaitGroup

	started   time.Time
	stopOnce  sync.Once
	startedUp bool
}

// NewOrchestrator acquires the exclusive input-device lock up front. That
// acquisition is the single fatal startup condition: if another live process
// holds it, running two bet executors would race on the physical pointer.
func NewOrchestrator(cfg *config.Config, db *sqlx.DB, exec BetExecutor) (*Orchestrator, error) {
	devices, err := input.Acquire(cfg.InputLockPath)
	if err != nil {
		return nil, err
	}

	queue := NewRecordQueue(cfg.QueueCapacity)
	metrics := NewQueueMetrics()
	worker := NewBatchWorker(queue, NewWriter(db, cfg.WriteRetries), metrics, WorkerConfig{
		BatchSize:     cfg.BatchSize,
		BatchTimeout:  cfg.BatchTimeout,
		StatsInterval: cfg.StatsInterval,
		WarnDepth:     cfg.WarningDepth(),
		CriticalDepth: cfg.CriticalDepth(),
	})

	return &Orchestrator{
		cfg:      cfg,
		queue:    queue,
		worker:   worker,
		bets:     NewBetController(cfg.BetQueueCapacity, devices, exec),
		devices:  devices,
		logger:   slog.Default(),
		shutdown: make(chan struct{}),
	}, nil
}

// AddBookmaker registers one tracked source. Must be called before Start.
func (o *Orchestrator) AddBookmaker(spec BookmakerSpec) {
	p := newProducer(spec, o.queue, o.bets, o.worker.Metrics(), o.cfg.TickInterval)
	o.producers = append(o.producers, p)
	o.logger.Info("Added bookmaker", "name", spec.Name)
}

// Start brings the components up sinks-first: the worker and the bet
// controller must be consuming before any producer can emit.
func (o *Orchestrator) Start(ctx context.Context) {
	o.started = time.Now()
	o.startedUp = true

	o.worker.Start()
	o.bets.Start()

	for _, p := range o.producers {
		p := p
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			recovery.WithRecoveryNamed(p.spec.Name, func() {
				p.run(ctx, o.shutdown)
			})
		}()
	}

	o.logger.Info("🚀 ORCHESTRATOR RUNNING", "bookmakers", len(o.producers))
}

// Stop performs the graceful shutdown sequence. The order is the correctness
// property here: stopping the worker before the producers would drop records;
// stopping the bet controller after resource teardown could fire an action
// into a dead screen.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(o.stop)
}

func (o *Orchestrator) stop() {
	if !o.startedUp {
		return
	}
	o.logger.Info("INITIATING GRACEFUL SHUTDOWN")

	// 1. Broadcast the shutdown signal.
	o.logger.Info("1/5 Signaling shutdown to all components...")
	close(o.shutdown)

	// 2. Bet controller: finish the action in hand, fail-fast the rest.
	o.logger.Info("2/5 Stopping bet controller...")
	o.bets.Stop()

	// 3. Wait for every producer to observe the signal and exit.
	o.logger.Info("3/5 Waiting for bookmaker producers...")
	if !waitTimeout(&o.wg, o.cfg.ShutdownTimeout) {
		o.logger.Warn("⚠️ Producers did not stop within timeout")
	}

	// 4. Drain the batch worker: flush every open batch, then STOPPED.
	o.logger.Info("4/5 Draining batch worker...", "queue_depth", o.queue.Depth())
	o.worker.Drain()
	if err := o.worker.WaitStopped(o.cfg.ShutdownTimeout); err != nil {
		o.logger.Warn("⚠️ Batch worker did not reach STOPPED within timeout")
	}

	// 5. Release shared resources.
	o.logger.Info("5/5 Releasing input devices...")
	if err := o.devices.Release(); err != nil {
		o.logger.Warn("input lock release failed", "err", err)
	}

	o.logFinalStats()
	o.logger.Info("🛑 ORCHESTRATOR STOPPED")
}

// Snapshot exposes the worker statistics for the admin surface.
func (o *Orchestrator) Snapshot() MetricsSnapshot {
	return o.worker.Snapshot()
}

func (o *Orchestrator) logFinalStats() {
	s := o.worker.Snapshot()
	o.logger.Info("ORCHESTRATOR - FINAL STATISTICS",
		"runtime", time.Since(o.started),
		"bookmakers", len(o.producers),
		"items_processed", s.Committed,
		"items_dropped", s.Dropped,
		"batches", s.Batches,
		"errors", s.Errors)
}

func waitTimeout(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
