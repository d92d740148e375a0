package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"aviator-tracker-go/internal/monitor"
)

// Committer applies one batch atomically. *Writer is the production
// implementation; tests substitute a capture fake.
type Committer interface {
	Commit(ctx context.Context, b *Batch) error
}

type WorkerState int32

const (
	StateRunning WorkerState = iota
	StateDraining
	StateStopped
)

func (s WorkerState) String() string {
	switch s {
	case StateRunning:
		return "RUNNING"
	case StateDraining:
		return "DRAINING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// pollWait bounds how long one loop iteration blocks on an empty queue. Short
// enough to keep time-threshold flushes and drain checks responsive.
const pollWait = 10 * time.Millisecond

// BatchWorker is the single consumer of the record queue. It owns the
// accumulator and the committer: no other component issues writes, so
// write-write races are gone by construction.
type BatchWorker struct {
	queue     *RecordQueue
	acc       *Accumulator
	committer Committer
	metrics   *QueueMetrics
	tput      *monitor.ThroughputMonitor
	logger    *slog.Logger

	batchSize     int
	statsInterval time.Duration
	warnDepth     int
	criticalDepth int

	state    atomic.Int32
	drainCh  chan struct{}
	done     chan struct{}
	lastWarn time.Time
}

type WorkerConfig struct {
	BatchSize     int
	BatchTimeout  time.Duration
	StatsInterval time.Duration
	WarnDepth     int
	CriticalDepth int
}

func NewBatchWorker(queue *RecordQueue, committer Committer, metrics *QueueMetrics, cfg WorkerConfig) *BatchWorker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	if cfg.StatsInterval <= 0 {
		cfg.StatsInterval = 60 * time.Second
	}
	if cfg.WarnDepth <= 0 {
		cfg.WarnDepth = queue.Capacity() * 50 / 100
	}
	if cfg.CriticalDepth <= 0 {
		cfg.CriticalDepth = queue.Capacity() * 80 / 100
	}

	return &BatchWorker{
		queue:         queue,
		acc:           NewAccumulator(cfg.BatchSize, cfg.BatchTimeout),
		committer:     committer,
		metrics:       metrics,
		tput:          monitor.NewThroughputMonitor(),
		logger:        slog.Default(),
		batchSize:     cfg.BatchSize,
		statsInterval: cfg.StatsInterval,
		warnDepth:     cfg.WarnDepth,
		criticalDepth: cfg.CriticalDepth,
		drainCh:       make(chan struct{}),
		done:          make(chan struct{}),
	}
}

func (w *BatchWorker) State() WorkerState {
	return WorkerState(w.state.Load())
}

// Start launches the consumer loop. The worker never restarts: STOPPED is
// terminal.
func (w *BatchWorker) Start() {
	w.logger.Info("📝 BatchWorker: started",
		"queue_cap", w.queue.Capacity(),
		"batch_size", w.batchSize,
		"stats_interval", w.statsInterval)
	w.metrics.ResetForRun(time.Now())
	go w.run()
}

// Drain requests the RUNNING → DRAINING transition. Safe to call once.
func (w *BatchWorker) Drain() {
	if w.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		close(w.drainCh)
	}
}

// WaitStopped blocks until the worker reaches STOPPED or the timeout fires.
func (w *BatchWorker) WaitStopped(timeout time.Duration) error {
	select {
	case <-w.done:
		return nil
	case <-time.After(timeout):
		return context.DeadlineExceeded
	}
}

// Metrics exposes the worker-owned counter handle for reporting.
func (w *BatchWorker) Metrics() *QueueMetrics { return w.metrics }

// Snapshot returns the current statistics including live queue depth.
func (w *BatchWorker) Snapshot() MetricsSnapshot {
	return w.metrics.Snapshot(w.queue.Depth())
}

func (w *BatchWorker) run() {
	defer close(w.done)

	ctx := context.Background()
	statsTicker := time.NewTicker(w.statsInterval)
	defer statsTicker.Stop()

	for {
		recs := w.queue.GetMany(ctx, w.batchSize, pollWait)
		if len(recs) > 0 {
			w.metrics.RecordDequeued(len(recs))
			for _, rec := range recs {
				if b := w.acc.Add(rec); b != nil {
					w.commit(ctx, b)
				}
			}
		}

		for _, b := range w.acc.Expired(time.Now()) {
			w.commit(ctx, b)
		}

		w.checkQueueHealth()

		select {
		case <-statsTicker.C:
			w.logPeriodicStats()
		default:
		}

		if w.State() == StateDraining && len(recs) == 0 && w.queue.Depth() == 0 {
			w.drainFinal(ctx)
			return
		}
	}
}

// drainFinal flushes every open batch and makes the terminal transition.
func (w *BatchWorker) drainFinal(ctx context.Context) {
	remaining := w.acc.FlushAll()
	if len(remaining) > 0 {
		w.logger.Info("📝 BatchWorker: committing final batches", "batches", len(remaining))
	}
	for _, b := range remaining {
		w.commit(ctx, b)
	}
	w.state.Store(int32(StateStopped))
	w.logFinalStats()
}

func (w *BatchWorker) commit(ctx context.Context, b *Batch) {
	start := time.Now()
	if err := w.committer.Commit(ctx, b); err != nil {
		// Logged with enough context to reconstruct what was lost. The loop
		// keeps running: a write failure is never fatal.
		w.metrics.RecordDiscarded(b.Size())
		w.logger.Error("📝 BatchWorker: batch discarded",
			"destination", b.Key.String(),
			"items", b.Size(),
			"err", err)
		return
	}
	dur := time.Since(start)
	w.metrics.RecordBatch(b.Size(), dur)
	w.tput.Record(b.Size())

	if dur > 500*time.Millisecond {
		w.logger.Warn("📝 BatchWorker: SLOW WRITE DETECTED",
			"destination", b.Key.String(),
			"items", b.Size(),
			"dur", dur)
	}
}

// checkQueueHealth tracks max depth and emits threshold warnings. Thresholds
// are observability only: queue semantics never change under pressure.
func (w *BatchWorker) checkQueueHealth() {
	depth := w.queue.Depth()
	w.metrics.ObserveDepth(depth)

	if depth < w.warnDepth {
		return
	}
	// Throttled: the loop spins every few milliseconds, one line per second
	// is plenty.
	if time.Since(w.lastWarn) < time.Second {
		return
	}
	w.lastWarn = time.Now()
	w.metrics.RecordWarning()

	if depth >= w.criticalDepth {
		w.logger.Error("🚨 BatchWorker: queue depth critical", "depth", depth, "capacity", w.queue.Capacity())
	} else {
		w.logger.Warn("BatchWorker: queue depth high", "depth", depth, "capacity", w.queue.Capacity())
	}
}

func (w *BatchWorker) logPeriodicStats() {
	s := w.Snapshot()
	w.logger.Info("📊 Stats",
		"processed", s.Committed,
		"items_per_sec", w.tput.Rate(),
		"avg_batch_size", s.AvgBatchSize,
		"queue_depth", s.CurrentDepth)
}

func (w *BatchWorker) logFinalStats() {
	s := w.Snapshot()
	w.logger.Info("📝 BatchWorker: STOPPED - final statistics",
		"total_processed", s.Committed,
		"total_batches", s.Batches,
		"total_errors", s.Errors,
		"avg_batch_size", s.AvgBatchSize,
		"avg_batch_time", s.AvgBatchTime,
		"max_queue_depth", s.MaxDepth,
		"queue_warnings", s.Warnings,
		"runtime", s.Runtime)
}
