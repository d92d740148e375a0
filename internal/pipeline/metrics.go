package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueMetrics is the batch worker's counter set. All fields are atomics so
// producers can bump the drop counter without touching the worker goroutine.
// The handle is passed explicitly to whatever reports it; there is no ambient
// global copy.
type QueueMetrics struct {
	enqueued  atomic.Uint64
	dequeued  atomic.Uint64
	dropped   atomic.Uint64
	committed atomic.Uint64
	discarded atomic.Uint64
	batches   atomic.Uint64
	errors    atomic.Uint64
	warnings  atomic.Uint64
	maxDepth  atomic.Int64

	commitNanos atomic.Int64
	startedAt   atomic.Int64 // unix nanos, set at worker start
}

// MetricsSnapshot is a read-only copy with the derived values the stats
// reports need.
type MetricsSnapshot struct {
	Enqueued     uint64        `json:"enqueued"`
	Dequeued     uint64        `json:"dequeued"`
	Dropped      uint64        `json:"dropped"`
	Committed    uint64        `json:"committed"`
	Discarded    uint64        `json:"discarded"`
	Batches      uint64        `json:"batches"`
	Errors       uint64        `json:"errors"`
	Warnings     uint64        `json:"warnings"`
	MaxDepth     int64         `json:"max_depth"`
	AvgBatchSize float64       `json:"avg_batch_size"`
	AvgBatchTime time.Duration `json:"avg_batch_time"`
	ItemsPerSec  float64       `json:"items_per_sec"`
	Runtime      time.Duration `json:"runtime"`
	CurrentDepth int           `json:"queue_depth"`
}

func NewQueueMetrics() *QueueMetrics {
	return &QueueMetrics{}
}

// ResetForRun zeroes every counter. Called exactly once, at worker start.
func (m *QueueMetrics) ResetForRun(now time.Time) {
	m.enqueued.Store(0)
	m.dequeued.Store(0)
	m.dropped.Store(0)
	m.committed.Store(0)
	m.discarded.Store(0)
	m.batches.Store(0)
	m.errors.Store(0)
	m.warnings.Store(0)
	m.maxDepth.Store(0)
	m.commitNanos.Store(0)
	m.startedAt.Store(now.UnixNano())
}

func (m *QueueMetrics) RecordEnqueued() {
	m.enqueued.Add(1)
	prom().recordsEnqueued.Inc()
}

func (m *QueueMetrics) RecordDropped() {
	m.dropped.Add(1)
	prom().recordsDropped.Inc()
}

func (m *QueueMetrics) RecordDequeued(n int) {
	m.dequeued.Add(uint64(n))
}

func (m *QueueMetrics) RecordBatch(size int, dur time.Duration) {
	m.batches.Add(1)
	m.committed.Add(uint64(size))
	m.commitNanos.Add(int64(dur))
	prom().batchesCommitted.Inc()
	prom().batchSize.Observe(float64(size))
	prom().commitTime.Observe(dur.Seconds())
}

// RecordDiscarded accounts a batch abandoned after a permanent write failure.
func (m *QueueMetrics) RecordDiscarded(size int) {
	m.discarded.Add(uint64(size))
	m.errors.Add(1)
	prom().commitErrors.Inc()
}

func (m *QueueMetrics) RecordWarning() {
	m.warnings.Add(1)
	prom().depthWarnings.Inc()
}

func (m *QueueMetrics) ObserveDepth(depth int) {
	prom().queueDepth.Set(float64(depth))
	for {
		cur := m.maxDepth.Load()
		if int64(depth) <= cur {
			return
		}
		if m.maxDepth.CompareAndSwap(cur, int64(depth)) {
			return
		}
	}
}

func (m *QueueMetrics) Dropped() uint64 { return m.dropped.Load() }
func (m *QueueMetrics) Errors() uint64  { return m.errors.Load() }

// Snapshot returns a read-only copy with derived reporting values.
func (m *QueueMetrics) Snapshot(currentDepth int) MetricsSnapshot {
	s := MetricsSnapshot{
		Enqueued:     m.enqueued.Load(),
		Dequeued:     m.dequeued.Load(),
		Dropped:      m.dropped.Load(),
		Committed:    m.committed.Load(),
		Discarded:    m.discarded.Load(),
		Batches:      m.batches.Load(),
		Errors:       m.errors.Load(),
		Warnings:     m.warnings.Load(),
		MaxDepth:     m.maxDepth.Load(),
		CurrentDepth: currentDepth,
	}

	if started := m.startedAt.Load(); started > 0 {
		s.Runtime = time.Since(time.Unix(0, started))
	}
	if s.Batches > 0 {
		s.AvgBatchSize = float64(s.Committed) / float64(s.Batches)
		s.AvgBatchTime = time.Duration(m.commitNanos.Load() / int64(s.Batches))
	}
	// Items per wall-clock second over the whole run, matching what the
	// field name promises to /api/stats consumers.
	if s.Runtime > 0 {
		s.ItemsPerSec = float64(s.Committed) / s.Runtime.Seconds()
	}
	return s
}

// promSet mirrors the counters into Prometheus collectors. Registration must
// happen once per process, hence the singleton.
type promSet struct {
	recordsEnqueued  prometheus.Counter
	recordsDropped   prometheus.Counter
	batchesCommitted prometheus.Counter
	commitErrors     prometheus.Counter
	depthWarnings    prometheus.Counter
	queueDepth       prometheus.Gauge
	batchSize        prometheus.Histogram
	commitTime       prometheus.Histogram
	betsPlaced       prometheus.Counter
	betsFailed       prometheus.Counter
	betsRejected     prometheus.Counter
}

var (
	promMetrics *promSet
	promOnce    sync.Once
)

func prom() *promSet {
	promOnce.Do(func() {
		promMetrics = &promSet{
			recordsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tracker_records_enqueued_total",
				Help: "Total number of records accepted into the persistence queue",
			}),
			recordsDropped: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tracker_records_dropped_total",
				Help: "Total number of records rejected because the queue was saturated",
			}),
			batchesCommitted: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tracker_batches_committed_total",
				Help: "Total number of batches committed to the database",
			}),
			commitErrors: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tracker_commit_errors_total",
				Help: "Total number of batches discarded after write failure",
			}),
			depthWarnings: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tracker_queue_depth_warnings_total",
				Help: "Total number of queue depth threshold warnings",
			}),
			queueDepth: promauto.NewGauge(prometheus.GaugeOpts{
				Name: "tracker_queue_depth",
				Help: "Current persistence queue depth",
			}),
			batchSize: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "tracker_batch_size",
				Help:    "Committed batch sizes",
				Buckets: []float64{1, 5, 10, 25, 50, 100},
			}),
			commitTime: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "tracker_batch_commit_duration_seconds",
				Help:    "Time taken to commit one batch",
				Buckets: prometheus.DefBuckets,
			}),
			betsPlaced: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tracker_bets_placed_total",
				Help: "Total number of bet actions executed successfully",
			}),
			betsFailed: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tracker_bets_failed_total",
				Help: "Total number of bet actions that failed to execute",
			}),
			betsRejected: promauto.NewCounter(prometheus.CounterOpts{
				Name: "tracker_bets_rejected_total",
				Help: "Total number of bet requests rejected (queue full or shutting down)",
			}),
		}
	})
	return promMetrics
}
