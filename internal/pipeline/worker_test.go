package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"aviator-tracker-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureCommitter records committed batches and can be told to fail some
// destinations.
type captureCommitter struct {
	mu      sync.Mutex
	batches []*Batch
	failFor map[models.DestinationKey]error
	delay   time.Duration
}

func newCaptureCommitter() *captureCommitter {
	return &captureCommitter{failFor: map[models.DestinationKey]error{}}
}

func (c *captureCommitter) Commit(_ context.Context, b *Batch) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failFor[b.Key]; ok {
		return err
	}
	c.batches = append(c.batches, b)
	return nil
}

func (c *captureCommitter) committed() []*Batch {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Batch, len(c.batches))
	copy(out, c.batches)
	return out
}

func (c *captureCommitter) itemsFor(key models.DestinationKey) []models.Record {
	var out []models.Record
	for _, b := range c.committed() {
		if b.Key == key {
			out = append(out, b.Items...)
		}
	}
	return out
}

func startWorker(t *testing.T, queueCap, batchSize int, timeout time.Duration, committer Committer) (*BatchWorker, *RecordQueue) {
	t.Helper()
	q := NewRecordQueue(queueCap)
	w := NewBatchWorker(q, committer, NewQueueMetrics(), WorkerConfig{
		BatchSize:     batchSize,
		BatchTimeout:  timeout,
		StatsInterval: time.Hour, // keep periodic stats out of short tests
	})
	w.Start()
	t.Cleanup(func() {
		w.Drain()
		_ = w.WaitStopped(5 * time.Second)
	})
	return w, q
}

func TestBatchWorker_SizeThresholdScenario(t *testing.T) {
	// 50 records for one destination within 10ms: exactly one batch of 50,
	// committed without waiting for the time threshold.
	committer := newCaptureCommitter()
	w, q := startWorker(t, 10000, 50, time.Second, committer)

	for i := int64(1); i <= 50; i++ {
		require.NoError(t, q.Put(roundRec("balkanbet", i)))
	}

	require.Eventually(t, func() bool {
		return len(committer.committed()) == 1
	}, 500*time.Millisecond, 5*time.Millisecond, "batch should commit on size threshold, not the 1s timer")

	b := committer.committed()[0]
	assert.Equal(t, 50, b.Size())
	assert.Equal(t, uint64(50), w.Snapshot().Committed)
}

func TestBatchWorker_TimeThresholdScenario(t *testing.T) {
	// 10 records then silence: one batch of 10 once the time threshold
	// elapses.
	committer := newCaptureCommitter()
	_, q := startWorker(t, 10000, 50, 300*time.Millisecond, committer)

	for i := int64(1); i <= 10; i++ {
		require.NoError(t, q.Put(roundRec("maxbet", i)))
	}

	time.Sleep(100 * time.Millisecond)
	assert.Empty(t, committer.committed(), "batch must not release before the time threshold")

	require.Eventually(t, func() bool {
		return len(committer.committed()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 10, committer.committed()[0].Size())
}

func TestBatchWorker_BatchBounds(t *testing.T) {
	committer := newCaptureCommitter()
	w, q := startWorker(t, 10000, 25, 50*time.Millisecond, committer)

	for i := int64(1); i <= 180; i++ {
		require.NoError(t, q.Put(roundRec("meridian", i)))
	}

	w.Drain()
	require.NoError(t, w.WaitStopped(5*time.Second))

	total := 0
	for _, b := range committer.committed() {
		assert.Greater(t, b.Size(), 0, "a batch is never released empty")
		assert.LessOrEqual(t, b.Size(), 25, "a batch never exceeds the size threshold")
		total += b.Size()
	}
	assert.Equal(t, 180, total)
}

func TestBatchWorker_PerKeyOrderPreserved(t *testing.T) {
	committer := newCaptureCommitter()
	w, q := startWorker(t, 10000, 7, 20*time.Millisecond, committer)

	for i := int64(1); i <= 100; i++ {
		require.NoError(t, q.Put(roundRec("balkanbet", i)))
		require.NoError(t, q.Put(models.NewSnapshotRecord("balkanbet", time.Now(), models.Snapshot{RoundID: i})))
	}

	w.Drain()
	require.NoError(t, w.WaitStopped(5*time.Second))

	rounds := committer.itemsFor(models.DestinationKey{Bookmaker: "balkanbet", Kind: models.KindRound})
	require.Len(t, rounds, 100)
	for i, rec := range rounds {
		assert.Equal(t, int64(i+1), rec.Round.RoundID, "committed order must match enqueue order")
	}
}

func TestBatchWorker_Conservation(t *testing.T) {
	// committed + rejected-at-capacity + discarded-on-permanent-failure == N
	committer := newCaptureCommitter()
	badKey := models.DestinationKey{Bookmaker: "soccerbet", Kind: models.KindRound}
	committer.failFor[badKey] = errors.New("NOT NULL constraint failed")

	q := NewRecordQueue(64)
	m := NewQueueMetrics()
	w := NewBatchWorker(q, committer, m, WorkerConfig{
		BatchSize:     10,
		BatchTimeout:  20 * time.Millisecond,
		StatsInterval: time.Hour,
	})
	w.Start()

	const n = 500
	dropped := 0
	for i := int64(0); i < n; i++ {
		name := "balkanbet"
		if i%3 == 0 {
			name = "soccerbet"
		}
		if err := q.Put(roundRec(name, i)); err != nil {
			m.RecordDropped()
			dropped++
		} else {
			m.RecordEnqueued()
		}
		if i%50 == 0 {
			time.Sleep(time.Millisecond) // let the worker breathe, keep some drops likely
		}
	}

	w.Drain()
	require.NoError(t, w.WaitStopped(5*time.Second))

	s := w.Snapshot()
	assert.Equal(t, uint64(dropped), s.Dropped)
	assert.Equal(t, uint64(n), s.Committed+s.Dropped+s.Discarded, "no record may vanish silently")
	assert.Zero(t, s.CurrentDepth)
}

func TestBatchWorker_CommitFailureDoesNotStopLoop(t *testing.T) {
	committer := newCaptureCommitter()
	badKey := models.DestinationKey{Bookmaker: "maxbet", Kind: models.KindRound}
	committer.failFor[badKey] = errors.New("permanent")

	w, q := startWorker(t, 1000, 5, 20*time.Millisecond, committer)

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, q.Put(roundRec("maxbet", i)))
	}
	for i := int64(1); i <= 5; i++ {
		require.NoError(t, q.Put(roundRec("balkanbet", i)))
	}

	require.Eventually(t, func() bool {
		return w.Snapshot().Committed == 5 && w.Snapshot().Errors == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateRunning, w.State())
}

func TestBatchWorker_StateTransitions(t *testing.T) {
	committer := newCaptureCommitter()
	q := NewRecordQueue(100)
	w := NewBatchWorker(q, committer, NewQueueMetrics(), WorkerConfig{
		BatchSize:     50,
		BatchTimeout:  time.Hour,
		StatsInterval: time.Hour,
	})
	w.Start()
	assert.Equal(t, StateRunning, w.State())

	// A couple of records below every threshold: only the drain flush can
	// commit them.
	require.NoError(t, q.Put(roundRec("balkanbet", 1)))
	require.NoError(t, q.Put(roundRec("balkanbet", 2)))

	w.Drain()
	require.NoError(t, w.WaitStopped(5*time.Second))
	assert.Equal(t, StateStopped, w.State())

	batches := committer.committed()
	require.Len(t, batches, 1)
	assert.Equal(t, 2, batches[0].Size())

	// STOPPED is terminal: a second Drain is a harmless no-op.
	w.Drain()
	assert.Equal(t, StateStopped, w.State())
}
