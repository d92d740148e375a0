package pipeline

import (
	"context"
	"time"

	"aviator-tracker-go/internal/models"
)

// RecordQueue is the bounded MPSC buffer between the bookmaker producers and
// the batch worker. Capacity is fixed at construction; a full queue rejects
// instead of blocking, so a producer never stalls its own read loop on slow
// disk I/O.
type RecordQueue struct {
	ch chan models.Record
}

func NewRecordQueue(capacity int) *RecordQueue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &RecordQueue{ch: make(chan models.Record, capacity)}
}

// Put enqueues one record without blocking. Returns ErrQueueSaturated when
// the queue is at capacity; the record is not enqueued.
func (q *RecordQueue) Put(rec models.Record) error {
	select {
	case q.ch <- rec:
		return nil
	default:
		return ErrQueueSaturated
	}
}

// GetMany returns up to max records, waiting at most maxWait for the first
// one. A nil slice means nothing arrived within maxWait. Single-consumer:
// only the batch worker calls this.
func (q *RecordQueue) GetMany(ctx context.Context, max int, maxWait time.Duration) []models.Record {
	if max <= 0 {
		return nil
	}

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	var out []models.Record
	select {
	case rec := <-q.ch:
		out = append(out, rec)
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return nil
	}

	// Opportunistic drain of whatever is already buffered.
	for len(out) < max {
		select {
		case rec := <-q.ch:
			out = append(out, rec)
		default:
			return out
		}
	}
	return out
}

// Depth reports the current number of buffered records. O(1), never blocks
// producers.
func (q *RecordQueue) Depth() int { return len(q.ch) }

func (q *RecordQueue) Capacity() int { return cap(q.ch) }
