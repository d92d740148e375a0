package pipeline

import (
	"errors"
	"fmt"

	"aviator-tracker-go/internal/models"
)

var (
	// ErrQueueSaturated is returned by Put/Submit when a bounded queue is at
	// capacity. The caller counts the rejection and keeps running.
	ErrQueueSaturated = errors.New("queue saturated")

	// ErrShuttingDown is the fail-fast outcome for work that arrives, or is
	// still queued, after shutdown has been signalled.
	ErrShuttingDown = errors.New("shutting down")

	// ErrBetInFlight is returned when a bookmaker submits a second bet
	// request before its previous one completed.
	ErrBetInFlight = errors.New("bet request already in flight for this bookmaker")
)

// WriteError is a structured commit failure. Transient failures are eligible
// for a bounded retry; permanent ones discard the batch.
type WriteError struct {
	Key       models.DestinationKey
	BatchSize int
	Transient bool
	Err       error
}

func (e *WriteError) Error() string {
	class := "permanent"
	if e.Transient {
		class = "transient"
	}
	return fmt.Sprintf("%s write failure for %s (%d items): %v", class, e.Key, e.BatchSize, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
