package pipeline

import (
	"time"

	"aviator-tracker-go/internal/models"
)

// Batch is an ordered group of records sharing one destination key, committed
// as a single transaction.
type Batch struct {
	Key      models.DestinationKey
	Items    []models.Record
	OpenedAt time.Time
}

func (b *Batch) Size() int { return len(b.Items) }

// Accumulator groups incoming records into per-destination batches and
// releases them on a size or age threshold, whichever crosses first.
//
// Not safe for concurrent use: the batch worker is the only caller.
type Accumulator struct {
	sizeThreshold int
	maxAge        time.Duration
	open          map[models.DestinationKey]*Batch
	// keys in first-open order so Expired/FlushAll release deterministically
	order []models.DestinationKey
}

func NewAccumulator(sizeThreshold int, maxAge time.Duration) *Accumulator {
	if sizeThreshold <= 0 {
		sizeThreshold = 50
	}
	return &Accumulator{
		sizeThreshold: sizeThreshold,
		maxAge:        maxAge,
		open:          make(map[models.DestinationKey]*Batch),
	}
}

// Add appends rec to the open batch for its destination key, opening one if
// absent. Returns the batch once it reaches the size threshold, else nil.
// A released batch is closed: the next record for the same key opens a fresh
// one.
func (a *Accumulator) Add(rec models.Record) *Batch {
	key := rec.Key()
	b, ok := a.open[key]
	if !ok {
		b = &Batch{Key: key, OpenedAt: time.Now()}
		a.open[key] = b
		a.order = append(a.order, key)
	}

	b.Items = append(b.Items, rec)
	if len(b.Items) >= a.sizeThreshold {
		a.release(key)
		return b
	}
	return nil
}

// Expired closes and returns every open batch older than the age threshold.
func (a *Accumulator) Expired(now time.Time) []*Batch {
	// Collect first: release() compacts a.order, and mutating it mid-range
	// would skip the element shifted into the released slot.
	var keys []models.DestinationKey
	for _, key := range a.order {
		if b, ok := a.open[key]; ok && now.Sub(b.OpenedAt) >= a.maxAge {
			keys = append(keys, key)
		}
	}

	var out []*Batch
	for _, key := range keys {
		b := a.open[key]
		a.release(key)
		out = append(out, b)
	}
	return out
}

// FlushAll closes and returns every open batch regardless of thresholds.
// Shutdown drain only.
func (a *Accumulator) FlushAll() []*Batch {
	var out []*Batch
	for _, key := range a.order {
		if b, ok := a.open[key]; ok {
			out = append(out, b)
		}
	}
	a.open = make(map[models.DestinationKey]*Batch)
	a.order = a.order[:0]
	return out
}

// Pending is the number of accumulated but not yet released records.
func (a *Accumulator) Pending() int {
	n := 0
	for _, b := range a.open {
		n += len(b.Items)
	}
	return n
}

func (a *Accumulator) release(key models.DestinationKey) {
	delete(a.open, key)
	for i, k := range a.order {
		if k == key {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}
