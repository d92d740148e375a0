package pipeline

import (
	"context"
	"log/slog"
	"time"

	"aviator-tracker-go/internal/models"
	"aviator-tracker-go/internal/regions"

	"golang.org/x/time/rate"
)

// maxSnapshotsPerRound caps the per-round snapshot buffer so a stuck phase
// detector cannot grow memory without bound.
const maxSnapshotsPerRound = 300

// BookmakerSpec describes one tracked source.
type BookmakerSpec struct {
	Name        string
	BetSequence []float64 // martingale-style ladder, advanced on loss
	AutoStop    float64
	Coords      regions.Coords
	Read        regions.ReaderFunc
}

// producer is one tracked bookmaker: a tick loop reading the screen regions,
// emitting records into the queue, and occasionally submitting a bet. One
// goroutine per producer; all fields below are goroutine-local.
type producer struct {
	spec    BookmakerSpec
	queue   *RecordQueue
	bets    *BetController
	metrics *QueueMetrics
	limiter *rate.Limiter
	logger  *slog.Logger

	roundID      int64
	betIndex     int
	betPlaced    bool
	prevPhase    models.GamePhase
	currentPhase models.GamePhase
	snapshots    []models.Record
}

func newProducer(spec BookmakerSpec, queue *RecordQueue, bets *BetController, metrics *QueueMetrics, tick time.Duration) *producer {
	return &producer{
		spec:    spec,
		queue:   queue,
		bets:    bets,
		metrics: metrics,
		limiter: rate.NewLimiter(rate.Every(tick), 1),
		logger:  slog.Default().With("bookmaker", spec.Name),
	}
}

// run is the producer loop. It finishes the current tick before honouring
// shutdown, so a half-built record is never abandoned mid-construction.
func (p *producer) run(ctx context.Context, shutdown <-chan struct{}) {
	p.logger.Info("producer started")
	for {
		select {
		case <-shutdown:
			p.logger.Info("producer stopping", "rounds_seen", p.roundID)
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		reading, ok := p.spec.Read(ctx)
		if !ok {
			continue // no data this tick, nothing is enqueued
		}
		p.tick(ctx, reading)
	}
}

// tick advances the game-phase state machine with one reading.
func (p *producer) tick(ctx context.Context, r regions.Reading) {
	p.prevPhase = p.currentPhase
	p.currentPhase = r.Phase

	switch {
	case r.Phase == models.PhaseEnded && p.prevPhase != models.PhaseEnded:
		p.handleRoundEnd(r)

	case r.Phase == models.PhaseLoading || r.Phase == models.PhaseBetting:
		if !p.betPlaced && p.prevPhase == models.PhaseEnded && len(p.spec.BetSequence) > 0 {
			p.placeBet(ctx, r)
		}

	case r.Phase.IsScore():
		p.collectSnapshot(r)
	}
}

// handleRoundEnd emits the round record and the snapshots buffered during the
// round as one burst, preserving the producer's FIFO order.
func (p *producer) handleRoundEnd(r regions.Reading) {
	p.roundID++
	now := time.Now()

	p.put(models.NewRoundRecord(p.spec.Name, now, models.Round{
		RoundID:      p.roundID,
		Score:        r.Score,
		TotalWin:     r.TotalWin,
		TotalPlayers: r.Players,
	}))

	for _, snap := range p.snapshots {
		snap.Snapshot.RoundID = p.roundID
		p.put(snap)
	}
	p.snapshots = p.snapshots[:0]

	// Settle the bet ladder: a crash below auto-stop is a loss.
	if p.betPlaced {
		if r.Score < p.spec.AutoStop {
			p.betIndex = (p.betIndex + 1) % len(p.spec.BetSequence)
		} else {
			p.betIndex = 0
		}
	}
	p.betPlaced = false
}

func (p *producer) collectSnapshot(r regions.Reading) {
	if len(p.snapshots) >= maxSnapshotsPerRound {
		return
	}
	p.snapshots = append(p.snapshots, models.NewSnapshotRecord(p.spec.Name, time.Now(), models.Snapshot{
		CurrentScore:      r.Score,
		CurrentPlayers:    r.Players,
		CurrentPlayersWin: r.PlayersWon,
	}))
}

// placeBet submits one serialized action and waits for its outcome before the
// producer can submit another, which keeps the one-outstanding-request
// invariant by construction.
func (p *producer) placeBet(ctx context.Context, r regions.Reading) {
	amount := p.spec.BetSequence[p.betIndex]
	handle, err := p.bets.Submit(&BetRequest{
		Bookmaker:    p.spec.Name,
		Amount:       amount,
		AutoStop:     p.spec.AutoStop,
		AmountCoords: p.spec.Coords.PlayAmount,
		ButtonCoords: p.spec.Coords.PlayButton,
	})
	if err != nil {
		p.logger.Warn("bet rejected", "amount", amount, "err", err)
		return
	}

	res, err := handle.Wait(ctx)
	if err != nil {
		return
	}
	if !res.Placed {
		// Not retried here: blind resubmission of a side-effecting action is
		// a policy call, and the safe default is to sit the round out.
		return
	}

	p.betPlaced = true
	p.put(models.NewEarningsRecord(p.spec.Name, time.Now(), models.Earnings{
		RoundID:   p.roundID + 1,
		BetAmount: amount,
		AutoStop:  p.spec.AutoStop,
		Balance:   r.MyMoney,
	}))
}

// put enqueues one record, counting a saturation rejection as a dropped item.
func (p *producer) put(rec models.Record) {
	if err := p.queue.Put(rec); err != nil {
		p.metrics.RecordDropped()
		p.logger.Warn("record dropped, queue saturated", "destination", rec.Key().String())
		return
	}
	p.metrics.RecordEnqueued()
}
