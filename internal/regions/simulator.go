package regions

import (
	"context"
	"math/rand"
	"sync"

	"aviator-tracker-go/internal/models"
)

// Simulator produces plausible game rounds without a screen: betting window,
// score ramp, crash. It stands in for the OCR stack in demo mode and tests.
type Simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	phase   models.GamePhase
	ticks   int // ticks remaining in the current phase
	score   float64
	crash   float64
	balance float64
	players int
}

func NewSimulator(seed int64) *Simulator {
	s := &Simulator{
		rng:     rand.New(rand.NewSource(seed)),
		balance: 1000,
	}
	s.enter(models.PhaseLoading)
	return s
}

// Read implements ReaderFunc. Each call advances the simulated game one tick.
func (s *Simulator) Read(_ context.Context) (Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.step()

	// OCR misreads a region now and then; those ticks yield no data.
	if s.rng.Float64() < 0.02 {
		return Reading{}, false
	}

	return Reading{
		Phase:      s.phase,
		Score:      s.score,
		MyMoney:    s.balance,
		Players:    s.players,
		PlayersWon: float64(s.players) * s.rng.Float64(),
		TotalWin:   s.score * float64(s.players) * 0.1,
	}, true
}

func (s *Simulator) step() {
	s.ticks--
	if s.ticks > 0 {
		if s.phase.IsScore() {
			s.score *= 1 + 0.05*s.rng.Float64()
			switch {
			case s.score >= 10:
				s.phase = models.PhaseScoreHigh
			case s.score >= 2:
				s.phase = models.PhaseScoreMid
			}
			if s.score >= s.crash {
				s.enter(models.PhaseEnded)
			}
		}
		return
	}

	switch s.phase {
	case models.PhaseLoading:
		s.enter(models.PhaseBetting)
	case models.PhaseBetting:
		s.enter(models.PhaseScoreLow)
	case models.PhaseScoreLow, models.PhaseScoreMid, models.PhaseScoreHigh:
		s.enter(models.PhaseEnded)
	default:
		s.enter(models.PhaseLoading)
	}
}

func (s *Simulator) enter(phase models.GamePhase) {
	s.phase = phase
	switch phase {
	case models.PhaseLoading:
		s.ticks = 2 + s.rng.Intn(3)
	case models.PhaseBetting:
		s.ticks = 5 + s.rng.Intn(10)
		s.players = 50 + s.rng.Intn(400)
	case models.PhaseScoreLow:
		s.ticks = 10 + s.rng.Intn(100)
		s.score = 1.0
		// Heavy-tailed crash point, most rounds end low.
		s.crash = 1.0 + s.rng.ExpFloat64()*2
	case models.PhaseEnded:
		s.ticks = 3 + s.rng.Intn(3)
	}
}

// DemoCoords returns a fixed coordinate layout for simulated bookmakers,
// offset per window slot the way the real multi-monitor layout is.
func DemoCoords(slot int) Coords {
	xOff := (slot % 2) * 960
	yOff := (slot / 2) * 540
	return Coords{
		PlayAmount: Point{X: xOff + 420, Y: yOff + 500},
		PlayButton: Point{X: xOff + 520, Y: yOff + 500},
		Score:      Region{Left: xOff + 380, Top: yOff + 200, Width: 200, Height: 60},
		MyMoney:    Region{Left: xOff + 40, Top: yOff + 30, Width: 160, Height: 30},
		OtherCount: Region{Left: xOff + 40, Top: yOff + 120, Width: 120, Height: 24},
		OtherMoney: Region{Left: xOff + 40, Top: yOff + 150, Width: 160, Height: 24},
		Phase:      Region{Left: xOff + 300, Top: yOff + 180, Width: 360, Height: 120},
	}
}
