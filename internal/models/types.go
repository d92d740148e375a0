package models

import (
	"fmt"
	"time"
)

// RecordKind identifies the destination table of a record.
type RecordKind string

const (
	KindRound    RecordKind = "round"
	KindSnapshot RecordKind = "snapshot"
	KindEarnings RecordKind = "earnings"
)

// DestinationKey groups records that are committed together in one batch.
type DestinationKey struct {
	Bookmaker string
	Kind      RecordKind
}

func (k DestinationKey) String() string {
	return fmt.Sprintf("%s/%s", k.Bookmaker, k.Kind)
}

// Round is the final state of one game round.
type Round struct {
	RoundID      int64   `db:"round_id"`
	Score        float64 `db:"score"`
	TotalWin     float64 `db:"total_win"`
	TotalPlayers int     `db:"total_players"`
}

// Snapshot is a mid-round observation tied to the round it was taken in.
type Snapshot struct {
	RoundID           int64   `db:"round_id"`
	CurrentScore      float64 `db:"current_score"`
	CurrentPlayers    int     `db:"current_players"`
	CurrentPlayersWin float64 `db:"current_players_win"`
}

// Earnings captures the outcome of a placed bet.
type Earnings struct {
	RoundID   int64   `db:"round_id"`
	BetAmount float64 `db:"bet_amount"`
	AutoStop  float64 `db:"auto_stop"`
	Balance   float64 `db:"balance"`
}

// Record is an immutable value produced by a bookmaker producer. Exactly one
// of the payload pointers is set, matching Kind.
type Record struct {
	Bookmaker string
	Kind      RecordKind
	Timestamp time.Time

	Round    *Round
	Snapshot *Snapshot
	Earnings *Earnings
}

func (r Record) Key() DestinationKey {
	return DestinationKey{Bookmaker: r.Bookmaker, Kind: r.Kind}
}

func NewRoundRecord(bookmaker string, ts time.Time, payload Round) Record {
	return Record{Bookmaker: bookmaker, Kind: KindRound, Timestamp: ts, Round: &payload}
}

func NewSnapshotRecord(bookmaker string, ts time.Time, payload Snapshot) Record {
	return Record{Bookmaker: bookmaker, Kind: KindSnapshot, Timestamp: ts, Snapshot: &payload}
}

func NewEarningsRecord(bookmaker string, ts time.Time, payload Earnings) Record {
	return Record{Bookmaker: bookmaker, Kind: KindEarnings, Timestamp: ts, Earnings: &payload}
}

// GamePhase is the classified state of the game screen, produced by the
// out-of-scope phase detector.
type GamePhase int

const (
	PhaseUnknown GamePhase = iota
	PhaseLoading
	PhaseBetting
	PhaseScoreLow
	PhaseScoreMid
	PhaseScoreHigh
	PhaseEnded
)

func (p GamePhase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseBetting:
		return "betting"
	case PhaseScoreLow:
		return "score_low"
	case PhaseScoreMid:
		return "score_mid"
	case PhaseScoreHigh:
		return "score_high"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// IsScore reports whether the phase is one of the in-flight score phases.
func (p GamePhase) IsScore() bool {
	return p == PhaseScoreLow || p == PhaseScoreMid || p == PhaseScoreHigh
}
