// Package regions is the boundary to the screen-capture/OCR subsystem. The
// pipeline only sees typed readings; capture, OCR and phase classification
// live behind ReaderFunc.
package regions

import (
	"context"

	"aviator-tracker-go/internal/models"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Region struct {
	Left   int `json:"left"`
	Top    int `json:"top"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Coords is the static coordinate set for one bookmaker window, resolved once
// at producer startup.
type Coords struct {
	PlayAmount Point
	PlayButton Point

	Score      Region
	MyMoney    Region
	OtherCount Region
	OtherMoney Region
	Phase      Region
}

// Reading is one parsed observation of a bookmaker's screen.
type Reading struct {
	Phase      models.GamePhase
	Score      float64
	MyMoney    float64
	Players    int
	PlayersWon float64
	TotalWin   float64
}

// ReaderFunc returns the current reading, or ok=false when the regions could
// not be parsed this tick (no data is not an error; the tick is skipped).
type ReaderFunc func(ctx context.Context) (Reading, bool)
