package model

import "time"

// TradeMode distinguishes paper trades from live ones.
type TradeMode string

const (
	ModeVirtual TradeMode = "VIRTUAL"
	ModeLive    TradeMode = "LIVE"
)

// Outcome records how a trade was closed.
type Outcome string

const (
	OutcomeTarget Outcome = "TARGET"
	OutcomeStop   Outcome = "STOP"
)

// ActiveTrade is an open position. At most one exists per symbol; it is
// created exactly once on entry and destroyed the moment price crosses
// either the stop or the target.
type ActiveTrade struct {
	Symbol      string
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64
	Quantity    int
	Mode        TradeMode
	OpenedAt    time.Time
}

// HistoryRecord is one append-only row of the trade history.
type HistoryRecord struct {
	ID         string
	Symbol     string
	EntryPrice float64
	ExitPrice  float64
	Outcome    Outcome
	Quantity   int
	PnL        float64
	ClosedAt   time.Time
}
