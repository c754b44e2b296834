package model

import "time"

// LifecycleState is the discrete stage of a tracked symbol.
type LifecycleState string

const (
	StateUnscanned LifecycleState = "UNSCANNED"
	StateWatching  LifecycleState = "WATCHING"
	StateFound     LifecycleState = "FOUND"
	StateEntered   LifecycleState = "ENTERED"
	StateClosed    LifecycleState = "CLOSED"
)

// PatternSignal is the analyzer's output for one symbol, latest-wins.
// EntryPrice > StopPrice holds for every FOUND or ENTERED signal; the
// analyzer enforces this and nothing downstream corrects it. Rows in
// UNSCANNED or WATCHING are bare tracking markers whose price levels
// are zero and must not be read before the state reaches FOUND.
// RewardRatio is computed once at detection time and never recomputed
// as price moves.
type PatternSignal struct {
	Symbol           string
	ReferenceLow     float64
	Resistance1      float64
	Resistance2      float64
	EntryPrice       float64
	StopPrice        float64
	RewardRatio      float64
	ReferenceLowTime time.Time
	LastPrice        float64
	State            LifecycleState
}
