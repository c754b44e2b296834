package model

import "time"

// Candle represents a single OHLCV bar. Sequences are ordered ascending
// by time with no duplicate timestamps, and are immutable once fetched.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Instrument holds contract metadata for a tradable symbol, supplied by
// the candle source rather than inferred from the symbol text.
type Instrument struct {
	Symbol   string
	LotSize  int
	TickSize float64
}
