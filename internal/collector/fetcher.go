package collector

import (
	"context"
	"time"

	"PatternScout/internal/model"
)

// Fetcher defines the interface for the external candle source.
//
// FetchHistory returns candles ordered ascending by time; an empty
// slice is valid "no data", while a non-nil error always means a
// transport, auth, or rate-limit failure.
type Fetcher interface {
	FetchHistory(ctx context.Context, symbol, resolution string, from, to time.Time) ([]model.Candle, error)
	FetchQuote(ctx context.Context, symbol string) (float64, error)
	FetchInstrument(ctx context.Context, symbol string) (model.Instrument, error)
	Name() string
}
