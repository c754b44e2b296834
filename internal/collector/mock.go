package collector

import (
	"context"
	"time"

	"PatternScout/internal/model"
)

// MockFetcher returns controllable fixed data for development and testing.
type MockFetcher struct {
	Price       float64
	History     []model.Candle
	Instruments map[string]model.Instrument
	Err         error
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchHistory(_ context.Context, _ string, _ string, from, to time.Time) ([]model.Candle, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	if m.History != nil {
		return m.History, nil
	}
	count := int(to.Sub(from) / (5 * time.Minute))
	return GenerateCandles(m.Price, count), nil
}

func (m *MockFetcher) FetchQuote(_ context.Context, _ string) (float64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	return m.Price, nil
}

func (m *MockFetcher) FetchInstrument(_ context.Context, symbol string) (model.Instrument, error) {
	if m.Err != nil {
		return model.Instrument{}, m.Err
	}
	if inst, ok := m.Instruments[symbol]; ok {
		return inst, nil
	}
	return model.Instrument{Symbol: symbol, LotSize: 1}, nil
}

// GenerateCandles produces a deterministic drifting series around basePrice.
func GenerateCandles(basePrice float64, count int) []model.Candle {
	start := time.Date(2025, 1, 1, 9, 15, 0, 0, time.UTC)
	candles := make([]model.Candle, count)
	for i := 0; i < count; i++ {
		p := basePrice * (1 + float64(i-count/2)*0.001)
		candles[i] = model.Candle{
			Time:   start.Add(time.Duration(i) * 5 * time.Minute),
			Open:   p * 0.999,
			High:   p * 1.005,
			Low:    p * 0.995,
			Close:  p,
			Volume: 100000,
		}
	}
	return candles
}
