package analyzer

import (
	"math"
	"reflect"
	"testing"
	"time"

	"PatternScout/internal/model"
)

// flatCandles builds a background series where every high/low sits at
// the given price, leaving no accidental local maxima or lows.
func flatCandles(n int, price float64) []model.Candle {
	start := time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC)
	candles := make([]model.Candle, n)
	for i := range candles {
		candles[i] = model.Candle{
			Time:  start.Add(time.Duration(i) * 5 * time.Minute),
			Open:  price,
			High:  price,
			Low:   price - 1,
			Close: price,
		}
	}
	return candles
}

// setupCandles builds the canonical accepted scenario: reference low
// 100 at index 50, prior maxima 120 (index 45) and 200 (index 30), and
// a fair-value gap right after the low giving entry 105.
func setupCandles() []model.Candle {
	candles := flatCandles(60, 110)
	candles[30].High = 200
	candles[45].High = 120
	candles[50].Low = 100
	candles[50].High = 102
	candles[52].Low = 108
	return candles
}

func mustNew(t *testing.T) *Analyzer {
	t.Helper()
	a, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}
	return a
}

func TestAnalyze_AcceptedScenario(t *testing.T) {
	a := mustNew(t)
	sig := a.Analyze("NIFTY24X", setupCandles())
	if sig == nil {
		t.Fatal("expected signal, got nil")
	}
	if sig.ReferenceLow != 100 {
		t.Errorf("reference low = %v, want 100", sig.ReferenceLow)
	}
	if sig.Resistance1 != 120 || sig.Resistance2 != 200 {
		t.Errorf("resistances = %v/%v, want 120/200", sig.Resistance1, sig.Resistance2)
	}
	if sig.EntryPrice != 105 {
		t.Errorf("entry = %v, want 105", sig.EntryPrice)
	}
	if sig.StopPrice != 98 {
		t.Errorf("stop = %v, want 98", sig.StopPrice)
	}
	// (200-105)/(105-98) = 13.571..., rounded at the output boundary.
	if math.Abs(sig.RewardRatio-13.6) > 1e-9 {
		t.Errorf("reward ratio = %v, want 13.6", sig.RewardRatio)
	}
	if sig.State != model.StateFound {
		t.Errorf("state = %v, want FOUND", sig.State)
	}
	if !sig.ReferenceLowTime.Equal(setupCandles()[50].Time) {
		t.Errorf("reference low time = %v", sig.ReferenceLowTime)
	}
}

func TestAnalyze_Pure(t *testing.T) {
	a := mustNew(t)
	candles := setupCandles()
	first := a.Analyze("SYM", candles)
	for i := 0; i < 5; i++ {
		again := a.Analyze("SYM", candles)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %+v vs %+v", i, first, again)
		}
	}
}

func TestAnalyze_TooFewCandles(t *testing.T) {
	a := mustNew(t)
	if sig := a.Analyze("SYM", setupCandles()[:19]); sig != nil {
		t.Errorf("expected nil for short series, got %+v", sig)
	}
	if sig := a.Analyze("SYM", nil); sig != nil {
		t.Errorf("expected nil for empty series, got %+v", sig)
	}
}

func TestAnalyze_PriceBand(t *testing.T) {
	a := mustNew(t)

	cheap := setupCandles()
	for i := range cheap {
		cheap[i].Low /= 10
		cheap[i].High /= 10
	}
	if sig := a.Analyze("SYM", cheap); sig != nil {
		t.Errorf("expected nil below price band, got %+v", sig)
	}

	expensive := setupCandles()
	for i := range expensive {
		expensive[i].Low *= 10
		expensive[i].High *= 10
	}
	if sig := a.Analyze("SYM", expensive); sig != nil {
		t.Errorf("expected nil above price band, got %+v", sig)
	}
}

func TestAnalyze_LowTooRecent(t *testing.T) {
	a := mustNew(t)
	candles := flatCandles(60, 110)
	candles[30].High = 200
	candles[45].High = 120
	candles[57].Low = 100 // inside the tail exclusion zone
	if sig := a.Analyze("SYM", candles); sig != nil {
		t.Errorf("expected nil for low in tail, got %+v", sig)
	}
}

func TestAnalyze_SinglePeakRejected(t *testing.T) {
	a := mustNew(t)
	candles := flatCandles(60, 110)
	candles[45].High = 200
	candles[50].Low = 100
	candles[50].High = 102
	candles[52].Low = 108
	if sig := a.Analyze("SYM", candles); sig != nil {
		t.Errorf("expected nil with one resistance peak, got %+v", sig)
	}
}

func TestResistances_MultiplierPreference(t *testing.T) {
	a := mustNew(t)

	// Closest peak 120, then 130 and 200: 200 is the first to reach
	// 1.5x and wins over the nearer 130.
	candles := flatCandles(60, 110)
	candles[20].High = 200
	candles[35].High = 130
	candles[45].High = 120
	candles[50].Low = 100
	r1, r2, ok := a.resistances(candles, 50)
	if !ok || r1 != 120 || r2 != 200 {
		t.Errorf("got %v/%v ok=%v, want 120/200", r1, r2, ok)
	}
}

func TestResistances_FallbackNextPeak(t *testing.T) {
	a := mustNew(t)

	// No later peak reaches 120*1.5; the next peak in the list is used.
	candles := flatCandles(60, 110)
	candles[20].High = 140
	candles[35].High = 121
	candles[45].High = 120
	candles[50].Low = 100
	r1, r2, ok := a.resistances(candles, 50)
	if !ok || r1 != 120 || r2 != 121 {
		t.Errorf("got %v/%v ok=%v, want 120/121", r1, r2, ok)
	}

	// The fallback is deterministic across repeated runs.
	for i := 0; i < 3; i++ {
		g1, g2, gok := a.resistances(candles, 50)
		if g1 != r1 || g2 != r2 || gok != ok {
			t.Fatalf("run %d differs: %v/%v ok=%v", i, g1, g2, gok)
		}
	}
}

func TestAnalyze_EntryFallbackMarkup(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinRewardRatio = 1 // keep the markup entry acceptable
	a, err := New(cfg)
	if err != nil {
		t.Fatalf("new analyzer: %v", err)
	}

	candles := flatCandles(60, 110)
	candles[30].High = 200
	candles[45].High = 120
	candles[50].Low = 100
	// No gap after the low: every later low overlaps earlier highs.
	sig := a.Analyze("SYM", candles)
	if sig == nil {
		t.Fatal("expected signal with markup entry")
	}
	if sig.EntryPrice != 105 { // 100 * 1.05
		t.Errorf("entry = %v, want markup entry 105", sig.EntryPrice)
	}
}

func TestAnalyze_RewardRatioGate(t *testing.T) {
	a := mustNew(t)
	candles := setupCandles()
	candles[30].High = 130
	candles[35].High = 131 // becomes resistance_2: (131-105)/7 = 3.71, below threshold
	if sig := a.Analyze("SYM", candles); sig != nil {
		t.Errorf("expected nil for reward ratio below threshold, got %+v", sig)
	}
}

func TestAnalyze_EntryAboveStopInvariant(t *testing.T) {
	a := mustNew(t)
	bases := []float64{35, 60, 90, 110, 150, 200, 240}
	for _, base := range bases {
		candles := flatCandles(80, base+10)
		candles[30].High = base * 2.2
		candles[45].High = base * 1.2
		candles[60].Low = base
		candles[60].High = base + 2
		candles[62].Low = base + 8
		sig := a.Analyze("SYM", candles)
		if sig == nil {
			continue
		}
		if sig.EntryPrice <= sig.StopPrice {
			t.Errorf("base %v: entry %v <= stop %v", base, sig.EntryPrice, sig.StopPrice)
		}
	}
}

func TestAnalyze_RewardRatioMatchesFormula(t *testing.T) {
	a := mustNew(t)
	sig := a.Analyze("SYM", setupCandles())
	if sig == nil {
		t.Fatal("expected signal")
	}
	want := (sig.Resistance2 - sig.EntryPrice) / (sig.EntryPrice - sig.StopPrice)
	if math.Abs(sig.RewardRatio-want) > 0.05+1e-9 {
		t.Errorf("reward ratio %v differs from recomputed %v beyond rounding tolerance", sig.RewardRatio, want)
	}
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"min candles", func(c *Config) { c.MinCandles = 5 }},
		{"inverted band", func(c *Config) { c.PriceBandFloor = 300 }},
		{"zero lookback", func(c *Config) { c.LookbackWindow = 0 }},
		{"multiplier", func(c *Config) { c.ResistanceMultiplier = 1 }},
		{"reward ratio", func(c *Config) { c.MinRewardRatio = 0 }},
		{"stop pct", func(c *Config) { c.StopPct = 0 }},
		{"markup pct", func(c *Config) { c.EntryMarkupPct = 1.5 }},
	}
	for _, tc := range cases {
		cfg := DefaultConfig()
		tc.mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", tc.name)
		}
	}
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}
