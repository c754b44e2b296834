package analyzer

import (
	"fmt"
	"math"

	"PatternScout/internal/model"
)

// Config holds every tunable constant of the pattern detection. One
// config, one implementation; historical drift between hand-copied
// variants of this logic is deliberately collapsed here.
type Config struct {
	MinCandles           int     `yaml:"min_candles"`
	PriceBandFloor       float64 `yaml:"price_band_floor"`
	PriceBandCeiling     float64 `yaml:"price_band_ceiling"`
	LookbackWindow       int     `yaml:"lookback_window"`
	TailExclusion        int     `yaml:"tail_exclusion"`
	ResistanceMultiplier float64 `yaml:"resistance_multiplier"`
	MinRewardRatio       float64 `yaml:"min_reward_ratio"`
	StopPct              float64 `yaml:"stop_pct"`
	EntryMarkupPct       float64 `yaml:"entry_markup_pct"`
}

// DefaultConfig returns the production constants.
func DefaultConfig() Config {
	return Config{
		MinCandles:           20,
		PriceBandFloor:       30,
		PriceBandCeiling:     250,
		LookbackWindow:       300,
		TailExclusion:        5,
		ResistanceMultiplier: 1.5,
		MinRewardRatio:       4,
		StopPct:              0.02,
		EntryMarkupPct:       0.05,
	}
}

// Validate checks the config for values that would make detection
// meaningless. A non-nil error must prevent the scheduler from starting.
func (c Config) Validate() error {
	if c.MinCandles < 20 {
		return fmt.Errorf("min_candles must be at least 20, got %d", c.MinCandles)
	}
	if c.PriceBandFloor <= 0 || c.PriceBandCeiling <= c.PriceBandFloor {
		return fmt.Errorf("price band %.2f..%.2f is invalid", c.PriceBandFloor, c.PriceBandCeiling)
	}
	if c.LookbackWindow <= 0 {
		return fmt.Errorf("lookback_window must be positive, got %d", c.LookbackWindow)
	}
	if c.TailExclusion <= 0 {
		return fmt.Errorf("tail_exclusion must be positive, got %d", c.TailExclusion)
	}
	if c.ResistanceMultiplier <= 1 {
		return fmt.Errorf("resistance_multiplier must exceed 1, got %.2f", c.ResistanceMultiplier)
	}
	if c.MinRewardRatio <= 0 {
		return fmt.Errorf("min_reward_ratio must be positive, got %.2f", c.MinRewardRatio)
	}
	if c.StopPct <= 0 || c.StopPct >= 1 {
		return fmt.Errorf("stop_pct must be in (0,1), got %.3f", c.StopPct)
	}
	if c.EntryMarkupPct <= 0 || c.EntryMarkupPct >= 1 {
		return fmt.Errorf("entry_markup_pct must be in (0,1), got %.3f", c.EntryMarkupPct)
	}
	return nil
}

// Analyzer detects the accumulation-low / lower-high / fair-value-gap
// retracement setup in a candle sequence.
type Analyzer struct {
	cfg Config
}

// New creates an Analyzer from a validated config.
func New(cfg Config) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("analyzer config: %w", err)
	}
	return &Analyzer{cfg: cfg}, nil
}

// Analyze evaluates one ordered candle sequence for symbol and returns
// a fully parameterized signal, or nil when no qualifying pattern
// exists. It is a pure function of its inputs: identical candles and
// config produce an identical signal.
//
// All intermediates are carried at full precision; rounding to one
// decimal happens only when building the returned signal, so the
// reward-ratio gate never sees compounded rounding error.
func (a *Analyzer) Analyze(symbol string, candles []model.Candle) *model.PatternSignal {
	cfg := a.cfg
	if len(candles) < cfg.MinCandles {
		return nil
	}

	// Reference low: minimum low over the whole sequence, first index
	// wins on ties.
	lowIdx := 0
	refLow := candles[0].Low
	for i, c := range candles {
		if c.Low < refLow {
			refLow = c.Low
			lowIdx = i
		}
	}
	if refLow <= cfg.PriceBandFloor || refLow >= cfg.PriceBandCeiling {
		return nil
	}
	// The pattern needs room to develop after the low.
	if lowIdx >= len(candles)-cfg.TailExclusion {
		return nil
	}

	// Two lower highs from the window immediately preceding the low.
	res1, res2, ok := a.resistances(candles, lowIdx)
	if !ok {
		return nil
	}

	// Entry: first fair-value gap after the low, else fixed markup.
	entry, found := firstGapEntry(candles[lowIdx:])
	if !found {
		entry = refLow * (1 + cfg.EntryMarkupPct)
	}

	stop := refLow * (1 - cfg.StopPct)

	risk := entry - stop
	if risk <= 0 {
		return nil
	}
	reward := (res2 - entry) / risk
	if reward <= cfg.MinRewardRatio {
		return nil
	}

	return &model.PatternSignal{
		Symbol:           symbol,
		ReferenceLow:     round1(refLow),
		Resistance1:      round1(res1),
		Resistance2:      round1(res2),
		EntryPrice:       round1(entry),
		StopPrice:        round1(stop),
		RewardRatio:      round1(reward),
		ReferenceLowTime: candles[lowIdx].Time,
		LastPrice:        round1(candles[len(candles)-1].Close),
		State:            model.StateFound,
	}
}

// resistances collects strict local maxima of High in the lookback
// window before lowIdx, newest first. The closest maximum is the first
// resistance. The second is the first older maximum reaching
// ResistanceMultiplier times the first; when none does, the next
// maximum in the list is used. Fewer than two maxima rejects.
func (a *Analyzer) resistances(candles []model.Candle, lowIdx int) (res1, res2 float64, ok bool) {
	start := lowIdx - a.cfg.LookbackWindow
	if start < 0 {
		start = 0
	}
	window := candles[start:lowIdx]
	if len(window) < 5 {
		return 0, 0, false
	}

	var peaks []float64
	for i := len(window) - 2; i >= 1; i-- {
		if window[i].High > window[i-1].High && window[i].High > window[i+1].High {
			peaks = append(peaks, window[i].High)
		}
	}
	if len(peaks) < 2 {
		return 0, 0, false
	}

	res1 = peaks[0]
	res2 = peaks[1]
	for _, p := range peaks[1:] {
		if p >= res1*a.cfg.ResistanceMultiplier {
			res2 = p
			break
		}
	}
	return res1, res2, true
}

// firstGapEntry scans candles at and after the reference low for the
// first 3-candle imbalance where the low two candles ahead clears the
// current high, and returns the midpoint of that gap boundary.
func firstGapEntry(post []model.Candle) (float64, bool) {
	for i := 0; i+2 < len(post); i++ {
		if post[i+2].Low > post[i].High {
			return (post[i+2].Low + post[i].High) / 2, true
		}
	}
	return 0, false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
