package lifecycle

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"PatternScout/internal/capital"
	"PatternScout/internal/collector"
	"PatternScout/internal/model"
	"PatternScout/internal/store"
)

const tenant = "default"

func newManager(t *testing.T, total float64, lotSize int) (*Manager, *store.MemoryStore, *capital.Manager) {
	t.Helper()
	st := store.NewMemoryStore()
	cm, err := capital.NewManager(filepath.Join(t.TempDir(), "capital.json"), total)
	if err != nil {
		t.Fatalf("capital manager: %v", err)
	}
	fetcher := &collector.MockFetcher{
		Instruments: map[string]model.Instrument{
			"SYM": {Symbol: "SYM", LotSize: lotSize},
		},
	}
	return NewManager(tenant, st, cm, fetcher, model.ModeVirtual, 0.01), st, cm
}

func foundSignal(r1, r2, entry, stop float64) *model.PatternSignal {
	return &model.PatternSignal{
		Symbol:           "SYM",
		ReferenceLow:     100,
		Resistance1:      r1,
		Resistance2:      r2,
		EntryPrice:       entry,
		StopPrice:        stop,
		RewardRatio:      13.6,
		ReferenceLowTime: time.Now(),
		State:            model.StateFound,
	}
}

func TestOnPrice_EntersInZone(t *testing.T) {
	m, st, cm := newManager(t, 2000, 10)
	if err := st.UpsertSignal(tenant, foundSignal(102, 200, 105, 98)); err != nil {
		t.Fatal(err)
	}

	event, err := m.OnPrice(context.Background(), "SYM", 105)
	if err != nil {
		t.Fatalf("on price: %v", err)
	}
	if event == nil || event.Type != EventEntered {
		t.Fatalf("expected entry event, got %+v", event)
	}

	trade, err := st.GetTrade(tenant, "SYM")
	if err != nil || trade == nil {
		t.Fatalf("expected active trade, got %+v err=%v", trade, err)
	}
	if trade.EntryPrice != 105 || trade.StopPrice != 98 || trade.TargetPrice != 200 {
		t.Errorf("trade levels = %+v", trade)
	}
	// 2000 capital, one lot of 10 costs 1050: exactly one lot fits.
	if trade.Quantity != 10 {
		t.Errorf("quantity = %d, want 10", trade.Quantity)
	}
	if trade.Mode != model.ModeVirtual {
		t.Errorf("mode = %s", trade.Mode)
	}

	sig, _ := st.GetSignal(tenant, "SYM")
	if sig.State != model.StateEntered {
		t.Errorf("state = %s, want ENTERED", sig.State)
	}
	if got := cm.GetState().Available; got != 2000-1050 {
		t.Errorf("available capital = %v, want 950", got)
	}
}

func TestOnPrice_EntryConditionsAllRequired(t *testing.T) {
	cases := []struct {
		name  string
		price float64
	}{
		{"below first resistance", 101},
		{"above entry tolerance", 107},
		{"below stop", 97}, // signal crafted so r1 sits below the stop
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m, st, _ := newManager(t, 2000, 10)
			sig := foundSignal(102, 200, 105, 98)
			if tc.name == "below stop" {
				sig.Resistance1 = 96
			}
			if err := st.UpsertSignal(tenant, sig); err != nil {
				t.Fatal(err)
			}
			event, err := m.OnPrice(context.Background(), "SYM", tc.price)
			if err != nil {
				t.Fatalf("on price: %v", err)
			}
			if event != nil {
				t.Errorf("expected no entry at %.2f, got %+v", tc.price, event)
			}
			if trade, _ := st.GetTrade(tenant, "SYM"); trade != nil {
				t.Errorf("unexpected trade: %+v", trade)
			}
		})
	}
}

func TestOnPrice_NoEntryWhileWatching(t *testing.T) {
	m, st, _ := newManager(t, 2000, 10)
	sig := foundSignal(102, 200, 105, 98)
	sig.State = model.StateWatching
	st.UpsertSignal(tenant, sig)

	event, err := m.OnPrice(context.Background(), "SYM", 105)
	if err != nil || event != nil {
		t.Fatalf("expected no-op for WATCHING, got %+v err=%v", event, err)
	}
}

func TestOnPrice_SkipsZeroQuantity(t *testing.T) {
	m, st, _ := newManager(t, 100, 10) // one lot costs 1050
	st.UpsertSignal(tenant, foundSignal(102, 200, 105, 98))

	event, err := m.OnPrice(context.Background(), "SYM", 105)
	if err != nil {
		t.Fatalf("on price: %v", err)
	}
	if event != nil {
		t.Errorf("expected entry skipped, got %+v", event)
	}
	if trade, _ := st.GetTrade(tenant, "SYM"); trade != nil {
		t.Errorf("unexpected trade: %+v", trade)
	}
}

func TestOnPrice_ReentryIsNoop(t *testing.T) {
	m, st, _ := newManager(t, 2000, 10)
	st.UpsertSignal(tenant, foundSignal(102, 200, 105, 98))

	if _, err := m.OnPrice(context.Background(), "SYM", 105); err != nil {
		t.Fatal(err)
	}
	// Second refresh in the zone: trade already open, price between
	// boundaries, nothing happens.
	event, err := m.OnPrice(context.Background(), "SYM", 105)
	if err != nil {
		t.Fatalf("on price: %v", err)
	}
	if event != nil {
		t.Errorf("expected no-op, got %+v", event)
	}
	trades, _ := st.ListTrades(tenant)
	if len(trades) != 1 {
		t.Errorf("trades = %d, want 1", len(trades))
	}
}

// failingStateStore rejects state updates to exercise the partial
// write after a trade is created.
type failingStateStore struct {
	store.Store
}

func (f *failingStateStore) SetState(tenant, symbol string, state model.LifecycleState) error {
	return errors.New("disk full")
}

func TestOnPrice_EntryKeptWhenStateWriteFails(t *testing.T) {
	m, st, cm := newManager(t, 2000, 10)
	m.store = &failingStateStore{Store: st}
	if err := st.UpsertSignal(tenant, foundSignal(102, 200, 105, 98)); err != nil {
		t.Fatal(err)
	}

	event, err := m.OnPrice(context.Background(), "SYM", 105)
	if err != nil {
		t.Fatalf("on price: %v", err)
	}
	if event == nil || event.Type != EventEntered {
		t.Fatalf("expected entry event despite state write failure, got %+v", event)
	}
	trade, _ := st.GetTrade(tenant, "SYM")
	if trade == nil || trade.Quantity != 10 {
		t.Fatalf("trade = %+v, want quantity 10", trade)
	}
	if got := cm.GetState().Available; got != 950 {
		t.Errorf("available capital = %v, want 950", got)
	}

	// The tracked row is stale FOUND, but the open trade routes the
	// next refresh through the exit path: no second entry.
	event, err = m.OnPrice(context.Background(), "SYM", 105)
	if err != nil || event != nil {
		t.Fatalf("expected no-op on stale FOUND row, got %+v err=%v", event, err)
	}
	trades, _ := st.ListTrades(tenant)
	if len(trades) != 1 {
		t.Errorf("trades = %d, want 1", len(trades))
	}
}

func seedTrade(t *testing.T, st *store.MemoryStore, entry, stop, target float64, qty int) {
	t.Helper()
	err := st.CreateTrade(tenant, &model.ActiveTrade{
		Symbol: "SYM", EntryPrice: entry, StopPrice: stop, TargetPrice: target,
		Quantity: qty, Mode: model.ModeVirtual, OpenedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	sig := foundSignal(102, target, entry, stop)
	sig.State = model.StateEntered
	if err := st.UpsertSignal(tenant, sig); err != nil {
		t.Fatal(err)
	}
}

func TestOnPrice_ClosesAtTarget(t *testing.T) {
	m, st, _ := newManager(t, 2000, 10)
	seedTrade(t, st, 100, 90, 150, 10)

	event, err := m.OnPrice(context.Background(), "SYM", 151)
	if err != nil {
		t.Fatalf("on price: %v", err)
	}
	if event == nil || event.Type != EventClosed {
		t.Fatalf("expected close event, got %+v", event)
	}
	rec := event.Record
	if rec.Outcome != model.OutcomeTarget {
		t.Errorf("outcome = %s, want TARGET", rec.Outcome)
	}
	if rec.ExitPrice != 150 {
		t.Errorf("exit = %v, want target price 150", rec.ExitPrice)
	}
	if rec.PnL != 500 { // (150-100) * 10
		t.Errorf("pnl = %v, want 500", rec.PnL)
	}

	if trade, _ := st.GetTrade(tenant, "SYM"); trade != nil {
		t.Errorf("trade not removed: %+v", trade)
	}
	records, _ := st.ListHistory(tenant, 10)
	if len(records) != 1 {
		t.Fatalf("history rows = %d, want 1", len(records))
	}
	if records[0].ID == "" {
		t.Error("history record has no id")
	}
	sig, _ := st.GetSignal(tenant, "SYM")
	if sig.State != model.StateWatching {
		t.Errorf("state = %s, want WATCHING after close", sig.State)
	}
}

func TestOnPrice_ClosesAtStop(t *testing.T) {
	m, st, _ := newManager(t, 2000, 10)
	seedTrade(t, st, 100, 90, 150, 10)

	event, err := m.OnPrice(context.Background(), "SYM", 89)
	if err != nil {
		t.Fatalf("on price: %v", err)
	}
	if event == nil || event.Type != EventClosed {
		t.Fatalf("expected close event, got %+v", event)
	}
	if event.Record.Outcome != model.OutcomeStop {
		t.Errorf("outcome = %s, want STOP", event.Record.Outcome)
	}
	if event.Record.PnL != -100 { // (90-100) * 10
		t.Errorf("pnl = %v, want -100", event.Record.PnL)
	}
}

func TestOnPrice_StopWinsWhenBothBoundariesHit(t *testing.T) {
	m, st, _ := newManager(t, 2000, 10)
	// Degenerate levels where one tick satisfies both boundaries, the
	// shape a gapped move produces. Capital preservation wins.
	seedTrade(t, st, 100, 95, 94, 10)

	event, err := m.OnPrice(context.Background(), "SYM", 94.5)
	if err != nil {
		t.Fatalf("on price: %v", err)
	}
	if event == nil || event.Record.Outcome != model.OutcomeStop {
		t.Fatalf("expected STOP close, got %+v", event)
	}
	if event.Record.ExitPrice != 95 {
		t.Errorf("exit = %v, want stop price 95", event.Record.ExitPrice)
	}
}

func TestOnPrice_HoldsBetweenBoundaries(t *testing.T) {
	m, st, _ := newManager(t, 2000, 10)
	seedTrade(t, st, 100, 90, 150, 10)

	for _, price := range []float64{90.5, 100, 120, 149.9} {
		event, err := m.OnPrice(context.Background(), "SYM", price)
		if err != nil {
			t.Fatalf("on price %v: %v", price, err)
		}
		if event != nil {
			t.Errorf("price %v: unexpected event %+v", price, event)
		}
	}
	if trade, _ := st.GetTrade(tenant, "SYM"); trade == nil {
		t.Error("trade should still be open")
	}
}

func TestOnPrice_CapitalReleasedOnClose(t *testing.T) {
	m, st, cm := newManager(t, 2000, 10)
	st.UpsertSignal(tenant, foundSignal(102, 200, 105, 98))

	if _, err := m.OnPrice(context.Background(), "SYM", 105); err != nil {
		t.Fatal(err)
	}
	if got := cm.GetState().Available; got != 950 {
		t.Fatalf("available after entry = %v, want 950", got)
	}
	if _, err := m.OnPrice(context.Background(), "SYM", 201); err != nil {
		t.Fatal(err)
	}
	// Target 200 x 10 released back.
	if got := cm.GetState().Available; got != 950+2000 {
		t.Errorf("available after close = %v, want 2950", got)
	}
}
