package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"PatternScout/internal/capital"
	"PatternScout/internal/collector"
	"PatternScout/internal/model"
	"PatternScout/internal/store"
)

// EventType classifies a lifecycle transition.
type EventType string

const (
	EventEntered EventType = "ENTERED"
	EventClosed  EventType = "CLOSED"
)

// Event describes a state transition produced by a price refresh, so
// the caller can format notifications without the manager knowing
// about the delivery channel.
type Event struct {
	Type   EventType
	Trade  *model.ActiveTrade
	Record *model.HistoryRecord
}

// Manager drives the per-symbol trade state machine. Writes to a given
// symbol's state are serialized by a per-symbol lock; different
// symbols may be evaluated concurrently.
type Manager struct {
	tenant         string
	store          store.Store
	capital        *capital.Manager
	fetcher        collector.Fetcher
	mode           model.TradeMode
	entryTolerance float64

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager creates a Manager for one tenant.
func NewManager(tenant string, st store.Store, cap *capital.Manager, fetcher collector.Fetcher, mode model.TradeMode, entryTolerance float64) *Manager {
	return &Manager{
		tenant:         tenant,
		store:          st,
		capital:        cap,
		fetcher:        fetcher,
		mode:           mode,
		entryTolerance: entryTolerance,
		locks:          make(map[string]*sync.Mutex),
	}
}

func (m *Manager) symbolLock(symbol string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[symbol]
	if !ok {
		l = &sync.Mutex{}
		m.locks[symbol] = l
	}
	return l
}

// LockSymbol acquires the symbol's lifecycle lock and returns the
// release func. Other writers take it around their own
// read-check-write sequences so those cannot interleave with an entry
// or exit on the same symbol.
func (m *Manager) LockSymbol(symbol string) func() {
	l := m.symbolLock(symbol)
	l.Lock()
	return l.Unlock
}

// OnPrice evaluates every transition for one symbol against the latest
// price. It returns a non-nil Event when a trade was opened or closed.
// All three entry conditions are re-checked on every refresh; entering
// an already-entered symbol is a no-op.
func (m *Manager) OnPrice(ctx context.Context, symbol string, price float64) (*Event, error) {
	l := m.symbolLock(symbol)
	l.Lock()
	defer l.Unlock()

	trade, err := m.store.GetTrade(m.tenant, symbol)
	if err != nil {
		return nil, fmt.Errorf("get trade %s: %w", symbol, err)
	}
	if trade != nil {
		return m.maybeClose(symbol, trade, price)
	}
	return m.maybeEnter(ctx, symbol, price)
}

// maybeClose exits an open trade when price reaches either boundary.
// Stop is checked first: when a gapped move satisfies both boundaries
// on the same refresh, capital preservation wins.
func (m *Manager) maybeClose(symbol string, trade *model.ActiveTrade, price float64) (*Event, error) {
	var outcome model.Outcome
	var exit float64
	switch {
	case price <= trade.StopPrice:
		outcome = model.OutcomeStop
		exit = trade.StopPrice
	case price >= trade.TargetPrice:
		outcome = model.OutcomeTarget
		exit = trade.TargetPrice
	default:
		return nil, nil
	}

	rec := &model.HistoryRecord{
		ID:         uuid.NewString(),
		Symbol:     symbol,
		EntryPrice: trade.EntryPrice,
		ExitPrice:  exit,
		Outcome:    outcome,
		Quantity:   trade.Quantity,
		PnL:        (exit - trade.EntryPrice) * float64(trade.Quantity),
		ClosedAt:   time.Now(),
	}
	if err := m.store.CloseTrade(m.tenant, symbol, rec); err != nil {
		return nil, fmt.Errorf("close trade %s: %w", symbol, err)
	}
	m.capital.Release(exit * float64(trade.Quantity))

	log.Printf("[INFO] closed %s: %s exit=%.2f pnl=%.2f", symbol, outcome, exit, rec.PnL)
	return &Event{Type: EventClosed, Trade: trade, Record: rec}, nil
}

// maybeEnter opens a trade when the symbol is FOUND and price has
// broken above the first resistance, retraced into the entry zone, and
// still sits above the stop.
func (m *Manager) maybeEnter(ctx context.Context, symbol string, price float64) (*Event, error) {
	sig, err := m.store.GetSignal(m.tenant, symbol)
	if err != nil {
		return nil, fmt.Errorf("get signal %s: %w", symbol, err)
	}
	if sig == nil || sig.State != model.StateFound {
		return nil, nil
	}

	inZone := price >= sig.Resistance1 &&
		price <= sig.EntryPrice*(1+m.entryTolerance) &&
		price >= sig.StopPrice
	if !inZone {
		return nil, nil
	}

	inst, err := m.fetcher.FetchInstrument(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("instrument %s: %w", symbol, err)
	}
	qty := m.capital.Quantity(sig.EntryPrice, inst.LotSize)
	if qty == 0 {
		log.Printf("[WARN] skip entry %s: insufficient capital for one lot", symbol)
		return nil, nil
	}

	trade := &model.ActiveTrade{
		Symbol:      symbol,
		EntryPrice:  sig.EntryPrice,
		StopPrice:   sig.StopPrice,
		TargetPrice: sig.Resistance2,
		Quantity:    qty,
		Mode:        m.mode,
		OpenedAt:    time.Now(),
	}
	if err := m.store.CreateTrade(m.tenant, trade); err != nil {
		if errors.Is(err, store.ErrTradeExists) {
			return nil, nil
		}
		return nil, fmt.Errorf("create trade %s: %w", symbol, err)
	}
	m.capital.Reserve(sig.EntryPrice * float64(qty))
	if err := m.store.SetState(m.tenant, symbol, model.StateEntered); err != nil {
		// The open trade is authoritative: OnPrice routes through
		// maybeClose while it exists, so a stale FOUND row cannot
		// double-enter. Keep the trade and surface the mismatch.
		log.Printf("[ERROR] entered %s but state update failed: %v", symbol, err)
	}

	log.Printf("[INFO] entered %s: entry=%.2f stop=%.2f target=%.2f qty=%d",
		symbol, trade.EntryPrice, trade.StopPrice, trade.TargetPrice, qty)
	return &Event{Type: EventEntered, Trade: trade}, nil
}
