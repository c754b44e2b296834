package store

import (
	"fmt"
	"sort"
	"sync"

	"PatternScout/internal/model"
)

// MemoryStore is an in-memory Store used in tests and when no database
// path is configured. Semantics match SQLiteStore exactly.
type MemoryStore struct {
	mu      sync.Mutex
	signals map[string]model.PatternSignal
	trades  map[string]model.ActiveTrade
	history map[string][]model.HistoryRecord // keyed by tenant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		signals: make(map[string]model.PatternSignal),
		trades:  make(map[string]model.ActiveTrade),
		history: make(map[string][]model.HistoryRecord),
	}
}

func key(tenant, symbol string) string { return tenant + "\x00" + symbol }

func (s *MemoryStore) UpsertSignal(tenant string, sig *model.PatternSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signals[key(tenant, sig.Symbol)] = *sig
	return nil
}

func (s *MemoryStore) UpdateLastPrice(tenant, symbol string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig, ok := s.signals[key(tenant, symbol)]; ok {
		sig.LastPrice = price
		s.signals[key(tenant, symbol)] = sig
	}
	return nil
}

func (s *MemoryStore) SetState(tenant, symbol string, state model.LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig, ok := s.signals[key(tenant, symbol)]; ok {
		sig.State = state
		s.signals[key(tenant, symbol)] = sig
	}
	return nil
}

func (s *MemoryStore) GetSignal(tenant, symbol string) (*model.PatternSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sig, ok := s.signals[key(tenant, symbol)]; ok {
		out := sig
		return &out, nil
	}
	return nil, nil
}

func (s *MemoryStore) ListSignals(tenant string) ([]model.PatternSignal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.PatternSignal
	for k, sig := range s.signals {
		if k == key(tenant, sig.Symbol) {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *MemoryStore) CreateTrade(tenant string, trade *model.ActiveTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenant, trade.Symbol)
	if _, ok := s.trades[k]; ok {
		return ErrTradeExists
	}
	s.trades[k] = *trade
	return nil
}

func (s *MemoryStore) GetTrade(tenant, symbol string) (*model.ActiveTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if trade, ok := s.trades[key(tenant, symbol)]; ok {
		out := trade
		return &out, nil
	}
	return nil, nil
}

func (s *MemoryStore) ListTrades(tenant string) ([]model.ActiveTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ActiveTrade
	for k, trade := range s.trades {
		if k == key(tenant, trade.Symbol) {
			out = append(out, trade)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *MemoryStore) CloseTrade(tenant, symbol string, rec *model.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(tenant, symbol)
	if _, ok := s.trades[k]; !ok {
		return fmt.Errorf("close trade %s/%s: no active trade", tenant, symbol)
	}
	delete(s.trades, k)
	s.history[tenant] = append(s.history[tenant], *rec)
	if sig, ok := s.signals[k]; ok {
		sig.State = model.StateWatching
		s.signals[k] = sig
	}
	return nil
}

func (s *MemoryStore) ListHistory(tenant string, limit int) ([]model.HistoryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.history[tenant]
	out := make([]model.HistoryRecord, 0, len(records))
	// Newest first, matching the SQLite ordering.
	for i := len(records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, records[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
