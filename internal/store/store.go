package store

import (
	"errors"

	"PatternScout/internal/model"
)

// ErrTradeExists is returned by CreateTrade when the symbol already has
// an open trade. Callers treat it as a no-op, not a failure.
var ErrTradeExists = errors.New("active trade already exists")

// Store persists tracked signals, active trades, and trade history.
// Every key includes the tenant, so one physical store can serve many
// sessions. Implementations serialize writes; readers never observe a
// partially written record.
type Store interface {
	// UpsertSignal replaces the stored signal for (tenant, symbol),
	// latest-wins.
	UpsertSignal(tenant string, sig *model.PatternSignal) error
	// UpdateLastPrice refreshes only the last-seen price of a tracked
	// symbol. Unknown symbols are ignored.
	UpdateLastPrice(tenant, symbol string, price float64) error
	// SetState updates only the lifecycle state of a tracked symbol.
	SetState(tenant, symbol string, state model.LifecycleState) error
	// GetSignal returns the stored signal, or nil when the symbol is
	// not tracked.
	GetSignal(tenant, symbol string) (*model.PatternSignal, error)
	// ListSignals returns all tracked symbols for a tenant, ordered by
	// symbol.
	ListSignals(tenant string) ([]model.PatternSignal, error)

	// CreateTrade opens a position. Returns ErrTradeExists if the
	// symbol already has one.
	CreateTrade(tenant string, trade *model.ActiveTrade) error
	// GetTrade returns the open trade for a symbol, or nil.
	GetTrade(tenant, symbol string) (*model.ActiveTrade, error)
	// ListTrades returns all open trades for a tenant, ordered by
	// symbol.
	ListTrades(tenant string) ([]model.ActiveTrade, error)
	// CloseTrade atomically appends one history record, deletes the
	// open trade, and returns the symbol's lifecycle state to
	// WATCHING. Fails if no open trade exists.
	CloseTrade(tenant, symbol string, rec *model.HistoryRecord) error
	// ListHistory returns up to limit history records, newest first.
	ListHistory(tenant string, limit int) ([]model.HistoryRecord, error)

	Close() error
}
