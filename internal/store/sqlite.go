package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"PatternScout/internal/model"
)

// SQLiteStore persists engine state to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboard reads don't block engine writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tracked_symbols (
			tenant             TEXT NOT NULL,
			symbol             TEXT NOT NULL,
			reference_low      REAL,
			resistance_1       REAL,
			resistance_2       REAL,
			entry_price        REAL,
			stop_price         REAL,
			reward_ratio       REAL,
			reference_low_time INTEGER,
			last_price         REAL,
			state              TEXT NOT NULL,
			PRIMARY KEY (tenant, symbol)
		)`,

		`CREATE TABLE IF NOT EXISTS active_trades (
			tenant       TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			entry_price  REAL NOT NULL,
			stop_price   REAL NOT NULL,
			target_price REAL NOT NULL,
			quantity     INTEGER NOT NULL,
			mode         TEXT NOT NULL,
			opened_at    INTEGER NOT NULL,
			PRIMARY KEY (tenant, symbol)
		)`,

		`CREATE TABLE IF NOT EXISTS trade_history (
			id          TEXT PRIMARY KEY,
			tenant      TEXT NOT NULL,
			symbol      TEXT NOT NULL,
			entry_price REAL NOT NULL,
			exit_price  REAL NOT NULL,
			outcome     TEXT NOT NULL,
			quantity    INTEGER NOT NULL,
			pnl         REAL NOT NULL,
			closed_at   INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_tenant_ts ON trade_history(tenant, closed_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertSignal(tenant string, sig *model.PatternSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO tracked_symbols
		(tenant, symbol, reference_low, resistance_1, resistance_2,
		 entry_price, stop_price, reward_ratio, reference_low_time, last_price, state)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(tenant, symbol) DO UPDATE SET
		 reference_low=excluded.reference_low,
		 resistance_1=excluded.resistance_1,
		 resistance_2=excluded.resistance_2,
		 entry_price=excluded.entry_price,
		 stop_price=excluded.stop_price,
		 reward_ratio=excluded.reward_ratio,
		 reference_low_time=excluded.reference_low_time,
		 last_price=excluded.last_price,
		 state=excluded.state`,
		tenant, sig.Symbol, sig.ReferenceLow, sig.Resistance1, sig.Resistance2,
		sig.EntryPrice, sig.StopPrice, sig.RewardRatio,
		sig.ReferenceLowTime.Unix(), sig.LastPrice, string(sig.State),
	)
	return err
}

func (s *SQLiteStore) UpdateLastPrice(tenant, symbol string, price float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE tracked_symbols SET last_price=? WHERE tenant=? AND symbol=?`,
		price, tenant, symbol)
	return err
}

func (s *SQLiteStore) SetState(tenant, symbol string, state model.LifecycleState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE tracked_symbols SET state=? WHERE tenant=? AND symbol=?`,
		string(state), tenant, symbol)
	return err
}

func (s *SQLiteStore) GetSignal(tenant, symbol string) (*model.PatternSignal, error) {
	row := s.db.QueryRow(`SELECT symbol, reference_low, resistance_1, resistance_2,
		entry_price, stop_price, reward_ratio, reference_low_time, last_price, state
		FROM tracked_symbols WHERE tenant=? AND symbol=?`, tenant, symbol)
	sig, err := scanSignal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return sig, err
}

func (s *SQLiteStore) ListSignals(tenant string) ([]model.PatternSignal, error) {
	rows, err := s.db.Query(`SELECT symbol, reference_low, resistance_1, resistance_2,
		entry_price, stop_price, reward_ratio, reference_low_time, last_price, state
		FROM tracked_symbols WHERE tenant=? ORDER BY symbol`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var signals []model.PatternSignal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, *sig)
	}
	return signals, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSignal(row rowScanner) (*model.PatternSignal, error) {
	var sig model.PatternSignal
	var lowTime int64
	var state string
	if err := row.Scan(&sig.Symbol, &sig.ReferenceLow, &sig.Resistance1, &sig.Resistance2,
		&sig.EntryPrice, &sig.StopPrice, &sig.RewardRatio, &lowTime, &sig.LastPrice, &state); err != nil {
		return nil, err
	}
	sig.ReferenceLowTime = time.Unix(lowTime, 0)
	sig.State = model.LifecycleState(state)
	return &sig, nil
}

func (s *SQLiteStore) CreateTrade(tenant string, trade *model.ActiveTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`INSERT OR IGNORE INTO active_trades
		(tenant, symbol, entry_price, stop_price, target_price, quantity, mode, opened_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		tenant, trade.Symbol, trade.EntryPrice, trade.StopPrice, trade.TargetPrice,
		trade.Quantity, string(trade.Mode), trade.OpenedAt.Unix(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTradeExists
	}
	return nil
}

func (s *SQLiteStore) GetTrade(tenant, symbol string) (*model.ActiveTrade, error) {
	row := s.db.QueryRow(`SELECT symbol, entry_price, stop_price, target_price, quantity, mode, opened_at
		FROM active_trades WHERE tenant=? AND symbol=?`, tenant, symbol)
	trade, err := scanTrade(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return trade, err
}

func (s *SQLiteStore) ListTrades(tenant string) ([]model.ActiveTrade, error) {
	rows, err := s.db.Query(`SELECT symbol, entry_price, stop_price, target_price, quantity, mode, opened_at
		FROM active_trades WHERE tenant=? ORDER BY symbol`, tenant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []model.ActiveTrade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *trade)
	}
	return trades, rows.Err()
}

func scanTrade(row rowScanner) (*model.ActiveTrade, error) {
	var trade model.ActiveTrade
	var mode string
	var openedAt int64
	if err := row.Scan(&trade.Symbol, &trade.EntryPrice, &trade.StopPrice, &trade.TargetPrice,
		&trade.Quantity, &mode, &openedAt); err != nil {
		return nil, err
	}
	trade.Mode = model.TradeMode(mode)
	trade.OpenedAt = time.Unix(openedAt, 0)
	return &trade, nil
}

func (s *SQLiteStore) CloseTrade(tenant, symbol string, rec *model.HistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM active_trades WHERE tenant=? AND symbol=?`, tenant, symbol)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("close trade %s/%s: no active trade", tenant, symbol)
	}

	if _, err := tx.Exec(`INSERT INTO trade_history
		(id, tenant, symbol, entry_price, exit_price, outcome, quantity, pnl, closed_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rec.ID, tenant, rec.Symbol, rec.EntryPrice, rec.ExitPrice,
		string(rec.Outcome), rec.Quantity, rec.PnL, rec.ClosedAt.Unix(),
	); err != nil {
		return err
	}

	if _, err := tx.Exec(`UPDATE tracked_symbols SET state=? WHERE tenant=? AND symbol=?`,
		string(model.StateWatching), tenant, symbol); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) ListHistory(tenant string, limit int) ([]model.HistoryRecord, error) {
	rows, err := s.db.Query(`SELECT id, symbol, entry_price, exit_price, outcome, quantity, pnl, closed_at
		FROM trade_history WHERE tenant=? ORDER BY closed_at DESC, id LIMIT ?`, tenant, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []model.HistoryRecord
	for rows.Next() {
		var rec model.HistoryRecord
		var outcome string
		var closedAt int64
		if err := rows.Scan(&rec.ID, &rec.Symbol, &rec.EntryPrice, &rec.ExitPrice,
			&outcome, &rec.Quantity, &rec.PnL, &closedAt); err != nil {
			return nil, err
		}
		rec.Outcome = model.Outcome(outcome)
		rec.ClosedAt = time.Unix(closedAt, 0)
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
