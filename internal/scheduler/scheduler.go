package scheduler

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"PatternScout/internal/analyzer"
	"PatternScout/internal/capital"
	"PatternScout/internal/collector"
	"PatternScout/internal/lifecycle"
	"PatternScout/internal/model"
	"PatternScout/internal/notifier"
	"PatternScout/internal/store"
)

const (
	backoffBase = 5 * time.Second
	backoffMax  = 5 * time.Minute
	stopTimeout = 30 * time.Second
)

// Engine owns the periodic scanning for one tenant session: a coarse
// discovery pass that re-analyzes every tracked symbol and a fine
// price-refresh pass that drives lifecycle transitions. It is
// constructed once per session and referenced, never re-created.
type Engine struct {
	Tenant      string
	Symbols     []string
	Resolution  string
	HistoryDays int

	cron      *cron.Cron
	fetcher   collector.Fetcher
	analyzer  *analyzer.Analyzer
	store     store.Store
	capital   *capital.Manager
	lifecycle *lifecycle.Manager
	notifier  *notifier.TelegramNotifier

	ctx     context.Context
	cancel  context.CancelFunc
	running atomic.Bool

	mu       sync.Mutex
	failures map[string]*backoffState
}

// backoffState tracks repeated transient failures for one symbol.
type backoffState struct {
	count int
	next  time.Time
}

// NewEngine creates an Engine. The parent context bounds all engine
// activity; cancelling it (or calling Stop) ends background work.
func NewEngine(parent context.Context, tenant string, symbols []string, resolution string, historyDays int,
	fetcher collector.Fetcher, an *analyzer.Analyzer, st store.Store, cap *capital.Manager,
	lm *lifecycle.Manager, tn *notifier.TelegramNotifier) *Engine {
	ctx, cancel := context.WithCancel(parent)
	return &Engine{
		Tenant:      tenant,
		Symbols:     symbols,
		Resolution:  resolution,
		HistoryDays: historyDays,
		// SkipIfStillRunning gives each pass type its at-most-one
		// in-flight guarantee: an overrunning pass finishes and the
		// next tick is skipped.
		cron:      cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		fetcher:   fetcher,
		analyzer:  an,
		store:     st,
		capital:   cap,
		lifecycle: lm,
		notifier:  tn,
		ctx:       ctx,
		cancel:    cancel,
		failures:  make(map[string]*backoffState),
	}
}

// Register adds the discovery and price-refresh jobs.
func (e *Engine) Register(discoveryCron, refreshCron string) error {
	if _, err := e.cron.AddFunc(discoveryCron, e.discoveryPass); err != nil {
		return fmt.Errorf("register discovery pass: %w", err)
	}
	if _, err := e.cron.AddFunc(refreshCron, e.refreshPass); err != nil {
		return fmt.Errorf("register refresh pass: %w", err)
	}
	return nil
}

// Start seeds unseen symbols as UNSCANNED and begins scheduling ticks.
func (e *Engine) Start() {
	for _, symbol := range e.Symbols {
		sig, err := e.store.GetSignal(e.Tenant, symbol)
		if err != nil || sig != nil {
			continue
		}
		seed := &model.PatternSignal{Symbol: symbol, State: model.StateUnscanned}
		if err := e.store.UpsertSignal(e.Tenant, seed); err != nil {
			log.Printf("[ERROR] seed %s: %v", symbol, err)
		}
	}
	e.running.Store(true)
	e.cron.Start()
	log.Printf("[INFO] engine started for tenant %s (%d symbols)", e.Tenant, len(e.Symbols))
}

// Stop halts new ticks, lets in-flight passes drain within a bounded
// timeout, then cancels their context so nothing writes after teardown.
func (e *Engine) Stop() {
	e.running.Store(false)
	drained := e.cron.Stop()
	select {
	case <-drained.Done():
	case <-time.After(stopTimeout):
		log.Printf("[WARN] engine %s: in-flight pass did not drain within %v, aborting", e.Tenant, stopTimeout)
	}
	e.cancel()
	log.Printf("[INFO] engine stopped for tenant %s", e.Tenant)
}

// IsRunning reports whether the engine is accepting ticks.
func (e *Engine) IsRunning() bool {
	return e.running.Load()
}

// RunDiscoveryNow executes a discovery pass immediately (manual
// trigger / RUN_ON_START).
func (e *Engine) RunDiscoveryNow() {
	e.discoveryPass()
}

// discoveryPass fetches history and re-analyzes every configured
// symbol. One symbol's failure never aborts the pass; a fetch error or
// a nil signal leaves the symbol's prior state untouched.
func (e *Engine) discoveryPass() {
	log.Printf("[INFO] discovery pass: %d symbols", len(e.Symbols))
	to := time.Now()
	from := to.AddDate(0, 0, -e.HistoryDays)

	for _, symbol := range e.Symbols {
		if e.ctx.Err() != nil {
			return
		}
		if e.inBackoff(symbol) {
			continue
		}

		candles, err := e.fetcher.FetchHistory(e.ctx, symbol, e.Resolution, from, to)
		if err != nil {
			log.Printf("[WARN] discovery %s: fetch history: %v", symbol, err)
			e.recordFailure(symbol)
			continue
		}
		e.recordSuccess(symbol)
		e.evaluateSymbol(symbol, candles)
	}
}

// evaluateSymbol re-analyzes one symbol under its lifecycle lock, so
// the read-check-write below cannot interleave with a concurrent
// refresh pass entering or exiting the same symbol.
func (e *Engine) evaluateSymbol(symbol string, candles []model.Candle) {
	unlock := e.lifecycle.LockSymbol(symbol)
	defer unlock()

	// Never disturb a symbol with an open position. The active trade,
	// not the tracked state, is authoritative.
	trade, err := e.store.GetTrade(e.Tenant, symbol)
	if err != nil {
		log.Printf("[ERROR] discovery %s: read trade: %v", symbol, err)
		return
	}
	if trade != nil {
		return
	}

	prev, err := e.store.GetSignal(e.Tenant, symbol)
	if err != nil {
		log.Printf("[ERROR] discovery %s: read signal: %v", symbol, err)
		return
	}

	sig := e.analyzer.Analyze(symbol, candles)
	if sig == nil {
		// First successful scan moves the symbol to WATCHING; a
		// prior signal is retained untouched.
		if prev == nil || prev.State == model.StateUnscanned {
			e.trackWatching(symbol, candles)
		}
		return
	}
	if err := e.store.UpsertSignal(e.Tenant, sig); err != nil {
		log.Printf("[ERROR] discovery %s: persist signal: %v", symbol, err)
		return
	}
	if prev == nil || prev.State != model.StateFound {
		e.trySend(notifier.FormatSignal(sig))
	}
}

// trackWatching seeds a bare WATCHING row so the refresh pass starts
// quoting the symbol.
func (e *Engine) trackWatching(symbol string, candles []model.Candle) {
	sig := &model.PatternSignal{Symbol: symbol, State: model.StateWatching}
	if len(candles) > 0 {
		sig.LastPrice = candles[len(candles)-1].Close
	}
	if err := e.store.UpsertSignal(e.Tenant, sig); err != nil {
		log.Printf("[ERROR] discovery %s: track watching: %v", symbol, err)
	}
}

// refreshPass fetches the latest price for every tracked symbol and
// evaluates lifecycle transitions.
func (e *Engine) refreshPass() {
	signals, err := e.store.ListSignals(e.Tenant)
	if err != nil {
		log.Printf("[ERROR] refresh pass: list signals: %v", err)
		return
	}

	for _, sig := range signals {
		if e.ctx.Err() != nil {
			return
		}
		if e.inBackoff(sig.Symbol) {
			continue
		}

		price, err := e.fetcher.FetchQuote(e.ctx, sig.Symbol)
		if err != nil {
			log.Printf("[WARN] refresh %s: fetch quote: %v", sig.Symbol, err)
			e.recordFailure(sig.Symbol)
			continue
		}
		e.recordSuccess(sig.Symbol)

		if err := e.store.UpdateLastPrice(e.Tenant, sig.Symbol, price); err != nil {
			log.Printf("[ERROR] refresh %s: update price: %v", sig.Symbol, err)
		}

		event, err := e.lifecycle.OnPrice(e.ctx, sig.Symbol, price)
		if err != nil {
			log.Printf("[WARN] refresh %s: lifecycle: %v", sig.Symbol, err)
			continue
		}
		if event == nil {
			continue
		}
		switch event.Type {
		case lifecycle.EventEntered:
			e.trySend(notifier.FormatEntry(event.Trade))
		case lifecycle.EventClosed:
			e.trySend(notifier.FormatExit(event.Record))
		}
	}
}

// inBackoff reports whether a symbol is cooling down after repeated
// transient errors.
func (e *Engine) inBackoff(symbol string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.failures[symbol]
	return ok && time.Now().Before(st.next)
}

// recordFailure pushes the symbol's next attempt out exponentially,
// with jitter so many failing symbols don't retry in lockstep.
func (e *Engine) recordFailure(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.failures[symbol]
	if !ok {
		st = &backoffState{}
		e.failures[symbol] = st
	}
	shift := st.count
	if shift > 6 {
		shift = 6
	}
	delay := backoffBase << uint(shift)
	if delay > backoffMax {
		delay = backoffMax
	}
	delay += time.Duration(rand.Int63n(int64(delay / 2)))
	st.count++
	st.next = time.Now().Add(delay)
}

func (e *Engine) recordSuccess(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.failures, symbol)
}

// HandleCommand processes a user command and returns a reply.
func (e *Engine) HandleCommand(command string) string {
	switch command {
	case "/scan":
		go e.RunDiscoveryNow()
		return "Discovery pass started."
	case "/patterns":
		signals, err := e.store.ListSignals(e.Tenant)
		if err != nil {
			return fmt.Sprintf("read signals: %v", err)
		}
		return notifier.FormatSignalList(signals)
	case "/trades":
		trades, err := e.store.ListTrades(e.Tenant)
		if err != nil {
			return fmt.Sprintf("read trades: %v", err)
		}
		return notifier.FormatTradeList(trades)
	case "/history":
		records, err := e.store.ListHistory(e.Tenant, 20)
		if err != nil {
			return fmt.Sprintf("read history: %v", err)
		}
		return notifier.FormatHistory(records)
	case "/capital":
		state := e.capital.GetState()
		return notifier.FormatCapital(&state)
	default:
		return "Commands:\n/scan\n/patterns\n/trades\n/history\n/capital"
	}
}

func (e *Engine) trySend(text string) {
	if err := e.notifier.SendWithRetry(e.ctx, text, 3); err != nil {
		log.Printf("[ERROR] send notification: %v", err)
	}
}
