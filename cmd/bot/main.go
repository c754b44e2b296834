package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"PatternScout/internal/analyzer"
	"PatternScout/internal/capital"
	"PatternScout/internal/collector"
	"PatternScout/internal/config"
	"PatternScout/internal/lifecycle"
	"PatternScout/internal/model"
	"PatternScout/internal/notifier"
	"PatternScout/internal/scheduler"
	"PatternScout/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] PatternScout starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Init fetcher
	var fetcher collector.Fetcher
	if cfg.Broker.BaseURL != "" {
		fetcher = collector.NewBrokerFetcher(cfg.Broker.BaseURL, cfg.Broker.APIKey, cfg.Proxy)
	} else {
		fetcher = &collector.MockFetcher{Price: 100}
	}
	log.Printf("[INFO] candle source: %s", fetcher.Name())

	// Init analyzer
	an, err := analyzer.New(cfg.Analyzer)
	if err != nil {
		log.Fatalf("[FATAL] init analyzer: %v", err)
	}

	// Init store
	var st store.Store
	if cfg.Database.SQLitePath != "" {
		ss, err := store.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite store failed, using in-memory: %v", err)
			st = store.NewMemoryStore()
		} else {
			st = ss
		}
	} else {
		st = store.NewMemoryStore()
	}
	defer st.Close()

	// Init capital manager
	cm, err := capital.NewManager(cfg.Capital.StateFile, cfg.Capital.Total)
	if err != nil {
		log.Fatalf("[FATAL] init capital manager: %v", err)
	}

	// Init Telegram notifier
	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
	if !tn.Enabled() {
		log.Println("[INFO] telegram not configured, notifications disabled")
	}

	mode := model.ModeVirtual
	if cfg.Trading.Mode == "live" {
		mode = model.ModeLive
	}
	lm := lifecycle.NewManager(cfg.Tenant, st, cm, fetcher, mode, cfg.Trading.EntryTolerance)

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init engine
	engine := scheduler.NewEngine(ctx, cfg.Tenant, cfg.Symbols, cfg.Resolution, cfg.HistoryDays,
		fetcher, an, st, cm, lm, tn)
	if err := engine.Register(cfg.Schedule.DiscoveryCron, cfg.Schedule.RefreshCron); err != nil {
		log.Fatalf("[FATAL] register passes: %v", err)
	}
	engine.Start()
	defer engine.Stop()

	// Start Telegram polling
	go tn.StartPolling(ctx, engine.HandleCommand)

	// Optional: run discovery immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing discovery pass now")
		go engine.RunDiscoveryNow()
	}

	log.Println("[INFO] PatternScout is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	log.Println("[INFO] PatternScout stopped")
}
