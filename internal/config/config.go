package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"PatternScout/internal/analyzer"
)

// Config holds all application configuration.
type Config struct {
	Tenant string `yaml:"tenant"`
	Broker struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
	} `yaml:"broker"`
	Symbols     []string `yaml:"symbols"`
	Resolution  string   `yaml:"resolution"`
	HistoryDays int      `yaml:"history_days"`
	Schedule    struct {
		DiscoveryCron string `yaml:"discovery_cron"`
		RefreshCron   string `yaml:"refresh_cron"`
	} `yaml:"schedule"`
	Analyzer analyzer.Config `yaml:"analyzer"`
	Trading  struct {
		Mode           string  `yaml:"mode"` // "virtual" or "live"
		EntryTolerance float64 `yaml:"entry_tolerance"`
	} `yaml:"trading"`
	Capital struct {
		Total     float64 `yaml:"total"`
		StateFile string  `yaml:"state_file"`
	} `yaml:"capital"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	cfg.Analyzer = analyzer.DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("BROKER_BASE_URL"); v != "" {
		cfg.Broker.BaseURL = v
	}
	if v := os.Getenv("BROKER_API_KEY"); v != "" {
		cfg.Broker.APIKey = v
	}
	if v := os.Getenv("SCAN_SYMBOLS"); v != "" {
		cfg.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("TOTAL_CAPITAL"); v != "" {
		var total float64
		if _, err := fmt.Sscanf(v, "%f", &total); err == nil {
			cfg.Capital.Total = total
		}
	}

	// Defaults
	if cfg.Tenant == "" {
		cfg.Tenant = "default"
	}
	if cfg.Resolution == "" {
		cfg.Resolution = "5"
	}
	if cfg.HistoryDays == 0 {
		cfg.HistoryDays = 5
	}
	if cfg.Schedule.DiscoveryCron == "" {
		cfg.Schedule.DiscoveryCron = "0 */5 * * * *"
	}
	if cfg.Schedule.RefreshCron == "" {
		cfg.Schedule.RefreshCron = "*/10 * * * * *"
	}
	if cfg.Trading.Mode == "" {
		cfg.Trading.Mode = "virtual"
	}
	if cfg.Trading.EntryTolerance == 0 {
		cfg.Trading.EntryTolerance = 0.01
	}
	if cfg.Capital.Total == 0 {
		cfg.Capital.Total = 100000
	}
	if cfg.Capital.StateFile == "" {
		cfg.Capital.StateFile = "data/capital_state.json"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/patternscout.db"
	}

	return cfg, nil
}

// Validate checks that the config can safely start the engine. A
// non-nil error must abort startup before any pass is scheduled.
func (c *Config) Validate() error {
	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols is required")
	}
	if c.Capital.Total <= 0 {
		return fmt.Errorf("capital.total must be positive")
	}
	if c.Trading.Mode != "virtual" && c.Trading.Mode != "live" {
		return fmt.Errorf("trading.mode must be virtual or live, got %q", c.Trading.Mode)
	}
	if c.Trading.EntryTolerance < 0 || c.Trading.EntryTolerance >= 1 {
		return fmt.Errorf("trading.entry_tolerance must be in [0,1)")
	}
	if c.HistoryDays <= 0 {
		return fmt.Errorf("history_days must be positive")
	}
	if err := c.Analyzer.Validate(); err != nil {
		return err
	}
	return nil
}
