package config

import (
	"fmt"
	"os"
	"strconv"

	"WhaleSentinel/internal/model"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource struct {
		BaseURL        string  `yaml:"base_url"`
		WebsocketURL   string  `yaml:"websocket_url"`
		RequestsPerSec float64 `yaml:"requests_per_sec"`
	} `yaml:"data_source"`
	Schedule struct {
		ReconcileCron string `yaml:"reconcile_cron"`
		SweepCron     string `yaml:"sweep_cron"`
		DigestCron    string `yaml:"digest_cron"`
	} `yaml:"schedule"`
	Limits struct {
		ResetWindowHours float64 `yaml:"reset_window_hours"`
		MaxStoragePrice  float64 `yaml:"max_storage_price"`
		LedgerTolerance  float64 `yaml:"ledger_tolerance_shares"`
	} `yaml:"limits"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Accounts []model.Account `yaml:"accounts"`
	Proxy    string          `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	cfg := &Config{}

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
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("DATA_API_BASE_URL"); v != "" {
		cfg.DataSource.BaseURL = v
	}
	if v := os.Getenv("DATA_WS_URL"); v != "" {
		cfg.DataSource.WebsocketURL = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("CRON_RECONCILE"); v != "" {
		cfg.Schedule.ReconcileCron = v
	}
	if v := os.Getenv("RESET_WINDOW_HOURS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Limits.ResetWindowHours = f
		}
	}

	// Defaults
	if cfg.DataSource.BaseURL == "" {
		cfg.DataSource.BaseURL = "https://data-api.polymarket.com"
	}
	if cfg.DataSource.WebsocketURL == "" {
		cfg.DataSource.WebsocketURL = "wss://ws-subscriptions-clob.polymarket.com/ws"
	}
	if cfg.DataSource.RequestsPerSec == 0 {
		cfg.DataSource.RequestsPerSec = 5
	}
	if cfg.Schedule.ReconcileCron == "" {
		cfg.Schedule.ReconcileCron = "*/30 * * * * *"
	}
	if cfg.Schedule.SweepCron == "" {
		cfg.Schedule.SweepCron = "0 0 * * * *"
	}
	if cfg.Schedule.DigestCron == "" {
		cfg.Schedule.DigestCron = "0 0 22 * * *"
	}
	if cfg.Limits.ResetWindowHours == 0 {
		cfg.Limits.ResetWindowHours = 24
	}
	if cfg.Limits.MaxStoragePrice == 0 {
		cfg.Limits.MaxStoragePrice = 0.95
	}
	if cfg.Limits.LedgerTolerance == 0 {
		cfg.Limits.LedgerTolerance = 50
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/whale_sentinel.db"
	}
	for i := range cfg.Accounts {
		applyAccountDefaults(&cfg.Accounts[i])
	}

	return cfg, nil
}

func applyAccountDefaults(a *model.Account) {
	if a.Category == "" {
		a.Category = model.CategoryRegular
	}
	if a.Tier == "" {
		a.Tier = model.TierFree
	}
	if a.MinTradeUSD == 0 {
		a.MinTradeUSD = 500
	}
	if a.Copy.Enabled {
		if a.Copy.InvestmentUSD == 0 {
			a.Copy.InvestmentUSD = 100
		}
		if a.Copy.PartialClosePct == 0 {
			a.Copy.PartialClosePct = 100
		}
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Telegram.ChatID == "" {
		return fmt.Errorf("telegram.chat_id is required")
	}
	if len(c.Accounts) == 0 {
		return fmt.Errorf("at least one tracked account is required")
	}
	for i := range c.Accounts {
		if err := validateAccount(&c.Accounts[i]); err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
	}
	if c.Limits.MaxStoragePrice <= 0 || c.Limits.MaxStoragePrice > 1 {
		return fmt.Errorf("limits.max_storage_price must be in (0, 1]")
	}
	return nil
}

func validateAccount(a *model.Account) error {
	if a.Wallet == "" {
		return fmt.Errorf("wallet is required")
	}
	if a.Category != model.CategoryRegular && a.Category != model.CategoryWhale {
		return fmt.Errorf("invalid category %q", a.Category)
	}
	if a.Tier != model.TierFree && a.Tier != model.TierPaid {
		return fmt.Errorf("invalid tier %q", a.Tier)
	}
	if !model.ValidMinTradeUSD(a.MinTradeUSD) {
		return fmt.Errorf("min_trade_usd %.0f not in allowed set %v", a.MinTradeUSD, model.MinTradeUSDValues)
	}
	if a.FrequencyOverride < 0 {
		return fmt.Errorf("frequency_override must be >= 0")
	}
	if a.Copy.PartialClosePct < 0 || a.Copy.PartialClosePct > 100 {
		return fmt.Errorf("copy_trading.partial_close_pct must be in [0, 100]")
	}
	if a.Copy.Enabled && a.Copy.InvestmentUSD <= 0 {
		return fmt.Errorf("copy_trading.investment_usd must be positive when enabled")
	}
	return nil
}
