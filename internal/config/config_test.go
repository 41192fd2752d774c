package config

import (
	"os"
	"path/filepath"
	"testing"

	"WhaleSentinel/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: "token"
  chat_id: "123"
accounts:
  - wallet: "0xabc"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.DataSource.BaseURL != "https://data-api.polymarket.com" {
		t.Errorf("BaseURL = %q", cfg.DataSource.BaseURL)
	}
	if cfg.Limits.ResetWindowHours != 24 {
		t.Errorf("ResetWindowHours = %v, want 24", cfg.Limits.ResetWindowHours)
	}
	if cfg.Limits.MaxStoragePrice != 0.95 {
		t.Errorf("MaxStoragePrice = %v, want 0.95", cfg.Limits.MaxStoragePrice)
	}
	if cfg.Limits.LedgerTolerance != 50 {
		t.Errorf("LedgerTolerance = %v, want 50", cfg.Limits.LedgerTolerance)
	}

	a := cfg.Accounts[0]
	if a.Category != model.CategoryRegular || a.Tier != model.TierFree {
		t.Errorf("account defaults: category=%s tier=%s", a.Category, a.Tier)
	}
	if a.MinTradeUSD != 500 {
		t.Errorf("MinTradeUSD = %v, want 500", a.MinTradeUSD)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
telegram:
  bot_token: "from-file"
  chat_id: "123"
accounts:
  - wallet: "0xabc"
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")
	t.Setenv("RESET_WINDOW_HOURS", "12")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.BotToken != "from-env" {
		t.Errorf("BotToken = %q, want env override", cfg.Telegram.BotToken)
	}
	if cfg.Limits.ResetWindowHours != 12 {
		t.Errorf("ResetWindowHours = %v, want 12", cfg.Limits.ResetWindowHours)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Telegram.BotToken = "token"
		cfg.Telegram.ChatID = "123"
		cfg.Limits.MaxStoragePrice = 0.95
		cfg.Accounts = []model.Account{{
			Wallet:      "0xabc",
			Category:    model.CategoryWhale,
			Tier:        model.TierPaid,
			MinTradeUSD: 1000,
		}}
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing token", func(c *Config) { c.Telegram.BotToken = "" }},
		{"missing chat id", func(c *Config) { c.Telegram.ChatID = "" }},
		{"no accounts", func(c *Config) { c.Accounts = nil }},
		{"missing wallet", func(c *Config) { c.Accounts[0].Wallet = "" }},
		{"bad category", func(c *Config) { c.Accounts[0].Category = "mega" }},
		{"bad tier", func(c *Config) { c.Accounts[0].Tier = "gold" }},
		{"threshold outside set", func(c *Config) { c.Accounts[0].MinTradeUSD = 750 }},
		{"negative override", func(c *Config) { c.Accounts[0].FrequencyOverride = -1 }},
		{"pct out of range", func(c *Config) { c.Accounts[0].Copy.PartialClosePct = 150 }},
		{"enabled copy without investment", func(c *Config) {
			c.Accounts[0].Copy.Enabled = true
			c.Accounts[0].Copy.InvestmentUSD = 0
		}},
		{"bad storage price", func(c *Config) { c.Limits.MaxStoragePrice = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config accepted")
			}
		})
	}
}
