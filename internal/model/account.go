package model

import "time"

// AccountCategory tags a tracked wallet. It is a configured label,
// independent of trade size.
type AccountCategory string

const (
	CategoryRegular AccountCategory = "regular"
	CategoryWhale   AccountCategory = "whale"
)

// SubscriptionTier determines the default notification frequency limit.
type SubscriptionTier string

const (
	TierFree SubscriptionTier = "free"
	TierPaid SubscriptionTier = "paid"
)

// MinTradeUSDValues is the enumerated set of allowed per-account admission thresholds.
var MinTradeUSDValues = []float64{100, 250, 500, 1000, 2500}

// CopySettings holds per-account copy-trading configuration.
type CopySettings struct {
	Enabled         bool    `yaml:"enabled" json:"enabled"`
	InvestmentUSD   float64 `yaml:"investment_usd" json:"investment_usd"`
	PartialClosePct float64 `yaml:"partial_close_pct" json:"partial_close_pct"` // 0-100
}

// Account is a tracked external wallet. Mutated only by configuration;
// read-only to the reconciliation core.
type Account struct {
	Wallet            string           `yaml:"wallet" json:"wallet"`
	Label             string           `yaml:"label" json:"label"`
	Category          AccountCategory  `yaml:"category" json:"category"`
	Tier              SubscriptionTier `yaml:"tier" json:"tier"`
	MinTradeUSD       float64          `yaml:"min_trade_usd" json:"min_trade_usd"`
	FrequencyOverride int              `yaml:"frequency_override" json:"frequency_override"` // 0 = derive from tier
	Copy              CopySettings     `yaml:"copy_trading" json:"copy_trading"`
	UpdatedAt         time.Time        `yaml:"-" json:"updated_at"`
}

// FrequencyLimit returns the per-window notification budget:
// the explicit override if set, otherwise 1 for free / 3 for paid.
func (a *Account) FrequencyLimit() int {
	if a.FrequencyOverride > 0 {
		return a.FrequencyOverride
	}
	if a.Tier == TierPaid {
		return 3
	}
	return 1
}

// ValidMinTradeUSD reports whether v is one of the allowed thresholds.
func ValidMinTradeUSD(v float64) bool {
	for _, allowed := range MinTradeUSDValues {
		if v == allowed {
			return true
		}
	}
	return false
}
