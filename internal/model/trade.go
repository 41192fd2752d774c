package model

import "time"

// TradeSide is the direction of a raw trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// RawTrade is a single trade event from the external data feed.
// TransactionHash is the idempotency key.
type RawTrade struct {
	Wallet          string
	Side            TradeSide
	ConditionID     string
	OutcomeIndex    int // binary markets: 0 or 1
	Outcome         string
	Title           string
	Size            float64
	Price           float64 // 0-1
	USDValue        float64
	Timestamp       time.Time
	TransactionHash string
}
