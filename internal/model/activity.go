package model

import "time"

// TradeStatus is the lifecycle state of an admitted trade record.
type TradeStatus string

const (
	StatusOpen            TradeStatus = "open"
	StatusAdded           TradeStatus = "added"
	StatusPartiallyClosed TradeStatus = "partially_closed"
	StatusClosed          TradeStatus = "closed"
)

// Valid reports whether s is one of the four known statuses.
func (s TradeStatus) Valid() bool {
	switch s {
	case StatusOpen, StatusAdded, StatusPartiallyClosed, StatusClosed:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transition.
func (s TradeStatus) Terminal() bool {
	return s == StatusClosed
}

// Activity is the admitted trade record, the core's principal persisted
// artifact. One Activity is created per admitted RawTrade; it is never
// mutated except to advance Status, attach PnL, or attach the
// notification correlation handle.
//
// Invariant: for a given (wallet, condition, outcome) there is at most
// one Activity with StatusOpen at any time — the root all later
// added/partially_closed/closed activities key off of.
type Activity struct {
	ID              string
	Wallet          string
	Side            TradeSide
	ConditionID     string
	OutcomeIndex    int
	Outcome         string
	Title           string
	Size            float64
	Price           float64
	USDValue        float64
	Status          TradeStatus
	RealizedPnl     *float64 // set only when a sell reduces/closes the position
	PercentPnl      *float64
	ExitPrice       *float64 // terminal blended exit price, set on close
	NotifyHandle    string   // opaque correlation handle from the notification sink
	TransactionHash string
	Timestamp       time.Time
	CreatedAt       time.Time
}

// PositionKey identifies one side of one market for one wallet.
type PositionKey struct {
	Wallet       string
	ConditionID  string
	OutcomeIndex int
}

// Key returns the activity's position key.
func (a *Activity) Key() PositionKey {
	return PositionKey{Wallet: a.Wallet, ConditionID: a.ConditionID, OutcomeIndex: a.OutcomeIndex}
}
