package model

import "time"

// PositionStatus is the lifecycle state of a simulated position.
type PositionStatus string

const (
	PositionOpen            PositionStatus = "open"
	PositionPartiallyClosed PositionStatus = "partially_closed"
	PositionClosed          PositionStatus = "closed"
)

// SimulatedPosition is a virtual copy-trade position sized to a fixed
// USD investment. Created exactly once per admitted initial buy (never
// for top-ups), closed/reduced by FIFO match against the wallet's sells.
type SimulatedPosition struct {
	ID              string
	Wallet          string
	ConditionID     string
	OutcomeIndex    int
	Outcome         string
	Title           string
	ActivityID      string // source root Activity
	EntryPrice      float64
	Shares          float64 // opened shares = investment / entry price
	RemainingShares float64
	InvestmentUSD   float64
	Status          PositionStatus
	ExitPrice       *float64
	RealizedPnl     float64
	OpenedAt        time.Time
	ClosedAt        *time.Time
}

// Key returns the position's (wallet, condition, outcome) key.
func (p *SimulatedPosition) Key() PositionKey {
	return PositionKey{Wallet: p.Wallet, ConditionID: p.ConditionID, OutcomeIndex: p.OutcomeIndex}
}
