// Package classifier assigns a lifecycle status to each incoming raw
// trade. It is pure: storage and idempotency checks belong to the
// reconciler, which must drop trades whose transaction hash already
// has an activity before calling Classify.
package classifier

import (
	"fmt"

	"WhaleSentinel/internal/model"
)

// Decision is the classification outcome for one raw trade.
type Decision struct {
	Admit  bool
	Status model.TradeStatus
	Reason string // set when Admit is false, for skip logging
}

// Classify labels a raw trade against the wallet's current ledger state.
//
// openRoot is the single open-status activity for the trade's
// (wallet, condition, outcome), or nil when none exists.
// positionStillOpen is the external source's view of whether the
// outcome still has an open position after this trade.
//
// The admission filter (min USD value, max price) applies only to
// initial buys: an admitted root's top-ups and all sells against it
// are always recorded so the position ledger stays consistent.
func Classify(trade *model.RawTrade, account *model.Account, openRoot *model.Activity, positionStillOpen bool, maxStoragePrice float64) Decision {
	switch trade.Side {
	case model.SideBuy:
		if openRoot != nil {
			return Decision{Admit: true, Status: model.StatusAdded}
		}
		if trade.USDValue < account.MinTradeUSD {
			return Decision{
				Reason: fmt.Sprintf("below threshold: $%.2f < $%.0f", trade.USDValue, account.MinTradeUSD),
			}
		}
		if trade.Price > maxStoragePrice {
			return Decision{
				Reason: fmt.Sprintf("price %.3f above storage ceiling %.2f", trade.Price, maxStoragePrice),
			}
		}
		return Decision{Admit: true, Status: model.StatusOpen}

	case model.SideSell:
		if openRoot == nil {
			return Decision{Reason: "orphan sell: no open root activity"}
		}
		if positionStillOpen {
			return Decision{Admit: true, Status: model.StatusPartiallyClosed}
		}
		return Decision{Admit: true, Status: model.StatusClosed}
	}

	return Decision{Reason: fmt.Sprintf("unknown side %q", trade.Side)}
}
