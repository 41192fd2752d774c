// Package pnl computes per-sale realized profit using a FIFO cost-basis
// match against the wallet's recorded buy lots.
package pnl

import (
	"fmt"
	"log"
	"time"

	"WhaleSentinel/internal/model"
	"WhaleSentinel/internal/store"
)

const epsilon = 1e-9

// DefaultTolerance is the allowed discrepancy, in shares, between the
// replayed ledger and the externally reported position size before the
// ledger is considered unreliable.
const DefaultTolerance = 50.0

// Result is the realized outcome of one sale.
type Result struct {
	Profit    float64
	CostBasis float64
	// Percent is nil when the cost basis is non-positive (undefined
	// rather than a division by zero).
	Percent *float64
}

// Engine derives cost basis from the activity ledger. It never persists
// intermediate lot state: consumption is replayed from scratch on every
// call, which makes the computation idempotent and safe to re-run.
type Engine struct {
	store     store.Store
	tolerance float64
}

// NewEngine creates an Engine. tolerance <= 0 selects DefaultTolerance.
func NewEngine(s store.Store, tolerance float64) *Engine {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Engine{store: s, tolerance: tolerance}
}

type lot struct {
	remaining float64
	price     float64
}

// Realized computes the FIFO realized PnL for a sale of sharesSold at
// salePrice. currentPositionSize, when non-nil, is the externally
// reported position remaining after this sale, used to cross-validate
// the ledger.
//
// ok is false when the ledger cannot support a FIFO match (missing buy
// history or discrepancy beyond tolerance); the caller should then use
// Fallback with the externally reported average price. That path is a
// defined outcome, not an error.
func (e *Engine) Realized(key model.PositionKey, sharesSold, salePrice float64, saleTime time.Time, currentPositionSize *float64) (res *Result, ok bool, err error) {
	buys, err := e.store.ActivitiesForKey(key, model.StatusOpen, model.StatusAdded)
	if err != nil {
		return nil, false, fmt.Errorf("load buy lots: %w", err)
	}

	lots := make([]*lot, 0, len(buys))
	for _, b := range buys {
		if b.Side != model.SideBuy {
			continue
		}
		lots = append(lots, &lot{remaining: b.Size, price: b.Price})
	}
	if len(lots) == 0 {
		log.Printf("[WARN] fifo fallback: no recorded buy lots for %s/%s[%d]", key.Wallet, key.ConditionID, key.OutcomeIndex)
		return nil, false, nil
	}

	// Replay prior sells oldest-first, deducting from the oldest lots.
	// Sells are matched by side and time, not by lifecycle status, so a
	// sell record that later advanced to closed still replays.
	priorSells, err := e.store.ActivitiesForKey(key, model.StatusPartiallyClosed, model.StatusClosed)
	if err != nil {
		return nil, false, fmt.Errorf("load prior sells: %w", err)
	}
	for _, s := range priorSells {
		if s.Side != model.SideSell || !s.Timestamp.Before(saleTime) {
			continue
		}
		consume(lots, s.Size)
	}

	// Cross-validate against the externally reported remaining size.
	// The source reports the position after the sale, so the sold
	// shares are deducted from the replayed ledger before comparing.
	if currentPositionSize != nil {
		remaining := -sharesSold
		for _, l := range lots {
			remaining += l.remaining
		}
		discrepancy := remaining - *currentPositionSize
		if discrepancy < 0 {
			discrepancy = -discrepancy
		}
		if discrepancy > e.tolerance {
			log.Printf("[WARN] fifo fallback: ledger has %.1f shares, source reports %.1f (tolerance %.0f) for %s/%s[%d]",
				remaining, *currentPositionSize, e.tolerance, key.Wallet, key.ConditionID, key.OutcomeIndex)
			return nil, false, nil
		}
	}

	costBasis, matched := consume(lots, sharesSold)
	if sharesSold-matched > epsilon {
		log.Printf("[WARN] fifo fallback: only %.1f of %.1f sold shares matched for %s/%s[%d]",
			matched, sharesSold, key.Wallet, key.ConditionID, key.OutcomeIndex)
		return nil, false, nil
	}

	return buildResult(sharesSold, salePrice, costBasis), true, nil
}

// consume deducts shares from the oldest lots first, returning the cost
// of the consumed shares and how many were actually matched.
func consume(lots []*lot, shares float64) (cost, matched float64) {
	for _, l := range lots {
		if shares <= epsilon {
			break
		}
		take := l.remaining
		if take > shares {
			take = shares
		}
		if take <= 0 {
			continue
		}
		l.remaining -= take
		shares -= take
		cost += take * l.price
		matched += take
	}
	return cost, matched
}

// Fallback prices the sale with the externally reported average buy
// price. Returns nil when avgBuyPrice is non-positive (no basis to
// price against).
func Fallback(sharesSold, salePrice, avgBuyPrice float64) *Result {
	if avgBuyPrice <= 0 || sharesSold <= 0 {
		return nil
	}
	return buildResult(sharesSold, salePrice, sharesSold*avgBuyPrice)
}

func buildResult(sharesSold, salePrice, costBasis float64) *Result {
	res := &Result{
		Profit:    sharesSold*salePrice - costBasis,
		CostBasis: costBasis,
	}
	if costBasis > epsilon {
		pct := res.Profit / costBasis * 100
		res.Percent = &pct
	}
	return res
}
