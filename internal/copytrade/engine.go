// Package copytrade mirrors admitted whale trades into simulated
// positions sized by a fixed virtual investment.
package copytrade

import (
	"fmt"
	"log"
	"time"

	"WhaleSentinel/internal/model"
	"WhaleSentinel/internal/store"

	"github.com/google/uuid"
)

const epsilon = 1e-9

// Engine opens, reduces, and closes simulated positions from the
// classified activity stream.
type Engine struct {
	store store.Store
	now   func() time.Time
}

// NewEngine creates a copy-trade engine backed by the given store.
func NewEngine(s store.Store) *Engine {
	return &Engine{store: s, now: time.Now}
}

// SellResult summarizes the simulated side of one whale sell.
type SellResult struct {
	SharesSold  float64
	RealizedPnl float64
	ClosedCount int
	FullClose   bool
}

// OnBuy mirrors an admitted initial buy into one new simulated
// position. Top-ups (status added) are intentionally not mirrored:
// mirroring them would double-count the whale's position.
func (e *Engine) OnBuy(account *model.Account, act *model.Activity) (*model.SimulatedPosition, error) {
	if !account.Copy.Enabled {
		return nil, nil
	}
	if act.Status != model.StatusOpen {
		return nil, nil
	}
	if act.Price <= 0 {
		return nil, fmt.Errorf("cannot size position at price %.4f", act.Price)
	}

	shares := account.Copy.InvestmentUSD / act.Price
	pos := &model.SimulatedPosition{
		ID:              uuid.NewString(),
		Wallet:          act.Wallet,
		ConditionID:     act.ConditionID,
		OutcomeIndex:    act.OutcomeIndex,
		Outcome:         act.Outcome,
		Title:           act.Title,
		ActivityID:      act.ID,
		EntryPrice:      act.Price,
		Shares:          shares,
		RemainingShares: shares,
		InvestmentUSD:   account.Copy.InvestmentUSD,
		Status:          model.PositionOpen,
		OpenedAt:        e.now(),
	}
	if err := e.store.InsertPosition(pos); err != nil {
		return nil, fmt.Errorf("insert position: %w", err)
	}

	log.Printf("[INFO] copy-trade opened: %s %s[%d] %.2f shares @ %.3f ($%.0f)",
		act.Wallet, act.ConditionID, act.OutcomeIndex, shares, act.Price, account.Copy.InvestmentUSD)
	return pos, nil
}

// OnSell mirrors an admitted sell into the simulated book. The mirror
// sells the same fraction of its tracked shares that the whale sold of
// theirs, scaled by the account's partial-close setting. A whale full
// close always fully closes the mirror regardless of that setting.
func (e *Engine) OnSell(account *model.Account, act *model.Activity) (*SellResult, error) {
	if !account.Copy.Enabled {
		return nil, nil
	}
	if act.Status != model.StatusPartiallyClosed && act.Status != model.StatusClosed {
		return nil, nil
	}

	key := act.Key()
	positions, err := e.store.OpenPositions(key)
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}
	if len(positions) == 0 {
		return nil, nil
	}

	ourRemaining := 0.0
	for _, p := range positions {
		ourRemaining += p.RemainingShares
	}

	fullClose := act.Status == model.StatusClosed
	var toSell float64
	if fullClose {
		toSell = ourRemaining
	} else {
		tracked, err := e.trackedShares(key, act.Timestamp)
		if err != nil {
			return nil, err
		}
		fractionSold := 1.0
		if tracked > epsilon {
			fractionSold = act.Size / tracked
			if fractionSold > 1 {
				fractionSold = 1
			}
		}
		toSell = ourRemaining * fractionSold * (account.Copy.PartialClosePct / 100)
	}
	if toSell <= epsilon {
		return &SellResult{FullClose: fullClose}, nil
	}

	result, err := e.sellShares(positions, toSell, act.Price, fullClose)
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] copy-trade sold: %s %s[%d] %.2f shares @ %.3f (pnl %+.2f, full=%v)",
		act.Wallet, act.ConditionID, act.OutcomeIndex, result.SharesSold, act.Price, result.RealizedPnl, fullClose)
	return result, nil
}

// CloseAll fully closes every open simulated position for the key at
// exitPrice. Used when the external source reports the whale's position
// gone without a final sell trade being observed.
func (e *Engine) CloseAll(account *model.Account, key model.PositionKey, exitPrice float64) (*SellResult, error) {
	if !account.Copy.Enabled {
		return nil, nil
	}
	positions, err := e.store.OpenPositions(key)
	if err != nil {
		return nil, fmt.Errorf("load open positions: %w", err)
	}
	if len(positions) == 0 {
		return nil, nil
	}

	remaining := 0.0
	for _, p := range positions {
		remaining += p.RemainingShares
	}

	result, err := e.sellShares(positions, remaining, exitPrice, true)
	if err != nil {
		return nil, err
	}

	log.Printf("[INFO] copy-trade force-closed: %s %s[%d] %.2f shares @ %.3f (pnl %+.2f)",
		key.Wallet, key.ConditionID, key.OutcomeIndex, result.SharesSold, exitPrice, result.RealizedPnl)
	return result, nil
}

// sellShares applies a FIFO sale of toSell shares across the given
// open positions, oldest first.
func (e *Engine) sellShares(positions []*model.SimulatedPosition, toSell, exitPrice float64, fullClose bool) (*SellResult, error) {
	result := &SellResult{FullClose: fullClose}
	left := toSell
	for _, p := range positions {
		if left <= epsilon {
			break
		}
		sold := p.RemainingShares
		if sold > left {
			sold = left
		}
		p.RemainingShares -= sold
		left -= sold

		realized := sold * (exitPrice - p.EntryPrice)
		p.RealizedPnl += realized
		price := exitPrice
		p.ExitPrice = &price
		if p.RemainingShares <= epsilon {
			p.RemainingShares = 0
			p.Status = model.PositionClosed
			closedAt := e.now()
			p.ClosedAt = &closedAt
			result.ClosedCount++
		} else {
			p.Status = model.PositionPartiallyClosed
		}
		if err := e.store.UpdatePosition(p); err != nil {
			return nil, fmt.Errorf("update position %s: %w", p.ID, err)
		}

		result.SharesSold += sold
		result.RealizedPnl += realized
	}
	return result, nil
}

// trackedShares returns the whale's tracked position size before the
// given sell: admitted buys minus earlier partial sells.
func (e *Engine) trackedShares(key model.PositionKey, before time.Time) (float64, error) {
	buys, err := e.store.ActivitiesForKey(key, model.StatusOpen, model.StatusAdded)
	if err != nil {
		return 0, fmt.Errorf("load buys: %w", err)
	}
	total := 0.0
	for _, b := range buys {
		if b.Side == model.SideBuy {
			total += b.Size
		}
	}

	// Matched by side and time rather than status, like the pnl replay.
	sells, err := e.store.ActivitiesForKey(key, model.StatusPartiallyClosed, model.StatusClosed)
	if err != nil {
		return 0, fmt.Errorf("load prior sells: %w", err)
	}
	for _, s := range sells {
		if s.Side == model.SideSell && s.Timestamp.Before(before) {
			total -= s.Size
		}
	}
	if total < 0 {
		total = 0
	}
	return total, nil
}
