// Package reconciler drives one polling cycle: fetch recent trades for
// every tracked account, classify and admit them, settle realized PnL,
// mirror them into the simulated book, and surface notifications.
package reconciler

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"WhaleSentinel/internal/classifier"
	"WhaleSentinel/internal/copytrade"
	"WhaleSentinel/internal/feed"
	"WhaleSentinel/internal/limiter"
	"WhaleSentinel/internal/model"
	"WhaleSentinel/internal/notifier"
	"WhaleSentinel/internal/pnl"
	"WhaleSentinel/internal/store"

	"github.com/google/uuid"
)

const tradeFetchLimit = 100

// Reconciler orchestrates classification, rate limiting, PnL, and
// copy trading across all tracked accounts once per cycle.
type Reconciler struct {
	store           store.Store
	source          feed.Source
	limiter         *limiter.FrequencyLimiter
	engine          *pnl.Engine
	copier          *copytrade.Engine
	sink            notifier.Sink
	maxStoragePrice float64

	// passRunning prevents overlapping passes: a tick that fires while
	// a pass is still in flight is skipped, not queued.
	passRunning atomic.Bool
	// walletLocks serializes ReconcileAccount per wallet, so a fast-path
	// call cannot interleave with the cron pass for the same account.
	walletLocks *limiter.KeyedMutex
	now         func() time.Time
}

// New creates a Reconciler.
func New(s store.Store, src feed.Source, lim *limiter.FrequencyLimiter, engine *pnl.Engine, copier *copytrade.Engine, sink notifier.Sink, maxStoragePrice float64) *Reconciler {
	if maxStoragePrice <= 0 {
		maxStoragePrice = 0.95
	}
	return &Reconciler{
		store:           s,
		source:          src,
		limiter:         lim,
		engine:          engine,
		copier:          copier,
		sink:            sink,
		maxStoragePrice: maxStoragePrice,
		walletLocks:     limiter.NewKeyedMutex(),
		now:             time.Now,
	}
}

// RunPass runs one reconciliation pass across all tracked accounts,
// fanned out concurrently. Each account is its own failure domain: one
// account's error is logged and does not abort the others.
func (r *Reconciler) RunPass(ctx context.Context) {
	if !r.passRunning.CompareAndSwap(false, true) {
		log.Println("[INFO] reconcile pass already running, skipping tick")
		return
	}
	defer r.passRunning.Store(false)

	accounts, err := r.store.Accounts()
	if err != nil {
		log.Printf("[ERROR] load accounts: %v", err)
		return
	}

	start := r.now()
	var wg sync.WaitGroup
	for _, account := range accounts {
		wg.Add(1)
		go func(a *model.Account) {
			defer wg.Done()
			if err := r.ReconcileAccount(ctx, a); err != nil {
				log.Printf("[ERROR] reconcile %s: %v", a.Wallet, err)
			}
		}(account)
	}
	wg.Wait()

	log.Printf("[INFO] reconcile pass finished: %d accounts in %v", len(accounts), time.Since(start))
}

// ReconcileAccount processes a single account: admit new trades, then
// detect externally closed positions. Also invoked directly by the
// live-trade fast path; the per-wallet lock keeps that call from
// interleaving with the cron pass for the same account.
func (r *Reconciler) ReconcileAccount(ctx context.Context, account *model.Account) error {
	r.walletLocks.Lock(account.Wallet)
	defer r.walletLocks.Unlock(account.Wallet)

	trades, err := r.source.ListRecentTrades(ctx, account.Wallet, tradeFetchLimit)
	if err != nil {
		return fmt.Errorf("fetch trades: %w", err)
	}

	openSnapshot, err := r.source.ListOpenPositions(ctx, account.Wallet, nil)
	if err != nil {
		return fmt.Errorf("fetch open positions: %w", err)
	}
	snapshot := indexPositions(account.Wallet, openSnapshot)

	// Classification needs oldest-first order so an open root is stored
	// before the added/sell activities that reference it. Sources are
	// not trusted to deliver that order.
	sort.SliceStable(trades, func(i, j int) bool { return trades[i].Timestamp.Before(trades[j].Timestamp) })
	for i := range trades {
		if err := r.processTrade(ctx, account, &trades[i], snapshot); err != nil {
			log.Printf("[ERROR] process trade %s (%s): %v", trades[i].TransactionHash, account.Wallet, err)
		}
	}

	if err := r.detectCloses(ctx, account, snapshot); err != nil {
		return fmt.Errorf("detect closes: %w", err)
	}
	return nil
}

func indexPositions(wallet string, positions []feed.OpenPosition) map[model.PositionKey]feed.OpenPosition {
	out := make(map[model.PositionKey]feed.OpenPosition, len(positions))
	for _, p := range positions {
		key := model.PositionKey{Wallet: wallet, ConditionID: p.ConditionID, OutcomeIndex: p.OutcomeIndex}
		out[key] = p
	}
	return out
}

func (r *Reconciler) processTrade(ctx context.Context, account *model.Account, trade *model.RawTrade, snapshot map[model.PositionKey]feed.OpenPosition) error {
	// Idempotency: a transaction hash is admitted at most once.
	existing, err := r.store.ActivityByTxHash(account.Wallet, trade.TransactionHash)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if existing != nil {
		return nil
	}

	key := model.PositionKey{Wallet: account.Wallet, ConditionID: trade.ConditionID, OutcomeIndex: trade.OutcomeIndex}
	root, err := r.store.OpenRoot(key)
	if err != nil {
		return fmt.Errorf("root lookup: %w", err)
	}

	pos, stillOpen := snapshot[key]

	decision := classifier.Classify(trade, account, root, stillOpen, r.maxStoragePrice)
	if !decision.Admit {
		log.Printf("[INFO] trade skipped (%s): %s %s %s", decision.Reason, account.Wallet, trade.Side, trade.TransactionHash)
		return nil
	}

	act := &model.Activity{
		ID:              uuid.NewString(),
		Wallet:          account.Wallet,
		Side:            trade.Side,
		ConditionID:     trade.ConditionID,
		OutcomeIndex:    trade.OutcomeIndex,
		Outcome:         trade.Outcome,
		Title:           trade.Title,
		Size:            trade.Size,
		Price:           trade.Price,
		USDValue:        trade.USDValue,
		Status:          decision.Status,
		TransactionHash: trade.TransactionHash,
		Timestamp:       trade.Timestamp,
		CreatedAt:       r.now(),
	}

	if trade.Side == model.SideSell {
		if err := r.attachSalePnl(ctx, account, act, pos, stillOpen); err != nil {
			// PnL attachment failure should not lose the activity record.
			log.Printf("[ERROR] pnl for %s: %v", act.TransactionHash, err)
		}
	}

	if err := r.store.InsertActivity(act); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	// Mirror into the simulated book regardless of notification outcome.
	// This runs before the root is retired so a full-close sell closes
	// the mirror at the observed sale price.
	if trade.Side == model.SideBuy {
		if _, err := r.copier.OnBuy(account, act); err != nil {
			log.Printf("[ERROR] copy-trade buy %s: %v", act.TransactionHash, err)
		}
	} else {
		if _, err := r.copier.OnSell(account, act); err != nil {
			log.Printf("[ERROR] copy-trade sell %s: %v", act.TransactionHash, err)
		}
	}

	// A full-close sell also retires the open root.
	if act.Status == model.StatusClosed && root != nil {
		if err := r.closeRoot(ctx, account, root, act.RealizedPnl); err != nil {
			log.Printf("[ERROR] close root for %s: %v", act.TransactionHash, err)
		}
	}

	r.notifyActivity(ctx, account, act, root)
	return nil
}

// attachSalePnl computes realized PnL for an admitted sell, preferring
// the FIFO match and falling back to the externally reported average
// price when the ledger is unreliable.
func (r *Reconciler) attachSalePnl(ctx context.Context, account *model.Account, act *model.Activity, pos feed.OpenPosition, stillOpen bool) error {
	var currentSize *float64
	if stillOpen {
		size := pos.Size
		currentSize = &size
	}

	res, ok, err := r.engine.Realized(act.Key(), act.Size, act.Price, act.Timestamp, currentSize)
	if err != nil {
		return err
	}
	if !ok {
		avgPrice := pos.AvgPrice
		if !stillOpen {
			if closed, err := r.source.ListClosedPositions(ctx, account.Wallet, []string{act.ConditionID}); err != nil {
				log.Printf("[WARN] closed-position lookup for fallback: %v", err)
			} else {
				for _, c := range closed {
					if c.OutcomeIndex == act.OutcomeIndex {
						avgPrice = c.AvgPrice
						break
					}
				}
			}
		}
		res = pnl.Fallback(act.Size, act.Price, avgPrice)
		if res == nil {
			log.Printf("[WARN] no usable cost basis for sale %s, leaving pnl unset", act.TransactionHash)
			return nil
		}
		log.Printf("[INFO] fifo fallback used for sale %s (avg price %.3f)", act.TransactionHash, avgPrice)
	}

	act.RealizedPnl = &res.Profit
	act.PercentPnl = res.Percent
	return nil
}

// detectCloses re-queries the position source for every key the ledger
// believes is open; keys no longer present are transitioned to closed.
func (r *Reconciler) detectCloses(ctx context.Context, account *model.Account, snapshot map[model.PositionKey]feed.OpenPosition) error {
	roots, err := r.store.WalletActivities(account.Wallet, model.StatusOpen)
	if err != nil {
		return fmt.Errorf("load open roots: %w", err)
	}

	for _, root := range roots {
		if _, stillOpen := snapshot[root.Key()]; stillOpen {
			continue
		}
		if err := r.closeRoot(ctx, account, root, nil); err != nil {
			log.Printf("[ERROR] close detection for %s/%s[%d]: %v", account.Wallet, root.ConditionID, root.OutcomeIndex, err)
		}
	}
	return nil
}

// closeRoot retires an open root whose position is gone. realizedHint,
// when non-nil, is the PnL already computed for the closing sell; when
// nil the externally reported closed-position summary is consulted.
// The terminal exit price is (totalCost + realizedPnl) / totalShares,
// which reflects the blended effect of all partial sales rather than
// the instantaneous market price.
func (r *Reconciler) closeRoot(ctx context.Context, account *model.Account, root *model.Activity, realizedHint *float64) error {
	key := root.Key()

	buys, err := r.store.ActivitiesForKey(key, model.StatusOpen, model.StatusAdded)
	if err != nil {
		return fmt.Errorf("load buys: %w", err)
	}
	var totalShares, totalCost float64
	for _, b := range buys {
		if b.Side == model.SideBuy {
			totalShares += b.Size
			totalCost += b.Size * b.Price
		}
	}

	// Total realized PnL for the position: recorded partial sells plus
	// either the closing sell's hint or the external summary.
	sells, err := r.store.ActivitiesForKey(key, model.StatusPartiallyClosed)
	if err != nil {
		return fmt.Errorf("load sells: %w", err)
	}
	var realized float64
	var haveRealized bool
	for _, s := range sells {
		if s.RealizedPnl != nil {
			realized += *s.RealizedPnl
			haveRealized = true
		}
	}
	if realizedHint != nil {
		realized += *realizedHint
		haveRealized = true
	} else {
		if closed, err := r.source.ListClosedPositions(ctx, account.Wallet, []string{key.ConditionID}); err != nil {
			log.Printf("[WARN] closed-position summary for %s: %v", key.ConditionID, err)
		} else {
			for _, c := range closed {
				if c.OutcomeIndex == key.OutcomeIndex {
					// The summary already covers the whole position.
					realized = c.RealizedPnl
					haveRealized = true
					if totalShares == 0 {
						totalShares = c.TotalBought
						totalCost = c.TotalBought * c.AvgPrice
					}
					break
				}
			}
		}
	}

	root.Status = model.StatusClosed
	if haveRealized {
		root.RealizedPnl = &realized
		if totalCost > 0 {
			pct := realized / totalCost * 100
			root.PercentPnl = &pct
		}
		if totalShares > 0 {
			exit := (totalCost + realized) / totalShares
			root.ExitPrice = &exit
		}
	}
	if err := r.store.UpdateActivity(root); err != nil {
		return fmt.Errorf("update root: %w", err)
	}

	// Force-close the simulated mirror at the blended exit price.
	exitPrice := root.Price
	if root.ExitPrice != nil {
		exitPrice = *root.ExitPrice
	}
	if _, err := r.copier.CloseAll(account, key, exitPrice); err != nil {
		log.Printf("[ERROR] copy-trade force close %s[%d]: %v", key.ConditionID, key.OutcomeIndex, err)
	}

	r.notifyClose(ctx, account, root)
	return nil
}

// notifyActivity surfaces an admitted activity. Initial buys must clear
// the frequency budget; exhaustion skips only the notification, never
// storage or copy trading. Sells reply to the root's alert when a
// correlation handle is available.
func (r *Reconciler) notifyActivity(ctx context.Context, account *model.Account, act *model.Activity, root *model.Activity) {
	if r.sink == nil {
		return
	}

	if act.Status == model.StatusOpen {
		allowed, err := r.limiter.TryConsume(account)
		if err != nil {
			log.Printf("[ERROR] rate check for %s: %v", account.Wallet, err)
			return
		}
		if !allowed {
			log.Printf("[INFO] notification budget exhausted for %s, alert skipped", account.Wallet)
			return
		}
	}

	text := notifier.FormatTradeAlert(account, act)

	var handle string
	var err error
	if act.Side == model.SideSell && root != nil && root.NotifyHandle != "" {
		handle, err = r.sink.Reply(ctx, root.NotifyHandle, text)
	} else {
		handle, err = r.sink.Send(ctx, text)
	}
	if err != nil {
		log.Printf("[ERROR] send alert for %s: %v", act.TransactionHash, err)
		return
	}
	if handle != "" {
		act.NotifyHandle = handle
		if err := r.store.UpdateActivity(act); err != nil {
			log.Printf("[ERROR] store notify handle for %s: %v", act.TransactionHash, err)
		}
	}
}

// notifyClose surfaces a reconciler-detected full close.
func (r *Reconciler) notifyClose(ctx context.Context, account *model.Account, root *model.Activity) {
	if r.sink == nil {
		return
	}
	text := notifier.FormatTradeAlert(account, root)

	var err error
	if root.NotifyHandle != "" {
		_, err = r.sink.Reply(ctx, root.NotifyHandle, text)
	} else {
		_, err = r.sink.Send(ctx, text)
	}
	if err != nil {
		log.Printf("[ERROR] send close alert for %s[%d]: %v", root.ConditionID, root.OutcomeIndex, err)
	}
}
