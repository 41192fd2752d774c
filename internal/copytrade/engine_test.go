package copytrade

import (
	"math"
	"testing"
	"time"

	"WhaleSentinel/internal/model"
	"WhaleSentinel/internal/store"
)

const wallet = "0xwhale"

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func copyAccount(pct float64) *model.Account {
	return &model.Account{
		Wallet: wallet,
		Tier:   model.TierPaid,
		Copy: model.CopySettings{
			Enabled:         true,
			InvestmentUSD:   100,
			PartialClosePct: pct,
		},
	}
}

func activity(id string, side model.TradeSide, status model.TradeStatus, size, price float64, offset time.Duration) *model.Activity {
	return &model.Activity{
		ID:          id,
		Wallet:      wallet,
		Side:        side,
		ConditionID: "cond-1",
		Size:        size,
		Price:       price,
		USDValue:    size * price,
		Status:      status,
		Timestamp:   baseTime.Add(offset),
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestOnBuySizing(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(st)
	account := copyAccount(100)

	root := activity("a1", model.SideBuy, model.StatusOpen, 2000, 0.40, 0)
	pos, err := engine.OnBuy(account, root)
	if err != nil {
		t.Fatalf("OnBuy: %v", err)
	}
	if pos == nil {
		t.Fatal("OnBuy returned no position")
	}
	// $100 at 0.40 buys 250 shares regardless of the whale's size.
	if !almostEqual(pos.Shares, 250) {
		t.Errorf("Shares = %.4f, want 250", pos.Shares)
	}
	if !almostEqual(pos.RemainingShares, 250) {
		t.Errorf("RemainingShares = %.4f, want 250", pos.RemainingShares)
	}
	if pos.Status != model.PositionOpen {
		t.Errorf("Status = %s, want open", pos.Status)
	}
}

func TestOnBuySkipsTopUpsAndDisabled(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(st)

	added := activity("a2", model.SideBuy, model.StatusAdded, 500, 0.50, time.Minute)
	if pos, err := engine.OnBuy(copyAccount(100), added); err != nil || pos != nil {
		t.Errorf("top-up mirrored: pos=%v err=%v", pos, err)
	}

	disabled := copyAccount(100)
	disabled.Copy.Enabled = false
	root := activity("a1", model.SideBuy, model.StatusOpen, 1000, 0.50, 0)
	if pos, err := engine.OnBuy(disabled, root); err != nil || pos != nil {
		t.Errorf("disabled account mirrored: pos=%v err=%v", pos, err)
	}
}

func TestOnSellProportional(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(st)
	account := copyAccount(50)

	// Whale opens 1000 shares; our mirror holds 1000 shares too
	// (investment 100 at price 0.10... keep numbers simple: use the
	// ledger to drive fraction, the mirror size comes from OnBuy).
	root := activity("a1", model.SideBuy, model.StatusOpen, 1000, 0.10, 0)
	if err := st.InsertActivity(root); err != nil {
		t.Fatal(err)
	}
	pos, err := engine.OnBuy(account, root)
	if err != nil || pos == nil {
		t.Fatalf("OnBuy: pos=%v err=%v", pos, err)
	}
	if !almostEqual(pos.Shares, 1000) { // 100 / 0.10
		t.Fatalf("Shares = %.4f, want 1000", pos.Shares)
	}

	// Whale sells 40% of their position; with partial_close_pct 50 the
	// mirror sells 1000 * 0.40 * 0.50 = 200 shares.
	sell := activity("s1", model.SideSell, model.StatusPartiallyClosed, 400, 0.20, time.Minute)
	if err := st.InsertActivity(sell); err != nil {
		t.Fatal(err)
	}
	res, err := engine.OnSell(account, sell)
	if err != nil {
		t.Fatalf("OnSell: %v", err)
	}
	if !almostEqual(res.SharesSold, 200) {
		t.Errorf("SharesSold = %.4f, want 200", res.SharesSold)
	}
	if !almostEqual(res.RealizedPnl, 200*(0.20-0.10)) {
		t.Errorf("RealizedPnl = %.4f, want 20", res.RealizedPnl)
	}

	open, err := st.OpenPositions(root.Key())
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 1 || !almostEqual(open[0].RemainingShares, 800) {
		t.Errorf("remaining = %+v, want one position with 800 shares", open)
	}
}

func TestOnSellFullCloseOverridesPct(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(st)
	account := copyAccount(25) // aggressive hold setting

	root := activity("a1", model.SideBuy, model.StatusOpen, 1000, 0.50, 0)
	if err := st.InsertActivity(root); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.OnBuy(account, root); err != nil {
		t.Fatalf("OnBuy: %v", err)
	}

	closeSell := activity("s1", model.SideSell, model.StatusClosed, 1000, 0.70, time.Minute)
	res, err := engine.OnSell(account, closeSell)
	if err != nil {
		t.Fatalf("OnSell: %v", err)
	}
	if !res.FullClose {
		t.Error("FullClose = false for a closed-status sell")
	}
	if !almostEqual(res.SharesSold, 200) { // entire mirror: 100 / 0.50
		t.Errorf("SharesSold = %.4f, want 200", res.SharesSold)
	}

	open, err := st.OpenPositions(root.Key())
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 0 {
		t.Errorf("%d positions still open after full close", len(open))
	}
}

func TestOnSellNoPositions(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(st)

	sell := activity("s1", model.SideSell, model.StatusPartiallyClosed, 100, 0.60, 0)
	res, err := engine.OnSell(copyAccount(100), sell)
	if err != nil {
		t.Fatalf("OnSell: %v", err)
	}
	if res != nil {
		t.Errorf("result = %+v for empty book, want nil", res)
	}
}

func TestCloseAll(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(st)
	account := copyAccount(100)

	root := activity("a1", model.SideBuy, model.StatusOpen, 1000, 0.40, 0)
	if err := st.InsertActivity(root); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.OnBuy(account, root); err != nil {
		t.Fatalf("OnBuy: %v", err)
	}

	res, err := engine.CloseAll(account, root.Key(), 0.60)
	if err != nil {
		t.Fatalf("CloseAll: %v", err)
	}
	if !almostEqual(res.SharesSold, 250) { // 100 / 0.40
		t.Errorf("SharesSold = %.4f, want 250", res.SharesSold)
	}
	if !almostEqual(res.RealizedPnl, 250*0.20) {
		t.Errorf("RealizedPnl = %.4f, want 50", res.RealizedPnl)
	}
	if res.ClosedCount != 1 {
		t.Errorf("ClosedCount = %d, want 1", res.ClosedCount)
	}
}

func TestPnlConservation(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(st)
	account := copyAccount(100)

	root := activity("a1", model.SideBuy, model.StatusOpen, 1000, 0.50, 0)
	if err := st.InsertActivity(root); err != nil {
		t.Fatal(err)
	}
	if _, err := engine.OnBuy(account, root); err != nil {
		t.Fatalf("OnBuy: %v", err)
	}

	// Two partial sells then a full close; summed realized PnL across
	// the position must equal shares * (exit - entry) piecewise.
	s1 := activity("s1", model.SideSell, model.StatusPartiallyClosed, 500, 0.60, time.Minute)
	if err := st.InsertActivity(s1); err != nil {
		t.Fatal(err)
	}
	r1, err := engine.OnSell(account, s1)
	if err != nil {
		t.Fatal(err)
	}

	s2 := activity("s2", model.SideSell, model.StatusClosed, 500, 0.70, 2*time.Minute)
	r2, err := engine.OnSell(account, s2)
	if err != nil {
		t.Fatal(err)
	}

	positions, err := st.WalletPositions(wallet)
	if err != nil {
		t.Fatal(err)
	}
	if len(positions) != 1 {
		t.Fatalf("%d positions, want 1", len(positions))
	}
	if !almostEqual(positions[0].RealizedPnl, r1.RealizedPnl+r2.RealizedPnl) {
		t.Errorf("stored pnl %.4f != sum of sell results %.4f",
			positions[0].RealizedPnl, r1.RealizedPnl+r2.RealizedPnl)
	}
	if positions[0].Status != model.PositionClosed {
		t.Errorf("Status = %s, want closed", positions[0].Status)
	}
}
