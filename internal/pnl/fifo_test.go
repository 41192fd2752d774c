package pnl

import (
	"math"
	"testing"
	"time"

	"WhaleSentinel/internal/model"
	"WhaleSentinel/internal/store"
)

const wallet = "0xwhale"

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testKey() model.PositionKey {
	return model.PositionKey{Wallet: wallet, ConditionID: "cond-1", OutcomeIndex: 0}
}

func addBuy(t *testing.T, st store.Store, id string, status model.TradeStatus, size, price float64, offset time.Duration) {
	t.Helper()
	err := st.InsertActivity(&model.Activity{
		ID:          id,
		Wallet:      wallet,
		Side:        model.SideBuy,
		ConditionID: "cond-1",
		Size:        size,
		Price:       price,
		Status:      status,
		Timestamp:   baseTime.Add(offset),
	})
	if err != nil {
		t.Fatalf("insert buy: %v", err)
	}
}

func addPartialSell(t *testing.T, st store.Store, id string, size, price float64, offset time.Duration) {
	t.Helper()
	err := st.InsertActivity(&model.Activity{
		ID:          id,
		Wallet:      wallet,
		Side:        model.SideSell,
		ConditionID: "cond-1",
		Size:        size,
		Price:       price,
		Status:      model.StatusPartiallyClosed,
		Timestamp:   baseTime.Add(offset),
	})
	if err != nil {
		t.Fatalf("insert sell: %v", err)
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestRealizedFIFO(t *testing.T) {
	st := store.NewMemoryStore()
	addBuy(t, st, "b1", model.StatusOpen, 100, 0.40, 0)
	addBuy(t, st, "b2", model.StatusAdded, 50, 0.60, time.Minute)

	engine := NewEngine(st, 0)
	res, ok, err := engine.Realized(testKey(), 120, 0.80, baseTime.Add(2*time.Minute), nil)
	if err != nil {
		t.Fatalf("Realized: %v", err)
	}
	if !ok {
		t.Fatal("expected FIFO match, got fallback signal")
	}

	// 100 @ 0.40 + 20 @ 0.60 = $52 basis; 120 * 0.80 - 52 = $44.
	if !almostEqual(res.CostBasis, 52) {
		t.Errorf("CostBasis = %.4f, want 52", res.CostBasis)
	}
	if !almostEqual(res.Profit, 44) {
		t.Errorf("Profit = %.4f, want 44", res.Profit)
	}
	if res.Percent == nil {
		t.Fatal("Percent is nil")
	}
	if math.Abs(*res.Percent-84.6153846) > 0.001 {
		t.Errorf("Percent = %.4f, want ~84.62", *res.Percent)
	}
}

func TestRealizedReplaysPriorSells(t *testing.T) {
	st := store.NewMemoryStore()
	addBuy(t, st, "b1", model.StatusOpen, 1000, 0.50, 0)
	addBuy(t, st, "b2", model.StatusAdded, 500, 0.55, time.Minute)
	addPartialSell(t, st, "s1", 750, 0.70, 2*time.Minute)

	engine := NewEngine(st, 0)

	// The second sell must see the first 750 shares already consumed:
	// remaining lots are 250 @ 0.50 and 500 @ 0.55.
	res, ok, err := engine.Realized(testKey(), 750, 0.65, baseTime.Add(3*time.Minute), nil)
	if err != nil {
		t.Fatalf("Realized: %v", err)
	}
	if !ok {
		t.Fatal("expected FIFO match")
	}
	if !almostEqual(res.Profit, 87.5) {
		t.Errorf("Profit = %.4f, want 87.50", res.Profit)
	}

	// Recomputing the first sell must ignore the later one.
	res, ok, err = engine.Realized(testKey(), 750, 0.70, baseTime.Add(2*time.Minute), nil)
	if err != nil {
		t.Fatalf("Realized: %v", err)
	}
	if !ok {
		t.Fatal("expected FIFO match")
	}
	if !almostEqual(res.Profit, 150) {
		t.Errorf("Profit = %.4f, want 150", res.Profit)
	}
}

// Replay keys off side and time, not lifecycle status: a sell record
// carrying closed status must still consume its lots.
func TestRealizedReplaysClosedStatusSell(t *testing.T) {
	st := store.NewMemoryStore()
	addBuy(t, st, "b1", model.StatusOpen, 1000, 0.50, 0)
	addBuy(t, st, "b2", model.StatusAdded, 500, 0.55, time.Minute)
	err := st.InsertActivity(&model.Activity{
		ID:          "s1",
		Wallet:      wallet,
		Side:        model.SideSell,
		ConditionID: "cond-1",
		Size:        750,
		Price:       0.70,
		Status:      model.StatusClosed,
		Timestamp:   baseTime.Add(2 * time.Minute),
	})
	if err != nil {
		t.Fatalf("insert sell: %v", err)
	}

	engine := NewEngine(st, 0)
	res, ok, err := engine.Realized(testKey(), 750, 0.65, baseTime.Add(3*time.Minute), nil)
	if err != nil {
		t.Fatalf("Realized: %v", err)
	}
	if !ok {
		t.Fatal("expected FIFO match")
	}
	// Same lots as the partial-status replay: 250 @ 0.50 + 500 @ 0.55.
	if !almostEqual(res.Profit, 87.5) {
		t.Errorf("Profit = %.4f, want 87.50", res.Profit)
	}
}

func TestRealizedNoBuyHistory(t *testing.T) {
	st := store.NewMemoryStore()
	engine := NewEngine(st, 0)

	res, ok, err := engine.Realized(testKey(), 100, 0.70, baseTime, nil)
	if err != nil {
		t.Fatalf("Realized: %v", err)
	}
	if ok || res != nil {
		t.Fatal("expected fallback signal when no buy lots exist")
	}
}

func TestRealizedInsufficientLots(t *testing.T) {
	st := store.NewMemoryStore()
	addBuy(t, st, "b1", model.StatusOpen, 80, 0.40, 0)

	engine := NewEngine(st, 0)
	_, ok, err := engine.Realized(testKey(), 120, 0.80, baseTime.Add(time.Minute), nil)
	if err != nil {
		t.Fatalf("Realized: %v", err)
	}
	if ok {
		t.Fatal("expected fallback when sale exceeds recorded lots")
	}
}

func TestRealizedToleranceCheck(t *testing.T) {
	st := store.NewMemoryStore()
	addBuy(t, st, "b1", model.StatusOpen, 1000, 0.50, 0)

	engine := NewEngine(st, 50)

	within := 920.0 // ledger 900 after the sale vs source 920: discrepancy 20 <= 50
	if _, ok, err := engine.Realized(testKey(), 100, 0.60, baseTime.Add(time.Minute), &within); err != nil {
		t.Fatalf("Realized: %v", err)
	} else if !ok {
		t.Error("discrepancy within tolerance triggered fallback")
	}

	beyond := 700.0 // discrepancy 200 > 50
	if _, ok, err := engine.Realized(testKey(), 100, 0.60, baseTime.Add(time.Minute), &beyond); err != nil {
		t.Fatalf("Realized: %v", err)
	} else if ok {
		t.Error("discrepancy beyond tolerance did not trigger fallback")
	}
}

func TestRealizedIdempotent(t *testing.T) {
	st := store.NewMemoryStore()
	addBuy(t, st, "b1", model.StatusOpen, 100, 0.40, 0)

	engine := NewEngine(st, 0)
	first, ok, err := engine.Realized(testKey(), 50, 0.80, baseTime.Add(time.Minute), nil)
	if err != nil || !ok {
		t.Fatalf("first call: ok=%v err=%v", ok, err)
	}
	second, ok, err := engine.Realized(testKey(), 50, 0.80, baseTime.Add(time.Minute), nil)
	if err != nil || !ok {
		t.Fatalf("second call: ok=%v err=%v", ok, err)
	}
	if !almostEqual(first.Profit, second.Profit) || !almostEqual(first.CostBasis, second.CostBasis) {
		t.Errorf("repeated computation diverged: %+v vs %+v", first, second)
	}
}

func TestFallback(t *testing.T) {
	res := Fallback(120, 0.80, 0.45)
	if res == nil {
		t.Fatal("Fallback returned nil")
	}
	if !almostEqual(res.Profit, 42) { // 120 * (0.80 - 0.45)
		t.Errorf("Profit = %.4f, want 42", res.Profit)
	}

	if Fallback(120, 0.80, 0) != nil {
		t.Error("expected nil result for zero avg buy price")
	}
	if Fallback(0, 0.80, 0.45) != nil {
		t.Error("expected nil result for zero shares")
	}
}

func TestPercentUndefinedOnZeroBasis(t *testing.T) {
	res := buildResult(100, 0.50, 0)
	if res.Percent != nil {
		t.Errorf("Percent = %v, want nil for zero basis", *res.Percent)
	}
}
