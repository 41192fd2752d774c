package limiter

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"WhaleSentinel/internal/model"
	"WhaleSentinel/internal/store"
)

func freeAccount(wallet string) *model.Account {
	return &model.Account{Wallet: wallet, Tier: model.TierFree}
}

func paidAccount(wallet string) *model.Account {
	return &model.Account{Wallet: wallet, Tier: model.TierPaid}
}

func TestTryConsumeBudget(t *testing.T) {
	st := store.NewMemoryStore()
	lim := NewFrequencyLimiter(st, 24*time.Hour)
	account := paidAccount("0xpaid")

	for i := 0; i < 3; i++ {
		ok, err := lim.TryConsume(account)
		if err != nil {
			t.Fatalf("TryConsume #%d: %v", i+1, err)
		}
		if !ok {
			t.Fatalf("TryConsume #%d denied, want allowed", i+1)
		}
	}

	ok, err := lim.TryConsume(account)
	if err != nil {
		t.Fatalf("TryConsume after exhaustion: %v", err)
	}
	if ok {
		t.Error("budget exceeded: 4th consume allowed for paid tier limit 3")
	}
}

func TestTryConsumeConcurrent(t *testing.T) {
	st := store.NewMemoryStore()
	lim := NewFrequencyLimiter(st, 24*time.Hour)
	account := paidAccount("0xpaid")

	const callers = 50
	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := lim.TryConsume(account)
			if err != nil {
				t.Errorf("TryConsume: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	if allowed != 3 {
		t.Errorf("%d concurrent consumes allowed, want exactly 3", allowed)
	}

	state, err := lim.State(account)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Remaining != 0 {
		t.Errorf("Remaining = %d, want 0", state.Remaining)
	}
}

func TestWindowReset(t *testing.T) {
	st := store.NewMemoryStore()
	lim := NewFrequencyLimiter(st, 24*time.Hour)

	current := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	lim.now = func() time.Time { return current }

	account := freeAccount("0xfree")
	if ok, _ := lim.TryConsume(account); !ok {
		t.Fatal("first consume denied")
	}
	if ok, _ := lim.TryConsume(account); ok {
		t.Fatal("second consume allowed within window for free tier limit 1")
	}

	// Just before the window boundary: still exhausted.
	current = current.Add(24*time.Hour - time.Second)
	if ok, _ := lim.TryConsume(account); ok {
		t.Fatal("consume allowed before window elapsed")
	}

	// At the boundary the budget resets.
	current = current.Add(time.Second)
	ok, err := lim.TryConsume(account)
	if err != nil {
		t.Fatalf("TryConsume after reset: %v", err)
	}
	if !ok {
		t.Error("consume denied after window elapsed")
	}

	state, err := lim.State(account)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	wantReset := current.Add(24 * time.Hour)
	if !state.ResetAt.Equal(wantReset) {
		t.Errorf("ResetAt = %v, want %v", state.ResetAt, wantReset)
	}
}

func TestFrequencyOverride(t *testing.T) {
	st := store.NewMemoryStore()
	lim := NewFrequencyLimiter(st, 24*time.Hour)
	account := &model.Account{Wallet: "0xvip", Tier: model.TierFree, FrequencyOverride: 5}

	var allowed int
	for i := 0; i < 10; i++ {
		if ok, err := lim.TryConsume(account); err != nil {
			t.Fatalf("TryConsume: %v", err)
		} else if ok {
			allowed++
		}
	}
	if allowed != 5 {
		t.Errorf("%d consumes allowed, want 5 from override", allowed)
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	st := store.NewMemoryStore()
	lim := NewFrequencyLimiter(st, 24*time.Hour)
	account := paidAccount("0xpaid")

	if ok, _ := lim.TryConsume(account); !ok {
		t.Fatal("first consume denied")
	}

	// A new limiter over the same store must see the consumed unit.
	lim2 := NewFrequencyLimiter(st, 24*time.Hour)
	state, err := lim2.State(account)
	if err != nil {
		t.Fatalf("State: %v", err)
	}
	if state.Remaining != 2 {
		t.Errorf("Remaining = %d after restart, want 2", state.Remaining)
	}
}

func TestKeyedMutexCleanup(t *testing.T) {
	km := NewKeyedMutex()

	km.Lock("a")
	km.Lock("b")
	if km.Len() != 2 {
		t.Fatalf("Len = %d with two held keys, want 2", km.Len())
	}
	km.Unlock("a")
	km.Unlock("b")
	if km.Len() != 0 {
		t.Errorf("Len = %d after release, want 0", km.Len())
	}
}

func TestKeyedMutexExcludes(t *testing.T) {
	km := NewKeyedMutex()
	var counter int

	const workers = 100
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("key")
			counter++
			km.Unlock("key")
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Errorf("counter = %d, want %d", counter, workers)
	}
	if km.Len() != 0 {
		t.Errorf("Len = %d after all workers finished, want 0", km.Len())
	}
}
