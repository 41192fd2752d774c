// Package limiter caps how many initial-buy notifications may be
// surfaced per account per reset window. A trade is still stored and
// copy-traded when the budget is exhausted; only the outward
// notification is skipped.
package limiter

import (
	"fmt"
	"time"

	"WhaleSentinel/internal/model"
	"WhaleSentinel/internal/store"
)

// FrequencyLimiter is the per-account notification budget. Every state
// change is written through to the store so a restart mid-window
// resumes with the correct remaining count instead of resetting early.
type FrequencyLimiter struct {
	store  store.Store
	window time.Duration
	locks  *KeyedMutex
	now    func() time.Time
}

// NewFrequencyLimiter creates a limiter with the given reset window.
func NewFrequencyLimiter(s store.Store, window time.Duration) *FrequencyLimiter {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &FrequencyLimiter{
		store:  s,
		window: window,
		locks:  NewKeyedMutex(),
		now:    time.Now,
	}
}

// TryConsume takes one unit of the account's budget if available.
// Linearizable per account: the read-modify-write runs under a
// per-account lock, so two concurrent callers can never both observe
// the last unit and both succeed. Calls for different accounts do not
// block one another.
func (l *FrequencyLimiter) TryConsume(account *model.Account) (bool, error) {
	l.locks.Lock(account.Wallet)
	defer l.locks.Unlock(account.Wallet)

	state, err := l.loadOrReset(account)
	if err != nil {
		return false, err
	}

	if state.Remaining == 0 {
		return false, nil
	}

	state.Remaining--
	if err := l.store.SaveFrequency(state); err != nil {
		return false, fmt.Errorf("save frequency state: %w", err)
	}
	return true, nil
}

// State returns the account's current budget, applying a lazy reset if
// the window has elapsed. Used by the command surface and the sweep.
func (l *FrequencyLimiter) State(account *model.Account) (*model.FrequencyState, error) {
	l.locks.Lock(account.Wallet)
	defer l.locks.Unlock(account.Wallet)

	return l.loadOrReset(account)
}

// Sweep applies lazy resets for every account to keep persisted state
// warm. Errors are aggregated into the first failure.
func (l *FrequencyLimiter) Sweep(accounts []*model.Account) error {
	var firstErr error
	for _, a := range accounts {
		if _, err := l.State(a); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("sweep %s: %w", a.Wallet, err)
		}
	}
	return firstErr
}

// loadOrReset must be called with the account's lock held. It persists
// the state whenever a reset reinitializes the window.
func (l *FrequencyLimiter) loadOrReset(account *model.Account) (*model.FrequencyState, error) {
	now := l.now()

	state, err := l.store.Frequency(account.Wallet)
	if err != nil {
		return nil, fmt.Errorf("load frequency state: %w", err)
	}

	if state == nil || !now.Before(state.ResetAt) {
		state = &model.FrequencyState{
			Wallet:    account.Wallet,
			Remaining: account.FrequencyLimit(),
			ResetAt:   now.Add(l.window),
		}
		if err := l.store.SaveFrequency(state); err != nil {
			return nil, fmt.Errorf("save frequency state: %w", err)
		}
	}
	return state, nil
}
