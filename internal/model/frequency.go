package model

import "time"

// FrequencyState tracks the per-account notification budget for the
// current reset window.
//
// Invariants: Remaining is in [0, limit]; ResetAt strictly increases
// on each reset; mutation is atomic with the availability check
// (enforced by the limiter's per-account lock).
type FrequencyState struct {
	Wallet    string
	Remaining int
	ResetAt   time.Time
	UpdatedAt time.Time
}
