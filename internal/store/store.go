package store

import (
	"time"

	"WhaleSentinel/internal/model"
)

// Store persists accounts, activities, frequency states, and simulated
// positions. Lookup methods return (nil, nil) when no row matches.
//
// The activity ledger is append-mostly: UpdateActivity only ever
// advances status, attaches PnL, or attaches the notification handle.
type Store interface {
	// Accounts
	UpsertAccount(a *model.Account) error
	Account(wallet string) (*model.Account, error)
	Accounts() ([]*model.Account, error)

	// Activities
	InsertActivity(a *model.Activity) error
	UpdateActivity(a *model.Activity) error
	ActivityByTxHash(wallet, txHash string) (*model.Activity, error)
	// OpenRoot returns the single open-status activity for the key, if any.
	OpenRoot(key model.PositionKey) (*model.Activity, error)
	// ActivitiesForKey returns activities for the key with any of the given
	// statuses (all statuses when none given), ordered oldest-first.
	ActivitiesForKey(key model.PositionKey, statuses ...model.TradeStatus) ([]*model.Activity, error)
	// WalletActivities returns a wallet's activities with any of the given
	// statuses, ordered oldest-first.
	WalletActivities(wallet string, statuses ...model.TradeStatus) ([]*model.Activity, error)
	// ActivitiesSince returns activities created at or after t, oldest-first.
	ActivitiesSince(t time.Time) ([]*model.Activity, error)

	// Frequency
	Frequency(wallet string) (*model.FrequencyState, error)
	SaveFrequency(s *model.FrequencyState) error

	// Simulated positions
	InsertPosition(p *model.SimulatedPosition) error
	UpdatePosition(p *model.SimulatedPosition) error
	// OpenPositions returns open and partially closed positions for the key,
	// ordered oldest-first.
	OpenPositions(key model.PositionKey) ([]*model.SimulatedPosition, error)
	WalletPositions(wallet string) ([]*model.SimulatedPosition, error)
	AllOpenPositions() ([]*model.SimulatedPosition, error)

	Close() error
}
