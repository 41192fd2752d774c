package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"WhaleSentinel/internal/model"
)

// MemoryStore is an in-memory Store used when SQLite is not configured
// and as the backing store in tests. State does not survive a restart.
type MemoryStore struct {
	mu         sync.Mutex
	accounts   map[string]*model.Account
	activities []*model.Activity
	frequency  map[string]*model.FrequencyState
	positions  []*model.SimulatedPosition
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*model.Account),
		frequency: make(map[string]*model.FrequencyState),
	}
}

func (m *MemoryStore) UpsertAccount(a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	cp.UpdatedAt = time.Now()
	m.accounts[a.Wallet] = &cp
	return nil
}

func (m *MemoryStore) Account(wallet string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[wallet]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) Accounts() ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Wallet < out[j].Wallet })
	return out, nil
}

func (m *MemoryStore) InsertActivity(a *model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Same uniqueness guarantee as the sqlite (wallet, tx_hash) index.
	if a.TransactionHash != "" {
		for _, existing := range m.activities {
			if existing.Wallet == a.Wallet && existing.TransactionHash == a.TransactionHash {
				return fmt.Errorf("duplicate activity for tx %s", a.TransactionHash)
			}
		}
	}
	cp := *a
	m.activities = append(m.activities, &cp)
	return nil
}

func (m *MemoryStore) UpdateActivity(a *model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.activities {
		if existing.ID == a.ID {
			cp := *a
			m.activities[i] = &cp
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) ActivityByTxHash(wallet, txHash string) (*model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.activities {
		if a.Wallet == wallet && a.TransactionHash == txHash {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) OpenRoot(key model.PositionKey) (*model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range sortedByTime(m.activities) {
		if a.Key() == key && a.Status == model.StatusOpen {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) ActivitiesForKey(key model.PositionKey, statuses ...model.TradeStatus) ([]*model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Activity
	for _, a := range sortedByTime(m.activities) {
		if a.Key() == key && statusMatch(a.Status, statuses) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) WalletActivities(wallet string, statuses ...model.TradeStatus) ([]*model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Activity
	for _, a := range sortedByTime(m.activities) {
		if a.Wallet == wallet && statusMatch(a.Status, statuses) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) ActivitiesSince(t time.Time) ([]*model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Activity
	for _, a := range sortedByTime(m.activities) {
		if !a.CreatedAt.Before(t) {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) Frequency(wallet string) (*model.FrequencyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fs, ok := m.frequency[wallet]
	if !ok {
		return nil, nil
	}
	cp := *fs
	return &cp, nil
}

func (m *MemoryStore) SaveFrequency(fs *model.FrequencyState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *fs
	cp.UpdatedAt = time.Now()
	m.frequency[fs.Wallet] = &cp
	return nil
}

func (m *MemoryStore) InsertPosition(p *model.SimulatedPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.positions = append(m.positions, &cp)
	return nil
}

func (m *MemoryStore) UpdatePosition(p *model.SimulatedPosition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.positions {
		if existing.ID == p.ID {
			cp := *p
			m.positions[i] = &cp
			return nil
		}
	}
	return nil
}

func (m *MemoryStore) OpenPositions(key model.PositionKey) ([]*model.SimulatedPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SimulatedPosition
	for _, p := range sortedByOpen(m.positions) {
		if p.Key() == key && p.Status != model.PositionClosed {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) WalletPositions(wallet string) ([]*model.SimulatedPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SimulatedPosition
	for _, p := range sortedByOpen(m.positions) {
		if p.Wallet == wallet {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) AllOpenPositions() ([]*model.SimulatedPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.SimulatedPosition
	for _, p := range sortedByOpen(m.positions) {
		if p.Status != model.PositionClosed {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }

func statusMatch(s model.TradeStatus, statuses []model.TradeStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, st := range statuses {
		if s == st {
			return true
		}
	}
	return false
}

func sortedByTime(in []*model.Activity) []*model.Activity {
	out := make([]*model.Activity, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func sortedByOpen(in []*model.SimulatedPosition) []*model.SimulatedPosition {
	out := make([]*model.SimulatedPosition, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}
