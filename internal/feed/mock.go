package feed

import (
	"context"
	"sync"

	"WhaleSentinel/internal/model"
)

// MockSource returns controllable fixed data for development and testing.
type MockSource struct {
	mu        sync.Mutex
	trades    map[string][]model.RawTrade
	open      map[string][]OpenPosition
	closed    map[string][]ClosedPosition
	tradesErr map[string]error
}

// NewMockSource creates an empty MockSource.
func NewMockSource() *MockSource {
	return &MockSource{
		trades:    make(map[string][]model.RawTrade),
		open:      make(map[string][]OpenPosition),
		closed:    make(map[string][]ClosedPosition),
		tradesErr: make(map[string]error),
	}
}

func (m *MockSource) Name() string { return "mock" }

// SetTrades replaces the trades returned for a wallet.
func (m *MockSource) SetTrades(wallet string, trades []model.RawTrade) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades[wallet] = trades
}

// SetOpenPositions replaces the open-position snapshot for a wallet.
func (m *MockSource) SetOpenPositions(wallet string, positions []OpenPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.open[wallet] = positions
}

// SetClosedPositions replaces the closed-position snapshot for a wallet.
func (m *MockSource) SetClosedPositions(wallet string, positions []ClosedPosition) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed[wallet] = positions
}

// FailTrades makes ListRecentTrades return err for a wallet (nil clears).
func (m *MockSource) FailTrades(wallet string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.tradesErr, wallet)
		return
	}
	m.tradesErr[wallet] = err
}

func (m *MockSource) ListRecentTrades(_ context.Context, wallet string, _ int) ([]model.RawTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.tradesErr[wallet]; err != nil {
		return nil, err
	}
	out := make([]model.RawTrade, len(m.trades[wallet]))
	copy(out, m.trades[wallet])
	return out, nil
}

func (m *MockSource) ListOpenPositions(_ context.Context, wallet string, conditionIDs []string) ([]OpenPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OpenPosition
	for _, p := range m.open[wallet] {
		if len(conditionIDs) == 0 || containsString(conditionIDs, p.ConditionID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *MockSource) ListClosedPositions(_ context.Context, wallet string, conditionIDs []string) ([]ClosedPosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ClosedPosition
	for _, p := range m.closed[wallet] {
		if len(conditionIDs) == 0 || containsString(conditionIDs, p.ConditionID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
