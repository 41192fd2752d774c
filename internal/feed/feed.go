package feed

import (
	"context"

	"WhaleSentinel/internal/model"
)

// OpenPosition is a snapshot of a wallet's live position for one outcome.
type OpenPosition struct {
	ConditionID  string
	OutcomeIndex int
	Outcome      string
	Title        string
	Size         float64
	AvgPrice     float64
	CurPrice     float64
	PercentPnl   float64
}

// ClosedPosition is a snapshot of a fully closed position as reported
// by the data source.
type ClosedPosition struct {
	ConditionID     string
	OutcomeIndex    int
	Outcome         string
	OppositeOutcome string
	Title           string
	TotalBought     float64
	AvgPrice        float64
	RealizedPnl     float64
}

// Source fetches trades and position snapshots for tracked wallets.
// All three views are eventually-consistent snapshots, never a
// transactional source.
type Source interface {
	ListRecentTrades(ctx context.Context, wallet string, limit int) ([]model.RawTrade, error)
	ListOpenPositions(ctx context.Context, wallet string, conditionIDs []string) ([]OpenPosition, error)
	ListClosedPositions(ctx context.Context, wallet string, conditionIDs []string) ([]ClosedPosition, error)
	Name() string
}
