package store

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"WhaleSentinel/internal/model"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists all core state to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			wallet             TEXT PRIMARY KEY,
			label              TEXT,
			category           TEXT NOT NULL,
			tier               TEXT NOT NULL,
			min_trade_usd      REAL NOT NULL,
			frequency_override INTEGER NOT NULL DEFAULT 0,
			copy_enabled       INTEGER NOT NULL DEFAULT 0,
			copy_investment    REAL NOT NULL DEFAULT 0,
			copy_partial_pct   REAL NOT NULL DEFAULT 100,
			updated_at         INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS activities (
			id            TEXT PRIMARY KEY,
			wallet        TEXT NOT NULL,
			side          TEXT NOT NULL,
			condition_id  TEXT NOT NULL,
			outcome_index INTEGER NOT NULL,
			outcome       TEXT,
			title         TEXT,
			size          REAL NOT NULL,
			price         REAL NOT NULL,
			usd_value     REAL NOT NULL,
			status        TEXT NOT NULL,
			realized_pnl  REAL,
			percent_pnl   REAL,
			exit_price    REAL,
			notify_handle TEXT,
			tx_hash       TEXT NOT NULL,
			timestamp     INTEGER NOT NULL,
			created_at    INTEGER NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_activity_tx ON activities(wallet, tx_hash)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_key ON activities(wallet, condition_id, outcome_index, status)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_created ON activities(created_at)`,

		`CREATE TABLE IF NOT EXISTS frequency_states (
			wallet     TEXT PRIMARY KEY,
			remaining  INTEGER NOT NULL,
			reset_at   INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS simulated_positions (
			id               TEXT PRIMARY KEY,
			wallet           TEXT NOT NULL,
			condition_id     TEXT NOT NULL,
			outcome_index    INTEGER NOT NULL,
			outcome          TEXT,
			title            TEXT,
			activity_id      TEXT NOT NULL,
			entry_price      REAL NOT NULL,
			shares           REAL NOT NULL,
			remaining_shares REAL NOT NULL,
			investment_usd   REAL NOT NULL,
			status           TEXT NOT NULL,
			exit_price       REAL,
			realized_pnl     REAL NOT NULL DEFAULT 0,
			opened_at        INTEGER NOT NULL,
			closed_at        INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_position_key ON simulated_positions(wallet, condition_id, outcome_index, status)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// --- Accounts ---

func (s *SQLiteStore) UpsertAccount(a *model.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO accounts
		(wallet, label, category, tier, min_trade_usd, frequency_override,
		 copy_enabled, copy_investment, copy_partial_pct, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(wallet) DO UPDATE SET
			label=excluded.label, category=excluded.category, tier=excluded.tier,
			min_trade_usd=excluded.min_trade_usd, frequency_override=excluded.frequency_override,
			copy_enabled=excluded.copy_enabled, copy_investment=excluded.copy_investment,
			copy_partial_pct=excluded.copy_partial_pct, updated_at=excluded.updated_at`,
		a.Wallet, a.Label, string(a.Category), string(a.Tier), a.MinTradeUSD, a.FrequencyOverride,
		boolToInt(a.Copy.Enabled), a.Copy.InvestmentUSD, a.Copy.PartialClosePct, time.Now().Unix(),
	)
	return err
}

func (s *SQLiteStore) Account(wallet string) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT wallet, label, category, tier, min_trade_usd, frequency_override,
		copy_enabled, copy_investment, copy_partial_pct, updated_at
		FROM accounts WHERE wallet = ?`, wallet)
	return scanAccount(row)
}

func (s *SQLiteStore) Accounts() ([]*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT wallet, label, category, tier, min_trade_usd, frequency_override,
		copy_enabled, copy_investment, copy_partial_pct, updated_at
		FROM accounts ORDER BY wallet`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	var a model.Account
	var category, tier string
	var copyEnabled int
	var updatedAt int64
	err := row.Scan(&a.Wallet, &a.Label, &category, &tier, &a.MinTradeUSD, &a.FrequencyOverride,
		&copyEnabled, &a.Copy.InvestmentUSD, &a.Copy.PartialClosePct, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Category = model.AccountCategory(category)
	a.Tier = model.SubscriptionTier(tier)
	a.Copy.Enabled = copyEnabled != 0
	a.UpdatedAt = time.Unix(updatedAt, 0)
	return &a, nil
}

// --- Activities ---

const activityCols = `id, wallet, side, condition_id, outcome_index, outcome, title,
	size, price, usd_value, status, realized_pnl, percent_pnl, exit_price,
	notify_handle, tx_hash, timestamp, created_at`

func (s *SQLiteStore) InsertActivity(a *model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO activities (`+activityCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Wallet, string(a.Side), a.ConditionID, a.OutcomeIndex, a.Outcome, a.Title,
		a.Size, a.Price, a.USDValue, string(a.Status),
		nullFloat(a.RealizedPnl), nullFloat(a.PercentPnl), nullFloat(a.ExitPrice),
		a.NotifyHandle, a.TransactionHash, a.Timestamp.Unix(), a.CreatedAt.Unix(),
	)
	return err
}

func (s *SQLiteStore) UpdateActivity(a *model.Activity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE activities SET
		status = ?, realized_pnl = ?, percent_pnl = ?, exit_price = ?, notify_handle = ?
		WHERE id = ?`,
		string(a.Status), nullFloat(a.RealizedPnl), nullFloat(a.PercentPnl),
		nullFloat(a.ExitPrice), a.NotifyHandle, a.ID,
	)
	return err
}

func (s *SQLiteStore) ActivityByTxHash(wallet, txHash string) (*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+activityCols+` FROM activities
		WHERE wallet = ? AND tx_hash = ?`, wallet, txHash)
	return scanActivity(row)
}

func (s *SQLiteStore) OpenRoot(key model.PositionKey) (*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT `+activityCols+` FROM activities
		WHERE wallet = ? AND condition_id = ? AND outcome_index = ? AND status = ?
		ORDER BY timestamp LIMIT 1`,
		key.Wallet, key.ConditionID, key.OutcomeIndex, string(model.StatusOpen))
	return scanActivity(row)
}

func (s *SQLiteStore) ActivitiesForKey(key model.PositionKey, statuses ...model.TradeStatus) ([]*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT ` + activityCols + ` FROM activities
		WHERE wallet = ? AND condition_id = ? AND outcome_index = ?`
	args := []any{key.Wallet, key.ConditionID, key.OutcomeIndex}
	query, args = appendStatusClause(query, args, statuses)
	query += ` ORDER BY timestamp`

	return s.queryActivities(query, args...)
}

func (s *SQLiteStore) WalletActivities(wallet string, statuses ...model.TradeStatus) ([]*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `SELECT ` + activityCols + ` FROM activities WHERE wallet = ?`
	args := []any{wallet}
	query, args = appendStatusClause(query, args, statuses)
	query += ` ORDER BY timestamp`

	return s.queryActivities(query, args...)
}

func (s *SQLiteStore) ActivitiesSince(t time.Time) ([]*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryActivities(`SELECT `+activityCols+` FROM activities
		WHERE created_at >= ? ORDER BY timestamp`, t.Unix())
}

func appendStatusClause(query string, args []any, statuses []model.TradeStatus) (string, []any) {
	if len(statuses) == 0 {
		return query, args
	}
	placeholders := make([]string, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	return query + ` AND status IN (` + strings.Join(placeholders, ",") + `)`, args
}

func (s *SQLiteStore) queryActivities(query string, args ...any) ([]*model.Activity, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanActivity(row rowScanner) (*model.Activity, error) {
	var a model.Activity
	var side, status string
	var realized, percent, exit sql.NullFloat64
	var ts, createdAt int64
	err := row.Scan(&a.ID, &a.Wallet, &side, &a.ConditionID, &a.OutcomeIndex, &a.Outcome, &a.Title,
		&a.Size, &a.Price, &a.USDValue, &status, &realized, &percent, &exit,
		&a.NotifyHandle, &a.TransactionHash, &ts, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Side = model.TradeSide(side)
	a.Status = model.TradeStatus(status)
	a.RealizedPnl = fromNullFloat(realized)
	a.PercentPnl = fromNullFloat(percent)
	a.ExitPrice = fromNullFloat(exit)
	a.Timestamp = time.Unix(ts, 0)
	a.CreatedAt = time.Unix(createdAt, 0)
	return &a, nil
}

// --- Frequency ---

func (s *SQLiteStore) Frequency(wallet string) (*model.FrequencyState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`SELECT wallet, remaining, reset_at, updated_at
		FROM frequency_states WHERE wallet = ?`, wallet)

	var fs model.FrequencyState
	var resetAt, updatedAt int64
	err := row.Scan(&fs.Wallet, &fs.Remaining, &resetAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	fs.ResetAt = time.Unix(resetAt, 0)
	fs.UpdatedAt = time.Unix(updatedAt, 0)
	return &fs, nil
}

func (s *SQLiteStore) SaveFrequency(fs *model.FrequencyState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO frequency_states (wallet, remaining, reset_at, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT(wallet) DO UPDATE SET
			remaining=excluded.remaining, reset_at=excluded.reset_at, updated_at=excluded.updated_at`,
		fs.Wallet, fs.Remaining, fs.ResetAt.Unix(), time.Now().Unix(),
	)
	return err
}

// --- Simulated positions ---

const positionCols = `id, wallet, condition_id, outcome_index, outcome, title, activity_id,
	entry_price, shares, remaining_shares, investment_usd, status, exit_price,
	realized_pnl, opened_at, closed_at`

func (s *SQLiteStore) InsertPosition(p *model.SimulatedPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO simulated_positions (`+positionCols+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Wallet, p.ConditionID, p.OutcomeIndex, p.Outcome, p.Title, p.ActivityID,
		p.EntryPrice, p.Shares, p.RemainingShares, p.InvestmentUSD, string(p.Status),
		nullFloat(p.ExitPrice), p.RealizedPnl, p.OpenedAt.Unix(), nullTime(p.ClosedAt),
	)
	return err
}

func (s *SQLiteStore) UpdatePosition(p *model.SimulatedPosition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE simulated_positions SET
		remaining_shares = ?, status = ?, exit_price = ?, realized_pnl = ?, closed_at = ?
		WHERE id = ?`,
		p.RemainingShares, string(p.Status), nullFloat(p.ExitPrice),
		p.RealizedPnl, nullTime(p.ClosedAt), p.ID,
	)
	return err
}

func (s *SQLiteStore) OpenPositions(key model.PositionKey) ([]*model.SimulatedPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryPositions(`SELECT `+positionCols+` FROM simulated_positions
		WHERE wallet = ? AND condition_id = ? AND outcome_index = ? AND status IN (?,?)
		ORDER BY opened_at`,
		key.Wallet, key.ConditionID, key.OutcomeIndex,
		string(model.PositionOpen), string(model.PositionPartiallyClosed))
}

func (s *SQLiteStore) WalletPositions(wallet string) ([]*model.SimulatedPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryPositions(`SELECT `+positionCols+` FROM simulated_positions
		WHERE wallet = ? ORDER BY opened_at`, wallet)
}

func (s *SQLiteStore) AllOpenPositions() ([]*model.SimulatedPosition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.queryPositions(`SELECT `+positionCols+` FROM simulated_positions
		WHERE status IN (?,?) ORDER BY opened_at`,
		string(model.PositionOpen), string(model.PositionPartiallyClosed))
}

func (s *SQLiteStore) queryPositions(query string, args ...any) ([]*model.SimulatedPosition, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.SimulatedPosition
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPosition(row rowScanner) (*model.SimulatedPosition, error) {
	var p model.SimulatedPosition
	var status string
	var exit sql.NullFloat64
	var openedAt int64
	var closedAt sql.NullInt64
	err := row.Scan(&p.ID, &p.Wallet, &p.ConditionID, &p.OutcomeIndex, &p.Outcome, &p.Title,
		&p.ActivityID, &p.EntryPrice, &p.Shares, &p.RemainingShares, &p.InvestmentUSD,
		&status, &exit, &p.RealizedPnl, &openedAt, &closedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Status = model.PositionStatus(status)
	p.ExitPrice = fromNullFloat(exit)
	p.OpenedAt = time.Unix(openedAt, 0)
	if closedAt.Valid {
		t := time.Unix(closedAt.Int64, 0)
		p.ClosedAt = &t
	}
	return &p, nil
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}

// --- helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func fromNullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}
