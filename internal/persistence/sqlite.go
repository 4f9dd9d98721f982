package persistence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/types"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens (or creates) the database at path.
func NewSQLiteRepository(path string) (*SQLiteRepository, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	repo := &SQLiteRepository{db: db}

	// Run migrations
	if err := repo.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return repo, nil
}

// Migrate runs database migrations.
func (r *SQLiteRepository) Migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			window_start DATETIME NOT NULL,
			window_end DATETIME NOT NULL,
			initial_capital TEXT NOT NULL,
			final_equity TEXT NOT NULL,
			total_return REAL NOT NULL DEFAULT 0,
			sharpe_ratio REAL NOT NULL DEFAULT 0,
			max_drawdown REAL NOT NULL DEFAULT 0,
			total_trades INTEGER NOT NULL DEFAULT 0,
			win_rate REAL NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_symbol ON runs(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id TEXT PRIMARY KEY,
			run_id TEXT NOT NULL,
			instrument_id TEXT NOT NULL,
			action INTEGER NOT NULL,
			quantity TEXT NOT NULL,
			price TEXT NOT NULL,
			transaction_cost TEXT NOT NULL DEFAULT '0',
			timestamp DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run_id ON trades(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_timestamp ON trades(timestamp)`,

		`CREATE TABLE IF NOT EXISTS equity_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			timestamp DATETIME NOT NULL,
			equity TEXT NOT NULL,
			drawdown TEXT NOT NULL DEFAULT '0',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_points_run_id ON equity_points(run_id)`,
	}

	for _, migration := range migrations {
		if _, err := r.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("execute migration: %w", err)
		}
	}

	return nil
}

// SaveRun persists a run record.
func (r *SQLiteRepository) SaveRun(ctx context.Context, run RunRecord) error {
	query := `INSERT OR REPLACE INTO runs
		(id, symbol, started_at, window_start, window_end, initial_capital, final_equity, total_return, sharpe_ratio, max_drawdown, total_trades, win_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Symbol,
		run.StartedAt,
		run.Start,
		run.End,
		run.InitialCapital.String(),
		run.FinalEquity.String(),
		run.TotalReturn,
		run.SharpeRatio,
		run.MaxDrawdown,
		run.TotalTrades,
		run.WinRate,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	return nil
}

// GetRun returns a run by ID, or nil when no such run exists.
func (r *SQLiteRepository) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	query := `SELECT id, symbol, started_at, window_start, window_end, initial_capital, final_equity, total_return, sharpe_ratio, max_drawdown, total_trades, win_rate, created_at
		FROM runs WHERE id = ?`

	var run RunRecord
	var capital, equity string

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.Symbol,
		&run.StartedAt,
		&run.Start,
		&run.End,
		&capital,
		&equity,
		&run.TotalReturn,
		&run.SharpeRatio,
		&run.MaxDrawdown,
		&run.TotalTrades,
		&run.WinRate,
		&run.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query run: %w", err)
	}

	run.InitialCapital, _ = decimal.NewFromString(capital)
	run.FinalEquity, _ = decimal.NewFromString(equity)

	return &run, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, symbol, started_at, window_start, window_end, initial_capital, final_equity, total_return, sharpe_ratio, max_drawdown, total_trades, win_rate, created_at
		FROM runs ORDER BY started_at DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var capital, equity string

		if err := rows.Scan(&run.ID, &run.Symbol, &run.StartedAt, &run.Start, &run.End, &capital, &equity, &run.TotalReturn, &run.SharpeRatio, &run.MaxDrawdown, &run.TotalTrades, &run.WinRate, &run.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		run.InitialCapital, _ = decimal.NewFromString(capital)
		run.FinalEquity, _ = decimal.NewFromString(equity)

		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// SaveTrades persists the trades of a run in one transaction.
func (r *SQLiteRepository) SaveTrades(ctx context.Context, runID string, trades []types.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `INSERT OR REPLACE INTO trades
		(id, run_id, instrument_id, action, quantity, price, transaction_cost, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, trade := range trades {
		_, err := stmt.ExecContext(ctx,
			trade.ID,
			runID,
			trade.InstrumentID,
			trade.Action,
			trade.Quantity.String(),
			trade.Price.String(),
			trade.TransactionCost.String(),
			trade.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// GetTrades returns the trades of a run in execution order.
func (r *SQLiteRepository) GetTrades(ctx context.Context, runID string) ([]types.Trade, error) {
	query := `SELECT id, instrument_id, action, quantity, price, transaction_cost, timestamp
		FROM trades WHERE run_id = ? ORDER BY timestamp, rowid`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return r.scanTrades(rows)
}

func (r *SQLiteRepository) scanTrades(rows *sql.Rows) ([]types.Trade, error) {
	var trades []types.Trade
	for rows.Next() {
		var t types.Trade
		var action int
		var quantity, price, cost string

		if err := rows.Scan(&t.ID, &t.InstrumentID, &action, &quantity, &price, &cost, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		t.Action = types.Action(action)
		t.Quantity, _ = decimal.NewFromString(quantity)
		t.Price, _ = decimal.NewFromString(price)
		t.TransactionCost, _ = decimal.NewFromString(cost)

		trades = append(trades, t)
	}

	return trades, rows.Err()
}

// SaveEquityCurve persists the equity curve of a run, replacing any
// previously stored points.
func (r *SQLiteRepository) SaveEquityCurve(ctx context.Context, runID string, points []types.EquityPoint) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM equity_points WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("clear equity points: %w", err)
	}

	query := `INSERT INTO equity_points (run_id, timestamp, equity, drawdown) VALUES (?, ?, ?, ?)`

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, point := range points {
		_, err := stmt.ExecContext(ctx,
			runID,
			point.Timestamp,
			point.Equity.String(),
			point.Drawdown.String(),
		)
		if err != nil {
			return fmt.Errorf("insert equity point: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

// GetEquityCurve returns the equity curve of a run in time order.
func (r *SQLiteRepository) GetEquityCurve(ctx context.Context, runID string) ([]types.EquityPoint, error) {
	query := `SELECT timestamp, equity, drawdown
		FROM equity_points WHERE run_id = ? ORDER BY timestamp, id`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("query equity points: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var points []types.EquityPoint
	for rows.Next() {
		var p types.EquityPoint
		var equity, drawdown string

		if err := rows.Scan(&p.Timestamp, &equity, &drawdown); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}

		p.Equity, _ = decimal.NewFromString(equity)
		p.Drawdown, _ = decimal.NewFromString(drawdown)

		points = append(points, p)
	}

	return points, rows.Err()
}

// Close closes the database connection.
func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}
