// Package persistence stores backtest results in SQLite.
package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/backtest"
	"github.com/tathienbao/volarb/internal/types"
)

// Repository defines the interface for result storage.
type Repository interface {
	// Run operations
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]RunRecord, error)

	// Trade operations
	SaveTrades(ctx context.Context, runID string, trades []types.Trade) error
	GetTrades(ctx context.Context, runID string) ([]types.Trade, error)

	// Equity curve operations
	SaveEquityCurve(ctx context.Context, runID string, points []types.EquityPoint) error
	GetEquityCurve(ctx context.Context, runID string) ([]types.EquityPoint, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// RunRecord represents a persisted backtest run.
type RunRecord struct {
	ID             string
	Symbol         string
	StartedAt      time.Time
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
	FinalEquity    decimal.Decimal
	TotalReturn    float64
	SharpeRatio    float64
	MaxDrawdown    float64
	TotalTrades    int
	WinRate        float64
	CreatedAt      time.Time
}

// NewRunRecord builds a run record from a finished backtest.
func NewRunRecord(symbol string, result *backtest.Result) RunRecord {
	params := result.Params()

	rec := RunRecord{
		ID:             uuid.New().String(),
		Symbol:         symbol,
		StartedAt:      time.Now().UTC(),
		Start:          params.Start,
		End:            params.End,
		InitialCapital: params.InitialCapital,
		FinalEquity:    params.InitialCapital,
		TotalReturn:    result.TotalReturn(),
		SharpeRatio:    result.SharpeRatio(),
		MaxDrawdown:    result.MaxDrawdown(),
		TotalTrades:    len(result.Trades()),
		WinRate:        result.WinRate(),
	}

	if curve := result.EquityCurve(); len(curve) > 0 {
		rec.FinalEquity = curve[len(curve)-1].Equity
	}

	return rec
}
