// Package backtest replays historical bars through a strategy and
// measures the outcome.
package backtest

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/marketdata"
	"github.com/tathienbao/volarb/internal/metrics"
	"github.com/tathienbao/volarb/internal/strategy"
	"github.com/tathienbao/volarb/internal/types"
)

// ProgressUpdate carries per-bar state for UI updates.
type ProgressUpdate struct {
	Bar        int
	TotalBars  int
	Timestamp  time.Time
	Equity     decimal.Decimal
	Trades     int
	LastSignal string
}

// ProgressCallback is called after every processed timestamp.
type ProgressCallback func(update ProgressUpdate)

// Engine replays registered bars through a strategy clone on a shared
// clock and produces a Result. Multiple symbols run interleaved on the
// sorted union of their timestamps.
type Engine struct {
	logger       *slog.Logger
	data         map[string][]types.Bar
	progressCb   ProgressCallback
	sweepBuilder SweepBuilder
	recorder     *metrics.Recorder
}

// New creates an engine. A nil logger falls back to the default.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		logger: logger,
		data:   make(map[string][]types.Bar),
	}
}

// AddBars registers bars under a symbol, sorted by timestamp. Empty
// input is rejected.
func (e *Engine) AddBars(symbol string, bars []types.Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("%w: no bars for %s", types.ErrValidation, symbol)
	}
	sorted := append([]types.Bar(nil), bars...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	e.data[symbol] = sorted
	return nil
}

// LoadCSV loads bars for a symbol from a CSV file, keeping only the rows
// whose symbol column matches.
func (e *Engine) LoadCSV(symbol, path string) error {
	bars, err := marketdata.LoadBars(path)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	var matched []types.Bar
	for _, b := range bars {
		if b.Symbol == symbol {
			matched = append(matched, b)
		}
	}
	if len(matched) == 0 {
		return fmt.Errorf("%w: %s has no rows for %s", types.ErrMissingData, path, symbol)
	}
	return e.AddBars(symbol, matched)
}

// HasData reports whether bars are registered for a symbol.
func (e *Engine) HasData(symbol string) bool {
	_, ok := e.data[symbol]
	return ok
}

// Symbols returns the registered symbols in sorted order.
func (e *Engine) Symbols() []string {
	symbols := make([]string, 0, len(e.data))
	for s := range e.data {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

// ClearData drops all registered bars.
func (e *Engine) ClearData() {
	e.data = make(map[string][]types.Bar)
}

// SetProgressCallback sets a callback invoked after every timestamp.
func (e *Engine) SetProgressCallback(cb ProgressCallback) {
	e.progressCb = cb
}

// SetRecorder attaches a metrics recorder. A nil recorder disables
// instrumentation.
func (e *Engine) SetRecorder(rec *metrics.Recorder) {
	e.recorder = rec
}

// Run replays the registered bars through a clone of the strategy. Each
// symbol's bars are restricted to [Start, End]; the clock is the sorted
// union of the remaining timestamps. After each timestamp the portfolio
// is marked to market against the latest bar per symbol.
func (e *Engine) Run(strat strategy.Strategy, params Params) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	for _, symbol := range params.Symbols {
		if !e.HasData(symbol) {
			return nil, fmt.Errorf("%w: no bars loaded for %s", types.ErrMissingData, symbol)
		}
	}

	timer := metrics.NewTimer()
	clone := strat.Clone()
	clone.Initialize(params.InitialCapital)

	window := make(map[string][]types.Bar, len(params.Symbols))
	stamps := make(map[int64]time.Time)
	for _, symbol := range params.Symbols {
		var bars []types.Bar
		for _, b := range e.data[symbol] {
			if b.Timestamp.Before(params.Start) || b.Timestamp.After(params.End) {
				continue
			}
			bars = append(bars, b)
			stamps[b.Timestamp.UnixNano()] = b.Timestamp
		}
		window[symbol] = bars
	}

	clock := make([]int64, 0, len(stamps))
	for ns := range stamps {
		clock = append(clock, ns)
	}
	sort.Slice(clock, func(i, j int) bool { return clock[i] < clock[j] })

	symbols := append([]string(nil), params.Symbols...)
	sort.Strings(symbols)

	result := NewResult(params)
	tracker := NewHighWater(params.InitialCapital)
	cursors := make(map[string]int, len(symbols))
	latest := make(map[string]types.Bar, len(symbols))
	curve := make([]types.EquityPoint, 0, len(clock))
	tradeCount := 0
	var lastSignal string

	for i, ns := range clock {
		ts := stamps[ns]
		for _, symbol := range symbols {
			bars := window[symbol]
			for cursors[symbol] < len(bars) && bars[cursors[symbol]].Timestamp.Equal(ts) {
				bar := bars[cursors[symbol]]
				cursors[symbol]++
				latest[symbol] = bar

				trades, err := clone.ProcessBar(bar)
				if err != nil {
					if e.recorder != nil {
						e.recorder.RecordRunFailed()
					}
					return nil, fmt.Errorf("process bar %s %s: %w", symbol, ts.Format("2006-01-02"), err)
				}
				if e.recorder != nil {
					e.recorder.RecordBar()
				}
				for _, trade := range trades {
					if params.IncludeTransactionCosts {
						trade.TransactionCost = transactionCost(trade, params)
					}
					result.AddTrade(trade)
					tradeCount++
					lastSignal = fmt.Sprintf("%s %s", trade.Action, trade.InstrumentID)
					if e.recorder != nil {
						e.recorder.RecordTrade(trade)
					}
				}
			}
		}

		equity, err := clone.Portfolio().MarkToMarket(latest)
		if err != nil {
			if e.recorder != nil {
				e.recorder.RecordRunFailed()
			}
			return nil, fmt.Errorf("mark to market at %s: %w", ts.Format("2006-01-02"), err)
		}
		tracker.Update(equity)
		curve = append(curve, types.EquityPoint{
			Timestamp: ts,
			Equity:    equity,
			Drawdown:  tracker.Drawdown(),
		})
		if e.recorder != nil {
			e.recorder.RecordEquity(equity, tracker.Drawdown())
		}

		if e.progressCb != nil {
			e.progressCb(ProgressUpdate{
				Bar:        i + 1,
				TotalBars:  len(clock),
				Timestamp:  ts,
				Equity:     equity,
				Trades:     tradeCount,
				LastSignal: lastSignal,
			})
		}
	}

	result.SetEquityCurve(curve)
	if e.recorder != nil {
		e.recorder.RecordRunCompleted(timer.Elapsed())
	}
	e.logger.Info("backtest complete",
		"strategy", clone.Name(),
		"bars", len(clock),
		"trades", tradeCount)
	return result, nil
}

// transactionCost computes the flat-plus-percentage cost of a trade.
func transactionCost(trade types.Trade, params Params) decimal.Decimal {
	return params.CostPerTrade.Add(trade.Value().Abs().Mul(params.CostPercent))
}
