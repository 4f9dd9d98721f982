package backtest

import (
	"github.com/tathienbao/volarb/internal/types"
)

// Result collects the output of a backtest run: the trade ledger, the
// equity curve and lazily computed performance metrics. Mutating the
// ledger or the curve marks the metrics cache stale; the next metric
// access recomputes it.
type Result struct {
	params Params
	trades []types.Trade
	curve  []types.EquityPoint

	metrics map[string]float64
	stale   bool
}

// NewResult creates an empty result for the given parameters.
func NewResult(params Params) *Result {
	return &Result{params: params, stale: true}
}

// Params returns the parameters the run was configured with.
func (r *Result) Params() Params { return r.params }

// SetTrades replaces the trade ledger.
func (r *Result) SetTrades(trades []types.Trade) {
	r.trades = append([]types.Trade(nil), trades...)
	r.stale = true
}

// AddTrade appends one trade to the ledger.
func (r *Result) AddTrade(trade types.Trade) {
	r.trades = append(r.trades, trade)
	r.stale = true
}

// SetEquityCurve replaces the equity curve.
func (r *Result) SetEquityCurve(curve []types.EquityPoint) {
	r.curve = append([]types.EquityPoint(nil), curve...)
	r.stale = true
}

// Trades returns a copy of the trade ledger.
func (r *Result) Trades() []types.Trade {
	return append([]types.Trade(nil), r.trades...)
}

// EquityCurve returns a copy of the equity curve.
func (r *Result) EquityCurve() []types.EquityPoint {
	return append([]types.EquityPoint(nil), r.curve...)
}

// Metric returns a computed metric by key, or 0 when the key is absent.
func (r *Result) Metric(key string) float64 {
	r.computeMetrics()
	return r.metrics[key]
}

// HasMetric reports whether a metric key was computed.
func (r *Result) HasMetric(key string) bool {
	r.computeMetrics()
	_, ok := r.metrics[key]
	return ok
}

// Metrics returns a copy of all computed metrics.
func (r *Result) Metrics() map[string]float64 {
	r.computeMetrics()
	out := make(map[string]float64, len(r.metrics))
	for k, v := range r.metrics {
		out[k] = v
	}
	return out
}

// SharpeRatio returns the Sharpe ratio of the equity returns.
func (r *Result) SharpeRatio() float64 { return r.Metric(MetricSharpeRatio) }

// SortinoRatio returns the Sortino ratio of the equity returns.
func (r *Result) SortinoRatio() float64 { return r.Metric(MetricSortinoRatio) }

// MaxDrawdown returns the deepest peak-to-trough loss as a ratio.
func (r *Result) MaxDrawdown() float64 { return r.Metric(MetricMaxDrawdown) }

// TotalReturn returns the overall return of the equity curve.
func (r *Result) TotalReturn() float64 { return r.Metric(MetricTotalReturn) }

// AnnualizedReturn returns the total return scaled to a yearly rate.
func (r *Result) AnnualizedReturn() float64 { return r.Metric(MetricAnnualizedReturn) }

// AnnualizedVolatility returns the annualized standard deviation of the
// equity returns.
func (r *Result) AnnualizedVolatility() float64 { return r.Metric(MetricAnnualizedVolatility) }

// WinRate returns the share of trades with a positive net value.
func (r *Result) WinRate() float64 { return r.Metric(MetricWinRate) }

// ProfitFactor returns gross profit over gross loss.
func (r *Result) ProfitFactor() float64 { return r.Metric(MetricProfitFactor) }
