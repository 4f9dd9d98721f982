package backtest

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/types"
)

func TestResult_MetricsKnownCurve(t *testing.T) {
	// Returns along the curve: +10%, -10%, +10%.
	res := NewResult(DefaultParams())
	res.SetEquityCurve(curveFrom(100, 110, 99, 108.9))

	checks := []struct {
		key  string
		want float64
	}{
		{MetricSharpeRatio, 0.2886751345948129},
		{MetricSortinoRatio, 1.0 / 3.0},
		{MetricMaxDrawdown, 0.1},
		{MetricTotalReturn, 0.089},
		{MetricAnnualizedVolatility, 0.11547005383792516 * math.Sqrt(252)},
	}
	for _, c := range checks {
		if got := res.Metric(c.key); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("%s = %v, want %v", c.key, got, c.want)
		}
	}

	// Three days of curve annualize to an enormous positive rate; only
	// the sign is worth pinning.
	if res.AnnualizedReturn() <= 0 {
		t.Errorf("AnnualizedReturn = %v, want > 0", res.AnnualizedReturn())
	}

	for _, key := range []string{
		MetricSharpeRatio, MetricSortinoRatio, MetricMaxDrawdown,
		MetricTotalReturn, MetricAnnualizedReturn,
		MetricAnnualizedVolatility, MetricWinRate, MetricProfitFactor,
	} {
		if !res.HasMetric(key) {
			t.Errorf("missing metric %s", key)
		}
	}
	if len(res.Metrics()) != 8 {
		t.Errorf("metric count = %d, want 8", len(res.Metrics()))
	}
}

func TestResult_TradeMetrics(t *testing.T) {
	res := NewResult(DefaultParams())
	res.SetEquityCurve(curveFrom(100, 101))
	res.SetTrades([]types.Trade{
		mustTrade(t, types.Sell, 10), // +10
		mustTrade(t, types.Buy, 5),   // -5
		mustTrade(t, types.Sell, 2),  // +2
	})

	if got := res.WinRate(); math.Abs(got-2.0/3.0) > 1e-9 {
		t.Errorf("WinRate = %v, want 2/3", got)
	}
	if got := res.ProfitFactor(); math.Abs(got-2.4) > 1e-9 {
		t.Errorf("ProfitFactor = %v, want 2.4", got)
	}
}

func TestResult_ProfitFactorEdges(t *testing.T) {
	res := NewResult(DefaultParams())
	res.SetEquityCurve(curveFrom(100, 101))
	res.SetTrades([]types.Trade{
		mustTrade(t, types.Sell, 10),
		mustTrade(t, types.Sell, 5),
	})
	if !math.IsInf(res.ProfitFactor(), 1) {
		t.Errorf("ProfitFactor with no losses = %v, want +Inf", res.ProfitFactor())
	}

	empty := NewResult(DefaultParams())
	empty.SetEquityCurve(curveFrom(100, 101))
	if empty.ProfitFactor() != 0 {
		t.Errorf("ProfitFactor with no trades = %v, want 0", empty.ProfitFactor())
	}
	if empty.WinRate() != 0 {
		t.Errorf("WinRate with no trades = %v, want 0", empty.WinRate())
	}
}

func TestResult_EmptyCurveNoMetrics(t *testing.T) {
	res := NewResult(DefaultParams())
	res.AddTrade(mustTrade(t, types.Sell, 10))

	if len(res.Metrics()) != 0 {
		t.Errorf("metrics on empty curve = %v, want none", res.Metrics())
	}
	if res.HasMetric(MetricSharpeRatio) {
		t.Error("HasMetric should be false on an empty curve")
	}
	if res.Metric(MetricSharpeRatio) != 0 {
		t.Errorf("absent metric = %v, want 0", res.Metric(MetricSharpeRatio))
	}
}

func TestResult_CacheInvalidation(t *testing.T) {
	res := NewResult(DefaultParams())
	res.SetEquityCurve(curveFrom(100, 110))
	if got := res.TotalReturn(); got != 0.1 {
		t.Fatalf("TotalReturn = %v, want 0.1", got)
	}

	// Replacing the curve invalidates the cache.
	res.SetEquityCurve(curveFrom(100, 120))
	if got := res.TotalReturn(); got != 0.2 {
		t.Errorf("TotalReturn after update = %v, want 0.2", got)
	}

	// So does appending a trade.
	if res.WinRate() != 0 {
		t.Fatalf("WinRate before trade = %v, want 0", res.WinRate())
	}
	res.AddTrade(mustTrade(t, types.Sell, 10))
	if res.WinRate() != 1 {
		t.Errorf("WinRate after trade = %v, want 1", res.WinRate())
	}
}

func TestResult_DrawdownSeries(t *testing.T) {
	res := NewResult(DefaultParams())
	res.SetEquityCurve(curveFrom(100, 110, 99, 108.9, 121))

	dd := res.DrawdownSeries()
	if dd.Len() != 5 {
		t.Fatalf("Len = %d, want 5", dd.Len())
	}
	values := dd.Values()
	if values[0] != 0 || values[1] != 0 {
		t.Errorf("drawdown at peaks = %v/%v, want 0/0", values[0], values[1])
	}
	if math.Abs(values[2]-(-0.1)) > 1e-9 {
		t.Errorf("trough drawdown = %v, want -0.1", values[2])
	}
	if values[4] != 0 {
		t.Errorf("drawdown at new peak = %v, want 0", values[4])
	}
	for _, v := range values {
		if v > 0 {
			t.Errorf("drawdown %v above zero", v)
		}
	}
}

func TestResult_DrawdownPeriods(t *testing.T) {
	res := NewResult(DefaultParams())
	res.SetEquityCurve(curveFrom(100, 110, 99, 108.9, 121))

	periods := res.DrawdownPeriods()
	if len(periods) != 1 {
		t.Fatalf("periods = %d, want 1", len(periods))
	}
	p := periods[0]
	if !p.Start.Equal(day(2)) {
		t.Errorf("Start = %v, want %v", p.Start, day(2))
	}
	if !p.End.Equal(day(4)) {
		t.Errorf("End = %v, want recovery at %v", p.End, day(4))
	}
	if math.Abs(p.Depth-(-0.1)) > 1e-9 {
		t.Errorf("Depth = %v, want -0.1", p.Depth)
	}

	// Still underwater at the end: the period closes on the last point.
	open := NewResult(DefaultParams())
	open.SetEquityCurve(curveFrom(100, 110, 99))
	periods = open.DrawdownPeriods()
	if len(periods) != 1 {
		t.Fatalf("open periods = %d, want 1", len(periods))
	}
	if !periods[0].End.Equal(day(2)) {
		t.Errorf("open period End = %v, want %v", periods[0].End, day(2))
	}

	// A half-percent dip never crosses the entry threshold.
	shallow := NewResult(DefaultParams())
	shallow.SetEquityCurve(curveFrom(100, 99.5, 100.2))
	if got := shallow.DrawdownPeriods(); len(got) != 0 {
		t.Errorf("shallow periods = %d, want 0", len(got))
	}
}

func TestResult_ReturnsByMonthAndYear(t *testing.T) {
	res := NewResult(DefaultParams())
	res.SetEquityCurve([]types.EquityPoint{
		{Timestamp: time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC), Equity: decimal.NewFromInt(100)},
		{Timestamp: time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), Equity: decimal.NewFromInt(105)},
		{Timestamp: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC), Equity: decimal.NewFromInt(110)},
	})

	byMonth := res.ReturnsByMonth()
	if got := byMonth[time.December]; math.Abs(got-0.05) > 1e-9 {
		t.Errorf("December = %v, want 0.05", got)
	}
	if got := byMonth[time.January]; math.Abs(got-5.0/105.0) > 1e-9 {
		t.Errorf("January = %v, want %v", got, 5.0/105.0)
	}

	byYear := res.ReturnsByYear()
	if got := byYear[2025]; math.Abs(got-0.05) > 1e-9 {
		t.Errorf("2025 = %v, want 0.05", got)
	}
	if got := byYear[2026]; math.Abs(got-5.0/105.0) > 1e-9 {
		t.Errorf("2026 = %v, want %v", got, 5.0/105.0)
	}
}

func TestResult_Summary(t *testing.T) {
	res := NewResult(DefaultParams())
	res.SetEquityCurve(curveFrom(100, 110, 99, 108.9))
	res.AddTrade(mustTrade(t, types.Sell, 10))

	summary := res.Summary()
	for _, want := range []string{
		"=== Backtest Results Summary ===",
		"Period:",
		"Total Return:",
		"Sharpe Ratio:",
		"Max Drawdown:",
		"Total Trades:          1",
		"Win Rate:",
	} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}
}

// day returns midnight UTC n days after Jan 5 2026.
func day(n int) time.Time {
	return time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

// curveFrom builds a daily equity curve from the given values.
func curveFrom(values ...float64) []types.EquityPoint {
	curve := make([]types.EquityPoint, len(values))
	for i, v := range values {
		curve[i] = types.EquityPoint{Timestamp: day(i), Equity: decimal.NewFromFloat(v)}
	}
	return curve
}

// mustTrade builds a one-unit trade whose net value is price for sells
// and -price for buys.
func mustTrade(t *testing.T, action types.Action, price int64) types.Trade {
	t.Helper()
	trade, err := types.NewTrade("TEST", action, decimal.NewFromInt(1), decimal.NewFromInt(price), day(0))
	if err != nil {
		t.Fatalf("NewTrade error: %v", err)
	}
	return trade
}
