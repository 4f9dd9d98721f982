package backtest

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/tathienbao/volarb/internal/marketdata"
	"github.com/tathienbao/volarb/internal/types"
)

// Metric keys computed for every run with a non-empty equity curve.
const (
	MetricSharpeRatio          = "sharpe_ratio"
	MetricSortinoRatio         = "sortino_ratio"
	MetricMaxDrawdown          = "max_drawdown"
	MetricTotalReturn          = "total_return"
	MetricAnnualizedReturn     = "annualized_return"
	MetricAnnualizedVolatility = "annualized_volatility"
	MetricWinRate              = "win_rate"
	MetricProfitFactor         = "profit_factor"
)

const tradingDaysPerYear = 252

// computeMetrics fills the metrics cache if it is stale. An empty equity
// curve leaves the cache computed with no keys.
func (r *Result) computeMetrics() {
	if !r.stale && r.metrics != nil {
		return
	}
	r.metrics = make(map[string]float64)
	r.stale = false
	if len(r.curve) == 0 {
		return
	}

	returns := equityReturns(r.curve)

	r.metrics[MetricSharpeRatio] = sharpeRatio(returns)
	r.metrics[MetricSortinoRatio] = sortinoRatio(returns)
	r.metrics[MetricMaxDrawdown] = maxDrawdown(r.curve)
	r.metrics[MetricTotalReturn] = totalReturn(r.curve)
	r.metrics[MetricAnnualizedReturn] = annualizedReturn(r.curve)
	r.metrics[MetricAnnualizedVolatility] = sampleStdDev(returns) * math.Sqrt(tradingDaysPerYear)
	r.metrics[MetricWinRate] = winRate(r.trades)
	r.metrics[MetricProfitFactor] = profitFactor(r.trades)
}

// equityReturns computes the percentage changes along the equity curve.
func equityReturns(curve []types.EquityPoint) []float64 {
	var returns []float64
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity.InexactFloat64()
		if prev == 0 {
			continue
		}
		curr := curve[i].Equity.InexactFloat64()
		returns = append(returns, (curr-prev)/prev)
	}
	return returns
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func sampleStdDev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	m := mean(values)
	sumSq := 0.0
	for _, v := range values {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(values)-1))
}

func sharpeRatio(returns []float64) float64 {
	sd := sampleStdDev(returns)
	if sd == 0 {
		return 0
	}
	return mean(returns) / sd
}

// sortinoRatio divides the mean return by the root mean square of the
// negative returns.
func sortinoRatio(returns []float64) float64 {
	sumSq := 0.0
	count := 0
	for _, v := range returns {
		if v < 0 {
			sumSq += v * v
			count++
		}
	}
	if count == 0 {
		return 0
	}
	downside := math.Sqrt(sumSq / float64(count))
	if downside == 0 {
		return 0
	}
	return mean(returns) / downside
}

func maxDrawdown(curve []types.EquityPoint) float64 {
	peak := curve[0].Equity.InexactFloat64()
	maxDD := 0.0
	for _, p := range curve {
		v := p.Equity.InexactFloat64()
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}

func totalReturn(curve []types.EquityPoint) float64 {
	first := curve[0].Equity.InexactFloat64()
	if first == 0 {
		return 0
	}
	last := curve[len(curve)-1].Equity.InexactFloat64()
	return (last - first) / first
}

// annualizedReturn scales the total return by the calendar span of the
// curve: (1+tr)^(1/years) - 1.
func annualizedReturn(curve []types.EquityPoint) float64 {
	tr := totalReturn(curve)
	days := curve[len(curve)-1].Timestamp.Sub(curve[0].Timestamp).Hours() / 24
	years := days / 365.25
	if years <= 0 {
		return 0
	}
	return math.Pow(1+tr, 1/years) - 1
}

func winRate(trades []types.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.NetValue().IsPositive() {
			wins++
		}
	}
	return float64(wins) / float64(len(trades))
}

func profitFactor(trades []types.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	grossProfit := 0.0
	grossLoss := 0.0
	for _, t := range trades {
		nv := t.NetValue().InexactFloat64()
		if nv > 0 {
			grossProfit += nv
		} else {
			grossLoss += -nv
		}
	}
	if grossLoss == 0 {
		if grossProfit > 0 {
			return math.Inf(1)
		}
		return 0
	}
	return grossProfit / grossLoss
}

// DrawdownSeries derives the drawdown path of the equity curve as a
// series of non-positive ratios: 0 at each new peak, (equity-peak)/peak
// below it.
func (r *Result) DrawdownSeries() *marketdata.Series {
	s := marketdata.NewSeries("drawdown")
	if len(r.curve) == 0 {
		return s
	}
	peak := r.curve[0].Equity
	for _, p := range r.curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		dd := 0.0
		if peak.IsPositive() {
			dd = p.Equity.Sub(peak).Div(peak).InexactFloat64()
		}
		s.Add(p.Timestamp, dd)
	}
	return s
}

// DrawdownPeriod describes one excursion below the high-water mark.
type DrawdownPeriod struct {
	Start time.Time
	End   time.Time
	Depth float64 // most negative drawdown reached
}

// drawdownEntry is the ratio below which an excursion counts as a period.
const drawdownEntry = -0.01

// DrawdownPeriods segments the equity curve into drawdowns deeper than
// one percent. A period ends when equity recovers its peak; one still
// open at the end of the curve is closed at the final timestamp.
func (r *Result) DrawdownPeriods() []DrawdownPeriod {
	var periods []DrawdownPeriod
	if len(r.curve) == 0 {
		return periods
	}

	peak := r.curve[0].Equity
	open := false
	var current DrawdownPeriod
	for _, p := range r.curve {
		if p.Equity.GreaterThan(peak) {
			peak = p.Equity
		}
		dd := 0.0
		if peak.IsPositive() {
			dd = p.Equity.Sub(peak).Div(peak).InexactFloat64()
		}
		switch {
		case !open && dd < drawdownEntry:
			open = true
			current = DrawdownPeriod{Start: p.Timestamp, End: p.Timestamp, Depth: dd}
		case open && dd >= 0:
			current.End = p.Timestamp
			periods = append(periods, current)
			open = false
		case open:
			current.End = p.Timestamp
			if dd < current.Depth {
				current.Depth = dd
			}
		}
	}
	if open {
		periods = append(periods, current)
	}
	return periods
}

// ReturnsByMonth sums the equity returns into calendar months, pooled
// across years.
func (r *Result) ReturnsByMonth() map[time.Month]float64 {
	out := make(map[time.Month]float64)
	for i := 1; i < len(r.curve); i++ {
		prev := r.curve[i-1].Equity.InexactFloat64()
		if prev == 0 {
			continue
		}
		ret := (r.curve[i].Equity.InexactFloat64() - prev) / prev
		out[r.curve[i].Timestamp.Month()] += ret
	}
	return out
}

// ReturnsByYear sums the equity returns by calendar year.
func (r *Result) ReturnsByYear() map[int]float64 {
	out := make(map[int]float64)
	for i := 1; i < len(r.curve); i++ {
		prev := r.curve[i-1].Equity.InexactFloat64()
		if prev == 0 {
			continue
		}
		ret := (r.curve[i].Equity.InexactFloat64() - prev) / prev
		out[r.curve[i].Timestamp.Year()] += ret
	}
	return out
}

// Summary renders the headline metrics as a fixed-precision text block.
func (r *Result) Summary() string {
	r.computeMetrics()

	var b strings.Builder
	b.WriteString("=== Backtest Results Summary ===\n")
	if len(r.curve) > 0 {
		first := r.curve[0]
		last := r.curve[len(r.curve)-1]
		fmt.Fprintf(&b, "Period:                %s to %s\n",
			first.Timestamp.Format("2006-01-02"), last.Timestamp.Format("2006-01-02"))
		fmt.Fprintf(&b, "Initial Equity:        $%s\n", first.Equity.StringFixed(2))
		fmt.Fprintf(&b, "Final Equity:          $%s\n", last.Equity.StringFixed(2))
	}
	fmt.Fprintf(&b, "Total Return:          %.2f%%\n", r.Metric(MetricTotalReturn)*100)
	fmt.Fprintf(&b, "Annualized Return:     %.2f%%\n", r.Metric(MetricAnnualizedReturn)*100)
	fmt.Fprintf(&b, "Annualized Volatility: %.2f%%\n", r.Metric(MetricAnnualizedVolatility)*100)
	fmt.Fprintf(&b, "Sharpe Ratio:          %.4f\n", r.Metric(MetricSharpeRatio))
	fmt.Fprintf(&b, "Sortino Ratio:         %.4f\n", r.Metric(MetricSortinoRatio))
	fmt.Fprintf(&b, "Max Drawdown:          %.2f%%\n", r.Metric(MetricMaxDrawdown)*100)
	fmt.Fprintf(&b, "Total Trades:          %d\n", len(r.trades))
	fmt.Fprintf(&b, "Win Rate:              %.2f%%\n", r.Metric(MetricWinRate)*100)
	fmt.Fprintf(&b, "Profit Factor:         %.2f\n", r.Metric(MetricProfitFactor))
	return b.String()
}
