// Package metrics exposes Prometheus instrumentation for backtest runs
// and parameter sweeps.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "volarb"

var (
	// RunsTotal counts completed backtest runs.
	RunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_total",
		Help:      "Completed backtest runs.",
	})

	// RunsFailed counts backtest runs that ended in an error.
	RunsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "runs_failed_total",
		Help:      "Backtest runs that ended in an error.",
	})

	// RunDuration observes wall-clock backtest duration in seconds.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "run_duration_seconds",
		Help:      "Wall-clock backtest duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	// BarsProcessed counts bars replayed through strategies.
	BarsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bars_processed_total",
		Help:      "Bars replayed through strategies.",
	})

	// TradesExecuted counts executed trades by action.
	TradesExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "trades_executed_total",
		Help:      "Trades executed by action.",
	}, []string{"action"})

	// SignalsGenerated counts generated signals by action.
	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "signals_generated_total",
		Help:      "Signals generated by action.",
	}, []string{"action"})

	// EquityCurrent tracks portfolio equity of the active run.
	EquityCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "equity_current",
		Help:      "Portfolio equity of the active run.",
	})

	// DrawdownCurrent tracks the drawdown of the active run.
	DrawdownCurrent = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "drawdown_current",
		Help:      "Drawdown of the active run as a ratio of the peak.",
	})

	// SweepPointsTotal tracks the size of the active parameter sweep.
	SweepPointsTotal = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sweep_points_total",
		Help:      "Grid points in the active parameter sweep.",
	})

	// SweepPointsDone counts finished sweep points.
	SweepPointsDone = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_points_done_total",
		Help:      "Finished sweep points.",
	})

	// SweepWorkersActive tracks the worker count of the active sweep.
	SweepWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sweep_workers_active",
		Help:      "Workers of the active parameter sweep.",
	})

	// BuildInfo carries build metadata as labels.
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "build_info",
		Help:      "Build information.",
	}, []string{"version", "commit", "build_time"})
)

// buildVersion is surfaced by the health endpoint.
var buildVersion string

// SetBuildInfo records the running build.
func SetBuildInfo(version, commit, buildTime string) {
	buildVersion = version
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}
