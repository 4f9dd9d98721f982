package metrics

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/types"
)

// Recorder provides methods for recording run metrics.
type Recorder struct{}

// NewRecorder creates a new metrics recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// RecordRunCompleted records a finished run and its duration.
func (r *Recorder) RecordRunCompleted(duration time.Duration) {
	RunsTotal.Inc()
	RunDuration.Observe(duration.Seconds())
}

// RecordRunFailed records a run that ended in an error.
func (r *Recorder) RecordRunFailed() {
	RunsFailed.Inc()
}

// RecordBar records a processed bar.
func (r *Recorder) RecordBar() {
	BarsProcessed.Inc()
}

// RecordTrade records an executed trade.
func (r *Recorder) RecordTrade(trade types.Trade) {
	TradesExecuted.WithLabelValues(trade.Action.String()).Inc()
}

// RecordSignal records a generated signal.
func (r *Recorder) RecordSignal(signal types.Signal) {
	SignalsGenerated.WithLabelValues(signal.Action.String()).Inc()
}

// RecordEquity records equity and drawdown of the active run.
func (r *Recorder) RecordEquity(equity, drawdown decimal.Decimal) {
	EquityCurrent.Set(equity.InexactFloat64())
	DrawdownCurrent.Set(drawdown.InexactFloat64())
}

// RecordSweepStart primes the sweep gauges.
func (r *Recorder) RecordSweepStart(points, workers int) {
	SweepPointsTotal.Set(float64(points))
	SweepWorkersActive.Set(float64(workers))
}

// RecordSweepPointDone records a finished sweep point.
func (r *Recorder) RecordSweepPointDone() {
	SweepPointsDone.Inc()
}

// RecordSweepFinished clears the sweep worker gauge.
func (r *Recorder) RecordSweepFinished() {
	SweepWorkersActive.Set(0)
}

// Timer is a helper for measuring run duration.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Elapsed returns the elapsed duration.
func (t *Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// ObserveRun observes the elapsed time as a run duration.
func (t *Timer) ObserveRun() {
	RunDuration.Observe(t.Elapsed().Seconds())
}
