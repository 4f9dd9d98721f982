// Package marketdata provides time-series containers, CSV ingestion and
// synthetic data generation for the backtest engine.
package marketdata

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tathienbao/volarb/internal/types"
	"github.com/tathienbao/volarb/pkg/stats"
)

// Point is a single (timestamp, value) observation.
type Point struct {
	Timestamp time.Time
	Value     float64
}

// Series is a named, chronologically ordered sequence of observations.
type Series struct {
	name       string
	timestamps []time.Time
	values     []float64
}

// NewSeries creates an empty series.
func NewSeries(name string) *Series {
	return &Series{name: name}
}

// NewSeriesFrom creates a series from parallel timestamp and value slices.
// The slices are assumed chronological and must have equal length.
func NewSeriesFrom(name string, timestamps []time.Time, values []float64) (*Series, error) {
	if len(timestamps) != len(values) {
		return nil, fmt.Errorf("%w: timestamps and values differ in length (%d vs %d)",
			types.ErrValidation, len(timestamps), len(values))
	}
	s := &Series{
		name:       name,
		timestamps: make([]time.Time, len(timestamps)),
		values:     make([]float64, len(values)),
	}
	copy(s.timestamps, timestamps)
	copy(s.values, values)
	return s, nil
}

// Add inserts an observation keeping chronological order. An existing
// timestamp has its value replaced.
func (s *Series) Add(ts time.Time, value float64) {
	i := sort.Search(len(s.timestamps), func(i int) bool {
		return !s.timestamps[i].Before(ts)
	})
	if i < len(s.timestamps) && s.timestamps[i].Equal(ts) {
		s.values[i] = value
		return
	}
	s.timestamps = append(s.timestamps, time.Time{})
	copy(s.timestamps[i+1:], s.timestamps[i:])
	s.timestamps[i] = ts

	s.values = append(s.values, 0)
	copy(s.values[i+1:], s.values[i:])
	s.values[i] = value
}

// Len returns the number of observations.
func (s *Series) Len() int {
	return len(s.values)
}

// Empty reports whether the series has no observations.
func (s *Series) Empty() bool {
	return len(s.values) == 0
}

// Clear removes all observations.
func (s *Series) Clear() {
	s.timestamps = s.timestamps[:0]
	s.values = s.values[:0]
}

// Name returns the series name.
func (s *Series) Name() string {
	return s.name
}

// SetName sets the series name.
func (s *Series) SetName(name string) {
	s.name = name
}

// At returns the value at index i.
func (s *Series) At(i int) (float64, error) {
	if i < 0 || i >= len(s.values) {
		return 0, fmt.Errorf("%w: index %d, size %d", types.ErrIndexOutOfRange, i, len(s.values))
	}
	return s.values[i], nil
}

// TimestampAt returns the timestamp at index i.
func (s *Series) TimestampAt(i int) (time.Time, error) {
	if i < 0 || i >= len(s.timestamps) {
		return time.Time{}, fmt.Errorf("%w: index %d, size %d", types.ErrIndexOutOfRange, i, len(s.timestamps))
	}
	return s.timestamps[i], nil
}

// PointAt returns the observation at index i.
func (s *Series) PointAt(i int) (Point, error) {
	if i < 0 || i >= len(s.values) {
		return Point{}, fmt.Errorf("%w: index %d, size %d", types.ErrIndexOutOfRange, i, len(s.values))
	}
	return Point{Timestamp: s.timestamps[i], Value: s.values[i]}, nil
}

// ValueAt returns the value recorded at an exact timestamp.
func (s *Series) ValueAt(ts time.Time) (float64, error) {
	i := sort.Search(len(s.timestamps), func(i int) bool {
		return !s.timestamps[i].Before(ts)
	})
	if i < len(s.timestamps) && s.timestamps[i].Equal(ts) {
		return s.values[i], nil
	}
	return 0, fmt.Errorf("%w: no observation at %s", types.ErrMissingData, ts.Format(time.RFC3339))
}

// Values returns a copy of the values.
func (s *Series) Values() []float64 {
	out := make([]float64, len(s.values))
	copy(out, s.values)
	return out
}

// Timestamps returns a copy of the timestamps.
func (s *Series) Timestamps() []time.Time {
	out := make([]time.Time, len(s.timestamps))
	copy(out, s.timestamps)
	return out
}

// Slice returns the observations with start <= timestamp <= end.
func (s *Series) Slice(start, end time.Time) *Series {
	out := NewSeries(s.name + "_subseries")
	for i, ts := range s.timestamps {
		if !ts.Before(start) && !ts.After(end) {
			out.timestamps = append(out.timestamps, ts)
			out.values = append(out.values, s.values[i])
		}
	}
	return out
}

// SliceIndex returns the observations from index i through j inclusive.
func (s *Series) SliceIndex(i, j int) (*Series, error) {
	if i < 0 || j >= len(s.values) || i > j {
		return nil, fmt.Errorf("%w: range [%d, %d], size %d", types.ErrIndexOutOfRange, i, j, len(s.values))
	}
	out := NewSeries(s.name + "_subseries")
	out.timestamps = append(out.timestamps, s.timestamps[i:j+1]...)
	out.values = append(out.values, s.values[i:j+1]...)
	return out, nil
}

// Mean returns the mean of the values.
func (s *Series) Mean() (float64, error) {
	return stats.Mean(s.values)
}

// Variance returns the sample variance of the values.
func (s *Series) Variance() (float64, error) {
	return stats.Variance(s.values)
}

// StdDev returns the sample standard deviation of the values.
func (s *Series) StdDev() (float64, error) {
	return stats.StdDev(s.values)
}

// Skewness returns the sample skewness of the values.
func (s *Series) Skewness() (float64, error) {
	return stats.Skewness(s.values)
}

// Kurtosis returns the sample excess kurtosis of the values.
func (s *Series) Kurtosis() (float64, error) {
	return stats.Kurtosis(s.values)
}

// Autocorrelation returns the autocorrelation at the given lag.
func (s *Series) Autocorrelation(lag int) (float64, error) {
	if lag < 0 || lag >= len(s.values) {
		return 0, fmt.Errorf("%w: lag %d, size %d", types.ErrValidation, lag, len(s.values))
	}
	m, err := stats.Mean(s.values)
	if err != nil {
		return 0, err
	}
	var num, den float64
	for i := 0; i < len(s.values)-lag; i++ {
		num += (s.values[i] - m) * (s.values[i+lag] - m)
	}
	for _, v := range s.values {
		den += (v - m) * (v - m)
	}
	if den == 0 {
		return 0, nil
	}
	return num / den, nil
}

// Diff returns the series of first differences.
func (s *Series) Diff() (*Series, error) {
	if len(s.values) < 2 {
		return nil, fmt.Errorf("%w: diff requires at least 2 observations", types.ErrInsufficientData)
	}
	out := NewSeries(s.name + "_diff")
	for i := 1; i < len(s.values); i++ {
		out.timestamps = append(out.timestamps, s.timestamps[i])
		out.values = append(out.values, s.values[i]-s.values[i-1])
	}
	return out, nil
}

// PctChange returns the series of fractional changes.
func (s *Series) PctChange() (*Series, error) {
	if len(s.values) < 2 {
		return nil, fmt.Errorf("%w: pct change requires at least 2 observations", types.ErrInsufficientData)
	}
	out := NewSeries(s.name + "_pctchange")
	for i := 1; i < len(s.values); i++ {
		if s.values[i-1] == 0 {
			return nil, fmt.Errorf("%w: zero value at index %d", types.ErrValidation, i-1)
		}
		out.timestamps = append(out.timestamps, s.timestamps[i])
		out.values = append(out.values, (s.values[i]-s.values[i-1])/s.values[i-1])
	}
	return out, nil
}

// LogReturn returns the series of log returns.
func (s *Series) LogReturn() (*Series, error) {
	if len(s.values) < 2 {
		return nil, fmt.Errorf("%w: log return requires at least 2 observations", types.ErrInsufficientData)
	}
	out := NewSeries(s.name + "_logreturn")
	for i := 1; i < len(s.values); i++ {
		if s.values[i-1] <= 0 || s.values[i] <= 0 {
			return nil, fmt.Errorf("%w: non-positive value at index %d", types.ErrValidation, i)
		}
		out.timestamps = append(out.timestamps, s.timestamps[i])
		out.values = append(out.values, math.Log(s.values[i]/s.values[i-1]))
	}
	return out, nil
}

// RollingMean returns the trailing mean over the given window.
func (s *Series) RollingMean(window int) (*Series, error) {
	if window < 1 || window > len(s.values) {
		return nil, fmt.Errorf("%w: window %d, size %d", types.ErrValidation, window, len(s.values))
	}
	out := NewSeries(s.name + "_rolling_mean")
	for i := window - 1; i < len(s.values); i++ {
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += s.values[j]
		}
		out.timestamps = append(out.timestamps, s.timestamps[i])
		out.values = append(out.values, sum/float64(window))
	}
	return out, nil
}

// RollingStdDev returns the trailing sample standard deviation over the
// given window.
func (s *Series) RollingStdDev(window int) (*Series, error) {
	if window < 1 || window > len(s.values) {
		return nil, fmt.Errorf("%w: window %d, size %d", types.ErrValidation, window, len(s.values))
	}
	out := NewSeries(s.name + "_rolling_std")
	for i := window - 1; i < len(s.values); i++ {
		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += s.values[j]
		}
		mean := sum / float64(window)

		variance := 0.0
		for j := i - window + 1; j <= i; j++ {
			d := s.values[j] - mean
			variance += d * d
		}
		if window > 1 {
			variance /= float64(window - 1)
		}
		out.timestamps = append(out.timestamps, s.timestamps[i])
		out.values = append(out.values, math.Sqrt(variance))
	}
	return out, nil
}
