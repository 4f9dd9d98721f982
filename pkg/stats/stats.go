// Package stats provides descriptive statistics and numerical routines
// used by the volatility models and backtest metrics.
package stats

import (
	"errors"
	"fmt"
	"math"
)

// Sentinel errors for statistical routines.
var (
	ErrInsufficientData = errors.New("insufficient data")
	ErrInvalidInput     = errors.New("invalid input")
)

// Mean returns the arithmetic mean of values.
func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, fmt.Errorf("%w: mean requires at least 1 value", ErrInsufficientData)
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values)), nil
}

// Variance returns the sample variance of values.
func Variance(values []float64) (float64, error) {
	if len(values) < 2 {
		return 0, fmt.Errorf("%w: variance requires at least 2 values", ErrInsufficientData)
	}
	m, err := Mean(values)
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}
	return sum / float64(len(values)-1), nil
}

// StdDev returns the sample standard deviation of values.
func StdDev(values []float64) (float64, error) {
	v, err := Variance(values)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(v), nil
}

// Skewness returns the adjusted Fisher-Pearson sample skewness.
func Skewness(values []float64) (float64, error) {
	if len(values) < 3 {
		return 0, fmt.Errorf("%w: skewness requires at least 3 values", ErrInsufficientData)
	}
	m, err := Mean(values)
	if err != nil {
		return 0, err
	}
	sd, err := StdDev(values)
	if err != nil {
		return 0, err
	}
	if sd == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, v := range values {
		z := (v - m) / sd
		sum += z * z * z
	}
	n := float64(len(values))
	return n / ((n - 1) * (n - 2)) * sum, nil
}

// Kurtosis returns the sample excess kurtosis.
func Kurtosis(values []float64) (float64, error) {
	if len(values) < 4 {
		return 0, fmt.Errorf("%w: kurtosis requires at least 4 values", ErrInsufficientData)
	}
	m, err := Mean(values)
	if err != nil {
		return 0, err
	}
	sd, err := StdDev(values)
	if err != nil {
		return 0, err
	}
	if sd == 0 {
		return 0, nil
	}
	sum := 0.0
	for _, v := range values {
		z := (v - m) / sd
		sum += z * z * z * z
	}
	n := float64(len(values))
	numerator := n * (n + 1) / ((n - 1) * (n - 2) * (n - 3)) * sum
	correction := 3 * (n - 1) * (n - 1) / ((n - 2) * (n - 3))
	return numerator - correction, nil
}

// Correlation returns the Pearson correlation of two equally sized samples.
// Returns 0 when either sample has zero variance.
func Correlation(x, y []float64) (float64, error) {
	if len(x) != len(y) {
		return 0, fmt.Errorf("%w: samples differ in length (%d vs %d)", ErrInvalidInput, len(x), len(y))
	}
	if len(x) < 2 {
		return 0, fmt.Errorf("%w: correlation requires at least 2 values", ErrInsufficientData)
	}
	mx, err := Mean(x)
	if err != nil {
		return 0, err
	}
	my, err := Mean(y)
	if err != nil {
		return 0, err
	}
	var num, dx, dy float64
	for i := range x {
		a := x[i] - mx
		b := y[i] - my
		num += a * b
		dx += a * a
		dy += b * b
	}
	if dx == 0 || dy == 0 {
		return 0, nil
	}
	return num / math.Sqrt(dx*dy), nil
}

// NormPDF returns the standard normal probability density at x.
func NormPDF(x float64) float64 {
	return math.Exp(-0.5*x*x) / math.Sqrt(2*math.Pi)
}

// NormCDF returns the standard normal cumulative distribution at x.
func NormCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// Beasley-Springer-Moro coefficients.
var (
	bsmA = [4]float64{2.50662823884, -18.61500062529, 41.39119773534, -25.44106049637}
	bsmB = [4]float64{-8.47351093090, 23.08336743743, -21.06224101826, 3.13082909833}
	bsmC = [9]float64{
		0.3374754822726147, 0.9761690190917186, 0.1607979714918209,
		0.0276438810333863, 0.0038405729373609, 0.0003951896511919,
		0.0000321767881768, 0.0000002888167364, 0.0000003960315187,
	}
)

// NormInvCDF returns the inverse of the standard normal CDF using the
// Beasley-Springer-Moro algorithm. p must lie in (0, 1).
func NormInvCDF(p float64) (float64, error) {
	if p <= 0 || p >= 1 {
		return 0, fmt.Errorf("%w: probability %v outside (0, 1)", ErrInvalidInput, p)
	}

	y := p - 0.5
	if math.Abs(y) < 0.42 {
		// Central rational approximation
		r := y * y
		num := y * (((bsmA[3]*r+bsmA[2])*r+bsmA[1])*r + bsmA[0])
		den := (((bsmB[3]*r+bsmB[2])*r+bsmB[1])*r+bsmB[0])*r + 1
		return num / den, nil
	}

	// Tail expansion
	r := p
	if y > 0 {
		r = 1 - p
	}
	r = math.Log(-math.Log(r))
	x := bsmC[8]
	for i := 7; i >= 0; i-- {
		x = x*r + bsmC[i]
	}
	if y < 0 {
		x = -x
	}
	return x, nil
}
