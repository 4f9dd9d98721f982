// Package pricing implements Black-Scholes-Merton option valuation.
//
// All pricing paths in the system go through the functions here: the
// instrument methods, the reusable Model and the strategy layer share one
// d1/d2, one price formula and one Greeks formula.
package pricing

import (
	"math"
	"time"

	"github.com/tathienbao/volarb/internal/types"
	"github.com/tathienbao/volarb/pkg/stats"
)

const (
	// DefaultRiskFreeRate is the annualized rate used when none is given.
	DefaultRiskFreeRate = 0.05

	// DefaultVolatility is the fallback when a bar carries no usable
	// implied volatility.
	DefaultVolatility = 0.20

	// MaxReasonableVol caps implied volatility read from bar data.
	// Values above 300% annualized are treated as bad data.
	MaxReasonableVol = 3.0
)

// D1 returns the Black-Scholes d1 term. Zero when the option has expired
// or volatility is not positive.
func D1(s, k, t, r, sigma float64) float64 {
	if t <= 0 || sigma <= 0 {
		return 0
	}
	return (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
}

// D2 returns d1 shifted down one volatility unit over the horizon.
func D2(d1, sigma, t float64) float64 {
	if t <= 0 || sigma <= 0 {
		return 0
	}
	return d1 - sigma*math.Sqrt(t)
}

// Intrinsic returns the exercise value at spot s.
func Intrinsic(right types.OptionRight, s, k float64) float64 {
	if right == types.Call {
		return math.Max(0, s-k)
	}
	return math.Max(0, k-s)
}

// Price returns the European option value. Expired options are worth
// intrinsic value; with zero volatility the value collapses to the
// discounted intrinsic.
func Price(right types.OptionRight, s, k, t, r, sigma float64) float64 {
	if t <= 0 {
		return Intrinsic(right, s, k)
	}
	if sigma <= 0 {
		disc := k * math.Exp(-r*t)
		if right == types.Call {
			return math.Max(0, s-disc)
		}
		return math.Max(0, disc-s)
	}

	d1 := D1(s, k, t, r, sigma)
	d2 := D2(d1, sigma, t)
	if right == types.Call {
		return s*stats.NormCDF(d1) - k*math.Exp(-r*t)*stats.NormCDF(d2)
	}
	return k*math.Exp(-r*t)*stats.NormCDF(-d2) - s*stats.NormCDF(-d1)
}

// ComputeGreeks returns the option sensitivities. All zero when the option
// has expired or volatility is not positive. Vega and rho are quoted per
// percentage point, theta per calendar day.
func ComputeGreeks(right types.OptionRight, s, k, t, r, sigma float64) types.Greeks {
	if t <= 0 || sigma <= 0 {
		return types.Greeks{}
	}

	d1 := D1(s, k, t, r, sigma)
	d2 := D2(d1, sigma, t)
	sqrtT := math.Sqrt(t)
	pdf := stats.NormPDF(d1)
	disc := k * math.Exp(-r*t)

	var g types.Greeks
	g.Gamma = pdf / (s * sigma * sqrtT)
	g.Vega = s * pdf * sqrtT / 100

	if right == types.Call {
		g.Delta = stats.NormCDF(d1)
		g.Theta = (-s*pdf*sigma/(2*sqrtT) - r*disc*stats.NormCDF(d2)) / 365
		g.Rho = disc * t * stats.NormCDF(d2) / 100
	} else {
		g.Delta = stats.NormCDF(d1) - 1
		g.Theta = (-s*pdf*sigma/(2*sqrtT) + r*disc*stats.NormCDF(-d2)) / 365
		g.Rho = -disc * t * stats.NormCDF(-d2) / 100
	}
	return g
}

// ResolveVolatility picks the pricing volatility for a bar: a usable
// implied_volatility aux field wins, otherwise the default.
func ResolveVolatility(bar types.Bar) float64 {
	if v, err := bar.AuxValue(types.AuxImpliedVol); err == nil && v > 0 && v <= MaxReasonableVol {
		return v
	}
	return DefaultVolatility
}

// YearsBetween converts the span from now to expiry into year fractions.
// Zero when now is at or past expiry.
func YearsBetween(now, expiry time.Time) float64 {
	if !now.Before(expiry) {
		return 0
	}
	return expiry.Sub(now).Seconds() / (365.25 * 24 * 3600)
}
