package volatility

import (
	"fmt"
	"math"

	"github.com/tathienbao/volarb/internal/types"
	"github.com/tathienbao/volarb/pkg/stats"
)

const (
	// TradingDaysPerYear annualizes daily volatility.
	TradingDaysPerYear = 252

	// MinVolatility and MaxVolatility clamp estimator output.
	MinVolatility = 0.05
	MaxVolatility = 3.0

	// EWMALambda is the RiskMetrics decay factor.
	EWMALambda = 0.94
)

// Clamp bounds a volatility estimate to the plausible range.
func Clamp(vol float64) float64 {
	if vol < MinVolatility {
		return MinVolatility
	}
	if vol > MaxVolatility {
		return MaxVolatility
	}
	return vol
}

func logReturns(prices []float64) ([]float64, error) {
	if len(prices) < 2 {
		return nil, fmt.Errorf("%w: %d prices, need at least 2", types.ErrInsufficientData, len(prices))
	}
	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] <= 0 || prices[i] <= 0 {
			return nil, fmt.Errorf("%w: non-positive price at index %d", types.ErrValidation, i)
		}
		returns = append(returns, math.Log(prices[i]/prices[i-1]))
	}
	return returns, nil
}

// Historical estimates volatility as the standard deviation of log returns
// over the last lookback prices, annualized on request and clamped.
// A lookback of zero or beyond the sample uses all prices.
func Historical(prices []float64, lookback int, annualize bool) (float64, error) {
	if lookback > 0 && len(prices) > lookback {
		prices = prices[len(prices)-lookback:]
	}
	returns, err := logReturns(prices)
	if err != nil {
		return 0, err
	}

	vol, err := stats.StdDev(returns)
	if err != nil {
		return 0, fmt.Errorf("%w: too few returns for deviation", types.ErrInsufficientData)
	}
	if annualize {
		vol *= math.Sqrt(TradingDaysPerYear)
	}
	return Clamp(vol), nil
}

// EWMA estimates volatility with exponentially weighted squared returns,
// seeded from the first squared return.
func EWMA(prices []float64, lambda float64, annualize bool) (float64, error) {
	if lambda <= 0 || lambda >= 1 {
		return 0, fmt.Errorf("%w: lambda must be in (0,1), got %v", types.ErrValidation, lambda)
	}
	returns, err := logReturns(prices)
	if err != nil {
		return 0, err
	}

	variance := returns[0] * returns[0]
	for _, r := range returns[1:] {
		variance = lambda*variance + (1-lambda)*r*r
	}
	vol := math.Sqrt(variance)
	if annualize {
		vol *= math.Sqrt(TradingDaysPerYear)
	}
	return Clamp(vol), nil
}

// FromBar resolves volatility for a bar: a usable implied_volatility aux
// field wins, otherwise the annualized historical estimate over the price
// history.
func FromBar(bar types.Bar, prices []float64, lookback int) (float64, error) {
	if v, err := bar.AuxValue(types.AuxImpliedVol); err == nil && v > 0 && v <= MaxVolatility {
		return v, nil
	}
	return Historical(prices, lookback, true)
}
