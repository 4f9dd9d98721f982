package marketdata

import (
	"math"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/types"
)

// GenerateGBM produces n daily bars of geometric Brownian motion starting
// at s0, stamped on consecutive business days from start. Each bar carries
// an implied-volatility aux field oscillating around sigma, so the spread
// between implied and forecast volatility has something to trade.
func GenerateGBM(symbol string, n int, start time.Time, s0, mu, sigma float64, seed int64) []types.Bar {
	rng := rand.New(rand.NewSource(seed))
	const dt = 1.0 / 252

	ts := start
	if !IsBusinessDay(ts) {
		ts = AddBusinessDays(ts, 1)
	}

	bars := make([]types.Bar, 0, n)
	price := s0
	for i := 0; i < n; i++ {
		open := price
		z := rng.NormFloat64()
		price = price * math.Exp((mu-0.5*sigma*sigma)*dt+sigma*math.Sqrt(dt)*z)

		high := math.Max(open, price) * (1 + 0.002*rng.Float64())
		low := math.Min(open, price) * (1 - 0.002*rng.Float64())

		// Implied vol drifts around sigma on a slow cycle with noise.
		implied := sigma*(1+0.4*math.Sin(float64(i)/10)) + 0.02*rng.NormFloat64()
		if implied < 0.01 {
			implied = 0.01
		}

		bars = append(bars, types.Bar{
			Symbol:    symbol,
			Timestamp: ts,
			Open:      decimal.NewFromFloat(open),
			High:      decimal.NewFromFloat(high),
			Low:       decimal.NewFromFloat(low),
			Close:     decimal.NewFromFloat(price),
			Volume:    1_000_000 + rng.Int63n(500_000),
			Aux:       map[string]float64{types.AuxImpliedVol: implied},
		})
		ts = AddBusinessDays(ts, 1)
	}

	return bars
}
