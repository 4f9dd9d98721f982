package pricing

import (
	"fmt"
	"time"

	"github.com/tathienbao/volarb/internal/types"
)

// Option is what the model knows how to price: anything exposing a strike,
// an expiry and a right.
type Option interface {
	Strike() float64
	Expiry() time.Time
	Right() types.OptionRight
}

// Model prices European options with a fixed risk-free rate. Spot and
// volatility come from the bar being priced against.
type Model struct {
	riskFree float64
}

// NewModel returns a model discounting at the given risk-free rate.
func NewModel(riskFree float64) *Model {
	return &Model{riskFree: riskFree}
}

// NewDefaultModel returns a model at the default risk-free rate.
func NewDefaultModel() *Model {
	return NewModel(DefaultRiskFreeRate)
}

// RiskFreeRate returns the discounting rate.
func (m *Model) RiskFreeRate() float64 { return m.riskFree }

// SetRiskFreeRate updates the discounting rate.
func (m *Model) SetRiskFreeRate(r float64) { m.riskFree = r }

// Price values the option off the bar's close. Expired options are worth
// intrinsic value.
func (m *Model) Price(opt Option, bar types.Bar) (float64, error) {
	if opt.Strike() <= 0 {
		return 0, fmt.Errorf("%w: strike must be positive", types.ErrValidation)
	}
	s := bar.Close.InexactFloat64()
	t := YearsBetween(bar.Timestamp, opt.Expiry())
	return Price(opt.Right(), s, opt.Strike(), t, m.riskFree, ResolveVolatility(bar)), nil
}

// Greeks returns the option sensitivities off the bar's close. Expired
// options carry zero Greeks.
func (m *Model) Greeks(opt Option, bar types.Bar) (types.Greeks, error) {
	if opt.Strike() <= 0 {
		return types.Greeks{}, fmt.Errorf("%w: strike must be positive", types.ErrValidation)
	}
	s := bar.Close.InexactFloat64()
	t := YearsBetween(bar.Timestamp, opt.Expiry())
	return ComputeGreeks(opt.Right(), s, opt.Strike(), t, m.riskFree, ResolveVolatility(bar)), nil
}

// Name identifies the model.
func (m *Model) Name() string { return "Black-Scholes-Merton" }

// Clone returns an independent copy.
func (m *Model) Clone() *Model {
	c := *m
	return &c
}
