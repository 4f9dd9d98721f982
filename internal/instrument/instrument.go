// Package instrument defines the tradable instruments: equities and
// European or American options on them.
package instrument

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/pricing"
	"github.com/tathienbao/volarb/internal/types"
)

// Kind discriminates the instrument variants.
type Kind int

const (
	KindEquity Kind = iota
	KindEuropeanOption
	KindAmericanOption
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindEquity:
		return "EQUITY"
	case KindEuropeanOption:
		return "EUROPEAN_OPTION"
	case KindAmericanOption:
		return "AMERICAN_OPTION"
	default:
		return "UNKNOWN"
	}
}

// Instrument is a tagged variant over equities and options. The zero value
// is not usable; construct through the New functions.
type Instrument struct {
	kind       Kind
	underlying string
	shares     float64
	strike     float64
	expiry     time.Time
	right      types.OptionRight
}

// NewEquity returns an equity position unit of the given share count.
func NewEquity(symbol string, shares float64) (Instrument, error) {
	if shares <= 0 {
		return Instrument{}, fmt.Errorf("%w: shares must be positive, got %v", types.ErrValidation, shares)
	}
	return Instrument{kind: KindEquity, underlying: symbol, shares: shares}, nil
}

// NewOption returns an option with the given right and exercise style.
func NewOption(underlying string, expiry time.Time, strike float64, right types.OptionRight, style types.ExerciseStyle) (Instrument, error) {
	if strike <= 0 {
		return Instrument{}, fmt.Errorf("%w: strike must be positive, got %v", types.ErrValidation, strike)
	}
	kind := KindEuropeanOption
	if style == types.American {
		kind = KindAmericanOption
	}
	return Instrument{
		kind:       kind,
		underlying: underlying,
		strike:     strike,
		expiry:     expiry,
		right:      right,
	}, nil
}

// NewEuropeanCall returns a European call.
func NewEuropeanCall(underlying string, expiry time.Time, strike float64) (Instrument, error) {
	return NewOption(underlying, expiry, strike, types.Call, types.European)
}

// NewEuropeanPut returns a European put.
func NewEuropeanPut(underlying string, expiry time.Time, strike float64) (Instrument, error) {
	return NewOption(underlying, expiry, strike, types.Put, types.European)
}

// NewAmericanCall returns an American call.
func NewAmericanCall(underlying string, expiry time.Time, strike float64) (Instrument, error) {
	return NewOption(underlying, expiry, strike, types.Call, types.American)
}

// NewAmericanPut returns an American put.
func NewAmericanPut(underlying string, expiry time.Time, strike float64) (Instrument, error) {
	return NewOption(underlying, expiry, strike, types.Put, types.American)
}

// Kind returns the variant tag.
func (i Instrument) Kind() Kind { return i.kind }

// Underlying returns the underlying symbol.
func (i Instrument) Underlying() string { return i.underlying }

// Shares returns the share count. Zero for options.
func (i Instrument) Shares() float64 { return i.shares }

// Strike returns the strike price. Zero for equities.
func (i Instrument) Strike() float64 { return i.strike }

// Expiry returns the expiration time. Zero for equities.
func (i Instrument) Expiry() time.Time { return i.expiry }

// Right returns the option right. Meaningless for equities.
func (i Instrument) Right() types.OptionRight { return i.right }

// Style returns the exercise style derived from the kind.
func (i Instrument) Style() types.ExerciseStyle {
	if i.kind == KindAmericanOption {
		return types.American
	}
	return types.European
}

// IsOption reports whether the instrument is an option of either style.
func (i Instrument) IsOption() bool {
	return i.kind == KindEuropeanOption || i.kind == KindAmericanOption
}

// Symbol returns the instrument identifier: the plain symbol for equities,
// UNDERLYING_C_STRIKE_YYYYMMDD for options.
func (i Instrument) Symbol() string {
	if i.kind == KindEquity {
		return i.underlying
	}
	letter := "C"
	if i.right == types.Put {
		letter = "P"
	}
	return fmt.Sprintf("%s_%s_%d_%s", i.underlying, letter, int(i.strike), i.expiry.Format("20060102"))
}

// TimeToExpiry returns the time to expiration in year fractions. Zero for
// equities and for options at or past expiry.
func (i Instrument) TimeToExpiry(now time.Time) float64 {
	if i.kind == KindEquity {
		return 0
	}
	return pricing.YearsBetween(now, i.expiry)
}

// Price values the instrument against a bar. Equities require the bar to
// carry their own symbol and are worth close times shares. Options price
// under Black-Scholes-Merton off the bar's close; American options floor
// at intrinsic value. Expired options are worth intrinsic value.
func (i Instrument) Price(bar types.Bar) (decimal.Decimal, error) {
	switch i.kind {
	case KindEquity:
		if bar.Symbol != i.underlying {
			return decimal.Zero, fmt.Errorf("%w: bar symbol %s does not match %s",
				types.ErrValidation, bar.Symbol, i.underlying)
		}
		return bar.Close.Mul(decimal.NewFromFloat(i.shares)), nil

	case KindEuropeanOption, KindAmericanOption:
		s := bar.Close.InexactFloat64()
		t := pricing.YearsBetween(bar.Timestamp, i.expiry)
		sigma := pricing.ResolveVolatility(bar)
		p := pricing.Price(i.right, s, i.strike, t, pricing.DefaultRiskFreeRate, sigma)
		if i.kind == KindAmericanOption {
			if intrinsic := pricing.Intrinsic(i.right, s, i.strike); intrinsic > p {
				p = intrinsic
			}
		}
		return decimal.NewFromFloat(p), nil

	default:
		return decimal.Zero, fmt.Errorf("%w: unknown instrument kind %d", types.ErrValidation, i.kind)
	}
}

// HasGreeks reports whether the instrument carries option sensitivities.
func (i Instrument) HasGreeks() bool {
	return i.IsOption()
}

// Greeks returns the option sensitivities against a bar. Equities have
// none.
func (i Instrument) Greeks(bar types.Bar) (types.Greeks, error) {
	if !i.IsOption() {
		return types.Greeks{}, fmt.Errorf("%w: %s instruments carry no Greeks", types.ErrValidation, i.kind)
	}
	s := bar.Close.InexactFloat64()
	t := pricing.YearsBetween(bar.Timestamp, i.expiry)
	sigma := pricing.ResolveVolatility(bar)
	return pricing.ComputeGreeks(i.right, s, i.strike, t, pricing.DefaultRiskFreeRate, sigma), nil
}

// RiskMetrics returns a flat risk vector for reporting. Equities report
// [value, intraday P&L, shares, 0]; options report
// [price, delta, gamma, vega, theta, rho].
func (i Instrument) RiskMetrics(bar types.Bar) ([]float64, error) {
	price, err := i.Price(bar)
	if err != nil {
		return nil, err
	}

	if i.kind == KindEquity {
		intraday := bar.Close.Sub(bar.Open).InexactFloat64() * i.shares
		return []float64{price.InexactFloat64(), intraday, i.shares, 0}, nil
	}

	g, err := i.Greeks(bar)
	if err != nil {
		return nil, err
	}
	return []float64{price.InexactFloat64(), g.Delta, g.Gamma, g.Vega, g.Theta, g.Rho}, nil
}

// SetShares updates the share count on an equity.
func (i *Instrument) SetShares(shares float64) error {
	if i.kind != KindEquity {
		return fmt.Errorf("%w: shares apply to equities only", types.ErrValidation)
	}
	if shares <= 0 {
		return fmt.Errorf("%w: shares must be positive, got %v", types.ErrValidation, shares)
	}
	i.shares = shares
	return nil
}

// SetStrike updates the strike on an option.
func (i *Instrument) SetStrike(strike float64) error {
	if !i.IsOption() {
		return fmt.Errorf("%w: strike applies to options only", types.ErrValidation)
	}
	if strike <= 0 {
		return fmt.Errorf("%w: strike must be positive, got %v", types.ErrValidation, strike)
	}
	i.strike = strike
	return nil
}
