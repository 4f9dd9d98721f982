package backtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/types"
)

// Params holds backtest run parameters.
type Params struct {
	Start          time.Time
	End            time.Time
	InitialCapital decimal.Decimal
	Symbols        []string

	IncludeTransactionCosts bool
	CostPerTrade            decimal.Decimal // Flat cost per trade
	CostPercent             decimal.Decimal // As ratio of trade value (0.001 = 10 bps)
}

// DefaultParams returns sensible defaults: 100k capital, no transaction
// costs. Start, End and Symbols must still be set by the caller.
func DefaultParams() Params {
	return Params{
		InitialCapital: decimal.NewFromInt(100000),
		CostPerTrade:   decimal.Zero,
		CostPercent:    decimal.Zero,
	}
}

// Validate checks the parameters, collecting every problem into a single
// error wrapping ErrValidation.
func (p Params) Validate() error {
	var problems []string
	if !p.Start.Before(p.End) {
		problems = append(problems, "start must be before end")
	}
	if !p.InitialCapital.IsPositive() {
		problems = append(problems, "initial capital must be positive")
	}
	if len(p.Symbols) == 0 {
		problems = append(problems, "at least one symbol is required")
	}
	if p.IncludeTransactionCosts {
		if p.CostPerTrade.IsNegative() {
			problems = append(problems, "cost per trade must not be negative")
		}
		if p.CostPercent.IsNegative() {
			problems = append(problems, "cost percent must not be negative")
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", types.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}
