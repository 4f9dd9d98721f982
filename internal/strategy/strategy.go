// Package strategy implements the volatility-arbitrage trading logic:
// signal generation from the implied/forecast volatility spread, delta
// hedging, and the strategy driving both.
package strategy

import (
	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/portfolio"
	"github.com/tathienbao/volarb/internal/types"
)

// Strategy is the contract the backtest engine drives. A strategy owns its
// portfolio and reports the trades it executes on each bar.
type Strategy interface {
	// Name returns the strategy identifier.
	Name() string

	// Initialize resets the strategy to a fresh portfolio at the given
	// starting capital.
	Initialize(initialCapital decimal.Decimal)

	// ProcessBar advances the strategy by one bar and returns the trades
	// it executed, in execution order.
	ProcessBar(bar types.Bar) ([]types.Trade, error)

	// Portfolio exposes the strategy's current book.
	Portfolio() *portfolio.Portfolio

	// Clone returns an independent copy safe for a separate run.
	Clone() Strategy
}
