package strategy

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/instrument"
	"github.com/tathienbao/volarb/internal/portfolio"
	"github.com/tathienbao/volarb/internal/types"
)

// Delta hedger defaults.
const (
	DefaultTargetDelta    = 0.0
	DefaultDeltaTolerance = 0.01

	// minHedgeQuantity is the smallest share adjustment worth booking.
	minHedgeQuantity = 1e-6
)

// DeltaHedger flattens portfolio delta toward a target with one-share
// equity units. It runs once per bar as a one-shot proportional hedge, not
// a continuous rebalancing loop.
type DeltaHedger struct {
	targetDelta float64
	tolerance   float64
}

// NewDeltaHedger returns a hedger aiming at the given delta.
func NewDeltaHedger(targetDelta, tolerance float64) *DeltaHedger {
	return &DeltaHedger{
		targetDelta: targetDelta,
		tolerance:   tolerance,
	}
}

// NewDefaultDeltaHedger returns a delta-neutral hedger.
func NewDefaultDeltaHedger() *DeltaHedger {
	return NewDeltaHedger(DefaultTargetDelta, DefaultDeltaTolerance)
}

// Apply rebalances the portfolio delta against the bar. Inside tolerance
// it does nothing. Otherwise it trades -gap shares of the bar's symbol:
// an existing equity position on that symbol absorbs the adjustment (and
// is closed when the result is negligible), else a new hedge position
// opens at the close and cash moves by quantity times close. Each
// adjustment is reported as one trade.
func (d *DeltaHedger) Apply(p *portfolio.Portfolio, bar types.Bar) ([]types.Trade, error) {
	delta, err := p.Delta(bar)
	if err != nil {
		return nil, fmt.Errorf("portfolio delta: %w", err)
	}

	gap := delta - d.targetDelta
	if math.Abs(gap) <= d.tolerance {
		return nil, nil
	}
	hedgeQty := -gap

	// An existing equity position on the bar's symbol absorbs the
	// adjustment without moving cash.
	positions := p.Positions()
	for i := range positions {
		inst := positions[i].Instrument
		if inst.Kind() != instrument.KindEquity || inst.Underlying() != bar.Symbol {
			continue
		}
		newQty := positions[i].Quantity + hedgeQty
		if math.Abs(newQty) < minHedgeQuantity {
			if err := p.RemovePosition(i); err != nil {
				return nil, err
			}
		} else if err := p.UpdateQuantity(i, newQty); err != nil {
			return nil, err
		}
		trade, err := hedgeTrade(bar, hedgeQty)
		if err != nil {
			return nil, err
		}
		return []types.Trade{trade}, nil
	}

	if math.Abs(hedgeQty) < minHedgeQuantity {
		return nil, nil
	}

	eq, err := instrument.NewEquity(bar.Symbol, 1)
	if err != nil {
		return nil, err
	}
	pos := portfolio.NewPosition(eq, hedgeQty, bar.Close, bar.Timestamp)
	pos.SetMeta("is_hedge", 1)
	pos.SetMeta("target_delta", d.targetDelta)
	p.AddPosition(pos)
	p.RemoveCash(bar.Close.Mul(decimal.NewFromFloat(hedgeQty)))

	trade, err := hedgeTrade(bar, hedgeQty)
	if err != nil {
		return nil, err
	}
	return []types.Trade{trade}, nil
}

func hedgeTrade(bar types.Bar, hedgeQty float64) (types.Trade, error) {
	action := types.Buy
	if hedgeQty < 0 {
		action = types.Sell
	}
	return types.NewTrade(bar.Symbol, action, decimal.NewFromFloat(math.Abs(hedgeQty)), bar.Close, bar.Timestamp)
}

// TargetDelta returns the delta the hedger aims at.
func (d *DeltaHedger) TargetDelta() float64 { return d.targetDelta }

// Tolerance returns the no-trade band around the target.
func (d *DeltaHedger) Tolerance() float64 { return d.tolerance }

// SetTargetDelta updates the target delta.
func (d *DeltaHedger) SetTargetDelta(v float64) { d.targetDelta = v }

// SetTolerance updates the no-trade band.
func (d *DeltaHedger) SetTolerance(v float64) { d.tolerance = v }

// Clone returns an independent copy.
func (d *DeltaHedger) Clone() *DeltaHedger {
	c := *d
	return &c
}
