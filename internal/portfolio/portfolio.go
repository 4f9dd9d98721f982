package portfolio

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/types"
)

// Portfolio holds cash and an ordered list of positions. Cash movements
// are unchecked; a portfolio can run a negative balance.
type Portfolio struct {
	cash      decimal.Decimal
	positions []Position
}

// New returns a portfolio seeded with initial cash.
func New(initialCash decimal.Decimal) *Portfolio {
	return &Portfolio{cash: initialCash}
}

// AddPosition appends a position.
func (p *Portfolio) AddPosition(pos Position) {
	p.positions = append(p.positions, pos)
}

// RemovePosition deletes the position at index i.
func (p *Portfolio) RemovePosition(i int) error {
	if i < 0 || i >= len(p.positions) {
		return fmt.Errorf("%w: position %d of %d", types.ErrIndexOutOfRange, i, len(p.positions))
	}
	p.positions = append(p.positions[:i], p.positions[i+1:]...)
	return nil
}

// UpdateQuantity replaces the quantity of the position at index i.
func (p *Portfolio) UpdateQuantity(i int, quantity float64) error {
	if i < 0 || i >= len(p.positions) {
		return fmt.Errorf("%w: position %d of %d", types.ErrIndexOutOfRange, i, len(p.positions))
	}
	p.positions[i].Quantity = quantity
	return nil
}

// Position returns the position at index i.
func (p *Portfolio) Position(i int) (Position, error) {
	if i < 0 || i >= len(p.positions) {
		return Position{}, fmt.Errorf("%w: position %d of %d", types.ErrIndexOutOfRange, i, len(p.positions))
	}
	return p.positions[i], nil
}

// Positions returns a copy of the position list.
func (p *Portfolio) Positions() []Position {
	out := make([]Position, len(p.positions))
	copy(out, p.positions)
	return out
}

// Len returns the number of open positions.
func (p *Portfolio) Len() int {
	return len(p.positions)
}

// Cash returns the cash balance.
func (p *Portfolio) Cash() decimal.Decimal {
	return p.cash
}

// AddCash credits the balance.
func (p *Portfolio) AddCash(amount decimal.Decimal) {
	p.cash = p.cash.Add(amount)
}

// RemoveCash debits the balance. The balance may go negative.
func (p *Portfolio) RemoveCash(amount decimal.Decimal) {
	p.cash = p.cash.Sub(amount)
}

// TotalValue returns cash plus the value of every position marked against
// one bar. Positions that cannot price off the bar propagate their error.
func (p *Portfolio) TotalValue(bar types.Bar) (decimal.Decimal, error) {
	total := p.cash
	for i := range p.positions {
		v, err := p.positions[i].Value(bar)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

// MarkToMarket values the portfolio against the latest bar per underlying.
// A position whose underlying has no bar fails with ErrMissingData.
func (p *Portfolio) MarkToMarket(bars map[string]types.Bar) (decimal.Decimal, error) {
	total := p.cash
	for i := range p.positions {
		pos := &p.positions[i]
		bar, ok := bars[pos.Instrument.Underlying()]
		if !ok {
			return decimal.Zero, fmt.Errorf("%w: no bar for %s", types.ErrMissingData, pos.Instrument.Underlying())
		}
		v, err := pos.Value(bar)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

// TotalPnL sums unrealized profit across positions against one bar.
func (p *Portfolio) TotalPnL(bar types.Bar) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range p.positions {
		v, err := p.positions[i].PnL(bar)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

// Delta aggregates portfolio delta: options contribute quantity times
// their delta, equities contribute their bare quantity.
func (p *Portfolio) Delta(bar types.Bar) (float64, error) {
	total := 0.0
	for i := range p.positions {
		pos := &p.positions[i]
		if !pos.Instrument.HasGreeks() {
			total += pos.Quantity
			continue
		}
		g, err := pos.Instrument.Greeks(bar)
		if err != nil {
			return 0, err
		}
		total += pos.Quantity * g.Delta
	}
	return total, nil
}

// Gamma aggregates portfolio gamma over option positions.
func (p *Portfolio) Gamma(bar types.Bar) (float64, error) {
	return p.sumGreek(bar, func(g types.Greeks) float64 { return g.Gamma })
}

// Vega aggregates portfolio vega over option positions.
func (p *Portfolio) Vega(bar types.Bar) (float64, error) {
	return p.sumGreek(bar, func(g types.Greeks) float64 { return g.Vega })
}

// Theta aggregates portfolio theta over option positions.
func (p *Portfolio) Theta(bar types.Bar) (float64, error) {
	return p.sumGreek(bar, func(g types.Greeks) float64 { return g.Theta })
}

func (p *Portfolio) sumGreek(bar types.Bar, pick func(types.Greeks) float64) (float64, error) {
	total := 0.0
	for i := range p.positions {
		pos := &p.positions[i]
		if !pos.Instrument.HasGreeks() {
			continue
		}
		g, err := pos.Instrument.Greeks(bar)
		if err != nil {
			return 0, err
		}
		total += pos.Quantity * pick(g)
	}
	return total, nil
}

// Clone returns a deep copy.
func (p *Portfolio) Clone() *Portfolio {
	c := &Portfolio{cash: p.cash}
	c.positions = make([]Position, 0, len(p.positions))
	for i := range p.positions {
		c.positions = append(c.positions, p.positions[i].Copy())
	}
	return c
}
