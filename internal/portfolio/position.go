// Package portfolio tracks open positions, cash and aggregate risk.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/instrument"
	"github.com/tathienbao/volarb/internal/types"
)

// Position is a signed holding of one instrument. Negative quantity is a
// short position.
type Position struct {
	Instrument instrument.Instrument
	Quantity   float64
	EntryPrice decimal.Decimal
	EntryTime  time.Time

	metadata map[string]float64
}

// NewPosition opens a position at the given entry price and time.
func NewPosition(inst instrument.Instrument, quantity float64, entryPrice decimal.Decimal, entryTime time.Time) Position {
	return Position{
		Instrument: inst,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		EntryTime:  entryTime,
		metadata:   make(map[string]float64),
	}
}

// Value returns quantity times the instrument's unit price on the bar.
func (p *Position) Value(bar types.Bar) (decimal.Decimal, error) {
	price, err := p.Instrument.Price(bar)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Mul(decimal.NewFromFloat(p.Quantity)), nil
}

// PnL returns the unrealized profit against the entry price.
func (p *Position) PnL(bar types.Bar) (decimal.Decimal, error) {
	price, err := p.Instrument.Price(bar)
	if err != nil {
		return decimal.Zero, err
	}
	return price.Sub(p.EntryPrice).Mul(decimal.NewFromFloat(p.Quantity)), nil
}

// SetMeta attaches a named value to the position.
func (p *Position) SetMeta(key string, value float64) {
	if p.metadata == nil {
		p.metadata = make(map[string]float64)
	}
	p.metadata[key] = value
}

// Meta returns a named value, zero when absent.
func (p *Position) Meta(key string) float64 {
	return p.metadata[key]
}

// HasMeta reports whether a named value is attached.
func (p *Position) HasMeta(key string) bool {
	_, ok := p.metadata[key]
	return ok
}

// Copy returns an independent copy with its own metadata map.
func (p *Position) Copy() Position {
	c := *p
	c.metadata = make(map[string]float64, len(p.metadata))
	for k, v := range p.metadata {
		c.metadata[k] = v
	}
	return c
}
