// Package types defines shared types used across the engine.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Action represents the direction of a signal or trade.
type Action int

const (
	Hold Action = iota
	Buy
	Sell
)

func (a Action) String() string {
	switch a {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "HOLD"
	}
}

// OptionRight distinguishes calls from puts.
type OptionRight int

const (
	Call OptionRight = iota
	Put
)

func (r OptionRight) String() string {
	if r == Put {
		return "PUT"
	}
	return "CALL"
}

// ExerciseStyle distinguishes European from American exercise.
type ExerciseStyle int

const (
	European ExerciseStyle = iota
	American
)

func (s ExerciseStyle) String() string {
	if s == American {
		return "AMERICAN"
	}
	return "EUROPEAN"
}

// AuxImpliedVol is the auxiliary bar field carrying market implied volatility.
const AuxImpliedVol = "implied_volatility"

// Bar represents one observation of market data for a symbol.
type Bar struct {
	Symbol    string
	Timestamp time.Time
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    int64
	Aux       map[string]float64 // Auxiliary fields: implied volatility, etc.
}

// AuxValue returns an auxiliary field value.
func (b Bar) AuxValue(key string) (float64, error) {
	v, ok := b.Aux[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrKeyNotFound, key)
	}
	return v, nil
}

// HasAux reports whether an auxiliary field is present.
func (b Bar) HasAux(key string) bool {
	_, ok := b.Aux[key]
	return ok
}

// Greeks holds option price sensitivities.
type Greeks struct {
	Delta float64 // Sensitivity to underlying price
	Gamma float64 // Rate of change of delta
	Vega  float64 // Sensitivity to volatility (per 1% move)
	Theta float64 // Time decay (per day)
	Rho   float64 // Sensitivity to the risk-free rate (per 1% move)
}

func (g Greeks) String() string {
	return fmt.Sprintf("Greeks[Delta=%.4f, Gamma=%.4f, Vega=%.4f, Theta=%.4f, Rho=%.4f]",
		g.Delta, g.Gamma, g.Vega, g.Theta, g.Rho)
}

// Signal represents a trading signal emitted by a signal generator.
type Signal struct {
	ID           string
	Action       Action
	Strength     float64 // Signal confidence; actionable requires > 0
	InstrumentID string
	Timestamp    time.Time
	Metadata     map[string]float64
}

// NewSignal creates a signal with a fresh ID and an empty metadata map.
func NewSignal(action Action, strength float64, instrumentID string, timestamp time.Time) Signal {
	return Signal{
		ID:           uuid.NewString(),
		Action:       action,
		Strength:     strength,
		InstrumentID: instrumentID,
		Timestamp:    timestamp,
		Metadata:     make(map[string]float64),
	}
}

// Actionable reports whether the signal should be acted on.
func (s Signal) Actionable() bool {
	return s.Action != Hold && s.Strength > 0
}

func (s Signal) String() string {
	return fmt.Sprintf("Signal[%s, %.2f, %s, %s]",
		s.Action, s.Strength, s.InstrumentID, s.Timestamp.Format("2006-01-02 15:04:05"))
}

// Trade represents an executed trade (for the audit trail).
type Trade struct {
	ID              string
	InstrumentID    string
	Action          Action
	Quantity        decimal.Decimal // Always positive; Action carries direction
	Price           decimal.Decimal
	TransactionCost decimal.Decimal
	Timestamp       time.Time
}

// NewTrade creates a trade with a fresh ID. Quantity must be positive.
func NewTrade(instrumentID string, action Action, quantity, price decimal.Decimal, timestamp time.Time) (Trade, error) {
	if !quantity.IsPositive() {
		return Trade{}, fmt.Errorf("%w: trade quantity must be positive, got %s", ErrValidation, quantity)
	}
	return Trade{
		ID:           uuid.NewString(),
		InstrumentID: instrumentID,
		Action:       action,
		Quantity:     quantity,
		Price:        price,
		Timestamp:    timestamp,
	}, nil
}

// Value returns quantity times price.
func (t Trade) Value() decimal.Decimal {
	return t.Quantity.Mul(t.Price)
}

// NetValue returns the cash impact of the trade including costs.
// Buys consume cash, sells produce it.
func (t Trade) NetValue() decimal.Decimal {
	if t.Action == Buy {
		return t.Value().Add(t.TransactionCost).Neg()
	}
	return t.Value().Sub(t.TransactionCost)
}

func (t Trade) String() string {
	return fmt.Sprintf("%s %s %s %s @ $%s (Cost: $%s)",
		t.Timestamp.Format("2006-01-02 15:04:05"), t.Action, t.Quantity,
		t.InstrumentID, t.Price.StringFixed(2), t.TransactionCost.StringFixed(2))
}

// EquityPoint represents portfolio equity at a point in time.
type EquityPoint struct {
	Timestamp time.Time
	Equity    decimal.Decimal
	Drawdown  decimal.Decimal // As ratio (0.15 = 15%)
}
