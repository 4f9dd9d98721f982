package backtest

import "github.com/shopspring/decimal"

// HighWater tracks peak equity over a run for drawdown computation.
type HighWater struct {
	peak    decimal.Decimal
	current decimal.Decimal
}

// NewHighWater creates a tracker seeded at the initial equity.
func NewHighWater(initial decimal.Decimal) *HighWater {
	return &HighWater{peak: initial, current: initial}
}

// Update records a new equity value and reports whether it set a new peak.
func (h *HighWater) Update(equity decimal.Decimal) bool {
	h.current = equity
	if equity.GreaterThan(h.peak) {
		h.peak = equity
		return true
	}
	return false
}

// Current returns the last recorded equity.
func (h *HighWater) Current() decimal.Decimal { return h.current }

// Peak returns the high-water mark.
func (h *HighWater) Peak() decimal.Decimal { return h.peak }

// Drawdown returns (peak - current) / peak as a ratio. A value of 0.15
// means equity sits 15% below its peak.
func (h *HighWater) Drawdown() decimal.Decimal {
	if !h.peak.IsPositive() || h.current.GreaterThanOrEqual(h.peak) {
		return decimal.Zero
	}
	return h.peak.Sub(h.current).Div(h.peak)
}
