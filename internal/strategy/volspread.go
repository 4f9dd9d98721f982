package strategy

import (
	"fmt"
	"math"

	"github.com/tathienbao/volarb/internal/instrument"
	"github.com/tathienbao/volarb/internal/types"
	"github.com/tathienbao/volarb/internal/volatility"
)

// Spread signal defaults.
const (
	DefaultEntryThreshold = 0.10
	DefaultExitThreshold  = 0.05
)

// SpreadSignal turns the gap between implied and forecast volatility into
// trade signals. Implied above forecast means options trade rich (SELL);
// implied below forecast means they trade cheap (BUY). Spreads inside the
// entry threshold produce HOLD.
type SpreadSignal struct {
	entryThreshold float64
	exitThreshold  float64
}

// NewSpreadSignal returns a generator with the given thresholds.
func NewSpreadSignal(entryThreshold, exitThreshold float64) *SpreadSignal {
	return &SpreadSignal{
		entryThreshold: entryThreshold,
		exitThreshold:  exitThreshold,
	}
}

// NewDefaultSpreadSignal returns a generator with the default thresholds.
func NewDefaultSpreadSignal() *SpreadSignal {
	return NewSpreadSignal(DefaultEntryThreshold, DefaultExitThreshold)
}

// Generate evaluates one instrument against one bar. Non-options, bars
// without implied volatility and non-positive implied volatility all yield
// HOLD with zero strength. A calibration error from the model propagates.
func (s *SpreadSignal) Generate(inst instrument.Instrument, model *volatility.GARCH, bar types.Bar) (types.Signal, error) {
	hold := types.NewSignal(types.Hold, 0, inst.Symbol(), bar.Timestamp)

	if !inst.HasGreeks() {
		return hold, nil
	}
	implied, err := bar.AuxValue(types.AuxImpliedVol)
	if err != nil || implied <= 0 {
		return hold, nil
	}

	forecast, err := model.Forecast(1)
	if err != nil {
		return types.Signal{}, fmt.Errorf("volatility forecast: %w", err)
	}

	spread := implied - forecast
	magnitude := math.Abs(spread)
	if magnitude < s.entryThreshold {
		return hold, nil
	}

	action := types.Buy
	if spread > 0 {
		action = types.Sell
	}
	sig := types.NewSignal(action, magnitude, inst.Symbol(), bar.Timestamp)
	sig.Metadata["implied_vol"] = implied
	sig.Metadata["forecasted_vol"] = forecast
	sig.Metadata["vol_spread"] = spread
	sig.Metadata["spread_magnitude"] = magnitude
	return sig, nil
}

// EntryThreshold returns the entry spread threshold.
func (s *SpreadSignal) EntryThreshold() float64 { return s.entryThreshold }

// ExitThreshold returns the exit spread threshold.
func (s *SpreadSignal) ExitThreshold() float64 { return s.exitThreshold }

// SetEntryThreshold updates the entry spread threshold.
func (s *SpreadSignal) SetEntryThreshold(v float64) { s.entryThreshold = v }

// SetExitThreshold updates the exit spread threshold.
func (s *SpreadSignal) SetExitThreshold(v float64) { s.exitThreshold = v }

// Clone returns an independent copy.
func (s *SpreadSignal) Clone() *SpreadSignal {
	c := *s
	return &c
}
