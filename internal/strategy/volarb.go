package strategy

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/instrument"
	"github.com/tathienbao/volarb/internal/metrics"
	"github.com/tathienbao/volarb/internal/portfolio"
	"github.com/tathienbao/volarb/internal/types"
	"github.com/tathienbao/volarb/internal/volatility"
)

// Config holds the volatility-arbitrage strategy parameters.
type Config struct {
	HoldingPeriod  int     // bars a position is held before closing
	EntryQuantity  float64 // contracts per entry
	TenorDays      int     // calendar days to the synthetic option's expiry
	EntryThreshold float64 // spread needed to open
	ExitThreshold  float64 // spread under which the signal goes flat
	TargetDelta    float64 // hedging target
	DeltaTolerance float64 // no-hedge band
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HoldingPeriod:  30,
		EntryQuantity:  10,
		TenorDays:      30,
		EntryThreshold: DefaultEntryThreshold,
		ExitThreshold:  DefaultExitThreshold,
		TargetDelta:    DefaultTargetDelta,
		DeltaTolerance: DefaultDeltaTolerance,
	}
}

// VolArb trades the spread between implied and GARCH-forecast volatility.
// Each bar it ages open positions, evaluates a synthetic at-the-money call
// on the bar's symbol, opens a position when the spread signal fires, and
// delta-hedges the book.
type VolArb struct {
	cfg      Config
	model    *volatility.GARCH
	signals  *SpreadSignal
	hedger   *DeltaHedger
	book     *portfolio.Portfolio
	logger   *slog.Logger
	recorder *metrics.Recorder

	daysHeld map[string]int       // instrument symbol -> bars held
	lastBars map[string]types.Bar // underlying -> latest bar seen
}

// New returns a strategy around the given volatility model. A nil model
// gets a fresh uncalibrated GARCH; a nil logger falls back to the default.
func New(model *volatility.GARCH, cfg Config, logger *slog.Logger) *VolArb {
	if model == nil {
		model = volatility.NewDefaultGARCH()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VolArb{
		cfg:      cfg,
		model:    model,
		signals:  NewSpreadSignal(cfg.EntryThreshold, cfg.ExitThreshold),
		hedger:   NewDeltaHedger(cfg.TargetDelta, cfg.DeltaTolerance),
		logger:   logger,
		daysHeld: make(map[string]int),
		lastBars: make(map[string]types.Bar),
	}
}

// Name returns the strategy identifier.
func (v *VolArb) Name() string { return "volatility-arbitrage" }

// Initialize resets the book to a fresh portfolio at the given capital and
// clears all tracked state.
func (v *VolArb) Initialize(initialCapital decimal.Decimal) {
	v.book = portfolio.New(initialCapital)
	v.daysHeld = make(map[string]int)
	v.lastBars = make(map[string]types.Bar)
}

// Portfolio exposes the strategy's book.
func (v *VolArb) Portfolio() *portfolio.Portfolio { return v.book }

// Model exposes the volatility model.
func (v *VolArb) Model() *volatility.GARCH { return v.model }

// Config returns the strategy parameters.
func (v *VolArb) Config() Config { return v.cfg }

// SetRecorder attaches a metrics recorder for generated signals. A nil
// recorder disables instrumentation.
func (v *VolArb) SetRecorder(rec *metrics.Recorder) { v.recorder = rec }

// HoldingPeriod returns the holding period in bars.
func (v *VolArb) HoldingPeriod() int { return v.cfg.HoldingPeriod }

// SetHoldingPeriod updates the holding period in bars.
func (v *VolArb) SetHoldingPeriod(bars int) { v.cfg.HoldingPeriod = bars }

// ProcessBar advances the strategy by one bar: age and close held
// positions, evaluate the spread signal on a synthetic at-the-money call,
// open an entry when it fires, then hedge. All resulting trades are
// returned in execution order.
func (v *VolArb) ProcessBar(bar types.Bar) ([]types.Trade, error) {
	if v.book == nil {
		return nil, fmt.Errorf("%w: strategy not initialized", types.ErrValidation)
	}
	v.lastBars[bar.Symbol] = bar

	trades, err := v.closeAgedPositions(bar)
	if err != nil {
		return trades, err
	}

	expiry := bar.Timestamp.AddDate(0, 0, v.cfg.TenorDays)
	call, err := instrument.NewEuropeanCall(bar.Symbol, expiry, bar.Close.InexactFloat64())
	if err != nil {
		return trades, fmt.Errorf("synthetic call: %w", err)
	}

	sig, err := v.signals.Generate(call, v.model, bar)
	if err != nil {
		return trades, err
	}
	if sig.Actionable() && v.recorder != nil {
		v.recorder.RecordSignal(sig)
	}

	if sig.Actionable() && !v.tracked(call.Symbol()) {
		entries, err := v.openPosition(call, sig, bar)
		if err != nil {
			return trades, err
		}
		trades = append(trades, entries...)
	}

	hedges, err := v.hedger.Apply(v.book, bar)
	if err != nil {
		return trades, err
	}
	trades = append(trades, hedges...)

	return trades, nil
}

// closeAgedPositions increments every holding counter, then closes the
// positions that reached the holding period at the latest price seen for
// their underlying.
func (v *VolArb) closeAgedPositions(bar types.Bar) ([]types.Trade, error) {
	for symbol := range v.daysHeld {
		v.daysHeld[symbol]++
	}

	var trades []types.Trade
	for i := 0; i < v.book.Len(); {
		pos, err := v.book.Position(i)
		if err != nil {
			return trades, err
		}
		symbol := pos.Instrument.Symbol()
		held, tracked := v.daysHeld[symbol]
		if !tracked || held < v.cfg.HoldingPeriod {
			i++
			continue
		}

		latest, ok := v.lastBars[pos.Instrument.Underlying()]
		if !ok {
			i++
			continue
		}
		price, err := pos.Instrument.Price(latest)
		if err != nil {
			return trades, err
		}

		proceeds := price.Mul(decimal.NewFromFloat(pos.Quantity))
		if pos.Quantity > 0 {
			v.book.AddCash(proceeds)
		} else {
			v.book.RemoveCash(proceeds.Neg())
		}
		if err := v.book.RemovePosition(i); err != nil {
			return trades, err
		}
		delete(v.daysHeld, symbol)

		action := types.Sell
		if pos.Quantity < 0 {
			action = types.Buy
		}
		trade, err := types.NewTrade(symbol, action, decimal.NewFromFloat(math.Abs(pos.Quantity)), price, bar.Timestamp)
		if err != nil {
			return trades, err
		}
		trades = append(trades, trade)

		v.logger.Debug("closed aged position",
			"instrument", symbol,
			"quantity", pos.Quantity,
			"proceeds", proceeds)
	}
	return trades, nil
}

// openPosition books an entry sized off the signal direction, rejecting
// entries whose cost exceeds available cash.
func (v *VolArb) openPosition(call instrument.Instrument, sig types.Signal, bar types.Bar) ([]types.Trade, error) {
	price, err := call.Price(bar)
	if err != nil {
		return nil, err
	}

	qty := v.cfg.EntryQuantity
	if sig.Action == types.Sell {
		qty = -qty
	}

	cost := price.Mul(decimal.NewFromFloat(math.Abs(qty)))
	if cost.GreaterThan(v.book.Cash()) {
		v.logger.Debug("entry rejected, insufficient cash",
			"instrument", call.Symbol(),
			"cost", cost,
			"cash", v.book.Cash())
		return nil, nil
	}

	pos := portfolio.NewPosition(call, qty, price, bar.Timestamp)
	pos.SetMeta("signal_strength", sig.Strength)
	pos.SetMeta("entry_signal_type", float64(sig.Action))
	v.book.AddPosition(pos)

	if sig.Action == types.Buy {
		v.book.RemoveCash(cost)
	} else {
		v.book.AddCash(cost)
	}
	v.daysHeld[call.Symbol()] = 0

	trade, err := types.NewTrade(call.Symbol(), sig.Action, decimal.NewFromFloat(math.Abs(qty)), price, bar.Timestamp)
	if err != nil {
		return nil, err
	}

	v.logger.Info("opened position",
		"instrument", call.Symbol(),
		"action", sig.Action,
		"strength", sig.Strength,
		"price", price,
		"cash", v.book.Cash())
	return []types.Trade{trade}, nil
}

func (v *VolArb) tracked(symbol string) bool {
	_, ok := v.daysHeld[symbol]
	return ok
}

// Clone returns an independent copy: the model, generators, book and
// tracking state are all deep-copied.
func (v *VolArb) Clone() Strategy {
	c := &VolArb{
		cfg:      v.cfg,
		model:    v.model.Clone(),
		signals:  v.signals.Clone(),
		hedger:   v.hedger.Clone(),
		logger:   v.logger,
		recorder: v.recorder,
	}
	if v.book != nil {
		c.book = v.book.Clone()
	}
	c.daysHeld = make(map[string]int, len(v.daysHeld))
	for k, held := range v.daysHeld {
		c.daysHeld[k] = held
	}
	c.lastBars = make(map[string]types.Bar, len(v.lastBars))
	for k, b := range v.lastBars {
		c.lastBars[k] = b
	}
	return c
}
