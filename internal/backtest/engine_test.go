package backtest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tathienbao/volarb/internal/marketdata"
	"github.com/tathienbao/volarb/internal/metrics"
	"github.com/tathienbao/volarb/internal/strategy"
	"github.com/tathienbao/volarb/internal/types"
	"github.com/tathienbao/volarb/internal/volatility"
)

func TestEngine_AddBars(t *testing.T) {
	eng := New(nil)

	if err := eng.AddBars("SPY", nil); !errors.Is(err, types.ErrValidation) {
		t.Errorf("empty bars err = %v, want ErrValidation", err)
	}
	if eng.HasData("SPY") {
		t.Error("rejected bars should not register")
	}

	// Out-of-order input is sorted on registration.
	bars := []types.Bar{
		plainBar("SPY", day(2), 102),
		plainBar("SPY", day(0), 100),
		plainBar("SPY", day(1), 101),
	}
	if err := eng.AddBars("SPY", bars); err != nil {
		t.Fatalf("AddBars error: %v", err)
	}
	if err := eng.AddBars("QQQ", []types.Bar{plainBar("QQQ", day(0), 400)}); err != nil {
		t.Fatalf("AddBars error: %v", err)
	}

	symbols := eng.Symbols()
	if len(symbols) != 2 || symbols[0] != "QQQ" || symbols[1] != "SPY" {
		t.Errorf("Symbols = %v, want [QQQ SPY]", symbols)
	}

	eng.ClearData()
	if eng.HasData("SPY") || len(eng.Symbols()) != 0 {
		t.Error("ClearData should drop everything")
	}
}

func TestEngine_LoadCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	csv := "symbol,timestamp,open,high,low,close,volume\n" +
		"SPY,2026-01-05 00:00:00,100,101,99,100.5,1000000\n" +
		"QQQ,2026-01-05 00:00:00,400,404,396,402,2000000\n" +
		"SPY,2026-01-06 00:00:00,100.5,102,100,101.5,1100000\n"
	if err := os.WriteFile(path, []byte(csv), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	eng := New(nil)
	if err := eng.LoadCSV("SPY", path); err != nil {
		t.Fatalf("LoadCSV error: %v", err)
	}
	if !eng.HasData("SPY") {
		t.Error("SPY should be registered")
	}
	if eng.HasData("QQQ") {
		t.Error("QQQ rows must not register under SPY")
	}

	// A symbol absent from the file is missing data.
	if err := eng.LoadCSV("MSFT", path); !errors.Is(err, types.ErrMissingData) {
		t.Errorf("absent symbol err = %v, want ErrMissingData", err)
	}
}

func TestEngine_RunValidation(t *testing.T) {
	eng := New(nil)
	strat := volArbStrategy(t)

	_, err := eng.Run(strat, Params{})
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("invalid params err = %v, want ErrValidation", err)
	}

	params := DefaultParams()
	params.Start = day(0)
	params.End = day(10)
	params.Symbols = []string{"SPY"}
	_, err = eng.Run(strat, params)
	if !errors.Is(err, types.ErrMissingData) {
		t.Errorf("no data err = %v, want ErrMissingData", err)
	}
}

func TestEngine_RunEndToEnd(t *testing.T) {
	bars := marketdata.GenerateGBM("SPY", 60, day(0), 100, 0.05, 0.20, 42)
	eng := New(nil)
	if err := eng.AddBars("SPY", bars); err != nil {
		t.Fatalf("AddBars error: %v", err)
	}

	params := DefaultParams()
	params.Start = bars[0].Timestamp
	params.End = bars[len(bars)-1].Timestamp
	params.Symbols = []string{"SPY"}

	var updates []ProgressUpdate
	eng.SetProgressCallback(func(u ProgressUpdate) { updates = append(updates, u) })

	res, err := eng.Run(volArbStrategy(t), params)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	curve := res.EquityCurve()
	if len(curve) != len(bars) {
		t.Fatalf("curve length = %d, want %d", len(curve), len(bars))
	}
	for i := 1; i < len(curve); i++ {
		if !curve[i-1].Timestamp.Before(curve[i].Timestamp) {
			t.Fatalf("curve timestamps not increasing at %d", i)
		}
	}
	if !curve[0].Timestamp.Equal(bars[0].Timestamp) {
		t.Errorf("curve starts at %v, want %v", curve[0].Timestamp, bars[0].Timestamp)
	}

	// The synthetic implied vol sits far above the GARCH forecast, so the
	// strategy keeps selling premium.
	if len(res.Trades()) == 0 {
		t.Error("expected trades over 60 bars of rich implied vol")
	}
	if len(updates) != len(bars) {
		t.Errorf("progress updates = %d, want %d", len(updates), len(bars))
	}
	last := updates[len(updates)-1]
	if last.Bar != len(bars) || last.TotalBars != len(bars) {
		t.Errorf("final update = %d/%d, want %d/%d", last.Bar, last.TotalBars, len(bars), len(bars))
	}
	if last.LastSignal == "" {
		t.Error("final update should carry the last trade")
	}

	if !res.HasMetric(MetricSharpeRatio) {
		t.Error("metrics should be available after a run")
	}
	if !res.Params().Start.Equal(params.Start) {
		t.Errorf("result params start = %v, want %v", res.Params().Start, params.Start)
	}
}

// TestEngine_RunFullYear replays a full trading year with a 21-bar holding
// period and wide thresholds.
func TestEngine_RunFullYear(t *testing.T) {
	bars := marketdata.GenerateGBM("SPY", 252, day(0), 100, 0.05, 0.20, 3)
	closes, err := marketdata.ExtractSeries(bars, "close")
	if err != nil {
		t.Fatalf("ExtractSeries error: %v", err)
	}
	returns, err := closes.LogReturn()
	if err != nil {
		t.Fatalf("LogReturn error: %v", err)
	}
	model := volatility.NewDefaultGARCH()
	if err := model.Calibrate(returns.Values()); err != nil {
		t.Fatalf("Calibrate error: %v", err)
	}

	cfg := strategy.DefaultConfig()
	cfg.HoldingPeriod = 21
	cfg.EntryThreshold = 0.15
	cfg.ExitThreshold = 0.05

	eng := New(nil)
	if err := eng.AddBars("SPY", bars); err != nil {
		t.Fatalf("AddBars error: %v", err)
	}
	params := DefaultParams()
	params.Start = bars[0].Timestamp
	params.End = bars[len(bars)-1].Timestamp
	params.Symbols = []string{"SPY"}

	res, err := eng.Run(strategy.New(model, cfg, nil), params)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if got := len(res.EquityCurve()); got != len(bars) {
		t.Fatalf("curve length = %d, want %d", got, len(bars))
	}
	keys := []string{
		MetricSharpeRatio, MetricSortinoRatio, MetricMaxDrawdown,
		MetricTotalReturn, MetricAnnualizedReturn, MetricAnnualizedVolatility,
		MetricWinRate, MetricProfitFactor,
	}
	for _, key := range keys {
		if !res.HasMetric(key) {
			t.Errorf("metric %q missing", key)
		}
	}
}

// TestEngine_RunWithRecorder runs the instrumented path end to end.
func TestEngine_RunWithRecorder(t *testing.T) {
	bars := marketdata.GenerateGBM("SPY", 40, day(0), 100, 0.05, 0.20, 7)
	eng := New(nil)
	if err := eng.AddBars("SPY", bars); err != nil {
		t.Fatalf("AddBars error: %v", err)
	}
	eng.SetRecorder(metrics.NewRecorder())

	params := DefaultParams()
	params.Start = bars[0].Timestamp
	params.End = bars[len(bars)-1].Timestamp
	params.Symbols = []string{"SPY"}

	res, err := eng.Run(volArbStrategy(t), params)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(res.EquityCurve()) != len(bars) {
		t.Errorf("curve length = %d, want %d", len(res.EquityCurve()), len(bars))
	}
}

func TestEngine_RunWindowRestriction(t *testing.T) {
	bars := []types.Bar{
		plainBar("SPY", day(0), 100),
		plainBar("SPY", day(1), 101),
		plainBar("SPY", day(2), 102),
		plainBar("SPY", day(3), 103),
	}
	eng := New(nil)
	if err := eng.AddBars("SPY", bars); err != nil {
		t.Fatalf("AddBars error: %v", err)
	}

	params := DefaultParams()
	params.Start = day(1)
	params.End = day(2)
	params.Symbols = []string{"SPY"}

	res, err := eng.Run(volArbStrategy(t), params)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	curve := res.EquityCurve()
	if len(curve) != 2 {
		t.Fatalf("curve length = %d, want the two bars inside the window", len(curve))
	}
	if !curve[0].Timestamp.Equal(day(1)) || !curve[1].Timestamp.Equal(day(2)) {
		t.Errorf("window = [%v, %v], want [day 1, day 2]", curve[0].Timestamp, curve[1].Timestamp)
	}
}

func TestEngine_RunMultiSymbolClock(t *testing.T) {
	// SPY trades days 0-2, QQQ days 1-3; the clock is their union. The
	// bars carry no implied vol, so the strategy never trades and equity
	// stays at the initial capital.
	eng := New(nil)
	spy := []types.Bar{
		plainBar("SPY", day(0), 100),
		plainBar("SPY", day(1), 101),
		plainBar("SPY", day(2), 102),
	}
	qqq := []types.Bar{
		plainBar("QQQ", day(1), 400),
		plainBar("QQQ", day(2), 401),
		plainBar("QQQ", day(3), 402),
	}
	if err := eng.AddBars("SPY", spy); err != nil {
		t.Fatalf("AddBars error: %v", err)
	}
	if err := eng.AddBars("QQQ", qqq); err != nil {
		t.Fatalf("AddBars error: %v", err)
	}

	params := DefaultParams()
	params.Start = day(0)
	params.End = day(3)
	params.Symbols = []string{"SPY", "QQQ"}

	res, err := eng.Run(volArbStrategy(t), params)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	curve := res.EquityCurve()
	if len(curve) != 4 {
		t.Fatalf("curve length = %d, want 4 union timestamps", len(curve))
	}
	for i, point := range curve {
		if !point.Timestamp.Equal(day(i)) {
			t.Errorf("curve[%d] = %v, want %v", i, point.Timestamp, day(i))
		}
		if !point.Equity.Equal(params.InitialCapital) {
			t.Errorf("equity at %v = %s, want untouched capital", point.Timestamp, point.Equity)
		}
	}
	if len(res.Trades()) != 0 {
		t.Errorf("trades = %d, want 0 without implied vol", len(res.Trades()))
	}
}

func TestEngine_TransactionCosts(t *testing.T) {
	bars := marketdata.GenerateGBM("SPY", 40, day(0), 100, 0.05, 0.20, 7)
	eng := New(nil)
	if err := eng.AddBars("SPY", bars); err != nil {
		t.Fatalf("AddBars error: %v", err)
	}

	params := DefaultParams()
	params.Start = bars[0].Timestamp
	params.End = bars[len(bars)-1].Timestamp
	params.Symbols = []string{"SPY"}
	params.IncludeTransactionCosts = true
	params.CostPerTrade = decimal.NewFromInt(1)
	params.CostPercent = decimal.NewFromFloat(0.001)

	res, err := eng.Run(volArbStrategy(t), params)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	trades := res.Trades()
	if len(trades) == 0 {
		t.Fatal("expected trades to decorate")
	}
	for _, tr := range trades {
		want := decimal.NewFromInt(1).Add(tr.Value().Abs().Mul(decimal.NewFromFloat(0.001)))
		if !tr.TransactionCost.Equal(want) {
			t.Errorf("cost = %s, want %s", tr.TransactionCost, want)
		}
	}

	// Costs off: trades stay undecorated.
	params.IncludeTransactionCosts = false
	res, err = eng.Run(volArbStrategy(t), params)
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	for _, tr := range res.Trades() {
		if !tr.TransactionCost.IsZero() {
			t.Errorf("cost = %s, want zero with costs off", tr.TransactionCost)
		}
	}
}

// plainBar builds a bar with no implied vol attached.
func plainBar(symbol string, ts time.Time, close float64) types.Bar {
	return types.Bar{
		Symbol:    symbol,
		Timestamp: ts,
		Open:      decimal.NewFromFloat(close),
		High:      decimal.NewFromFloat(close + 1),
		Low:       decimal.NewFromFloat(close - 1),
		Close:     decimal.NewFromFloat(close),
		Volume:    1000000,
	}
}

// volArbStrategy builds the vol-arb strategy around a GARCH calibrated
// on sixty bars of simulated returns.
func volArbStrategy(t *testing.T) *strategy.VolArb {
	t.Helper()
	bars := marketdata.GenerateGBM("SPY", 60, day(-90), 100, 0.05, 0.20, 11)
	closes, err := marketdata.ExtractSeries(bars, "close")
	if err != nil {
		t.Fatalf("ExtractSeries error: %v", err)
	}
	returns, err := closes.LogReturn()
	if err != nil {
		t.Fatalf("LogReturn error: %v", err)
	}
	model := volatility.NewDefaultGARCH()
	if err := model.Calibrate(returns.Values()); err != nil {
		t.Fatalf("Calibrate error: %v", err)
	}
	return strategy.New(model, strategy.DefaultConfig(), nil)
}
