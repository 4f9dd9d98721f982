package backtest

import (
	"context"
	"errors"
	"testing"

	"github.com/tathienbao/volarb/internal/strategy"
	"github.com/tathienbao/volarb/internal/types"
)

func sweepEngine(t *testing.T) *Engine {
	t.Helper()
	eng := New(nil)
	bars := []types.Bar{
		plainBar("SPY", day(0), 100),
		plainBar("SPY", day(1), 101),
		plainBar("SPY", day(2), 102),
	}
	if err := eng.AddBars("SPY", bars); err != nil {
		t.Fatalf("AddBars error: %v", err)
	}
	eng.SetSweepBuilder(func(base strategy.Strategy, point map[string]float64) strategy.Strategy {
		s := base.Clone().(*strategy.VolArb)
		if v, ok := point["holding_period"]; ok {
			s.SetHoldingPeriod(int(v))
		}
		return s
	})
	return eng
}

func sweepParams() Params {
	params := DefaultParams()
	params.Start = day(0)
	params.End = day(2)
	params.Symbols = []string{"SPY"}
	return params
}

func TestRunSweep_GridOrder(t *testing.T) {
	eng := sweepEngine(t)
	grid := map[string][]float64{
		"holding_period":  {5, 10, 20},
		"entry_threshold": {0.1},
	}

	results, err := eng.RunSweep(context.Background(), volArbStrategy(t), sweepParams(), grid, 2)
	if err != nil {
		t.Fatalf("RunSweep error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}

	// Keys sort as entry_threshold, holding_period; holding_period varies
	// fastest, so results follow its value order.
	wantHolding := []float64{5, 10, 20}
	for i, res := range results {
		if res.Err != nil {
			t.Fatalf("point %d error: %v", i, res.Err)
		}
		if res.Result == nil {
			t.Fatalf("point %d has no result", i)
		}
		if got := res.Point["holding_period"]; got != wantHolding[i] {
			t.Errorf("point %d holding_period = %v, want %v", i, got, wantHolding[i])
		}
		if got := res.Point["entry_threshold"]; got != 0.1 {
			t.Errorf("point %d entry_threshold = %v, want 0.1", i, got)
		}
		if len(res.Result.EquityCurve()) != 3 {
			t.Errorf("point %d curve length = %d, want 3", i, len(res.Result.EquityCurve()))
		}
	}
}

func TestRunSweep_WorkerClamp(t *testing.T) {
	eng := sweepEngine(t)
	grid := map[string][]float64{"holding_period": {5, 10}}

	// More workers than points and zero workers both normalize.
	for _, workers := range []int{0, 16} {
		results, err := eng.RunSweep(context.Background(), volArbStrategy(t), sweepParams(), grid, workers)
		if err != nil {
			t.Fatalf("RunSweep(workers=%d) error: %v", workers, err)
		}
		if len(results) != 2 {
			t.Errorf("results = %d, want 2", len(results))
		}
	}
}

func TestRunSweep_Validation(t *testing.T) {
	eng := New(nil)
	_, err := eng.RunSweep(context.Background(), volArbStrategy(t), sweepParams(), map[string][]float64{"x": {1}}, 1)
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("missing builder err = %v, want ErrValidation", err)
	}

	eng = sweepEngine(t)
	_, err = eng.RunSweep(context.Background(), volArbStrategy(t), sweepParams(), nil, 1)
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("empty grid err = %v, want ErrValidation", err)
	}
	_, err = eng.RunSweep(context.Background(), volArbStrategy(t), sweepParams(), map[string][]float64{"x": {}}, 1)
	if !errors.Is(err, types.ErrValidation) {
		t.Errorf("valueless grid err = %v, want ErrValidation", err)
	}
}

func TestRunSweep_Cancellation(t *testing.T) {
	eng := sweepEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.RunSweep(ctx, volArbStrategy(t), sweepParams(), map[string][]float64{"holding_period": {5, 10}}, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestExpandGrid(t *testing.T) {
	points := expandGrid(map[string][]float64{
		"a": {1, 2},
		"b": {10, 20},
	})
	if len(points) != 4 {
		t.Fatalf("points = %d, want 4", len(points))
	}
	want := []map[string]float64{
		{"a": 1, "b": 10},
		{"a": 1, "b": 20},
		{"a": 2, "b": 10},
		{"a": 2, "b": 20},
	}
	for i, p := range points {
		if p["a"] != want[i]["a"] || p["b"] != want[i]["b"] {
			t.Errorf("points[%d] = %v, want %v", i, p, want[i])
		}
	}
}
