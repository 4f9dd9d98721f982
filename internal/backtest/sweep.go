package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tathienbao/volarb/internal/strategy"
	"github.com/tathienbao/volarb/internal/types"
)

// SweepBuilder derives the strategy for one grid point from a base
// strategy. Builders run concurrently and must not mutate base; derive
// through Clone.
type SweepBuilder func(base strategy.Strategy, point map[string]float64) strategy.Strategy

// SweepResult pairs one grid point with its backtest outcome.
type SweepResult struct {
	Point  map[string]float64
	Result *Result
	Err    error
}

// SetSweepBuilder sets the builder RunSweep uses to apply grid points.
func (e *Engine) SetSweepBuilder(b SweepBuilder) {
	e.sweepBuilder = b
}

// RunSweep backtests the cartesian product of the grid in a bounded
// worker pool. Each point runs on its own engine copy so progress
// callbacks and runs never interleave. Results come back in grid order:
// keys sorted, values in the order given. Cancelling the context stops
// feeding work and returns the context error alongside the results
// finished so far.
func (e *Engine) RunSweep(ctx context.Context, base strategy.Strategy, params Params, grid map[string][]float64, workers int) ([]SweepResult, error) {
	if e.sweepBuilder == nil {
		return nil, fmt.Errorf("%w: sweep builder not set", types.ErrValidation)
	}
	points := expandGrid(grid)
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: empty parameter grid", types.ErrValidation)
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(points) {
		workers = len(points)
	}

	if e.recorder != nil {
		e.recorder.RecordSweepStart(len(points), workers)
	}

	results := make([]SweepResult, len(points))
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				point := points[idx]
				res, err := e.cloneForSweep().Run(e.sweepBuilder(base, point), params)
				results[idx] = SweepResult{Point: point, Result: res, Err: err}
				if e.recorder != nil {
					e.recorder.RecordSweepPointDone()
				}
			}
		}()
	}

	var cancelled error
feed:
	for idx := range points {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}
		select {
		case <-ctx.Done():
			cancelled = ctx.Err()
			break feed
		case jobs <- idx:
		}
	}
	close(jobs)
	wg.Wait()
	if e.recorder != nil {
		e.recorder.RecordSweepFinished()
	}

	if cancelled != nil {
		return results, cancelled
	}
	return results, nil
}

// expandGrid produces the cartesian product of the grid in key-sorted,
// row-major order. Keys with no values are skipped.
func expandGrid(grid map[string][]float64) []map[string]float64 {
	keys := make([]string, 0, len(grid))
	for k := range grid {
		if len(grid[k]) > 0 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		return nil
	}

	points := []map[string]float64{{}}
	for _, k := range keys {
		next := make([]map[string]float64, 0, len(points)*len(grid[k]))
		for _, p := range points {
			for _, v := range grid[k] {
				q := make(map[string]float64, len(p)+1)
				for pk, pv := range p {
					q[pk] = pv
				}
				q[k] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

// cloneForSweep copies the engine without the progress callback or the
// recorder, sharing the immutable bar data. Per-run metrics stay quiet
// during sweeps; only the sweep-level counters move.
func (e *Engine) cloneForSweep() *Engine {
	data := make(map[string][]types.Bar, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return &Engine{logger: e.logger, data: data}
}
