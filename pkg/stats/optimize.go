package stats

import (
	"fmt"
	"math"
)

// Objective maps a parameter vector to a scalar to be minimized.
type Objective func(params []float64) float64

// Gradient maps a parameter vector to its gradient.
type Gradient func(params []float64) []float64

// Result holds the outcome of an optimization run.
type Result struct {
	Params     []float64
	Objective  float64
	Converged  bool
	Iterations int
}

// GradientDescent minimizes objective by steepest descent. Convergence is
// declared when the objective change between iterations drops below tolerance.
func GradientDescent(objective Objective, gradient Gradient, initial []float64, learningRate float64, maxIterations int, tolerance float64) (Result, error) {
	if len(initial) == 0 {
		return Result{}, fmt.Errorf("%w: empty initial parameters", ErrInvalidInput)
	}
	if learningRate <= 0 {
		return Result{}, fmt.Errorf("%w: learning rate must be positive", ErrInvalidInput)
	}
	if tolerance <= 0 {
		return Result{}, fmt.Errorf("%w: tolerance must be positive", ErrInvalidInput)
	}
	if maxIterations <= 0 {
		return Result{}, fmt.Errorf("%w: max iterations must be positive", ErrInvalidInput)
	}

	params := make([]float64, len(initial))
	copy(params, initial)
	prev := objective(params)

	for iter := 1; iter <= maxIterations; iter++ {
		grad := gradient(params)
		for i := range params {
			params[i] -= learningRate * grad[i]
		}
		obj := objective(params)
		if math.Abs(obj-prev) < tolerance {
			return Result{Params: params, Objective: obj, Converged: true, Iterations: iter}, nil
		}
		prev = obj
	}

	return Result{Params: params, Objective: prev, Converged: false, Iterations: maxIterations}, nil
}

// NewtonRaphson minimizes objective with diagonal-Hessian Newton steps.
// Convergence is declared when the gradient norm drops below tolerance.
// Entries with a near-zero Hessian fall back to a small descent step.
func NewtonRaphson(objective Objective, gradient Gradient, hessianDiag Gradient, initial []float64, maxIterations int, tolerance float64) (Result, error) {
	if len(initial) == 0 {
		return Result{}, fmt.Errorf("%w: empty initial parameters", ErrInvalidInput)
	}
	if tolerance <= 0 {
		return Result{}, fmt.Errorf("%w: tolerance must be positive", ErrInvalidInput)
	}
	if maxIterations <= 0 {
		return Result{}, fmt.Errorf("%w: max iterations must be positive", ErrInvalidInput)
	}

	params := make([]float64, len(initial))
	copy(params, initial)

	for iter := 1; iter <= maxIterations; iter++ {
		grad := gradient(params)
		norm := 0.0
		for _, g := range grad {
			norm += g * g
		}
		if math.Sqrt(norm) < tolerance {
			return Result{Params: params, Objective: objective(params), Converged: true, Iterations: iter}, nil
		}

		hess := hessianDiag(params)
		for i := range params {
			if math.Abs(hess[i]) > 1e-12 {
				params[i] -= grad[i] / hess[i]
			} else {
				params[i] -= 0.01 * grad[i]
			}
		}
	}

	return Result{Params: params, Objective: objective(params), Converged: false, Iterations: maxIterations}, nil
}

// NumericalGradient builds a central-difference gradient for objective.
func NumericalGradient(objective Objective, step float64) Gradient {
	return func(params []float64) []float64 {
		grad := make([]float64, len(params))
		probe := make([]float64, len(params))
		copy(probe, params)
		for i := range params {
			probe[i] = params[i] + step
			up := objective(probe)
			probe[i] = params[i] - step
			down := objective(probe)
			probe[i] = params[i]
			grad[i] = (up - down) / (2 * step)
		}
		return grad
	}
}
