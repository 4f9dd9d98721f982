package stats

import (
	"errors"
	"testing"
)

func quadratic(params []float64) float64 {
	d := params[0] - 3
	return d * d
}

func quadraticGrad(params []float64) []float64 {
	return []float64{2 * (params[0] - 3)}
}

func quadraticHess(params []float64) []float64 {
	return []float64{2}
}

// TestGradientDescent tests convergence on a 1D quadratic.
func TestGradientDescent(t *testing.T) {
	res, err := GradientDescent(quadratic, quadraticGrad, []float64{0}, 0.1, 1000, 1e-12)
	if err != nil {
		t.Fatalf("GradientDescent error: %v", err)
	}
	if !res.Converged {
		t.Error("GradientDescent did not converge")
	}
	if !almostEqual(res.Params[0], 3, 1e-4) {
		t.Errorf("minimum at %v, want 3", res.Params[0])
	}
	if res.Objective > 1e-6 {
		t.Errorf("objective = %v, want near 0", res.Objective)
	}
}

// TestGradientDescent_Validation tests input checks.
func TestGradientDescent_Validation(t *testing.T) {
	tests := []struct {
		name    string
		initial []float64
		lr      float64
		maxIter int
		tol     float64
	}{
		{"empty params", nil, 0.1, 100, 1e-8},
		{"zero learning rate", []float64{0}, 0, 100, 1e-8},
		{"negative tolerance", []float64{0}, 0.1, 100, -1},
		{"zero iterations", []float64{0}, 0.1, 0, 1e-8},
	}

	for _, tt := range tests {
		_, err := GradientDescent(quadratic, quadraticGrad, tt.initial, tt.lr, tt.maxIter, tt.tol)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: error = %v, want ErrInvalidInput", tt.name, err)
		}
	}
}

// TestGradientDescent_MaxIterations tests the non-converged path.
func TestGradientDescent_MaxIterations(t *testing.T) {
	// One iteration with a tiny step cannot converge at this tolerance.
	res, err := GradientDescent(quadratic, quadraticGrad, []float64{100}, 1e-6, 1, 1e-12)
	if err != nil {
		t.Fatalf("GradientDescent error: %v", err)
	}
	if res.Converged {
		t.Error("expected non-converged result")
	}
	if res.Iterations != 1 {
		t.Errorf("Iterations = %d, want 1", res.Iterations)
	}
}

// TestNewtonRaphson tests convergence on a 1D quadratic.
func TestNewtonRaphson(t *testing.T) {
	res, err := NewtonRaphson(quadratic, quadraticGrad, quadraticHess, []float64{0}, 100, 1e-10)
	if err != nil {
		t.Fatalf("NewtonRaphson error: %v", err)
	}
	if !res.Converged {
		t.Error("NewtonRaphson did not converge")
	}
	// Newton lands on a quadratic minimum in one step.
	if !almostEqual(res.Params[0], 3, 1e-8) {
		t.Errorf("minimum at %v, want 3", res.Params[0])
	}
}

// TestNewtonRaphson_FlatHessian tests the small-step fallback.
func TestNewtonRaphson_FlatHessian(t *testing.T) {
	flatHess := func(params []float64) []float64 { return []float64{0} }

	res, err := NewtonRaphson(quadratic, quadraticGrad, flatHess, []float64{0}, 5000, 1e-8)
	if err != nil {
		t.Fatalf("NewtonRaphson error: %v", err)
	}
	// Fallback steps are 0.01 * gradient, which still walks toward 3.
	if !almostEqual(res.Params[0], 3, 1e-2) {
		t.Errorf("minimum at %v, want near 3", res.Params[0])
	}
}

// TestNumericalGradient tests agreement with the analytic gradient.
func TestNumericalGradient(t *testing.T) {
	grad := NumericalGradient(quadratic, 1e-6)

	for _, x := range []float64{-5, 0, 3, 10} {
		got := grad([]float64{x})[0]
		want := quadraticGrad([]float64{x})[0]
		if !almostEqual(got, want, 1e-4) {
			t.Errorf("NumericalGradient at %v = %v, want %v", x, got, want)
		}
	}
}
