// Package volatility implements GARCH(1,1) conditional volatility
// modeling and simpler historical estimators.
package volatility

import (
	"fmt"
	"math"
	"time"

	"github.com/tathienbao/volarb/internal/marketdata"
	"github.com/tathienbao/volarb/internal/types"
	"github.com/tathienbao/volarb/pkg/stats"
)

const (
	// garchParams is the parameter count k used by the information criteria.
	garchParams = 3

	// minCalibrationObs is the smallest return sample Calibrate accepts.
	minCalibrationObs = 10

	mleGradStep      = 1e-6
	mleLearningRate  = 1e-5
	mleMaxIterations = 200
	mleTolerance     = 1e-9
)

// GARCH is a GARCH(1,1) conditional variance model:
//
//	sigma2_t = omega + alpha*r2_{t-1} + beta*sigma2_{t-1}
//
// A model starts uncalibrated; Calibrate or CalibrateMLE fits it to a
// return series and re-calibration overwrites all state.
type GARCH struct {
	omega float64
	alpha float64
	beta  float64

	longRun      float64
	lastVariance float64

	calibrated bool
	logLik     float64
	nObs       int

	anchor time.Time
}

// NewGARCH returns a model with the given parameters. The triple must be
// stationary: omega >= 0, alpha and beta in [0,1), alpha+beta < 1. The
// model still needs calibration before it can forecast.
func NewGARCH(omega, alpha, beta float64) (*GARCH, error) {
	if !validParams(omega, alpha, beta) {
		return nil, fmt.Errorf("%w: non-stationary GARCH parameters omega=%v alpha=%v beta=%v",
			types.ErrValidation, omega, alpha, beta)
	}
	return &GARCH{
		omega:   omega,
		alpha:   alpha,
		beta:    beta,
		longRun: omega / (1 - alpha - beta),
	}, nil
}

// NewDefaultGARCH returns an uncalibrated model with zero parameters.
func NewDefaultGARCH() *GARCH {
	return &GARCH{}
}

func validParams(omega, alpha, beta float64) bool {
	return omega >= 0 &&
		alpha >= 0 && alpha < 1 &&
		beta >= 0 && beta < 1 &&
		alpha+beta < 1
}

// Calibrate fits the model to a return series by moment matching: omega
// absorbs a tenth of the sample variance, alpha and beta start at 0.1 and
// 0.8. Needs at least 10 observations.
func (g *GARCH) Calibrate(returns []float64) error {
	if len(returns) < minCalibrationObs {
		return fmt.Errorf("%w: %d returns, need %d", types.ErrInsufficientData, len(returns), minCalibrationObs)
	}

	variance, err := stats.Variance(returns)
	if err != nil {
		return fmt.Errorf("sample variance: %w", err)
	}

	g.omega = 0.1 * variance
	g.alpha = 0.1
	g.beta = 0.8
	if g.alpha+g.beta >= 1 {
		g.alpha = 0.05
		g.beta = 0.9
	}

	g.longRun = g.omega / (1 - g.alpha - g.beta)
	g.lastVariance = g.longRun
	g.calibrated = true
	g.nObs = len(returns)
	g.logLik = g.LogLikelihood(returns)
	return nil
}

// CalibrateMLE refines the moment-matching fit by gradient descent on the
// negative log-likelihood. The long-run variance is targeted at the sample
// variance, leaving alpha and beta free. The refinement is kept only when
// it stays stationary and improves the likelihood.
func (g *GARCH) CalibrateMLE(returns []float64) error {
	if err := g.Calibrate(returns); err != nil {
		return err
	}

	sampleVar, err := stats.Variance(returns)
	if err != nil || sampleVar <= 0 {
		return nil
	}

	negLL := func(p []float64) float64 {
		alpha, beta := p[0], p[1]
		omega := sampleVar * (1 - alpha - beta)
		if !validParams(omega, alpha, beta) {
			return math.Inf(1)
		}
		trial := GARCH{omega: omega, alpha: alpha, beta: beta, longRun: sampleVar, calibrated: true}
		return -trial.LogLikelihood(returns)
	}

	grad := stats.NumericalGradient(negLL, mleGradStep)
	res, err := stats.GradientDescent(negLL, grad, []float64{g.alpha, g.beta},
		mleLearningRate, mleMaxIterations, mleTolerance)
	if err != nil {
		return fmt.Errorf("likelihood refinement: %w", err)
	}

	alpha, beta := res.Params[0], res.Params[1]
	omega := sampleVar * (1 - alpha - beta)
	if !validParams(omega, alpha, beta) {
		return nil
	}
	refined := -negLL(res.Params)
	if !(refined > g.logLik) {
		return nil
	}

	g.omega, g.alpha, g.beta = omega, alpha, beta
	g.longRun = omega / (1 - alpha - beta)
	g.lastVariance = g.longRun
	g.logLik = refined
	return nil
}

// Warmup readies an externally parametrized model for forecasting: the
// conditional variance starts at the long-run level and is advanced
// through the given returns. Use after NewGARCH when the parameters come
// from a fit done elsewhere; Calibrate would overwrite them.
func (g *GARCH) Warmup(returns []float64) error {
	if g.omega <= 0 {
		return fmt.Errorf("%w: warmup needs positive omega, got %v", types.ErrValidation, g.omega)
	}
	g.lastVariance = g.longRun
	g.calibrated = true
	for _, ret := range returns {
		g.lastVariance = g.omega + g.alpha*ret*ret + g.beta*g.lastVariance
	}
	g.nObs = len(returns)
	g.logLik = g.LogLikelihood(returns)
	return nil
}

// Forecast returns the mean-reverting volatility forecast at the given
// horizon in bars.
func (g *GARCH) Forecast(horizon int) (float64, error) {
	if !g.calibrated {
		return 0, fmt.Errorf("%w: calibrate before forecasting", types.ErrNotCalibrated)
	}
	if horizon <= 0 {
		return 0, fmt.Errorf("%w: horizon must be positive, got %d", types.ErrValidation, horizon)
	}
	persistence := math.Pow(g.alpha+g.beta, float64(horizon))
	return math.Sqrt(g.longRun + persistence*(g.lastVariance-g.longRun)), nil
}

// ForecastSeries returns forecasts for horizons 1..horizon stamped on
// successive business days after the anchor.
func (g *GARCH) ForecastSeries(horizon int) (*marketdata.Series, error) {
	if _, err := g.Forecast(1); err != nil {
		return nil, err
	}

	anchor := g.anchor
	if anchor.IsZero() {
		anchor = time.Now()
	}

	s := marketdata.NewSeries("volatility_forecast")
	for h := 1; h <= horizon; h++ {
		v, err := g.Forecast(h)
		if err != nil {
			return nil, err
		}
		s.Add(marketdata.AddBusinessDays(anchor, h), v)
	}
	return s, nil
}

// SetAnchor pins the ForecastSeries start date. The zero time means "now".
func (g *GARCH) SetAnchor(t time.Time) {
	g.anchor = t
}

// Update advances the conditional variance with a new return observation.
func (g *GARCH) Update(ret float64) error {
	if !g.calibrated {
		return fmt.Errorf("%w: calibrate before updating", types.ErrNotCalibrated)
	}
	g.lastVariance = g.omega + g.alpha*ret*ret + g.beta*g.lastVariance
	return nil
}

// LogLikelihood returns the Gaussian log-likelihood of the return series
// under the current parameters. An empty series or an unparametrized
// uncalibrated model scores negative infinity.
func (g *GARCH) LogLikelihood(returns []float64) float64 {
	if len(returns) == 0 {
		return math.Inf(-1)
	}
	if !g.calibrated && g.omega == 0 && g.alpha == 0 && g.beta == 0 {
		return math.Inf(-1)
	}

	variance := g.longRun
	ll := 0.0
	for i := 1; i < len(returns); i++ {
		r := returns[i-1]
		variance = g.omega + g.alpha*r*r + g.beta*variance
		if variance > 0 {
			ll -= 0.5 * (math.Log(2*math.Pi) + math.Log(variance) + returns[i]*returns[i]/variance)
		}
	}
	return ll
}

// AIC returns the Akaike information criterion of the last calibration.
func (g *GARCH) AIC() float64 {
	if !g.calibrated {
		return math.Inf(1)
	}
	return -2*g.logLik + 2*garchParams
}

// BIC returns the Bayesian information criterion of the last calibration,
// using the sample size the model was actually fitted on.
func (g *GARCH) BIC() float64 {
	if !g.calibrated {
		return math.Inf(1)
	}
	return -2*g.logLik + garchParams*math.Log(float64(g.nObs))
}

// IsStationary reports whether alpha+beta < 1.
func (g *GARCH) IsStationary() bool {
	return g.alpha+g.beta < 1
}

// IsCalibrated reports whether the model has been fitted.
func (g *GARCH) IsCalibrated() bool {
	return g.calibrated
}

// Omega returns the constant variance term.
func (g *GARCH) Omega() float64 { return g.omega }

// Alpha returns the squared-return coefficient.
func (g *GARCH) Alpha() float64 { return g.alpha }

// Beta returns the lagged-variance coefficient.
func (g *GARCH) Beta() float64 { return g.beta }

// LongRunVariance returns omega/(1-alpha-beta).
func (g *GARCH) LongRunVariance() float64 { return g.longRun }

// LastVariance returns the most recent conditional variance.
func (g *GARCH) LastVariance() float64 { return g.lastVariance }

// SampleSize returns the observation count of the last calibration.
func (g *GARCH) SampleSize() int { return g.nObs }

// Parameters returns the fitted parameters keyed by name.
func (g *GARCH) Parameters() map[string]float64 {
	return map[string]float64{
		"omega":             g.omega,
		"alpha":             g.alpha,
		"beta":              g.beta,
		"long_run_variance": g.longRun,
		"last_variance":     g.lastVariance,
	}
}

// Name identifies the model.
func (g *GARCH) Name() string { return "GARCH(1,1)" }

// Clone returns an independent copy with identical state.
func (g *GARCH) Clone() *GARCH {
	c := *g
	return &c
}
