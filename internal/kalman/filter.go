// Package kalman implements the Kalman filter-based radar-gauge bias
// correction described in:
//
//	S. Chumchean, A. Seed and A. Sharma, Correcting of real-time radar
//	rainfall bias using a Kalman filtering approach, Journal of
//	Hydrology 317, 123-137, 2006.
//
// The filter tracks the logarithmic mean field bias
//
//	beta = 1/n * sum_i log10(G_i / R_i)
//
// over all colocated radar-gauge pairs in the domain, together with
// its variance P.
package kalman

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/meteoworks/radarbias/internal/domain"
)

// Params are the fixed filter parameters. The defaults for RhoBeta and
// SigmaBeta are taken from Chumchean et al.
type Params struct {
	// RhoBeta is the lag-one autocorrelation of the bias process.
	RhoBeta float64 `yaml:"rho_beta"`
	// SigmaBeta is the stationary standard deviation of the bias process.
	SigmaBeta float64 `yaml:"sigma_beta"`
	// SigmaY is the standard deviation of the gauge observation noise.
	SigmaY float64 `yaml:"sigma_y"`
}

// DefaultParams returns the published parameter values.
func DefaultParams() Params {
	return Params{RhoBeta: 0.72, SigmaBeta: 0.068, SigmaY: 0.25}
}

// Validate rejects parameter values outside the model's domain.
func (p Params) Validate() error {
	if p.RhoBeta <= 0 || p.RhoBeta >= 1 {
		return fmt.Errorf("%w: rho_beta must be in (0,1), got %g", domain.ErrConfiguration, p.RhoBeta)
	}
	if p.SigmaBeta < 0 {
		return fmt.Errorf("%w: sigma_beta must be non-negative, got %g", domain.ErrConfiguration, p.SigmaBeta)
	}
	if p.SigmaY < 0 {
		return fmt.Errorf("%w: sigma_y must be non-negative, got %g", domain.ErrConfiguration, p.SigmaY)
	}
	return nil
}

// GainInBounds reports whether the Kalman gain is guaranteed to stay in
// [0,1] for these parameters, i.e. whether sigma_Y^2 > sigma_beta^2.
// The published formulas do not guard the opposite case; callers log it
// rather than clamping.
func (p Params) GainInBounds() bool {
	return p.SigmaY*p.SigmaY > p.SigmaBeta*p.SigmaBeta
}

// stationaryVariance is the stationary process variance (1-rho^2)*sigma_beta^2
// defined by equation (3) of Chumchean et al.
func (p Params) stationaryVariance() float64 {
	return (1 - p.RhoBeta*p.RhoBeta) * p.SigmaBeta * p.SigmaBeta
}

// FilterState is the persistent filter state: the current estimate of
// the mean field bias and its variance. It changes only through Update.
type FilterState struct {
	Beta float64 `json:"beta"`
	P    float64 `json:"p"`
}

// PredictedState is the transient one-step prediction produced by
// Predict and consumed by the next invocation's Update.
type PredictedState struct {
	BetaMinus float64 `json:"beta_minus"`
	PMinus    float64 `json:"p_minus"`
}

// NewFilterState initializes the filter with zero bias and the
// stationary process variance.
func NewFilterState(p Params) FilterState {
	return FilterState{Beta: 0, P: p.stationaryVariance()}
}

// Predict computes the one-step prediction. Pure function: the stored
// state is never mutated.
func Predict(s FilterState, p Params) PredictedState {
	rho2 := p.RhoBeta * p.RhoBeta
	return PredictedState{
		BetaMinus: p.RhoBeta * s.Beta,
		PMinus:    rho2*s.P + (1-rho2)*p.SigmaBeta*p.SigmaBeta,
	}
}

// Update combines the prediction with the observed mean field bias Y.
// A nil Y means no observation was available at the update timestamp;
// the bias then keeps its predicted value and the variance resets to
// the stationary process variance.
func Update(pred PredictedState, y *float64, p Params) FilterState {
	if y == nil {
		return FilterState{
			Beta: pred.BetaMinus,
			P:    p.stationaryVariance(),
		}
	}

	// Kalman gain, equation (9). sigmaM2 = sigma_Y^2 - sigma_beta^2 is
	// the measurement-noise variance; it goes negative when sigma_y is
	// configured below sigma_beta, which the published formulas do not
	// guard. See Params.GainInBounds.
	sigmaM2 := p.SigmaY*p.SigmaY - p.SigmaBeta*p.SigmaBeta
	k := pred.PMinus / (pred.PMinus + sigmaM2)

	return FilterState{
		Beta: pred.BetaMinus + k*(*y-pred.BetaMinus),
		P:    (1 - k) * pred.PMinus,
	}
}

// Observation extracts the observed mean field bias
// Y = mean(log10(gauge/radar)) over all pairs at the exact timestamp.
// Returns nil when the collection holds no pairs for that timestamp.
func Observation(c domain.PairCollection, ts time.Time) *float64 {
	stations := c.At(ts)
	if len(stations) == 0 {
		return nil
	}

	logs := make([]float64, 0, len(stations))
	for _, p := range stations {
		logs = append(logs, math.Log10(p.Gauge/p.Radar))
	}
	y := stat.Mean(logs, nil)
	return &y
}

// CorrectionFactor is the multiplicative radar correction derived from
// the state: 10^(beta + 0.5*P), the mean of the log-normal bias.
func CorrectionFactor(s FilterState) float64 {
	return math.Pow(10, s.Beta+0.5*s.P)
}
