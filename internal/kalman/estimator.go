package kalman

import (
	"log/slog"
	"time"

	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/observability"
)

// Estimator runs one filter invocation per gauge reporting slot. The
// invocations are totally ordered in time: each Update consumes only
// the PredictedState persisted by the immediately preceding one.
type Estimator struct {
	params  Params
	logger  *slog.Logger
	metrics *observability.Metrics
}

// Result is the outcome of one estimator invocation, persisted as the
// next invocation's input.
type Result struct {
	State       FilterState
	Predicted   PredictedState
	CorrFactor  float64
	Y           *float64
	Initialized bool // true when no prior state existed
}

// NewEstimator builds an estimator after validating the parameters.
func NewEstimator(params Params, logger *slog.Logger, metrics *observability.Metrics) (*Estimator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !params.GainInBounds() {
		// Preserves the published formulas; the gain can leave [0,1].
		logger.Warn("sigma_y^2 <= sigma_beta^2: Kalman gain may fall outside [0,1]",
			"sigma_y", params.SigmaY, "sigma_beta", params.SigmaBeta)
	}
	return &Estimator{params: params, logger: logger, metrics: metrics}, nil
}

// Step performs one invocation against the pairs collected for ts.
// With no prior state the filter is initialized fresh and no update is
// applied; otherwise the prior prediction is combined with the observed
// mean field bias at ts. The returned Result always carries the next
// PredictedState and the current correction factor.
func (e *Estimator) Step(prev *Persisted, pairs domain.PairCollection, ts time.Time) Result {
	var res Result

	if prev == nil {
		res.State = NewFilterState(e.params)
		res.Initialized = true
		e.logger.Info("no previous state, initialized Kalman filter from scratch")
	} else {
		res.Y = Observation(pairs, ts)
		if res.Y != nil {
			e.logger.Info("computed log mean field bias from observations",
				"timestamp", domain.FormatTimestamp(ts), "y", *res.Y, "pairs", len(pairs.At(ts)))
			e.metrics.UpdatesWithObservation.Inc()
		} else {
			e.logger.Info("falling back to the no-observation update",
				"timestamp", domain.FormatTimestamp(ts), "reason", domain.ErrNoObservation)
			e.metrics.UpdatesWithoutObservation.Inc()
		}
		res.State = Update(prev.PredState, res.Y, e.params)
	}

	res.CorrFactor = CorrectionFactor(res.State)
	res.Predicted = Predict(res.State, e.params)

	e.metrics.Beta.Set(res.State.Beta)
	e.metrics.Variance.Set(res.State.P)
	e.metrics.CorrFactor.Set(res.CorrFactor)

	e.logger.Info("Kalman state updated",
		"beta", res.State.Beta, "p", res.State.P,
		"corr_factor", res.CorrFactor,
		"beta_minus", res.Predicted.BetaMinus, "p_minus", res.Predicted.PMinus)

	return res
}
