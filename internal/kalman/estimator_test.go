package kalman

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/observability"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEstimator(t *testing.T, p Params) *Estimator {
	t.Helper()
	e, err := NewEstimator(p, discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	return e
}

func TestNewEstimatorRejectsBadParams(t *testing.T) {
	_, err := NewEstimator(Params{RhoBeta: 2, SigmaBeta: 0.068, SigmaY: 0.25},
		discardLogger(), observability.NewMetricsForTesting())
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestNewEstimatorAcceptsOutOfBoundsGainParams(t *testing.T) {
	// sigma_y < sigma_beta is suspicious but not fatal; the published
	// formulas run unguarded.
	p := Params{RhoBeta: 0.72, SigmaBeta: 0.3, SigmaY: 0.25}
	_, err := NewEstimator(p, discardLogger(), observability.NewMetricsForTesting())
	assert.NoError(t, err)
}

func TestStepFirstInvocationInitializes(t *testing.T) {
	p := DefaultParams()
	e := newTestEstimator(t, p)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// Pairs are present but must be ignored: the first invocation only
	// initializes, it never updates.
	c := domain.PairCollection{}
	c.Add(ts, "a", domain.ObservationPair{Radar: 1, Gauge: 100})

	res := e.Step(nil, c, ts)

	assert.True(t, res.Initialized)
	assert.Nil(t, res.Y)
	assert.Equal(t, 0.0, res.State.Beta)
	assert.InDelta(t, (1-0.72*0.72)*0.068*0.068, res.State.P, 1e-15)
	assert.InDelta(t, math.Pow(10, 0.5*res.State.P), res.CorrFactor, 1e-15)
	assert.Equal(t, Predict(res.State, p), res.Predicted)
}

func TestStepFirstInvocationEmptyPairs(t *testing.T) {
	p := DefaultParams()
	e := newTestEstimator(t, p)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	res := e.Step(nil, domain.PairCollection{}, ts)

	assert.True(t, res.Initialized)
	assert.Equal(t, 0.0, res.State.Beta)
	assert.InDelta(t, 0.0022271, res.State.P, 1e-6)
	assert.InDelta(t, 1.00257, res.CorrFactor, 1e-4)
}

func TestStepWithObservation(t *testing.T) {
	p := DefaultParams()
	e := newTestEstimator(t, p)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	prev := &Persisted{
		FilterState: NewFilterState(p),
		PredState:   Predict(NewFilterState(p), p),
	}
	c := domain.PairCollection{}
	c.Add(ts, "a", domain.ObservationPair{Radar: 1.0, Gauge: 2.0})

	res := e.Step(prev, c, ts)

	require.NotNil(t, res.Y)
	assert.InDelta(t, math.Log10(2), *res.Y, 1e-15)
	assert.False(t, res.Initialized)
	assert.Equal(t, Update(prev.PredState, res.Y, p), res.State)
	assert.Greater(t, res.State.Beta, 0.0)
	assert.Greater(t, res.CorrFactor, 1.0)
}

func TestStepWithoutObservation(t *testing.T) {
	p := DefaultParams()
	e := newTestEstimator(t, p)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	prev := &Persisted{
		FilterState: FilterState{Beta: 0.1, P: 0.002},
		PredState:   PredictedState{BetaMinus: 0.072, PMinus: 0.003},
	}

	res := e.Step(prev, domain.PairCollection{}, ts)

	assert.Nil(t, res.Y)
	assert.Equal(t, 0.072, res.State.Beta)
	assert.InDelta(t, (1-0.72*0.72)*0.068*0.068, res.State.P, 1e-15)
}

func TestStepIgnoresPairsAtOtherTimestamps(t *testing.T) {
	p := DefaultParams()
	e := newTestEstimator(t, p)
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	prev := &Persisted{
		FilterState: NewFilterState(p),
		PredState:   Predict(NewFilterState(p), p),
	}
	c := domain.PairCollection{}
	c.Add(ts.Add(-time.Hour), "a", domain.ObservationPair{Radar: 1, Gauge: 5})

	res := e.Step(prev, c, ts)
	assert.Nil(t, res.Y)
}
