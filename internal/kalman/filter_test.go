package kalman

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteoworks/radarbias/internal/domain"
)

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 0.72, p.RhoBeta)
	assert.Equal(t, 0.068, p.SigmaBeta)
	assert.Equal(t, 0.25, p.SigmaY)
	require.NoError(t, p.Validate())
	assert.True(t, p.GainInBounds())
}

func TestParamsValidate(t *testing.T) {
	cases := []struct {
		name string
		p    Params
	}{
		{"rho zero", Params{RhoBeta: 0, SigmaBeta: 0.068, SigmaY: 0.25}},
		{"rho one", Params{RhoBeta: 1, SigmaBeta: 0.068, SigmaY: 0.25}},
		{"negative sigma_beta", Params{RhoBeta: 0.72, SigmaBeta: -0.1, SigmaY: 0.25}},
		{"negative sigma_y", Params{RhoBeta: 0.72, SigmaBeta: 0.068, SigmaY: -0.25}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, tc.p.Validate(), domain.ErrConfiguration)
		})
	}
}

func TestGainInBoundsFlag(t *testing.T) {
	assert.True(t, Params{RhoBeta: 0.72, SigmaBeta: 0.068, SigmaY: 0.25}.GainInBounds())
	assert.False(t, Params{RhoBeta: 0.72, SigmaBeta: 0.3, SigmaY: 0.25}.GainInBounds())
	assert.False(t, Params{RhoBeta: 0.72, SigmaBeta: 0.25, SigmaY: 0.25}.GainInBounds())
}

func TestNewFilterStateStationaryVariance(t *testing.T) {
	p := DefaultParams()
	s := NewFilterState(p)

	assert.Equal(t, 0.0, s.Beta)
	want := (1 - 0.72*0.72) * 0.068 * 0.068
	assert.InDelta(t, want, s.P, 1e-15)
	assert.GreaterOrEqual(t, s.P, 0.0)
}

func TestPredictIsPureAndDeterministic(t *testing.T) {
	p := DefaultParams()
	s := FilterState{Beta: 0.1, P: 0.003}

	pred1 := Predict(s, p)
	pred2 := Predict(s, p)
	assert.Equal(t, pred1, pred2)
	assert.Equal(t, FilterState{Beta: 0.1, P: 0.003}, s)

	assert.InDelta(t, 0.72*0.1, pred1.BetaMinus, 1e-15)
	rho2 := 0.72 * 0.72
	assert.InDelta(t, rho2*0.003+(1-rho2)*0.068*0.068, pred1.PMinus, 1e-15)
}

func TestUpdateWithObservation(t *testing.T) {
	p := DefaultParams()
	pred := PredictedState{BetaMinus: 0.05, PMinus: 0.004}
	y := 0.2

	s := Update(pred, &y, p)

	sigmaM2 := 0.25*0.25 - 0.068*0.068
	k := 0.004 / (0.004 + sigmaM2)
	assert.InDelta(t, 0.05+k*(0.2-0.05), s.Beta, 1e-15)
	assert.InDelta(t, (1-k)*0.004, s.P, 1e-15)

	// The gain pulls the estimate toward the observation.
	assert.Greater(t, s.Beta, pred.BetaMinus)
	assert.Less(t, s.Beta, y)
	// The update never inflates the variance.
	assert.Less(t, s.P, pred.PMinus)
}

func TestUpdateGainStaysInUnitInterval(t *testing.T) {
	p := DefaultParams()
	sigmaM2 := p.SigmaY*p.SigmaY - p.SigmaBeta*p.SigmaBeta

	for _, pMinus := range []float64{1e-9, 0.001, 0.01, 1, 100} {
		k := pMinus / (pMinus + sigmaM2)
		assert.GreaterOrEqual(t, k, 0.0, "p_minus %g", pMinus)
		assert.LessOrEqual(t, k, 1.0, "p_minus %g", pMinus)
	}
}

func TestUpdateWithoutObservationResetsVariance(t *testing.T) {
	p := DefaultParams()
	pred := PredictedState{BetaMinus: 0.09, PMinus: 0.5}

	s := Update(pred, nil, p)

	assert.Equal(t, 0.09, s.Beta)
	assert.InDelta(t, (1-0.72*0.72)*0.068*0.068, s.P, 1e-15)
}

func TestObservationMeanLogRatio(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := domain.PairCollection{}
	c.Add(ts, "a", domain.ObservationPair{Radar: 1.0, Gauge: 10.0}) // log10 = 1
	c.Add(ts, "b", domain.ObservationPair{Radar: 10.0, Gauge: 1.0}) // log10 = -1
	c.Add(ts, "c", domain.ObservationPair{Radar: 2.0, Gauge: 2.0})  // log10 = 0

	y := Observation(c, ts)
	require.NotNil(t, y)
	assert.InDelta(t, 0.0, *y, 1e-15)
}

func TestObservationSingleStation(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := domain.PairCollection{}
	c.Add(ts, "a", domain.ObservationPair{Radar: 1.0, Gauge: 2.0})

	y := Observation(c, ts)
	require.NotNil(t, y)
	assert.InDelta(t, math.Log10(2), *y, 1e-15)
}

func TestObservationNilWhenNoPairsAtTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := domain.PairCollection{}
	c.Add(ts.Add(time.Hour), "a", domain.ObservationPair{Radar: 1, Gauge: 1})

	assert.Nil(t, Observation(c, ts))
	assert.Nil(t, Observation(domain.PairCollection{}, ts))
}

func TestCorrectionFactor(t *testing.T) {
	assert.InDelta(t, 1.0, CorrectionFactor(FilterState{Beta: 0, P: 0}), 1e-15)
	assert.InDelta(t, math.Pow(10, 0.1+0.5*0.002), CorrectionFactor(FilterState{Beta: 0.1, P: 0.002}), 1e-15)
}

func TestFilterReachesFixedPointUnderConstantBias(t *testing.T) {
	// With the same observation every step the filter settles into a
	// fixed point between zero and the observation: the AR(1) prior
	// keeps pulling the estimate toward zero between updates.
	p := DefaultParams()
	y := math.Log10(1.2)

	s := NewFilterState(p)
	for i := 0; i < 200; i++ {
		s = Update(Predict(s, p), &y, p)
	}

	assert.Greater(t, s.Beta, 0.0)
	assert.Less(t, s.Beta, y)

	// The fixed point satisfies beta = k*y / (1 - rho*(1-k)) with the
	// converged gain k.
	pred := Predict(s, p)
	k := pred.PMinus / (pred.PMinus + p.SigmaY*p.SigmaY - p.SigmaBeta*p.SigmaBeta)
	want := k * y / (1 - p.RhoBeta*(1-k))
	assert.InDelta(t, want, s.Beta, 1e-9)

	next := Update(Predict(s, p), &y, p)
	assert.InDelta(t, s.Beta, next.Beta, 1e-9)
	assert.InDelta(t, s.P, next.P, 1e-12)
}
