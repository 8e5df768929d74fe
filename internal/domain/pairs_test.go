package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPairCollectionAddAndAt(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := PairCollection{}

	c.Add(ts, "100001", ObservationPair{Radar: 1.2, Gauge: 1.5})
	c.Add(ts, "100002", ObservationPair{Radar: 0.8, Gauge: 0.7})
	c.Add(ts.Add(time.Hour), "100001", ObservationPair{Radar: 2.0, Gauge: 2.4})

	assert.Equal(t, 3, c.Len())
	require.Len(t, c.At(ts), 2)
	assert.Equal(t, 1.5, c.At(ts)["100001"].Gauge)
	assert.Nil(t, c.At(ts.Add(2*time.Hour)))
}

func TestPairCollectionAddNormalizesToUTC(t *testing.T) {
	helsinki := time.FixedZone("EET", 2*60*60)
	local := time.Date(2024, 3, 1, 14, 0, 0, 0, helsinki)
	utc := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	c := PairCollection{}
	c.Add(local, "100001", ObservationPair{Radar: 1, Gauge: 1})

	assert.Len(t, c.At(utc), 1)
	assert.Len(t, c.At(local), 1)
}

func TestMeanAbsError(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	c := PairCollection{}
	c.Add(ts, "a", ObservationPair{Radar: 1.0, Gauge: 1.5})
	c.Add(ts, "b", ObservationPair{Radar: 2.0, Gauge: 1.0})

	assert.InDelta(t, 0.75, c.MeanAbsError(), 1e-12)
}

func TestMeanAbsErrorEmpty(t *testing.T) {
	assert.True(t, math.IsNaN(PairCollection{}.MeanAbsError()))
}
