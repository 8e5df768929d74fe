package domain

import (
	"math"
	"time"
)

// StationID identifies a rain gauge station (e.g. an FMISID).
type StationID string

// ObservationPair is one colocated radar-gauge accumulation pair. Both
// values are non-negative after threshold filtering. Distance is the
// optional distance from the gauge to the nearest radar; it is nil when
// the distance attribute was not requested or could not be computed,
// never a silent zero.
type ObservationPair struct {
	Radar    float64  `json:"radar"`
	Gauge    float64  `json:"gauge"`
	Distance *float64 `json:"distance,omitempty"`
}

// PairCollection maps an accumulation end timestamp to the observation
// pairs collected at that timestamp, keyed by station.
type PairCollection map[time.Time]map[StationID]ObservationPair

// Add inserts a pair, creating the per-timestamp map on first use.
func (c PairCollection) Add(ts time.Time, id StationID, p ObservationPair) {
	ts = ts.UTC()
	if c[ts] == nil {
		c[ts] = make(map[StationID]ObservationPair)
	}
	c[ts][id] = p
}

// At returns the pairs at the exact timestamp, or nil if none exist.
func (c PairCollection) At(ts time.Time) map[StationID]ObservationPair {
	return c[ts.UTC()]
}

// Len returns the total number of pairs across all timestamps.
func (c PairCollection) Len() int {
	n := 0
	for _, m := range c {
		n += len(m)
	}
	return n
}

// MeanAbsError returns the mean absolute radar-gauge difference over
// all pairs, or NaN when the collection is empty.
func (c PairCollection) MeanAbsError() float64 {
	sum := 0.0
	n := 0
	for _, m := range c {
		for _, p := range m {
			sum += math.Abs(p.Radar - p.Gauge)
			n++
		}
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}
