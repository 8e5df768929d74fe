// Package gauge provides the rain gauge observation source contract
// and its implementations: an HTTP timeseries client, a Postgres-backed
// client, and a JSON file source for offline runs and tests.
package gauge

import (
	"context"
	"time"

	"github.com/meteoworks/radarbias/internal/domain"
)

// Station is a gauge station with its WGS-84 location.
type Station struct {
	ID  domain.StationID
	Lon float64
	Lat float64
}

// Observation is one gauge-reported accumulation. The timestamp is the
// end of the accumulation period.
type Observation struct {
	Timestamp time.Time
	Station   domain.StationID
	Value     float64
}

// BoundingBox restricts a station query to a lon/lat rectangle.
type BoundingBox struct {
	LLLon, LLLat float64
	URLon, URLat float64
}

// Contains reports whether the point lies within the box.
func (b BoundingBox) Contains(lon, lat float64) bool {
	return lon >= b.LLLon && lon <= b.URLon && lat >= b.LLLat && lat <= b.URLat
}

// Source queries gauge stations and their observations for a time
// range. Implementations return every observation whose timestamp t
// satisfies start <= t <= end, for stations inside the bounding box.
type Source interface {
	Query(ctx context.Context, start, end time.Time, bbox BoundingBox) ([]Station, []Observation, error)
}

// GroupByTimestamp arranges observations into the per-timestamp,
// per-station layout consumed by the pair collector.
func GroupByTimestamp(obs []Observation) map[time.Time]map[domain.StationID]float64 {
	out := make(map[time.Time]map[domain.StationID]float64)
	for _, o := range obs {
		ts := o.Timestamp.UTC()
		if out[ts] == nil {
			out[ts] = make(map[domain.StationID]float64)
		}
		out[ts][o.Station] = o.Value
	}
	return out
}
