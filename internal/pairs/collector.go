// Package pairs collects colocated radar-gauge observation pairs and
// persists them as pair files for the estimator.
package pairs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/meteoworks/radarbias/internal/accum"
	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/gauge"
	"github.com/meteoworks/radarbias/internal/grid"
	"github.com/meteoworks/radarbias/internal/observability"
)

// RadarSite is the lon/lat location of one radar, used for the
// optional nearest-distance pair attribute.
type RadarSite struct {
	Name string
	Lon  float64
	Lat  float64
}

// Collector builds a PairCollection for a time range: one radar
// accumulation per gauge reporting slot, colocated with the gauge
// observations at the exact slot timestamp, threshold-filtered.
type Collector struct {
	assembler *accum.Assembler
	projector *grid.Projector
	source    gauge.Source
	bbox      gauge.BoundingBox

	gaugePeriodMinutes int
	radarThreshold     float64
	gaugeThreshold     float64

	// withDistance attaches the distance from each gauge to the nearest
	// configured radar site. With no sites configured the attribute is
	// reported absent, never zero.
	withDistance bool
	radarSites   []RadarSite

	logger  *slog.Logger
	metrics *observability.Metrics
}

// Options configures a Collector beyond its collaborators.
type Options struct {
	BBox               gauge.BoundingBox
	GaugePeriodMinutes int
	RadarThreshold     float64
	GaugeThreshold     float64
	WithDistance       bool
	RadarSites         []RadarSite
}

// NewCollector builds a pair collector.
func NewCollector(assembler *accum.Assembler, projector *grid.Projector, source gauge.Source, opts Options, logger *slog.Logger, metrics *observability.Metrics) (*Collector, error) {
	if opts.GaugePeriodMinutes <= 0 {
		return nil, fmt.Errorf("%w: gauge period must be positive, got %d", domain.ErrConfiguration, opts.GaugePeriodMinutes)
	}
	if opts.RadarThreshold < 0 || opts.GaugeThreshold < 0 {
		return nil, fmt.Errorf("%w: thresholds must be non-negative (radar %g, gauge %g)",
			domain.ErrConfiguration, opts.RadarThreshold, opts.GaugeThreshold)
	}
	return &Collector{
		assembler:          assembler,
		projector:          projector,
		source:             source,
		bbox:               opts.BBox,
		gaugePeriodMinutes: opts.GaugePeriodMinutes,
		radarThreshold:     opts.RadarThreshold,
		gaugeThreshold:     opts.GaugeThreshold,
		withDistance:       opts.WithDistance,
		radarSites:         opts.RadarSites,
		logger:             logger,
		metrics:            metrics,
	}, nil
}

// Collect walks the gauge reporting slots from start to end inclusive
// and returns the pairs of every slot that produced both a radar
// accumulation and gauge observations. Skipped windows and filtered
// stations reduce the output without failing the collection.
func (c *Collector) Collect(ctx context.Context, start, end time.Time) (domain.PairCollection, error) {
	stations, obs, err := c.source.Query(ctx, start, end, c.bbox)
	if err != nil {
		return nil, fmt.Errorf("query gauge source: %w", err)
	}
	obsByTime := gauge.GroupByTimestamp(obs)
	c.logger.Info("gauge observations fetched",
		"stations", len(stations), "observations", len(obs))

	locations := c.normalizedLocations(stations)
	distances := c.nearestRadarDistances(stations)

	collection := make(domain.PairCollection)
	computed := 0
	slots := domain.Slots(start, end, c.gaugePeriodMinutes)
	for _, slot := range slots {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		field, err := c.assembler.Assemble(slot)
		if err != nil {
			if accum.IsSkip(err) || errors.Is(err, domain.ErrArchiveUnavailable) {
				c.metrics.WindowsSkipped.Inc()
				c.logger.Warn("skipping accumulation window", "slot", domain.FormatTimestamp(slot), "reason", err)
				continue
			}
			return nil, err
		}
		c.metrics.WindowsComputed.Inc()
		computed++

		slotObs, ok := obsByTime[slot]
		if !ok {
			continue
		}

		height, width := field.Dims()
		n := 0
		for id, gaugeValue := range slotObs {
			loc, known := locations[id]
			if !known {
				continue
			}
			px, in := c.projector.FloorPixel(loc.nx, loc.ny, width, height)
			if !in {
				// Station outside the composite: excluded, not an error.
				continue
			}

			radarValue := field.At(px.Y, px.X)
			if math.IsNaN(radarValue) {
				continue
			}
			if radarValue < c.radarThreshold || gaugeValue < c.gaugeThreshold {
				continue
			}

			pair := domain.ObservationPair{Radar: radarValue, Gauge: gaugeValue}
			if c.withDistance {
				if d, ok := distances[id]; ok {
					pair.Distance = &d
				}
			}
			collection.Add(slot, id, pair)
			n++
		}
		c.metrics.PairsCollected.Add(float64(n))
		c.logger.Info("collected radar-gauge pairs", "slot", domain.FormatTimestamp(slot), "pairs", n)
	}

	if computed == 0 && len(slots) > 0 {
		return nil, fmt.Errorf("%w: no accumulation window between %s and %s could be assembled",
			domain.ErrArchiveUnavailable, domain.FormatTimestamp(start), domain.FormatTimestamp(end))
	}

	if collection.Len() > 0 {
		c.logger.Info("collection summary",
			"pairs", collection.Len(), "mean_abs_error", collection.MeanAbsError())
	}
	return collection, nil
}

type normalized struct {
	nx, ny float64
}

// normalizedLocations projects every station once; slots reuse the
// fractional coordinates against each field's own pixel shape.
func (c *Collector) normalizedLocations(stations []gauge.Station) map[domain.StationID]normalized {
	out := make(map[domain.StationID]normalized, len(stations))
	for _, st := range stations {
		nx, ny := c.projector.Normalize(st.Lon, st.Lat)
		out[st.ID] = normalized{nx: nx, ny: ny}
	}
	return out
}

// nearestRadarDistances computes the great-circle distance (km) from
// each station to its nearest radar site. Empty when the distance
// attribute is off or no sites are configured.
func (c *Collector) nearestRadarDistances(stations []gauge.Station) map[domain.StationID]float64 {
	if !c.withDistance || len(c.radarSites) == 0 {
		return nil
	}
	out := make(map[domain.StationID]float64, len(stations))
	for _, st := range stations {
		best := math.Inf(1)
		for _, site := range c.radarSites {
			if d := haversineKm(st.Lat, st.Lon, site.Lat, site.Lon); d < best {
				best = d
			}
		}
		out[st.ID] = best
	}
	return out
}

// earthRadiusKm is the mean Earth radius used for gauge-radar distances.
const earthRadiusKm = 6371.0

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const degToRad = math.Pi / 180
	dLat := (lat2 - lat1) * degToRad
	dLon := (lon2 - lon1) * degToRad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*degToRad)*math.Cos(lat2*degToRad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
