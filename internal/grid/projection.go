// Package grid maps gauge longitude/latitude locations onto radar
// raster pixels. A cartographic projection converts lon/lat to the
// planar coordinate system of the composite; the projected point is
// then normalized across the field extent and converted to integer
// pixel indices under one of two rounding policies.
package grid

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/meteoworks/radarbias/internal/domain"
)

// Projection converts WGS-84 longitude/latitude (degrees) to planar
// coordinates in the raster's coordinate system.
type Projection interface {
	Forward(lon, lat float64) (x, y float64)
}

// ParseProjection builds a Projection from a PROJ-style definition
// string, e.g.
//
//	+proj=stere +lon_0=25E +lat_0=90N +lat_ts=60 +a=6371288 +x_0=380886.310 +y_0=3395677.920 +no_defs
//
// Supported projections are "stere" (spherical stereographic, the
// projection of the FMI composites) and "longlat" (identity, degrees
// treated as planar coordinates, mainly for tests and synthetic data).
func ParseProjection(def string) (Projection, error) {
	params := map[string]string{}
	for _, tok := range strings.Fields(def) {
		tok = strings.TrimPrefix(tok, "+")
		if tok == "" {
			continue
		}
		if k, v, ok := strings.Cut(tok, "="); ok {
			params[k] = v
		} else {
			params[tok] = ""
		}
	}

	switch params["proj"] {
	case "longlat", "latlong", "lonlat":
		return lonLatProjection{}, nil
	case "stere":
		return newStereographic(params)
	case "":
		return nil, fmt.Errorf("%w: projection definition %q has no +proj", domain.ErrConfiguration, def)
	default:
		return nil, fmt.Errorf("%w: unsupported projection %q", domain.ErrConfiguration, params["proj"])
	}
}

// lonLatProjection passes coordinates through unchanged.
type lonLatProjection struct{}

func (lonLatProjection) Forward(lon, lat float64) (float64, float64) { return lon, lat }

// stereographic is a spherical stereographic projection (Snyder 1987,
// eqs. 21-2..21-4) with an optional true-scale latitude and false
// easting/northing.
type stereographic struct {
	radius float64 // sphere radius (m)
	lon0   float64 // central meridian (rad)
	lat0   float64 // latitude of origin (rad)
	k0     float64 // scale factor at origin
	x0, y0 float64 // false easting/northing (m)

	sinLat0, cosLat0 float64
}

func newStereographic(params map[string]string) (Projection, error) {
	p := &stereographic{radius: 6371229.0, k0: 1.0}

	var err error
	if p.radius, err = angleOrDefault(params, "a", p.radius); err != nil {
		return nil, err
	}
	lon0Deg, err := angleOrDefault(params, "lon_0", 0)
	if err != nil {
		return nil, err
	}
	lat0Deg, err := angleOrDefault(params, "lat_0", 90)
	if err != nil {
		return nil, err
	}
	latTSDeg, err := angleOrDefault(params, "lat_ts", lat0Deg)
	if err != nil {
		return nil, err
	}
	if p.x0, err = angleOrDefault(params, "x_0", 0); err != nil {
		return nil, err
	}
	if p.y0, err = angleOrDefault(params, "y_0", 0); err != nil {
		return nil, err
	}

	p.lon0 = lon0Deg * math.Pi / 180
	p.lat0 = lat0Deg * math.Pi / 180
	p.sinLat0 = math.Sin(p.lat0)
	p.cosLat0 = math.Cos(p.lat0)

	// Scale so that the projection is true at lat_ts. For the polar
	// aspect this is the standard (1 + sin(lat_ts))/2 factor.
	if math.Abs(lat0Deg) >= 90-1e-9 {
		p.k0 = (1 + math.Sin(latTSDeg*math.Pi/180)) / 2
	} else if v, ok := params["k_0"]; ok {
		k0, err := parseAngle(v)
		if err != nil {
			return nil, fmt.Errorf("%w: bad k_0 %q", domain.ErrConfiguration, v)
		}
		p.k0 = k0
	}

	return p, nil
}

func (p *stereographic) Forward(lon, lat float64) (float64, float64) {
	lam := lon*math.Pi/180 - p.lon0
	phi := lat * math.Pi / 180

	sinPhi, cosPhi := math.Sin(phi), math.Cos(phi)
	cosLam := math.Cos(lam)

	k := 2 * p.k0 / (1 + p.sinLat0*sinPhi + p.cosLat0*cosPhi*cosLam)

	x := p.radius*k*cosPhi*math.Sin(lam) + p.x0
	y := p.radius*k*(p.cosLat0*sinPhi-p.sinLat0*cosPhi*cosLam) + p.y0
	return x, y
}

// angleOrDefault reads a numeric parameter, accepting the E/W/N/S
// hemisphere suffixes that appear in composite metadata (e.g. "25E").
func angleOrDefault(params map[string]string, key string, def float64) (float64, error) {
	v, ok := params[key]
	if !ok {
		return def, nil
	}
	f, err := parseAngle(v)
	if err != nil {
		return 0, fmt.Errorf("%w: bad projection parameter %s=%q", domain.ErrConfiguration, key, v)
	}
	return f, nil
}

func parseAngle(s string) (float64, error) {
	sign := 1.0
	switch {
	case strings.HasSuffix(s, "E"), strings.HasSuffix(s, "N"):
		s = s[:len(s)-1]
	case strings.HasSuffix(s, "W"), strings.HasSuffix(s, "S"):
		s = s[:len(s)-1]
		sign = -1.0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return sign * f, nil
}
