package grid

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/meteoworks/radarbias/internal/domain"
)

// Pixel is an integer raster index: X is the column, Y the row in the
// raster's storage order (row 0 at the extent's YOrigin border).
type Pixel struct {
	X, Y int
}

// Projector maps lon/lat points into the pixel space of a field with a
// fixed projection and extent. Pixel shape is supplied per call because
// it belongs to the individual field, not the grid definition.
type Projector struct {
	proj   Projection
	extent domain.GridExtent
}

// ExtentFromCorners projects the geographic corners of a composite
// into its planar extent.
func ExtentFromCorners(proj Projection, llLon, llLat, urLon, urLat float64, origin domain.YOrigin) domain.GridExtent {
	x1, y1 := proj.Forward(llLon, llLat)
	x2, y2 := proj.Forward(urLon, urLat)
	return domain.GridExtent{X1: x1, Y1: y1, X2: x2, Y2: y2, YOrigin: origin}
}

// NewProjector validates the extent and builds a projector.
func NewProjector(proj Projection, extent domain.GridExtent) (*Projector, error) {
	if !extent.Valid() {
		return nil, fmt.Errorf("%w: invalid grid extent %+v", domain.ErrConfiguration, extent)
	}
	return &Projector{proj: proj, extent: extent}, nil
}

// Normalize projects a lon/lat point and scales it across the extent,
// returning fractional grid coordinates. nx and ny are 0 at the
// lower-left corner and 1 at the upper-right corner; the YOrigin flip
// is applied later, when fractions become integer indices.
func (p *Projector) Normalize(lon, lat float64) (nx, ny float64) {
	x, y := p.proj.Forward(lon, lat)
	return p.NormalizeXY(x, y)
}

// NormalizeXY scales an already-projected planar point across the
// extent.
func (p *Projector) NormalizeXY(x, y float64) (nx, ny float64) {
	e := p.extent
	return (x - e.X1) / (e.X2 - e.X1), (y - e.Y1) / (e.Y2 - e.Y1)
}

// FloorPixel converts normalized coordinates to integer indices with
// the floor policy used for pair collection: index = floor(n * dim).
// A coordinate of exactly 1 maps to the last valid index so that a
// gauge on the upper-right corner stays inside the field. Reports
// ok=false for points outside [0,1] on either axis.
func (p *Projector) FloorPixel(nx, ny float64, width, height int) (Pixel, bool) {
	ix, ok := floorIndex(nx, width)
	if !ok {
		return Pixel{}, false
	}
	iy, ok := floorIndex(ny, height)
	if !ok {
		return Pixel{}, false
	}
	if p.extent.YOrigin == domain.YOriginUpper {
		iy = height - 1 - iy
	}
	return Pixel{X: ix, Y: iy}, true
}

// NearestPixel converts normalized coordinates to integer indices with
// the round-to-nearest policy used for generic sampling:
// index = round(n * (dim-1)), ties resolved toward the lower index so
// that the exact field border never rounds out of range.
func (p *Projector) NearestPixel(nx, ny float64, width, height int) (Pixel, bool) {
	ix, ok := nearestIndex(nx, width)
	if !ok {
		return Pixel{}, false
	}
	iy, ok := nearestIndex(ny, height)
	if !ok {
		return Pixel{}, false
	}
	if p.extent.YOrigin == domain.YOriginUpper {
		iy = height - 1 - iy
	}
	return Pixel{X: ix, Y: iy}, true
}

// SampleNearest returns the field values nearest to the given planar
// coordinates under the round policy, in input order. ok[i] is false
// for points whose pixel falls outside the field; the corresponding
// value is NaN.
func (p *Projector) SampleNearest(field *mat.Dense, xs, ys []float64) ([]float64, []bool, error) {
	if len(xs) != len(ys) {
		return nil, nil, fmt.Errorf("x and y must have the same length: %d != %d", len(xs), len(ys))
	}
	height, width := field.Dims()

	values := make([]float64, len(xs))
	ok := make([]bool, len(xs))
	for i := range xs {
		nx, ny := p.NormalizeXY(xs[i], ys[i])
		px, in := p.NearestPixel(nx, ny, width, height)
		if !in {
			values[i] = math.NaN()
			continue
		}
		values[i] = field.At(px.Y, px.X)
		ok[i] = true
	}
	return values, ok, nil
}

// SampleNearestAt is the scalar form of SampleNearest.
func (p *Projector) SampleNearestAt(field *mat.Dense, x, y float64) (float64, bool) {
	height, width := field.Dims()
	nx, ny := p.NormalizeXY(x, y)
	px, in := p.NearestPixel(nx, ny, width, height)
	if !in {
		return math.NaN(), false
	}
	return field.At(px.Y, px.X), true
}

func floorIndex(n float64, dim int) (int, bool) {
	if n < 0 || n > 1 || math.IsNaN(n) {
		return 0, false
	}
	i := int(math.Floor(n * float64(dim)))
	if i == dim {
		// n == 1 exactly: the corner belongs to the last pixel.
		i = dim - 1
	}
	return i, true
}

func nearestIndex(n float64, dim int) (int, bool) {
	if n < 0 || n > 1 || math.IsNaN(n) {
		return 0, false
	}
	// round half down: ceil(v - 0.5)
	i := int(math.Ceil(n*float64(dim-1) - 0.5))
	if i < 0 {
		i = 0
	}
	return i, true
}
