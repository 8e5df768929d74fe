package grid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meteoworks/radarbias/internal/domain"
)

func TestParseProjectionLongLat(t *testing.T) {
	for _, def := range []string{"+proj=longlat", "+proj=latlong +no_defs", "+proj=lonlat"} {
		p, err := ParseProjection(def)
		require.NoError(t, err, def)

		x, y := p.Forward(25.0, 60.5)
		assert.Equal(t, 25.0, x)
		assert.Equal(t, 60.5, y)
	}
}

func TestParseProjectionErrors(t *testing.T) {
	_, err := ParseProjection("+lon_0=25")
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = ParseProjection("+proj=utm +zone=35")
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = ParseProjection("+proj=stere +lat_0=bogus")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestStereographicPoleMapsToFalseOrigin(t *testing.T) {
	p, err := ParseProjection("+proj=stere +lat_0=90 +lat_ts=60 +lon_0=25 +x_0=380886.310 +y_0=3395677.920 +a=6371288")
	require.NoError(t, err)

	x, y := p.Forward(0, 90)
	assert.InDelta(t, 380886.310, x, 1e-6)
	assert.InDelta(t, 3395677.920, y, 1e-6)
}

func TestStereographicTrueScaleLatitude(t *testing.T) {
	// With k0 = (1+sin lat_ts)/2 the map factor k is exactly 1 at
	// lat_ts, so a point on the central meridian at lat_ts sits
	// R*cos(lat_ts) below the pole.
	const radius = 6371288.0
	p, err := ParseProjection("+proj=stere +lat_0=90 +lat_ts=60 +lon_0=25 +a=6371288")
	require.NoError(t, err)

	x, y := p.Forward(25, 60)
	assert.InDelta(t, 0, x, 1e-6)
	assert.InDelta(t, -radius*math.Cos(60*math.Pi/180), y, 1e-6)
}

func TestStereographicHemisphereSuffixes(t *testing.T) {
	a, err := ParseProjection("+proj=stere +lat_0=90N +lon_0=25E +lat_ts=60N")
	require.NoError(t, err)
	b, err := ParseProjection("+proj=stere +lat_0=90 +lon_0=25 +lat_ts=60")
	require.NoError(t, err)

	ax, ay := a.Forward(27.1, 61.2)
	bx, by := b.Forward(27.1, 61.2)
	assert.Equal(t, bx, ax)
	assert.Equal(t, by, ay)

	w, err := ParseProjection("+proj=stere +lat_0=90 +lon_0=97W +lat_ts=60")
	require.NoError(t, err)
	wx, _ := w.Forward(-97, 60)
	assert.InDelta(t, 0, wx, 1e-6)
}

func TestStereographicEastOfCentralMeridian(t *testing.T) {
	p, err := ParseProjection("+proj=stere +lat_0=90 +lat_ts=60 +lon_0=25 +a=6371288")
	require.NoError(t, err)

	x, _ := p.Forward(30, 62)
	assert.Greater(t, x, 0.0)
	x, _ = p.Forward(20, 62)
	assert.Less(t, x, 0.0)
}
