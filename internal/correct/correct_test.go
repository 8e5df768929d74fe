package correct

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/meteoworks/radarbias/internal/importer"
	"github.com/meteoworks/radarbias/internal/kalman"
)

func TestScaleMultipliesFiniteCells(t *testing.T) {
	field := mat.NewDense(2, 2, []float64{1, 2, math.NaN(), 0})

	Scale(field, 1.5)

	assert.Equal(t, 1.5, field.At(0, 0))
	assert.Equal(t, 3.0, field.At(0, 1))
	assert.True(t, math.IsNaN(field.At(1, 0)))
	assert.Equal(t, 0.0, field.At(1, 1))
}

func TestApplyFileRoundtrip(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "composite.json")
	outPath := filepath.Join(dir, "corrected.json")

	field := mat.NewDense(2, 3, []float64{0.5, 1.0, 2.0, 0, 4.0, 8.0})
	meta := importer.Metadata{
		Projection: "+proj=longlat",
		Unit:       "mm/h",
	}
	require.NoError(t, importer.WriteJSONFrame(inPath, field, meta))

	state := &kalman.Persisted{CorrFactor: 2.0}
	require.NoError(t, ApplyFile(inPath, outPath, importer.ImportJSONFrame, state))

	got, gotMeta, err := importer.ImportJSONFrame(outPath)
	require.NoError(t, err)
	assert.Equal(t, "mm/h", gotMeta.Unit)
	assert.Equal(t, 1.0, got.At(0, 0))
	assert.Equal(t, 16.0, got.At(1, 2))
}

func TestApplyFilePreservesNoDataCells(t *testing.T) {
	// Real decoders mark cells beyond radar coverage as NaN; correction
	// must scale around them and still write the frame.
	outPath := filepath.Join(t.TempDir(), "corrected.json")

	decode := func(string) (*mat.Dense, importer.Metadata, error) {
		return mat.NewDense(2, 2, []float64{1.0, math.NaN(), 3.0, 4.0}),
			importer.Metadata{Unit: "mm/h"}, nil
	}

	state := &kalman.Persisted{CorrFactor: 2.0}
	require.NoError(t, ApplyFile("composite.pgm", outPath, decode, state))

	got, _, err := importer.ImportJSONFrame(outPath)
	require.NoError(t, err)
	assert.Equal(t, 2.0, got.At(0, 0))
	assert.True(t, math.IsNaN(got.At(0, 1)))
	assert.Equal(t, 6.0, got.At(1, 0))
	assert.Equal(t, 8.0, got.At(1, 1))
}
