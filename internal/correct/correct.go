// Package correct applies an estimated mean field bias correction to a
// radar composite.
package correct

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/meteoworks/radarbias/internal/importer"
	"github.com/meteoworks/radarbias/internal/kalman"
)

// Scale multiplies every finite cell of the field by the correction
// factor. NaN cells (no data) pass through unchanged.
func Scale(field *mat.Dense, corrFactor float64) {
	rows, cols := field.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := field.At(i, j)
			if math.IsNaN(v) {
				continue
			}
			field.Set(i, j, v*corrFactor)
		}
	}
}

// ApplyFile reads a composite with the given decoder, scales it by the
// persisted correction factor, and writes the corrected composite as a
// JSON frame.
func ApplyFile(inPath, outPath string, decode importer.Func, state *kalman.Persisted) error {
	field, meta, err := decode(inPath)
	if err != nil {
		return fmt.Errorf("read composite %s: %w", inPath, err)
	}
	Scale(field, state.CorrFactor)
	if err := importer.WriteJSONFrame(outPath, field, meta); err != nil {
		return fmt.Errorf("write corrected composite %s: %w", outPath, err)
	}
	return nil
}
