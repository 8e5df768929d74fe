package accum

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/meteoworks/radarbias/internal/archive"
	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/importer"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeFrame stores a constant 2x2 frame for the timestamp.
func writeFrame(t *testing.T, root string, ts time.Time, value float64) {
	t.Helper()
	path := filepath.Join(root, domain.FormatTimestamp(ts)+"_composite.json")
	field := mat.NewDense(2, 2, []float64{value, value, value, value})
	require.NoError(t, importer.WriteJSONFrame(path, field, importer.Metadata{Unit: "mm/h"}))
}

func newTestAssembler(t *testing.T, root string, maxMissing int) *Assembler {
	t.Helper()
	browser, err := archive.NewBrowser(archive.Template{
		RootPath:    root,
		FnPattern:   "%Y%m%d%H%M_composite",
		FnExt:       "json",
		StepMinutes: 5,
	})
	require.NoError(t, err)

	a, err := NewAssembler(browser, importer.ImportJSONFrame, 5, 60, maxMissing, discardLogger())
	require.NoError(t, err)
	return a
}

func TestNewAssemblerValidation(t *testing.T) {
	browser, err := archive.NewBrowser(archive.Template{
		RootPath: t.TempDir(), FnPattern: "%Y%m%d%H%M", FnExt: "json", StepMinutes: 5,
	})
	require.NoError(t, err)

	_, err = NewAssembler(browser, importer.ImportJSONFrame, 7, 60, 0, discardLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewAssembler(browser, importer.ImportJSONFrame, 0, 60, 0, discardLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	_, err = NewAssembler(browser, importer.ImportJSONFrame, 5, 60, -1, discardLogger())
	assert.ErrorIs(t, err, domain.ErrConfiguration)

	a, err := NewAssembler(browser, importer.ImportJSONFrame, 5, 60, 2, discardLogger())
	require.NoError(t, err)
	assert.Equal(t, 12, a.NumTimesteps())
}

func TestAssembleFullWindow(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// 12 frames of 5 min each: values 1..12 for the hour ending at ts.
	for i := 0; i < 12; i++ {
		writeFrame(t, root, ts.Add(-time.Duration(i*5)*time.Minute), float64(i+1))
	}

	a := newTestAssembler(t, root, 0)
	field, err := a.Assemble(ts)
	require.NoError(t, err)

	// mean of 1..12 = 6.5
	assert.InDelta(t, 6.5, field.At(0, 0), 1e-12)
	assert.InDelta(t, 6.5, field.At(1, 1), 1e-12)
}

func TestAssembleDividesByFoundFrames(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// 10 of 12 frames present, all with value 3.
	for i := 0; i < 12; i++ {
		if i == 4 || i == 7 {
			continue
		}
		writeFrame(t, root, ts.Add(-time.Duration(i*5)*time.Minute), 3)
	}

	a := newTestAssembler(t, root, 2)
	field, err := a.Assemble(ts)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, field.At(0, 0), 1e-12)
}

func TestAssembleTooManyMissing(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	// 9 of 12 frames present, 3 missing with a tolerance of 2.
	for i := 3; i < 12; i++ {
		writeFrame(t, root, ts.Add(-time.Duration(i*5)*time.Minute), 1)
	}

	a := newTestAssembler(t, root, 2)
	_, err := a.Assemble(ts)
	require.ErrorIs(t, err, domain.ErrInsufficientData)
	assert.True(t, IsSkip(err))
}

func TestAssembleEmptyWindowWithPermissiveTolerance(t *testing.T) {
	a := newTestAssembler(t, t.TempDir(), 12)
	_, err := a.Assemble(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, domain.ErrInsufficientData)
}

func TestAssembleCorruptFrameCountsAsMissing(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i < 12; i++ {
		writeFrame(t, root, ts.Add(-time.Duration(i*5)*time.Minute), 2)
	}
	// The newest frame is unreadable.
	path := filepath.Join(root, domain.FormatTimestamp(ts)+"_composite.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	a := newTestAssembler(t, root, 1)
	field, err := a.Assemble(ts)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, field.At(0, 0), 1e-12)
}

func TestAssembleShapeMismatchCountsAsMissing(t *testing.T) {
	root := t.TempDir()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 11; i++ {
		writeFrame(t, root, ts.Add(-time.Duration(i*5)*time.Minute), 5)
	}
	// The oldest frame has a different shape than the one that seeded
	// the sum, so it counts as missing.
	odd := mat.NewDense(3, 3, nil)
	oldest := ts.Add(-55 * time.Minute)
	path := filepath.Join(root, domain.FormatTimestamp(oldest)+"_composite.json")
	require.NoError(t, importer.WriteJSONFrame(path, odd, importer.Metadata{Unit: "mm/h"}))

	a := newTestAssembler(t, root, 1)
	field, err := a.Assemble(ts)
	require.NoError(t, err)

	rows, cols := field.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 2, cols)
	assert.InDelta(t, 5.0, field.At(0, 0), 1e-12)
}

func TestIsSkip(t *testing.T) {
	assert.False(t, IsSkip(domain.ErrArchiveUnavailable))
	assert.True(t, IsSkip(domain.ErrInsufficientData))
	assert.False(t, IsSkip(nil))
}
