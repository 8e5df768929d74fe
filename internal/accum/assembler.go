// Package accum assembles radar rain-rate frames into accumulations
// matching the gauge reporting interval.
package accum

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/meteoworks/radarbias/internal/archive"
	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/importer"
)

// Assembler sums consecutive radar frames into a mean accumulation
// proxy over one gauge reporting period, tolerating a configured number
// of missing frames.
type Assembler struct {
	browser *archive.Browser
	decode  importer.Func
	logger  *slog.Logger

	radarPeriod  int // minutes between radar accumulations
	numTimesteps int // frames per gauge period
	maxMissing   int
}

// NewAssembler validates the period ratio and builds an assembler. The
// gauge accumulation period must be an exact integer multiple of the
// radar accumulation period; anything else is a configuration error,
// detected here before any I/O.
func NewAssembler(browser *archive.Browser, decode importer.Func, radarPeriodMinutes, gaugePeriodMinutes, maxMissing int, logger *slog.Logger) (*Assembler, error) {
	if radarPeriodMinutes <= 0 || gaugePeriodMinutes <= 0 {
		return nil, fmt.Errorf("%w: accumulation periods must be positive (radar %d, gauge %d)",
			domain.ErrConfiguration, radarPeriodMinutes, gaugePeriodMinutes)
	}
	if gaugePeriodMinutes%radarPeriodMinutes != 0 {
		return nil, fmt.Errorf("%w: gauge accumulation period %d not divisible by radar accumulation period %d",
			domain.ErrConfiguration, gaugePeriodMinutes, radarPeriodMinutes)
	}
	if maxMissing < 0 {
		return nil, fmt.Errorf("%w: max missing radar timestamps must be non-negative, got %d",
			domain.ErrConfiguration, maxMissing)
	}
	return &Assembler{
		browser:      browser,
		decode:       decode,
		logger:       logger,
		radarPeriod:  radarPeriodMinutes,
		numTimesteps: gaugePeriodMinutes / radarPeriodMinutes,
		maxMissing:   maxMissing,
	}, nil
}

// NumTimesteps returns the number of radar frames per gauge period.
func (a *Assembler) NumTimesteps() int { return a.numTimesteps }

// Assemble sums the frames of the gauge period ending at ts (inclusive)
// and divides by the number of frames actually found, not the number
// requested. A frame that cannot be resolved or decoded counts as
// missing; when more than the configured maximum are missing the whole
// window is skipped with an error wrapping domain.ErrInsufficientData.
func (a *Assembler) Assemble(ts time.Time) (*mat.Dense, error) {
	var sum *mat.Dense
	missing := 0
	found := 0

	step := time.Duration(a.radarPeriod) * time.Minute
	for i := 0; i < a.numTimesteps; i++ {
		cur := ts.UTC().Add(-time.Duration(i) * step)

		listing, err := a.browser.ListFiles(cur, 0)
		if err != nil || listing.Paths[0] == "" {
			missing++
			continue
		}

		field, _, err := a.decode(listing.Paths[0])
		if err != nil {
			a.logger.Warn("failed to decode radar frame, counting as missing",
				"path", listing.Paths[0], "error", err)
			missing++
			continue
		}

		if sum == nil {
			sum = field
		} else {
			if !sameShape(sum, field) {
				a.logger.Warn("radar frame shape mismatch, counting as missing",
					"path", listing.Paths[0])
				missing++
				continue
			}
			sum.Add(sum, field)
		}
		found++
	}

	if missing > a.maxMissing {
		return nil, fmt.Errorf("%w: ending %s: %d of %d frames missing (max %d)",
			domain.ErrInsufficientData, domain.FormatTimestamp(ts), missing, a.numTimesteps, a.maxMissing)
	}
	if sum == nil {
		// A permissive max_missing can tolerate an entirely empty window.
		return nil, fmt.Errorf("%w: ending %s: no frames found",
			domain.ErrInsufficientData, domain.FormatTimestamp(ts))
	}

	sum.Scale(1/float64(found), sum)
	return sum, nil
}

// IsSkip reports whether the error marks a skipped accumulation window.
func IsSkip(err error) bool {
	return errors.Is(err, domain.ErrInsufficientData)
}

func sameShape(a, b *mat.Dense) bool {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	return ar == br && ac == bc
}
