// Command genfixtures generates a synthetic radar archive and a gauge
// observation fixture with a known multiplicative bias between them.
// It uses the actual archive, grid, and importer packages so that the
// fixtures match real pipeline behavior, and prints the expected
// filter observation for updating test assertions.
//
// Usage:
//
//	go run ./cmd/genfixtures \
//	  -archive-dir testdata/archive \
//	  -gauge-out testdata/gauges.json \
//	  -start 202403011200 -end 202403011500
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/meteoworks/radarbias/internal/archive"
	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/grid"
	"github.com/meteoworks/radarbias/internal/importer"
	"gonum.org/v1/gonum/mat"
)

const (
	timestepMinutes    = 5
	gaugePeriodMinutes = 60

	llLon, llLat = 24.0, 60.0
	urLon, urLat = 26.0, 62.0
)

// Fixed station layout inside the composite extent.
var stations = []struct {
	id       string
	lon, lat float64
}{
	{"100001", 24.5, 60.5},
	{"100002", 25.0, 61.0},
	{"100003", 25.5, 61.5},
	{"100004", 24.3, 61.8},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	archiveDir := flag.String("archive-dir", "", "output directory for the radar archive")
	gaugeOut := flag.String("gauge-out", "", "output path for the gauge fixture JSON")
	startStr := flag.String("start", "202403011200", "first gauge slot, YYYYMMDDHHMM UTC")
	endStr := flag.String("end", "202403011500", "last gauge slot, YYYYMMDDHHMM UTC")
	width := flag.Int("width", 100, "composite width in pixels")
	height := flag.Int("height", 100, "composite height in pixels")
	bias := flag.Float64("bias", 1.2, "gauge/radar multiplicative bias")
	flag.Parse()

	if *archiveDir == "" || *gaugeOut == "" {
		flag.Usage()
		return fmt.Errorf("missing required flags: -archive-dir, -gauge-out")
	}

	start, err := domain.ParseTimestamp(*startStr)
	if err != nil {
		return fmt.Errorf("-start: %w", err)
	}
	end, err := domain.ParseTimestamp(*endStr)
	if err != nil {
		return fmt.Errorf("-end: %w", err)
	}

	browser, err := archive.NewBrowser(archive.Template{
		RootPath:    *archiveDir,
		PathFmt:     "%Y/%m/%d",
		FnPattern:   "%Y%m%d%H%M_composite",
		FnExt:       "json",
		StepMinutes: timestepMinutes,
	})
	if err != nil {
		return err
	}

	proj, err := grid.ParseProjection("+proj=longlat")
	if err != nil {
		return err
	}
	extent := grid.ExtentFromCorners(proj, llLon, llLat, urLon, urLat, domain.YOriginUpper)
	projector, err := grid.NewProjector(proj, extent)
	if err != nil {
		return err
	}

	// The first gauge slot needs the frames of the full hour behind it.
	frameStart := start.Add(-time.Duration(gaugePeriodMinutes-timestepMinutes) * time.Minute)
	frames := writeArchive(browser, frameStart, end, *width, *height)
	if err := writeGauges(*gaugeOut, projector, start, end, *width, *height, *bias); err != nil {
		return err
	}

	log.Printf("wrote %d frames under %s", frames, *archiveDir)
	log.Printf("wrote gauge fixture: %s", *gaugeOut)
	fmt.Println("\n=== Stats for updating test assertions ===")
	fmt.Printf("Stations: %d\n", len(stations))
	fmt.Printf("Gauge slots: %d\n", len(domain.Slots(start, end, gaugePeriodMinutes)))
	fmt.Printf("Bias: %g (expected observation Y = %.6f)\n", *bias, math.Log10(*bias))
	return nil
}

// rate is the synthetic rain intensity in mm/h at fractional grid
// coordinates (nx, ny measured from the lower-left corner) and time t.
// Always positive so every pair survives thresholding.
func rate(nx, ny float64, t time.Time) float64 {
	phase := float64(t.Unix()%86400) / 86400 * 2 * math.Pi
	return 1.5 +
		0.8*math.Sin(2*math.Pi*nx)*math.Cos(2*math.Pi*ny) +
		0.4*math.Sin(phase)
}

// frameValue is the value stored in the frame cell (col, row) at time t,
// with row 0 at the upper border.
func frameValue(col, row, width, height int, t time.Time) float64 {
	nx := (float64(col) + 0.5) / float64(width)
	ny := 1 - (float64(row)+0.5)/float64(height)
	return rate(nx, ny, t)
}

func writeArchive(browser *archive.Browser, from, to time.Time, width, height int) int {
	meta := importer.Metadata{
		Unit:       "mm/h",
		Projection: "+proj=longlat",
		Extent: domain.GridExtent{
			X1: llLon, Y1: llLat, X2: urLon, Y2: urLat,
			YOrigin: domain.YOriginUpper,
		},
	}

	written := 0
	for t := from; !t.After(to); t = t.Add(timestepMinutes * time.Minute) {
		field := mat.NewDense(height, width, nil)
		for row := 0; row < height; row++ {
			for col := 0; col < width; col++ {
				field.Set(row, col, frameValue(col, row, width, height, t))
			}
		}

		path, err := browser.PathFor(t)
		if err != nil {
			log.Fatal(err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			log.Fatal(err)
		}
		if err := importer.WriteJSONFrame(path, field, meta); err != nil {
			log.Fatal(err)
		}
		written++
	}
	return written
}

type gaugeFixture struct {
	Stations     []fixtureStation     `json:"stations"`
	Observations []fixtureObservation `json:"observations"`
}

type fixtureStation struct {
	ID  string  `json:"id"`
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type fixtureObservation struct {
	Timestamp string  `json:"timestamp"`
	Station   string  `json:"station"`
	Value     float64 `json:"value"`
}

// writeGauges derives each gauge value from the mean of the archived
// radar values at the station's pixel over the hour, times the bias, so
// that the filter observation is exactly log10(bias) at every slot.
func writeGauges(path string, projector *grid.Projector, start, end time.Time, width, height int, bias float64) error {
	fixture := gaugeFixture{}
	for _, st := range stations {
		fixture.Stations = append(fixture.Stations, fixtureStation{ID: st.id, Lon: st.lon, Lat: st.lat})
	}

	framesPerSlot := gaugePeriodMinutes / timestepMinutes
	for _, slot := range domain.Slots(start, end, gaugePeriodMinutes) {
		for _, st := range stations {
			nx, ny := projector.Normalize(st.lon, st.lat)
			px, ok := projector.FloorPixel(nx, ny, width, height)
			if !ok {
				return fmt.Errorf("station %s outside the composite", st.id)
			}

			sum := 0.0
			for i := 0; i < framesPerSlot; i++ {
				t := slot.Add(-time.Duration(i*timestepMinutes) * time.Minute)
				sum += frameValue(px.X, px.Y, width, height, t)
			}
			mean := sum / float64(framesPerSlot)

			fixture.Observations = append(fixture.Observations, fixtureObservation{
				Timestamp: domain.FormatTimestamp(slot),
				Station:   st.id,
				Value:     mean * bias,
			})
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
