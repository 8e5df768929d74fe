package gauge

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// FileSource reads stations and observations from a JSON fixture file.
// The file uses the same layout as the HTTP service payload. Used for
// offline runs, fixtures, and tests.
type FileSource struct {
	path string
}

// NewFileSource creates a source backed by a fixture file.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Query loads the fixture and filters by time range and bounding box.
func (s *FileSource) Query(_ context.Context, start, end time.Time, bbox BoundingBox) ([]Station, []Observation, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, nil, fmt.Errorf("read gauge fixture: %w", err)
	}

	var payload httpPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, fmt.Errorf("decode gauge fixture %s: %w", s.path, err)
	}

	allStations, allObs, err := payload.toDomain()
	if err != nil {
		return nil, nil, err
	}

	stations := make([]Station, 0, len(allStations))
	inBox := make(map[string]bool, len(allStations))
	for _, st := range allStations {
		if bbox.Contains(st.Lon, st.Lat) {
			stations = append(stations, st)
			inBox[string(st.ID)] = true
		}
	}

	observations := make([]Observation, 0, len(allObs))
	for _, o := range allObs {
		if !inBox[string(o.Station)] {
			continue
		}
		if o.Timestamp.Before(start.UTC()) || o.Timestamp.After(end.UTC()) {
			continue
		}
		observations = append(observations, o)
	}
	return stations, observations, nil
}
