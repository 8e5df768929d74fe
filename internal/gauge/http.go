package gauge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/meteoworks/radarbias/internal/domain"
)

// HTTPSource queries a remote gauge timeseries service over HTTP.
type HTTPSource struct {
	baseURL    string
	quantity   string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPSource creates a client for the gauge timeseries endpoint.
// quantity selects the observed parameter, e.g. a precipitation
// accumulation identifier.
func NewHTTPSource(baseURL, quantity string, timeout time.Duration, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{
		baseURL:  baseURL,
		quantity: quantity,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Query fetches stations and observations for the time range and box.
func (s *HTTPSource) Query(ctx context.Context, start, end time.Time, bbox BoundingBox) ([]Station, []Observation, error) {
	params := url.Values{
		"starttime": {domain.FormatTimestamp(start)},
		"endtime":   {domain.FormatTimestamp(end)},
		"bbox": {fmt.Sprintf("%.4f,%.4f,%.4f,%.4f",
			bbox.LLLon, bbox.LLLat, bbox.URLon, bbox.URLat)},
		"param":  {s.quantity},
		"format": {"json"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create gauge request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("gauge query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, nil, fmt.Errorf("gauge service error: status %d: %s", resp.StatusCode, body)
	}

	var payload httpPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("decode gauge response: %w", err)
	}

	return payload.toDomain()
}

// Gauge service response types.

type httpPayload struct {
	Stations     []httpStation     `json:"stations"`
	Observations []httpObservation `json:"observations"`
}

type httpStation struct {
	ID  string  `json:"id"`
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

type httpObservation struct {
	Timestamp string  `json:"timestamp"` // YYYYMMDDHHMM
	Station   string  `json:"station"`
	Value     float64 `json:"value"`
}

func (p httpPayload) toDomain() ([]Station, []Observation, error) {
	stations := make([]Station, 0, len(p.Stations))
	for _, st := range p.Stations {
		stations = append(stations, Station{
			ID:  domain.StationID(st.ID),
			Lon: st.Lon,
			Lat: st.Lat,
		})
	}

	observations := make([]Observation, 0, len(p.Observations))
	for _, o := range p.Observations {
		ts, err := domain.ParseTimestamp(o.Timestamp)
		if err != nil {
			return nil, nil, fmt.Errorf("gauge observation for %s: %w", o.Station, err)
		}
		observations = append(observations, Observation{
			Timestamp: ts,
			Station:   domain.StationID(o.Station),
			Value:     o.Value,
		})
	}
	return stations, observations, nil
}
