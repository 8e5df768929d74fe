package gauge

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meteoworks/radarbias/internal/domain"
)

// PostgresSource reads gauge stations and accumulations from a climate
// database. Expected schema:
//
//	stations(id text primary key, lon double precision, lat double precision)
//	observations(station_id text, ts timestamptz, value_mm double precision)
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource connects a pgx pool to the gauge database.
func NewPostgresSource(ctx context.Context, databaseURL string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect gauge database: %w", err)
	}
	return &PostgresSource{pool: pool}, nil
}

// Query fetches stations within the bounding box and their
// observations in the time range.
func (s *PostgresSource) Query(ctx context.Context, start, end time.Time, bbox BoundingBox) ([]Station, []Observation, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, lon, lat
FROM stations
WHERE lon BETWEEN $1 AND $2 AND lat BETWEEN $3 AND $4
ORDER BY id`, bbox.LLLon, bbox.URLon, bbox.LLLat, bbox.URLat)
	if err != nil {
		return nil, nil, fmt.Errorf("query gauge stations: %w", err)
	}
	defer rows.Close()

	var stations []Station
	ids := make([]string, 0)
	for rows.Next() {
		var st Station
		var id string
		if err := rows.Scan(&id, &st.Lon, &st.Lat); err != nil {
			return nil, nil, fmt.Errorf("scan gauge station: %w", err)
		}
		st.ID = domain.StationID(id)
		stations = append(stations, st)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("query gauge stations: %w", err)
	}

	if len(ids) == 0 {
		return stations, nil, nil
	}

	obsRows, err := s.pool.Query(ctx, `
SELECT station_id, ts, value_mm
FROM observations
WHERE station_id = ANY($1) AND ts BETWEEN $2 AND $3
ORDER BY ts, station_id`, ids, start.UTC(), end.UTC())
	if err != nil {
		return nil, nil, fmt.Errorf("query gauge observations: %w", err)
	}
	defer obsRows.Close()

	var observations []Observation
	for obsRows.Next() {
		var o Observation
		var id string
		var ts time.Time
		if err := obsRows.Scan(&id, &ts, &o.Value); err != nil {
			return nil, nil, fmt.Errorf("scan gauge observation: %w", err)
		}
		o.Station = domain.StationID(id)
		o.Timestamp = ts.UTC()
		observations = append(observations, o)
	}
	if err := obsRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("query gauge observations: %w", err)
	}

	return stations, observations, nil
}

// Close releases the connection pool.
func (s *PostgresSource) Close() {
	s.pool.Close()
}
