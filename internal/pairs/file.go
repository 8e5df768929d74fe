package pairs

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/fsutil"
)

// pairFile is the on-disk layout of a collected PairCollection.
// Timestamp keys use the YYYYMMDDHHMM format.
type pairFile struct {
	CollectedAt time.Time                                    `json:"collected_at"`
	Pairs       map[string]map[string]domain.ObservationPair `json:"pairs"`
}

// Save writes the collection to path atomically. The collector writes
// each pair file exactly once per invocation.
func Save(path string, c domain.PairCollection) error {
	out := pairFile{
		CollectedAt: domain.Now().UTC(),
		Pairs:       make(map[string]map[string]domain.ObservationPair, len(c)),
	}
	for ts, stations := range c {
		m := make(map[string]domain.ObservationPair, len(stations))
		for id, p := range stations {
			m[string(id)] = p
		}
		out.Pairs[domain.FormatTimestamp(ts)] = m
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode pair file: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write pair file %s: %w", path, err)
	}
	return nil
}

// Load reads a pair file written by Save.
func Load(path string) (domain.PairCollection, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pair file %s: %w", path, err)
	}

	var in pairFile
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("decode pair file %s: %w", path, err)
	}

	c := make(domain.PairCollection, len(in.Pairs))
	for tsStr, stations := range in.Pairs {
		ts, err := domain.ParseTimestamp(tsStr)
		if err != nil {
			return nil, fmt.Errorf("pair file %s: %w", path, err)
		}
		for id, p := range stations {
			c.Add(ts, domain.StationID(id), p)
		}
	}
	return c, nil
}

// Timestamps returns the collection's timestamps in ascending order.
func Timestamps(c domain.PairCollection) []time.Time {
	out := make([]time.Time, 0, len(c))
	for ts := range c {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}
