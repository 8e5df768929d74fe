package domain

import (
	"fmt"
	"time"
)

// TimestampLayout is the wire and CLI format for pipeline timestamps
// (YYYYMMDDHHMM). All timestamps are UTC with minute resolution.
const TimestampLayout = "200601021504"

// ParseTimestamp parses a YYYYMMDDHHMM string into a UTC instant.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.ParseInLocation(TimestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// FormatTimestamp renders a UTC instant in the YYYYMMDDHHMM format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Slots returns every timestamp from start to end inclusive, spaced by
// step minutes, in ascending order. Returns nil if end precedes start
// or step is not positive.
func Slots(start, end time.Time, stepMinutes int) []time.Time {
	if stepMinutes <= 0 || end.Before(start) {
		return nil
	}
	var out []time.Time
	step := time.Duration(stepMinutes) * time.Minute
	for t := start.UTC(); !t.After(end.UTC()); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}
