package kalman

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/meteoworks/radarbias/internal/domain"
	"github.com/meteoworks/radarbias/internal/fsutil"
)

// Persisted is the estimator state written after every invocation and
// read back by the next one: the updated filter state, the prediction
// for the next step, and the current correction factor.
type Persisted struct {
	FilterState FilterState    `json:"filter_state"`
	PredState   PredictedState `json:"pred_state"`
	CorrFactor  float64        `json:"corr_factor"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// persistedWire mirrors Persisted with pointer fields so that a
// structurally valid JSON file missing required sections is detected as
// corrupt instead of silently decoding to zeros.
type persistedWire struct {
	FilterState *FilterState    `json:"filter_state"`
	PredState   *PredictedState `json:"pred_state"`
	CorrFactor  *float64        `json:"corr_factor"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// SaveState writes the state file atomically. The rename-on-write
// keeps at most one complete state visible per profile.
func SaveState(path string, res Result) error {
	out := Persisted{
		FilterState: res.State,
		PredState:   res.Predicted,
		CorrFactor:  res.CorrFactor,
		UpdatedAt:   domain.Now().UTC(),
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encode estimator state: %w", err)
	}
	if err := fsutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write estimator state %s: %w", path, err)
	}
	return nil
}

// LoadStateIfExists returns (nil, nil) when no state file exists yet,
// the fresh-start condition of the first invocation. Any existing file
// must load cleanly.
func LoadStateIfExists(path string) (*Persisted, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return LoadState(path)
}

// LoadState reads a previously persisted state. Any unreadable,
// malformed, or incomplete file is fatal: the returned error wraps
// domain.ErrCorruptState.
func LoadState(path string) (*Persisted, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", domain.ErrCorruptState, path, err)
	}

	var wire persistedWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", domain.ErrCorruptState, path, err)
	}
	if wire.FilterState == nil || wire.PredState == nil || wire.CorrFactor == nil {
		return nil, fmt.Errorf("%w: %s is missing required fields", domain.ErrCorruptState, path)
	}
	if wire.FilterState.P < 0 || wire.PredState.PMinus < 0 {
		return nil, fmt.Errorf("%w: %s holds a negative variance", domain.ErrCorruptState, path)
	}

	return &Persisted{
		FilterState: *wire.FilterState,
		PredState:   *wire.PredState,
		CorrFactor:  *wire.CorrFactor,
		UpdatedAt:   wire.UpdatedAt,
	}, nil
}
