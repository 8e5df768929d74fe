package domain

import "errors"

// Sentinel errors for the pipeline failure taxonomy. Per-slot and
// per-station conditions (InsufficientData, NoObservation) are absorbed
// by the orchestrator; Configuration and CorruptState terminate the run.
var (
	// ErrConfiguration indicates an invalid configuration, such as a gauge
	// accumulation period that is not an integer multiple of the radar
	// accumulation period. Fatal, detected before any I/O.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrArchiveUnavailable indicates that no file resolved for any of the
	// requested timestamps in an archive query.
	ErrArchiveUnavailable = errors.New("no input data found in archive")

	// ErrInsufficientData indicates that too many radar frames were missing
	// from one accumulation window. The window is skipped; processing
	// continues with the next one.
	ErrInsufficientData = errors.New("insufficient radar data for accumulation window")

	// ErrNoObservation indicates that zero valid radar-gauge pairs exist at
	// the estimator update timestamp. The estimator degrades to its
	// no-observation branch; this is not fatal.
	ErrNoObservation = errors.New("no radar-gauge observation at timestamp")

	// ErrCorruptState indicates that a persisted estimator state could not
	// be deserialized. Fatal.
	ErrCorruptState = errors.New("corrupt estimator state")
)
