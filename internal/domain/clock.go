package domain

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// clock is a package-level time source so tests can freeze the
// written-at metadata of pair and state files. Production code uses the
// real clock; tests inject a fake for deterministic output.
var clock = clockwork.NewRealClock()

// Now returns the current instant from the injected clock.
func Now() time.Time { return clock.Now() }

// SetClock swaps the time source. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
