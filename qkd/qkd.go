// Package qkd simulates quantum key distribution exchanges end to end: qubit
// preparation, transmission over a lossy and noisy fiber, optional
// eavesdropping, measurement, key sifting and the statistics used to judge
// the resulting key.
package qkd

import (
	"errors"
	"fmt"
)

var (
	DefaultNBits              = 1000
	DefaultFiberLossDBPerKm   = 0.2
	DefaultGenerationRateHz   = 1e6
	DefaultDetectorEfficiency = 1.0
	DefaultSourceEfficiency   = 1.0
	DefaultSingleSample       = 10
	DefaultEntangledSample    = 5
)

// ErrAborted is returned when a run is cancelled before it completes. No
// partial result is produced.
var ErrAborted = errors.New("simulation aborted")

// A ConfigurationError reports a parameter that cannot be simulated. It is
// always returned before any stage of a run has started.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
