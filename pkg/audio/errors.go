// ABOUTME: Stream error taxonomy
// ABOUTME: Config mismatches, xruns and control-bus failures
package audio

import (
	"errors"
	"fmt"
)

// ErrConfigMismatch is returned when StreamConfig values are incompatible
// with hardware capability. It is detected at start, never at runtime.
var ErrConfigMismatch = errors.New("audio: stream config mismatch")

// ErrBusFailure is returned when a control-bus transfer goes
// unacknowledged or comes back malformed during codec bring-up. The
// whole start attempt is dead; the caller may retry the full sequence.
var ErrBusFailure = errors.New("audio: control bus failure")

// ErrXrun is the sentinel every XrunError matches via errors.Is.
var ErrXrun = errors.New("audio: xrun")

// XrunError reports a buffer over/underrun: the consumer or producer
// failed to keep pace with the fixed hardware sample clock. The stream
// is dead; recovery requires Stop followed by a fresh Start.
type XrunError struct {
	Half int // index of the buffer half whose data was lost
}

func (e *XrunError) Error() string {
	return fmt.Sprintf("audio: xrun on buffer half %d", e.Half)
}

// Is matches ErrXrun so callers can test without knowing the half index.
func (e *XrunError) Is(target error) bool {
	return target == ErrXrun
}
