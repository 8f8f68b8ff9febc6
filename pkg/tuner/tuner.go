// Package tuner drives an external SDR/rigctl receiver in response to
// trunking policy decisions: tune to a voice channel, return to the
// control channel, and report the frequency it's currently parked on.
package tuner

import "context"

// Tuner is the external frequency-control interface. Implementations
// must be safe for concurrent use; the dispatch loop calls into it
// from whichever goroutine is draining the PHY layer.
type Tuner interface {
	// SetFreq tunes to an absolute frequency in Hz.
	SetFreq(ctx context.Context, hz uint64) error
	// SetBandwidth sets receiver bandwidth in Hz. Skipped by callers
	// when the configured value is 0.
	SetBandwidth(ctx context.Context, hz uint32) error
	// CurrentFreq reports the frequency currently tuned, used to
	// latch cc_freq when it is not yet known.
	CurrentFreq(ctx context.Context) (uint64, error)
}
