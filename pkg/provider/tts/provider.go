// Package tts defines the Engine interfaces for speech synthesis backends.
//
// An Engine wraps one synthesis backend (a local Piper subprocess, an
// OpenAI-compatible speech endpoint, or a realtime WebSocket service) behind
// a uniform batch call. Backends that can deliver audio incrementally also
// implement [StreamingEngine]; the dispatcher feeds those chunks straight
// into playback instead of waiting for the full clip.
//
// Engines expose their identity (name, voice, rate, format) so the phrase
// cache can fingerprint requests without knowing backend internals.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a backend is reachable in principle but
// cannot serve right now (process missing, endpoint down, not configured).
// The dispatcher treats it as a signal to fall through to the next tier.
var ErrUnavailable = errors.New("tts: engine unavailable")

// Clip is one synthesized utterance of mono 16-bit PCM.
type Clip struct {
	PCM  []int16
	Rate int
}

// Empty reports whether the clip carries no audio.
func (c Clip) Empty() bool { return len(c.PCM) == 0 }

// Engine is the abstraction over any synthesis backend.
type Engine interface {
	// Name identifies the backend for logs and cache fingerprints.
	Name() string

	// Voice identifies the configured voice for cache fingerprints.
	Voice() string

	// SampleRate is the PCM rate the engine produces.
	SampleRate() int

	// Synthesize renders text to a complete clip. It honours ctx
	// cancellation and deadlines.
	Synthesize(ctx context.Context, text string) (Clip, error)
}

// StreamingEngine is implemented by backends that deliver audio
// incrementally.
type StreamingEngine interface {
	Engine

	// SynthesizeStream starts synthesis and returns a channel of PCM chunks
	// at SampleRate. The channel is closed when synthesis completes or ctx
	// is cancelled; callers must drain it.
	SynthesizeStream(ctx context.Context, text string) (<-chan []int16, error)
}
