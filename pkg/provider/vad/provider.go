// Package vad defines the Engine interface for voice activity detection
// model backends.
//
// An Engine wraps a frame-level speech model (Silero, WebRTC VAD, or a vendor
// binary) and surfaces it as a stateful per-stream session. The energy-based
// classifier in [github.com/weny945/home-pi/pkg/vad] consults a session as a
// second opinion; a model backend is optional and the pipeline runs on pure
// energy detection without one.
//
// ProcessFrame is synchronous by design so it can sit inside the capture loop
// without adding latency. Implementations must be safe for concurrent
// NewSession calls; a single SessionHandle is used from one goroutine only.
package vad

import "errors"

// ErrSessionClosed is returned by ProcessFrame after Close.
var ErrSessionClosed = errors.New("vad: session closed")

// Config holds the parameters for a model session.
type Config struct {
	// SampleRate is the PCM sample rate in Hz of the frames passed to
	// ProcessFrame.
	SampleRate int

	// FrameSamples is the fixed per-frame sample count. ProcessFrame returns
	// an error for frames of any other length.
	FrameSamples int

	// SpeechThreshold is the probability at or above which a frame counts as
	// speech. Range [0, 1]. Typical: 0.5.
	SpeechThreshold float64
}

// Result is the model's verdict for one frame.
type Result struct {
	// Speech reports whether the model classified the frame as speech.
	Speech bool

	// Probability is the raw speech probability in [0, 1].
	Probability float64
}

// SessionHandle is an active model session for a single audio stream. The
// session carries its own smoothing state; Reset clears it without closing
// the session, for use when the stream is interrupted or restarted.
type SessionHandle interface {
	// ProcessFrame classifies one mono PCM frame. It must not block.
	ProcessFrame(samples []int16) (Result, error)

	// Reset clears accumulated detection state.
	Reset()

	// Close releases the session. Calling Close more than once is safe.
	Close() error
}

// Engine is the factory for model sessions, implemented by each backend.
type Engine interface {
	// NewSession creates a session ready to accept frames. Returns an error
	// if cfg is unsupported or resources cannot be allocated.
	NewSession(cfg Config) (SessionHandle, error)
}
