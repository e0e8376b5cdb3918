// Package stt defines the Recognizer interface for speech-to-text backends.
//
// Recognition here is batch, not streaming: the capture layer endpoints one
// utterance at a time, so a Recognizer takes the complete PCM and returns one
// Result. Backends include the in-process whisper.cpp bindings (local tier)
// and a whisper-server REST endpoint (remote tier).
//
// Implementations must be safe for concurrent use; the pipeline and the wake
// spotter may transcribe at the same time.
package stt

import (
	"context"
	"time"
)

// Result is one recognition outcome.
type Result struct {
	// Text is the transcribed speech, trimmed.
	Text string

	// Confidence is the overall score in [0, 1]. Zero when the backend does
	// not report confidence; the transcript gates skip their confidence
	// check in that case.
	Confidence float64

	// Audio is the duration of the transcribed PCM.
	Audio time.Duration

	// Elapsed is how long inference took.
	Elapsed time.Duration
}

// Recognizer is the abstraction over any STT backend.
type Recognizer interface {
	// Transcribe recognizes one complete utterance of 16 kHz mono PCM. It
	// honours ctx cancellation and deadlines; on timeout the partial result
	// is discarded.
	Transcribe(ctx context.Context, samples []int16) (Result, error)

	// Name identifies the backend for logs.
	Name() string

	// Close releases backend resources (the loaded model, connections).
	Close() error
}
