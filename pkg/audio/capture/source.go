// Package capture provides the microphone input source for the voice
// pipeline.
//
// A Source owns the platform input device and produces an infinite stream of
// fixed-size PCM frames in capture order. Gaps in the stream (underruns,
// transient device errors) are surfaced as error frames rather than silently
// skipped, so downstream consumers can account for lost audio.
//
// A Source is single-producer, single-consumer: exactly one goroutine should
// drain Frames. Fan-out to the wake detector, VAD, and utterance capturer is
// the event loop's job.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
)

// Capture error kinds. ErrDeviceBusy is fatal to the pipeline; ErrDeviceLost
// triggers a bounded reopen before becoming fatal.
var (
	// ErrDeviceBusy means another process holds the input device.
	ErrDeviceBusy = errors.New("capture: input device busy")

	// ErrDeviceLost means the device disappeared mid-capture (USB unplug,
	// driver reset).
	ErrDeviceLost = errors.New("capture: input device lost")

	// ErrFormatMismatch means the device cannot deliver the requested PCM
	// format.
	ErrFormatMismatch = errors.New("capture: unsupported audio format")

	// ErrUnderrun marks a gap frame caused by a driver buffer overrun.
	ErrUnderrun = errors.New("capture: input underrun")
)

// reopenAttempts bounds device recovery after ErrDeviceLost.
const reopenAttempts = 3

// Config describes the capture format and device selection.
type Config struct {
	// Device is the input device name. Both symbolic ("default") and
	// hardware-direct ("hw:0,0") addressing are accepted. Empty selects the
	// platform default.
	Device string

	// SampleRate in Hz. Zero defaults to audio.SampleRate.
	SampleRate int

	// Channels is the capture channel count. Zero defaults to 1 (mono).
	Channels int

	// FrameSamples is the per-frame sample count. Zero defaults to
	// audio.FrameSamples.
	FrameSamples int

	// InputGain is a linear gain applied to captured samples. Zero or one
	// means unity.
	InputGain float64
}

func (c Config) withDefaults() Config {
	if c.Device == "" {
		c.Device = "default"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = audio.SampleRate
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.FrameSamples <= 0 {
		c.FrameSamples = audio.FrameSamples
	}
	return c
}

// Source captures audio frames from a microphone.
type Source interface {
	// Start begins capture. After Start, frames arrive on Frames.
	Start(ctx context.Context) error

	// Read returns the next frame, blocking until one is available, the
	// context is cancelled, or the source stops (io.EOF).
	Read(ctx context.Context) (audio.Frame, error)

	// Frames returns the capture channel. It is closed when the source
	// stops.
	Frames() <-chan audio.Frame

	// Drain discards up to max buffered frames and reports how many were
	// dropped. The state machine drains stale audio before a fresh capture.
	Drain(max int) int

	// Stop halts capture. Safe to call more than once.
	Stop() error

	// Name reports the backend ("alsa", "mock").
	Name() string

	io.Closer
}

// New opens the platform capture backend for cfg. On device enumeration
// failure it falls back to the platform default device and logs the fallback;
// ErrDeviceBusy is returned as-is and must be treated as fatal.
func New(cfg Config, logger *slog.Logger) (Source, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	src, err := newPlatformSource(cfg, logger)
	if err == nil {
		return src, nil
	}
	if errors.Is(err, ErrDeviceBusy) || cfg.Device == "default" {
		return nil, err
	}

	logger.Warn("capture: device unavailable, falling back to default",
		"device", cfg.Device, "error", err)
	cfg.Device = "default"
	src, err = newPlatformSource(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("capture: open default device: %w", err)
	}
	return src, nil
}

// readFrame is the shared blocking-read helper used by all backends.
func readFrame(ctx context.Context, frames <-chan audio.Frame) (audio.Frame, error) {
	select {
	case f, ok := <-frames:
		if !ok {
			return audio.Frame{}, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return audio.Frame{}, ctx.Err()
	}
}

// backoff returns the reopen delay for attempt n (1-based): 250ms, 500ms, 1s.
func backoff(attempt int) time.Duration {
	d := 250 * time.Millisecond
	for i := 1; i < attempt; i++ {
		d *= 2
	}
	return d
}
