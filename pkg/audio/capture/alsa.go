//go:build linux

package capture

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
)

// pcmDevice is the thin handle over the platform PCM layer. It exists so the
// capture loop, reopen policy, and fallback logic stay testable without a
// sound card.
type pcmDevice interface {
	// ReadFrame blocks until one frame of samples is available.
	// Returns ErrUnderrun for a recoverable gap and ErrDeviceLost when the
	// device is gone.
	ReadFrame(buf []int16) error
	Close() error
}

// openPCM opens the named device with the given format. Overridable in tests.
var openPCM = openALSA

// alsaSource is the production Source for the embedded board.
type alsaSource struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	dev     pcmDevice
	running bool
	closed  bool
	frames  chan audio.Frame
	stop    chan struct{}

	underruns atomic.Int64
	read      atomic.Int64
}

func newPlatformSource(cfg Config, logger *slog.Logger) (Source, error) {
	dev, err := openPCM(cfg)
	if err != nil {
		return nil, err
	}
	return &alsaSource{
		cfg:    cfg,
		logger: logger,
		dev:    dev,
		frames: make(chan audio.Frame, 16),
		stop:   make(chan struct{}),
	}, nil
}

func (s *alsaSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("capture: source closed")
	}
	if s.running {
		return nil
	}
	s.running = true
	s.stop = make(chan struct{})
	go s.captureLoop(ctx)
	s.logger.Info("capture started",
		"device", s.cfg.Device,
		"sample_rate", s.cfg.SampleRate,
		"frame_samples", s.cfg.FrameSamples,
	)
	return nil
}

func (s *alsaSource) captureLoop(ctx context.Context) {
	defer close(s.frames)

	buf := make([]int16, s.cfg.FrameSamples)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		default:
		}

		err := s.dev.ReadFrame(buf)
		now := time.Now()
		switch {
		case err == nil:
			samples := make([]int16, len(buf))
			copy(samples, buf)
			applyGain(samples, s.cfg.InputGain)
			s.deliver(audio.Frame{Samples: samples, Time: now})
			s.read.Add(1)

		case errors.Is(err, ErrUnderrun):
			s.underruns.Add(1)
			s.deliver(audio.Frame{Time: now, Err: ErrUnderrun})

		case errors.Is(err, ErrDeviceLost):
			if !s.reopen() {
				s.deliver(audio.Frame{Time: now, Err: ErrDeviceLost})
				return
			}

		default:
			s.logger.Error("capture read failed", "error", err)
			s.deliver(audio.Frame{Time: now, Err: err})
		}
	}
}

// reopen retries the device after ErrDeviceLost with exponential backoff.
// Returns false once the attempt budget is exhausted.
func (s *alsaSource) reopen() bool {
	for attempt := 1; attempt <= reopenAttempts; attempt++ {
		delay := backoff(attempt)
		s.logger.Warn("capture device lost, reopening",
			"attempt", attempt, "delay", delay)
		select {
		case <-s.stop:
			return false
		case <-time.After(delay):
		}

		dev, err := openPCM(s.cfg)
		if err == nil {
			s.mu.Lock()
			old := s.dev
			s.dev = dev
			s.mu.Unlock()
			if old != nil {
				_ = old.Close()
			}
			s.logger.Info("capture device reopened", "attempt", attempt)
			return true
		}
		s.logger.Warn("capture reopen failed", "attempt", attempt, "error", err)
	}
	s.logger.Error("capture device lost permanently",
		"attempts", reopenAttempts)
	return false
}

func (s *alsaSource) deliver(f audio.Frame) {
	select {
	case s.frames <- f:
	default:
		// Consumer is behind; drop the oldest frame to keep latency bounded.
		select {
		case <-s.frames:
		default:
		}
		select {
		case s.frames <- f:
		default:
		}
		s.underruns.Add(1)
	}
}

func (s *alsaSource) Read(ctx context.Context) (audio.Frame, error) {
	return readFrame(ctx, s.frames)
}

func (s *alsaSource) Frames() <-chan audio.Frame { return s.frames }

func (s *alsaSource) Drain(max int) int {
	n := 0
	for n < max {
		select {
		case _, ok := <-s.frames:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
	return n
}

func (s *alsaSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false
	close(s.stop)
	s.logger.Info("capture stopped",
		"frames_read", s.read.Load(), "underruns", s.underruns.Load())
	return nil
}

func (s *alsaSource) Close() error {
	_ = s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.dev != nil {
		return s.dev.Close()
	}
	return nil
}

func (s *alsaSource) Name() string { return "alsa" }

func applyGain(samples []int16, gain float64) {
	if gain == 0 || gain == 1 {
		return
	}
	for i, v := range samples {
		g := float64(v) * gain
		switch {
		case g > 32767:
			samples[i] = 32767
		case g < -32768:
			samples[i] = -32768
		default:
			samples[i] = int16(g)
		}
	}
}
