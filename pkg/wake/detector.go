// Package wake hosts the wake-word front end: a Detector backend that scores
// frames for the keyword, wrapped in a Gate that applies cooldown and the
// pause-while-speaking policy before a detection reaches the pipeline.
package wake

import (
	"log/slog"
	"sync"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
)

// Event is one keyword detection.
type Event struct {
	// Keyword is the model's canonical name for the detected phrase.
	Keyword string

	// Confidence is the detection score in [0, 1].
	Confidence float64

	// Time is when the detecting frame was captured.
	Time time.Time
}

// Detector scores frames for the wake keyword. Implementations carry their
// own internal window; the caller feeds every capture frame in order.
// ProcessFrame returns a non-nil Event when confidence reaches the backend's
// configured sensitivity.
//
// Backends range from an openWakeWord-style model to a vendor SDK; only this
// method is observable.
type Detector interface {
	ProcessFrame(f audio.Frame) (*Event, error)
	Close() error
}

// Config tunes the Gate policy around a Detector.
type Config struct {
	// Cooldown suppresses further fires after a detection.
	Cooldown time.Duration

	// HardwareAEC, when true, rate-limits detection during speech playback
	// instead of pausing it outright, since echo cancellation makes
	// self-wakes unlikely.
	HardwareAEC bool

	// AECInterval is the sampling interval used while paused with
	// HardwareAEC set.
	AECInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.Cooldown <= 0 {
		c.Cooldown = 1500 * time.Millisecond
	}
	if c.AECInterval <= 0 {
		c.AECInterval = 500 * time.Millisecond
	}
	return c
}

// Gate wraps a Detector with the fire policy: a cooldown window after each
// detection, and a pause while the assistant itself is speaking so playback
// echo cannot self-wake the device. Safe for concurrent use.
type Gate struct {
	cfg      Config
	detector Detector
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	paused    bool
	lastFire  time.Time
	lastCheck time.Time
}

// NewGate wraps detector with the given policy.
func NewGate(detector Detector, cfg Config, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		cfg:      cfg.withDefaults(),
		detector: detector,
		logger:   logger,
		now:      time.Now,
	}
}

// ProcessFrame feeds one frame through the policy and the detector. It
// returns nil during cooldown and, without hardware AEC, while paused.
func (g *Gate) ProcessFrame(f audio.Frame) (*Event, error) {
	now := g.now()

	g.mu.Lock()
	if !g.lastFire.IsZero() && now.Sub(g.lastFire) < g.cfg.Cooldown {
		g.mu.Unlock()
		return nil, nil
	}
	if g.paused {
		if !g.cfg.HardwareAEC {
			g.mu.Unlock()
			return nil, nil
		}
		if now.Sub(g.lastCheck) < g.cfg.AECInterval {
			g.mu.Unlock()
			return nil, nil
		}
	}
	g.lastCheck = now
	g.mu.Unlock()

	ev, err := g.detector.ProcessFrame(f)
	if err != nil || ev == nil {
		return nil, err
	}

	g.mu.Lock()
	g.lastFire = now
	g.mu.Unlock()

	g.logger.Info("wake word detected",
		"keyword", ev.Keyword,
		"confidence", ev.Confidence,
	)
	return ev, nil
}

// SetPaused pauses or resumes detection. The pipeline pauses the gate on
// entering the speaking state and resumes it on leaving.
func (g *Gate) SetPaused(paused bool) {
	g.mu.Lock()
	g.paused = paused
	g.mu.Unlock()
}

// Close closes the underlying detector.
func (g *Gate) Close() error { return g.detector.Close() }
