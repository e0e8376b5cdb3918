// Package vad classifies microphone frames as speech or silence using an
// energy threshold that adapts to the ambient noise floor.
//
// The classifier is pure energy by default. When a model backend from
// [github.com/weny945/home-pi/pkg/provider/vad] is attached, frames above the
// energy threshold are additionally confirmed by the model; the two signals
// combine by logical AND so that a noisy fan cannot outvote the model and the
// model alone cannot fire on sub-threshold audio.
package vad

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/weny945/home-pi/pkg/audio"
	modelvad "github.com/weny945/home-pi/pkg/provider/vad"
)

// Class is the verdict for one frame.
type Class int

const (
	Silence Class = iota
	Speech
)

func (c Class) String() string {
	if c == Speech {
		return "speech"
	}
	return "silence"
}

// Config tunes the adaptive threshold. Energies are RMS on a normalized
// scale where full scale is 1.0.
type Config struct {
	// BaseThreshold is the floor the adaptive threshold never drops below.
	BaseThreshold float64

	// AdaptationFactor scales the noise floor into a threshold.
	AdaptationFactor float64

	// MinThreshold and MaxThreshold clamp the adaptive threshold.
	MinThreshold float64
	MaxThreshold float64

	// WindowFrames is how many recent silence-frame energies feed the noise
	// floor estimate.
	WindowFrames int

	// TrimRatio is the fraction of the loudest window entries discarded
	// before averaging, so a door slam cannot permanently raise the floor.
	TrimRatio float64

	// ResetInterval discards the window periodically so the floor can track
	// a changed environment. Zero disables periodic reset.
	ResetInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseThreshold <= 0 {
		c.BaseThreshold = 0.04
	}
	if c.AdaptationFactor <= 0 {
		c.AdaptationFactor = 1.5
	}
	if c.MinThreshold <= 0 {
		c.MinThreshold = 0.02
	}
	if c.MaxThreshold <= 0 {
		c.MaxThreshold = 0.3
	}
	if c.WindowFrames <= 0 {
		c.WindowFrames = 50
	}
	if c.TrimRatio <= 0 {
		c.TrimRatio = 0.05
	}
	if c.ResetInterval == 0 {
		c.ResetInterval = 5 * time.Minute
	}
	return c
}

// Adaptive is the noise-tracking classifier. All methods are safe for
// concurrent use.
type Adaptive struct {
	cfg    Config
	model  modelvad.SessionHandle
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	window    []float64
	frozen    bool
	lastReset time.Time
}

// New creates an Adaptive classifier. model may be nil for pure energy
// detection.
func New(cfg Config, model modelvad.SessionHandle, logger *slog.Logger) *Adaptive {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Adaptive{
		cfg:    cfg.withDefaults(),
		model:  model,
		logger: logger,
		now:    time.Now,
	}
	a.lastReset = a.now()
	return a
}

// Classify returns the verdict for one frame and, when adaptation is not
// frozen, folds silence frames into the noise floor estimate.
func (a *Adaptive) Classify(f audio.Frame) Class {
	energy := audio.FrameRMS(f)

	a.mu.Lock()
	a.maybeReset()
	threshold := a.thresholdLocked()
	a.mu.Unlock()

	speech := energy > threshold
	if speech && a.model != nil {
		r, err := a.model.ProcessFrame(f.Samples)
		if err != nil {
			// Model failure degrades to pure energy detection.
			a.logger.Warn("vad model frame failed", "error", err)
		} else {
			speech = r.Speech
		}
	}

	if !speech {
		a.mu.Lock()
		if !a.frozen {
			a.window = append(a.window, energy)
			if len(a.window) > a.cfg.WindowFrames {
				a.window = a.window[len(a.window)-a.cfg.WindowFrames:]
			}
		}
		a.mu.Unlock()
		return Silence
	}
	return Speech
}

// SetFrozen pauses or resumes noise floor adaptation. The pipeline freezes
// adaptation while the user or the speaker is talking so the floor never
// learns from voice.
func (a *Adaptive) SetFrozen(frozen bool) {
	a.mu.Lock()
	a.frozen = frozen
	a.mu.Unlock()
}

// Frozen reports whether noise floor adaptation is currently paused.
func (a *Adaptive) Frozen() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.frozen
}

// Threshold returns the current adaptive speech threshold.
func (a *Adaptive) Threshold() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.thresholdLocked()
}

// NoiseFloor returns the current trimmed-mean noise floor estimate.
func (a *Adaptive) NoiseFloor() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.floorLocked()
}

// Reset discards the noise window, for use when the environment changes.
func (a *Adaptive) Reset() {
	a.mu.Lock()
	a.window = a.window[:0]
	a.lastReset = a.now()
	a.mu.Unlock()
	if a.model != nil {
		a.model.Reset()
	}
}

func (a *Adaptive) maybeReset() {
	if a.cfg.ResetInterval <= 0 {
		return
	}
	if a.now().Sub(a.lastReset) >= a.cfg.ResetInterval {
		a.window = a.window[:0]
		a.lastReset = a.now()
		a.logger.Debug("vad noise window reset")
	}
}

func (a *Adaptive) thresholdLocked() float64 {
	t := a.cfg.BaseThreshold
	if floor := a.floorLocked(); floor*a.cfg.AdaptationFactor > t {
		t = floor * a.cfg.AdaptationFactor
	}
	if t < a.cfg.MinThreshold {
		t = a.cfg.MinThreshold
	}
	if t > a.cfg.MaxThreshold {
		t = a.cfg.MaxThreshold
	}
	return t
}

// floorLocked is the trimmed mean of the window: the loudest TrimRatio of
// entries (at least one, once the window has more than one entry) is dropped
// before averaging.
func (a *Adaptive) floorLocked() float64 {
	n := len(a.window)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, a.window)
	sort.Float64s(sorted)

	drop := int(float64(n) * a.cfg.TrimRatio)
	if drop == 0 && n > 1 {
		drop = 1
	}
	kept := sorted[:n-drop]
	var sum float64
	for _, e := range kept {
		sum += e
	}
	return sum / float64(len(kept))
}
