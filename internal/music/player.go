package music

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/weny945/home-pi/pkg/audio/playback"
)

// ErrBusy is returned by Play while a track is already playing.
var ErrBusy = errors.New("music: already playing")

// PlayerConfig tunes the music player. Zero fields get defaults.
type PlayerConfig struct {
	// Volume is the normal playback gain in [0, 1]. Default: 0.7.
	Volume float64

	// DuckVolume is the gain applied while ducked. Default: 0.2.
	DuckVolume float64
}

func (c PlayerConfig) withDefaults() PlayerConfig {
	if c.Volume <= 0 || c.Volume > 1 {
		c.Volume = 0.7
	}
	if c.DuckVolume <= 0 || c.DuckVolume > 1 {
		c.DuckVolume = 0.2
	}
	return c
}

// Player streams library tracks to its own sink, which shares the speaker
// with speech through the device mixer. Conversation ducks the music rather
// than stopping it: Duck drops the gain, Unduck restores it, and the gain
// change applies within one chunk. Pause and Resume halt the stream itself
// while keeping the track position.
type Player struct {
	cfg    PlayerConfig
	sink   playback.Sink
	lib    *Library
	logger *slog.Logger

	// open decodes a track; swapped in tests.
	open func(ctx context.Context, path string) (<-chan []int16, int, error)

	mu      sync.Mutex
	resumed *sync.Cond // signalled when paused flips off
	volume  float64
	ducked  bool
	paused  bool
	cancel  context.CancelFunc
	done    chan struct{}
	current Track
}

// NewPlayer builds a music player over the sink and library.
func NewPlayer(cfg PlayerConfig, sink playback.Sink, lib *Library, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	p := &Player{
		cfg:    cfg,
		sink:   sink,
		lib:    lib,
		logger: logger,
		open:   DecodeOpusFile,
		volume: cfg.Volume,
	}
	p.resumed = sync.NewCond(&p.mu)
	return p
}

// Play resolves query against the library and starts streaming the track.
// It returns once playback has started; [ErrBusy] when a track is already
// playing.
func (p *Player) Play(ctx context.Context, query string) (Track, error) {
	track, err := p.lib.Find(query)
	if err != nil {
		return Track{}, err
	}

	p.mu.Lock()
	if p.done != nil {
		select {
		case <-p.done:
			// Previous track finished on its own.
		default:
			p.mu.Unlock()
			return Track{}, fmt.Errorf("%w: %s", ErrBusy, p.current.Title)
		}
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, rate, err := p.open(streamCtx, track.Path)
	if err != nil {
		cancel()
		p.mu.Unlock()
		return Track{}, err
	}

	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	p.current = track
	p.mu.Unlock()

	p.logger.Info("music playback started", "track", track.Title, "rate", rate)
	go p.run(streamCtx, stream, rate, done)
	return track, nil
}

// run pumps decoded chunks through the gain stage into the sink.
func (p *Player) run(ctx context.Context, stream <-chan []int16, rate int, done chan struct{}) {
	defer close(done)
	for chunk := range stream {
		p.waitResumed()
		if ctx.Err() != nil {
			return
		}
		gain := p.currentGain()
		if gain != 1.0 {
			scale(chunk, gain)
		}
		if err := p.sink.Write(chunk, rate); err != nil {
			p.logger.Warn("music sink write failed", "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
	p.logger.Info("music playback finished")
}

// waitResumed blocks the pump while the player is paused. Stop clears the
// pause flag before waiting on the pump, so this never deadlocks shutdown.
func (p *Player) waitResumed() {
	p.mu.Lock()
	for p.paused {
		p.resumed.Wait()
	}
	p.mu.Unlock()
}

// Stop ends playback and waits for the pump goroutine.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.paused = false
	p.resumed.Broadcast()
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("music playback stopped")
}

// Pause halts streaming without losing the position in the track.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

// Resume continues a paused track.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.resumed.Broadcast()
}

// Duck lowers the gain for the duration of a conversation.
func (p *Player) Duck() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ducked = true
}

// Unduck restores the normal gain after a conversation ends.
func (p *Player) Unduck() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ducked = false
}

// SetVolume adjusts the normal gain, clamped to [0.05, 1].
func (p *Player) SetVolume(v float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = math.Min(1, math.Max(0.05, v))
}

// Volume returns the normal (unducked) gain.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// IsPlaying reports whether a track is currently streaming.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Current returns the most recently started track.
func (p *Player) Current() Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Player) currentGain() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ducked {
		return p.cfg.DuckVolume
	}
	return p.volume
}

// scale applies a gain in place with saturation.
func scale(pcm []int16, gain float64) {
	for i, s := range pcm {
		v := float64(s) * gain
		switch {
		case v > math.MaxInt16:
			v = math.MaxInt16
		case v < math.MinInt16:
			v = math.MinInt16
		}
		pcm[i] = int16(v)
	}
}
