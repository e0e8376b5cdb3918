package tts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weny945/home-pi/internal/resilience"
	"github.com/weny945/home-pi/pkg/provider/tts"
)

// pcmFormat is the only wire format engines produce; it is part of every
// cache fingerprint so a future format change invalidates cleanly.
const pcmFormat = "pcm_s16le"

// Scenario classifies a synthesis request so routing can prefer streaming
// for long-form content and warm the cache for fixed phrases.
type Scenario string

const (
	// ScenarioWake is the acknowledgement played right after a wake word.
	ScenarioWake Scenario = "wake"

	// ScenarioRetry is a re-prompt after a rejected utterance.
	ScenarioRetry Scenario = "retry"

	// ScenarioFarewell ends a conversation.
	ScenarioFarewell Scenario = "farewell"

	// ScenarioSystem covers fixed status and error phrases.
	ScenarioSystem Scenario = "system"

	// ScenarioAlarm is an alarm announcement or cheerword.
	ScenarioAlarm Scenario = "alarm"

	// ScenarioReply is a conversational answer from the language model.
	ScenarioReply Scenario = "reply"

	// ScenarioStory is long-form narration.
	ScenarioStory Scenario = "story"
)

// Tier names used in the failover chain and in skip hooks.
const (
	TierStreaming = "streaming"
	TierRemote    = "remote"
	TierLocal     = "local"
)

// Result is what a synthesis request produced. Exactly one of Clip or
// Stream is set: cache hits and batch synthesis fill Clip, the streaming
// tier fills Stream.
type Result struct {
	Clip   tts.Clip
	Stream <-chan []int16
	Rate   int

	// Source is the tier that served the request, or "cache".
	Source string

	// Engine is the backend name that produced the audio.
	Engine string
}

// Streamed reports whether the result delivers audio incrementally.
func (r Result) Streamed() bool { return r.Stream != nil }

// DispatcherConfig tunes routing. Zero fields get defaults.
type DispatcherConfig struct {
	// StreamScenarios route to the streaming tier regardless of length.
	// Default: story.
	StreamScenarios []Scenario

	// StreamThreshold is the rune count at which any scenario routes to the
	// streaming tier. Default: 100. Negative disables length-based routing.
	StreamThreshold int

	// FallbackToLocal enables falling through to lower tiers on failure.
	// When false the first eligible tier is the only one tried.
	// Default: true (set DisableFallback to turn it off).
	DisableFallback bool

	// MaxRetries is how many times the whole chain is re-walked after all
	// tiers fail. Default: 2.
	MaxRetries int

	// RetryDelay separates chain walks. Default: 500 ms.
	RetryDelay time.Duration

	// Breaker settings shared by the per-tier breakers.
	Breaker resilience.BreakerSettings
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.StreamScenarios == nil {
		c.StreamScenarios = []Scenario{ScenarioStory}
	}
	if c.StreamThreshold == 0 {
		c.StreamThreshold = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 2
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 500 * time.Millisecond
	}
	return c
}

// Dispatcher routes synthesis requests: phrase cache first, then the tier
// chain streaming > remote > local with per-tier circuit breakers. Batch
// results are written through to the cache; streamed audio is accumulated as
// it plays and cached on completion.
type Dispatcher struct {
	cfg     DispatcherConfig
	cache   *Cache
	tiers   *resilience.Tiers[tts.Engine]
	engines []tts.Engine
	tierOK  func(tier string) bool
	logger  *slog.Logger
	group   singleflight.Group
}

// NewDispatcher builds a dispatcher. streaming and remote may be nil when
// the corresponding tier is not configured; local must not be nil, it is the
// tier of last resort. tierOK, when non-nil, is consulted per request with
// the tier name ([TierStreaming] or [TierRemote]); returning false skips
// that tier only, so one backend being down never disables the other (the
// health monitor wires its per-target availability here).
func NewDispatcher(cfg DispatcherConfig, cache *Cache, streaming tts.StreamingEngine, remote, local tts.Engine, tierOK func(tier string) bool, logger *slog.Logger) (*Dispatcher, error) {
	if local == nil {
		return nil, errors.New("tts: local engine is required")
	}
	if cache == nil {
		return nil, errors.New("tts: cache is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	d := &Dispatcher{
		cfg:    cfg,
		cache:  cache,
		tiers:  resilience.NewTiers[tts.Engine](cfg.Breaker, logger),
		tierOK: tierOK,
		logger: logger,
	}
	if streaming != nil {
		d.tiers.Add(TierStreaming, streaming)
		d.engines = append(d.engines, streaming)
	}
	if remote != nil {
		d.tiers.Add(TierRemote, remote)
		d.engines = append(d.engines, remote)
	}
	d.tiers.Add(TierLocal, local)
	d.engines = append(d.engines, local)
	return d, nil
}

// ResetTier closes the breaker of the named tier. The health monitor calls
// this when a remote backend comes back so the next request tries it
// immediately.
func (d *Dispatcher) ResetTier(name string) { d.tiers.Reset(name) }

// Synthesize resolves text to audio. scenario drives streaming routing and
// is recorded in logs; it never changes the produced audio.
func (d *Dispatcher) Synthesize(ctx context.Context, text string, scenario Scenario) (Result, error) {
	if text == "" {
		return Result{}, errors.New("tts: empty text")
	}

	if res, ok := d.fromCache(text); ok {
		d.logger.Debug("synthesis served from cache", "scenario", scenario, "chars", len([]rune(text)))
		return res, nil
	}

	wantStream := d.shouldStream(text, scenario)

	// Concurrent requests for the same phrase collapse to one build. The key
	// is the fingerprint under the most preferred engine, which is a stable
	// function of the text.
	key := d.fingerprintFor(d.engines[0], text).String()
	v, err, shared := d.group.Do(key, func() (any, error) {
		return d.build(ctx, text, scenario, wantStream)
	})
	if err != nil {
		return Result{}, err
	}
	res := v.(Result)

	// A stream channel can only be consumed once. When singleflight hands the
	// same streamed result to a second caller, that caller builds a batch
	// clip instead of sharing the drained channel.
	if shared && res.Streamed() {
		return d.buildBatch(ctx, text, scenario)
	}
	return res, nil
}

// Warmup synthesizes every phrase not yet cached, in order, pausing between
// builds so foreground synthesis keeps priority. Callers run it in a
// goroutine during startup.
func (d *Dispatcher) Warmup(ctx context.Context, phrases []string) error {
	var firstErr error
	warmed := 0
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.cached(phrase) {
			continue
		}
		if _, err := d.buildBatch(ctx, phrase, ScenarioSystem); err != nil {
			d.logger.Warn("warm-up phrase failed", "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		warmed++

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
	d.logger.Info("phrase warm-up finished", "requested", len(phrases), "built", warmed)
	return firstErr
}

// fromCache probes the cache under each configured engine's identity, in
// tier preference order.
func (d *Dispatcher) fromCache(text string) (Result, bool) {
	for _, e := range d.engines {
		clip, ok := d.cache.Lookup(d.fingerprintFor(e, text))
		if !ok {
			continue
		}
		return Result{Clip: clip, Rate: clip.Rate, Source: "cache", Engine: e.Name()}, true
	}
	return Result{}, false
}

func (d *Dispatcher) cached(text string) bool {
	for _, e := range d.engines {
		if d.cache.Contains(d.fingerprintFor(e, text)) {
			return true
		}
	}
	return false
}

func (d *Dispatcher) fingerprintFor(e tts.Engine, text string) Fingerprint {
	return NewFingerprint(text, e.Name(), e.Voice(), e.SampleRate(), pcmFormat)
}

func (d *Dispatcher) shouldStream(text string, scenario Scenario) bool {
	for _, s := range d.cfg.StreamScenarios {
		if s == scenario {
			return true
		}
	}
	return d.cfg.StreamThreshold > 0 && len([]rune(text)) >= d.cfg.StreamThreshold
}

// build walks the tier chain once per attempt, up to MaxRetries extra walks.
func (d *Dispatcher) build(ctx context.Context, text string, scenario Scenario, wantStream bool) (Result, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		res, err := d.tryTiers(ctx, text, scenario, wantStream)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt >= d.cfg.MaxRetries || ctx.Err() != nil {
			break
		}
		d.logger.Warn("synthesis chain failed, retrying",
			"attempt", attempt+1, "scenario", scenario, "error", err)
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-time.After(d.cfg.RetryDelay):
		}
	}
	return Result{}, fmt.Errorf("tts: synthesis failed for scenario %q: %w", scenario, lastErr)
}

func (d *Dispatcher) tryTiers(ctx context.Context, text string, scenario Scenario, wantStream bool) (Result, error) {
	first := true
	skip := func(name string) bool {
		if name == TierStreaming && !wantStream {
			return true
		}
		if (name == TierStreaming || name == TierRemote) && d.tierOK != nil && !d.tierOK(name) {
			return true
		}
		if d.cfg.DisableFallback && !first {
			return true
		}
		return false
	}
	return resilience.Try(d.tiers, skip, func(name string, e tts.Engine) (Result, error) {
		first = false
		if name == TierStreaming {
			if se, ok := e.(tts.StreamingEngine); ok {
				return d.startStream(ctx, se, text, scenario)
			}
		}
		return d.synthesizeOn(ctx, e, name, text, scenario)
	})
}

// buildBatch bypasses streaming routing; warm-up uses it so cached phrases
// are complete clips.
func (d *Dispatcher) buildBatch(ctx context.Context, text string, scenario Scenario) (Result, error) {
	key := "warmup:" + d.fingerprintFor(d.engines[0], text).String()
	v, err, _ := d.group.Do(key, func() (any, error) {
		return d.build(ctx, text, scenario, false)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

// synthesizeOn runs one batch synthesis and writes the result through to the
// cache.
func (d *Dispatcher) synthesizeOn(ctx context.Context, e tts.Engine, tierName, text string, scenario Scenario) (Result, error) {
	start := time.Now()
	clip, err := e.Synthesize(ctx, text)
	if err != nil {
		return Result{}, err
	}
	if clip.Empty() {
		return Result{}, fmt.Errorf("tts: engine %s returned empty audio", e.Name())
	}
	d.logger.Info("synthesis complete",
		"tier", tierName, "engine", e.Name(), "scenario", scenario,
		"chars", len([]rune(text)), "elapsed", time.Since(start))

	if err := d.cache.Store(d.fingerprintFor(e, text), text, clip); err != nil {
		d.logger.Warn("cache write failed", "error", err)
	}
	return Result{Clip: clip, Rate: clip.Rate, Source: tierName, Engine: e.Name()}, nil
}

// startStream opens a streaming synthesis and tees the chunks: the caller
// consumes them for playback while a copy accumulates for the cache.
func (d *Dispatcher) startStream(ctx context.Context, e tts.StreamingEngine, text string, scenario Scenario) (Result, error) {
	src, err := e.SynthesizeStream(ctx, text)
	if err != nil {
		return Result{}, err
	}
	d.logger.Info("streaming synthesis started",
		"engine", e.Name(), "scenario", scenario, "chars", len([]rune(text)))

	out := make(chan []int16, 8)
	fp := d.fingerprintFor(e, text)
	rate := e.SampleRate()
	go func() {
		defer close(out)
		var all []int16
		for chunk := range src {
			all = append(all, chunk...)
			select {
			case out <- chunk:
			case <-ctx.Done():
				// Keep draining src so the engine's reader goroutine exits.
				for range src {
				}
				return
			}
		}
		// Cache only complete streams; a cancelled one would truncate.
		if ctx.Err() == nil && len(all) > 0 {
			clip := tts.Clip{PCM: all, Rate: rate}
			if err := d.cache.Store(fp, text, clip); err != nil {
				d.logger.Warn("cache write failed", "error", err)
			}
		}
	}()

	return Result{Stream: out, Rate: rate, Source: TierStreaming, Engine: e.Name()}, nil
}
