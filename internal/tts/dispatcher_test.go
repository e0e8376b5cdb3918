package tts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/weny945/home-pi/internal/resilience"
	"github.com/weny945/home-pi/pkg/provider/tts"
	ttsmock "github.com/weny945/home-pi/pkg/provider/tts/mock"
)

func newTestDispatcher(t *testing.T, streaming tts.StreamingEngine, remote, local tts.Engine, tierOK func(string) bool) *Dispatcher {
	t.Helper()
	cache, err := OpenCache(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("OpenCache: %v", err)
	}
	t.Cleanup(func() { cache.Close() })

	cfg := DispatcherConfig{
		RetryDelay: time.Millisecond,
		Breaker:    resilience.BreakerSettings{Trip: 100},
	}
	d, err := NewDispatcher(cfg, cache, streaming, remote, local, tierOK, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return d
}

func drain(t *testing.T, ch <-chan []int16) int {
	t.Helper()
	total := 0
	for chunk := range ch {
		total += len(chunk)
	}
	return total
}

func TestDispatcherBatchRouting(t *testing.T) {
	remote := &ttsmock.Engine{EngineName: "remote"}
	local := &ttsmock.Engine{EngineName: "local"}
	d := newTestDispatcher(t, nil, remote, local, nil)

	res, err := d.Synthesize(context.Background(), "hello there", ScenarioReply)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Streamed() {
		t.Fatal("short reply should not stream")
	}
	if res.Source != TierRemote || res.Engine != "remote" {
		t.Errorf("served by %s/%s, want remote tier", res.Source, res.Engine)
	}
	if local.RequestCount() != 0 {
		t.Error("local engine consulted while remote healthy")
	}
}

func TestDispatcherCacheHit(t *testing.T) {
	remote := &ttsmock.Engine{EngineName: "remote"}
	local := &ttsmock.Engine{EngineName: "local"}
	d := newTestDispatcher(t, nil, remote, local, nil)

	if _, err := d.Synthesize(context.Background(), "good morning", ScenarioSystem); err != nil {
		t.Fatalf("first Synthesize: %v", err)
	}
	res, err := d.Synthesize(context.Background(), "good morning", ScenarioSystem)
	if err != nil {
		t.Fatalf("second Synthesize: %v", err)
	}
	if res.Source != "cache" {
		t.Errorf("second call served by %s, want cache", res.Source)
	}
	if remote.RequestCount() != 1 {
		t.Errorf("engine called %d times, want 1", remote.RequestCount())
	}
}

func TestDispatcherFallbackToLocal(t *testing.T) {
	remote := &ttsmock.Engine{EngineName: "remote", Err: errors.New("remote down")}
	local := &ttsmock.Engine{EngineName: "local"}
	d := newTestDispatcher(t, nil, remote, local, nil)

	res, err := d.Synthesize(context.Background(), "fall back please", ScenarioReply)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Source != TierLocal {
		t.Errorf("served by %s, want local", res.Source)
	}
}

func TestDispatcherSkipsRemoteWhenUnhealthy(t *testing.T) {
	streaming := &ttsmock.Engine{EngineName: "realtime"}
	remote := &ttsmock.Engine{EngineName: "remote"}
	local := &ttsmock.Engine{EngineName: "local"}
	d := newTestDispatcher(t, streaming, remote, local, func(string) bool { return false })

	res, err := d.Synthesize(context.Background(), strings.Repeat("长", 120), ScenarioStory)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Source != TierLocal {
		t.Errorf("served by %s, want local while network down", res.Source)
	}
	if streaming.RequestCount() != 0 || remote.RequestCount() != 0 {
		t.Error("remote tiers consulted while marked unavailable")
	}
}

func TestDispatcherSkipsOnlyUnhealthyTier(t *testing.T) {
	streaming := &ttsmock.Engine{EngineName: "realtime"}
	remote := &ttsmock.Engine{EngineName: "remote"}
	local := &ttsmock.Engine{EngineName: "local"}
	// Only the batch remote backend is down; streaming stays in the chain.
	d := newTestDispatcher(t, streaming, remote, local, func(tier string) bool {
		return tier != TierRemote
	})

	res, err := d.Synthesize(context.Background(), "short story", ScenarioStory)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Source != TierStreaming {
		t.Errorf("served by %s, want streaming despite remote being down", res.Source)
	}
	drain(t, res.Stream)
	if remote.RequestCount() != 0 {
		t.Error("unavailable remote tier consulted")
	}

	// A non-streaming request skips remote and lands on local.
	res, err = d.Synthesize(context.Background(), "quick reply", ScenarioReply)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Source != TierLocal {
		t.Errorf("served by %s, want local", res.Source)
	}
}

func TestDispatcherStreamsLongText(t *testing.T) {
	streaming := &ttsmock.Engine{EngineName: "realtime", ChunkSamples: 512}
	local := &ttsmock.Engine{EngineName: "local"}
	d := newTestDispatcher(t, streaming, nil, local, nil)

	text := strings.Repeat("a very long narration ", 10)
	res, err := d.Synthesize(context.Background(), text, ScenarioReply)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !res.Streamed() {
		t.Fatal("long text should route to the streaming tier")
	}
	if got := drain(t, res.Stream); got != len(text)*160 {
		t.Errorf("streamed %d samples, want %d", got, len(text)*160)
	}

	// The tee caches the accumulated stream shortly after it finishes.
	deadline := time.Now().Add(2 * time.Second)
	for !d.cached(text) {
		if time.Now().After(deadline) {
			t.Fatal("completed stream never reached the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDispatcherStreamScenario(t *testing.T) {
	streaming := &ttsmock.Engine{EngineName: "realtime"}
	local := &ttsmock.Engine{EngineName: "local"}
	d := newTestDispatcher(t, streaming, nil, local, nil)

	res, err := d.Synthesize(context.Background(), "short story", ScenarioStory)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !res.Streamed() {
		t.Error("story scenario should stream regardless of length")
	}
	drain(t, res.Stream)
}

func TestDispatcherRetriesChain(t *testing.T) {
	local := &ttsmock.Engine{EngineName: "local", Err: errors.New("piper missing")}
	d := newTestDispatcher(t, nil, nil, local, nil)

	_, err := d.Synthesize(context.Background(), "anyone there", ScenarioReply)
	if err == nil {
		t.Fatal("Synthesize succeeded with every tier failing")
	}
	// One initial walk plus MaxRetries (default 2) re-walks.
	if got := local.RequestCount(); got != 3 {
		t.Errorf("engine called %d times, want 3", got)
	}
}

func TestDispatcherWarmup(t *testing.T) {
	local := &ttsmock.Engine{EngineName: "local"}
	d := newTestDispatcher(t, nil, nil, local, nil)

	phrases := []string{"I'm here", "please say that again", "goodbye", ""}
	if err := d.Warmup(context.Background(), phrases); err != nil {
		t.Fatalf("Warmup: %v", err)
	}
	if got := local.RequestCount(); got != 3 {
		t.Errorf("warm-up built %d phrases, want 3", got)
	}

	// All phrases cached now, so a second pass builds nothing.
	if err := d.Warmup(context.Background(), phrases); err != nil {
		t.Fatalf("second Warmup: %v", err)
	}
	if got := local.RequestCount(); got != 3 {
		t.Errorf("second warm-up rebuilt phrases: %d calls", got)
	}
}

func TestDispatcherEmptyText(t *testing.T) {
	d := newTestDispatcher(t, nil, nil, &ttsmock.Engine{}, nil)
	if _, err := d.Synthesize(context.Background(), "", ScenarioReply); err == nil {
		t.Error("empty text accepted")
	}
}
