package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/weny945/home-pi/internal/alarm"
	"github.com/weny945/home-pi/internal/intent"
	"github.com/weny945/home-pi/internal/listen"
	"github.com/weny945/home-pi/internal/switchctl"
	"github.com/weny945/home-pi/internal/tts"
	"github.com/weny945/home-pi/pkg/audio"
	"github.com/weny945/home-pi/pkg/audio/capture"
	"github.com/weny945/home-pi/pkg/audio/playback"
	"github.com/weny945/home-pi/pkg/provider/stt"
	sttmock "github.com/weny945/home-pi/pkg/provider/stt/mock"
	provtts "github.com/weny945/home-pi/pkg/provider/tts"
	"github.com/weny945/home-pi/pkg/vad"
	"github.com/weny945/home-pi/pkg/wake"

	llmmock "github.com/weny945/home-pi/pkg/provider/llm/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// pacedSource throttles the mock source so the loop does not burn through
// listen windows faster than a test can push audio.
type pacedSource struct{ *capture.MockSource }

func (p pacedSource) Read(ctx context.Context) (audio.Frame, error) {
	time.Sleep(time.Millisecond)
	return p.MockSource.Read(ctx)
}

// fakeSynth records every line and fabricates a clip sized by text length.
type fakeSynth struct {
	mu    sync.Mutex
	texts []string
}

func (s *fakeSynth) Synthesize(_ context.Context, text string, _ tts.Scenario) (tts.Result, error) {
	s.mu.Lock()
	s.texts = append(s.texts, text)
	s.mu.Unlock()
	clip := make([]int16, len([]rune(text))*160)
	return tts.Result{
		Clip:   provtts.Clip{PCM: clip, Rate: audio.SampleRate},
		Rate:   audio.SampleRate,
		Source: "local",
		Engine: "fake",
	}, nil
}

func (s *fakeSynth) said(sub string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, line := range s.texts {
		if strings.Contains(line, sub) {
			return true
		}
	}
	return false
}

func (s *fakeSynth) first() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.texts) == 0 {
		return ""
	}
	return s.texts[0]
}

// slowSink paces writes so playback stays active long enough to interrupt.
type slowSink struct {
	mu      sync.Mutex
	written int
	delay   time.Duration
}

func (s *slowSink) Write(samples []int16, _ int) error {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.written += len(samples)
	s.mu.Unlock()
	return nil
}

func (s *slowSink) Close() error { return nil }

func (s *slowSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

type harness struct {
	src      *capture.MockSource
	stt      *sttmock.Recognizer
	llm      *llmmock.Client
	synth    *fakeSynth
	switches *switchctl.Memory
	vad      *vad.Adaptive
	machine  *Machine
}

// newHarness builds a machine over mocks. The wake detector is scripted to
// fire on the first frame, so every test starts with a conversation unless
// mut swaps the gate out.
func newHarness(t *testing.T, mut func(cfg *Config, deps *Deps)) *harness {
	t.Helper()
	logger := testLogger()

	src := capture.NewMock()
	det := &wake.MockDetector{Script: []*wake.Event{{Keyword: "hey assistant", Confidence: 0.9}}}
	gate := wake.NewGate(det, wake.Config{Cooldown: time.Hour}, logger)
	vadC := vad.New(vad.Config{BaseThreshold: 0.03, MinThreshold: 0.02, MaxThreshold: 0.3}, nil, logger)
	capt := listen.New(listen.Config{
		MinSpeech:   2 * audio.FramePeriod,
		Silence:     3 * audio.FramePeriod,
		MaxDuration: 100 * audio.FramePeriod,
		MinEnergy:   0.001,
	}, vadC, logger)

	sttm := &sttmock.Recognizer{}
	llmm := &llmmock.Client{Fallback: "好的"}
	synth := &fakeSynth{}
	switches := switchctl.NewMemory(logger)

	cfg := Config{
		AutoFarewell: 4 * audio.FramePeriod,
		Settle:       -1, // no settle pause in tests
		MaxRetries:   1,
		AlarmRing:    50 * time.Millisecond,
	}
	deps := Deps{
		Source:   pacedSource{src},
		Gate:     gate,
		VAD:      vadC,
		Capturer: capt,
		STT:      sttm,
		Router:   intent.NewRouter(intent.ClockParser{}, logger),
		Synth:    synth,
		Player:   playback.New(&playback.MockSink{}, logger),
		LLM:      llmm,
		Switches: switches,
		Logger:   logger,
	}
	if mut != nil {
		mut(&cfg, &deps)
	}

	m, err := New(cfg, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("machine did not stop")
		}
	})

	return &harness{src: src, stt: sttm, llm: llmm, synth: synth, switches: switches, vad: vadC, machine: m}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// pushUtterance queues enough tone to pass the speech gates followed by the
// silence that endpoints it.
func (h *harness) pushUtterance() {
	h.src.PushTone(5, 8000)
	h.src.PushSilence(4)
}

func TestWakeToReplyAndFarewell(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.Results = []stt.Result{{Text: "今天天气怎么样", Confidence: 0.9}}
	h.llm.Replies = []string{"今天晴，最高二十六度"}

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"machine never reached listening after wake")
	h.pushUtterance()

	waitFor(t, 2*time.Second, func() bool { return h.synth.said("今天晴") },
		"reply was never spoken")
	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateIdle },
		"machine never returned to idle")

	if got := h.synth.first(); got != "我在" && got != "请讲" && got != "怎么了" {
		t.Errorf("first spoken line = %q, want a wake acknowledgement", got)
	}
	if !h.synth.said("下次再聊") {
		t.Error("farewell was never spoken")
	}

	req := h.llm.LastRequest()
	if len(req.Messages) == 0 || req.Messages[len(req.Messages)-1].Content != "今天天气怎么样" {
		t.Errorf("model did not receive the utterance: %+v", req.Messages)
	}
}

func TestSwitchIntent(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.Results = []stt.Result{{Text: "打开卧室的灯", Confidence: 0.9}}

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"machine never reached listening")
	h.pushUtterance()

	waitFor(t, 2*time.Second, func() bool {
		_, known := h.switches.State("卧室的灯")
		return known
	}, "switch was never set")

	if on, _ := h.switches.State("卧室的灯"); !on {
		t.Error("switch set off, want on")
	}
	if h.llm.RequestCount() != 0 {
		t.Error("device command leaked to the language model")
	}

	waitFor(t, 2*time.Second, func() bool { return h.synth.said("已打开") },
		"confirmation was never spoken")
}

func TestRetryThenFarewell(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.Err = errors.New("decode failed")
	retryPrompt := DefaultPhrases().Retry[listen.RejectGarbage][0]

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"machine never reached listening")
	h.pushUtterance()

	waitFor(t, 2*time.Second, func() bool {
		return h.synth.said(retryPrompt) && h.machine.State() == StateListening
	}, "retry prompt was never spoken")
	h.pushUtterance()

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateIdle },
		"machine never gave up")
	if !h.synth.said("下次再聊") {
		t.Error("farewell was never spoken after exhausted retries")
	}
	if calls := len(h.stt.Calls); calls != 2 {
		t.Errorf("transcribe calls = %d, want 2", calls)
	}
}

func TestSilentWindowRetriesThenFarewell(t *testing.T) {
	h := newHarness(t, nil)
	silencePrompt := DefaultPhrases().Retry[listen.RejectSilence][0]

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"machine never reached listening after wake")

	// Say nothing at all. The capture window runs out, the quality gates
	// classify the silence, and the loop re-prompts instead of going quiet.
	waitFor(t, 4*time.Second, func() bool {
		return h.synth.said(silencePrompt) && h.machine.State() == StateListening
	}, "silence re-prompt was never spoken")

	// Stay silent through the second window too: retries exhausted.
	waitFor(t, 4*time.Second, func() bool { return h.machine.State() == StateIdle },
		"machine never gave up on the silent user")
	if !h.synth.said("下次再聊") {
		t.Error("farewell was never spoken")
	}
	if calls := len(h.stt.Calls); calls != 0 {
		t.Errorf("transcribe calls = %d, want 0 for pure silence", calls)
	}
}

func TestRetryPromptEscalatesPerAttempt(t *testing.T) {
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		cfg.MaxRetries = 2
	})
	h.stt.Err = errors.New("decode failed")
	prompts := DefaultPhrases().Retry[listen.RejectGarbage]

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"machine never reached listening")
	h.pushUtterance()

	waitFor(t, 2*time.Second, func() bool {
		return h.synth.said(prompts[0]) && h.machine.State() == StateListening
	}, "first retry prompt was never spoken")
	h.pushUtterance()

	// The second attempt hears a different wording.
	waitFor(t, 2*time.Second, func() bool {
		return h.synth.said(prompts[1]) && h.machine.State() == StateListening
	}, "escalated retry prompt was never spoken")
	h.pushUtterance()

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateIdle },
		"machine never gave up")
}

func TestRetriesDisabledGoesStraightToFarewell(t *testing.T) {
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		cfg.MaxRetries = 0
	})
	h.stt.Err = errors.New("decode failed")

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"machine never reached listening")
	h.pushUtterance()

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateIdle },
		"machine never closed the conversation")
	if h.synth.said(DefaultPhrases().Retry[listen.RejectGarbage][0]) {
		t.Error("retry prompt spoken with retries disabled")
	}
	if !h.synth.said("下次再聊") {
		t.Error("farewell was never spoken")
	}
	if calls := len(h.stt.Calls); calls != 1 {
		t.Errorf("transcribe calls = %d, want 1", calls)
	}
}

func TestVADFrozenDuringListening(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.Results = []stt.Result{{Text: "今天天气怎么样", Confidence: 0.9}}

	// The noise floor must hold still while the capture window is open;
	// otherwise the user's own voice drags the threshold up mid-utterance.
	waitFor(t, 2*time.Second, func() bool {
		return h.machine.State() == StateListening && h.vad.Frozen()
	}, "adaptation not frozen while listening")

	h.pushUtterance()
	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateIdle },
		"machine never returned to idle")
	if h.vad.Frozen() {
		t.Error("adaptation still frozen back in idle")
	}
}

func TestFailedCompletionLeavesHistoryClean(t *testing.T) {
	logger := testLogger()
	vadC := vad.New(vad.Config{}, nil, logger)
	llmm := &llmmock.Client{Err: errors.New("timeout")}
	deps := Deps{
		Source:   capture.NewMock(),
		Gate:     wake.NewGate(&wake.MockDetector{}, wake.Config{}, logger),
		VAD:      vadC,
		Capturer: listen.New(listen.Config{}, vadC, logger),
		STT:      &sttmock.Recognizer{},
		Router:   intent.NewRouter(intent.ClockParser{}, logger),
		Synth:    &fakeSynth{},
		Player:   playback.New(&playback.MockSink{}, logger),
		LLM:      llmm,
		Logger:   logger,
	}
	m, err := New(Config{}, deps)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if reply, _ := m.ask(context.Background(), "第一个问题"); reply != m.phrases.Trouble {
		t.Fatalf("reply = %q, want the trouble phrase", reply)
	}
	if got := m.dialogue.Len(); got != 0 {
		t.Fatalf("history length after failed call = %d, want 0", got)
	}

	llmm.Err = nil
	llmm.Replies = []string{"答案"}
	if reply, _ := m.ask(context.Background(), "第二个问题"); reply != "答案" {
		t.Fatalf("reply = %q", reply)
	}
	req := llmm.LastRequest()
	users := 0
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			users++
		}
	}
	if users != 1 || req.Messages[len(req.Messages)-1].Content != "第二个问题" {
		t.Errorf("request carries a dangling turn from the failed call: %+v", req.Messages)
	}
	if got := m.dialogue.Len(); got != 2 {
		t.Errorf("history length = %d, want the successful turn only", got)
	}
}

func TestAlarmStopVoiceCommand(t *testing.T) {
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		// No scripted wake; the alarm opens the conversation.
		deps.Gate = wake.NewGate(&wake.MockDetector{}, wake.Config{Cooldown: time.Hour}, testLogger())
		cfg.AutoFarewell = time.Minute
	})
	h.stt.Results = []stt.Result{{Text: "关闭闹钟", Confidence: 0.9}}

	h.machine.FireAlarm(alarm.Alarm{
		ID:        3,
		FireTime:  time.Now().Add(-time.Second),
		Message:   "起床",
		Cheerword: "该起床啦",
	})

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"no follow-up window after the alarm")
	h.pushUtterance()

	waitFor(t, 2*time.Second, func() bool { return h.synth.said("闹钟停了") },
		"stop confirmation was never spoken")
}

func TestAlarmFireAndSnooze(t *testing.T) {
	store, err := alarm.OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	sched := alarm.NewScheduler(alarm.SchedulerConfig{SnoozeDuration: 5 * time.Minute}, store, func(alarm.Alarm) {}, testLogger())

	h := newHarness(t, func(cfg *Config, deps *Deps) {
		// No scripted wake; the alarm opens the conversation. A long
		// follow-up window keeps the farewell out of the test's way.
		deps.Gate = wake.NewGate(&wake.MockDetector{}, wake.Config{Cooldown: time.Hour}, testLogger())
		deps.Alarms = store
		deps.Snoozer = sched
		cfg.AutoFarewell = time.Minute
	})
	h.stt.Results = []stt.Result{{Text: "再睡一会", Confidence: 0.9}}

	h.machine.FireAlarm(alarm.Alarm{
		ID:        1,
		FireTime:  time.Now().Add(-time.Second),
		Message:   "起床",
		Cheerword: "早上好，该起床啦",
	})

	waitFor(t, 2*time.Second, func() bool { return h.synth.said("早上好，该起床啦") },
		"cheer line was never spoken")
	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"no follow-up window after the alarm")
	h.pushUtterance()

	waitFor(t, 2*time.Second, func() bool { return h.synth.said("再叫你") },
		"snooze confirmation was never spoken")

	active, err := store.ListActive(context.Background())
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active alarms = %d, want the snoozed one", len(active))
	}
	if active[0].Message != "起床" {
		t.Errorf("snoozed alarm message = %q, want carried over", active[0].Message)
	}
}

func TestAlarmDefersUntilConversationEnds(t *testing.T) {
	h := newHarness(t, nil)
	h.stt.Results = []stt.Result{{Text: "今天天气怎么样", Confidence: 0.9}}
	h.llm.Replies = []string{"今天晴"}

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"machine never reached listening")

	// Fire mid-conversation. The ring must wait until the loop is idle.
	h.machine.FireAlarm(alarm.Alarm{
		ID:        2,
		FireTime:  time.Now(),
		Message:   "吃药",
		Cheerword: "该吃药了",
	})
	if h.synth.said("该吃药了") {
		t.Fatal("alarm rang while a conversation was active")
	}

	h.pushUtterance()
	waitFor(t, 2*time.Second, func() bool { return h.synth.said("今天晴") },
		"reply was never spoken")
	if h.synth.said("该吃药了") {
		t.Error("alarm rang before the conversation ended")
	}

	waitFor(t, 3*time.Second, func() bool { return h.synth.said("该吃药了") },
		"queued alarm never fired after returning to idle")
}

// failSynth refuses every request, as when all synthesis tiers are down.
type failSynth struct{}

func (failSynth) Synthesize(context.Context, string, tts.Scenario) (tts.Result, error) {
	return tts.Result{}, provtts.ErrUnavailable
}

func TestSynthesisFailureResetsToIdle(t *testing.T) {
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		deps.Synth = failSynth{}
	})
	h.stt.Results = []stt.Result{{Text: "今天天气怎么样", Confidence: 0.9}}

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"machine never reached listening")
	h.pushUtterance()

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateIdle },
		"machine never reset after the synthesis failure")
}

func TestQuietHoursSuppressWake(t *testing.T) {
	now := time.Now()
	quiet, err := NewQuietWindow(now.Add(-time.Hour).Format("15:04"), now.Add(time.Hour).Format("15:04"))
	if err != nil {
		t.Fatalf("NewQuietWindow: %v", err)
	}
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		cfg.Quiet = quiet
	})

	// The detector is scripted to fire on the first frame; during quiet
	// hours it must never be consulted.
	time.Sleep(100 * time.Millisecond)
	if got := h.machine.State(); got != StateIdle {
		t.Errorf("state = %v, want idle during quiet hours", got)
	}
	if h.synth.said("我在") || h.synth.said("请讲") || h.synth.said("怎么了") {
		t.Error("wake acknowledgement spoken during quiet hours")
	}
}

func TestBargeInStopsPlayback(t *testing.T) {
	sink := &slowSink{delay: 2 * time.Millisecond}
	h := newHarness(t, func(cfg *Config, deps *Deps) {
		cfg.AllowBargeIn = true
		cfg.Barge = BargeConfig{
			SampleEvery: 2,
			MinSpeech:   2 * audio.FramePeriod,
			Tail:        10 * audio.FramePeriod,
		}
		deps.Player = playback.New(sink, testLogger())
	})
	longReply := strings.Repeat("这是一个很长的回答。", 200)
	h.stt.Results = []stt.Result{
		{Text: "给我讲讲历史", Confidence: 0.9},
		{Text: "打开客厅的灯", Confidence: 0.9},
	}
	h.llm.Replies = []string{longReply}

	waitFor(t, 2*time.Second, func() bool { return h.machine.State() == StateListening },
		"machine never reached listening")
	h.pushUtterance()

	waitFor(t, 3*time.Second, func() bool { return h.machine.State() == StateSpeaking },
		"reply playback never started")

	// Talk over the reply: sustained speech should cut playback and open a
	// fresh capture seeded with the interruption.
	h.src.PushTone(8, 8000)
	h.src.PushSilence(4)

	waitFor(t, 3*time.Second, func() bool {
		_, known := h.switches.State("客厅的灯")
		return known
	}, "interrupting command was never handled")

	if full := len([]rune(longReply)) * 160; sink.total() >= full {
		t.Errorf("sink received the whole reply (%d samples), playback was not interrupted", sink.total())
	}
}
