package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weny945/home-pi/internal/alarm"
	"github.com/weny945/home-pi/internal/intent"
	"github.com/weny945/home-pi/internal/listen"
	"github.com/weny945/home-pi/internal/music"
	"github.com/weny945/home-pi/internal/observe"
	"github.com/weny945/home-pi/internal/switchctl"
	"github.com/weny945/home-pi/internal/tts"
	"github.com/weny945/home-pi/pkg/audio"
	"github.com/weny945/home-pi/pkg/audio/capture"
	"github.com/weny945/home-pi/pkg/audio/playback"
	"github.com/weny945/home-pi/pkg/provider/llm"
	"github.com/weny945/home-pi/pkg/provider/stt"
	"github.com/weny945/home-pi/pkg/vad"
	"github.com/weny945/home-pi/pkg/wake"
)

// Transcriber is the recognition seam the machine needs: one utterance of
// PCM in, one result out.
type Transcriber interface {
	Transcribe(ctx context.Context, samples []int16) (stt.Result, error)
}

// Synthesizer is the synthesis seam; the tts dispatcher satisfies it.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, scenario tts.Scenario) (tts.Result, error)
}

// Snoozer re-arms a fired alarm; the alarm scheduler satisfies it.
type Snoozer interface {
	Snooze(ctx context.Context, fired alarm.Alarm) (alarm.Alarm, error)
}

// Config tunes the dialogue loop. Zero fields get defaults.
type Config struct {
	// AutoFarewell closes a silent follow-up window. Default: 8 s.
	AutoFarewell time.Duration

	// Settle is the pause after playback before capture resumes, long
	// enough for room echo to die down. Default: 300 ms.
	Settle time.Duration

	// MaxRetries bounds re-prompts per conversation before giving up.
	// Zero disables retries entirely; negative values get the default of 1.
	MaxRetries int

	// AllowBargeIn enables interrupting playback by voice. Only safe on
	// boards with hardware echo cancellation.
	AllowBargeIn bool

	// AlarmRing is how long the ringtone plays before the cheer line.
	// Default: 10 s.
	AlarmRing time.Duration

	// Quiet suppresses farewells during the configured window.
	Quiet QuietWindow

	// SystemPrompt, Temperature, and MaxTokens pass through to the model.
	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	// HistoryTurns bounds the dialogue history. Default: 10.
	HistoryTurns int

	// STTTimeout and LLMTimeout bound the backend calls.
	// Defaults: 5 s and 10 s.
	STTTimeout time.Duration
	LLMTimeout time.Duration

	// Gate tunes the text-level quality gates.
	Gate listen.TranscriptGateConfig

	// Barge tunes barge-in detection.
	Barge BargeConfig

	// Phrases overrides the stock spoken lines per field.
	Phrases Phrases
}

func (c Config) withDefaults() Config {
	if c.AutoFarewell <= 0 {
		c.AutoFarewell = 8 * time.Second
	}
	if c.Settle < 0 {
		c.Settle = 0
	} else if c.Settle == 0 {
		c.Settle = 300 * time.Millisecond
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 1
	}
	if c.AlarmRing <= 0 {
		c.AlarmRing = 10 * time.Second
	}
	if c.HistoryTurns <= 0 {
		c.HistoryTurns = defaultHistoryTurns
	}
	if c.STTTimeout <= 0 {
		c.STTTimeout = 5 * time.Second
	}
	if c.LLMTimeout <= 0 {
		c.LLMTimeout = 10 * time.Second
	}
	c.Phrases = c.Phrases.withDefaults()
	return c
}

// Deps are the collaborators the machine drives. Source, Gate, VAD,
// Capturer, STT, Router, Synth, and Player are required; the rest degrade
// gracefully when nil.
type Deps struct {
	Source   capture.Source
	Gate     *wake.Gate
	VAD      *vad.Adaptive
	Capturer *listen.Capturer
	STT      Transcriber
	Router   *intent.Router
	Synth    Synthesizer
	Player   *playback.Player

	// LLM answers free-form questions. Nil routes them to a stock line.
	LLM llm.Client

	// Alarms, Snoozer, and Cheer serve the alarm intents.
	Alarms  *alarm.Store
	Snoozer Snoozer
	Cheer   *alarm.CheerGenerator

	// Music serves the playback intents.
	Music *music.Player

	// Switches serves the device intents.
	Switches switchctl.Controller

	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Machine is the dialogue state machine. Run owns the frame stream; all
// other methods are safe to call concurrently.
type Machine struct {
	cfg     Config
	deps    Deps
	phrases Phrases
	logger  *slog.Logger
	metrics *observe.Metrics

	dialogue *Dialogue
	barge    *BargeDetector
	alarms   chan alarm.Alarm

	// Loop-owned state below; stateMu guards only the fields the
	// accessors read.
	stateMu sync.Mutex
	state   State

	session      string
	attempts     int
	ackIdx       int
	followUp     bool
	listenFrames int
	lastSpoken   string
	lastFired    *alarm.Alarm
}

// New validates deps and builds a machine.
func New(cfg Config, deps Deps) (*Machine, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("conversation: capture source is required")
	case deps.Gate == nil:
		return nil, errors.New("conversation: wake gate is required")
	case deps.VAD == nil:
		return nil, errors.New("conversation: vad classifier is required")
	case deps.Capturer == nil:
		return nil, errors.New("conversation: utterance capturer is required")
	case deps.STT == nil:
		return nil, errors.New("conversation: transcriber is required")
	case deps.Router == nil:
		return nil, errors.New("conversation: intent router is required")
	case deps.Synth == nil:
		return nil, errors.New("conversation: synthesizer is required")
	case deps.Player == nil:
		return nil, errors.New("conversation: player is required")
	}
	cfg = cfg.withDefaults()
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observe.DefaultMetrics()
	}
	return &Machine{
		cfg:      cfg,
		deps:     deps,
		phrases:  cfg.Phrases,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		dialogue: NewDialogue(cfg.HistoryTurns),
		barge:    NewBargeDetector(cfg.Barge, deps.VAD),
		alarms:   make(chan alarm.Alarm, 4),
	}, nil
}

// Phrases returns the effective phrase set with defaults applied, for
// cache warm-up.
func (m *Machine) Phrases() Phrases { return m.phrases }

// State reports the current loop phase.
func (m *Machine) State() State {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.state
}

func (m *Machine) setState(s State) {
	m.stateMu.Lock()
	prev := m.state
	m.state = s
	m.stateMu.Unlock()
	if prev != s {
		m.logger.Debug("conversation state", "from", prev.String(), "to", s.String())
	}
}

// FireAlarm hands a fired alarm to the loop. It is the scheduler's
// FireFunc; delivery is asynchronous and drops when the loop is wedged
// rather than blocking the scheduler tick.
func (m *Machine) FireAlarm(a alarm.Alarm) {
	select {
	case m.alarms <- a:
	default:
		m.logger.Warn("alarm dropped, loop busy", "id", a.ID)
	}
}

// Run drives the loop until ctx is cancelled or the source closes.
func (m *Machine) Run(ctx context.Context) error {
	if err := m.deps.Source.Start(ctx); err != nil {
		return fmt.Errorf("conversation: start capture: %w", err)
	}
	defer m.deps.Source.Stop()
	defer m.setState(StateStopped)

	m.logger.Info("conversation loop started", "source", m.deps.Source.Name())
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// A fired alarm waits for the current conversation to finish; it
		// stays queued until the loop is back in idle.
		if m.State() == StateIdle {
			select {
			case a := <-m.alarms:
				m.handleAlarm(ctx, a)
				continue
			default:
			}
		}

		f, err := m.deps.Source.Read(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("conversation: read frame: %w", err)
		}
		m.step(ctx, f)
	}
}

func (m *Machine) step(ctx context.Context, f audio.Frame) {
	switch m.State() {
	case StateIdle:
		m.stepIdle(ctx, f)
	case StateListening:
		m.stepListening(ctx, f)
	case StateSpeaking:
		m.stepSpeaking(ctx, f)
	}
}

func (m *Machine) stepIdle(ctx context.Context, f audio.Frame) {
	if f.Err != nil {
		return
	}
	// No waking during quiet hours. Alarms still fire; they arrive on their
	// own channel.
	if m.cfg.Quiet.Contains(time.Now()) {
		return
	}
	ev, err := m.deps.Gate.ProcessFrame(f)
	if err != nil {
		m.logger.Warn("wake detection failed", "error", err)
		return
	}
	if ev == nil {
		return
	}

	m.metrics.RecordWake(ctx, ev.Keyword)
	m.setState(StateWakeup)
	m.beginConversation(ctx)

	ack := m.phrases.WakeAck[m.ackIdx%len(m.phrases.WakeAck)]
	m.ackIdx++
	m.speakBlocking(ctx, ack, tts.ScenarioWake)
	m.startListening(nil, false)
}

func (m *Machine) stepListening(ctx context.Context, f audio.Frame) {
	m.listenFrames++
	switch m.deps.Capturer.Feed(f) {
	case listen.Active:
		window := time.Duration(m.listenFrames) * audio.FramePeriod
		if m.followUp && !m.deps.Capturer.HeardSpeech() && window >= m.cfg.AutoFarewell {
			m.farewell(ctx)
		}
	case listen.Endpointed:
		m.process(ctx)
	case listen.QualityRejected:
		m.retry(ctx, m.deps.Capturer.Rejection())
	}
}

func (m *Machine) stepSpeaking(ctx context.Context, f audio.Frame) {
	if m.cfg.AllowBargeIn && m.barge.Observe(f) {
		m.logger.Info("barge-in, stopping playback")
		m.deps.Player.Stop()
		m.metrics.BargeIns.Add(ctx, 1)
		m.startListening(m.barge.Tail(), false)
		return
	}
	if m.deps.Player.IsPlaying() {
		return
	}

	// Playback finished. Let the room settle and flush any echo the mic
	// buffered before reopening capture.
	if m.cfg.Settle > 0 {
		time.Sleep(m.cfg.Settle)
	}
	if !m.cfg.AllowBargeIn {
		m.deps.Source.Drain(math.MaxInt)
	}
	m.startListening(nil, true)
}

// startListening opens a capture window. prefix seeds it with barge-in
// tail audio; followUp windows close with a farewell when nothing is said.
// The noise floor holds still for the whole window; the user's own speech
// must not drag the threshold up mid-capture.
func (m *Machine) startListening(prefix []int16, followUp bool) {
	m.deps.VAD.SetFrozen(true)
	m.deps.Capturer.Begin(prefix)
	m.followUp = followUp
	m.listenFrames = 0
	m.setState(StateListening)
}

// process runs recognition and intent handling for the captured utterance.
func (m *Machine) process(ctx context.Context) {
	m.setState(StateProcessing)
	m.deps.VAD.SetFrozen(false)
	turnStart := time.Now()

	pcm, _ := m.deps.Capturer.Utterance()
	sctx, cancel := context.WithTimeout(ctx, m.cfg.STTTimeout)
	res, err := m.deps.STT.Transcribe(sctx, pcm)
	cancel()
	m.metrics.STTDuration.Record(ctx, time.Since(turnStart).Seconds())
	if err != nil {
		m.logger.Warn("recognition failed", "error", err)
		m.retry(ctx, listen.RejectGarbage)
		return
	}

	if kind := listen.CheckTranscript(res.Text, res.Confidence, m.cfg.Gate); kind != 0 {
		m.retry(ctx, kind)
		return
	}

	text := strings.TrimSpace(res.Text)
	if m.isEcho(text) {
		m.logger.Debug("own speech recognized, ignoring", "text", text)
		m.startListening(nil, m.followUp)
		return
	}

	m.attempts = 0
	m.logger.Info("utterance", "text", text, "confidence", res.Confidence)

	it := m.deps.Router.Route(text, time.Now())
	reply, scenario := m.dispatch(ctx, it)
	m.say(ctx, reply, scenario)
	m.metrics.TurnDuration.Record(ctx, time.Since(turnStart).Seconds())
}

// isEcho guards against the assistant transcribing its own trailing audio:
// a transcript contained in the line just spoken is not the user.
func (m *Machine) isEcho(text string) bool {
	if m.lastSpoken == "" || text == "" {
		return false
	}
	spoken := normalize(m.lastSpoken)
	heard := normalize(text)
	return strings.Contains(spoken, heard) || strings.Contains(heard, spoken)
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

// dispatch executes the routed intent and returns the spoken reply.
func (m *Machine) dispatch(ctx context.Context, it intent.Intent) (string, tts.Scenario) {
	switch it.Kind {
	case intent.AlarmSet:
		return m.alarmSet(ctx, it), tts.ScenarioSystem
	case intent.AlarmCancel:
		return m.alarmCancel(ctx), tts.ScenarioSystem
	case intent.AlarmList:
		return m.alarmList(ctx), tts.ScenarioSystem
	case intent.AlarmSnooze:
		return m.alarmSnooze(ctx), tts.ScenarioSystem
	case intent.MusicPlay:
		return m.musicPlay(ctx, it.Arg), tts.ScenarioSystem
	case intent.MusicStop:
		if m.deps.Music != nil {
			m.deps.Music.Stop()
		}
		return m.phrases.MusicStopped, tts.ScenarioSystem
	case intent.MusicPause:
		if m.deps.Music == nil || !m.deps.Music.IsPlaying() {
			return m.phrases.MusicMissing, tts.ScenarioSystem
		}
		m.deps.Music.Pause()
		return m.phrases.MusicPaused, tts.ScenarioSystem
	case intent.MusicResume:
		if m.deps.Music == nil || !m.deps.Music.IsPlaying() {
			return m.phrases.MusicMissing, tts.ScenarioSystem
		}
		m.deps.Music.Resume()
		return m.phrases.MusicResumed, tts.ScenarioSystem
	case intent.AlarmStop:
		return m.alarmStop(), tts.ScenarioSystem
	case intent.MusicVolumeUp:
		return m.musicVolume(0.1), tts.ScenarioSystem
	case intent.MusicVolumeDown:
		return m.musicVolume(-0.1), tts.ScenarioSystem
	case intent.SwitchOn:
		return m.switchSet(ctx, it.Arg, true), tts.ScenarioSystem
	case intent.SwitchOff:
		return m.switchSet(ctx, it.Arg, false), tts.ScenarioSystem
	default:
		return m.ask(ctx, it.Text)
	}
}

func (m *Machine) alarmSet(ctx context.Context, it intent.Intent) string {
	if m.deps.Alarms == nil {
		return m.phrases.Trouble
	}
	a := alarm.Alarm{FireTime: it.When, Message: it.Text}
	if m.deps.Cheer != nil {
		// Pre-generate the announcement so firing never waits on a model.
		a.Cheerword = m.deps.Cheer.Generate(ctx, a.Theme, a.Message)
	}
	created, err := m.deps.Alarms.Create(ctx, a)
	if err != nil {
		m.logger.Error("alarm create failed", "error", err)
		return m.phrases.Trouble
	}
	m.logger.Info("alarm set", "id", created.ID, "fire_time", created.FireTime)
	return fmt.Sprintf(m.phrases.AlarmSet, m.formatClock(created.FireTime))
}

func (m *Machine) alarmCancel(ctx context.Context) string {
	if m.deps.Alarms == nil {
		return m.phrases.Trouble
	}
	active, err := m.deps.Alarms.ListActive(ctx)
	if err != nil {
		m.logger.Error("alarm list failed", "error", err)
		return m.phrases.Trouble
	}
	if len(active) == 0 {
		return m.phrases.AlarmNone
	}
	// Cancel the next upcoming one; that is what "cancel the alarm" means.
	if err := m.deps.Alarms.Deactivate(ctx, active[0].ID); err != nil {
		m.logger.Error("alarm cancel failed", "id", active[0].ID, "error", err)
		return m.phrases.Trouble
	}
	return m.phrases.AlarmCancelled
}

func (m *Machine) alarmList(ctx context.Context) string {
	if m.deps.Alarms == nil {
		return m.phrases.Trouble
	}
	active, err := m.deps.Alarms.ListActive(ctx)
	if err != nil {
		m.logger.Error("alarm list failed", "error", err)
		return m.phrases.Trouble
	}
	if len(active) == 0 {
		return m.phrases.AlarmNone
	}
	return fmt.Sprintf(m.phrases.AlarmUpcoming, m.formatClock(active[0].FireTime), len(active))
}

// alarmStop silences a ringing or just-rung alarm without re-arming it,
// which is what distinguishes it from snooze.
func (m *Machine) alarmStop() string {
	m.deps.Player.Stop()
	if m.lastFired == nil {
		return m.phrases.AlarmNotRung
	}
	m.lastFired = nil
	return m.phrases.AlarmStopped
}

func (m *Machine) alarmSnooze(ctx context.Context) string {
	if m.deps.Snoozer == nil || m.lastFired == nil {
		return m.phrases.AlarmNotRung
	}
	snoozed, err := m.deps.Snoozer.Snooze(ctx, *m.lastFired)
	if err != nil {
		m.logger.Error("snooze failed", "error", err)
		return m.phrases.Trouble
	}
	m.lastFired = nil
	return fmt.Sprintf(m.phrases.AlarmSnoozed, m.formatClock(snoozed.FireTime))
}

func (m *Machine) musicPlay(ctx context.Context, query string) string {
	if m.deps.Music == nil {
		return m.phrases.MusicMissing
	}
	track, err := m.deps.Music.Play(ctx, query)
	if errors.Is(err, music.ErrBusy) {
		m.deps.Music.Stop()
		track, err = m.deps.Music.Play(ctx, query)
	}
	if err != nil {
		m.logger.Warn("music play failed", "query", query, "error", err)
		return m.phrases.MusicMissing
	}
	// Keep it under the conversation until the farewell restores it.
	m.deps.Music.Duck()
	return fmt.Sprintf(m.phrases.MusicPlaying, track.Title)
}

func (m *Machine) musicVolume(delta float64) string {
	if m.deps.Music == nil {
		return m.phrases.MusicMissing
	}
	m.deps.Music.SetVolume(m.deps.Music.Volume() + delta)
	if delta > 0 {
		return m.phrases.VolumeUp
	}
	return m.phrases.VolumeDown
}

func (m *Machine) switchSet(ctx context.Context, device string, on bool) string {
	if m.deps.Switches == nil || device == "" {
		return m.phrases.Trouble
	}
	if err := m.deps.Switches.Set(ctx, device, on); err != nil {
		m.logger.Error("switch set failed", "device", device, "error", err)
		return m.phrases.Trouble
	}
	if on {
		return fmt.Sprintf(m.phrases.SwitchedOn, device)
	}
	return fmt.Sprintf(m.phrases.SwitchedOff, device)
}

// ask sends the utterance and the bounded history to the model.
func (m *Machine) ask(ctx context.Context, text string) (string, tts.Scenario) {
	scenario := tts.ScenarioReply
	if storyRequest(text) {
		scenario = tts.ScenarioStory
	}
	if m.deps.LLM == nil {
		return m.phrases.Trouble, tts.ScenarioSystem
	}

	// The turn joins the history only after the model answers; a failed
	// call must not leave a dangling user message in the next request.
	req := llm.CompletionRequest{
		SystemPrompt: m.cfg.SystemPrompt,
		Messages:     append(m.dialogue.Messages(), llm.Message{Role: "user", Content: text}),
		Temperature:  m.cfg.Temperature,
		MaxTokens:    m.cfg.MaxTokens,
	}

	start := time.Now()
	lctx, cancel := context.WithTimeout(ctx, m.cfg.LLMTimeout)
	resp, err := m.deps.LLM.Complete(lctx, req)
	cancel()
	m.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		m.logger.Error("completion failed", "error", err)
		return m.phrases.Trouble, tts.ScenarioSystem
	}

	reply := strings.TrimSpace(resp.Content)
	if reply == "" {
		return m.phrases.Trouble, tts.ScenarioSystem
	}
	m.dialogue.AddUser(text)
	m.dialogue.AddAssistant(reply)
	return reply, scenario
}

// storyRequest picks the streaming scenario for long-form narration asks.
func storyRequest(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range []string{"story", "故事"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// say starts reply playback and moves to Speaking so barge-in stays live.
func (m *Machine) say(ctx context.Context, text string, scenario tts.Scenario) {
	if text == "" {
		m.startListening(nil, true)
		return
	}
	m.lastSpoken = text
	m.deps.VAD.SetFrozen(true)

	start := time.Now()
	res, err := m.deps.Synth.Synthesize(ctx, text, scenario)
	m.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		m.deps.VAD.SetFrozen(false)
		m.enterError(ctx, fmt.Errorf("synthesize reply: %w", err))
		return
	}

	if res.Streamed() {
		m.deps.Player.PlayStream(res.Stream, res.Rate)
	} else {
		m.deps.Player.Play(res.Clip.PCM, res.Rate)
	}
	m.barge.Reset()
	m.setState(StateSpeaking)
}

// enterError abandons the turn when every recovery path is gone: log,
// apologise if synthesis still works at all, reset to idle.
func (m *Machine) enterError(ctx context.Context, err error) {
	m.logger.Error("conversation failed, resetting", "error", err)
	m.setState(StateError)
	m.speakBlocking(ctx, m.phrases.Trouble, tts.ScenarioSystem)
	m.endConversation(ctx)
}

// speakBlocking plays a short fixed line and waits for it to finish. Used
// for acknowledgements and prompts where barge-in makes no sense.
func (m *Machine) speakBlocking(ctx context.Context, text string, scenario tts.Scenario) {
	if text == "" {
		return
	}
	m.lastSpoken = text
	m.deps.VAD.SetFrozen(true)
	defer m.deps.VAD.SetFrozen(false)

	start := time.Now()
	res, err := m.deps.Synth.Synthesize(ctx, text, scenario)
	m.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		m.logger.Error("synthesis failed", "scenario", string(scenario), "error", err)
		return
	}
	if res.Streamed() {
		m.deps.Player.PlayStream(res.Stream, res.Rate)
	} else {
		m.deps.Player.Play(res.Clip.PCM, res.Rate)
	}
	if err := m.deps.Player.Wait(ctx); err != nil {
		return
	}
	if m.cfg.Settle > 0 {
		time.Sleep(m.cfg.Settle)
	}
	m.deps.Source.Drain(math.MaxInt)
}

// retry re-prompts after a rejected capture, up to the attempt budget.
func (m *Machine) retry(ctx context.Context, kind listen.RejectKind) {
	m.metrics.RecordRejection(ctx, kind.String())
	m.attempts++
	if m.attempts > m.cfg.MaxRetries {
		m.farewell(ctx)
		return
	}
	// Escalate through the prompt variants per attempt; the last one
	// repeats when the budget allows more attempts than variants exist.
	if prompts := m.phrases.Retry[kind]; len(prompts) > 0 {
		idx := m.attempts - 1
		if idx >= len(prompts) {
			idx = len(prompts) - 1
		}
		m.metrics.RetryPrompts.Add(ctx, 1)
		m.speakBlocking(ctx, prompts[idx], tts.ScenarioRetry)
	}
	m.startListening(nil, m.followUp)
}

// farewell closes the conversation. The spoken goodbye is skipped during
// quiet hours; walking away from the assistant at night should not produce
// speech into an empty room.
func (m *Machine) farewell(ctx context.Context) {
	if !m.cfg.Quiet.Contains(time.Now()) {
		m.speakBlocking(ctx, m.phrases.Farewell, tts.ScenarioFarewell)
	}
	m.endConversation(ctx)
}

func (m *Machine) beginConversation(ctx context.Context) {
	m.session = uuid.NewString()
	m.logger.Info("conversation started", "session", m.session)
	m.metrics.ActiveConversations.Add(ctx, 1)
	m.deps.Gate.SetPaused(true)
	m.attempts = 0
	m.dialogue.Reset()
	if m.deps.Music != nil && m.deps.Music.IsPlaying() {
		m.deps.Music.Duck()
	}
}

func (m *Machine) endConversation(ctx context.Context) {
	m.logger.Info("conversation ended", "session", m.session)
	m.metrics.ActiveConversations.Add(ctx, -1)
	m.deps.VAD.SetFrozen(false)
	m.deps.Gate.SetPaused(false)
	if m.deps.Music != nil && m.deps.Music.IsPlaying() {
		m.deps.Music.Unduck()
	}
	m.setState(StateIdle)
}

// handleAlarm rings, announces, and opens a follow-up window so "snooze"
// works by voice. Ring and announcement are exempt from quiet hours; an
// alarm that cannot make noise is not an alarm.
func (m *Machine) handleAlarm(ctx context.Context, a alarm.Alarm) {
	m.logger.Info("alarm firing", "id", a.ID, "message", a.Message)
	m.metrics.AlarmsFired.Add(ctx, 1)
	m.lastFired = &a

	if m.deps.Music != nil && m.deps.Music.IsPlaying() {
		m.deps.Music.Stop()
	}
	m.beginConversation(ctx)

	m.deps.Player.PlayAlarmRingtone(m.cfg.AlarmRing)
	if err := m.deps.Player.Wait(ctx); err != nil {
		return
	}

	cheer := a.Cheerword
	if cheer == "" && m.deps.Cheer != nil {
		cheer = m.deps.Cheer.Generate(ctx, a.Theme, a.Message)
	}
	if cheer != "" {
		m.speakBlocking(ctx, cheer, tts.ScenarioAlarm)
	}
	m.startListening(nil, true)
}

// formatClock renders an alarm time for speech.
func (m *Machine) formatClock(t time.Time) string {
	now := time.Now()
	hm := t.Format("15:04")
	switch {
	case t.Year() == now.Year() && t.YearDay() == now.YearDay():
		return hm
	case t.Year() == now.Year() && t.YearDay() == now.YearDay()+1:
		return "明天" + hm
	default:
		return t.Format("1月2日") + hm
	}
}
