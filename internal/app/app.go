// Package app wires the assistant's subsystems into a running process.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems in dependency order, Run executes them under one errgroup, and
// Shutdown tears everything down.
//
// For testing, inject mock implementations via functional options
// (WithSource, WithRecognizer, WithEngines, etc.). When an option is not
// provided, New creates real implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/weny945/home-pi/internal/alarm"
	"github.com/weny945/home-pi/internal/config"
	"github.com/weny945/home-pi/internal/conversation"
	"github.com/weny945/home-pi/internal/health"
	"github.com/weny945/home-pi/internal/intent"
	"github.com/weny945/home-pi/internal/listen"
	"github.com/weny945/home-pi/internal/music"
	"github.com/weny945/home-pi/internal/observe"
	"github.com/weny945/home-pi/internal/switchctl"
	speech "github.com/weny945/home-pi/internal/tts"
	"github.com/weny945/home-pi/pkg/audio/capture"
	"github.com/weny945/home-pi/pkg/audio/playback"
	"github.com/weny945/home-pi/pkg/provider/llm"
	"github.com/weny945/home-pi/pkg/provider/llm/openai"
	"github.com/weny945/home-pi/pkg/provider/stt"
	"github.com/weny945/home-pi/pkg/provider/stt/whisper"
	"github.com/weny945/home-pi/pkg/provider/tts"
	"github.com/weny945/home-pi/pkg/provider/tts/piper"
	"github.com/weny945/home-pi/pkg/provider/tts/realtime"
	"github.com/weny945/home-pi/pkg/provider/tts/remote"
	modelvad "github.com/weny945/home-pi/pkg/provider/vad"
	"github.com/weny945/home-pi/pkg/vad"
	"github.com/weny945/home-pi/pkg/wake"
)

// Health target names. The monitor keys its per-backend state on these, and
// the dispatcher's recovery hook maps them back to tiers.
const (
	targetSTTRemote    = "stt-remote"
	targetTTSRemote    = "tts-remote"
	targetTTSStreaming = "tts-streaming"
	targetLLM          = "llm"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observe.Metrics

	source     capture.Source
	gate       *wake.Gate
	classifier *vad.Adaptive
	capturer   *listen.Capturer
	recognizer stt.Recognizer
	remoteSTT  stt.Recognizer
	chat       llm.Client
	cache      *speech.Cache
	dispatcher *speech.Dispatcher
	player     *playback.Player
	machine    *conversation.Machine
	alarms     *alarm.Store
	scheduler  *alarm.Scheduler
	monitor    *health.Monitor
	jukebox    *music.Player
	switches   switchctl.Controller
	httpSrv    *http.Server

	// injected test doubles, set by options before wiring runs.
	injSource    capture.Source
	injDetector  wake.Detector
	injLocalSTT  stt.Recognizer
	injRemoteSTT stt.Recognizer
	injLLM       llm.Client
	injLocalTTS  tts.Engine
	injRemoteTTS tts.Engine
	injStreaming tts.StreamingEngine
	injSink      playback.Sink
	injMusicSink playback.Sink
	injVADEngine modelvad.Engine
	logRing      *observe.LogRing

	// closers run in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithSource injects a capture source instead of opening the microphone.
func WithSource(s capture.Source) Option { return func(a *App) { a.injSource = s } }

// WithDetector injects a wake detector instead of the transcription spotter.
func WithDetector(d wake.Detector) Option { return func(a *App) { a.injDetector = d } }

// WithRecognizer injects the local recognition tier.
func WithRecognizer(r stt.Recognizer) Option { return func(a *App) { a.injLocalSTT = r } }

// WithRemoteRecognizer injects the remote recognition tier.
func WithRemoteRecognizer(r stt.Recognizer) Option { return func(a *App) { a.injRemoteSTT = r } }

// WithLLM injects a chat backend instead of building one from config.
func WithLLM(c llm.Client) Option { return func(a *App) { a.injLLM = c } }

// WithEngines injects synthesis backends instead of building them from
// config. Any of the three may be nil.
func WithEngines(local, remoteEng tts.Engine, streaming tts.StreamingEngine) Option {
	return func(a *App) {
		a.injLocalTTS = local
		a.injRemoteTTS = remoteEng
		a.injStreaming = streaming
	}
}

// WithSink injects the speech output sink.
func WithSink(s playback.Sink) Option { return func(a *App) { a.injSink = s } }

// WithMusicSink injects the music output sink.
func WithMusicSink(s playback.Sink) Option { return func(a *App) { a.injMusicSink = s } }

// WithVADEngine injects a model VAD backend for the "silero" setting.
func WithVADEngine(e modelvad.Engine) Option { return func(a *App) { a.injVADEngine = e } }

// WithLogRing serves the given log tail at /logs on the status port.
func WithLogRing(r *observe.LogRing) Option { return func(a *App) { a.logRing = r } }

// New creates an App by wiring all subsystems together in dependency order:
// audio capture, classification, recognition, backends, synthesis, alarms,
// music, health, and finally the conversation machine on top.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{
		cfg:     cfg,
		logger:  slog.Default(),
		metrics: observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(a)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("app: create data dir: %w", err)
	}

	if err := a.initAudio(); err != nil {
		return nil, fmt.Errorf("app: init audio: %w", err)
	}
	if err := a.initRecognition(); err != nil {
		return nil, fmt.Errorf("app: init recognition: %w", err)
	}
	if err := a.initChat(); err != nil {
		return nil, fmt.Errorf("app: init chat: %w", err)
	}
	a.initHealth()
	if err := a.initSynthesis(); err != nil {
		return nil, fmt.Errorf("app: init synthesis: %w", err)
	}
	if err := a.initAlarms(); err != nil {
		return nil, fmt.Errorf("app: init alarms: %w", err)
	}
	if err := a.initMusic(); err != nil {
		return nil, fmt.Errorf("app: init music: %w", err)
	}
	if err := a.initMachine(); err != nil {
		return nil, fmt.Errorf("app: init machine: %w", err)
	}
	a.initStatusServer()

	return a, nil
}

// initAudio opens the microphone, the speaker, and the frame classifier.
func (a *App) initAudio() error {
	a.source = a.injSource
	if a.source == nil {
		src, err := capture.New(capture.Config{InputGain: a.cfg.AudioQuality.Gain}, a.logger)
		if err != nil {
			return fmt.Errorf("open capture device: %w", err)
		}
		a.source = src
	}
	a.closers = append(a.closers, a.source.Close)

	var session modelvad.SessionHandle
	if a.cfg.AudioQuality.VAD.Model == "silero" {
		if a.injVADEngine == nil {
			a.logger.Warn("model vad configured but no engine is compiled in, using energy detection")
		} else {
			sess, err := a.injVADEngine.NewSession(modelvad.Config{
				SampleRate:      16000,
				SpeechThreshold: a.cfg.Wake.Sensitivity,
			})
			if err != nil {
				return fmt.Errorf("open vad session: %w", err)
			}
			session = sess
			a.closers = append(a.closers, sess.Close)
		}
	}

	v := a.cfg.AudioQuality.VAD
	a.classifier = vad.New(vad.Config{
		BaseThreshold:    v.BaseThreshold,
		AdaptationFactor: v.AdaptationFactor,
		MinThreshold:     v.MinThreshold,
		MaxThreshold:     v.MaxThreshold,
		WindowFrames:     v.WindowFrames,
		ResetInterval:    v.ResetInterval.Std(),
	}, session, a.logger)

	a.capturer = listen.New(listen.Config{
		MinSpeech:    a.cfg.Listening.MinSpeech.Std(),
		Silence:      a.cfg.Listening.Silence.Std(),
		SmartSilence: a.cfg.Listening.SmartSilence.Std(),
		MaxDuration:  a.cfg.Listening.MaxDuration.Std(),
		MinEnergy:    a.cfg.AudioQuality.MinEnergy,
	}, a.classifier, a.logger)

	sink := a.injSink
	if sink == nil {
		sink = playback.NewPacedSink()
	}
	a.player = playback.New(sink, a.logger)
	a.closers = append(a.closers, a.player.Close)
	return nil
}

// initRecognition builds the local and remote recognition tiers.
func (a *App) initRecognition() error {
	local := a.injLocalSTT
	if local == nil && a.cfg.STT.ModelPath != "" {
		n, err := whisper.NewNative(a.cfg.STT.ModelPath,
			whisper.WithNativeLanguage(a.cfg.STT.Language),
			whisper.WithNativeThreads(a.cfg.STT.Threads),
		)
		if err != nil {
			return fmt.Errorf("load whisper model: %w", err)
		}
		local = n
	}

	remoteRec := a.injRemoteSTT
	if remoteRec == nil && a.cfg.STT.RemoteURL != "" {
		s, err := whisper.NewServer(a.cfg.STT.RemoteURL,
			whisper.WithServerLanguage(a.cfg.STT.Language),
			whisper.WithServerTimeout(a.cfg.STT.Timeout.Std()),
		)
		if err != nil {
			return fmt.Errorf("configure whisper server: %w", err)
		}
		remoteRec = s
	}

	if local == nil && remoteRec == nil {
		return errors.New("no recognition tier configured")
	}
	if local != nil {
		a.closers = append(a.closers, local.Close)
	}
	if remoteRec != nil {
		a.closers = append(a.closers, remoteRec.Close)
	}
	a.remoteSTT = remoteRec
	a.recognizer = local
	if a.recognizer == nil {
		a.recognizer = remoteRec
	}
	return nil
}

// initChat builds the chat-completion client when a model is configured.
func (a *App) initChat() error {
	a.chat = a.injLLM
	if a.chat != nil || a.cfg.LLM.Model == "" {
		return nil
	}
	if a.cfg.LLM.APIKey == "" {
		// An unset ${VAR} disables the backend instead of failing startup.
		a.logger.Warn("llm api key missing, chat disabled", "model", a.cfg.LLM.Model)
		return nil
	}
	var opts []openai.Option
	if a.cfg.LLM.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(a.cfg.LLM.BaseURL))
	}
	opts = append(opts, openai.WithTimeout(a.cfg.LLM.Timeout.Std()))
	c, err := openai.New(a.cfg.LLM.APIKey, a.cfg.LLM.Model, opts...)
	if err != nil {
		return err
	}
	a.chat = c
	return nil
}

// initHealth builds the backend monitor. Probes are plain GETs against each
// backend's base URL; a reachable endpoint is enough to retry the tier.
func (a *App) initHealth() {
	var targets []health.Target
	if a.cfg.STT.RemoteURL != "" {
		targets = append(targets, health.Target{Name: targetSTTRemote, Check: probeURL(a.cfg.STT.RemoteURL)})
	}
	if a.cfg.TTS.Remote.Enabled && a.cfg.TTS.Remote.BaseURL != "" {
		targets = append(targets, health.Target{Name: targetTTSRemote, Check: probeURL(a.cfg.TTS.Remote.BaseURL)})
	}
	if a.cfg.TTS.Streaming.Enabled && a.cfg.TTS.Streaming.BaseURL != "" {
		targets = append(targets, health.Target{Name: targetTTSStreaming, Check: probeURL(a.cfg.TTS.Streaming.BaseURL)})
	}
	if a.cfg.LLM.BaseURL != "" {
		targets = append(targets, health.Target{Name: targetLLM, Check: probeURL(a.cfg.LLM.BaseURL)})
	}

	a.monitor = health.NewMonitor(health.MonitorConfig{
		Interval: a.cfg.Health.Interval.Std(),
		Timeout:  a.cfg.Health.Timeout.Std(),
	}, targets, a.onBackendRecovered, a.logger)
}

// onBackendRecovered resets the matching synthesis tier breaker so the next
// request prefers the better tier again immediately.
func (a *App) onBackendRecovered(name string) {
	if a.dispatcher == nil {
		return
	}
	switch name {
	case targetTTSRemote:
		a.dispatcher.ResetTier(speech.TierRemote)
	case targetTTSStreaming:
		a.dispatcher.ResetTier(speech.TierStreaming)
	}
}

// probeURL returns a health check that GETs the base URL. Any HTTP response
// counts as reachable; backends answer errors long before they time out.
func probeURL(base string) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		return nil
	}
}

// initSynthesis builds the engine tiers, the phrase cache, and the
// dispatcher.
func (a *App) initSynthesis() error {
	local := a.injLocalTTS
	if local == nil && a.cfg.TTS.Local.Enabled {
		var opts []piper.Option
		if a.cfg.TTS.Local.Binary != "" {
			opts = append(opts, piper.WithBinary(a.cfg.TTS.Local.Binary))
		}
		eng, err := piper.New(a.cfg.TTS.Local.ModelPath, opts...)
		if err != nil {
			return fmt.Errorf("configure piper: %w", err)
		}
		local = eng
	}

	remoteEng := a.injRemoteTTS
	if remoteEng == nil && a.cfg.TTS.Remote.Enabled && a.cfg.TTS.Remote.APIKey == "" {
		a.logger.Warn("remote tts api key missing, tier disabled")
	} else if remoteEng == nil && a.cfg.TTS.Remote.Enabled {
		var opts []remote.Option
		if a.cfg.TTS.Remote.BaseURL != "" {
			opts = append(opts, remote.WithBaseURL(a.cfg.TTS.Remote.BaseURL))
		}
		if a.cfg.TTS.Remote.Model != "" {
			opts = append(opts, remote.WithModel(a.cfg.TTS.Remote.Model))
		}
		if a.cfg.TTS.Remote.Voice != "" {
			opts = append(opts, remote.WithVoice(a.cfg.TTS.Remote.Voice))
		}
		eng, err := remote.New(a.cfg.TTS.Remote.APIKey, opts...)
		if err != nil {
			return fmt.Errorf("configure remote tts: %w", err)
		}
		remoteEng = eng
	}

	streaming := a.injStreaming
	if streaming == nil && a.cfg.TTS.Streaming.Enabled && a.cfg.TTS.Streaming.APIKey == "" {
		a.logger.Warn("streaming tts api key missing, tier disabled")
	} else if streaming == nil && a.cfg.TTS.Streaming.Enabled {
		var opts []realtime.Option
		if a.cfg.TTS.Streaming.BaseURL != "" {
			opts = append(opts, realtime.WithURL(a.cfg.TTS.Streaming.BaseURL))
		}
		if a.cfg.TTS.Streaming.Model != "" {
			opts = append(opts, realtime.WithModel(a.cfg.TTS.Streaming.Model))
		}
		if a.cfg.TTS.Streaming.Voice != "" {
			opts = append(opts, realtime.WithVoice(a.cfg.TTS.Streaming.Voice))
		}
		eng, err := realtime.New(a.cfg.TTS.Streaming.APIKey, a.logger, opts...)
		if err != nil {
			return fmt.Errorf("configure realtime tts: %w", err)
		}
		streaming = eng
	}

	if local == nil {
		return errors.New("the local synthesis tier is required as last resort")
	}

	cacheDir := a.cfg.TTS.CacheDir
	if cacheDir == "" {
		cacheDir = filepath.Join(a.cfg.DataDir, "tts-cache")
	}
	cache, err := speech.OpenCache(cacheDir, a.logger)
	if err != nil {
		return fmt.Errorf("open phrase cache: %w", err)
	}
	a.cache = cache
	a.closers = append(a.closers, cache.Close)
	if n := cache.Evict(a.cfg.TTS.CacheMaxAgeDays); n > 0 {
		a.logger.Info("evicted stale cached phrases", "count", n)
	}

	d, err := speech.NewDispatcher(speech.DispatcherConfig{
		StreamThreshold: a.cfg.TTS.StreamThreshold,
		MaxRetries:      a.cfg.TTS.MaxRetries,
		RetryDelay:      a.cfg.TTS.RetryDelay.Std(),
	}, cache, streaming, remoteEng, local, a.remoteTTSOK, a.logger)
	if err != nil {
		return err
	}
	a.dispatcher = d
	return nil
}

// remoteTTSOK is the dispatcher's skip hook. Each network tier is keyed to
// its own monitor target, so the streaming backend being down never takes
// the batch remote tier out of the chain, or the other way round.
func (a *App) remoteTTSOK(tier string) bool {
	switch tier {
	case speech.TierRemote:
		return a.monitor.Available(targetTTSRemote)
	case speech.TierStreaming:
		return a.monitor.Available(targetTTSStreaming)
	}
	return true
}

// initAlarms opens the store and the scheduler. The scheduler's fire hook
// resolves the machine lazily because the machine is built afterwards.
func (a *App) initAlarms() error {
	path := a.cfg.Alarm.DBPath
	if path == "" {
		path = filepath.Join(a.cfg.DataDir, "alarms.db")
	}
	store, err := alarm.OpenStore(path)
	if err != nil {
		return err
	}
	a.alarms = store
	a.closers = append(a.closers, store.Close)

	a.scheduler = alarm.NewScheduler(alarm.SchedulerConfig{
		SnoozeDuration: a.cfg.Alarm.Snooze.Std(),
	}, store, func(fired alarm.Alarm) {
		if a.machine != nil {
			a.machine.FireAlarm(fired)
		}
	}, a.logger)
	return nil
}

// initMusic scans the library and builds the player on its own sink, so
// speech and music mix at the device instead of fighting over the Player.
func (a *App) initMusic() error {
	if a.cfg.Music.Dir == "" {
		return nil
	}
	lib, err := music.NewLibrary(a.cfg.Music.Dir)
	if err != nil {
		return err
	}
	sink := a.injMusicSink
	if sink == nil {
		sink = playback.NewPacedSink()
	}
	a.jukebox = music.NewPlayer(music.PlayerConfig{
		Volume:     a.cfg.Music.Volume,
		DuckVolume: a.cfg.Music.DuckVolume,
	}, sink, lib, a.logger)
	a.closers = append(a.closers, func() error {
		a.jukebox.Stop()
		return sink.Close()
	})
	return nil
}

// initMachine assembles the conversation loop on top of everything else.
func (a *App) initMachine() error {
	detector := a.injDetector
	if detector == nil {
		detector = wake.NewSpotter(recognizerText{a.recognizer}, wake.SpotterConfig{
			Keywords:        a.cfg.Wake.Keywords,
			Sensitivity:     a.cfg.Wake.Sensitivity,
			EnergyThreshold: a.cfg.AudioQuality.VAD.BaseThreshold,
		}, a.logger)
	}
	a.gate = wake.NewGate(detector, wake.Config{
		Cooldown:    a.cfg.Wake.Cooldown.Std(),
		HardwareAEC: a.cfg.Wake.HardwareAEC,
	}, a.logger)
	a.closers = append(a.closers, a.gate.Close)

	quiet, err := conversation.NewQuietWindow(a.cfg.Conversation.QuietHours.Start, a.cfg.Conversation.QuietHours.End)
	if err != nil {
		return err
	}

	var cheer *alarm.CheerGenerator
	if a.chat != nil {
		cheer = alarm.NewCheerGenerator(a.chat, a.cfg.LLM.Timeout.Std(), a.logger)
	}
	a.switches = switchctl.NewMemory(a.logger)

	phrases := conversation.Phrases{Farewell: a.cfg.Conversation.Farewell}
	if len(a.cfg.Conversation.RetryPrompts) > 0 {
		phrases.Retry = make(map[listen.RejectKind][]string)
		for name, prompts := range a.cfg.Conversation.RetryPrompts {
			if kind, ok := listen.ParseRejectKind(name); ok {
				phrases.Retry[kind] = prompts
			}
		}
	}

	m, err := conversation.New(conversation.Config{
		AutoFarewell: a.cfg.Conversation.AutoFarewell.Std(),
		Settle:       a.cfg.Conversation.Settle.Std(),
		MaxRetries:   a.cfg.Conversation.MaxRetries,
		AllowBargeIn: a.cfg.Wake.HardwareAEC,
		Quiet:        quiet,
		SystemPrompt: a.cfg.LLM.SystemPrompt,
		Temperature:  a.cfg.LLM.Temperature,
		MaxTokens:    a.cfg.LLM.MaxTokens,
		HistoryTurns: a.cfg.LLM.HistoryTurns,
		STTTimeout:   a.cfg.STT.Timeout.Std(),
		LLMTimeout:   a.cfg.LLM.Timeout.Std(),
		Gate:         listen.TranscriptGateConfig{MinConfidence: a.cfg.Listening.MinConfidence},
		Phrases:      phrases,
	}, conversation.Deps{
		Source:   a.source,
		Gate:     a.gate,
		VAD:      a.classifier,
		Capturer: a.capturer,
		STT:      a.transcriber(),
		Router:   intent.NewRouter(intent.ClockParser{}, a.logger),
		Synth:    a.dispatcher,
		Player:   a.player,
		LLM:      a.chat,
		Alarms:   a.alarms,
		Snoozer:  a.scheduler,
		Cheer:    cheer,
		Music:    a.jukebox,
		Switches: a.switches,
		Metrics:  a.metrics,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}
	a.machine = m
	return nil
}

// initStatusServer builds the HTTP status surface: liveness, readiness, and
// the Prometheus scrape endpoint.
func (a *App) initStatusServer() {
	mux := http.NewServeMux()
	health.NewHandler(a.monitor).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	if a.logRing != nil {
		mux.Handle("GET /logs", a.logRing)
	}

	a.httpSrv = &http.Server{
		Addr:              a.cfg.StatusAddr,
		Handler:           observe.Instrument(a.metrics, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts every subsystem and blocks until ctx is cancelled or one of
// them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.machine.Run(ctx) })
	g.Go(func() error { return a.scheduler.Run(ctx) })
	g.Go(func() error { return a.monitor.Run(ctx) })

	g.Go(func() error {
		err := a.httpSrv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	})

	// Pre-synthesize the fixed phrases so the common paths answer from
	// cache even when every network tier is down.
	g.Go(func() error {
		phrases := append(a.machine.Phrases().WarmupSet(), a.cfg.TTS.Warmup...)
		if err := a.dispatcher.Warmup(ctx, phrases); err != nil && ctx.Err() == nil {
			a.logger.Warn("phrase warmup incomplete", "error", err)
		}
		return nil
	})

	a.logger.Info("assistant running", "status_addr", a.cfg.StatusAddr)
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Shutdown releases all subsystem resources in reverse construction order.
// Safe to call more than once.
func (a *App) Shutdown() error {
	var errs []error
	a.stopOnce.Do(func() {
		for i := len(a.closers) - 1; i >= 0; i-- {
			if err := a.closers[i](); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// transcriber picks the recognition tier per call: remote when the monitor
// believes it is reachable, local otherwise. Either tier may be the only
// one configured.
func (a *App) transcriber() conversation.Transcriber {
	return transcriberFunc(func(ctx context.Context, samples []int16) (stt.Result, error) {
		if a.remoteSTT != nil && (a.recognizer == a.remoteSTT || a.monitor.Available(targetSTTRemote)) {
			res, err := a.remoteSTT.Transcribe(ctx, samples)
			if err == nil {
				return res, nil
			}
			if a.recognizer == a.remoteSTT {
				return res, err
			}
			a.monitor.MarkUnavailable(targetSTTRemote)
			a.logger.Warn("remote recognition failed, falling back to local", "error", err)
		}
		return a.recognizer.Transcribe(ctx, samples)
	})
}

type transcriberFunc func(ctx context.Context, samples []int16) (stt.Result, error)

func (f transcriberFunc) Transcribe(ctx context.Context, samples []int16) (stt.Result, error) {
	return f(ctx, samples)
}

// recognizerText adapts a Recognizer to the wake spotter's text-only seam.
type recognizerText struct {
	rec stt.Recognizer
}

func (r recognizerText) TranscribePCM(ctx context.Context, samples []int16) (string, error) {
	res, err := r.rec.Transcribe(ctx, samples)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}
