// Package config provides the configuration schema and loader for the
// assistant.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration wraps time.Duration for YAML fields written as "1500ms" or "2s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return err
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler so `config --show` prints "1.5s"
// instead of nanosecond integers.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure. It is typically loaded from a
// YAML file using [Load] or [LoadFromReader].
type Config struct {
	LogLevel   LogLevel `yaml:"log_level"`
	StatusAddr string   `yaml:"status_addr"`
	DataDir    string   `yaml:"data_dir"`

	AudioQuality AudioQualityConfig `yaml:"audio_quality"`
	Listening    ListeningConfig    `yaml:"listening"`
	Wake         WakeConfig         `yaml:"wake"`
	STT          STTConfig          `yaml:"stt"`
	LLM          LLMConfig          `yaml:"llm"`
	TTS          TTSConfig          `yaml:"tts"`
	Conversation ConversationConfig `yaml:"conversation"`
	Alarm        AlarmConfig        `yaml:"alarm"`
	Music        MusicConfig        `yaml:"music"`
	Health       HealthConfig       `yaml:"health"`
}

// AudioQualityConfig tunes the energy gates and the adaptive threshold.
type AudioQualityConfig struct {
	// MinEnergy is the average-energy floor below which a captured
	// utterance is discarded as a fragment.
	MinEnergy float64 `yaml:"min_energy"`

	// Gain is the capture-side amplification factor.
	Gain float64 `yaml:"gain"`

	VAD VADConfig `yaml:"vad"`
}

// VADConfig tunes the adaptive voice-activity detector.
type VADConfig struct {
	BaseThreshold    float64  `yaml:"base_threshold"`
	AdaptationFactor float64  `yaml:"adaptation_factor"`
	MinThreshold     float64  `yaml:"min_threshold"`
	MaxThreshold     float64  `yaml:"max_threshold"`
	WindowFrames     int      `yaml:"window_frames"`
	ResetInterval    Duration `yaml:"reset_interval"`

	// Model enables a model-backed second opinion ("none" or "silero").
	Model string `yaml:"model"`

	// ModelPath locates the model file when Model is set.
	ModelPath string `yaml:"model_path"`
}

// ListeningConfig tunes utterance capture.
type ListeningConfig struct {
	MinSpeech    Duration `yaml:"min_speech"`
	Silence      Duration `yaml:"silence"`
	SmartSilence Duration `yaml:"smart_silence"`
	MaxDuration  Duration `yaml:"max_duration"`

	// MinConfidence rejects transcripts below this score; 0 disables.
	MinConfidence float64 `yaml:"min_confidence"`
}

// WakeConfig tunes wake-word detection.
type WakeConfig struct {
	Keywords    []string `yaml:"keywords"`
	Sensitivity float64  `yaml:"sensitivity"`
	Cooldown    Duration `yaml:"cooldown"`

	// HardwareAEC switches the gate from pausing during speech to
	// rate-limited detection, for boards with echo-cancelling mics.
	HardwareAEC bool `yaml:"hardware_aec"`
}

// STTConfig selects the recognition tiers.
type STTConfig struct {
	// ModelPath is the local whisper model file. Empty disables the local
	// tier.
	ModelPath string `yaml:"model_path"`
	Language  string `yaml:"language"`
	Threads   int    `yaml:"threads"`

	// RemoteURL is a whisper-server base URL. Empty disables the remote
	// tier.
	RemoteURL string   `yaml:"remote_url"`
	Timeout   Duration `yaml:"timeout"`
}

// LLMConfig configures the chat backend.
type LLMConfig struct {
	APIKey       string   `yaml:"api_key"`
	BaseURL      string   `yaml:"base_url"`
	Model        string   `yaml:"model"`
	SystemPrompt string   `yaml:"system_prompt"`
	Temperature  float64  `yaml:"temperature"`
	MaxTokens    int      `yaml:"max_tokens"`
	HistoryTurns int      `yaml:"history_turns"`
	Timeout      Duration `yaml:"timeout"`
}

// TTSEngineConfig is one synthesis backend entry.
type TTSEngineConfig struct {
	// Enabled turns the tier on.
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	Voice   string `yaml:"voice"`

	// Binary and ModelPath apply to the local piper tier only.
	Binary    string `yaml:"binary"`
	ModelPath string `yaml:"model_path"`
}

// TTSConfig configures synthesis routing and the phrase cache.
type TTSConfig struct {
	CacheDir        string   `yaml:"cache_dir"`
	CacheMaxAgeDays int      `yaml:"cache_max_age_days"`
	StreamThreshold int      `yaml:"stream_threshold"`
	MaxRetries      int      `yaml:"max_retries"`
	RetryDelay      Duration `yaml:"retry_delay"`

	Local     TTSEngineConfig `yaml:"local"`
	Remote    TTSEngineConfig `yaml:"remote"`
	Streaming TTSEngineConfig `yaml:"streaming"`

	// Warmup lists extra phrases to pre-synthesize at startup.
	Warmup []string `yaml:"warmup"`
}

// QuietHours is a daily window during which the assistant will not speak
// unprompted (alarms still fire).
type QuietHours struct {
	// Start and End are wall-clock times "HH:MM". A window may wrap
	// midnight ("22:30" to "07:00").
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// ConversationConfig tunes the dialogue loop.
type ConversationConfig struct {
	AutoFarewell Duration `yaml:"auto_farewell"`
	Settle       Duration `yaml:"settle"`

	// MaxRetries bounds re-prompts per conversation. Zero disables retries.
	MaxRetries int        `yaml:"max_retries"`
	QuietHours QuietHours `yaml:"quiet_hours"`

	// RetryPrompts overrides the spoken re-prompts per rejection kind
	// (silence, fragment, garbage, semantic), one entry per attempt; the
	// last repeats when max_retries allows more.
	RetryPrompts map[string][]string `yaml:"retry_prompts"`

	// Farewell overrides the spoken goodbye.
	Farewell string `yaml:"farewell"`
}

// AlarmConfig configures the alarm store and scheduler.
type AlarmConfig struct {
	DBPath string   `yaml:"db_path"`
	Snooze Duration `yaml:"snooze"`
}

// MusicConfig configures the music library and player.
type MusicConfig struct {
	Dir        string  `yaml:"dir"`
	Volume     float64 `yaml:"volume"`
	DuckVolume float64 `yaml:"duck_volume"`
}

// HealthConfig tunes remote backend probing.
type HealthConfig struct {
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

// Default returns the configuration used when a field is absent from the
// file. Model and cache paths have no sensible defaults and must come from
// the file; everything else mirrors the component defaults.
func Default() *Config {
	return &Config{
		LogLevel:   LogInfo,
		StatusAddr: ":8090",
		DataDir:    "/var/lib/home-pi",
		AudioQuality: AudioQualityConfig{
			MinEnergy: 0.008,
			Gain:      1.0,
			VAD: VADConfig{
				BaseThreshold:    0.04,
				AdaptationFactor: 1.5,
				MinThreshold:     0.02,
				MaxThreshold:     0.3,
				WindowFrames:     50,
				ResetInterval:    Duration(5 * time.Minute),
				Model:            "none",
			},
		},
		Listening: ListeningConfig{
			MinSpeech:    Duration(300 * time.Millisecond),
			Silence:      Duration(1500 * time.Millisecond),
			SmartSilence: Duration(2 * time.Second),
			MaxDuration:  Duration(10 * time.Second),
		},
		Wake: WakeConfig{
			Keywords:    []string{"hey assistant"},
			Sensitivity: 0.82,
			Cooldown:    Duration(1500 * time.Millisecond),
		},
		STT: STTConfig{
			Language: "zh",
			Threads:  4,
			Timeout:  Duration(5 * time.Second),
		},
		LLM: LLMConfig{
			Temperature:  0.7,
			MaxTokens:    512,
			HistoryTurns: 10,
			Timeout:      Duration(10 * time.Second),
		},
		TTS: TTSConfig{
			CacheMaxAgeDays: 30,
			StreamThreshold: 100,
			MaxRetries:      2,
			RetryDelay:      Duration(500 * time.Millisecond),
			Local:           TTSEngineConfig{Enabled: true},
		},
		Conversation: ConversationConfig{
			AutoFarewell: Duration(8 * time.Second),
			Settle:       Duration(300 * time.Millisecond),
			MaxRetries:   1,
		},
		Alarm: AlarmConfig{
			Snooze: Duration(9 * time.Minute),
		},
		Music: MusicConfig{
			Volume:     0.7,
			DuckVolume: 0.2,
		},
		Health: HealthConfig{
			Interval: Duration(time.Hour),
			Timeout:  Duration(10 * time.Second),
		},
	}
}
