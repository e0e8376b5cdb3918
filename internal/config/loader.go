package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// envRe matches ${VAR_NAME} placeholders in the raw YAML.
var envRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads the YAML configuration file at path, expands ${VAR}
// placeholders from the environment, and returns a validated [Config]
// merged over [Default].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Useful in tests where configs are constructed from string
// literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	raw = expandEnv(raw)

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandEnv substitutes ${VAR} placeholders. Unset variables expand to the
// empty string; a backend configured with an empty credential starts
// disabled instead of failing the load.
func expandEnv(raw []byte) []byte {
	return envRe.ReplaceAllFunc(raw, func(m []byte) []byte {
		name := envRe.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}

	v := cfg.AudioQuality.VAD
	if v.MinThreshold > v.MaxThreshold {
		errs = append(errs, fmt.Errorf("audio_quality.vad: min_threshold %.3f exceeds max_threshold %.3f", v.MinThreshold, v.MaxThreshold))
	}
	if v.BaseThreshold < v.MinThreshold || v.BaseThreshold > v.MaxThreshold {
		errs = append(errs, fmt.Errorf("audio_quality.vad: base_threshold %.3f outside [%.3f, %.3f]", v.BaseThreshold, v.MinThreshold, v.MaxThreshold))
	}
	if v.AdaptationFactor < 1 {
		errs = append(errs, fmt.Errorf("audio_quality.vad: adaptation_factor %.2f must be >= 1", v.AdaptationFactor))
	}
	if v.Model != "" && v.Model != "none" && v.Model != "silero" {
		errs = append(errs, fmt.Errorf("audio_quality.vad.model %q is invalid; valid values: none, silero", v.Model))
	}
	if v.Model == "silero" && v.ModelPath == "" {
		errs = append(errs, errors.New("audio_quality.vad.model_path is required when model is silero"))
	}

	if cfg.Listening.Silence.Std() > cfg.Listening.MaxDuration.Std() {
		errs = append(errs, errors.New("listening: silence window exceeds max_duration"))
	}
	if cfg.Listening.SmartSilence != 0 && cfg.Listening.SmartSilence.Std() < cfg.Listening.Silence.Std() {
		errs = append(errs, errors.New("listening: smart_silence must not be shorter than silence"))
	}
	if cfg.Listening.MinConfidence < 0 || cfg.Listening.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("listening.min_confidence %.2f outside [0, 1]", cfg.Listening.MinConfidence))
	}

	if len(cfg.Wake.Keywords) == 0 {
		errs = append(errs, errors.New("wake.keywords must list at least one keyword"))
	}
	if cfg.Wake.Sensitivity < 0 || cfg.Wake.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("wake.sensitivity %.2f outside [0, 1]", cfg.Wake.Sensitivity))
	}

	if cfg.STT.ModelPath == "" && cfg.STT.RemoteURL == "" {
		errs = append(errs, errors.New("stt: at least one of model_path or remote_url is required"))
	}

	// A missing api_key is deliberately not a validation error anywhere: the
	// key usually comes from a ${VAR} placeholder, and an unset variable
	// means the backend marks itself unavailable at startup, not a crash.
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f outside [0, 2]", cfg.LLM.Temperature))
	}

	if cfg.TTS.Local.Enabled && cfg.TTS.Local.ModelPath == "" {
		errs = append(errs, errors.New("tts.local.model_path is required when the local tier is enabled"))
	}
	if !cfg.TTS.Local.Enabled && !cfg.TTS.Remote.Enabled && !cfg.TTS.Streaming.Enabled {
		errs = append(errs, errors.New("tts: at least one tier must be enabled"))
	}

	if err := validateQuietHours(cfg.Conversation.QuietHours); err != nil {
		errs = append(errs, err)
	}
	for kind := range cfg.Conversation.RetryPrompts {
		switch kind {
		case "silence", "fragment", "garbage", "semantic":
		default:
			errs = append(errs, fmt.Errorf("conversation.retry_prompts: unknown rejection kind %q", kind))
		}
	}
	if cfg.Conversation.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("conversation.max_retries %d must not be negative", cfg.Conversation.MaxRetries))
	}

	if cfg.Music.Volume < 0 || cfg.Music.Volume > 1 {
		errs = append(errs, fmt.Errorf("music.volume %.2f outside [0, 1]", cfg.Music.Volume))
	}

	return errors.Join(errs...)
}

// validateQuietHours checks both bounds parse as "HH:MM" or are empty
// together.
func validateQuietHours(q QuietHours) error {
	if q.Start == "" && q.End == "" {
		return nil
	}
	if q.Start == "" || q.End == "" {
		return errors.New("conversation.quiet_hours: start and end must both be set")
	}
	for _, s := range []string{q.Start, q.End} {
		if _, err := time.Parse("15:04", s); err != nil {
			return fmt.Errorf("conversation.quiet_hours: invalid time %q (want HH:MM)", s)
		}
	}
	return nil
}
