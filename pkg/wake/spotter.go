package wake

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/weny945/home-pi/pkg/audio"
)

// Transcriber is the narrow speech-to-text dependency of the Spotter.
type Transcriber interface {
	TranscribePCM(ctx context.Context, samples []int16) (string, error)
}

// SpotterConfig tunes the transcription-based keyword spotter.
type SpotterConfig struct {
	// Keywords are the accepted wake phrases.
	Keywords []string

	// Sensitivity is the minimum match score in [0, 1] for a detection.
	Sensitivity float64

	// EnergyThreshold gates which frames count toward a speech burst.
	EnergyThreshold float64

	// Window is how much trailing audio is kept for decoding.
	Window time.Duration

	// MinBurst is how much near-contiguous speech must accumulate before a
	// decode is attempted.
	MinBurst time.Duration

	// DecodeTimeout bounds a single transcription.
	DecodeTimeout time.Duration
}

func (c SpotterConfig) withDefaults() SpotterConfig {
	if len(c.Keywords) == 0 {
		c.Keywords = []string{"hey assistant"}
	}
	if c.Sensitivity <= 0 {
		c.Sensitivity = 0.82
	}
	if c.EnergyThreshold <= 0 {
		c.EnergyThreshold = 0.04
	}
	if c.Window <= 0 {
		c.Window = 2 * time.Second
	}
	if c.MinBurst <= 0 {
		c.MinBurst = 400 * time.Millisecond
	}
	if c.DecodeTimeout <= 0 {
		c.DecodeTimeout = 2 * time.Second
	}
	return c
}

// Spotter is a Detector built on the speech recognizer: it keeps a rolling
// window of recent audio and, when a short speech burst ends, transcribes
// the window and scores the text against the configured keywords with
// Double Metaphone overlap plus Jaro-Winkler similarity.
//
// The spotter is the open-source backend; a vendor SDK detector plugs in
// behind the same Detector interface.
type Spotter struct {
	cfg    SpotterConfig
	stt    Transcriber
	logger *slog.Logger

	window      []int16
	windowMax   int
	burstFrames int
	burstNeed   int
}

var _ Detector = (*Spotter)(nil)

// NewSpotter creates a Spotter decoding through stt.
func NewSpotter(stt Transcriber, cfg SpotterConfig, logger *slog.Logger) *Spotter {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Spotter{
		cfg:       cfg,
		stt:       stt,
		logger:    logger,
		windowMax: int(cfg.Window * audio.SampleRate / time.Second),
		burstNeed: int(cfg.MinBurst / audio.FramePeriod),
	}
}

// ProcessFrame appends the frame to the rolling window and runs a decode
// when an accumulated speech burst falls back to silence. Decoding blocks
// for up to DecodeTimeout; the capture loop tolerates this because wake
// scanning only runs in the idle state.
func (s *Spotter) ProcessFrame(f audio.Frame) (*Event, error) {
	if f.Err != nil {
		return nil, nil
	}

	s.window = append(s.window, f.Samples...)
	if len(s.window) > s.windowMax {
		s.window = s.window[len(s.window)-s.windowMax:]
	}

	if audio.FrameRMS(f) > s.cfg.EnergyThreshold {
		s.burstFrames++
		return nil, nil
	}

	if s.burstFrames < s.burstNeed {
		s.burstFrames = 0
		return nil, nil
	}
	s.burstFrames = 0

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.DecodeTimeout)
	defer cancel()
	text, err := s.stt.TranscribePCM(ctx, s.window)
	s.window = s.window[:0]
	if err != nil {
		return nil, err
	}

	keyword, score := s.bestMatch(text)
	if score < s.cfg.Sensitivity {
		return nil, nil
	}
	return &Event{Keyword: keyword, Confidence: score, Time: f.Time}, nil
}

// bestMatch scores text against every keyword and returns the best pair.
// The Jaro-Winkler score doubles as the detection confidence.
func (s *Spotter) bestMatch(text string) (string, float64) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", 0
	}
	tokens := strings.Fields(text)

	var bestKeyword string
	var bestScore float64
	for _, kw := range s.cfg.Keywords {
		kwLower := strings.ToLower(kw)
		score := matchr.JaroWinkler(text, kwLower, false)
		if c := strings.Join(tokens, ""); len(tokens) > 1 {
			if v := matchr.JaroWinkler(c, strings.ReplaceAll(kwLower, " ", ""), false); v > score {
				score = v
			}
		}
		if phoneticOverlap(tokens, strings.Fields(kwLower)) {
			// A phonetic hit on a noisy transcript still counts; nudge the
			// similarity so near-misses like "hey a system" can clear the bar.
			score += 0.05
			if score > 1 {
				score = 1
			}
		}
		if score > bestScore {
			bestKeyword, bestScore = kw, score
		}
	}
	return bestKeyword, bestScore
}

func phoneticOverlap(a, b []string) bool {
	codes := make(map[string]struct{}, len(a)*2)
	for _, t := range a {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	for _, t := range b {
		p, s := matchr.DoubleMetaphone(t)
		if _, ok := codes[p]; ok && p != "" {
			return true
		}
		if _, ok := codes[s]; ok && s != "" {
			return true
		}
	}
	return false
}

// Close implements Detector. The spotter holds no resources of its own.
func (s *Spotter) Close() error { return nil }
