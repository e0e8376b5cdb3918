package listen

import (
	"strings"
	"unicode"
)

// RejectKind names the quality gate that rejected a capture. The retry
// policy keys its prompt and attempt budget off this kind.
type RejectKind int

const (
	// RejectSilence: too little speech in the capture window.
	RejectSilence RejectKind = iota + 1

	// RejectFragment: average energy below the fragment floor.
	RejectFragment

	// RejectGarbage: recognition produced no usable text.
	RejectGarbage

	// RejectSemantic: text recognized but implausible as a request.
	RejectSemantic
)

func (k RejectKind) String() string {
	switch k {
	case RejectSilence:
		return "silence"
	case RejectFragment:
		return "fragment"
	case RejectGarbage:
		return "garbage"
	case RejectSemantic:
		return "semantic"
	default:
		return "none"
	}
}

// ParseRejectKind maps a configuration name back to its kind.
func ParseRejectKind(name string) (RejectKind, bool) {
	switch name {
	case "silence":
		return RejectSilence, true
	case "fragment":
		return RejectFragment, true
	case "garbage":
		return RejectGarbage, true
	case "semantic":
		return RejectSemantic, true
	}
	return 0, false
}

// fillerWords are transcripts with no request content. Covers the hesitation
// noises both recognizers produce for breath and hum.
var fillerWords = map[string]struct{}{
	"uh": {}, "um": {}, "hmm": {}, "hm": {}, "mm": {}, "ah": {}, "oh": {},
	"eh": {}, "er": {}, "uhh": {}, "umm": {}, "mhm": {},
	"嗯": {}, "啊": {}, "呃": {}, "哦": {}, "唉": {},
}

// TranscriptGateConfig tunes the text-level gates applied after recognition.
type TranscriptGateConfig struct {
	// MinConfidence is the recognizer confidence floor; transcripts scored
	// below it are garbage. Zero disables the confidence check.
	MinConfidence float64

	// MinRunes is the minimum plausible transcript length.
	MinRunes int
}

func (c TranscriptGateConfig) withDefaults() TranscriptGateConfig {
	if c.MinRunes <= 0 {
		c.MinRunes = 2
	}
	return c
}

// CheckTranscript applies the garbage and semantic gates to recognized text.
// It returns the failing kind, or zero when the transcript passes.
func CheckTranscript(text string, confidence float64, cfg TranscriptGateConfig) RejectKind {
	cfg = cfg.withDefaults()

	if cfg.MinConfidence > 0 && confidence < cfg.MinConfidence {
		return RejectGarbage
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || onlyPunct(trimmed) {
		return RejectGarbage
	}

	if len([]rune(stripPunct(trimmed))) < cfg.MinRunes {
		return RejectSemantic
	}
	if onlyFiller(trimmed) {
		return RejectSemantic
	}
	return 0
}

func onlyPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func stripPunct(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// onlyFiller reports whether every token, punctuation stripped, is a known
// hesitation word.
func onlyFiller(s string) bool {
	tokens := strings.Fields(strings.ToLower(s))
	if len(tokens) == 0 {
		return true
	}
	for _, t := range tokens {
		t = stripPunct(t)
		if t == "" {
			continue
		}
		if _, ok := fillerWords[t]; !ok {
			return false
		}
	}
	return true
}
