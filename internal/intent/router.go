// Package intent classifies a transcript into a command family before any
// language-model round trip. Keyword rules run in a fixed order and the
// first match wins; anything unmatched is handed to the model as free-form
// conversation.
package intent

import (
	"log/slog"
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

// Kind is the command family of an utterance.
type Kind int

const (
	// Llm is free-form conversation for the language model.
	Llm Kind = iota

	AlarmSet
	AlarmCancel
	AlarmList
	AlarmSnooze
	AlarmStop

	MusicPlay
	MusicStop
	MusicPause
	MusicResume
	MusicVolumeUp
	MusicVolumeDown

	SwitchOn
	SwitchOff

	// Continuation asks for more of the previous answer.
	Continuation
)

func (k Kind) String() string {
	switch k {
	case Llm:
		return "llm"
	case AlarmSet:
		return "alarm_set"
	case AlarmCancel:
		return "alarm_cancel"
	case AlarmList:
		return "alarm_list"
	case AlarmSnooze:
		return "alarm_snooze"
	case AlarmStop:
		return "alarm_stop"
	case MusicPlay:
		return "music_play"
	case MusicStop:
		return "music_stop"
	case MusicPause:
		return "music_pause"
	case MusicResume:
		return "music_resume"
	case MusicVolumeUp:
		return "music_volume_up"
	case MusicVolumeDown:
		return "music_volume_down"
	case SwitchOn:
		return "switch_on"
	case SwitchOff:
		return "switch_off"
	case Continuation:
		return "continuation"
	default:
		return "unknown"
	}
}

// Intent is the routing decision for one utterance.
type Intent struct {
	Kind Kind

	// Text is the original transcript.
	Text string

	// When is the parsed alarm time; valid only for AlarmSet.
	When time.Time

	// Arg carries the extracted object, such as a song name or device.
	Arg string
}

// TimeParser extracts an absolute timestamp from a transcript. Parsers
// return ok=false when no time expression is found; the router then routes
// the utterance to the model instead of guessing.
type TimeParser interface {
	Parse(text string, now time.Time) (time.Time, bool)
}

// rule binds a command family to its trigger keywords. Keywords are matched
// as substrings of the lowercased transcript, with a fuzzy pass for short
// English triggers so minor recognition errors still match.
type rule struct {
	kind     Kind
	keywords []string
}

// The order is deliberate: stopping the ringing alarm before the generic
// switch-off family, cancellation before creation so "cancel the alarm"
// never parses as setting one, resume before the bare continuation words,
// and continuation last among the specific families.
var rules = []rule{
	{AlarmStop, []string{"stop the alarm", "turn off the alarm", "alarm off", "关闭闹钟", "关掉闹钟", "停止闹钟", "别响了"}},
	{AlarmCancel, []string{"cancel the alarm", "cancel alarm", "delete the alarm", "remove the alarm", "取消闹钟", "删除闹钟"}},
	{AlarmSnooze, []string{"snooze", "five more minutes", "再睡一会", "稍后提醒"}},
	{AlarmList, []string{"what alarms", "list alarms", "my alarms", "查看闹钟", "有什么闹钟"}},
	{AlarmSet, []string{"set an alarm", "set alarm", "wake me", "remind me", "设置闹钟", "定个闹钟", "提醒我", "叫我起床"}},
	{MusicStop, []string{"stop the music", "stop music", "stop playing", "停止播放", "别放了"}},
	{MusicPause, []string{"pause the music", "pause music", "pause the song", "暂停音乐", "暂停播放", "先暂停"}},
	{MusicResume, []string{"resume the music", "resume music", "keep playing", "继续播放", "接着放"}},
	{MusicVolumeUp, []string{"turn it up", "volume up", "louder", "大声一点", "声音大点"}},
	{MusicVolumeDown, []string{"turn it down", "volume down", "quieter", "小声一点", "声音小点"}},
	{MusicPlay, []string{"play some music", "play music", "play a song", "put on", "播放音乐", "放首歌", "来点音乐"}},
	{SwitchOff, []string{"turn off the", "switch off", "关闭", "关掉", "关灯"}},
	{SwitchOn, []string{"turn on the", "switch on", "打开", "开灯"}},
	{Continuation, []string{"tell me more", "go on", "continue", "what else", "and then", "继续", "然后呢", "还有呢"}},
}

// fuzzyThreshold is the Jaro-Winkler score at which a transcript token
// counts as a keyword token.
const fuzzyThreshold = 0.92

// Router classifies transcripts. Safe for concurrent use.
type Router struct {
	times  TimeParser
	logger *slog.Logger
}

// NewRouter builds a router. times may be nil, which disables time
// extraction and routes every would-be AlarmSet without a parsable time to
// the model.
func NewRouter(times TimeParser, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{times: times, logger: logger}
}

// Route classifies one transcript. now anchors relative time expressions.
func (r *Router) Route(text string, now time.Time) Intent {
	lowered := strings.ToLower(strings.TrimSpace(text))
	if lowered == "" {
		return Intent{Kind: Llm, Text: text}
	}

	for _, ru := range rules {
		if !matchesRule(lowered, ru) {
			continue
		}
		in := Intent{Kind: ru.kind, Text: text}
		switch ru.kind {
		case AlarmSet:
			if r.times == nil {
				return Intent{Kind: Llm, Text: text}
			}
			when, ok := r.times.Parse(lowered, now)
			if !ok {
				// A set request without a parsable time goes to the model,
				// which can ask the user to clarify.
				r.logger.Debug("alarm request without parsable time", "text", text)
				return Intent{Kind: Llm, Text: text}
			}
			in.When = when
		case MusicPlay:
			in.Arg = extractAfter(lowered, []string{"play", "put on", "播放", "放"})
		case SwitchOn, SwitchOff:
			in.Arg = extractAfter(lowered, []string{"turn on the", "turn off the", "switch on", "switch off", "打开", "关闭", "关掉"})
		}
		r.logger.Debug("intent matched", "kind", in.Kind.String(), "text", text)
		return in
	}
	return Intent{Kind: Llm, Text: text}
}

// matchesRule checks substring containment first, then a fuzzy token pass
// for multi-word English keywords.
func matchesRule(lowered string, ru rule) bool {
	for _, kw := range ru.keywords {
		if strings.Contains(lowered, kw) {
			return true
		}
	}
	tokens := strings.Fields(lowered)
	if len(tokens) == 0 {
		return false
	}
	for _, kw := range ru.keywords {
		kwTokens := strings.Fields(kw)
		if len(kwTokens) < 2 {
			continue
		}
		if fuzzyContains(tokens, kwTokens) {
			return true
		}
	}
	return false
}

// fuzzyContains reports whether kwTokens appear contiguously in tokens,
// where each pair either matches exactly or scores above fuzzyThreshold.
func fuzzyContains(tokens, kwTokens []string) bool {
	if len(kwTokens) > len(tokens) {
		return false
	}
	for start := 0; start+len(kwTokens) <= len(tokens); start++ {
		all := true
		for i, kw := range kwTokens {
			if !tokenMatch(tokens[start+i], kw) {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

func tokenMatch(tok, kw string) bool {
	if tok == kw {
		return true
	}
	// Fuzzy matching only pays off for words long enough to mis-transcribe.
	if len(kw) < 4 || len(tok) < 3 {
		return false
	}
	return matchr.JaroWinkler(tok, kw, true) >= fuzzyThreshold
}

// extractAfter returns the text following the first matching marker, used
// as the intent argument ("play jazz" -> "jazz").
func extractAfter(lowered string, markers []string) string {
	for _, m := range markers {
		idx := strings.Index(lowered, m)
		if idx < 0 {
			continue
		}
		rest := strings.TrimSpace(lowered[idx+len(m):])
		rest = strings.TrimPrefix(rest, "some ")
		rest = strings.TrimSuffix(rest, " please")
		if rest != "" {
			return strings.TrimSpace(rest)
		}
	}
	return ""
}
