package conversation

import "github.com/weny945/home-pi/internal/listen"

// Phrases are the fixed spoken lines. They are all warmed into the phrase
// cache at startup so the common paths never wait on synthesis. Verb
// phrases with a %s take one argument.
type Phrases struct {
	// WakeAck lines rotate per detection.
	WakeAck []string

	// Retry maps a rejection kind to its re-prompts, one per attempt. The
	// wording escalates so the user hears that the assistant is still stuck;
	// the last variant repeats if the retry budget is larger.
	Retry map[listen.RejectKind][]string

	Farewell string
	Trouble  string

	AlarmSet       string // %s: fire time
	AlarmCancelled string
	AlarmNone      string
	AlarmUpcoming  string // %s: next fire time, %d: count
	AlarmSnoozed   string // %s: new fire time
	AlarmNotRung   string

	AlarmStopped string

	MusicPlaying string // %s: track title
	MusicStopped string
	MusicPaused  string
	MusicResumed string
	MusicMissing string
	VolumeUp     string
	VolumeDown   string

	SwitchedOn  string // %s: device
	SwitchedOff string // %s: device
}

// DefaultPhrases returns the stock Chinese phrase set.
func DefaultPhrases() Phrases {
	return Phrases{
		WakeAck: []string{"我在", "请讲", "怎么了"},
		Retry: map[listen.RejectKind][]string{
			listen.RejectSilence:  {"我没有听到声音，请再说一次", "还在吗？请大声说一次"},
			listen.RejectFragment: {"声音有点小，可以大声一点吗", "还是有点小声，再近一点说吧"},
			listen.RejectGarbage:  {"我没听清楚，请再说一遍", "抱歉还是没听清，请慢一点再说"},
			listen.RejectSemantic: {"没听明白，能换个说法吗", "还是没明白，请换种说法试试"},
		},
		Farewell: "好的，下次再聊",
		Trouble:  "出了点问题，请稍后再试",

		AlarmSet:       "好的，闹钟定在%s",
		AlarmCancelled: "闹钟已取消",
		AlarmNone:      "现在没有设置闹钟",
		AlarmUpcoming:  "下一个闹钟在%s，一共%d个",
		AlarmSnoozed:   "好，%s再叫你",
		AlarmNotRung:   "刚才没有闹钟响过",

		AlarmStopped: "好的，闹钟停了",

		MusicPlaying: "正在播放%s",
		MusicStopped: "音乐停了",
		MusicPaused:  "音乐先暂停了",
		MusicResumed: "继续放歌",
		MusicMissing: "没有找到这首歌",
		VolumeUp:     "音量调大了",
		VolumeDown:   "音量调小了",

		SwitchedOn:  "%s已打开",
		SwitchedOff: "%s已关闭",
	}
}

// withDefaults fills any zero field from the stock set.
func (p Phrases) withDefaults() Phrases {
	def := DefaultPhrases()
	if len(p.WakeAck) == 0 {
		p.WakeAck = def.WakeAck
	}
	if p.Retry == nil {
		p.Retry = def.Retry
	}
	fill := func(dst *string, def string) {
		if *dst == "" {
			*dst = def
		}
	}
	fill(&p.Farewell, def.Farewell)
	fill(&p.Trouble, def.Trouble)
	fill(&p.AlarmSet, def.AlarmSet)
	fill(&p.AlarmCancelled, def.AlarmCancelled)
	fill(&p.AlarmNone, def.AlarmNone)
	fill(&p.AlarmUpcoming, def.AlarmUpcoming)
	fill(&p.AlarmSnoozed, def.AlarmSnoozed)
	fill(&p.AlarmNotRung, def.AlarmNotRung)
	fill(&p.AlarmStopped, def.AlarmStopped)
	fill(&p.MusicPlaying, def.MusicPlaying)
	fill(&p.MusicStopped, def.MusicStopped)
	fill(&p.MusicPaused, def.MusicPaused)
	fill(&p.MusicResumed, def.MusicResumed)
	fill(&p.MusicMissing, def.MusicMissing)
	fill(&p.VolumeUp, def.VolumeUp)
	fill(&p.VolumeDown, def.VolumeDown)
	fill(&p.SwitchedOn, def.SwitchedOn)
	fill(&p.SwitchedOff, def.SwitchedOff)
	return p
}

// WarmupSet returns every fixed line for pre-synthesis, retry prompts and
// acknowledgements included.
func (p Phrases) WarmupSet() []string {
	out := make([]string, 0, len(p.WakeAck)+2*len(p.Retry)+4)
	out = append(out, p.WakeAck...)
	for _, lines := range p.Retry {
		out = append(out, lines...)
	}
	out = append(out, p.Farewell, p.Trouble, p.AlarmCancelled, p.AlarmNone)
	return out
}
