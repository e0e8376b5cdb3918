package intent

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// ClockParser is the built-in [TimeParser]: relative offsets ("in 20
// minutes", "3分钟后") and clock times ("at 7:30", "at 8 pm", "明天8点半").
// Full-width digits and punctuation, which Chinese recognizers emit
// freely, are folded to their ASCII forms before matching.
// Clock times without a day resolve to the next future occurrence.
//
// Anything it cannot parse is reported as not found rather than guessed;
// the router then lets the language model ask for clarification.
type ClockParser struct{}

var _ TimeParser = ClockParser{}

var (
	relEnRe = regexp.MustCompile(`in (\d+|an?|half an) (minutes?|mins?|hours?)`)
	relZhRe = regexp.MustCompile(`([\d一二两三四五六七八九十]+)(分钟|个小时|小时)[后後]`)
	clkEnRe = regexp.MustCompile(`(?:at|for) (\d{1,2})(?::(\d{2}))?\s*(am|pm|o'clock)?`)
	clkZhRe = regexp.MustCompile(`(明天)?(早上|上午|中午|下午|晚上)?([\d一二两三四五六七八九十]+)点(半|[\d一二三四五六七八九十]+分)?`)
)

var zhDigits = map[rune]int{
	'一': 1, '二': 2, '两': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// Parse implements [TimeParser].
func (ClockParser) Parse(text string, now time.Time) (time.Time, bool) {
	text = strings.ToLower(width.Narrow.String(text))

	if m := relEnRe.FindStringSubmatch(text); m != nil {
		var n float64
		switch m[1] {
		case "a", "an":
			n = 1
		case "half an":
			n = 0.5
		default:
			v, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, false
			}
			n = float64(v)
		}
		unit := time.Minute
		if strings.HasPrefix(m[2], "hour") {
			unit = time.Hour
		}
		return now.Add(time.Duration(n * float64(unit))), true
	}

	if m := relZhRe.FindStringSubmatch(text); m != nil {
		n, ok := zhNumber(m[1])
		if !ok {
			return time.Time{}, false
		}
		unit := time.Minute
		if strings.Contains(m[2], "小时") {
			unit = time.Hour
		}
		return now.Add(time.Duration(n) * unit), true
	}

	if m := clkZhRe.FindStringSubmatch(text); m != nil {
		hour, ok := zhNumber(m[3])
		if !ok || hour > 23 {
			return time.Time{}, false
		}
		minute := 0
		switch {
		case m[4] == "半":
			minute = 30
		case strings.HasSuffix(m[4], "分"):
			minute, ok = zhNumber(strings.TrimSuffix(m[4], "分"))
			if !ok || minute > 59 {
				return time.Time{}, false
			}
		}
		switch m[2] {
		case "下午", "晚上":
			if hour < 12 {
				hour += 12
			}
		case "中午":
			if hour < 11 {
				hour += 12
			}
		}
		return resolveClock(now, hour, minute, m[1] == "明天"), true
	}

	if m := clkEnRe.FindStringSubmatch(text); m != nil {
		hour, err := strconv.Atoi(m[1])
		if err != nil || hour > 23 {
			return time.Time{}, false
		}
		minute := 0
		if m[2] != "" {
			minute, err = strconv.Atoi(m[2])
			if err != nil || minute > 59 {
				return time.Time{}, false
			}
		}
		switch m[3] {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		tomorrow := strings.Contains(text, "tomorrow")
		return resolveClock(now, hour, minute, tomorrow), true
	}

	return time.Time{}, false
}

// resolveClock maps a wall-clock time onto a date: tomorrow when asked,
// otherwise today if still in the future, else the next day.
func resolveClock(now time.Time, hour, minute int, tomorrow bool) time.Time {
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if tomorrow {
		return t.AddDate(0, 0, 1)
	}
	if !t.After(now) {
		return t.AddDate(0, 0, 1)
	}
	return t
}

// zhNumber parses ASCII digits or simple Chinese numerals up to 99.
func zhNumber(s string) (int, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	runes := []rune(s)
	switch {
	case len(runes) == 1:
		if runes[0] == '十' {
			return 10, true
		}
		if d, ok := zhDigits[runes[0]]; ok {
			return d, true
		}
	case len(runes) == 2 && runes[0] == '十': // 十X
		if d, ok := zhDigits[runes[1]]; ok {
			return 10 + d, true
		}
	case len(runes) == 2 && runes[1] == '十': // X十
		if d, ok := zhDigits[runes[0]]; ok {
			return d * 10, true
		}
	case len(runes) == 3 && runes[1] == '十': // X十Y
		tens, okT := zhDigits[runes[0]]
		ones, okO := zhDigits[runes[2]]
		if okT && okO {
			return tens*10 + ones, true
		}
	}
	return 0, false
}
