package conversation

import (
	"fmt"
	"time"
)

// QuietWindow is a daily wall-clock window during which the assistant does
// not speak unprompted. Farewells into an empty room are the main case;
// alarm ringtones and cheer lines are exempt, and answers to a user who
// just spoke are by definition prompted. The zero value never matches.
type QuietWindow struct {
	start, end int // minutes since midnight
	set        bool
}

// NewQuietWindow parses "HH:MM" bounds. Both empty yields an inactive
// window; the window may wrap midnight ("22:30" to "07:00").
func NewQuietWindow(start, end string) (QuietWindow, error) {
	if start == "" && end == "" {
		return QuietWindow{}, nil
	}
	s, err := parseClock(start)
	if err != nil {
		return QuietWindow{}, err
	}
	e, err := parseClock(end)
	if err != nil {
		return QuietWindow{}, err
	}
	return QuietWindow{start: s, end: e, set: true}, nil
}

// Contains reports whether t falls inside the window. The window is
// half-open: the start minute is quiet, the end minute is not.
func (w QuietWindow) Contains(t time.Time) bool {
	if !w.set {
		return false
	}
	m := t.Hour()*60 + t.Minute()
	if w.start <= w.end {
		return m >= w.start && m < w.end
	}
	// Wraps midnight.
	return m >= w.start || m < w.end
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("conversation: invalid quiet-hours time %q: %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
