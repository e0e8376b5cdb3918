package observe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// defaultLogRingSize bounds the in-memory log tail.
const defaultLogRingSize = 256

// LogRing is a [slog.Handler] that tees records to a base handler while
// keeping the most recent formatted lines in memory. It also implements
// [http.Handler], serving the buffered tail as plain text, which is what the
// `logs` CLI verb reads over the status port.
type LogRing struct {
	base slog.Handler

	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

var (
	_ slog.Handler = (*LogRing)(nil)
	_ http.Handler = (*LogRing)(nil)
)

// NewLogRing wraps base with a ring of size lines. Size <= 0 uses the
// default of 256.
func NewLogRing(base slog.Handler, size int) *LogRing {
	if size <= 0 {
		size = defaultLogRingSize
	}
	return &LogRing{base: base, lines: make([]string, size)}
}

func (l *LogRing) Enabled(ctx context.Context, level slog.Level) bool {
	return l.base.Enabled(ctx, level)
}

func (l *LogRing) Handle(ctx context.Context, rec slog.Record) error {
	l.record(rec)
	return l.base.Handle(ctx, rec)
}

func (l *LogRing) record(rec slog.Record) {
	line := fmt.Sprintf("%s %-5s %s", rec.Time.Format(time.RFC3339), rec.Level, rec.Message)
	rec.Attrs(func(a slog.Attr) bool {
		line += " " + a.String()
		return true
	})

	l.mu.Lock()
	l.lines[l.next] = line
	l.next = (l.next + 1) % len(l.lines)
	if l.next == 0 {
		l.full = true
	}
	l.mu.Unlock()
}

func (l *LogRing) WithAttrs(attrs []slog.Attr) slog.Handler {
	// Attrs flow to the base handler only; the ring keeps its shared buffer
	// so /logs shows every subsystem in one stream.
	return &ringChild{ring: l, base: l.base.WithAttrs(attrs)}
}

func (l *LogRing) WithGroup(name string) slog.Handler {
	return &ringChild{ring: l, base: l.base.WithGroup(name)}
}

// Tail returns the buffered lines, oldest first.
func (l *LogRing) Tail() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []string
	if l.full {
		out = append(out, l.lines[l.next:]...)
	}
	out = append(out, l.lines[:l.next]...)
	return out
}

// ServeHTTP writes the tail as one line per record.
func (l *LogRing) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	for _, line := range l.Tail() {
		fmt.Fprintln(w, line)
	}
}

// ringChild carries derived attrs and groups to the base handler while
// still recording into the parent ring.
type ringChild struct {
	ring *LogRing
	base slog.Handler
}

func (c *ringChild) Enabled(ctx context.Context, level slog.Level) bool {
	return c.base.Enabled(ctx, level)
}

func (c *ringChild) Handle(ctx context.Context, rec slog.Record) error {
	c.ring.record(rec)
	return c.base.Handle(ctx, rec)
}

func (c *ringChild) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ringChild{ring: c.ring, base: c.base.WithAttrs(attrs)}
}

func (c *ringChild) WithGroup(name string) slog.Handler {
	return &ringChild{ring: c.ring, base: c.base.WithGroup(name)}
}
