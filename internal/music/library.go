package music

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/antzucaro/matchr"
)

// ErrNoMatch is returned when no track matches a query.
var ErrNoMatch = errors.New("music: no matching track")

// Track is one playable file in the library.
type Track struct {
	Title string
	Path  string
}

// Library indexes the Ogg Opus files under one directory. The index is
// built once at construction; rescanning is a Reload call away.
type Library struct {
	dir    string
	tracks []Track
}

// NewLibrary scans dir for .opus and .ogg files. An empty or missing
// directory yields an empty library, not an error.
func NewLibrary(dir string) (*Library, error) {
	l := &Library{dir: dir}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Reload rescans the directory.
func (l *Library) Reload() error {
	l.tracks = nil
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("music: scan library: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".opus" && ext != ".ogg" {
			continue
		}
		title := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		l.tracks = append(l.tracks, Track{
			Title: title,
			Path:  filepath.Join(l.dir, e.Name()),
		})
	}
	return nil
}

// Tracks returns the indexed tracks.
func (l *Library) Tracks() []Track { return l.tracks }

// Find resolves a spoken query to a track: exact title, then substring,
// then the best fuzzy match above 0.75. An empty query returns the first
// track ("play some music" with no title).
func (l *Library) Find(query string) (Track, error) {
	if len(l.tracks) == 0 {
		return Track{}, ErrNoMatch
	}
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || q == "music" || q == "音乐" {
		return l.tracks[0], nil
	}

	for _, t := range l.tracks {
		if strings.ToLower(t.Title) == q {
			return t, nil
		}
	}
	for _, t := range l.tracks {
		title := strings.ToLower(t.Title)
		if strings.Contains(title, q) || strings.Contains(q, title) {
			return t, nil
		}
	}

	best := -1
	bestScore := 0.0
	for i, t := range l.tracks {
		score := matchr.JaroWinkler(strings.ToLower(t.Title), q, true)
		if score > bestScore {
			bestScore = score
			best = i
		}
	}
	if best >= 0 && bestScore >= 0.75 {
		return l.tracks[best], nil
	}
	return Track{}, fmt.Errorf("%w: %q", ErrNoMatch, query)
}
