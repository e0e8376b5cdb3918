// Package tts routes synthesis requests across engine tiers and fronts them
// with a content-addressed phrase cache, so fixed system phrases play with
// sub-millisecond latency and the board keeps speaking when the network is
// gone.
package tts

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/weny945/home-pi/pkg/provider/tts"
)

// Fingerprint identifies one (text, engine configuration) pair.
type Fingerprint [16]byte

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// NewFingerprint digests the normalized text together with the engine
// identity. Normalization is NFC plus trimming and whitespace collapsing, so
// cosmetic text differences do not split cache entries.
func NewFingerprint(text, engine, voice string, rate int, format string) Fingerprint {
	normalized := strings.Join(strings.Fields(norm.NFC.String(strings.TrimSpace(text))), " ")
	h := md5.New()
	h.Write([]byte(normalized))
	h.Write([]byte{0})
	h.Write([]byte(engine))
	h.Write([]byte{0})
	h.Write([]byte(voice))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(rate)))
	h.Write([]byte{0})
	h.Write([]byte(format))
	var f Fingerprint
	copy(f[:], h.Sum(nil))
	return f
}

// Entry is the index metadata for one cached phrase.
type Entry struct {
	Text        string    `json:"text"`
	SampleRate  int       `json:"sample_rate"`
	Bytes       int       `json:"bytes"`
	CreatedAt   time.Time `json:"created_at"`
	LastAccess  time.Time `json:"last_access"`
	AccessCount int       `json:"access_count"`
}

// Cache is the on-disk phrase store: one PCM file per fingerprint plus a
// JSON index. All methods are safe for concurrent use.
type Cache struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	index   map[string]*Entry
	lookups int
	hits    int
}

// OpenCache opens (creating if needed) the cache directory and reconciles
// the index with the files actually present: entries whose PCM file is gone
// are dropped, orphan PCM files are removed.
func OpenCache(dir string, logger *slog.Logger) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("tts: cache dir must not be empty")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("tts: create cache dir: %w", err)
	}

	c := &Cache{
		dir:    dir,
		logger: logger,
		now:    time.Now,
		index:  make(map[string]*Entry),
	}

	raw, err := os.ReadFile(c.indexPath())
	switch {
	case errors.Is(err, os.ErrNotExist):
		// Fresh cache.
	case err != nil:
		return nil, fmt.Errorf("tts: read cache index: %w", err)
	default:
		if err := json.Unmarshal(raw, &c.index); err != nil {
			// A corrupt index is rebuilt from scratch rather than fatal.
			logger.Warn("phrase cache index corrupt, rebuilding", "error", err)
			c.index = make(map[string]*Entry)
		}
	}

	c.reconcile()
	return c, nil
}

// reconcile drops index entries without a file and files without an entry.
func (c *Cache) reconcile() {
	dropped := 0
	for hexfp := range c.index {
		if _, err := os.Stat(c.pcmPath(hexfp)); err != nil {
			delete(c.index, hexfp)
			dropped++
		}
	}

	orphans := 0
	entries, err := os.ReadDir(c.dir)
	if err == nil {
		for _, de := range entries {
			name := de.Name()
			if !strings.HasSuffix(name, ".pcm") {
				continue
			}
			hexfp := strings.TrimSuffix(name, ".pcm")
			if _, ok := c.index[hexfp]; !ok {
				_ = os.Remove(filepath.Join(c.dir, name))
				orphans++
			}
		}
	}

	if dropped > 0 || orphans > 0 {
		c.logger.Info("phrase cache reconciled",
			"entries", len(c.index), "dropped", dropped, "orphans", orphans)
		c.persistLocked()
	}
}

// Lookup returns the cached clip for the fingerprint, or ok=false on miss.
// A hit bumps the access statistics.
func (c *Cache) Lookup(fp Fingerprint) (tts.Clip, bool) {
	hexfp := fp.String()

	c.mu.Lock()
	c.lookups++
	entry, ok := c.index[hexfp]
	if ok {
		entry.LastAccess = c.now()
		entry.AccessCount++
	}
	c.mu.Unlock()
	if !ok {
		return tts.Clip{}, false
	}

	raw, err := os.ReadFile(c.pcmPath(hexfp))
	if err != nil {
		// The file vanished under us; heal the index.
		c.logger.Warn("cached phrase file missing", "fingerprint", hexfp, "error", err)
		c.mu.Lock()
		delete(c.index, hexfp)
		c.persistLocked()
		c.mu.Unlock()
		return tts.Clip{}, false
	}

	c.mu.Lock()
	c.hits++
	c.mu.Unlock()

	pcm := make([]int16, len(raw)/2)
	for i := range pcm {
		pcm[i] = int16(raw[2*i]) | int16(raw[2*i+1])<<8
	}
	return tts.Clip{PCM: pcm, Rate: entry.SampleRate}, true
}

// Store writes the clip under the fingerprint. The PCM file is written to a
// temp name and renamed so a crash never leaves a half-written entry, then
// the index is updated and persisted.
func (c *Cache) Store(fp Fingerprint, text string, clip tts.Clip) error {
	if clip.Empty() {
		return errors.New("tts: refusing to cache empty clip")
	}
	hexfp := fp.String()

	raw := make([]byte, len(clip.PCM)*2)
	for i, s := range clip.PCM {
		raw[2*i] = byte(s)
		raw[2*i+1] = byte(uint16(s) >> 8)
	}

	tmp, err := os.CreateTemp(c.dir, "phrase-*.tmp")
	if err != nil {
		return fmt.Errorf("tts: cache temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("tts: write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tts: close cache file: %w", err)
	}
	if err := os.Rename(tmpName, c.pcmPath(hexfp)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("tts: commit cache file: %w", err)
	}

	now := c.now()
	c.mu.Lock()
	c.index[hexfp] = &Entry{
		Text:        text,
		SampleRate:  clip.Rate,
		Bytes:       len(raw),
		CreatedAt:   now,
		LastAccess:  now,
		AccessCount: 0,
	}
	err = c.persistLocked()
	c.mu.Unlock()
	return err
}

// Contains reports whether the fingerprint is cached, without touching
// access statistics. Warm-up uses it to find missing phrases.
func (c *Cache) Contains(fp Fingerprint) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.index[fp.String()]
	return ok
}

// Evict removes entries older than maxAgeDays. Zero means no eviction.
// Returns how many entries were removed.
func (c *Cache) Evict(maxAgeDays int) int {
	if maxAgeDays <= 0 {
		return 0
	}
	cutoff := c.now().AddDate(0, 0, -maxAgeDays)

	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for hexfp, entry := range c.index {
		if entry.CreatedAt.Before(cutoff) {
			_ = os.Remove(c.pcmPath(hexfp))
			delete(c.index, hexfp)
			removed++
		}
	}
	if removed > 0 {
		c.logger.Info("phrase cache evicted", "removed", removed, "max_age_days", maxAgeDays)
		c.persistLocked()
	}
	return removed
}

// Stats returns entry count, lookups, and hits since open.
func (c *Cache) Stats() (entries, lookups, hits int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.index), c.lookups, c.hits
}

// Close persists the index, flushing the access statistics accumulated by
// Lookup since the last mutation.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.persistLocked()
}

// persistLocked writes the index atomically. Caller holds c.mu.
func (c *Cache) persistLocked() error {
	raw, err := json.MarshalIndent(c.index, "", "  ")
	if err != nil {
		return fmt.Errorf("tts: marshal cache index: %w", err)
	}
	tmp := c.indexPath() + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("tts: write cache index: %w", err)
	}
	if err := os.Rename(tmp, c.indexPath()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("tts: commit cache index: %w", err)
	}
	return nil
}

func (c *Cache) indexPath() string { return filepath.Join(c.dir, "index.json") }

func (c *Cache) pcmPath(hexfp string) string {
	return filepath.Join(c.dir, hexfp+".pcm")
}
