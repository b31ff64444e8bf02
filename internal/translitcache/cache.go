package translitcache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"granth/internal/logging"
	"granth/internal/textutil"
)

// Entry represents one cached transliteration. Key is the normalized form
// of Source; Source keeps the exact string first seen for that key.
type Entry struct {
	Key      string    `json:"key"`
	Source   string    `json:"source"`
	Value    string    `json:"value"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache provides thread-safe access to the transliteration cache. Entries
// are keyed by the normalized source string, so equivalent spellings of the
// same title or author resolve to one transliteration.
type Cache struct {
	path    string
	logger  *slog.Logger
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCache creates a new cache instance. If path is empty, the cache will be
// non-functional (all operations become no-ops). The cache file is created
// lazily on first Store call.
func NewCache(path string, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "translitcache")

	c := &Cache{
		path:    path,
		logger:  logger,
		entries: make(map[string]Entry),
	}

	if path == "" {
		return c
	}

	if err := c.load(); err != nil {
		logger.Warn("failed to load transliteration cache",
			logging.String(logging.FieldEventType, "translitcache_load_failed"),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "cache will start empty; transliterations will be re-requested"))
	}

	return c
}

// Lookup returns the cached transliteration for the given source string.
// The lookup key is the normalized source, so case, whitespace, and Unicode
// composition differences all hit the same entry.
func (c *Cache) Lookup(source string) (Entry, bool) {
	key := textutil.NormalizeKey(source)
	if key == "" || c.path == "" {
		return Entry{}, false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, found := c.entries[key]
	return entry, found
}

// Store records a transliteration and persists to disk. The first stored
// value for a key wins; concurrent or repeated stores of the same source
// return the existing entry unchanged.
func (c *Cache) Store(source, value string) (Entry, error) {
	key := textutil.NormalizeKey(source)
	if key == "" {
		return Entry{}, errors.New("source string cannot be empty")
	}
	if c.path == "" {
		return Entry{Key: key, Source: source, Value: value}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, found := c.entries[key]; found {
		return existing, nil
	}

	entry := Entry{
		Key:      key,
		Source:   strings.TrimSpace(source),
		Value:    strings.TrimSpace(value),
		CachedAt: time.Now().UTC(),
	}
	c.entries[key] = entry

	if err := c.save(); err != nil {
		return Entry{}, fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("cached transliteration",
		logging.String("key", key),
		logging.String("value", entry.Value))

	return entry, nil
}

// Remove deletes an entry by source string and persists the change.
func (c *Cache) Remove(source string) error {
	key := textutil.NormalizeKey(source)
	if key == "" {
		return errors.New("source string cannot be empty")
	}
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		return fmt.Errorf("source %q not found in cache", source)
	}

	delete(c.entries, key)

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("removed transliteration from cache", logging.String("key", key))
	return nil
}

// List returns all cache entries sorted by CachedAt descending (newest first).
func (c *Cache) List() []Entry {
	if c.path == "" {
		return nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CachedAt.After(entries[j].CachedAt)
	})

	return entries
}

// Clear removes all entries and persists the empty cache.
func (c *Cache) Clear() error {
	if c.path == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]Entry)

	if err := c.save(); err != nil {
		return fmt.Errorf("persist cache: %w", err)
	}

	c.logger.Debug("cleared transliteration cache")
	return nil
}

// Count returns the number of entries in the cache.
func (c *Cache) Count() int {
	if c.path == "" {
		return 0
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// load reads the cache from disk into memory.
func (c *Cache) load() error {
	data, err := os.ReadFile(c.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil // fresh start
		}
		return fmt.Errorf("read cache file: %w", err)
	}

	if len(data) == 0 {
		return nil
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse cache file: %w", err)
	}

	c.entries = make(map[string]Entry, len(entries))
	for _, entry := range entries {
		key := entry.Key
		if key == "" {
			key = textutil.NormalizeKey(entry.Source)
		}
		if key == "" {
			continue
		}
		entry.Key = key
		if _, exists := c.entries[key]; !exists {
			c.entries[key] = entry
		}
	}

	c.logger.Debug("loaded transliteration cache",
		logging.Int("entry_count", len(c.entries)),
		logging.String("path", c.path))

	return nil
}

// save writes the cache to disk atomically.
func (c *Cache) save() error {
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}

	// Sort for deterministic output
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CachedAt.After(entries[j].CachedAt)
	})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	// Write atomically via temp file
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		os.Remove(tmpPath) // cleanup on failure
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
