package cache

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one immutable cached model response. Parsed carries the structured
// suggestions exactly as the engine validated them; Raw keeps the provider's
// text for re-parsing and debugging.
type Entry struct {
	Key       string          `json:"key"`
	Raw       string          `json:"raw"`
	Parsed    json.RawMessage `json:"parsed"`
	CreatedAt time.Time       `json:"createdAt"`
}

// Cache is a content-addressed store of model responses persisted as one JSON
// file per key. Entries survive process restarts; a corrupted file is treated
// as a miss. Different keys never block one another.
type Cache struct {
	dir     string
	enabled bool

	mu      sync.Mutex
	mem     map[string]Entry
	keyLock map[string]*sync.Mutex
}

// New creates a Cache rooted at dir, creating the directory if absent.
func New(enabled bool, dir string) (*Cache, error) {
	c := &Cache{
		enabled: enabled,
		mem:     make(map[string]Entry),
		keyLock: make(map[string]*sync.Mutex),
	}
	if !enabled {
		return c, nil
	}
	if dir == "" {
		dir = ".review_cache"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}
	c.dir = dir
	return c, nil
}

// Key derives the deterministic cache key from the reviewed text, the model
// identifier, and the review context. Any change to an input changes the key.
func Key(text, model, context string) string {
	h := sha256.Sum256([]byte(model + "\x00" + context + "\x00" + text))
	return fmt.Sprintf("%x", h)
}

// GetOrCompute returns the stored entry for key, computing and storing it on
// a miss. Concurrent callers for the same key serialize so the computation
// runs at most once per key per process; different keys proceed in parallel.
func (c *Cache) GetOrCompute(key string, compute func() (Entry, error)) (Entry, bool, error) {
	if !c.enabled {
		e, err := compute()
		return e, false, err
	}

	lock := c.lockFor(key)
	lock.Lock()
	defer lock.Unlock()

	if e, ok := c.get(key); ok {
		return e, true, nil
	}

	e, err := compute()
	if err != nil {
		return Entry{}, false, err
	}
	e.Key = key
	e.CreatedAt = time.Now()
	if err := c.put(key, e); err != nil {
		return Entry{}, false, err
	}
	return e, false, nil
}

func (c *Cache) lockFor(key string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.keyLock[key]
	if !ok {
		l = &sync.Mutex{}
		c.keyLock[key] = l
	}
	return l
}

func (c *Cache) get(key string) (Entry, bool) {
	c.mu.Lock()
	e, ok := c.mem[key]
	c.mu.Unlock()
	if ok {
		return e, true
	}

	data, err := os.ReadFile(c.entryPath(key))
	if err != nil {
		return Entry{}, false
	}
	if err := json.Unmarshal(data, &e); err != nil {
		// Corrupted on-disk entry: a miss, never fatal.
		return Entry{}, false
	}
	if e.Key != key {
		return Entry{}, false
	}
	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()
	return e, true
}

// put writes through a temp file rename so concurrent writers can never leave
// a torn entry behind; last writer wins.
func (c *Cache) put(key string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling cache entry: %w", err)
	}
	path := c.entryPath(key)
	tmp, err := os.CreateTemp(c.dir, "entry-*.tmp")
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("writing cache entry: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("storing cache entry: %w", err)
	}
	c.mu.Lock()
	c.mem[key] = e
	c.mu.Unlock()
	return nil
}

// Clear removes all cache entries.
func (c *Cache) Clear() error {
	if !c.enabled || c.dir == "" {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".json" {
			os.Remove(filepath.Join(c.dir, e.Name()))
		}
	}
	c.mu.Lock()
	c.mem = make(map[string]Entry)
	c.mu.Unlock()
	return nil
}

// Stats describes the persisted cache.
type Stats struct {
	Dir        string `json:"dir"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
}

// GetStats returns information about the cache directory.
func (c *Cache) GetStats() (Stats, error) {
	stats := Stats{Dir: c.dir}
	if !c.enabled || c.dir == "" {
		return stats, nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return stats, nil
		}
		return stats, fmt.Errorf("reading cache directory: %w", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) != ".json" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		stats.Entries++
		stats.TotalBytes += info.Size()
	}
	return stats, nil
}

// Dir returns the cache directory path.
func (c *Cache) Dir() string { return c.dir }

// Enabled returns whether caching is enabled.
func (c *Cache) Enabled() bool { return c.enabled }

func (c *Cache) entryPath(key string) string {
	return filepath.Join(c.dir, key+".json")
}
