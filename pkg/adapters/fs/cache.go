package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/brewing/pkg/core"
)

// indexEntry is the parsed form of one specification file.
type indexEntry struct {
	Spec         core.Specification `json:"spec"`
	LastModified time.Time          `json:"lastModified"`
	Size         int64              `json:"size"`
}

// index represents the persistent cache state.
type index struct {
	Version int                    `json:"version"`
	Entries map[string]*indexEntry `json:"entries"` // keyed by file name
	dirty   bool
	loaded  bool
	mu      sync.RWMutex
}

const indexVersion = 2

// cache keeps parsed specifications keyed by file name, so listing a large
// project only parses the files that changed since the last listing.
type cache struct {
	Path  string
	index *index
}

func newCache(systemPath string) *cache {
	return &cache{
		Path: filepath.Join(systemPath, "index.json"),
		index: &index{
			Version: indexVersion,
			Entries: make(map[string]*indexEntry),
		},
	}
}

// Load reads the cache from disk once. A missing, corrupted or outdated
// file yields an empty cache.
func (c *cache) Load() error {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()
	if c.index.loaded {
		return nil
	}
	c.index.loaded = true

	data, err := os.ReadFile(c.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read cache: %w", err)
	}

	var stored struct {
		Version int                    `json:"version"`
		Entries map[string]*indexEntry `json:"entries"`
	}
	if err := json.Unmarshal(data, &stored); err != nil || stored.Version != indexVersion || stored.Entries == nil {
		// Self-heal.
		c.index.Entries = make(map[string]*indexEntry)
		c.index.dirty = true
		return nil
	}
	c.index.Entries = stored.Entries
	c.index.dirty = false
	return nil
}

// Save persists the cache to disk if it is dirty.
func (c *cache) Save() error {
	c.index.mu.RLock()
	if !c.index.dirty {
		c.index.mu.RUnlock()
		return nil
	}
	data, err := json.Marshal(c.index)
	c.index.mu.RUnlock()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(c.Path), 0755); err != nil {
		return err
	}
	if err := writeFileAtomic(c.Path, data, 0644); err != nil {
		return err
	}

	c.index.mu.Lock()
	c.index.dirty = false
	c.index.mu.Unlock()
	return nil
}

// Get returns the entry for name if it matches the file's mtime and size.
func (c *cache) Get(name string, mtime time.Time, size int64) (core.Specification, bool) {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()

	entry, ok := c.index.Entries[name]
	if !ok || !entry.LastModified.Equal(mtime) || entry.Size != size {
		return core.Specification{}, false
	}
	return entry.Spec.Clone(), true
}

// Set updates an entry in the cache.
func (c *cache) Set(name string, spec core.Specification, mtime time.Time, size int64) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	c.index.Entries[name] = &indexEntry{Spec: spec.Clone(), LastModified: mtime, Size: size}
	c.index.dirty = true
}

// Prune removes entries that are not in the keep set.
func (c *cache) Prune(keep map[string]bool) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	for name := range c.index.Entries {
		if !keep[name] {
			delete(c.index.Entries, name)
			c.index.dirty = true
		}
	}
}

// Delete removes a single entry from the cache.
func (c *cache) Delete(name string) {
	c.index.mu.Lock()
	defer c.index.mu.Unlock()

	if _, ok := c.index.Entries[name]; ok {
		delete(c.index.Entries, name)
		c.index.dirty = true
	}
}

// Len returns the number of entries in the cache.
func (c *cache) Len() int {
	c.index.mu.RLock()
	defer c.index.mu.RUnlock()
	return len(c.index.Entries)
}
