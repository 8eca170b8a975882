package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// Record is the persisted form of an entry. Value holds the JSON encoding.
type Record struct {
	Key            string          `json:"key"`
	Value          json.RawMessage `json:"value"`
	ContentHash    string          `json:"contentHash"`
	CreatedAt      time.Time       `json:"createdAt"`
	LastAccessedAt time.Time       `json:"lastAccessedAt"`
	AccessCount    int64           `json:"accessCount"`
	TTLSeconds     int             `json:"ttlSeconds"`
	SizeBytes      int64           `json:"sizeBytes"`
	Tags           []string        `json:"tags,omitempty"`
}

// Snapshot is the persisted state of a cache.
type Snapshot struct {
	SavedAt time.Time `json:"savedAt"`
	Entries []Record  `json:"entries"`
}

// Store persists snapshots. Load returns (nil, nil) when nothing was saved yet.
type Store interface {
	Load() (*Snapshot, error)
	Save(s *Snapshot) error
}

// Save writes a snapshot of all live entries to the configured store.
func (c *Cache[V]) Save() error {
	if c.opts.Store == nil {
		return nil
	}
	c.mu.Lock()
	now := c.now()
	snap := &Snapshot{SavedAt: now, Entries: make([]Record, 0, len(c.entries))}
	for _, key := range sortedKeys(c.entries) {
		it := c.entries[key]
		if it.Expired(now) {
			continue
		}
		snap.Entries = append(snap.Entries, Record{
			Key:            it.Key,
			Value:          it.raw,
			ContentHash:    it.ContentHash,
			CreatedAt:      it.CreatedAt,
			LastAccessedAt: it.LastAccessedAt,
			AccessCount:    it.AccessCount,
			TTLSeconds:     it.TTLSeconds,
			SizeBytes:      it.SizeBytes,
			Tags:           it.Tags,
		})
	}
	c.mu.Unlock()

	if err := c.opts.Store.Save(snap); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	return nil
}

// Load merges the stored snapshot into the cache, dropping expired entries
// and entries whose value no longer decodes.
func (c *Cache[V]) Load() error {
	if c.opts.Store == nil {
		return nil
	}
	snap, err := c.opts.Store.Load()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheIO, err)
	}
	if snap == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	var loaded, dropped int
	for _, r := range snap.Entries {
		it := &item[V]{
			Entry: Entry[V]{
				Key:            r.Key,
				ContentHash:    r.ContentHash,
				CreatedAt:      r.CreatedAt,
				LastAccessedAt: r.LastAccessedAt,
				AccessCount:    r.AccessCount,
				TTLSeconds:     r.TTLSeconds,
				SizeBytes:      r.SizeBytes,
				Tags:           r.Tags,
			},
			raw: r.Value,
		}
		if it.Expired(now) || json.Unmarshal(r.Value, &it.Value) != nil {
			dropped++
			continue
		}
		if it.SizeBytes <= 0 {
			it.SizeBytes = int64(len(r.Value) + len(r.Key))
		}
		if c.opts.MaxBytes > 0 && it.SizeBytes > c.opts.MaxBytes {
			dropped++
			continue
		}
		c.removeLocked(it.Key)
		c.makeRoomLocked(it.SizeBytes, now)
		c.insertLocked(it)
		loaded++
	}
	c.logger.Debug("cache snapshot loaded", "entries", loaded, "dropped", dropped, "savedAt", snap.SavedAt)
	return nil
}

func sortedKeys[V any](m map[string]*item[V]) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// JSONStore persists a snapshot as a single JSON file.
type JSONStore struct {
	Path string
}

// NewJSONStore returns a store writing to path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{Path: path}
}

// Load reads the snapshot. A missing file yields (nil, nil).
func (s *JSONStore) Load() (*Snapshot, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parsing snapshot %s: %w", s.Path, err)
	}
	return &snap, nil
}

// Save writes the snapshot atomically: the data goes to a temporary file in
// the same directory, which is then renamed over the target.
func (s *JSONStore) Save(snap *Snapshot) error {
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
