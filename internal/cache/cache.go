package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"
)

// ErrCacheIO reports a snapshot persistence failure. The cache keeps
// working from memory.
var ErrCacheIO = errors.New("cache persistence failed")

// Entry is a cached value with its bookkeeping.
type Entry[V any] struct {
	Key            string    `json:"key"`
	Value          V         `json:"value"`
	ContentHash    string    `json:"contentHash"`
	CreatedAt      time.Time `json:"createdAt"`
	LastAccessedAt time.Time `json:"lastAccessedAt"`
	AccessCount    int64     `json:"accessCount"`
	TTLSeconds     int       `json:"ttlSeconds"`
	SizeBytes      int64     `json:"sizeBytes"`
	Tags           []string  `json:"tags,omitempty"`
}

// ExpiresAt returns the expiry time, or the zero time when the entry never expires.
func (e *Entry[V]) ExpiresAt() time.Time {
	if e.TTLSeconds <= 0 {
		return time.Time{}
	}
	return e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second)
}

// Expired reports whether the entry is past its TTL at now.
func (e *Entry[V]) Expired(now time.Time) bool {
	exp := e.ExpiresAt()
	return !exp.IsZero() && !now.Before(exp)
}

// Options configures a Cache.
type Options struct {
	Enabled    bool
	Policy     Policy
	MaxBytes   int64
	MaxEntries int
	// DefaultTTL applies when Set is called without a TTL. Zero never expires.
	DefaultTTL time.Duration
	// SweepInterval and PersistInterval start background timers in Open
	// when positive.
	SweepInterval   time.Duration
	PersistInterval time.Duration
	// Store persists snapshots. Nil keeps the cache memory-only.
	Store  Store
	Logger *slog.Logger
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// SetOptions controls a single Set call.
type SetOptions struct {
	TTL  time.Duration
	Tags []string
	// Force replaces the entry even when its content hash is unchanged.
	Force bool
}

// Stats reports cache usage.
type Stats struct {
	Enabled     bool    `json:"enabled"`
	Policy      Policy  `json:"policy"`
	Entries     int     `json:"entries"`
	TotalBytes  int64   `json:"totalBytes"`
	MaxBytes    int64   `json:"maxBytes"`
	MaxEntries  int     `json:"maxEntries"`
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Unchanged   int64   `json:"unchanged"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	HitRate     float64 `json:"hitRate"`
}

type item[V any] struct {
	Entry[V]
	raw json.RawMessage
}

// Cache is a generic content-addressed cache. It is safe for concurrent use.
type Cache[V any] struct {
	mu         sync.Mutex
	opts       Options
	logger     *slog.Logger
	now        func() time.Time
	entries    map[string]*item[V]
	totalBytes int64

	hits, misses, unchanged, evictions, expirations int64

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New creates a memory-only cache without background timers. Use Open for
// the full lifecycle.
func New[V any](opts Options) *Cache[V] {
	if opts.Policy == "" {
		opts.Policy = PolicyLRU
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		opts:    opts,
		logger:  logger,
		now:     now,
		entries: make(map[string]*item[V]),
	}
}

// Open creates a cache, loads the snapshot from opts.Store, and starts the
// sweep and persist timers. An unreadable snapshot is logged and ignored.
func Open[V any](opts Options) (*Cache[V], error) {
	if opts.Policy != "" {
		if _, err := ParsePolicy(string(opts.Policy)); err != nil {
			return nil, err
		}
	}
	c := New[V](opts)
	if !opts.Enabled {
		return c, nil
	}
	if opts.Store != nil {
		if err := c.Load(); err != nil {
			c.logger.Warn("cache snapshot unreadable, starting empty", "error", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if opts.SweepInterval > 0 {
		c.wg.Add(1)
		go c.every(ctx, opts.SweepInterval, func() { c.Sweep() })
	}
	if opts.Store != nil && opts.PersistInterval > 0 {
		c.wg.Add(1)
		go c.every(ctx, opts.PersistInterval, func() {
			if err := c.Save(); err != nil {
				c.logger.Warn("cache snapshot save failed", "error", err)
			}
		})
	}
	return c, nil
}

func (c *Cache[V]) every(ctx context.Context, interval time.Duration, fn func()) {
	defer c.wg.Done()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

// Close stops background timers and writes a final snapshot.
func (c *Cache[V]) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		c.wg.Wait()
		if c.opts.Enabled {
			err = c.Save()
		}
	})
	return err
}

// Enabled returns whether caching is enabled.
func (c *Cache[V]) Enabled() bool {
	return c.opts.Enabled
}

// Get returns the live value stored under key.
func (c *Cache[V]) Get(key string) (V, bool) {
	var zero V
	if !c.opts.Enabled {
		return zero, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	it, ok := c.entries[key]
	if !ok {
		c.misses++
		return zero, false
	}
	now := c.now()
	if it.Expired(now) {
		c.removeLocked(key)
		c.expirations++
		c.misses++
		return zero, false
	}
	it.LastAccessedAt = now
	it.AccessCount++
	c.hits++
	return it.Value, true
}

// Set stores value under key. When the live entry already holds a value with
// the same content hash and opts.Force is false, only its access bookkeeping
// is refreshed.
func (c *Cache[V]) Set(key string, value V, opts SetOptions) error {
	if !c.opts.Enabled {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value: %w", err)
	}
	hash := HashBytes(raw)
	size := int64(len(raw) + len(key))

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()

	if it, ok := c.entries[key]; ok {
		if !opts.Force && !it.Expired(now) && it.ContentHash == hash {
			it.LastAccessedAt = now
			it.AccessCount++
			c.unchanged++
			return nil
		}
		c.removeLocked(key)
	}

	if c.opts.MaxBytes > 0 && size > c.opts.MaxBytes {
		c.logger.Debug("value exceeds cache budget, not cached", "key", key, "size", size)
		return nil
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = c.opts.DefaultTTL
	}
	c.makeRoomLocked(size, now)
	c.insertLocked(&item[V]{
		Entry: Entry[V]{
			Key:            key,
			Value:          value,
			ContentHash:    hash,
			CreatedAt:      now,
			LastAccessedAt: now,
			AccessCount:    1,
			TTLSeconds:     ttlSeconds(ttl),
			SizeBytes:      size,
			Tags:           append([]string(nil), opts.Tags...),
		},
		raw: raw,
	})
	return nil
}

// Entry returns a copy of the entry under key without touching its access
// bookkeeping.
func (c *Cache[V]) Entry(key string) (Entry[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it, ok := c.entries[key]
	if !ok {
		return Entry[V]{}, false
	}
	e := it.Entry
	e.Tags = append([]string(nil), it.Tags...)
	return e, true
}

// Invalidate removes key and reports whether it was present.
func (c *Cache[V]) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		return false
	}
	c.removeLocked(key)
	return true
}

// InvalidateTag removes every entry carrying tag and returns how many were removed.
func (c *Cache[V]) InvalidateTag(tag string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for key, it := range c.entries {
		for _, t := range it.Tags {
			if t == tag {
				c.removeLocked(key)
				n++
				break
			}
		}
	}
	return n
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*item[V])
	c.totalBytes = 0
}

// Sweep removes expired entries and returns how many were removed.
func (c *Cache[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sweepLocked(c.now())
}

// Keys returns the keys of all stored entries, sorted.
func (c *Cache[V]) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Stats returns cache statistics.
func (c *Cache[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Enabled:     c.opts.Enabled,
		Policy:      c.opts.Policy,
		Entries:     len(c.entries),
		TotalBytes:  c.totalBytes,
		MaxBytes:    c.opts.MaxBytes,
		MaxEntries:  c.opts.MaxEntries,
		Hits:        c.hits,
		Misses:      c.misses,
		Unchanged:   c.unchanged,
		Evictions:   c.evictions,
		Expirations: c.expirations,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

// makeRoomLocked evicts entries so that an insert of size bytes fits. Only
// the budgets that would overflow are drained, down to 80% of their limit.
func (c *Cache[V]) makeRoomLocked(size int64, now time.Time) {
	overBytes := func() bool { return c.opts.MaxBytes > 0 && c.totalBytes+size > c.opts.MaxBytes }
	overCount := func() bool { return c.opts.MaxEntries > 0 && len(c.entries)+1 > c.opts.MaxEntries }
	if !overBytes() && !overCount() {
		return
	}
	c.sweepLocked(now)
	drainBytes, drainCount := overBytes(), overCount()
	if !drainBytes && !drainCount {
		return
	}

	lowBytes := c.opts.MaxBytes * 8 / 10
	lowCount := c.opts.MaxEntries * 8 / 10
	for _, key := range c.evictionOrderLocked() {
		bytesOK := !drainBytes || (c.totalBytes <= lowBytes && !overBytes())
		countOK := !drainCount || (len(c.entries) <= lowCount && !overCount())
		if bytesOK && countOK {
			break
		}
		c.removeLocked(key)
		c.evictions++
	}
}

func (c *Cache[V]) sweepLocked(now time.Time) int {
	var n int
	for key, it := range c.entries {
		if it.Expired(now) {
			c.removeLocked(key)
			n++
		}
	}
	c.expirations += int64(n)
	return n
}

func (c *Cache[V]) insertLocked(it *item[V]) {
	c.entries[it.Key] = it
	c.totalBytes += it.SizeBytes
}

func (c *Cache[V]) removeLocked(key string) {
	it, ok := c.entries[key]
	if !ok {
		return
	}
	c.totalBytes -= it.SizeBytes
	delete(c.entries, key)
}

func ttlSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}

// HashBytes returns the hex SHA-256 digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h)
}

// HashKey creates a SHA-256 hash of the given key material.
func HashKey(parts ...string) string {
	h := sha256.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(p))
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
