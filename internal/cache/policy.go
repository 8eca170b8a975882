package cache

import (
	"fmt"
	"sort"
)

// Policy selects which entries are evicted first when the cache is over budget.
type Policy string

const (
	// PolicyLRU evicts the least recently accessed entries first.
	PolicyLRU Policy = "lru"
	// PolicyLFU evicts the least frequently accessed entries first.
	PolicyLFU Policy = "lfu"
	// PolicyTTL evicts the entries closest to expiry first.
	PolicyTTL Policy = "ttl"
)

// ParsePolicy validates a policy name.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyLRU, PolicyLFU, PolicyTTL:
		return p, nil
	default:
		return "", fmt.Errorf("unknown cache strategy %q (want lru, lfu or ttl)", s)
	}
}

// evictionOrderLocked returns keys ranked by the configured policy, first
// candidate first. Ties fall back to least recent access, then key.
func (c *Cache[V]) evictionOrderLocked() []string {
	items := make([]*item[V], 0, len(c.entries))
	for _, it := range c.entries {
		items = append(items, it)
	}

	byRecency := func(a, b *item[V]) bool {
		if !a.LastAccessedAt.Equal(b.LastAccessedAt) {
			return a.LastAccessedAt.Before(b.LastAccessedAt)
		}
		return a.Key < b.Key
	}

	var less func(a, b *item[V]) bool
	switch c.opts.Policy {
	case PolicyLFU:
		less = func(a, b *item[V]) bool {
			if a.AccessCount != b.AccessCount {
				return a.AccessCount < b.AccessCount
			}
			return byRecency(a, b)
		}
	case PolicyTTL:
		less = func(a, b *item[V]) bool {
			ea, eb := a.ExpiresAt(), b.ExpiresAt()
			switch {
			case ea.IsZero() && eb.IsZero():
				return byRecency(a, b)
			case ea.IsZero():
				return false
			case eb.IsZero():
				return true
			case !ea.Equal(eb):
				return ea.Before(eb)
			}
			return byRecency(a, b)
		}
	default:
		less = byRecency
	}

	sort.Slice(items, func(i, j int) bool { return less(items[i], items[j]) })
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = it.Key
	}
	return keys
}
