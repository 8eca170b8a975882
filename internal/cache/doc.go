// Package cache is the content-addressed memoization layer of the pipeline.
//
// A [Cache] is a generic, mutex-guarded key/value store. Every value is
// hashed (SHA-256 of its JSON encoding) on [Cache.Set]; storing a value whose
// hash matches the live entry only refreshes access bookkeeping, which is what
// makes re-running over unchanged files free.
//
// Entries expire lazily on read and through a periodic sweep. When an insert
// would exceed the byte or entry budget, entries are evicted in policy order
// (lru, lfu or ttl) until usage is back under 80% of the budget that
// overflowed.
//
// Snapshots of live entries can be persisted through a [Store]: [JSONStore]
// writes a single JSON file atomically, [SQLiteStore] keeps snapshots for
// several namespaces in one database. A missing or unreadable snapshot
// starts an empty cache.
package cache
