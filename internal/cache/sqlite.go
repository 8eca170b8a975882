package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_snapshots (
    namespace TEXT PRIMARY KEY,
    saved_at INTEGER NOT NULL
) WITHOUT ROWID;

CREATE TABLE IF NOT EXISTS cache_entries (
    namespace TEXT NOT NULL,
    key TEXT NOT NULL,
    value BLOB NOT NULL,
    content_hash TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    last_accessed_at INTEGER NOT NULL,
    access_count INTEGER NOT NULL,
    ttl_seconds INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    tags TEXT NOT NULL DEFAULT '[]',
    PRIMARY KEY (namespace, key)
) WITHOUT ROWID;
`

// SQLiteStore persists snapshots in a SQLite database. Several caches can
// share one database file under different namespaces.
type SQLiteStore struct {
	db        *sql.DB
	namespace string
}

// OpenSQLiteStore opens (or creates) the database at path. A file that is
// not a usable SQLite database is moved aside to path+".corrupt" and replaced
// by an empty one. Errors wrap ErrCacheIO.
func OpenSQLiteStore(path, namespace string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating cache directory: %v", ErrCacheIO, err)
	}
	db, err := openSQLite(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr != nil {
			return nil, err
		}
		aside := path + ".corrupt"
		if rerr := os.Rename(path, aside); rerr != nil {
			return nil, fmt.Errorf("%v (moving it aside: %v)", err, rerr)
		}
		for _, suffix := range []string{"-wal", "-shm"} {
			_ = os.Remove(path + suffix)
		}
		if db, err = openSQLite(path); err != nil {
			return nil, err
		}
	}
	return &SQLiteStore{db: db, namespace: namespace}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening cache database: %v", ErrCacheIO, err)
	}
	// SQLite only supports one writer at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: setting pragma: %v", ErrCacheIO, err)
		}
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing cache schema: %v", ErrCacheIO, err)
	}
	return db, nil
}

// WithNamespace returns a store sharing the same database under another namespace.
func (s *SQLiteStore) WithNamespace(namespace string) *SQLiteStore {
	return &SQLiteStore{db: s.db, namespace: namespace}
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load reads the namespace's snapshot. A namespace that was never saved
// yields (nil, nil).
func (s *SQLiteStore) Load() (*Snapshot, error) {
	var savedAt int64
	err := s.db.QueryRow(`SELECT saved_at FROM cache_snapshots WHERE namespace = ?`, s.namespace).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading snapshot header: %w", err)
	}

	rows, err := s.db.Query(`
		SELECT key, value, content_hash, created_at, last_accessed_at,
		       access_count, ttl_seconds, size_bytes, tags
		FROM cache_entries WHERE namespace = ? ORDER BY key`, s.namespace)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot entries: %w", err)
	}
	defer rows.Close()

	snap := &Snapshot{SavedAt: time.Unix(0, savedAt)}
	for rows.Next() {
		var (
			r                 Record
			value             []byte
			created, accessed int64
			tags              string
		)
		if err := rows.Scan(&r.Key, &value, &r.ContentHash, &created, &accessed,
			&r.AccessCount, &r.TTLSeconds, &r.SizeBytes, &tags); err != nil {
			return nil, fmt.Errorf("scanning snapshot entry: %w", err)
		}
		r.Value = json.RawMessage(value)
		r.CreatedAt = time.Unix(0, created)
		r.LastAccessedAt = time.Unix(0, accessed)
		if err := json.Unmarshal([]byte(tags), &r.Tags); err != nil {
			r.Tags = nil
		}
		snap.Entries = append(snap.Entries, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading snapshot entries: %w", err)
	}
	return snap, nil
}

// Save replaces the namespace's snapshot in one transaction.
func (s *SQLiteStore) Save(snap *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cache_entries WHERE namespace = ?`, s.namespace); err != nil {
		return fmt.Errorf("clearing snapshot: %w", err)
	}
	stmt, err := tx.Prepare(`
		INSERT INTO cache_entries (namespace, key, value, content_hash, created_at,
		    last_accessed_at, access_count, ttl_seconds, size_bytes, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range snap.Entries {
		tags, err := json.Marshal(r.Tags)
		if err != nil {
			return fmt.Errorf("encoding tags for %s: %w", r.Key, err)
		}
		if r.Tags == nil {
			tags = []byte("[]")
		}
		if _, err := stmt.Exec(s.namespace, r.Key, []byte(r.Value), r.ContentHash,
			r.CreatedAt.UnixNano(), r.LastAccessedAt.UnixNano(), r.AccessCount,
			r.TTLSeconds, r.SizeBytes, string(tags)); err != nil {
			return fmt.Errorf("writing snapshot entry %s: %w", r.Key, err)
		}
	}
	if _, err := tx.Exec(`
		INSERT INTO cache_snapshots (namespace, saved_at) VALUES (?, ?)
		ON CONFLICT(namespace) DO UPDATE SET saved_at = excluded.saved_at`,
		s.namespace, snap.SavedAt.UnixNano()); err != nil {
		return fmt.Errorf("writing snapshot header: %w", err)
	}
	return tx.Commit()
}
