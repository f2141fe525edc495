package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite is a durable Store backed by a single-file SQLite database, so
// progress records and cached results survive process restarts.
type SQLite struct {
	db  *sql.DB
	mu  sync.Mutex
	now func() time.Time
}

// NewSQLite opens (creating if necessary) a SQLite-backed store at path.
func NewSQLite(path string) (*SQLite, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &SQLite{db: db, now: time.Now}
	if err := s.init(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise cache schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key         TEXT PRIMARY KEY,
			payload     BLOB NOT NULL,
			written_at  TEXT NOT NULL,
			expires_at  TEXT
		);

		CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv(expires_at);
	`)
	return err
}

// Get retrieves a value, treating expired rows as absent and pruning them.
func (s *SQLite) Get(key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payload []byte
	var expiresAt sql.NullString
	row := s.db.QueryRow(`SELECT payload, expires_at FROM kv WHERE key = ?`, key)
	if err := row.Scan(&payload, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if expiresAt.Valid {
		expiry, err := time.Parse(time.RFC3339Nano, expiresAt.String)
		if err != nil || s.now().After(expiry) {
			// Lazy expiry: the row is dead weight once past its TTL.
			_, _ = s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
			return nil, false, nil
		}
	}
	return payload, true, nil
}

// Set writes a value with the given TTL, replacing any previous entry.
func (s *SQLite) Set(key string, payload []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var expiresAt any
	if ttl > 0 {
		expiresAt = now.Add(ttl).Format(time.RFC3339Nano)
	}

	_, err := s.db.Exec(`
		INSERT INTO kv (key, payload, written_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			written_at = excluded.written_at,
			expires_at = excluded.expires_at
	`, key, payload, now.Format(time.RFC3339Nano), expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Delete removes a key.
func (s *SQLite) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return nil
}

// Purge removes every expired row. Callers may run it periodically; Get
// already prunes the rows it touches.
func (s *SQLite) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`DELETE FROM kv WHERE expires_at IS NOT NULL AND expires_at < ?`,
		s.now().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to purge expired cache entries: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
