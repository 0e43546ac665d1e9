// Package store is the durable local key-value store backing the bridge:
// the selected port, chip snapshots, captured AI responses, and user
// preferences survive process restarts through it.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"github.com/techidiots/webaibridge/internal/protocol"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// Well-known keys.
const (
	KeySelectedPort = "selected_port"
	KeyChips        = "chips"
	KeyLastResponse = "last_response"
	KeyModel        = "model"
	KeyLimitMode    = "limit_mode"
	KeyCustomLimit  = "custom_limit"
)

// Store is a SQLite-backed key-value store. Safe for concurrent use; the
// sql.DB pool serializes writers through the busy timeout.
type Store struct {
	db *sql.DB
}

// Open initializes the store at baseDir/bridge.db. The baseDir parameter
// lets tests use t.TempDir() instead of the real data directory.
func Open(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	_ = os.Chmod(baseDir, 0700)

	dbPath := filepath.Join(baseDir, "bridge.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)

	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the values for the requested keys. Missing keys are absent
// from the result, not an error.
func (s *Store) Get(keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	for _, key := range keys {
		var value string
		err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read key %q: %w", key, err)
		}
		out[key] = value
	}
	return out, nil
}

// Set writes all given key-value pairs in one transaction.
func (s *Store) Set(kvs map[string]string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for key, value := range kvs {
		_, err := tx.Exec(`
			INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value, now)
		if err != nil {
			return fmt.Errorf("failed to write key %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// Delete removes keys. Unknown keys are ignored.
func (s *Store) Delete(keys ...string) error {
	for _, key := range keys {
		if _, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
			return fmt.Errorf("failed to delete key %q: %w", key, err)
		}
	}
	return nil
}

// SelectedPort returns the persisted port, or 0 when none is remembered.
func (s *Store) SelectedPort() (int, error) {
	values, err := s.Get(KeySelectedPort)
	if err != nil {
		return 0, err
	}
	raw, ok := values[KeySelectedPort]
	if !ok {
		return 0, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("corrupt selected_port value %q: %w", raw, err)
	}
	return port, nil
}

// SetSelectedPort persists the port of the current connection.
func (s *Store) SetSelectedPort(port int) error {
	return s.Set(map[string]string{KeySelectedPort: strconv.Itoa(port)})
}

// SaveChips persists the full chip set as a JSON snapshot.
func (s *Store) SaveChips(chips []protocol.Chip) error {
	data, err := json.Marshal(chips)
	if err != nil {
		return fmt.Errorf("failed to encode chip snapshot: %w", err)
	}
	return s.Set(map[string]string{KeyChips: string(data)})
}

// LoadChips restores the persisted chip snapshot; nil when none exists.
func (s *Store) LoadChips() ([]protocol.Chip, error) {
	values, err := s.Get(KeyChips)
	if err != nil {
		return nil, err
	}
	raw, ok := values[KeyChips]
	if !ok {
		return nil, nil
	}
	var chips []protocol.Chip
	if err := json.Unmarshal([]byte(raw), &chips); err != nil {
		return nil, fmt.Errorf("corrupt chip snapshot: %w", err)
	}
	return chips, nil
}

// Response is a captured AI chat response.
type Response struct {
	Text      string `json:"text"`
	Site      string `json:"site,omitempty"`
	IsCode    bool   `json:"isCode,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// SaveResponse persists the most recent captured AI response.
func (s *Store) SaveResponse(r Response) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	return s.Set(map[string]string{KeyLastResponse: string(data)})
}

// LastResponse returns the most recent captured AI response, or nil when
// none has been recorded.
func (s *Store) LastResponse() (*Response, error) {
	values, err := s.Get(KeyLastResponse)
	if err != nil {
		return nil, err
	}
	raw, ok := values[KeyLastResponse]
	if !ok {
		return nil, nil
	}
	var r Response
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, fmt.Errorf("corrupt last response: %w", err)
	}
	return &r, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := getUserVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS kv (
		  key        TEXT PRIMARY KEY,
		  value      TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("migration 1 failed: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	// Future migrations go here:
	// if version < 2 { ... }

	return nil
}

// verifyWALMode checks that WAL mode is active (set via connection string).
func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return fmt.Errorf("failed to verify journal mode: %w", err)
	}
	if journalMode != "wal" {
		return fmt.Errorf("expected WAL mode, got %s", journalMode)
	}
	return nil
}

func getUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	_, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version))
	if err != nil {
		return fmt.Errorf("failed to set user_version: %w", err)
	}
	return nil
}
