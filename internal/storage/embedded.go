package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/tursodatabase/go-libsql"
)

// Keys for the scalar kv table. chat_sessions holds the whole serialized
// session-metadata list and is overwritten wholesale on every metadata
// mutation; binary payloads live in their own table keyed by session id.
const (
	kvKeySessions = "chat_sessions"
	kvKeySettings = "app_settings"
	kvKeySelected = "selected_session"
)

// handleRowName is the sentinel key for the single tracked directory grant.
const handleRowName = "active"

// EmbeddedStore persists sessions, settings and the directory grant inside
// a local SQLite database. It is the backend used when no directory has
// been selected.
type EmbeddedStore struct {
	db *sql.DB
}

// NewEmbeddedStore creates an embedded store backed by the database at dbPath.
func NewEmbeddedStore(dbPath string) (*EmbeddedStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("libsql", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &EmbeddedStore{db: db}

	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *EmbeddedStore) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS document_blobs (
			session_id TEXT PRIMARY KEY,
			data BLOB NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS directory_handles (
			name TEXT PRIMARY KEY,
			path TEXT NOT NULL,
			display_name TEXT NOT NULL,
			granted_at INTEGER NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// SaveAll overwrites the whole session-metadata list. Document payloads are
// not part of the list; they are saved per session via SaveBinary.
func (s *EmbeddedStore) SaveAll(ctx context.Context, sessions []*Session) error {
	data, err := json.Marshal(sessions)
	if err != nil {
		return fmt.Errorf("failed to marshal sessions: %w", err)
	}
	return s.setKV(ctx, kvKeySessions, string(data))
}

// LoadAll returns the persisted session-metadata list. A store that has
// never been written returns an empty list, not an error.
func (s *EmbeddedStore) LoadAll(ctx context.Context) ([]*Session, error) {
	value, err := s.getKV(ctx, kvKeySessions)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sessions []*Session
	if err := json.Unmarshal([]byte(value), &sessions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sessions: %w", err)
	}
	return sessions, nil
}

// SaveBinary stores a document payload for a session, replacing any
// previous payload.
func (s *EmbeddedStore) SaveBinary(ctx context.Context, sessionID string, data []byte) error {
	query := `INSERT OR REPLACE INTO document_blobs (session_id, data, updated_at)
	          VALUES (?, ?, CURRENT_TIMESTAMP)`

	if _, err := s.db.ExecContext(ctx, query, sessionID, data); err != nil {
		return fmt.Errorf("failed to save document blob: %w", err)
	}
	return nil
}

// LoadBinary returns the document payload for a session, or ErrNotFound if
// no payload is stored. A missing payload for known metadata is a degraded
// state, not a fatal condition; callers treat it as "document not loaded".
func (s *EmbeddedStore) LoadBinary(ctx context.Context, sessionID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM document_blobs WHERE session_id = ?`, sessionID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document blob: %w", err)
	}
	return data, nil
}

// DeleteBinary removes the document payload for a session. Deleting an
// absent payload is not an error.
func (s *EmbeddedStore) DeleteBinary(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM document_blobs WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to delete document blob: %w", err)
	}
	return nil
}

// SaveSettings persists the settings object.
func (s *EmbeddedStore) SaveSettings(ctx context.Context, settings *Settings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return s.setKV(ctx, kvKeySettings, string(data))
}

// LoadSettings returns the persisted settings, or nil on first run.
func (s *EmbeddedStore) LoadSettings(ctx context.Context) (*Settings, error) {
	value, err := s.getKV(ctx, kvKeySettings)
	if err == ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var settings Settings
	if err := json.Unmarshal([]byte(value), &settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return &settings, nil
}

// SaveSelected records the id of the last-selected session.
func (s *EmbeddedStore) SaveSelected(ctx context.Context, sessionID string) error {
	return s.setKV(ctx, kvKeySelected, sessionID)
}

// LoadSelected returns the id of the last-selected session, or "" if none
// was recorded.
func (s *EmbeddedStore) LoadSelected(ctx context.Context) (string, error) {
	value, err := s.getKV(ctx, kvKeySelected)
	if err == ErrNotFound {
		return "", nil
	}
	return value, err
}

// SaveHandle persists the directory grant. Only one directory is tracked at
// a time; persisting a new handle replaces the old one.
func (s *EmbeddedStore) SaveHandle(ctx context.Context, handle DirectoryHandle) error {
	query := `INSERT OR REPLACE INTO directory_handles (name, path, display_name, granted_at)
	          VALUES (?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, query,
		handleRowName, handle.Path, handle.DisplayName, handle.GrantedAt); err != nil {
		return fmt.Errorf("failed to save directory handle: %w", err)
	}
	return nil
}

// LoadHandle returns the persisted directory grant. The second return value
// reports whether a grant exists. A recovered handle implies no permission.
func (s *EmbeddedStore) LoadHandle(ctx context.Context) (DirectoryHandle, bool, error) {
	var handle DirectoryHandle
	err := s.db.QueryRowContext(ctx,
		`SELECT path, display_name, granted_at FROM directory_handles WHERE name = ?`,
		handleRowName).Scan(&handle.Path, &handle.DisplayName, &handle.GrantedAt)
	if err == sql.ErrNoRows {
		return DirectoryHandle{}, false, nil
	}
	if err != nil {
		return DirectoryHandle{}, false, fmt.Errorf("failed to load directory handle: %w", err)
	}
	return handle, true, nil
}

// DeleteHandle removes the persisted directory grant.
func (s *EmbeddedStore) DeleteHandle(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM directory_handles WHERE name = ?`, handleRowName); err != nil {
		return fmt.Errorf("failed to delete directory handle: %w", err)
	}
	return nil
}

// GetStats returns storage statistics
func (s *EmbeddedStore) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})

	sessions, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	stats["sessions"] = len(sessions)

	var blobCount int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM document_blobs`).Scan(&blobCount); err != nil {
		return nil, fmt.Errorf("failed to get blob count: %w", err)
	}
	stats["document_blobs"] = blobCount

	var blobBytes sql.NullInt64
	if err := s.db.QueryRowContext(ctx,
		`SELECT SUM(LENGTH(data)) FROM document_blobs`).Scan(&blobBytes); err != nil {
		return nil, fmt.Errorf("failed to get blob size: %w", err)
	}
	stats["document_bytes"] = blobBytes.Int64

	return stats, nil
}

// Close closes the database connection
func (s *EmbeddedStore) Close() error {
	return s.db.Close()
}

func (s *EmbeddedStore) setKV(ctx context.Context, key, value string) error {
	query := `INSERT OR REPLACE INTO kv (key, value, updated_at)
	          VALUES (?, ?, CURRENT_TIMESTAMP)`

	if _, err := s.db.ExecContext(ctx, query, key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *EmbeddedStore) getKV(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, nil
}
