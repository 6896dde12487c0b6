package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// On-disk tree layout under the chosen root:
//
//	settings.json
//	sessions/
//	  <session-id>/
//	    chat.json        session metadata, no binary payload
//	    document.pdf     present only if a document was attached
const (
	settingsFileName = "settings.json"
	sessionsDirName  = "sessions"
	chatFileName     = "chat.json"
	documentFileName = "document.pdf"
)

// DirectoryStore translates between the in-memory session model and the
// fixed on-disk tree layout under a user-chosen root directory.
type DirectoryStore struct {
	root string
}

// NewDirectoryStore creates a codec over the given root directory.
func NewDirectoryStore(root string) *DirectoryStore {
	return &DirectoryStore{root: root}
}

// Root returns the root directory this store reads and writes.
func (d *DirectoryStore) Root() string {
	return d.root
}

func (d *DirectoryStore) sessionsDir() string {
	return filepath.Join(d.root, sessionsDirName)
}

func (d *DirectoryStore) sessionDir(id string) string {
	return filepath.Join(d.sessionsDir(), id)
}

// ReadAll enumerates sessions/ and returns every readable session sorted by
// lastUpdated descending, plus the settings if settings.json exists.
//
// A folder whose chat.json is missing or unparsable is skipped, not fatal;
// a single corrupted session must not abort the whole load. The folder name
// is the authoritative session id and overrides any id embedded in the
// JSON, so a manually renamed folder still round-trips consistently.
func (d *DirectoryStore) ReadAll(ctx context.Context) ([]*Session, *Settings, error) {
	entries, err := os.ReadDir(d.sessionsDir())
	if err != nil {
		if os.IsNotExist(err) {
			// First run against this directory: nothing stored yet.
			return nil, d.readSettings(), nil
		}
		return nil, nil, fmt.Errorf("failed to enumerate sessions directory: %w", err)
	}

	var sessions []*Session
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if !entry.IsDir() {
			continue
		}

		session, err := d.readSession(entry.Name())
		if err != nil {
			log.Printf("Skipping unreadable session folder %q: %v", entry.Name(), err)
			continue
		}
		sessions = append(sessions, session)
	}

	sortSessionsByLastUpdated(sessions)

	return sessions, d.readSettings(), nil
}

// sortSessionsByLastUpdated orders sessions most recently updated first.
func sortSessionsByLastUpdated(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastUpdated > sessions[j].LastUpdated
	})
}

func (d *DirectoryStore) readSession(id string) (*Session, error) {
	data, err := os.ReadFile(filepath.Join(d.sessionDir(id), chatFileName))
	if err != nil {
		return nil, err
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", chatFileName, err)
	}

	// The folder name wins over the embedded id.
	session.ID = id

	if blob, err := os.ReadFile(filepath.Join(d.sessionDir(id), documentFileName)); err == nil {
		session.DocumentData = blob
	}

	return &session, nil
}

// ReadDocument returns the binary payload for a session, or ErrNotFound if
// no document file exists.
func (d *DirectoryStore) ReadDocument(ctx context.Context, id string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.sessionDir(id), documentFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return data, nil
}

// WriteSession persists one session: chat.json always, document.pdf only if
// a payload is attached. Creating the session folder is idempotent. Each
// file is written to a temporary sibling and renamed into place so a
// concurrent reader never observes a half-written file.
func (d *DirectoryStore) WriteSession(ctx context.Context, session *Session) error {
	dir := d.sessionDir(session.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(dir, chatFileName), data); err != nil {
		return fmt.Errorf("failed to write %s: %w", chatFileName, err)
	}

	if session.DocumentData != nil {
		if err := writeFileAtomic(filepath.Join(dir, documentFileName), session.DocumentData); err != nil {
			return fmt.Errorf("failed to write %s: %w", documentFileName, err)
		}
	}

	return nil
}

// DeleteSession removes the whole sessions/<id>/ subtree. An absent folder
// is treated as already deleted.
func (d *DirectoryStore) DeleteSession(ctx context.Context, id string) error {
	if err := os.RemoveAll(d.sessionDir(id)); err != nil {
		return fmt.Errorf("failed to delete session folder: %w", err)
	}
	return nil
}

// WriteSettings persists settings.json at the root, making the directory
// self-describing.
func (d *DirectoryStore) WriteSettings(ctx context.Context, settings *Settings) error {
	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}

	if err := writeFileAtomic(filepath.Join(d.root, settingsFileName), data); err != nil {
		return fmt.Errorf("failed to write %s: %w", settingsFileName, err)
	}
	return nil
}

// readSettings reads settings.json best-effort; absence or corruption is a
// first-run condition, not an error.
func (d *DirectoryStore) readSettings() *Settings {
	data, err := os.ReadFile(filepath.Join(d.root, settingsFileName))
	if err != nil {
		return nil
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		log.Printf("Ignoring unparsable %s: %v", settingsFileName, err)
		return nil
	}
	return &settings
}

// writeFileAtomic writes data to a temporary file in the target's directory
// and renames it over the target once fully written and closed.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
