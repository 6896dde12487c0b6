package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// Mode is the facade's storage-mode state. There is no automatic fallback
// from ModeDirectoryNeedsPermission to ModeEmbedded; the user must
// explicitly abandon the directory via SwitchMode.
type Mode string

const (
	ModeEmbedded                 Mode = "embedded"
	ModeDirectory                Mode = "directory-ok"
	ModeDirectoryNeedsPermission Mode = "directory-needs-permission"
)

// DirectoryPicker prompts the user to choose a directory. Implementations
// return ErrCancelled when the user dismisses the prompt and ErrUnsupported
// when the environment provides no interactive picker at all.
type DirectoryPicker interface {
	PickDirectory(ctx context.Context) (DirectoryHandle, error)
}

// Store is the single storage entry point used by the rest of the
// application. It dispatches every operation to whichever backend is
// active and owns the mode-switch protocol. Only the facade reads or
// writes through the directory handle, so the two backends never touch
// the directory concurrently.
type Store struct {
	mu       sync.Mutex
	mode     Mode
	embedded *EmbeddedStore
	handles  *HandleManager
	picker   DirectoryPicker
	dir      *DirectoryStore
}

// NewStore creates the storage facade. picker may be nil in environments
// without an interactive picker; switching to directory mode then fails
// with ErrUnsupported.
func NewStore(embedded *EmbeddedStore, handles *HandleManager, picker DirectoryPicker) *Store {
	return &Store{
		mode:     ModeEmbedded,
		embedded: embedded,
		handles:  handles,
		picker:   picker,
	}
}

// InitialState is what LoadInitial hands to the orchestrator to adopt.
type InitialState struct {
	Sessions   []*Session
	Settings   *Settings
	SelectedID string
	Mode       Mode
}

// LoadInitial rehydrates state on startup. If the persisted settings
// indicate directory mode, the handle is recovered and checked silently
// only; when permission is not silently available the facade starts in the
// needs-permission state with zero sessions rather than blocking startup on
// a prompt.
func (s *Store) LoadInitial(ctx context.Context) (*InitialState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, err := s.embedded.LoadSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	selected, err := s.embedded.LoadSelected(ctx)
	if err != nil {
		log.Printf("Failed to load selected session id: %v", err)
		selected = ""
	}

	if settings != nil && settings.StorageMode == StorageModeDirectory {
		return s.loadInitialDirectory(ctx, settings, selected)
	}

	sessions, err := s.embedded.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load sessions: %w", err)
	}

	s.mode = ModeEmbedded
	s.dir = nil
	return &InitialState{
		Sessions:   sessions,
		Settings:   settings,
		SelectedID: selected,
		Mode:       ModeEmbedded,
	}, nil
}

func (s *Store) loadInitialDirectory(ctx context.Context, settings *Settings, selected string) (*InitialState, error) {
	degraded := &InitialState{
		Settings:   settings,
		SelectedID: selected,
		Mode:       ModeDirectoryNeedsPermission,
	}

	handle, ok, err := s.handles.Recover(ctx)
	if err != nil {
		log.Printf("Failed to recover directory handle: %v", err)
	}
	if err != nil || !ok || !s.handles.VerifySilent(ctx, handle, true) {
		s.mode = ModeDirectoryNeedsPermission
		s.dir = nil
		return degraded, nil
	}

	dir := NewDirectoryStore(handle.Path)
	sessions, dirSettings, err := dir.ReadAll(ctx)
	if err != nil {
		log.Printf("Failed to read directory on startup: %v", err)
		s.mode = ModeDirectoryNeedsPermission
		s.dir = nil
		return degraded, nil
	}

	// The embedded copy of the settings is the boot record and wins;
	// the directory copy only fills a missing one.
	if settings == nil {
		settings = dirSettings
	}

	s.mode = ModeDirectory
	s.dir = dir
	return &InitialState{
		Sessions:   sessions,
		Settings:   settings,
		SelectedID: selected,
		Mode:       ModeDirectory,
	}, nil
}

// Mode returns the current storage mode state.
func (s *Store) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// DirectoryRoot returns the active directory root, if directory mode is
// active and permitted.
func (s *Store) DirectoryRoot() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeDirectory || s.dir == nil {
		return "", false
	}
	return s.dir.Root(), true
}

// Save persists a single mutated session. In directory mode the session is
// written incrementally to its own folder; in embedded mode the metadata
// sub-store is all-or-nothing, so the full list is overwritten instead.
func (s *Store) Save(ctx context.Context, session *Session, all []*Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeEmbedded:
		return s.embedded.SaveAll(ctx, all)
	case ModeDirectory:
		if err := s.ensureDirectoryLocked(ctx); err != nil {
			return err
		}
		return s.dir.WriteSession(ctx, session)
	default:
		return ErrPermissionDenied
	}
}

// SaveDocument persists the session's binary payload. In directory mode the
// payload is part of the session folder; in embedded mode it lives in the
// per-session blob table.
func (s *Store) SaveDocument(ctx context.Context, session *Session) error {
	if session.DocumentData == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeEmbedded:
		return s.embedded.SaveBinary(ctx, session.ID, session.DocumentData)
	case ModeDirectory:
		if err := s.ensureDirectoryLocked(ctx); err != nil {
			return err
		}
		return s.dir.WriteSession(ctx, session)
	default:
		return ErrPermissionDenied
	}
}

// LoadDocument fetches the binary payload for a session id. ErrNotFound
// means the payload is not resident (evicted or never stored); callers
// degrade to "document not loaded".
func (s *Store) LoadDocument(ctx context.Context, id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeEmbedded:
		return s.embedded.LoadBinary(ctx, id)
	case ModeDirectory:
		if s.dir == nil {
			return nil, ErrPermissionDenied
		}
		return s.dir.ReadDocument(ctx, id)
	default:
		return nil, ErrPermissionDenied
	}
}

// Delete removes a session's persisted artifacts. remaining is the session
// list after removal, used for the wholesale metadata overwrite in embedded
// mode.
func (s *Store) Delete(ctx context.Context, id string, remaining []*Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeEmbedded:
		if err := s.embedded.DeleteBinary(ctx, id); err != nil {
			log.Printf("Failed to delete document blob for %s: %v", id, err)
		}
		return s.embedded.SaveAll(ctx, remaining)
	case ModeDirectory:
		if err := s.ensureDirectoryLocked(ctx); err != nil {
			return err
		}
		return s.dir.DeleteSession(ctx, id)
	default:
		return ErrPermissionDenied
	}
}

// SaveSettings persists the live settings. The embedded copy is always
// written (it is the boot record that tells the next start which mode to
// use); in directory mode the directory copy is also refreshed so the tree
// stays self-describing.
func (s *Store) SaveSettings(ctx context.Context, settings *Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveSettingsLocked(ctx, settings)
}

func (s *Store) saveSettingsLocked(ctx context.Context, settings *Settings) error {
	if err := s.embedded.SaveSettings(ctx, settings); err != nil {
		return err
	}

	if s.mode == ModeDirectory && s.dir != nil {
		if err := s.dir.WriteSettings(ctx, settings); err != nil {
			log.Printf("Failed to write settings to directory: %v", err)
			s.degradeLocked()
		}
	}
	return nil
}

// SaveSelected records the last-selected session id. Selection state always
// lives in the embedded store regardless of mode.
func (s *Store) SaveSelected(ctx context.Context, id string) error {
	return s.embedded.SaveSelected(ctx, id)
}

// SwitchResult carries the state the orchestrator adopts after a
// successful mode switch.
type SwitchResult struct {
	Sessions []*Session
	Settings *Settings
	Handle   DirectoryHandle
}

// SwitchMode performs the live backend migration. active is the current
// in-memory working set.
//
// Switching to embedded discards the live handle reference (the underlying
// grant is host-controlled and is not revoked) and loads the embedded
// session list; it never reads from or writes to the directory backend.
//
// Switching to directory prompts for a directory, persists the new handle,
// and runs a first-sync: sessions already on disk are loaded and merged
// with the active set without duplication (the disk copy wins on an id
// collision; active sessions unknown to the disk are written out, so the
// working set migrates without loss), and the pre-switch live settings are
// written back so the directory becomes self-describing. A cancelled
// prompt returns ErrCancelled and leaves mode and state unchanged.
func (s *Store) SwitchMode(ctx context.Context, target StorageMode, live *Settings, active []*Session) (*SwitchResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch target {
	case StorageModeEmbedded:
		return s.switchToEmbeddedLocked(ctx, live)
	case StorageModeDirectory:
		return s.switchToDirectoryLocked(ctx, live, active)
	default:
		return nil, fmt.Errorf("unknown storage mode: %q", target)
	}
}

func (s *Store) switchToEmbeddedLocked(ctx context.Context, live *Settings) (*SwitchResult, error) {
	sessions, err := s.embedded.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedded sessions: %w", err)
	}

	s.handles.Discard()
	s.dir = nil
	s.mode = ModeEmbedded

	settings := live.Clone()
	settings.StorageMode = StorageModeEmbedded
	settings.DirectoryName = ""
	if err := s.embedded.SaveSettings(ctx, settings); err != nil {
		log.Printf("Failed to persist settings after mode switch: %v", err)
	}

	return &SwitchResult{Sessions: sessions, Settings: settings}, nil
}

func (s *Store) switchToDirectoryLocked(ctx context.Context, live *Settings, active []*Session) (*SwitchResult, error) {
	if s.picker == nil {
		return nil, ErrUnsupported
	}

	handle, err := s.picker.PickDirectory(ctx)
	if err != nil {
		// ErrCancelled and ErrUnsupported pass through undecorated so the
		// caller can distinguish a no-op from an explanatory failure.
		if errors.Is(err, ErrCancelled) || errors.Is(err, ErrUnsupported) {
			return nil, err
		}
		return nil, fmt.Errorf("directory picker failed: %w", err)
	}
	if handle.GrantedAt == 0 {
		handle.GrantedAt = time.Now().UnixMilli()
	}

	if !s.handles.VerifySilent(ctx, handle, true) {
		return nil, ErrPermissionDenied
	}

	// First-sync: load what is already on disk before committing any state,
	// so a failed enumeration leaves the previous mode untouched.
	dir := NewDirectoryStore(handle.Path)
	sessions, _, err := dir.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read chosen directory: %w", err)
	}

	if err := s.handles.Persist(ctx, handle); err != nil {
		return nil, fmt.Errorf("failed to persist directory handle: %w", err)
	}

	// Merge the active working set into the disk set. The disk copy wins
	// on an id collision; active sessions the disk has never seen are
	// written out so nothing is lost by the switch.
	onDisk := make(map[string]struct{}, len(sessions))
	for _, sess := range sessions {
		onDisk[sess.ID] = struct{}{}
	}
	for _, sess := range active {
		if _, exists := onDisk[sess.ID]; exists {
			continue
		}
		if err := dir.WriteSession(ctx, sess); err != nil {
			log.Printf("Failed to migrate session %s to directory: %v", sess.ID, err)
			continue
		}
		sessions = append(sessions, sess)
	}
	sortSessionsByLastUpdated(sessions)

	s.dir = dir
	s.mode = ModeDirectory

	settings := live.Clone()
	settings.StorageMode = StorageModeDirectory
	settings.DirectoryName = handle.DisplayName
	if err := s.saveSettingsLocked(ctx, settings); err != nil {
		log.Printf("Failed to persist settings after mode switch: %v", err)
	}

	return &SwitchResult{Sessions: sessions, Settings: settings, Handle: handle}, nil
}

// Regrant attempts to leave the needs-permission state via an explicit,
// possibly interactive, re-grant. On success it reloads the directory and
// returns the session list to adopt.
func (s *Store) Regrant(ctx context.Context) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeDirectoryNeedsPermission {
		return nil, fmt.Errorf("regrant only applies in the needs-permission state (mode %s)", s.mode)
	}

	handle, ok, err := s.handles.Recover(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrPermissionDenied
	}

	if !s.handles.Verify(ctx, handle, true) {
		return nil, ErrPermissionDenied
	}

	dir := NewDirectoryStore(handle.Path)
	sessions, _, err := dir.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory after regrant: %w", err)
	}

	s.dir = dir
	s.mode = ModeDirectory
	return sessions, nil
}

// Reload re-reads the active backend's session list, used after an external
// change hint in directory mode.
func (s *Store) Reload(ctx context.Context) ([]*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.mode {
	case ModeEmbedded:
		return s.embedded.LoadAll(ctx)
	case ModeDirectory:
		if err := s.ensureDirectoryLocked(ctx); err != nil {
			return nil, err
		}
		sessions, _, err := s.dir.ReadAll(ctx)
		return sessions, err
	default:
		return nil, ErrPermissionDenied
	}
}

// Close releases the embedded database.
func (s *Store) Close() error {
	return s.embedded.Close()
}

// ensureDirectoryLocked verifies silent write access before a directory
// operation. A failed check flips the facade into the needs-permission
// state instead of crashing.
func (s *Store) ensureDirectoryLocked(ctx context.Context) error {
	if s.dir == nil {
		s.degradeLocked()
		return ErrPermissionDenied
	}

	handle, ok, err := s.handles.Recover(ctx)
	if err != nil || !ok || !s.handles.VerifySilent(ctx, handle, true) {
		s.degradeLocked()
		return ErrPermissionDenied
	}
	return nil
}

func (s *Store) degradeLocked() {
	if s.mode == ModeDirectory {
		log.Printf("Directory access lost; entering needs-permission state")
	}
	s.mode = ModeDirectoryNeedsPermission
	s.dir = nil
}
