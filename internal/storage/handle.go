package storage

import (
	"context"
	"log"
	"os"
	"sync"
)

// HandleStore persists the single tracked directory grant. Implemented by
// EmbeddedStore.
type HandleStore interface {
	SaveHandle(ctx context.Context, handle DirectoryHandle) error
	LoadHandle(ctx context.Context) (DirectoryHandle, bool, error)
	DeleteHandle(ctx context.Context) error
}

// GrantPrompter asks the user to re-grant access to a directory. The
// request may require user interaction and can be rejected by the hosting
// context; implementations return (false, nil) for an ordinary refusal.
type GrantPrompter interface {
	RequestAccess(ctx context.Context, handle DirectoryHandle, wantWrite bool) (bool, error)
}

// HandleManager owns the single live directory handle. The facade borrows
// it per operation and never retains a second copy. Permission failures are
// never fatal; Verify returns false and the caller degrades to a
// needs-permission state.
type HandleManager struct {
	store    HandleStore
	prompter GrantPrompter

	mu     sync.Mutex
	handle *DirectoryHandle
}

// NewHandleManager creates a handle manager. prompter may be nil when no
// interactive context is available; interactive re-requests then silently
// deny.
func NewHandleManager(store HandleStore, prompter GrantPrompter) *HandleManager {
	return &HandleManager{store: store, prompter: prompter}
}

// Persist stores the handle so it can be recovered after restart and makes
// it the live handle. Any previously persisted handle is replaced.
func (m *HandleManager) Persist(ctx context.Context, handle DirectoryHandle) error {
	if err := m.store.SaveHandle(ctx, handle); err != nil {
		return err
	}

	m.mu.Lock()
	h := handle
	m.handle = &h
	m.mu.Unlock()
	return nil
}

// Recover returns the last persisted handle. The boolean reports whether
// one exists. Recovery does not imply permission.
func (m *HandleManager) Recover(ctx context.Context) (DirectoryHandle, bool, error) {
	m.mu.Lock()
	if m.handle != nil {
		h := *m.handle
		m.mu.Unlock()
		return h, true, nil
	}
	m.mu.Unlock()

	handle, ok, err := m.store.LoadHandle(ctx)
	if err != nil || !ok {
		return DirectoryHandle{}, false, err
	}

	m.mu.Lock()
	h := handle
	m.handle = &h
	m.mu.Unlock()
	return handle, true, nil
}

// Discard drops the live handle reference. The underlying grant record and
// directory contents are untouched; only the in-process reference goes away.
func (m *HandleManager) Discard() {
	m.mu.Lock()
	m.handle = nil
	m.mu.Unlock()
}

// VerifySilent checks whether the handle currently grants access without
// any user interaction.
func (m *HandleManager) VerifySilent(ctx context.Context, handle DirectoryHandle, wantWrite bool) bool {
	return probeDirectory(handle.Path, wantWrite)
}

// Verify checks whether the handle grants access, first silently and then
// via an interactive re-request. It returns false rather than an error on
// any failure so callers can degrade instead of crash.
func (m *HandleManager) Verify(ctx context.Context, handle DirectoryHandle, wantWrite bool) bool {
	if probeDirectory(handle.Path, wantWrite) {
		return true
	}

	if m.prompter == nil {
		return false
	}

	granted, err := m.prompter.RequestAccess(ctx, handle, wantWrite)
	if err != nil {
		log.Printf("Directory access request failed: %v", err)
		return false
	}
	if !granted {
		return false
	}

	return probeDirectory(handle.Path, wantWrite)
}

// probeDirectory checks access to a directory. A read probe opens the
// directory; a write probe creates and removes a temporary file inside it.
func probeDirectory(path string, wantWrite bool) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()

	if !wantWrite {
		return true
	}

	probe, err := os.CreateTemp(path, ".docchat-probe-*")
	if err != nil {
		return false
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return true
}
