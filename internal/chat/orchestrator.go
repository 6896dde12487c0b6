// Package chat owns the canonical in-memory session list and sequences
// every lifecycle operation against the storage facade. The facade never
// mutates the list; it only returns values for this package to adopt.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"docchat/internal/document"
	"docchat/internal/llm"
	"docchat/internal/storage"
)

const defaultSessionTitle = "New Chat"

// summaryContextRunes caps how much extracted document text is handed to
// the model for summary generation.
const summaryContextRunes = 24000

// Orchestrator maintains the in-memory session list (most-recently-updated
// first; insertion on creation is newest-first) and keeps it consistent
// with persisted state. Ordinary persistence failures are logged no-ops:
// the in-memory state stays the source of truth and the next successful
// write retries the full overwrite.
type Orchestrator struct {
	mu         sync.Mutex
	store      *storage.Store
	client     llm.Client
	sessions   []*storage.Session
	selectedID string
	settings   *storage.Settings
}

// New creates an orchestrator over the storage facade. client may be nil
// when no model provider is configured; summary generation then fails with
// an explanatory error.
func New(store *storage.Store, client llm.Client) *Orchestrator {
	return &Orchestrator{store: store, client: client}
}

// Bootstrap rehydrates state from the active backend on startup. defaults
// seeds the settings on first run. If the backend is reachable and holds no
// sessions, a fresh empty session is created so the user always has a
// place to type.
func (o *Orchestrator) Bootstrap(ctx context.Context, defaults *storage.Settings) error {
	init, err := o.store.LoadInitial(ctx)
	if err != nil {
		return fmt.Errorf("failed to load initial state: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.sessions = init.Sessions
	o.settings = init.Settings
	if o.settings == nil {
		o.settings = defaults.Clone()
		if err := o.store.SaveSettings(ctx, o.settings); err != nil {
			log.Printf("Failed to persist default settings: %v", err)
		}
	}

	if o.indexOf(init.SelectedID) >= 0 {
		o.selectedID = init.SelectedID
	} else if len(o.sessions) > 0 {
		o.selectedID = o.sessions[0].ID
	}

	if len(o.sessions) == 0 && init.Mode != storage.ModeDirectoryNeedsPermission {
		o.createSessionLocked(ctx)
	}

	return nil
}

// Sessions returns a snapshot of the session list in display order.
func (o *Orchestrator) Sessions() []*storage.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*storage.Session, len(o.sessions))
	copy(out, o.sessions)
	return out
}

// Selected returns the currently selected session, or nil.
func (o *Orchestrator) Selected() *storage.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	if i := o.indexOf(o.selectedID); i >= 0 {
		return o.sessions[i]
	}
	return nil
}

// Settings returns a copy of the live settings.
func (o *Orchestrator) Settings() *storage.Settings {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.settings == nil {
		return nil
	}
	return o.settings.Clone()
}

// Mode returns the facade's current storage mode.
func (o *Orchestrator) Mode() storage.Mode {
	return o.store.Mode()
}

// DirectoryRoot returns the active directory root when directory mode is
// active and permitted, for callers that watch the tree for external changes.
func (o *Orchestrator) DirectoryRoot() (string, bool) {
	return o.store.DirectoryRoot()
}

// NewSession prepends a fresh empty session and selects it.
func (o *Orchestrator) NewSession(ctx context.Context) *storage.Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.createSessionLocked(ctx)
}

func (o *Orchestrator) createSessionLocked(ctx context.Context) *storage.Session {
	session := &storage.Session{
		ID:          uuid.NewString(),
		Title:       defaultSessionTitle,
		Messages:    []storage.Message{},
		LastUpdated: time.Now().UnixMilli(),
	}

	o.sessions = append([]*storage.Session{session}, o.sessions...)
	o.selectedID = session.ID
	o.persistSessionLocked(ctx, session)
	o.persistSelectedLocked(ctx)
	return session
}

// Select makes a session current. Selection does not mutate persisted
// session state. If the session's document payload is not resident (lazy
// in embedded mode, or evicted), it is fetched by id before the session is
// exposed as ready; a missing payload degrades to "document not loaded".
func (o *Orchestrator) Select(ctx context.Context, id string) (*storage.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := o.indexOf(id)
	if i < 0 {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	session := o.sessions[i]
	o.selectedID = id
	o.persistSelectedLocked(ctx)

	if session.HasDocument() && session.DocumentData == nil {
		data, err := o.store.LoadDocument(ctx, id)
		switch {
		case err == nil:
			session.DocumentData = data
		case errors.Is(err, storage.ErrNotFound):
			log.Printf("Document payload for session %s not loaded; re-upload required", id)
		default:
			log.Printf("Failed to load document for session %s: %v", id, err)
		}
	}

	return session, nil
}

// AppendMessage adds a message to a session and persists the mutation.
func (o *Orchestrator) AppendMessage(ctx context.Context, sessionID string, role storage.Role, content string, attachments []storage.MessageAttachment) (*storage.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := o.indexOf(sessionID)
	if i < 0 {
		return nil, fmt.Errorf("session not found: %s", sessionID)
	}
	session := o.sessions[i]

	msg := storage.Message{
		ID:          uuid.NewString(),
		Role:        role,
		Content:     content,
		Timestamp:   time.Now().UnixMilli(),
		Attachments: attachments,
	}
	session.Messages = append(session.Messages, msg)

	if session.Title == defaultSessionTitle && role == storage.RoleUser && content != "" {
		session.Title = deriveTitle(content)
	}

	o.touch(session)
	o.persistSessionLocked(ctx, session)
	return &session.Messages[len(session.Messages)-1], nil
}

// EditModelMessage replaces a model message's content in place.
func (o *Orchestrator) EditModelMessage(ctx context.Context, sessionID, messageID, content string) error {
	return o.editMessage(ctx, sessionID, messageID, content, storage.RoleModel, false)
}

// EditUserMessage replaces a user message's content and truncates every
// later message, since the conversation after the edit point is stale.
func (o *Orchestrator) EditUserMessage(ctx context.Context, sessionID, messageID, content string) error {
	return o.editMessage(ctx, sessionID, messageID, content, storage.RoleUser, true)
}

func (o *Orchestrator) editMessage(ctx context.Context, sessionID, messageID, content string, wantRole storage.Role, truncate bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := o.indexOf(sessionID)
	if i < 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	session := o.sessions[i]

	for j := range session.Messages {
		if session.Messages[j].ID != messageID {
			continue
		}
		if session.Messages[j].Role != wantRole {
			return fmt.Errorf("message %s has role %s, cannot edit as %s", messageID, session.Messages[j].Role, wantRole)
		}
		session.Messages[j].Content = content
		session.Messages[j].Timestamp = time.Now().UnixMilli()
		if truncate {
			session.Messages = session.Messages[:j+1]
		}
		o.touch(session)
		o.persistSessionLocked(ctx, session)
		return nil
	}

	return fmt.Errorf("message not found: %s", messageID)
}

// AttachDocument attaches or replaces a session's document payload. The
// payload is persisted regardless of mode.
func (o *Orchestrator) AttachDocument(ctx context.Context, sessionID, name string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := o.indexOf(sessionID)
	if i < 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	session := o.sessions[i]

	session.DocumentName = name
	session.DocumentData = data
	if session.Title == defaultSessionTitle && name != "" {
		session.Title = name
	}
	o.touch(session)

	if err := o.store.SaveDocument(ctx, session); err != nil {
		log.Printf("Failed to persist document for session %s: %v", sessionID, err)
	}
	o.persistSessionLocked(ctx, session)
	return nil
}

// SetSummary sets a session's derived summary.
func (o *Orchestrator) SetSummary(ctx context.Context, sessionID, summary string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := o.indexOf(sessionID)
	if i < 0 {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	session := o.sessions[i]
	session.Summary = summary
	o.touch(session)
	o.persistSessionLocked(ctx, session)
	return nil
}

// GenerateSummary asks the model for a summary of the session's document
// and stores it. The model call runs without the orchestrator lock held.
func (o *Orchestrator) GenerateSummary(ctx context.Context, sessionID string) (string, error) {
	if o.client == nil {
		return "", fmt.Errorf("no model client configured")
	}

	o.mu.Lock()
	i := o.indexOf(sessionID)
	if i < 0 {
		o.mu.Unlock()
		return "", fmt.Errorf("session not found: %s", sessionID)
	}
	session := o.sessions[i]
	docName := session.DocumentName
	docData := session.DocumentData
	o.mu.Unlock()

	var contextStr string
	if docData != nil {
		text, err := document.ExtractText(docData, summaryContextRunes)
		if err != nil {
			log.Printf("Text extraction failed for %s: %v", docName, err)
		}
		contextStr = text
	}

	prompt := []storage.Message{{
		ID:        uuid.NewString(),
		Role:      storage.RoleUser,
		Content:   "Summarize the attached document in a few sentences.",
		Timestamp: time.Now().UnixMilli(),
	}}

	summary, err := o.client.Complete(ctx, prompt, contextStr)
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}

	if err := o.SetSummary(ctx, sessionID, summary); err != nil {
		return "", err
	}
	return summary, nil
}

// DeleteSession removes a session from the list and deletes its persisted
// metadata and binary payload. If the deleted session was selected, the new
// first entry is selected, or a fresh empty session is created when the
// list is now empty.
func (o *Orchestrator) DeleteSession(ctx context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := o.indexOf(id)
	if i < 0 {
		return fmt.Errorf("session not found: %s", id)
	}

	o.sessions = append(o.sessions[:i], o.sessions[i+1:]...)

	if err := o.store.Delete(ctx, id, o.sessions); err != nil {
		log.Printf("Failed to delete persisted session %s: %v", id, err)
	}

	if o.selectedID == id {
		if len(o.sessions) > 0 {
			o.selectedID = o.sessions[0].ID
			o.persistSelectedLocked(ctx)
		} else {
			o.createSessionLocked(ctx)
		}
	}
	return nil
}

// UpdateSettings replaces the live settings and persists them. The storage
// mode field is controlled by SwitchMode, not here.
func (o *Orchestrator) UpdateSettings(ctx context.Context, settings *storage.Settings) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.settings != nil {
		settings.StorageMode = o.settings.StorageMode
		settings.DirectoryName = o.settings.DirectoryName
	}
	o.settings = settings.Clone()
	return o.store.SaveSettings(ctx, o.settings)
}

// SwitchMode migrates the active working set to the target backend. It
// returns (false, nil) when the user cancels the directory picker: a
// cancelled switch is a no-op, not an error, and leaves the mode and the
// session list unchanged.
func (o *Orchestrator) SwitchMode(ctx context.Context, target storage.StorageMode) (bool, error) {
	o.mu.Lock()
	live := o.settings.Clone()
	active := make([]*storage.Session, len(o.sessions))
	copy(active, o.sessions)
	o.mu.Unlock()

	// The picker prompt may block on user interaction; the orchestrator
	// lock is not held across it.
	res, err := o.store.SwitchMode(ctx, target, live, active)
	if err != nil {
		if errors.Is(err, storage.ErrCancelled) {
			return false, nil
		}
		return false, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.sessions = res.Sessions
	o.settings = res.Settings

	if o.indexOf(o.selectedID) < 0 {
		if len(o.sessions) > 0 {
			o.selectedID = o.sessions[0].ID
			o.persistSelectedLocked(ctx)
		} else {
			o.createSessionLocked(ctx)
		}
	}
	return true, nil
}

// RegrantDirectory attempts an explicit re-grant from the needs-permission
// state and adopts the reloaded directory contents on success.
func (o *Orchestrator) RegrantDirectory(ctx context.Context) error {
	sessions, err := o.store.Regrant(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.sessions = sessions
	if o.indexOf(o.selectedID) < 0 && len(o.sessions) > 0 {
		o.selectedID = o.sessions[0].ID
	}
	if len(o.sessions) == 0 {
		o.createSessionLocked(ctx)
	}
	return nil
}

// Reload re-reads the active backend, used after an external change hint
// from the directory watcher. A failed reload keeps the current list.
func (o *Orchestrator) Reload(ctx context.Context) error {
	sessions, err := o.store.Reload(ctx)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.sessions = sessions
	if o.indexOf(o.selectedID) < 0 && len(o.sessions) > 0 {
		o.selectedID = o.sessions[0].ID
	}
	return nil
}

// Export writes a backup of the current session list, document payloads
// stripped.
func (o *Orchestrator) Export(w io.Writer) error {
	return storage.ExportSessions(w, o.Sessions())
}

// Import appends sessions from a backup whose ids are not already present.
// Import is an embedded-mode operation.
func (o *Orchestrator) Import(ctx context.Context, r io.Reader) (int, error) {
	if o.store.Mode() != storage.ModeEmbedded {
		return 0, fmt.Errorf("import is only available in embedded storage mode")
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	added, _, err := storage.ImportSessions(r, o.sessions)
	if err != nil {
		return 0, err
	}
	if len(added) == 0 {
		return 0, nil
	}

	o.sessions = append(o.sessions, added...)
	o.persistSessionLocked(ctx, added[0])
	return len(added), nil
}

// touch bumps lastUpdated, keeping it strictly monotonic per mutation even
// under a coarse clock.
func (o *Orchestrator) touch(session *storage.Session) {
	now := time.Now().UnixMilli()
	if now <= session.LastUpdated {
		now = session.LastUpdated + 1
	}
	session.LastUpdated = now
}

func (o *Orchestrator) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, s := range o.sessions {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// persistSessionLocked writes one mutated session through the facade. A
// failure is a logged no-op: the in-memory state is not rolled back and the
// next successful write retries the full overwrite.
func (o *Orchestrator) persistSessionLocked(ctx context.Context, session *storage.Session) {
	if err := o.store.Save(ctx, session, o.sessions); err != nil {
		log.Printf("Failed to persist session %s: %v", session.ID, err)
	}
}

func (o *Orchestrator) persistSelectedLocked(ctx context.Context) {
	if err := o.store.SaveSelected(ctx, o.selectedID); err != nil {
		log.Printf("Failed to persist selected session id: %v", err)
	}
}

// deriveTitle builds a short session title from the first user message.
func deriveTitle(content string) string {
	const maxTitle = 48
	runes := []rune(content)
	if len(runes) > maxTitle {
		return string(runes[:maxTitle]) + "…"
	}
	return content
}
