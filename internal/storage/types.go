package storage

import (
	"errors"
)

// StorageMode selects which backend is authoritative for reads and writes.
type StorageMode string

const (
	StorageModeEmbedded  StorageMode = "embedded"
	StorageModeDirectory StorageMode = "directory"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser   Role = "user"
	RoleModel  Role = "model"
	RoleSystem Role = "system"
)

// MessageAttachment is an inline attachment carried by a message.
// Data holds the base64-encoded payload.
type MessageAttachment struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

// Message represents a single chat message
type Message struct {
	ID          string              `json:"id"`
	Role        Role                `json:"role"`
	Content     string              `json:"content"`
	Timestamp   int64               `json:"timestamp"`
	Attachments []MessageAttachment `json:"attachments,omitempty"`
}

// Session represents a chat session: one document plus its transcript and
// derived summary. DocumentData is the verbatim uploaded PDF; it is never
// serialized as part of the session JSON and is persisted separately.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Messages     []Message `json:"messages"`
	DocumentName string    `json:"documentName,omitempty"`
	Summary      string    `json:"summary,omitempty"`
	LastUpdated  int64     `json:"lastUpdated"`

	DocumentData []byte `json:"-"`
}

// HasDocument reports whether a document has been attached to the session,
// whether or not its payload is currently resident in memory.
func (s *Session) HasDocument() bool {
	return s.DocumentName != ""
}

// Clone returns a deep copy of the session. The document payload slice is
// shared; payloads are treated as immutable once attached.
func (s *Session) Clone() *Session {
	c := *s
	c.Messages = make([]Message, len(s.Messages))
	copy(c.Messages, s.Messages)
	return &c
}

// ImageConfig defines image generation configuration
type ImageConfig struct {
	Enabled bool   `json:"enabled"`
	Model   string `json:"model,omitempty"`
	Size    string `json:"size,omitempty"`
}

// Settings is the single live application settings object. JSON field names
// are part of the published settings.json format and must not change.
type Settings struct {
	Provider      string      `json:"provider"`
	APIKey        string      `json:"apiKey,omitempty"`
	BaseURL       string      `json:"baseUrl,omitempty"`
	Model         string      `json:"model"`
	Temperature   float64     `json:"temperature"`
	StorageMode   StorageMode `json:"storageMode"`
	DirectoryName string      `json:"directoryName,omitempty"`
	Image         ImageConfig `json:"imageGeneration"`
}

// Clone returns a copy of the settings.
func (s *Settings) Clone() *Settings {
	c := *s
	return &c
}

// DirectoryHandle is an opaque record of a previously user-granted local
// directory. Holding a handle implies nothing about current permission;
// permission must be re-verified each time the handle is used after a
// process restart.
type DirectoryHandle struct {
	Path        string `json:"path"`
	DisplayName string `json:"displayName"`
	GrantedAt   int64  `json:"grantedAt"`
}

var (
	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("storage: not found")

	// ErrCancelled indicates the user cancelled an interactive operation.
	// It is a first-class non-error outcome, not a failure.
	ErrCancelled = errors.New("storage: cancelled by user")

	// ErrUnsupported indicates the hosting environment does not provide the
	// capability at all (no interactive picker available).
	ErrUnsupported = errors.New("storage: directory access not supported in this environment")

	// ErrPermissionDenied indicates access to the granted directory could
	// not be verified. Recoverable via an explicit re-grant.
	ErrPermissionDenied = errors.New("storage: directory permission denied")
)
