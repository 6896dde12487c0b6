package storage

import (
	"encoding/json"
	"fmt"
	"io"
)

// ExportSessions writes a backup of the given sessions as a single JSON
// array. Binary document payloads are stripped; message attachments are
// already JSON-safe and are kept.
func ExportSessions(w io.Writer, sessions []*Session) error {
	stripped := make([]*Session, 0, len(sessions))
	for _, s := range sessions {
		c := s.Clone()
		c.DocumentData = nil
		stripped = append(stripped, c)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(stripped); err != nil {
		return fmt.Errorf("failed to encode backup: %w", err)
	}
	return nil
}

// ImportSessions parses a backup produced by ExportSessions and returns the
// sessions whose ids are not already present in existing. Sessions with a
// known id are skipped, never overwritten.
func ImportSessions(r io.Reader, existing []*Session) (added []*Session, skipped int, err error) {
	var imported []*Session
	if err := json.NewDecoder(r).Decode(&imported); err != nil {
		return nil, 0, fmt.Errorf("failed to parse backup: %w", err)
	}

	known := make(map[string]struct{}, len(existing))
	for _, s := range existing {
		known[s.ID] = struct{}{}
	}

	for _, s := range imported {
		if s == nil || s.ID == "" {
			skipped++
			continue
		}
		if _, dup := known[s.ID]; dup {
			skipped++
			continue
		}
		known[s.ID] = struct{}{}
		added = append(added, s)
	}

	return added, skipped, nil
}
