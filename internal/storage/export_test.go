package storage

import (
	"bytes"
	"strings"
	"testing"
)

func TestExportSessions_StripsDocumentPayload(t *testing.T) {
	sessions := []*Session{
		{
			ID:           "s1",
			Title:        "With document",
			DocumentName: "report.pdf",
			DocumentData: []byte("SECRET-PDF-BYTES"),
			Messages: []Message{
				{ID: "m1", Role: RoleUser, Content: "summarize this", Timestamp: 1,
					Attachments: []MessageAttachment{{Type: "image", Data: "aW1n"}}},
			},
			LastUpdated: 7,
		},
	}

	var buf bytes.Buffer
	if err := ExportSessions(&buf, sessions); err != nil {
		t.Fatalf("ExportSessions failed: %v", err)
	}

	out := buf.String()
	if strings.Contains(out, "SECRET-PDF-BYTES") {
		t.Error("backup must not contain the binary payload")
	}
	if !strings.Contains(out, "report.pdf") {
		t.Error("backup should keep the document name")
	}
	if !strings.Contains(out, "aW1n") {
		t.Error("backup should keep message attachments")
	}

	// The caller's session is untouched.
	if sessions[0].DocumentData == nil {
		t.Error("export must not mutate the source session")
	}
}

func TestImportSessions_RoundTripAndDedupe(t *testing.T) {
	exported := []*Session{
		{ID: "old", Title: "Already here", LastUpdated: 1},
		{ID: "new", Title: "Fresh", LastUpdated: 2, Messages: []Message{
			{ID: "m", Role: RoleModel, Content: "hi", Timestamp: 3},
		}},
	}

	var buf bytes.Buffer
	if err := ExportSessions(&buf, exported); err != nil {
		t.Fatal(err)
	}

	existing := []*Session{{ID: "old", Title: "Local copy", LastUpdated: 99}}
	added, skipped, err := ImportSessions(&buf, existing)
	if err != nil {
		t.Fatalf("ImportSessions failed: %v", err)
	}

	if len(added) != 1 || added[0].ID != "new" {
		t.Fatalf("expected only the new session, got %+v", added)
	}
	if added[0].Messages[0].Content != "hi" {
		t.Errorf("message content lost in round trip: %+v", added[0].Messages)
	}
	if skipped != 1 {
		t.Errorf("expected 1 skipped duplicate, got %d", skipped)
	}
}

func TestImportSessions_RejectsGarbage(t *testing.T) {
	if _, _, err := ImportSessions(strings.NewReader("{not an array"), nil); err == nil {
		t.Fatal("expected a parse error")
	}

	// Entries without an id and duplicate ids within the backup itself are
	// skipped rather than failing the whole import.
	backup := `[{"id":"","title":"anon"},{"id":"a","title":"first"},{"id":"a","title":"again"}]`
	added, skipped, err := ImportSessions(strings.NewReader(backup), nil)
	if err != nil {
		t.Fatalf("ImportSessions failed: %v", err)
	}
	if len(added) != 1 || added[0].Title != "first" {
		t.Fatalf("expected one valid session, got %+v", added)
	}
	if skipped != 2 {
		t.Errorf("expected 2 skipped, got %d", skipped)
	}
}
