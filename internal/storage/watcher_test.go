package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func waitForChange(t *testing.T, w *DirectoryWatcher, timeout time.Duration) bool {
	t.Helper()
	select {
	case <-w.Changes():
		return true
	case <-time.After(timeout):
		return false
	}
}

func TestDirectoryWatcher_SignalsExternalChange(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dir := NewDirectoryStore(root)
	if err := dir.WriteSession(ctx, testSession("a", "A", 1)); err != nil {
		t.Fatal(err)
	}

	w, err := NewDirectoryWatcher(root)
	if err != nil {
		t.Fatalf("NewDirectoryWatcher failed: %v", err)
	}
	defer w.Close()
	if err := w.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// An external tool dropping a new session folder must produce a hint.
	folder := filepath.Join(root, "sessions", "external")
	if err := os.MkdirAll(folder, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(folder, "chat.json"), []byte(`{"id":"external"}`), 0644); err != nil {
		t.Fatal(err)
	}

	if !waitForChange(t, w, 3*time.Second) {
		t.Fatal("expected a change hint after an external write")
	}
}

func TestDirectoryWatcher_CoalescesBursts(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	dir := NewDirectoryStore(root)
	if err := dir.WriteSession(ctx, testSession("a", "A", 1)); err != nil {
		t.Fatal(err)
	}

	w, err := NewDirectoryWatcher(root)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()
	w.debounceDelay = 100 * time.Millisecond
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 10; i++ {
		if err := os.WriteFile(filepath.Join(root, "sessions", "a", "chat.json"), []byte(`{"id":"a"}`), 0644); err != nil {
			t.Fatal(err)
		}
	}

	if !waitForChange(t, w, 3*time.Second) {
		t.Fatal("expected a hint for the burst")
	}

	// The burst collapses into a single hint; the channel stays quiet after.
	if waitForChange(t, w, 300*time.Millisecond) {
		t.Error("expected the burst to coalesce into one hint")
	}
}

func TestDirectoryWatcher_CloseTwiceIsSafe(t *testing.T) {
	w, err := NewDirectoryWatcher(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Start(); err != nil {
		t.Fatal(err)
	}
	w.Close()
	w.Close()
}

func TestIsTempArtifact(t *testing.T) {
	cases := []struct {
		name string
		want bool
	}{
		{"/root/sessions/a/.tmp-123456", true},
		{"/root/.docchat-probe-987", true},
		{"/root/sessions/a/chat.json", false},
		{"/root/settings.json", false},
		{"/root/sessions/a/document.pdf", false},
	}
	for _, tc := range cases {
		if got := isTempArtifact(tc.name); got != tc.want {
			t.Errorf("isTempArtifact(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
