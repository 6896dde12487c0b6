package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"docchat/internal/storage"
)

// pickedDir is set by the --dir flag on 'mode directory' to choose a
// directory without an interactive prompt.
var pickedDir string

// cliDirectoryPicker prompts for a directory path on the terminal. An empty
// answer cancels; a non-interactive stdin means the environment provides no
// picker at all.
type cliDirectoryPicker struct{}

func newDirectoryPicker() storage.DirectoryPicker {
	return &cliDirectoryPicker{}
}

func (p *cliDirectoryPicker) PickDirectory(ctx context.Context) (storage.DirectoryHandle, error) {
	if pickedDir != "" {
		return handleForPath(pickedDir)
	}

	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return storage.DirectoryHandle{}, storage.ErrUnsupported
	}

	fmt.Fprint(os.Stderr, "Directory to store sessions in (empty to cancel): ")
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return storage.DirectoryHandle{}, storage.ErrCancelled
	}

	path := strings.TrimSpace(line)
	if path == "" {
		return storage.DirectoryHandle{}, storage.ErrCancelled
	}
	return handleForPath(path)
}

func handleForPath(path string) (storage.DirectoryHandle, error) {
	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return storage.DirectoryHandle{}, fmt.Errorf("invalid directory path: %w", err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return storage.DirectoryHandle{}, fmt.Errorf("cannot use directory %s: %w", abs, err)
	}

	return storage.DirectoryHandle{
		Path:        abs,
		DisplayName: filepath.Base(abs),
		GrantedAt:   time.Now().UnixMilli(),
	}, nil
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// cliGrantPrompter asks the user to confirm re-granting access to a
// previously chosen directory.
type cliGrantPrompter struct{}

func newGrantPrompter() storage.GrantPrompter {
	return &cliGrantPrompter{}
}

func (p *cliGrantPrompter) RequestAccess(ctx context.Context, handle storage.DirectoryHandle, wantWrite bool) (bool, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return false, nil
	}

	fmt.Fprintf(os.Stderr, "Re-grant access to %s (%s)? [y/N]: ", handle.DisplayName, handle.Path)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, nil
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
