package storage

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirectoryWatcher watches the sessions tree of a directory-mode root for
// external changes. The chosen directory is user-inspectable, so sessions
// can be added, renamed or deleted behind the application's back; the
// watcher coalesces such events into reload hints. It never writes.
type DirectoryWatcher struct {
	watcher *fsnotify.Watcher
	root    string

	debounceDelay time.Duration
	changes       chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

// NewDirectoryWatcher creates a watcher for the given root. Call Start to
// begin receiving hints on Changes.
func NewDirectoryWatcher(root string) (*DirectoryWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &DirectoryWatcher{
		watcher:       watcher,
		root:          root,
		debounceDelay: 500 * time.Millisecond,
		changes:       make(chan struct{}, 1),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}, nil
}

// Changes delivers at most one pending hint; receivers reload and drain.
func (w *DirectoryWatcher) Changes() <-chan struct{} {
	return w.changes
}

// Start begins watching the sessions tree.
func (w *DirectoryWatcher) Start() error {
	sessionsDir := filepath.Join(w.root, sessionsDirName)
	if err := w.watcher.Add(w.root); err != nil {
		return fmt.Errorf("failed to watch root directory: %w", err)
	}
	if err := w.addSessionDirs(sessionsDir); err != nil {
		return err
	}

	go w.processEvents()

	log.Printf("Directory watcher started for: %s", w.root)
	return nil
}

// addSessionDirs watches sessions/ and each session folder under it.
// fsnotify watches are not recursive.
func (w *DirectoryWatcher) addSessionDirs(sessionsDir string) error {
	if err := w.watcher.Add(sessionsDir); err != nil {
		// sessions/ may not exist yet; the root watch catches its creation.
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to watch sessions directory: %w", err)
	}

	entries, err := os.ReadDir(sessionsDir)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			if err := w.watcher.Add(filepath.Join(sessionsDir, entry.Name())); err != nil {
				log.Printf("Failed to watch session folder %q: %v", entry.Name(), err)
			}
		}
	}
	return nil
}

func (w *DirectoryWatcher) processEvents() {
	defer close(w.done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// Ignore our own temp files from atomic writes.
			if isTempArtifact(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.watcher.Add(event.Name); err != nil {
						log.Printf("Failed to watch new folder %q: %v", event.Name, err)
					}
				}
			}
			if timer == nil {
				timer = time.NewTimer(w.debounceDelay)
				timerC = timer.C
			} else {
				timer.Reset(w.debounceDelay)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			select {
			case w.changes <- struct{}{}:
			default:
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("Directory watcher error: %v", err)
		}
	}
}

// Close stops the watcher. Closing twice is safe.
func (w *DirectoryWatcher) Close() {
	w.closeOnce.Do(func() {
		w.cancel()
		w.watcher.Close()
		<-w.done
	})
}

func isTempArtifact(name string) bool {
	base := filepath.Base(name)
	return len(base) > 5 && base[:5] == ".tmp-" ||
		len(base) > 15 && base[:15] == ".docchat-probe-"
}
