// Package watchcat is a supplemental reference backend, not part of
// CORE: it watches a workspace root with fsnotify and turns filesystem
// events into workspace/didChangeWatchedFiles notifications pushed
// through an rpcclient.Client, demonstrating a real client-handle
// consumer running alongside a Dispatcher.
//
// Adapted from the teacher's internal/daemon.FileWatcher, which walked a
// project tree to decide when to rebuild clangd's compilation database.
// The walk-and-debounce machinery is unchanged; what changed is what
// happens on a debounced batch of changes — instead of poking clangd's
// build system, it calls Client.Notify with workspace/didChangeWatchedFiles.
package watchcat

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/xerrors"

	"github.com/firi/golsp/lspcatalog"
	"github.com/firi/golsp/rpcclient"
)

// skippedDirs mirrors the teacher's build-output denylist; it no longer
// needs to be C++-specific since watchcat reports any file event, not
// just compilable sources.
var skippedDirs = map[string]bool{
	"build": true, "out": true, "bin": true, "obj": true,
	"node_modules": true, ".git": true,
}

// Watcher pushes debounced filesystem events to a peer as
// workspace/didChangeWatchedFiles notifications.
type Watcher struct {
	fs     *fsnotify.Watcher
	root   string
	client *rpcclient.Client
	logger *zap.Logger

	debounce time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	pending map[string]lspcatalog.FileChangeType

	stop chan struct{}
}

// New builds a Watcher rooted at root, recursively watching every
// subdirectory except hidden, build-output and VCS directories. Events are
// debounced by debounce before being pushed through client.
func New(root string, client *rpcclient.Client, logger *zap.Logger, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, xerrors.Errorf("watchcat: create fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w := &Watcher{
		fs:       fw,
		root:     root,
		client:   client,
		logger:   logger,
		debounce: debounce,
		pending:  make(map[string]lspcatalog.FileChangeType),
		stop:     make(chan struct{}),
	}

	if err := w.addRecursive(root); err != nil {
		fw.Close()
		return nil, err
	}

	return w, nil
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if path != w.root && (strings.HasPrefix(base, ".") || skippedDirs[base]) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
}

// Run processes filesystem events until ctx is done or Stop is called.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("fsnotify error", zap.Error(err))
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
		}
	}

	changeType, ok := classify(event.Op)
	if !ok {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = changeType
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
	w.mu.Unlock()
}

func classify(op fsnotify.Op) (lspcatalog.FileChangeType, bool) {
	switch {
	case op&fsnotify.Create != 0:
		return lspcatalog.FileChangeCreated, true
	case op&fsnotify.Write != 0:
		return lspcatalog.FileChangeChanged, true
	case op&fsnotify.Remove != 0, op&fsnotify.Rename != 0:
		return lspcatalog.FileChangeDeleted, true
	default:
		return 0, false
	}
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	changes := make([]lspcatalog.FileEvent, 0, len(w.pending))
	for path, kind := range w.pending {
		changes = append(changes, lspcatalog.FileEvent{URI: "file://" + path, Type: kind})
	}
	w.pending = make(map[string]lspcatalog.FileChangeType)
	w.mu.Unlock()

	if err := w.client.Notify(context.Background(), lspcatalog.MethodDidChangeWatchedFiles, lspcatalog.DidChangeWatchedFilesParams{Changes: changes}); err != nil {
		w.logger.Warn("failed to push file change notification", zap.Error(err))
	}
}

// Stop stops watching and releases the underlying fsnotify resources.
func (w *Watcher) Stop() error {
	close(w.stop)
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	return w.fs.Close()
}
