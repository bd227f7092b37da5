// Package watch detects newly-appearing eligible files in the inbox
// directory. Detection is diff-based: the watcher keeps the set of eligible
// files it has seen, and only names that enter that set after the initial
// scan are dispatched. Files already present at startup are never processed.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Monitoring failures are typed so callers can distinguish configuration
// problems from platform faults.
var (
	ErrInvalidPath       = errors.New("invalid path")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrMonitoringFailed  = errors.New("monitoring failed")
	ErrAlreadyMonitoring = errors.New("already monitoring")
)

// DispatchFunc receives the absolute path of a newly detected eligible file.
// It is called from the watcher's event goroutine.
type DispatchFunc func(path string)

// ExtensionChecker reports whether files with a given extension are worth
// dispatching. The content extractor satisfies this.
type ExtensionChecker interface {
	Supported(ext string) bool
}

// stabilityWindow is how recent a file's modification may be before dispatch
// is delayed for a re-check, to avoid reading a file mid-write.
const (
	stabilityWindow  = 100 * time.Millisecond
	stabilityDelay   = 250 * time.Millisecond
	stabilityRetries = 8
)

// Watcher monitors one directory. Idle -> Monitoring -> Idle.
type Watcher struct {
	exts     ExtensionChecker
	dispatch DispatchFunc
	logger   *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	path     string
	baseline map[string]struct{}
}

// New creates an idle watcher. Detected files go to dispatch.
func New(exts ExtensionChecker, dispatch DispatchFunc, logger *slog.Logger) *Watcher {
	return &Watcher{exts: exts, dispatch: dispatch, logger: logger}
}

// Active reports whether the watcher is currently monitoring.
func (w *Watcher) Active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cancel != nil
}

// Path returns the directory being monitored, or "" when idle.
func (w *Watcher) Path() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.path
}

// Start begins monitoring dir. It fails with ErrInvalidPath when dir is
// missing or not a directory, ErrPermissionDenied when it cannot be listed,
// and ErrAlreadyMonitoring when the watcher is active. The initial scan
// records the current eligible set as the baseline without dispatching.
func (w *Watcher) Start(ctx context.Context, dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return fmt.Errorf("watch: %s: %w", w.path, ErrAlreadyMonitoring)
	}

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("watch: %s: %w", dir, ErrInvalidPath)
	}
	baseline, err := w.eligibleSet(dir)
	if err != nil {
		if os.IsPermission(err) {
			return fmt.Errorf("watch: %s: %w", dir, ErrPermissionDenied)
		}
		return fmt.Errorf("watch: %s: %v: %w", dir, err, ErrMonitoringFailed)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch: %v: %w", err, ErrMonitoringFailed)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		if os.IsPermission(err) {
			return fmt.Errorf("watch: %s: %w", dir, ErrPermissionDenied)
		}
		return fmt.Errorf("watch: %s: %v: %w", dir, err, ErrMonitoringFailed)
	}

	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.path = dir
	w.baseline = baseline

	w.logger.Info("watch: started",
		slog.String("dir", dir),
		slog.Int("baseline", len(baseline)))

	go w.run(runCtx, fsw, dir, w.done)
	return nil
}

// Stop cancels monitoring and clears the baseline. It blocks until the event
// goroutine has exited; a file already dispatched keeps processing.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.cancel = nil
	w.done = nil
	w.path = ""
	w.baseline = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		w.logger.Info("watch: stopped")
	}
}

// Restart stops and starts against a new (or the same) path. Used after
// configuration changes.
func (w *Watcher) Restart(ctx context.Context, dir string) error {
	w.Stop()
	return w.Start(ctx, dir)
}

// run owns the event loop until ctx is cancelled.
func (w *Watcher) run(ctx context.Context, fsw *fsnotify.Watcher, dir string, done chan struct{}) {
	defer close(done)
	defer fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return

		case _, ok := <-fsw.Events:
			if !ok {
				return
			}
			// Any event may change the eligible set: re-list and diff.
			w.rescan(ctx, dir)

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watch: error", slog.String("error", err.Error()))
		}
	}
}

// rescan recomputes the eligible set, dispatches names that were absent from
// the baseline, and replaces the baseline. Running it twice against an
// unchanged directory dispatches nothing.
func (w *Watcher) rescan(ctx context.Context, dir string) {
	current, err := w.eligibleSet(dir)
	if err != nil {
		w.logger.Warn("watch: rescan failed", slog.String("error", err.Error()))
		return
	}

	w.mu.Lock()
	if w.baseline == nil {
		// Stopped concurrently.
		w.mu.Unlock()
		return
	}
	var added []string
	for p := range current {
		if _, ok := w.baseline[p]; !ok {
			added = append(added, p)
		}
	}
	w.baseline = current
	w.mu.Unlock()

	for _, p := range added {
		if ctx.Err() != nil {
			return
		}
		w.awaitStable(ctx, p)
		w.logger.Debug("watch: detected", slog.String("path", p))
		w.dispatch(p)
	}
}

// awaitStable delays dispatch of a file whose modification time is extremely
// recent, so a file still being written is not read mid-stream. The mtime is
// re-checked after each delay; a file that keeps changing is dispatched anyway
// once the retry budget runs out.
func (w *Watcher) awaitStable(ctx context.Context, path string) {
	for i := 0; i < stabilityRetries; i++ {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if time.Since(info.ModTime()) >= stabilityWindow {
			return
		}
		select {
		case <-time.After(stabilityDelay):
		case <-ctx.Done():
			return
		}
	}
	w.logger.Warn("watch: file still changing, dispatching anyway",
		slog.String("path", path))
}

// eligibleSet lists dir and returns the absolute paths of regular files with
// a supported extension that are not temporary artifacts.
func (w *Watcher) eligibleSet(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if isTemporary(name) {
			continue
		}
		if !w.exts.Supported(filepath.Ext(name)) {
			continue
		}
		out[filepath.Join(dir, name)] = struct{}{}
	}
	return out, nil
}

// temporarySuffixes marks partial and in-progress files produced by editors,
// browsers, and sync clients.
var temporarySuffixes = []string{
	".tmp", ".temp", ".part", ".partial", ".crdownload", ".download", ".swp",
}

// isTemporary reports whether name looks like an editor lock file, a system
// artifact, or an incomplete download.
func isTemporary(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".#") {
		return true
	}
	switch name {
	case "Thumbs.db", "desktop.ini":
		return true
	}
	lower := strings.ToLower(name)
	for _, suffix := range temporarySuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
