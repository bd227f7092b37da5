package watch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type fakeExts struct{}

func (fakeExts) Supported(ext string) bool {
	switch ext {
	case ".txt", ".pdf":
		return true
	}
	return false
}

// recorder collects dispatched paths.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) dispatch(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func (r *recorder) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatcher_PreExistingFilesNotDispatched(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "old.txt"), "already here")

	rec := &recorder{}
	w := New(fakeExts{}, rec.dispatch, testLogger())
	if err := w.Start(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	newPath := filepath.Join(dir, "new.txt")
	writeFile(t, newPath, "fresh arrival")

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return len(rec.seen()) == 1
	}, "expected exactly one dispatch")

	got := rec.seen()
	if len(got) != 1 || got[0] != newPath {
		t.Fatalf("dispatched = %v, want [%s]", got, newPath)
	}
}

func TestWatcher_IgnoresTemporaryAndUnsupported(t *testing.T) {
	dir := t.TempDir()

	rec := &recorder{}
	w := New(fakeExts{}, rec.dispatch, testLogger())
	if err := w.Start(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	writeFile(t, filepath.Join(dir, ".hidden.txt"), "dotfile")
	writeFile(t, filepath.Join(dir, "report.txt.crdownload"), "partial")
	writeFile(t, filepath.Join(dir, "~$doc.txt"), "office lock")
	writeFile(t, filepath.Join(dir, "archive.zip"), "unsupported ext")
	wanted := filepath.Join(dir, "report.txt")
	writeFile(t, wanted, "keep this one")

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return len(rec.seen()) >= 1
	}, "expected the eligible file to be dispatched")

	// Give ineligible files a chance to be (wrongly) picked up too.
	time.Sleep(200 * time.Millisecond)
	got := rec.seen()
	if len(got) != 1 || got[0] != wanted {
		t.Fatalf("dispatched = %v, want [%s]", got, wanted)
	}
}

func TestWatcher_RescanIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "seed.txt"), "x")

	rec := &recorder{}
	w := New(fakeExts{}, rec.dispatch, testLogger())
	if err := w.Start(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	ctx := context.Background()
	w.rescan(ctx, dir)
	w.rescan(ctx, dir)

	if got := rec.seen(); len(got) != 0 {
		t.Fatalf("unchanged directory dispatched %v", got)
	}

	newPath := filepath.Join(dir, "added.txt")
	writeFile(t, newPath, "x")
	w.rescan(ctx, dir)
	w.rescan(ctx, dir)

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return len(rec.seen()) >= 1
	}, "expected one dispatch for the added file")
	time.Sleep(200 * time.Millisecond)
	got := rec.seen()
	if len(got) != 1 || got[0] != newPath {
		t.Fatalf("dispatched = %v, want [%s]", got, newPath)
	}
}

func TestWatcher_AwaitStableRechecksModTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "growing.txt")
	writeFile(t, path, "partial")

	// Keep the file looking freshly written for a bit longer than one delay,
	// so a single fixed sleep would return while it is still changing.
	stop := make(chan struct{})
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		end := time.Now().Add(stabilityDelay + 200*time.Millisecond)
		for time.Now().Before(end) {
			now := time.Now()
			if err := os.Chtimes(path, now, now); err != nil {
				return
			}
			time.Sleep(20 * time.Millisecond)
		}
		close(stop)
	}()

	w := New(fakeExts{}, func(string) {}, testLogger())
	w.awaitStable(context.Background(), path)

	select {
	case <-stop:
	default:
		t.Fatal("awaitStable returned while the file was still being touched")
	}
	writer.Wait()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if time.Since(info.ModTime()) < stabilityWindow {
		t.Fatalf("returned %v after last write, want at least %v",
			time.Since(info.ModTime()), stabilityWindow)
	}
}

func TestWatcher_StartErrors(t *testing.T) {
	rec := &recorder{}
	w := New(fakeExts{}, rec.dispatch, testLogger())

	if err := w.Start(context.Background(), filepath.Join(t.TempDir(), "missing")); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("err = %v, want ErrInvalidPath", err)
	}

	file := filepath.Join(t.TempDir(), "plain.txt")
	writeFile(t, file, "not a directory")
	if err := w.Start(context.Background(), file); !errors.Is(err, ErrInvalidPath) {
		t.Fatalf("err = %v, want ErrInvalidPath", err)
	}

	dir := t.TempDir()
	if err := w.Start(context.Background(), dir); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.Start(context.Background(), dir); !errors.Is(err, ErrAlreadyMonitoring) {
		t.Fatalf("err = %v, want ErrAlreadyMonitoring", err)
	}
}

func TestWatcher_StopAndRestart(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()

	rec := &recorder{}
	w := New(fakeExts{}, rec.dispatch, testLogger())
	if err := w.Start(context.Background(), first); err != nil {
		t.Fatal(err)
	}
	if !w.Active() || w.Path() != first {
		t.Fatalf("active = %v path = %q", w.Active(), w.Path())
	}

	w.Stop()
	if w.Active() || w.Path() != "" {
		t.Fatal("watcher still reports active after Stop")
	}
	// Stop is safe to call twice.
	w.Stop()

	if err := w.Restart(context.Background(), second); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if w.Path() != second {
		t.Fatalf("path = %q, want %q", w.Path(), second)
	}

	newPath := filepath.Join(second, "after-restart.txt")
	writeFile(t, newPath, "x")
	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		got := rec.seen()
		return len(got) == 1 && got[0] == newPath
	}, "expected dispatch after restart")
}
