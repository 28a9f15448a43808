package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/standardbeagle/scopegraph/internal/pipeline"
)

func TestShouldProcessFiltersByInclude(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, func(rel string) bool { return filepath.Ext(rel) == ".cpp" }, time.Millisecond, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.fsw.Close()

	if !w.shouldProcess(filepath.Join(dir, "a.cpp")) {
		t.Error("expected a .cpp file to be processed")
	}
	if w.shouldProcess(filepath.Join(dir, "a.txt")) {
		t.Error("expected a .txt file to be excluded")
	}
}

func TestShouldProcessWithNilIncludeAcceptsEverything(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil, time.Millisecond, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.fsw.Close()

	if !w.shouldProcess(filepath.Join(dir, "anything.bin")) {
		t.Error("expected nil include to accept every path")
	}
}

func TestAddEventCoalescesToLatestKind(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil, time.Hour, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.fsw.Close()

	path := filepath.Join(dir, "a.cpp")
	w.addEvent(path, pipeline.Added)
	w.addEvent(path, pipeline.Changed)

	w.mu.Lock()
	kind, ok := w.events[path]
	w.mu.Unlock()
	if !ok || kind != pipeline.Changed {
		t.Fatalf("expected the latest event (Changed) to win, got %v, ok=%v", kind, ok)
	}
}

func TestFlushEmitsAndClearsPendingEvents(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil, time.Hour, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.fsw.Close()

	var mu sync.Mutex
	var got []pipeline.FileEvent
	w.emit = func(ev pipeline.FileEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}

	path := filepath.Join(dir, "a.cpp")
	w.mu.Lock()
	w.events[path] = pipeline.Added
	w.mu.Unlock()

	w.flush()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0].Path != path || got[0].Kind != pipeline.Added {
		t.Fatalf("expected one Added event for %s, got %+v", path, got)
	}
	w.mu.Lock()
	remaining := len(w.events)
	w.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected flush to clear pending events, got %d remaining", remaining)
	}
}

func TestScanDetectsAddedChangedAndDeleted(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.cpp")
	remove := filepath.Join(dir, "remove.cpp")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(remove, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	w, err := New(dir, nil, 5*time.Millisecond, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.fsw.Close()

	var mu sync.Mutex
	var got []pipeline.FileEvent
	w.emit = func(ev pipeline.FileEvent) {
		mu.Lock()
		got = append(got, ev)
		mu.Unlock()
	}

	w.seedKnown()

	if err := os.Remove(remove); err != nil {
		t.Fatal(err)
	}
	added := filepath.Join(dir, "added.cpp")
	if err := os.WriteFile(added, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(keep, future, future); err != nil {
		t.Fatal(err)
	}

	w.scan()
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	byPath := map[string]pipeline.EventKind{}
	seen := map[string]bool{}
	for _, ev := range got {
		byPath[ev.Path] = ev.Kind
		seen[ev.Path] = true
	}
	if !seen[added] || byPath[added] != pipeline.Added {
		t.Errorf("expected Added for %s, got %v (seen=%v)", added, byPath[added], seen[added])
	}
	if !seen[keep] || byPath[keep] != pipeline.Changed {
		t.Errorf("expected Changed for %s (mtime bumped), got %v (seen=%v)", keep, byPath[keep], seen[keep])
	}
	if !seen[remove] || byPath[remove] != pipeline.Deleted {
		t.Errorf("expected Deleted for %s, got %v (seen=%v)", remove, byPath[remove], seen[remove])
	}
}

func TestStopWaitsForIdleAndLeavesStateStopped(t *testing.T) {
	dir := t.TempDir()
	w, err := New(dir, nil, time.Millisecond, time.Hour)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := w.Start(context.Background(), func(pipeline.FileEvent) {}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if w.state.Load() != int32(stateStopped) {
		t.Fatalf("expected state to be stopped after Stop, got %d", w.state.Load())
	}
}
