package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/standardbeagle/scopegraph/internal/langparse"
	"github.com/standardbeagle/scopegraph/internal/obslog"
	"github.com/standardbeagle/scopegraph/internal/scope"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testLang scope.Language = "Test"

// stubParser produces one TypeDefinition named after the file's base name,
// so tests can assert on merge/removal without a real XML fixture.
type stubParser struct {
	fail bool
}

func (p stubParser) ParseFileUnit(unit *langparse.FileUnit) (*scope.Scope, error) {
	if p.fail {
		return nil, fmt.Errorf("boom")
	}
	program := scope.NewProgram()
	name := filepath.Base(unit.FilePath)
	ty := &scope.Scope{Kind: scope.KindTypeDefinition, Name: name, Qualified: name, Parent: program}
	ty.AddLocation(scope.Location{FilePath: unit.FilePath, StartLine: 1})
	program.Children = []*scope.Scope{ty}
	return program, nil
}

type fakeSource struct {
	fail map[string]bool
}

func (s fakeSource) ReadFileUnit(path string) (*langparse.FileUnit, error) {
	if s.fail[path] {
		return nil, fmt.Errorf("read failed")
	}
	return &langparse.FileUnit{FilePath: path, Language: testLang}, nil
}

func newTestRepository() *Repository {
	reg := langparse.NewRegistry()
	reg.Register(testLang, stubParser{})
	return New(reg, true)
}

func TestHandleEventAddedMergesIntoGlobal(t *testing.T) {
	r := newTestRepository()
	err := r.HandleEvent(context.Background(), fakeSource{}, FileEvent{Kind: Added, Path: "a.cpp"})
	if err != nil {
		t.Fatalf("HandleEvent() error = %v", err)
	}

	var names []string
	r.WithReadLock(context.Background(), func(_ context.Context, g *scope.Scope) error {
		for _, c := range g.Children {
			names = append(names, c.Name)
		}
		return nil
	})
	if len(names) != 1 || names[0] != "a.cpp" {
		t.Fatalf("expected one child named a.cpp, got %v", names)
	}
}

func TestHandleEventDeletedRemoves(t *testing.T) {
	r := newTestRepository()
	r.HandleEvent(context.Background(), fakeSource{}, FileEvent{Kind: Added, Path: "a.cpp"})
	r.HandleEvent(context.Background(), fakeSource{}, FileEvent{Kind: Deleted, Path: "a.cpp"})

	var childCount int
	r.WithReadLock(context.Background(), func(_ context.Context, g *scope.Scope) error {
		childCount = len(g.Children)
		return nil
	})
	if childCount != 0 {
		t.Fatalf("expected no children after delete, got %d", childCount)
	}
}

func TestHandleEventChangedRemovesThenReadds(t *testing.T) {
	r := newTestRepository()
	r.HandleEvent(context.Background(), fakeSource{}, FileEvent{Kind: Added, Path: "a.cpp"})
	r.HandleEvent(context.Background(), fakeSource{}, FileEvent{Kind: Changed, Path: "a.cpp"})

	var locs int
	r.WithReadLock(context.Background(), func(_ context.Context, g *scope.Scope) error {
		if len(g.Children) != 1 {
			t.Fatalf("expected exactly one surviving child, got %d", len(g.Children))
		}
		locs = len(g.Children[0].Locations)
		return nil
	})
	if locs != 1 {
		t.Fatalf("expected a single location after Changed, got %d", locs)
	}
}

func TestHandleEventParseFailureEmitsErrorAndDropsFile(t *testing.T) {
	reg := langparse.NewRegistry()
	reg.Register(testLang, stubParser{fail: true})
	r := New(reg, true)

	var gotError bool
	r.Subscribe(func(ev obslog.Event) {
		if ev.Kind == obslog.EventErrorRaised {
			gotError = true
		}
	})

	r.HandleEvent(context.Background(), fakeSource{}, FileEvent{Kind: Added, Path: "bad.cpp"})

	if !gotError {
		t.Fatal("expected an ErrorRaised event for a failing parse")
	}
	var childCount int
	r.WithReadLock(context.Background(), func(_ context.Context, g *scope.Scope) error {
		childCount = len(g.Children)
		return nil
	})
	if childCount != 0 {
		t.Fatalf("expected the failing file to contribute nothing, got %d children", childCount)
	}
}

func TestIsReadyEdgeTriggered(t *testing.T) {
	r := newTestRepository()
	r.setReady(true)

	var mu sync.Mutex
	var transitions []bool
	r.Subscribe(func(ev obslog.Event) {
		if ev.Kind == obslog.EventIsReadyChanged {
			mu.Lock()
			transitions = append(transitions, ev.IsReady)
			mu.Unlock()
		}
	})

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.cpp"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := r.FullReparse(context.Background(), fakeSource{}, WalkDir(nil), dir, 2); err != nil {
		t.Fatalf("FullReparse() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != 2 || transitions[0] != false || transitions[1] != true {
		t.Fatalf("expected exactly [false, true] transitions, got %v", transitions)
	}
}

func TestTryLockGlobalScopeTimesOutWhenWriteLockHeld(t *testing.T) {
	lock := NewGlobalLock(true)
	release := lock.Lock()
	defer release()

	_, ok := lock.TryLockGlobalScope(20 * time.Millisecond)
	if ok {
		t.Fatal("expected TryLockGlobalScope to time out while the write lock is held")
	}
}

func TestClearResetsReadyAndGraph(t *testing.T) {
	r := newTestRepository()
	r.HandleEvent(context.Background(), fakeSource{}, FileEvent{Kind: Added, Path: "a.cpp"})
	r.setReady(true)

	r.Clear()

	if r.IsReady() {
		t.Fatal("expected Clear to leave the repository not ready")
	}
	var childCount int
	r.WithReadLock(context.Background(), func(_ context.Context, g *scope.Scope) error {
		childCount = len(g.Children)
		return nil
	})
	if childCount != 0 {
		t.Fatalf("expected Clear to discard the graph, got %d children", childCount)
	}
}
