package pipeline

import (
	"context"
	"sync"
	"time"
)

// recursionKey marks, in a context, that the calling chain already holds
// the shared lock. Go has no notion of a reentrant OS-thread-local lock
// across goroutines the way the teacher's coordinator emulates with
// atomic reader/writer counters (internal/core/index_state.go); the
// idiomatic substitute is an explicit token threaded through the call
// chain via context, which is what every recursive query helper in this
// repository is expected to pass along (spec §5: "a query helper may call
// another query helper within the same reader").
type recursionKey struct{}

// GlobalLock is the single shared-exclusive lock protecting the global
// scope (spec §5). Reads take it shared; Add/Remove/Merge/Clear/Load take
// it exclusive. No other lock is held while acquiring it.
type GlobalLock struct {
	mu        sync.RWMutex
	recursive bool
}

// NewGlobalLock creates a GlobalLock. When recursive is true, RLock
// recognizes a context already carrying this lock's read-held marker and
// skips reacquiring it.
func NewGlobalLock(recursive bool) *GlobalLock {
	return &GlobalLock{recursive: recursive}
}

// RLock acquires the shared lock for ctx's call chain, returning a
// context to pass to any nested query helper and a release function the
// caller must invoke exactly once. If ctx already carries this lock's
// read-held marker and recursion is enabled, RLock is a no-op.
func (g *GlobalLock) RLock(ctx context.Context) (context.Context, func()) {
	if g.recursive {
		if v, _ := ctx.Value(recursionKey{}).(*GlobalLock); v == g {
			return ctx, func() {}
		}
	}
	g.mu.RLock()
	return context.WithValue(ctx, recursionKey{}, g), g.mu.RUnlock
}

// Lock acquires the exclusive lock, blocking until available.
func (g *GlobalLock) Lock() func() {
	g.mu.Lock()
	return g.mu.Unlock
}

// TryLockGlobalScope attempts to acquire the exclusive lock within
// timeout, polling rather than blocking forever (spec §5). It returns a
// release function and true on success, or a nil function and false on
// timeout.
func (g *GlobalLock) TryLockGlobalScope(timeout time.Duration) (func(), bool) {
	if g.mu.TryLock() {
		return g.mu.Unlock, true
	}

	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond
	for time.Now().Before(deadline) {
		time.Sleep(backoff)
		if g.mu.TryLock() {
			return g.mu.Unlock, true
		}
		if backoff < 20*time.Millisecond {
			backoff *= 2
		}
	}
	return nil, false
}
