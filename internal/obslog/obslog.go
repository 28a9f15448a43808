// Package obslog carries the repository's ambient logging: a thin,
// debug-gated wrapper around the standard logger, plus an event sink that
// turns pipeline lifecycle events (ErrorRaised, FileProcessed,
// IsReadyChanged) into log lines.
package obslog

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"sync/atomic"
)

var (
	debugEnabled atomic.Bool
	mu           sync.Mutex
	logger       = log.New(os.Stderr, "", log.LstdFlags)
)

// EnableDebug turns on Debugf output. Off by default.
func EnableDebug(enabled bool) {
	debugEnabled.Store(enabled)
}

// IsDebugEnabled reports whether Debugf currently writes output.
func IsDebugEnabled() bool {
	return debugEnabled.Load()
}

// SetOutput redirects all log output, e.g. to a file or io.Discard in tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
}

// Infof logs an informational line unconditionally.
func Infof(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	logger.Printf("[INFO] "+format, args...)
}

// Warnf logs a warning line unconditionally.
func Warnf(format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	logger.Printf("[WARN] "+format, args...)
}

// Debugf logs a line only when EnableDebug(true) has been called.
func Debugf(format string, args ...any) {
	if !debugEnabled.Load() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	logger.Printf("[DEBUG] "+format, args...)
}

// EventKind enumerates the pipeline lifecycle events the sink understands.
type EventKind string

const (
	EventErrorRaised    EventKind = "ErrorRaised"
	EventFileProcessed  EventKind = "FileProcessed"
	EventIsReadyChanged EventKind = "IsReadyChanged"
)

// Event is a single pipeline lifecycle notification (spec §5, §7). Fields
// not relevant to Kind are left zero.
type Event struct {
	Kind     EventKind
	FilePath string
	Err      error
	IsReady  bool
}

// Sink turns Events into log lines. The zero value is ready to use.
type Sink struct{}

// NewSink creates an event sink.
func NewSink() *Sink {
	return &Sink{}
}

// Handle logs ev at a level appropriate to its kind.
func (s *Sink) Handle(ev Event) {
	switch ev.Kind {
	case EventErrorRaised:
		Warnf("%s: %v", ev.FilePath, ev.Err)
	case EventFileProcessed:
		Debugf("processed %s", ev.FilePath)
	case EventIsReadyChanged:
		Infof("ready=%t", ev.IsReady)
	default:
		Debugf("unrecognized event: %+v", ev)
	}
}

// Format mirrors fmt.Sprintf, exposed so callers building Event.FilePath or
// log messages from multiple parts do not need to import fmt directly.
func Format(format string, args ...any) string {
	return fmt.Sprintf(format, args...)
}
