// Package progress carries leveled status events from the downloader's
// components to whatever front end is rendering them (plain CLI output or
// the terminal UI).
package progress

import (
	"fmt"
	"io"
	"sync"
)

// Level indicates the severity/type of a progress message.
type Level int

const (
	LevelInfo Level = iota
	LevelVerbose
	LevelWarning
	LevelError
	LevelSuccess
)

// Event represents a single status update.
type Event struct {
	Message string
	Level   Level
}

// Func receives events. A nil Func discards them.
type Func func(Event)

// Emit sends a formatted event to fn if fn is non-nil.
func (fn Func) Emit(level Level, format string, args ...any) {
	if fn == nil {
		return
	}
	fn(Event{Message: fmt.Sprintf(format, args...), Level: level})
}

// Printer writes events as prefixed lines. It is safe for concurrent use,
// since chapter workers report from their own goroutines.
type Printer struct {
	w       io.Writer
	verbose bool
	mu      sync.Mutex
}

// NewPrinter creates a Printer. Verbose events are dropped unless verbose is set.
func NewPrinter(w io.Writer, verbose bool) *Printer {
	return &Printer{w: w, verbose: verbose}
}

// Handle implements Func.
func (p *Printer) Handle(event Event) {
	if event.Level == LevelVerbose && !p.verbose {
		return
	}

	prefix := ""
	switch event.Level {
	case LevelError:
		prefix = "✗ "
	case LevelWarning:
		prefix = "! "
	case LevelSuccess:
		prefix = "✓ "
	case LevelInfo:
		prefix = "› "
	default:
		prefix = "  "
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, prefix+event.Message)
}
