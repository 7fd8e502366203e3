// Package progress renders a single-line live counter on the terminal.
// Output is suppressed when stdout is not a TTY so piped or CI runs
// stay clean.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
)

// Tracker counts completed steps toward a total and repaints one
// status line in place. Safe for concurrent use; parallel workers
// share a single Tracker.
type Tracker struct {
	mu    sync.Mutex
	out   io.Writer
	tty   bool
	total int
	done  int
	dirty bool
}

// New returns a Tracker writing to stdout when it is a terminal.
func New(total int) *Tracker {
	return &Tracker{
		out:   os.Stdout,
		tty:   isatty.IsTerminal(os.Stdout.Fd()),
		total: total,
	}
}

// NewWriter returns a Tracker for a specific writer, treating it as a
// terminal. Used in tests.
func NewWriter(out io.Writer, total int) *Tracker {
	return &Tracker{out: out, tty: true, total: total}
}

// Step records one completed test and repaints the counter with its
// name.
func (t *Tracker) Step(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done++
	if !t.tty {
		return
	}
	fmt.Fprintf(t.out, "\r\033[K%d/%d %s", t.done, t.total, name)
	t.dirty = true
}

// Status repaints the line with free-form text without advancing the
// counter.
func (t *Tracker) Status(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.tty {
		return
	}
	fmt.Fprintf(t.out, "\r\033[K%s", text)
	t.dirty = true
}

// Clear erases the status line so regular output can follow. A no-op
// if nothing was painted.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return
	}
	fmt.Fprint(t.out, "\r\033[K")
	t.dirty = false
}

// Done returns how many steps completed so far.
func (t *Tracker) Done() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}
