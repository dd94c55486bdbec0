package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// DefaultSearchDebounce is the keystroke settle time before a search runs.
const DefaultSearchDebounce = 120 * time.Millisecond

// debounceMsg fires once the debounce window of call seq has elapsed.
type debounceMsg struct {
	seq int
}

// Debouncer collapses rapid keystrokes into one search. Each Trigger starts
// a new window and invalidates the previous ones; only the latest window's
// message is accepted by Settled.
type Debouncer struct {
	duration time.Duration
	seq      int
}

// NewDebouncer creates a Debouncer with the given window.
func NewDebouncer(duration time.Duration) *Debouncer {
	if duration <= 0 {
		duration = DefaultSearchDebounce
	}
	return &Debouncer{duration: duration}
}

// Trigger starts a new window.
func (d *Debouncer) Trigger() tea.Cmd {
	d.seq++
	seq := d.seq
	return tea.Tick(d.duration, func(time.Time) tea.Msg { return debounceMsg{seq: seq} })
}

// Settled reports whether msg closes the latest window.
func (d *Debouncer) Settled(msg debounceMsg) bool {
	return msg.seq == d.seq
}

// Cancel invalidates any pending window.
func (d *Debouncer) Cancel() {
	d.seq++
}

// Duration is the window length.
func (d *Debouncer) Duration() time.Duration { return d.duration }
