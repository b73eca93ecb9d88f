package store

import (
	"sync"
	"time"
)

// DefaultDebounceWindow is the quiet period the debounced filter key waits
// out before taking a new value.
const DefaultDebounceWindow = 300 * time.Millisecond

// Debouncer coalesces rapid changes of a string key: Value only moves after
// Update has seen no new value for a whole window. It holds no filtering
// logic; it is purely a delay line between state churn and fetch scheduling,
// so three slider ticks cost one refetch instead of three.
type Debouncer struct {
	window  time.Duration
	onFlush func(string)

	mu      sync.Mutex
	timer   *time.Timer
	pending string
	current string
}

// DebounceOption configures a Debouncer.
type DebounceOption func(*Debouncer)

// WithFlushHook runs fn with the settled value each time the debounced value
// changes. fn is called from the timer goroutine and must not call back into
// the debouncer.
func WithFlushHook(fn func(string)) DebounceOption {
	return func(d *Debouncer) {
		d.onFlush = fn
	}
}

// NewDebouncer creates a debouncer with the given quiet window. A
// non-positive window falls back to the default.
func NewDebouncer(window time.Duration, opts ...DebounceOption) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	d := &Debouncer{window: window}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Prime sets the value immediately, skipping the window. It seeds the
// initial key so a fresh page never reports an empty debounced value.
func (d *Debouncer) Prime(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.pending = value
	d.current = value
}

// Update schedules value to become current after the quiet window. A repeat
// of the already pending value does not restart the clock; a genuinely new
// value does.
func (d *Debouncer) Update(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil && value == d.pending {
		return
	}
	if d.timer == nil && value == d.current {
		d.pending = value
		return
	}
	d.pending = value
	d.stopTimerLocked()
	d.timer = time.AfterFunc(d.window, d.flush)
}

// Value returns the debounced key.
func (d *Debouncer) Value() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Stop cancels any pending flush. The current value stays readable.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopTimerLocked()
	d.pending = d.current
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	d.timer = nil
	changed := d.current != d.pending
	d.current = d.pending
	value := d.current
	hook := d.onFlush
	d.mu.Unlock()

	if changed && hook != nil {
		hook(value)
	}
}

// stopTimerLocked must be called with the lock held.
func (d *Debouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
