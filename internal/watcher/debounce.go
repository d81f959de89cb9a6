package watcher

import (
	"sync"
	"time"
)

// DefaultDelay is how long a burst of file events is allowed to settle
// before the callback fires once.
const DefaultDelay = 200 * time.Millisecond

// Debouncer coalesces a burst of triggers into a single callback. Time
// is observed only through Tick, so tests drive it deterministically;
// production code runs Tick from a ticker loop.
type Debouncer struct {
	delay time.Duration
	fn    func()

	mu       sync.Mutex
	armed    bool
	deadline time.Time
}

// NewDebouncer creates a debouncer invoking fn once per settled burst.
func NewDebouncer(delay time.Duration, fn func()) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{delay: delay, fn: fn}
}

// Trigger records an event at now, extending the quiet period.
func (d *Debouncer) Trigger(now time.Time) {
	d.mu.Lock()
	d.armed = true
	d.deadline = now.Add(d.delay)
	d.mu.Unlock()
}

// Tick fires the callback if the quiet period has elapsed. Returns true
// when the callback ran.
func (d *Debouncer) Tick(now time.Time) bool {
	d.mu.Lock()
	fire := d.armed && !now.Before(d.deadline)
	if fire {
		d.armed = false
	}
	d.mu.Unlock()

	if fire {
		d.fn()
	}
	return fire
}

// Pending reports whether a trigger is waiting to fire.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.armed
}
