// Package debounce coalesces rapid successive values, emitting only the last
// one after a quiet period.
package debounce

import (
	"sync"
	"time"
)

type timer interface {
	Stop() bool
}

// Debouncer delivers the most recent triggered value to fn once no new value
// has arrived for the configured delay. Intermediate values are dropped; the
// final emitted value always matches the final trigger.
type Debouncer struct {
	delay time.Duration
	fn    func(string)

	mu      sync.Mutex
	pending timer
	gen     uint64

	// after is swappable so tests can drive time by hand.
	after func(time.Duration, func()) timer
}

func New(delay time.Duration, fn func(string)) *Debouncer {
	return &Debouncer{
		delay: delay,
		fn:    fn,
		after: func(d time.Duration, f func()) timer {
			return time.AfterFunc(d, f)
		},
	}
}

// Trigger schedules value for emission, replacing any not-yet-emitted value.
// A superseded timer that already fired but lost the race for the mutex sees
// a newer generation and emits nothing.
func (d *Debouncer) Trigger(value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Stop()
	}
	d.gen++
	gen := d.gen
	d.pending = d.after(d.delay, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.pending = nil
		d.mu.Unlock()
		d.fn(value)
	})
}

// Flush cancels any pending emission without delivering it.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil {
		d.pending.Stop()
		d.pending = nil
	}
	d.gen++
}
