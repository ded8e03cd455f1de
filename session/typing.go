package session

import (
	"sync"
	"time"
)

// typingDebouncer converts raw local composition activity into rate-limited
// typing/stop_typing signals. One single-flight rearmable timer exists per
// session; rearming cancels and replaces the previous timer, so rapid
// keystrokes never retrigger the start signal. The start/stop callbacks are
// always invoked with no internal lock held.
type typingDebouncer struct {
	window time.Duration
	start  func()
	stop   func()

	mu     sync.Mutex
	active bool
	timer  *time.Timer
}

func newTypingDebouncer(window time.Duration, start, stop func()) *typingDebouncer {
	return &typingDebouncer{window: window, start: start, stop: stop}
}

// Input records one local composition change. The first change of a burst
// emits the start signal, every change rearms the inactivity timer.
func (d *typingDebouncer) Input() {
	d.mu.Lock()
	emit := !d.active
	d.active = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.expire)
	d.mu.Unlock()
	if emit {
		d.start()
	}
}

func (d *typingDebouncer) expire() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	d.timer = nil
	d.mu.Unlock()
	d.stop()
}

// Flush emits the stop signal immediately if a burst is in flight, cancelling
// the pending timer. Called before a message send so the stop signal never
// trails the message.
func (d *typingDebouncer) Flush() {
	d.mu.Lock()
	if !d.active {
		d.mu.Unlock()
		return
	}
	d.active = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.stop()
}

// Reset drops any burst in flight without emitting. Used on room teardown and
// connection loss, where a stop signal could not be delivered anyway.
func (d *typingDebouncer) Reset() {
	d.mu.Lock()
	d.active = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
}

// Active reports whether a local typing burst is currently in flight.
func (d *typingDebouncer) Active() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}
