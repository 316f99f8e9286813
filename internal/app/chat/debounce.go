package chat

import (
	"sync"
	"time"
)

// TypingIdleTimeout is how long composing may pause before the typing state is withdrawn.
const TypingIdleTimeout = 2000 * time.Millisecond

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. time.AfterFunc is the production scheduler.
type Scheduler func(d time.Duration, f func()) Timer

// RealScheduler schedules with time.AfterFunc.
func RealScheduler(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// TypingDebouncer turns a stream of content changes into typing edges for this
// client: one start per continuous burst and exactly one stop after it, either
// when the idle timer elapses or when the message is sent.
type TypingDebouncer struct {
	emit     func(isTyping bool)
	schedule Scheduler

	mu     sync.Mutex
	typing bool
	timer  Timer

	// seq identifies the live timer; a callback carrying an older value is stale.
	seq uint64
}

// NewTypingDebouncer returns a debouncer that reports edges through emit.
// A nil schedule uses RealScheduler.
func NewTypingDebouncer(emit func(isTyping bool), schedule Scheduler) *TypingDebouncer {
	if schedule == nil {
		schedule = RealScheduler
	}
	return &TypingDebouncer{emit: emit, schedule: schedule}
}

// Touch records a content change: it emits a start edge if needed and restarts the idle timer.
func (d *TypingDebouncer) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.typing {
		d.typing = true
		d.emit(true)
	}

	d.stopTimerLocked()
	d.seq++
	seq := d.seq
	d.timer = d.schedule(TypingIdleTimeout, func() { d.expire(seq) })
}

// Stop ends the current burst immediately, emitting the stop edge if a burst is in progress.
func (d *TypingDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopTimerLocked()
	if d.typing {
		d.typing = false
		d.emit(false)
	}
}

// Cancel drops any pending timer and forgets the burst without emitting.
// Used when the channel is going away anyway.
func (d *TypingDebouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopTimerLocked()
	d.typing = false
}

// Typing reports whether a start edge is outstanding.
func (d *TypingDebouncer) Typing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typing
}

func (d *TypingDebouncer) expire(seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if seq != d.seq || !d.typing {
		return
	}
	d.timer = nil
	d.typing = false
	d.emit(false)
}

func (d *TypingDebouncer) stopTimerLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}
