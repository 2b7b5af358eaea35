package engine

import (
	"sync"
	"time"
)

// throttle forwards at most one value per interval, holding only the most
// recent pending value. Sends happen on the trailing edge of the window:
// a value superseded before the window closes is never sent, and the last
// value set is always eventually sent.
type throttle[T any] struct {
	interval time.Duration
	send     func(T)

	mu      sync.Mutex
	last    time.Time
	pending *T
	timer   *time.Timer
}

func newThrottle[T any](interval time.Duration, send func(T)) *throttle[T] {
	return &throttle[T]{
		interval: interval,
		send:     send,
		last:     time.Now(),
	}
}

// Set stores v as the pending value and arms the trailing flush for the
// end of the current window. A Set after an idle stretch opens a fresh
// window rather than flushing immediately, so a burst of edits always
// collapses into one send. Never blocks.
func (t *throttle[T]) Set(v T) {
	t.mu.Lock()
	t.pending = &v
	if t.timer == nil {
		wait := t.interval - time.Since(t.last)
		if wait <= 0 {
			wait = t.interval
		}
		t.timer = time.AfterFunc(wait, t.flush)
	}
	t.mu.Unlock()
}

func (t *throttle[T]) flush() {
	t.mu.Lock()
	t.timer = nil
	if t.pending == nil {
		t.mu.Unlock()
		return
	}
	v := *t.pending
	t.pending = nil
	t.last = time.Now()
	t.mu.Unlock()
	t.send(v)
}

// Stop drops any pending value and cancels the trailing flush.
func (t *throttle[T]) Stop() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
	t.mu.Unlock()
}
