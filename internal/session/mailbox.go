package session

import "sync"

// mailbox holds at most one pending value. A put replaces any value not yet
// taken, so only the latest update is ever written to the wire.
type mailbox[T any] struct {
	mu     sync.Mutex
	val    T
	set    bool
	notify chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{notify: make(chan struct{}, 1)}
}

func (m *mailbox[T]) put(v T) {
	m.mu.Lock()
	m.val = v
	m.set = true
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

func (m *mailbox[T]) take() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.val, m.set
	var zero T
	m.val = zero
	m.set = false
	return v, ok
}
