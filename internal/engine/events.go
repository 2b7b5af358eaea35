package engine

import (
	"github.com/kdhillon/promptdeck/internal/session"
)

// EventKind discriminates events published to UI observers.
type EventKind int

const (
	EventState EventKind = iota
	EventLevel
	EventFilteredPrompt
	EventUnderrun
	EventError
)

// Event is one notification from the engine. Errors carry a human-readable
// message; underruns and filtered prompts are informational.
type Event struct {
	Kind     EventKind
	State    State
	Level    float64
	Filtered session.FilteredPromptNotice
	Message  string
}

// Subscriber receives engine events in publish order. A subscriber that
// stops draining loses events rather than stalling the engine.
type Subscriber struct {
	C    chan Event
	done chan struct{}
}

// Done is closed when the subscriber is removed.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

// Subscribe registers a UI observer.
func (e *Engine) Subscribe() *Subscriber {
	s := &Subscriber{
		C:    make(chan Event, 64),
		done: make(chan struct{}),
	}
	e.subMu.Lock()
	e.subs[s] = struct{}{}
	e.subMu.Unlock()
	return s
}

// Unsubscribe removes an observer and signals it to stop.
func (e *Engine) Unsubscribe(s *Subscriber) {
	e.subMu.Lock()
	_, present := e.subs[s]
	delete(e.subs, s)
	e.subMu.Unlock()
	if present {
		close(s.done)
	}
}

func (e *Engine) publish(ev Event) {
	e.subMu.RLock()
	defer e.subMu.RUnlock()
	for s := range e.subs {
		select {
		case s.C <- ev:
		default:
		}
	}
}
