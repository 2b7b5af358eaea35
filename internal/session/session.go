package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kdhillon/promptdeck/internal/audio"
	"github.com/kdhillon/promptdeck/internal/prompt"
)

// ConnectError is an auth or network failure while opening a session.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return "connect: " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }

// StreamError is a mid-session failure. The session never retries itself;
// the orchestrator decides via ReconnectPolicy.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string { return "stream: " + e.Err.Error() }
func (e *StreamError) Unwrap() error { return e.Err }

// FilteredPromptNotice reports a prompt the service declined to apply.
// Informational only; the prompt stays in the deck.
type FilteredPromptNotice struct {
	Text   string
	Reason string
}

// EventKind discriminates session events.
type EventKind int

const (
	EventChunk EventKind = iota
	EventFilteredPrompt
	EventError
	EventClosed
)

// Event is one entry in the session's single ordered event stream.
// An Error or Closed event is terminal; the stream is closed after it.
type Event struct {
	Kind     EventKind
	Chunk    audio.Chunk
	Filtered FilteredPromptNotice
	Err      error
}

// OutMessage is a logical message to the generation service.
type OutMessage struct {
	Type     string // "setup", "prompts", "tempo"
	Prompts  prompt.Set
	TempoBPM int
}

// InMessage is a logical message from the generation service.
type InMessage struct {
	Type   string // "chunk", "filtered_prompt", "error"
	Audio  []byte
	Format string
	Text   string
	Reason string
	Error  string
}

// Transport is the opaque bidirectional stream to the generation service.
// Send must be safe for concurrent use; Receive is called by one goroutine.
// Receive returns io.EOF when the peer closes the stream normally.
type Transport interface {
	Send(msg OutMessage) error
	Receive() (InMessage, error)
	Close() error
}

// Dialer opens a transport. Implementations must not retry internally.
type Dialer func(ctx context.Context, url, key string) (Transport, error)

// Config describes one connection attempt. The full prompt set and tempo are
// sent at setup because the service keeps no state across connections.
type Config struct {
	URL      string
	Key      string
	Prompts  prompt.Set
	TempoBPM int
}

// Session is one logical connection to the generation service. Prompt and
// tempo updates are coalesced latest-wins on independent channels: an update
// superseded before it is written is dropped, never sent late.
type Session struct {
	id        string
	transport Transport
	log       *zap.Logger

	events  chan Event
	prompts *mailbox[prompt.Set]
	tempo   *mailbox[int]

	done     chan struct{}
	doneOnce sync.Once
	termOnce sync.Once

	mu      sync.Mutex
	closing bool
}

// Connect dials the service and sends the initial state. No retry happens
// here; a failure is reported as a ConnectError for the caller to decide on.
func Connect(ctx context.Context, dial Dialer, cfg Config, log *zap.Logger) (*Session, error) {
	t, err := dial(ctx, cfg.URL, cfg.Key)
	if err != nil {
		return nil, &ConnectError{Err: err}
	}

	setup := OutMessage{Type: "setup", Prompts: cfg.Prompts, TempoBPM: cfg.TempoBPM}
	if err := t.Send(setup); err != nil {
		t.Close()
		return nil, &ConnectError{Err: fmt.Errorf("send setup: %w", err)}
	}

	s := &Session{
		id:        uuid.NewString(),
		transport: t,
		events:    make(chan Event, 64),
		prompts:   newMailbox[prompt.Set](),
		tempo:     newMailbox[int](),
		done:      make(chan struct{}),
	}
	s.log = log.With(zap.String("conn", s.id[:8]))

	go s.readLoop()
	go runWriter(s, s.prompts, func(v prompt.Set) OutMessage {
		return OutMessage{Type: "prompts", Prompts: v}
	})
	go runWriter(s, s.tempo, func(v int) OutMessage {
		return OutMessage{Type: "tempo", TempoBPM: v}
	})

	s.log.Info("session connected")
	return s, nil
}

// ID identifies this connection instance.
func (s *Session) ID() string { return s.id }

// Events returns the session's single ordered event stream. The channel is
// closed after the terminal Error or Closed event.
func (s *Session) Events() <-chan Event { return s.events }

// SendPrompts queues the full weighted prompt set, replacing any update not
// yet written. Never blocks.
func (s *Session) SendPrompts(set prompt.Set) {
	s.prompts.put(set)
}

// SendTempo queues a tempo update on its own channel, independent of any
// pending prompt update. Never blocks.
func (s *Session) SendTempo(bpm int) {
	s.tempo.put(bpm)
}

// Close tears the connection down. The event stream ends with a Closed event
// rather than an error; callers drain Events until it closes.
func (s *Session) Close() {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.transport.Close()
}

func (s *Session) readLoop() {
	for {
		msg, err := s.transport.Receive()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()

			switch {
			case closing || errors.Is(err, io.EOF):
				s.terminate(Event{Kind: EventClosed})
			default:
				s.terminate(Event{Kind: EventError, Err: &StreamError{Err: err}})
			}
			return
		}

		switch msg.Type {
		case "chunk":
			s.emit(Event{Kind: EventChunk, Chunk: audio.Chunk{Data: msg.Audio, Format: msg.Format}})
		case "filtered_prompt":
			s.emit(Event{Kind: EventFilteredPrompt, Filtered: FilteredPromptNotice{
				Text:   msg.Text,
				Reason: msg.Reason,
			}})
		case "error":
			s.terminate(Event{Kind: EventError, Err: &StreamError{Err: errors.New(msg.Error)}})
			return
		default:
			s.log.Warn("unknown message type", zap.String("type", msg.Type))
		}
	}
}

// runWriter drains one latest-wins mailbox onto the transport. A write
// failure ends the loop; the read loop surfaces the terminal error.
func runWriter[T any](s *Session, m *mailbox[T], frame func(T) OutMessage) {
	for {
		select {
		case <-s.done:
			return
		case <-m.notify:
			v, ok := m.take()
			if !ok {
				continue
			}
			if err := s.transport.Send(frame(v)); err != nil {
				s.log.Warn("update send failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

// terminate emits the terminal event once, then closes the stream.
// Consumers must drain Events until it closes.
func (s *Session) terminate(ev Event) {
	s.termOnce.Do(func() {
		select {
		case s.events <- ev:
		case <-s.done:
		}
		s.stop()
		s.transport.Close()
		close(s.events)
	})
}

func (s *Session) stop() {
	s.doneOnce.Do(func() { close(s.done) })
}
