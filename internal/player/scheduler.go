package player

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kdhillon/promptdeck/internal/audio"
)

// State is the scheduler's playback state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// underrunFadeTicks is the number of starved ticks over which the looped
// tail fades to silence, following a smoothstep curve.
const underrunFadeTicks = 10

// Config holds scheduler tuning.
type Config struct {
	// StartBuffer is the decoded audio required before loading becomes
	// playing. Bounds the chance of an immediate underrun.
	StartBuffer time.Duration
}

// Scheduler turns unevenly arriving chunks into a gap-free frame stream.
// Frames are clocked by a 20ms ticker, never by chunk arrival; when the
// buffer starves mid-play it keeps the clock running and fades the last
// frame into silence rather than stopping.
type Scheduler struct {
	log         *zap.Logger
	startBuffer time.Duration
	frameCh     chan []int16

	mu       sync.Mutex
	state    State
	buf      []int16
	off      int
	tail     []int16
	fade     float64
	underrun bool

	onState    func(State)
	onUnderrun func()
}

// New creates a scheduler. It emits nothing until Start is called and the
// buffering threshold is met.
func New(cfg Config, log *zap.Logger) *Scheduler {
	if cfg.StartBuffer <= 0 {
		cfg.StartBuffer = 600 * time.Millisecond
	}
	return &Scheduler{
		log:         log,
		startBuffer: cfg.StartBuffer,
		frameCh:     make(chan []int16, 100),
		state:       StateIdle,
	}
}

// SetStateFunc registers a callback for state transitions. Called from the
// scheduler's goroutines without the lock held.
func (s *Scheduler) SetStateFunc(fn func(State)) {
	s.mu.Lock()
	s.onState = fn
	s.mu.Unlock()
}

// SetUnderrunFunc registers a callback fired once per starvation episode.
func (s *Scheduler) SetUnderrunFunc(fn func()) {
	s.mu.Lock()
	s.onUnderrun = fn
	s.mu.Unlock()
}

// Frames returns the channel of outgoing 20ms PCM frames.
func (s *Scheduler) Frames() <-chan []int16 { return s.frameCh }

// State returns the current playback state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Buffered returns the duration of decoded audio waiting to play.
func (s *Scheduler) Buffered() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return audio.Duration(s.buf[s.off:])
}

// Enqueue appends decoded samples to the play buffer in arrival order.
// Never blocks, never reorders. Samples enqueued while idle are dropped.
func (s *Scheduler) Enqueue(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateIdle {
		return
	}
	s.compactLocked()
	s.buf = append(s.buf, samples...)
}

// Start moves idle to loading. No-op in any other state.
func (s *Scheduler) Start() {
	s.transition(func(st State) (State, bool) {
		if st == StateIdle {
			return StateLoading, true
		}
		return st, false
	})
}

// Pause halts the frame clock, keeping all buffered audio.
func (s *Scheduler) Pause() {
	s.transition(func(st State) (State, bool) {
		if st == StatePlaying || st == StateLoading {
			return StatePaused, true
		}
		return st, false
	})
}

// Resume continues playback after a pause. Rebuffers first if the pause
// left less than the threshold worth of audio, so output never restarts
// below the start gate.
func (s *Scheduler) Resume() {
	s.transition(func(st State) (State, bool) {
		if st != StatePaused {
			return st, false
		}
		if audio.Duration(s.buf[s.off:]) < s.startBuffer {
			return StateLoading, true
		}
		return StatePlaying, true
	})
}

// Rebuffer drops back to loading until the threshold fills again, keeping
// whatever audio is already buffered. Used across reconnects.
func (s *Scheduler) Rebuffer() {
	s.transition(func(st State) (State, bool) {
		if st == StatePlaying {
			return StateLoading, true
		}
		return st, false
	})
}

// Stop halts the clock and discards all buffered audio.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.buf = nil
	s.off = 0
	s.tail = nil
	s.underrun = false
	changed := s.state != StateIdle
	s.state = StateIdle
	fn := s.onState
	s.mu.Unlock()

	if changed && fn != nil {
		fn(StateIdle)
	}
}

// Run drives the frame clock. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	defer close(s.frameCh)

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame, notify := s.tick()
		if notify != nil {
			notify()
		}
		if frame == nil {
			continue
		}

		select {
		case s.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// tick produces the next frame, or nil when the clock is halted. The second
// return carries deferred callbacks so they run without the lock held.
func (s *Scheduler) tick() ([]int16, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateIdle, StatePaused:
		return nil, nil

	case StateLoading:
		if audio.Duration(s.buf[s.off:]) < s.startBuffer {
			return nil, nil
		}
		s.state = StatePlaying
		fn := s.onState
		frame := s.popFrameLocked()
		return frame, func() {
			if fn != nil {
				fn(StatePlaying)
			}
		}

	case StatePlaying:
		if len(s.buf)-s.off >= audio.FrameSamples {
			recovered := s.underrun
			s.underrun = false
			frame := s.popFrameLocked()
			if recovered {
				log := s.log
				return frame, func() { log.Info("underrun recovered") }
			}
			return frame, nil
		}

		// Starved: keep the clock alive, fade the tail into silence.
		var notify func()
		if !s.underrun {
			s.underrun = true
			s.fade = 1.0
			fn := s.onUnderrun
			log := s.log
			notify = func() {
				log.Warn("buffer underrun")
				if fn != nil {
					fn()
				}
			}
		}
		s.fade -= 1.0 / underrunFadeTicks
		if s.fade < 0 {
			s.fade = 0
		}
		gain := audio.Smoothstep(s.fade)
		frame := audio.Silence(audio.FrameSamples)
		if s.tail != nil && gain > 0 {
			frame = audio.ApplyGain(s.tail, gain)
		}
		return frame, notify
	}

	return nil, nil
}

// popFrameLocked removes one frame from the front of the buffer.
func (s *Scheduler) popFrameLocked() []int16 {
	frame := s.buf[s.off : s.off+audio.FrameSamples]
	s.off += audio.FrameSamples
	s.tail = frame
	return frame
}

// compactLocked reclaims consumed space once it dominates the buffer.
func (s *Scheduler) compactLocked() {
	if s.off > len(s.buf)/2 && s.off > audio.FrameSamples*50 {
		s.buf = append([]int16(nil), s.buf[s.off:]...)
		s.off = 0
	}
}

func (s *Scheduler) transition(fn func(State) (State, bool)) {
	s.mu.Lock()
	next, changed := fn(s.state)
	s.state = next
	cb := s.onState
	s.mu.Unlock()

	if changed && cb != nil {
		cb(next)
	}
}
