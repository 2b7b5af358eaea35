package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kdhillon/promptdeck/internal/audio"
	"github.com/kdhillon/promptdeck/internal/player"
	"github.com/kdhillon/promptdeck/internal/prompt"
	"github.com/kdhillon/promptdeck/internal/session"
)

// State is the published playback state. The engine is its sole writer.
type State int

const (
	StateStopped State = iota
	StateLoading
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
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

// Config holds engine tuning.
type Config struct {
	ServiceURL string
	ServiceKey string

	// ChunkFormat is assumed for chunks that arrive without a format tag.
	ChunkFormat string

	// UpdateInterval is the minimum spacing between updates forwarded to
	// the session, so knob drags collapse into the latest value.
	UpdateInterval time.Duration

	StartBuffer time.Duration
	LevelPeriod time.Duration

	Policy session.ReconnectPolicy

	// Initial state. Prompts defaults to the catalog deck.
	Prompts  prompt.Set
	TempoBPM int
}

// Engine composes the session, scheduler and level meter behind the single
// facade the UI layer talks to. It owns the weighted prompt set and the
// published playback state; observers get copies and events, never shared
// mutable state.
type Engine struct {
	cfg  Config
	dial session.Dialer
	log  *zap.Logger

	sched *player.Scheduler
	meter *player.LevelMeter

	promptTh *throttle[prompt.Set]
	tempoTh  *throttle[int]

	subMu sync.RWMutex
	subs  map[*Subscriber]struct{}

	mu         sync.Mutex
	prompts    prompt.Set
	tempo      int
	state      State
	sess       *session.Session
	baseCtx    context.Context
	playCancel context.CancelFunc
}

// New creates an engine. Run must be called before playback can start.
func New(cfg Config, dial session.Dialer, log *zap.Logger) *Engine {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 30 * time.Millisecond
	}
	if cfg.Policy.MaxAttempts == 0 && cfg.Policy.Base == 0 {
		cfg.Policy = session.DefaultReconnectPolicy()
	}
	if cfg.Prompts == nil {
		cfg.Prompts = prompt.DefaultSet()
	}
	if cfg.TempoBPM == 0 {
		cfg.TempoBPM = 120
	}

	e := &Engine{
		cfg:     cfg,
		dial:    dial,
		log:     log,
		sched:   player.New(player.Config{StartBuffer: cfg.StartBuffer}, log),
		subs:    make(map[*Subscriber]struct{}),
		prompts: cfg.Prompts.Clone().Normalize(),
		tempo:   prompt.ClampTempo(cfg.TempoBPM),
		state:   StateStopped,
	}

	e.meter = player.NewLevelMeter(cfg.LevelPeriod, func(level float64) {
		e.publish(Event{Kind: EventLevel, Level: level})
	})

	e.promptTh = newThrottle(cfg.UpdateInterval, func(set prompt.Set) {
		if s := e.session(); s != nil {
			s.SendPrompts(set)
		}
	})
	e.tempoTh = newThrottle(cfg.UpdateInterval, func(bpm int) {
		if s := e.session(); s != nil {
			s.SendTempo(bpm)
		}
	})

	e.sched.SetStateFunc(e.onSchedState)
	e.sched.SetUnderrunFunc(func() {
		e.publish(Event{Kind: EventUnderrun})
	})

	return e
}

// Run drives the playback clock. Blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	e.mu.Lock()
	e.baseCtx = ctx
	e.mu.Unlock()

	e.sched.Run(ctx)

	e.promptTh.Stop()
	e.tempoTh.Stop()
	e.Stop()
}

// RunMeter consumes a tap of the output frames for level metering.
// Blocks until ctx is cancelled or the tap closes.
func (e *Engine) RunMeter(ctx context.Context, frames <-chan []int16) {
	e.meter.Run(ctx, frames)
}

// Frames returns the outgoing 20ms PCM frame stream.
func (e *Engine) Frames() <-chan []int16 { return e.sched.Frames() }

// State returns the published playback state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Buffered returns the duration of audio waiting to play.
func (e *Engine) Buffered() time.Duration { return e.sched.Buffered() }

// Prompts returns a copy of the current weighted prompt set.
func (e *Engine) Prompts() prompt.Set {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prompts.Clone()
}

// Tempo returns the current tempo in BPM.
func (e *Engine) Tempo() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tempo
}

// SetPrompts replaces the weighted prompt set and forwards it to the
// session through the rate limiter. Out-of-range values are clamped.
func (e *Engine) SetPrompts(set prompt.Set) {
	set = set.Clone().Normalize()
	e.mu.Lock()
	e.prompts = set
	e.mu.Unlock()
	e.promptTh.Set(set)
}

// SetPromptWeight updates one slot's weight. Returns false for an unknown
// prompt ID; slots are fixed at startup.
func (e *Engine) SetPromptWeight(id string, weight float64) bool {
	e.mu.Lock()
	p, ok := e.prompts[id]
	if !ok {
		e.mu.Unlock()
		return false
	}
	p.Weight = prompt.ClampWeight(weight)
	set := e.prompts.Clone()
	set[id] = p
	e.prompts = set
	e.mu.Unlock()

	e.promptTh.Set(set)
	return true
}

// SetTempo updates the tempo, clamped to [60,200] BPM, and forwards it on
// its own rate-limited channel, independent of prompt updates.
func (e *Engine) SetTempo(bpm int) {
	bpm = prompt.ClampTempo(bpm)
	e.mu.Lock()
	e.tempo = bpm
	e.mu.Unlock()
	e.tempoTh.Set(bpm)
}

// PlayPause toggles playback: stopped starts a session, playing pauses,
// paused resumes. Pausing keeps buffered audio and the live session.
func (e *Engine) PlayPause() {
	switch e.State() {
	case StateStopped:
		e.startPlayback()
	case StatePlaying, StateLoading:
		e.sched.Pause()
	case StatePaused:
		e.sched.Resume()
	}
}

// Stop tears down playback: cancels any pending reconnect, closes the
// session and discards buffered audio.
func (e *Engine) Stop() {
	e.mu.Lock()
	cancel := e.playCancel
	e.playCancel = nil
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.sched.Stop()
}

func (e *Engine) session() *session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess
}

func (e *Engine) startPlayback() {
	e.mu.Lock()
	if e.playCancel != nil {
		e.mu.Unlock()
		return
	}
	base := e.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	e.playCancel = cancel
	e.mu.Unlock()

	e.sched.Start()
	go e.runPlayback(ctx)
}

// runPlayback owns one playback attempt: connect, stream, and reconnect per
// policy until stopped or the policy gives up.
func (e *Engine) runPlayback(ctx context.Context) {
	attempt := 0
	for ctx.Err() == nil {
		e.mu.Lock()
		cfg := session.Config{
			URL:      e.cfg.ServiceURL,
			Key:      e.cfg.ServiceKey,
			Prompts:  e.prompts.Clone(),
			TempoBPM: e.tempo,
		}
		e.mu.Unlock()

		sess, err := session.Connect(ctx, e.dial, cfg, e.log)
		if err != nil {
			e.log.Warn("connect failed", zap.Error(err), zap.Int("attempt", attempt))
			if !e.retry(ctx, &attempt, err) {
				return
			}
			continue
		}

		e.mu.Lock()
		e.sess = sess
		e.mu.Unlock()
		connectedAt := time.Now()

		termErr := e.consume(ctx, sess)

		e.mu.Lock()
		e.sess = nil
		e.mu.Unlock()

		if ctx.Err() != nil {
			return
		}

		// A connection that held through the grace period was healthy;
		// what follows is a fresh failure, not continued flapping.
		if time.Since(connectedAt) >= e.cfg.Policy.Grace {
			attempt = 0
		}

		if termErr != nil {
			e.log.Warn("stream failed", zap.Error(termErr), zap.Int("attempt", attempt))
		} else {
			e.log.Info("stream closed by service", zap.Int("attempt", attempt))
		}

		e.sched.Rebuffer()
		if !e.retry(ctx, &attempt, termErr) {
			return
		}
	}
}

// retry consults the policy. On a retry decision it waits out the delay;
// otherwise it surfaces the fatal error and stops playback.
func (e *Engine) retry(ctx context.Context, attempt *int, cause error) bool {
	dec := e.cfg.Policy.Decide(*attempt)
	if !dec.Retry {
		e.fatal(cause)
		return false
	}
	*attempt++

	select {
	case <-time.After(dec.Delay):
		return true
	case <-ctx.Done():
		return false
	}
}

// consume processes one session's event stream until it terminates.
// Returns the terminal stream error, or nil for a clean close.
func (e *Engine) consume(ctx context.Context, sess *session.Session) error {
	var termErr error
	for {
		select {
		case <-ctx.Done():
			sess.Close()
			for range sess.Events() {
			}
			return nil

		case ev, ok := <-sess.Events():
			if !ok {
				return termErr
			}
			switch ev.Kind {
			case session.EventChunk:
				c := ev.Chunk
				if c.Format == "" {
					c.Format = e.cfg.ChunkFormat
				}
				samples, err := audio.DecodeChunk(c)
				if err != nil {
					e.log.Warn("chunk decode failed", zap.Error(err))
					continue
				}
				e.sched.Enqueue(samples)

			case session.EventFilteredPrompt:
				e.log.Info("prompt filtered",
					zap.String("text", ev.Filtered.Text),
					zap.String("reason", ev.Filtered.Reason))
				e.publish(Event{Kind: EventFilteredPrompt, Filtered: ev.Filtered})

			case session.EventError:
				termErr = ev.Err

			case session.EventClosed:
				termErr = nil
			}
		}
	}
}

// fatal ends playback for good: state goes to stopped and exactly one
// error event reaches the observers. The user can retry via PlayPause.
func (e *Engine) fatal(cause error) {
	msg := "playback failed"
	if cause != nil {
		msg = cause.Error()
	}
	e.log.Error("giving up on stream", zap.Error(cause))

	e.mu.Lock()
	cancel := e.playCancel
	e.playCancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	e.sched.Stop()
	e.publish(Event{Kind: EventError, Message: msg})
}

// onSchedState maps scheduler transitions onto the published state and
// ties the level meter 1:1 to playing.
func (e *Engine) onSchedState(st player.State) {
	var s State
	switch st {
	case player.StateLoading:
		s = StateLoading
	case player.StatePlaying:
		s = StatePlaying
	case player.StatePaused:
		s = StatePaused
	default:
		s = StateStopped
	}

	e.mu.Lock()
	changed := e.state != s
	e.state = s
	e.mu.Unlock()
	if !changed {
		return
	}

	if s == StatePlaying {
		e.meter.Start()
	} else {
		e.meter.Stop()
	}

	e.log.Info("playback state", zap.String("state", s.String()))
	e.publish(Event{Kind: EventState, State: s})
}
