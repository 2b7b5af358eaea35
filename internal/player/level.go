package player

import (
	"context"
	"math"
	"sync"
	"time"
)

// LevelMeter derives a normalized RMS level from the outgoing frame stream
// for visualization. It is a read-only tap: it never touches the scheduler
// and a slow consumer costs nothing but stale meters.
type LevelMeter struct {
	period time.Duration
	emit   func(float64)

	mu      sync.Mutex
	running bool
	sumsq   float64
	count   int
}

// NewLevelMeter creates a meter emitting at the given period through fn.
func NewLevelMeter(period time.Duration, fn func(float64)) *LevelMeter {
	if period <= 0 {
		period = 50 * time.Millisecond
	}
	return &LevelMeter{period: period, emit: fn}
}

// Start enables emission. Idempotent.
func (m *LevelMeter) Start() {
	m.mu.Lock()
	m.running = true
	m.mu.Unlock()
}

// Stop disables emission and clears accumulated samples. Idempotent.
func (m *LevelMeter) Stop() {
	m.mu.Lock()
	m.running = false
	m.sumsq = 0
	m.count = 0
	m.mu.Unlock()
}

// Running reports whether the meter is emitting.
func (m *LevelMeter) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Run consumes frames and emits one level per period while started.
// Blocks until ctx is cancelled or the frame channel closes.
func (m *LevelMeter) Run(ctx context.Context, frames <-chan []int16) {
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			m.accumulate(frame)
		case <-ticker.C:
			if level, ok := m.sample(); ok {
				m.emit(level)
			}
		}
	}
}

// Measure returns the normalized RMS of a single frame in [0,1].
func Measure(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sumsq float64
	for _, s := range frame {
		v := float64(s)
		sumsq += v * v
	}
	rms := math.Sqrt(sumsq/float64(len(frame))) / 32768.0
	if rms > 1 {
		rms = 1
	}
	return rms
}

func (m *LevelMeter) accumulate(frame []int16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	for _, s := range frame {
		v := float64(s)
		m.sumsq += v * v
	}
	m.count += len(frame)
}

// sample drains the accumulator. Returns false when no new audio arrived
// since the last period, so consumers only see freshly computed levels.
func (m *LevelMeter) sample() (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.count == 0 {
		return 0, false
	}
	rms := math.Sqrt(m.sumsq/float64(m.count)) / 32768.0
	if rms > 1 {
		rms = 1
	}
	m.sumsq = 0
	m.count = 0
	return rms, true
}
