package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kdhillon/promptdeck/internal/audio"
)

func newTestScheduler(threshold time.Duration) *Scheduler {
	return New(Config{StartBuffer: threshold}, zap.NewNop())
}

// step advances the scheduler by one clock tick, running any deferred
// callbacks the way Run would.
func step(s *Scheduler) []int16 {
	frame, notify := s.tick()
	if notify != nil {
		notify()
	}
	return frame
}

func frames(n int) []int16 {
	return make([]int16, n*audio.FrameSamples)
}

func TestSchedulerStartsIdle(t *testing.T) {
	s := newTestScheduler(100 * time.Millisecond)
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, step(s), "idle scheduler must emit nothing")
}

func TestEnqueueWhileIdleIsDropped(t *testing.T) {
	s := newTestScheduler(100 * time.Millisecond)
	s.Enqueue(frames(3))
	assert.Equal(t, time.Duration(0), s.Buffered())
}

func TestBufferingThresholdGatesPlayback(t *testing.T) {
	s := newTestScheduler(100 * time.Millisecond)
	s.Start()
	require.Equal(t, StateLoading, s.State())

	// 40ms buffered: below the 100ms threshold, no output yet
	s.Enqueue(frames(2))
	assert.Nil(t, step(s))
	assert.Equal(t, StateLoading, s.State())

	// Crossing the threshold starts playback on the next tick
	s.Enqueue(frames(3))
	frame := step(s)
	require.NotNil(t, frame)
	assert.Equal(t, StatePlaying, s.State())
	assert.Len(t, frame, audio.FrameSamples)
}

func TestUnderrunHoldsPlayingAndReportsOnce(t *testing.T) {
	s := newTestScheduler(40 * time.Millisecond)
	underruns := 0
	s.SetUnderrunFunc(func() { underruns++ })

	s.Start()
	s.Enqueue(frames(2))
	require.NotNil(t, step(s))
	require.NotNil(t, step(s))
	require.Equal(t, StatePlaying, s.State())

	// Starved: the clock keeps running, state holds, one diagnostic fires
	for i := 0; i < 5; i++ {
		frame := step(s)
		require.NotNil(t, frame, "starved scheduler must keep emitting, tick %d", i)
		assert.Len(t, frame, audio.FrameSamples)
	}
	assert.Equal(t, StatePlaying, s.State(), "an underrun never stops playback")
	assert.Equal(t, 1, underruns, "exactly one diagnostic per starvation episode")

	// New audio ends the episode; the next starvation is a new one
	s.Enqueue(frames(1))
	require.NotNil(t, step(s))
	require.NotNil(t, step(s)) // starved again
	assert.Equal(t, 2, underruns)
}

func TestUnderrunFadesTailToSilence(t *testing.T) {
	s := newTestScheduler(20 * time.Millisecond)
	s.Start()

	loud := make([]int16, audio.FrameSamples)
	for i := range loud {
		loud[i] = 10000
	}
	s.Enqueue(loud)
	require.NotNil(t, step(s))

	first := step(s) // first starved frame: faded tail
	require.NotNil(t, first)
	assert.Less(t, first[0], int16(10000), "starved output must fade, not repeat at full level")

	// The fade is monotone all the way down
	prev := first[0]
	for i := 0; i < 12; i++ {
		frame := step(s)
		require.NotNil(t, frame)
		assert.LessOrEqual(t, frame[0], prev, "fade must never get louder, tick %d", i)
		prev = frame[0]
	}
	assert.Equal(t, int16(0), prev, "fade must bottom out at silence")
}

func TestResumeBelowThresholdRebuffers(t *testing.T) {
	s := newTestScheduler(60 * time.Millisecond)
	s.Start()
	s.Enqueue(frames(3))
	require.NotNil(t, step(s))
	require.NotNil(t, step(s)) // one frame left, below the 60ms threshold

	s.Pause()
	s.Resume()
	assert.Equal(t, StateLoading, s.State(), "resume below the threshold must rebuffer, not play")
	assert.Nil(t, step(s), "no output until the threshold refills")

	s.Enqueue(frames(2))
	require.NotNil(t, step(s))
	assert.Equal(t, StatePlaying, s.State())
}

func TestPauseRetainsBufferAndHaltsClock(t *testing.T) {
	s := newTestScheduler(40 * time.Millisecond)
	s.Start()
	s.Enqueue(frames(5))
	require.NotNil(t, step(s))

	buffered := s.Buffered()
	s.Pause()
	assert.Equal(t, StatePaused, s.State())
	assert.Nil(t, step(s), "paused clock emits nothing")
	assert.Equal(t, buffered, s.Buffered(), "pause must not discard buffered audio")

	s.Resume()
	assert.Equal(t, StatePlaying, s.State())
	assert.NotNil(t, step(s))
}

func TestStopDiscardsBuffer(t *testing.T) {
	s := newTestScheduler(40 * time.Millisecond)
	s.Start()
	s.Enqueue(frames(5))
	require.NotNil(t, step(s))

	s.Stop()
	assert.Equal(t, StateIdle, s.State())
	assert.Equal(t, time.Duration(0), s.Buffered())
	assert.Nil(t, step(s))
}

func TestRebufferReturnsToLoading(t *testing.T) {
	s := newTestScheduler(60 * time.Millisecond)
	s.Start()
	s.Enqueue(frames(3))
	require.NotNil(t, step(s))
	require.Equal(t, StatePlaying, s.State())

	s.Rebuffer()
	assert.Equal(t, StateLoading, s.State())

	// Existing buffer counts toward the threshold on the way back up
	s.Enqueue(frames(2))
	require.NotNil(t, step(s))
	assert.Equal(t, StatePlaying, s.State())
}

func TestStateCallbacks(t *testing.T) {
	s := newTestScheduler(20 * time.Millisecond)
	var states []State
	s.SetStateFunc(func(st State) { states = append(states, st) })

	s.Start()
	s.Enqueue(frames(2))
	step(s)
	s.Pause()
	s.Resume()
	s.Stop()

	assert.Equal(t, []State{StateLoading, StatePlaying, StatePaused, StatePlaying, StateIdle}, states)
}

func TestRunEmitsFramesOnTheClock(t *testing.T) {
	s := newTestScheduler(20 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s.Start()
	s.Enqueue(frames(10))
	go s.Run(ctx)

	select {
	case frame := <-s.Frames():
		assert.Len(t, frame, audio.FrameSamples)
	case <-time.After(time.Second):
		t.Fatal("no frame emitted within a second")
	}
}
