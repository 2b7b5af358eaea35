package player

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasure(t *testing.T) {
	assert.Equal(t, 0.0, Measure(nil))
	assert.Equal(t, 0.0, Measure([]int16{0, 0, 0, 0}))

	// Full-scale DC reads as (almost exactly) 1
	full := make([]int16, 960)
	for i := range full {
		full[i] = 32767
	}
	assert.InDelta(t, 1.0, Measure(full), 0.001)

	// Half-scale reads as roughly 0.5
	half := make([]int16, 960)
	for i := range half {
		half[i] = 16384
	}
	assert.InDelta(t, 0.5, Measure(half), 0.001)
}

func TestMeterStartStopIdempotent(t *testing.T) {
	m := NewLevelMeter(10*time.Millisecond, func(float64) {})

	m.Start()
	m.Start()
	assert.True(t, m.Running())

	m.Stop()
	m.Stop()
	assert.False(t, m.Running())
}

func TestMeterEmitsOnlyFreshSamples(t *testing.T) {
	m := NewLevelMeter(10*time.Millisecond, func(float64) {})
	m.Start()

	if _, ok := m.sample(); ok {
		t.Fatal("sample with no accumulated audio must report nothing")
	}

	m.accumulate([]int16{16384, 16384, 16384, 16384})
	level, ok := m.sample()
	require.True(t, ok)
	assert.InDelta(t, 0.5, level, 0.001)

	// Accumulator drained: no stale re-emission
	if _, ok := m.sample(); ok {
		t.Fatal("sample must not re-emit a drained accumulator")
	}
}

func TestMeterIgnoresAudioWhileStopped(t *testing.T) {
	m := NewLevelMeter(10*time.Millisecond, func(float64) {})
	m.accumulate([]int16{16384, 16384})
	if _, ok := m.sample(); ok {
		t.Fatal("stopped meter must not accumulate or emit")
	}
}

func TestMeterRunEmitsLevels(t *testing.T) {
	levels := make(chan float64, 16)
	m := NewLevelMeter(5*time.Millisecond, func(v float64) { levels <- v })
	m.Start()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan []int16, 8)
	go m.Run(ctx, frames)

	loud := make([]int16, 1920)
	for i := range loud {
		loud[i] = 20000
	}
	frames <- loud

	select {
	case v := <-levels:
		assert.Greater(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	case <-time.After(time.Second):
		t.Fatal("meter emitted no level")
	}
}
