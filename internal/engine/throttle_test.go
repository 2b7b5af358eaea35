package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sink struct {
	mu   sync.Mutex
	vals []int
}

func (s *sink) send(v int) {
	s.mu.Lock()
	s.vals = append(s.vals, v)
	s.mu.Unlock()
}

func (s *sink) values() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.vals...)
}

func TestThrottleBurstCollapsesToLast(t *testing.T) {
	s := &sink{}
	th := newThrottle(30*time.Millisecond, s.send)
	defer th.Stop()

	th.Set(140)
	th.Set(90)
	th.Set(130)

	require.Eventually(t, func() bool { return len(s.values()) > 0 },
		time.Second, time.Millisecond)
	time.Sleep(60 * time.Millisecond) // no straggler sends

	assert.Equal(t, []int{130}, s.values())
}

func TestThrottleLastValueAlwaysSent(t *testing.T) {
	s := &sink{}
	th := newThrottle(10*time.Millisecond, s.send)
	defer th.Stop()

	th.Set(1)
	require.Eventually(t, func() bool { return len(s.values()) == 1 },
		time.Second, time.Millisecond)

	// A lone Set long after the last flush still arrives
	time.Sleep(30 * time.Millisecond)
	th.Set(2)
	require.Eventually(t, func() bool { return len(s.values()) == 2 },
		time.Second, time.Millisecond)

	assert.Equal(t, []int{1, 2}, s.values())
}

func TestThrottleSpacesSteadyStream(t *testing.T) {
	s := &sink{}
	th := newThrottle(20*time.Millisecond, s.send)
	defer th.Stop()

	// 100ms of continuous knob movement
	deadline := time.Now().Add(100 * time.Millisecond)
	v := 0
	for time.Now().Before(deadline) {
		v++
		th.Set(v)
		time.Sleep(time.Millisecond)
	}

	require.Eventually(t, func() bool {
		vals := s.values()
		return len(vals) > 0 && vals[len(vals)-1] == v
	}, time.Second, time.Millisecond, "the final value must land")

	got := s.values()
	assert.LessOrEqual(t, len(got), 7, "a 100ms stream at a 20ms limit must not send per-edit")
	for i := 1; i < len(got); i++ {
		assert.Greater(t, got[i], got[i-1], "sends must be in edit order")
	}
}

func TestThrottleStopDropsPending(t *testing.T) {
	s := &sink{}
	th := newThrottle(20*time.Millisecond, s.send)

	th.Set(42)
	th.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, s.values())
}
