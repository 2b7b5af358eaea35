package session

import (
	"math/rand/v2"
	"time"
)

// ReconnectPolicy decides whether and when to retry a failed connection.
// Pure decision logic; the caller owns timers and attempt counting.
type ReconnectPolicy struct {
	Base        time.Duration // first retry delay
	Max         time.Duration // delay cap
	MaxAttempts int           // retries before the failure is fatal
	Grace       time.Duration // stable-playback time that resets the attempt count
}

// Decision is the outcome for a single attempt.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// DefaultReconnectPolicy matches the config defaults.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		Base:        500 * time.Millisecond,
		Max:         10 * time.Second,
		MaxAttempts: 5,
		Grace:       5 * time.Second,
	}
}

// Decide returns the decision for the given zero-based attempt number.
// Delay doubles per attempt up to Max, plus jitter in [0, delay/4) so a
// fleet of clients never reconnects in lockstep.
func (p ReconnectPolicy) Decide(attempt int) Decision {
	if attempt >= p.MaxAttempts {
		return Decision{}
	}
	return Decision{Retry: true, Delay: jitter(p.baseDelay(attempt))}
}

// baseDelay is the exponential delay before jitter.
func (p ReconnectPolicy) baseDelay(attempt int) time.Duration {
	d := p.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= p.Max {
			return p.Max
		}
	}
	if d > p.Max {
		d = p.Max
	}
	return d
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return d
	}
	return d + rand.N(d/4+1)
}
