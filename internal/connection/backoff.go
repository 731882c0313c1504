package connection

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Reconnect strategies accepted by NewBackoff.
const (
	StrategyFixed       = "fixed"
	StrategyExponential = "exponential"
)

// Backoff decides how long to wait before a reconnect attempt. attempt
// starts at 1.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// FixedBackoff waits the same duration before every attempt.
type FixedBackoff struct {
	Wait time.Duration
}

func (b FixedBackoff) Delay(int) time.Duration {
	return b.Wait
}

// ExponentialBackoff doubles Base each attempt up to Max, then subtracts up
// to Jitter*delay of random wait, so delays fall in [d*(1-Jitter), d] and
// never exceed Max.
type ExponentialBackoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter float64 // 0..1

	rand func() float64
}

func (b ExponentialBackoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(b.Base) * math.Pow(2, float64(attempt-1))
	if b.Max > 0 && d > float64(b.Max) {
		d = float64(b.Max)
	}

	if b.Jitter > 0 {
		r := b.rand
		if r == nil {
			r = rand.Float64
		}
		d -= d * min(b.Jitter, 1) * r()
	}
	return time.Duration(d)
}

// NewBackoff builds the policy named by strategy.
func NewBackoff(strategy string, base, maxWait time.Duration, jitter float64) (Backoff, error) {
	switch strategy {
	case "", StrategyFixed:
		return FixedBackoff{Wait: base}, nil
	case StrategyExponential:
		return ExponentialBackoff{Base: base, Max: maxWait, Jitter: jitter}, nil
	default:
		return nil, fmt.Errorf("unknown reconnect strategy %q", strategy)
	}
}
