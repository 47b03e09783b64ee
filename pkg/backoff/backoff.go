// Package backoff implements the bounded exponential backoff that drives
// connect retries and reconnection for one session.
package backoff

import (
	"math"
	"time"
)

const (
	defaultBase     = time.Second
	defaultExponent = 2.0
	defaultMaxValue = 30 * time.Second
)

// Config holds the backoff parameters. Zero values select the defaults
// noted on each field. A MaxTries of zero or less means unbounded retries.
type Config struct {
	Base     time.Duration // first delay; default 1s
	Exponent float64       // per-attempt multiplier; default 2.0
	MaxValue time.Duration // delay cap; default 30s
	MaxTries int           // attempts before exhaustion; <=0 means unbounded
}

func (c Config) withDefaults() Config {
	if c.Base <= 0 {
		c.Base = defaultBase
	}
	if c.Exponent < 1 {
		c.Exponent = defaultExponent
	}
	if c.MaxValue <= 0 {
		c.MaxValue = defaultMaxValue
	}
	return c
}

// DelayFor returns the delay for a given attempt count:
// min(base * exponent^attempt, maxValue). It is a pure function of its
// inputs and never signals exhaustion; see Backoff.Delay for that.
func DelayFor(cfg Config, attempt int) time.Duration {
	cfg = cfg.withDefaults()
	d := float64(cfg.Base) * math.Pow(cfg.Exponent, float64(attempt))
	if d > float64(cfg.MaxValue) {
		return cfg.MaxValue
	}
	return time.Duration(d)
}

// Backoff tracks the attempt count for one session. It has a single logical
// owner at any time: the connect orchestration and the reconnection task
// take turns, never overlapping, so no internal locking is done.
type Backoff struct {
	cfg      Config
	attempts int
}

// New returns a Backoff with cfg's zero fields replaced by defaults.
func New(cfg Config) *Backoff {
	return &Backoff{cfg: cfg.withDefaults()}
}

// Delay returns the next retry delay and true, or (0, false) once the
// configured attempt budget is exhausted. Each successful call consumes one
// attempt.
func (b *Backoff) Delay() (time.Duration, bool) {
	if b.cfg.MaxTries > 0 && b.attempts >= b.cfg.MaxTries {
		return 0, false
	}
	d := DelayFor(b.cfg, b.attempts)
	b.attempts++
	return d, true
}

// Reset clears the attempt count. Called after every successful
// connect+login sequence.
func (b *Backoff) Reset() { b.attempts = 0 }

// Attempts returns the number of delays handed out since the last reset.
func (b *Backoff) Attempts() int { return b.attempts }
