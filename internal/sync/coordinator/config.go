package coordinator

import (
	"math/rand/v2"
	"time"
)

// Config holds the run loop schedule of one sync target
type Config struct {
	// Name is the sync target whose status is tracked
	Name string
	// Interval is the delay between the end of one run and the start of the next
	Interval time.Duration
	// Jitter is the maximum random offset (±) applied to every delay
	Jitter time.Duration
	// RunOnStart starts the first run immediately instead of after one delay
	RunOnStart bool
}

func (c Config) schedule() string {
	return c.Interval.String()
}

// nextDelay returns the interval with a random jitter applied, never below zero
func (c Config) nextDelay() time.Duration {
	delay := c.Interval
	if c.Jitter > 0 {
		//nolint:gosec // G404: Non-cryptographic randomness is sufficient for scheduling jitter
		delay += time.Duration(rand.Int64N(int64(2*c.Jitter)+1)) - c.Jitter
	}
	return max(delay, 0)
}
