package export

import (
	"context"
	"math/rand/v2"
	"time"

	apperrors "github.com/jittakal/kafeventcsv/internal/errors"
)

// RetryConfig retries uploads of rotated objects that fail with a retryable
// error. The zero value makes a single attempt.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	Jitter            bool
}

func (c RetryConfig) withDefaults() RetryConfig {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2
	}
	return c
}

// do calls fn until it succeeds, fails with an error IsRetryable rejects, or
// the attempts run out. The last error is returned.
func (c RetryConfig) do(ctx context.Context, fn func() error) error {
	c = c.withDefaults()
	delay := c.InitialBackoff

	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(); err == nil || !apperrors.IsRetryable(err) || attempt == c.MaxAttempts {
			return err
		}

		d := delay
		if c.Jitter {
			d = time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
		}
		timer := time.NewTimer(min(d, c.MaxBackoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}

		delay = min(time.Duration(float64(delay)*c.BackoffMultiplier), c.MaxBackoff)
	}
}
