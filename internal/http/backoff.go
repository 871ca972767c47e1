package http

import (
	"context"
	"math"
	"time"
)

// maxRetryWait caps any single wait, including server Retry-After hints.
const maxRetryWait = 60 * time.Second

// Backoff computes exponential retry cooldowns: Cooldown * Exponent^tries.
type Backoff struct {
	Cooldown time.Duration
	Exponent float64
}

// Delay returns the wait before retry number tries+1. A server hint longer
// than the computed delay wins.
func (b Backoff) Delay(tries int, hint time.Duration) time.Duration {
	exp := b.Exponent
	if exp < 1 {
		exp = 1
	}
	d := time.Duration(float64(b.Cooldown) * math.Pow(exp, float64(tries)))
	if hint > d {
		d = hint
	}
	if d > maxRetryWait {
		d = maxRetryWait
	}
	return d
}

// Wait blocks for Delay(tries, hint) or until ctx is done.
func (b Backoff) Wait(ctx context.Context, tries int, hint time.Duration) error {
	d := b.Delay(tries, hint)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
