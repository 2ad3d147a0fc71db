package events

import (
	"context"
	"math"
	"time"
)

// Backoff defines exponential reconnect delays.
type Backoff struct {
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (b Backoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if b.InitialDelay <= 0 {
		b.InitialDelay = time.Second
	}
	if b.BackoffFactor <= 0 {
		b.BackoffFactor = 2
	}

	delay := float64(b.InitialDelay) * math.Pow(b.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if b.MaxDelay > 0 && (d > b.MaxDelay || delay > float64(math.MaxInt64)) {
		d = b.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// Wait sleeps for the attempt's delay or until ctx is done.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.NextDelay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
