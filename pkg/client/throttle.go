package client

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// Throttle blocks before an outbound request.
type Throttle interface {
	Wait(ctx context.Context) error
}

// Default throttle bounds.
const (
	DefaultThrottleMin = 1 * time.Second
	DefaultThrottleMax = 5 * time.Second
)

// RandomDelay waits a duration drawn uniformly from [Min, Max] on every call.
type RandomDelay struct {
	Min time.Duration
	Max time.Duration

	logger zerolog.Logger
	float  func() float64
}

// NewRandomDelay creates a randomized throttle.
func NewRandomDelay(min, max time.Duration, logger zerolog.Logger) (*RandomDelay, error) {
	if min < 0 {
		return nil, fmt.Errorf("throttle min must be >= 0 (got %s)", min)
	}
	if max < min {
		return nil, fmt.Errorf("throttle max %s is below min %s", max, min)
	}
	return &RandomDelay{
		Min:    min,
		Max:    max,
		logger: logger,
		float:  rand.Float64,
	}, nil
}

// DefaultThrottle returns the 1s-5s randomized throttle.
func DefaultThrottle(logger zerolog.Logger) *RandomDelay {
	d, _ := NewRandomDelay(DefaultThrottleMin, DefaultThrottleMax, logger)
	return d
}

// Draw picks the next delay.
func (d *RandomDelay) Draw() time.Duration {
	span := d.Max - d.Min
	if span <= 0 {
		return d.Min
	}
	return d.Min + time.Duration(d.float()*float64(span))
}

// Wait sleeps for a freshly drawn delay or until ctx is done.
func (d *RandomDelay) Wait(ctx context.Context) error {
	delay := d.Draw()
	throttleDelaySeconds.Observe(delay.Seconds())

	d.logger.Debug().
		Dur("delay", delay).
		Msg("Throttling before request")

	return sleep(ctx, delay)
}

// NoDelay is a Throttle that never waits. Intended for tests and for
// single-request callers.
type NoDelay struct{}

// Wait returns immediately unless ctx is already done.
func (NoDelay) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrContextCancelled, err)
	}
	return nil
}

// sleep waits for d, honoring ctx cancellation.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrContextCancelled, err)
		}
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrContextCancelled, ctx.Err())
	case <-timer.C:
		return nil
	}
}
