package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNewRandomDelay_Validation(t *testing.T) {
	tests := []struct {
		name        string
		min, max    time.Duration
		expectError bool
	}{
		{"default bounds", DefaultThrottleMin, DefaultThrottleMax, false},
		{"zero span", time.Second, time.Second, false},
		{"negative min", -time.Second, time.Second, true},
		{"max below min", 5 * time.Second, time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRandomDelay(tt.min, tt.max, zerolog.Nop())
			if (err != nil) != tt.expectError {
				t.Errorf("NewRandomDelay() error = %v, expectError %v", err, tt.expectError)
			}
		})
	}
}

func TestRandomDelay_DrawWithinBounds(t *testing.T) {
	d := DefaultThrottle(zerolog.Nop())

	seen := map[time.Duration]bool{}
	for i := 0; i < 200; i++ {
		delay := d.Draw()
		if delay < DefaultThrottleMin || delay > DefaultThrottleMax {
			t.Fatalf("Draw() = %v, want within [%v, %v]", delay, DefaultThrottleMin, DefaultThrottleMax)
		}
		seen[delay] = true
	}

	// Independent draws per request, not a fixed schedule.
	if len(seen) < 2 {
		t.Error("Draw() returned the same delay every time")
	}
}

func TestRandomDelay_DrawUsesSource(t *testing.T) {
	d, err := NewRandomDelay(time.Second, 5*time.Second, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRandomDelay() error = %v", err)
	}

	d.float = func() float64 { return 0.5 }
	if got := d.Draw(); got != 3*time.Second {
		t.Errorf("Draw() = %v, want 3s", got)
	}

	d.float = func() float64 { return 0 }
	if got := d.Draw(); got != time.Second {
		t.Errorf("Draw() = %v, want 1s", got)
	}
}

func TestRandomDelay_Wait(t *testing.T) {
	d, err := NewRandomDelay(20*time.Millisecond, 30*time.Millisecond, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRandomDelay() error = %v", err)
	}

	start := time.Now()
	if err := d.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait() returned after %v, want >= 20ms", elapsed)
	}
}

func TestRandomDelay_WaitCancelled(t *testing.T) {
	d := DefaultThrottle(zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := d.Wait(ctx)
	if !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Wait() error = %v, want ErrContextCancelled", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Wait() ignored cancellation, took %v", elapsed)
	}
}

func TestNoDelay(t *testing.T) {
	if err := (NoDelay{}).Wait(context.Background()); err != nil {
		t.Errorf("Wait() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := (NoDelay{}).Wait(ctx); !errors.Is(err, ErrContextCancelled) {
		t.Errorf("Wait() error = %v, want ErrContextCancelled", err)
	}
}
