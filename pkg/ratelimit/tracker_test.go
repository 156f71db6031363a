package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis connects to a local Redis and skips when none is running.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name     string
		value    string
		expected time.Duration
	}{
		{"absent", "", 0},
		{"seconds", "120", 2 * time.Minute},
		{"negative", "-5", 0},
		{"garbage", "soon", 0},
		{"past date", time.Now().Add(-time.Hour).UTC().Format(http.TimeFormat), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.value != "" {
				headers.Set("Retry-After", tt.value)
			}
			if got := ParseRetryAfter(headers); got != tt.expected {
				t.Errorf("ParseRetryAfter(%q) = %v, want %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestParseRetryAfter_FutureDate(t *testing.T) {
	headers := http.Header{}
	headers.Set("Retry-After", time.Now().Add(10*time.Minute).UTC().Format(http.TimeFormat))

	got := ParseRetryAfter(headers)
	if got < 8*time.Minute || got > 10*time.Minute {
		t.Errorf("ParseRetryAfter() = %v, want about 10m", got)
	}
}

func TestNewTracker_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewTracker should panic with nil redis client")
		}
	}()
	NewTracker(nil, "news.example", time.Minute, zerolog.Nop())
}

func TestTracker_RecordAndGate(t *testing.T) {
	redisClient := setupTestRedis(t)
	tracker := NewTracker(redisClient, "news.example", time.Minute, zerolog.Nop())
	ctx := context.Background()

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Fatal("request should be allowed before any block")
	}

	state, err := tracker.RecordBlock(ctx, StatusUpstreamBlocked, 0)
	if err != nil {
		t.Fatalf("RecordBlock() error = %v", err)
	}
	if state.Blocks != 1 {
		t.Errorf("Blocks = %d, want 1", state.Blocks)
	}

	allowed, err = tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if allowed {
		t.Error("request should be refused during cooldown")
	}

	stored, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !stored.IsBlocked() {
		t.Error("stored state should be blocked")
	}

	if err := tracker.Reset(ctx); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	allowed, _ = tracker.ShouldAllowRequest(ctx)
	if !allowed {
		t.Error("request should be allowed after reset")
	}
}

func TestKeysFor_Scoped(t *testing.T) {
	keys := keysFor("hq.sinajs.cn")
	if keys.blockedUntil != "finnews:upstream_block:hq.sinajs.cn:blocked_until" {
		t.Errorf("blockedUntil = %q", keys.blockedUntil)
	}
	if keys.count != "finnews:upstream_block:hq.sinajs.cn:count" {
		t.Errorf("count = %q", keys.count)
	}
	if got := BlockedUntilKey(""); got != "finnews:upstream_block:default:blocked_until" {
		t.Errorf("BlockedUntilKey(\"\") = %q", got)
	}
}

func TestTracker_ScopesAreIndependent(t *testing.T) {
	redisClient := setupTestRedis(t)
	ctx := context.Background()

	sina := NewTracker(redisClient, "zhibo.sina.com.cn", time.Minute, zerolog.Nop())
	market := NewTracker(redisClient, "www.alphavantage.co", time.Minute, zerolog.Nop())

	if _, err := sina.RecordBlock(ctx, StatusUpstreamBlocked, 0); err != nil {
		t.Fatalf("RecordBlock() error = %v", err)
	}

	allowed, err := market.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("a block on one host must not gate another host")
	}

	allowed, _ = sina.ShouldAllowRequest(ctx)
	if allowed {
		t.Error("blocked host should stay gated")
	}
}

func TestTracker_IgnoresStaleState(t *testing.T) {
	redisClient := setupTestRedis(t)
	ctx := context.Background()
	tracker := NewTracker(redisClient, "news.example", time.Minute, zerolog.Nop())

	// A deadline far ahead of its write time, as left by a writer with a
	// skewed clock.
	written := time.Now().Add(-2 * MaxCooldown)
	keys := keysFor("news.example")
	redisClient.Set(ctx, keys.blockedUntil, time.Now().Add(time.Hour).UnixMilli(), time.Hour)
	redisClient.Set(ctx, keys.count, 1, time.Hour)
	redisClient.Set(ctx, keys.lastUpdate, written.UnixMilli(), time.Hour)

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() error = %v", err)
	}
	if !state.IsBlocked() || !state.IsStale(MaxCooldown) {
		t.Fatalf("state = %+v, want blocked and stale", state)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() error = %v", err)
	}
	if !allowed {
		t.Error("stale block state should not gate requests")
	}
}
