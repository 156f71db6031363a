package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for upstream block tracking.
var (
	upstreamBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finnews_upstream_blocks_total",
		Help: "Total number of block responses (429/456) received from upstream",
	})

	blockedRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "finnews_blocked_requests_total",
		Help: "Total number of requests refused locally during an upstream cooldown",
	})

	cooldownSeconds = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "finnews_upstream_cooldown_seconds",
		Help: "Cooldown applied by the most recent upstream block",
	})
)

// Tracker records upstream blocks and gates requests while a block is active.
type Tracker struct {
	redis    *redis.Client
	scope    string
	keys     keySet
	cooldown time.Duration
	logger   zerolog.Logger
}

// NewTracker creates a new block tracker for one upstream scope, usually the
// host. cooldown is used when a block response carries no Retry-After header.
func NewTracker(redisClient *redis.Client, scope string, cooldown time.Duration, logger zerolog.Logger) *Tracker {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if scope == "" {
		scope = DefaultScope
	}
	return &Tracker{
		redis:    redisClient,
		scope:    scope,
		keys:     keysFor(scope),
		cooldown: cooldown,
		logger:   logger.With().Str("scope", scope).Logger(),
	}
}

// GetState retrieves the current block state from Redis.
// Returns an unblocked state if nothing has been recorded.
func (t *Tracker) GetState(ctx context.Context) (*BlockState, error) {
	values, err := t.redis.MGet(ctx, t.keys.blockedUntil, t.keys.count, t.keys.lastUpdate).Result()
	if err != nil {
		return nil, fmt.Errorf("get block state: %w", err)
	}

	state := &BlockState{}
	if values[0] == nil {
		t.logger.Debug().Msg("No block state in Redis, upstream assumed reachable")
		return state, nil
	}

	untilMillis, err := parseInt(values[0])
	if err != nil {
		return nil, fmt.Errorf("parse blocked_until: %w", err)
	}
	state.BlockedUntil = time.UnixMilli(untilMillis)

	if values[1] != nil {
		if state.Blocks, err = parseInt(values[1]); err != nil {
			return nil, fmt.Errorf("parse block count: %w", err)
		}
	}

	if values[2] != nil {
		lastMillis, err := parseInt(values[2])
		if err != nil {
			return nil, fmt.Errorf("parse last update: %w", err)
		}
		state.LastUpdate = time.UnixMilli(lastMillis)
	}

	return state, nil
}

// RecordBlock stores a cooldown deadline after the upstream answered with a
// block status. retryAfter overrides the tracker cooldown when positive.
func (t *Tracker) RecordBlock(ctx context.Context, status int, retryAfter time.Duration) (*BlockState, error) {
	cooldown := clampCooldown(retryAfter, t.cooldown)
	now := time.Now()
	until := now.Add(cooldown)

	// Keys outlive the deadline slightly so GetState still sees the count.
	ttl := cooldown + time.Minute

	pipe := t.redis.TxPipeline()
	pipe.Set(ctx, t.keys.blockedUntil, until.UnixMilli(), ttl)
	count := pipe.Incr(ctx, t.keys.count)
	pipe.Set(ctx, t.keys.lastUpdate, now.UnixMilli(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store block state in redis: %w", err)
	}

	upstreamBlocksTotal.Inc()
	cooldownSeconds.Set(cooldown.Seconds())

	state := &BlockState{
		BlockedUntil: until,
		Blocks:       count.Val(),
		LastUpdate:   now,
	}

	t.logger.Error().
		Int("status", status).
		Dur("cooldown", cooldown).
		Time("blocked_until", until).
		Int64("blocks", state.Blocks).
		Msg("Upstream blocked client - pausing requests")

	return state, nil
}

// ShouldAllowRequest returns false while an upstream cooldown is active.
func (t *Tracker) ShouldAllowRequest(ctx context.Context) (bool, error) {
	state, err := t.GetState(ctx)
	if err != nil {
		return false, fmt.Errorf("get block state: %w", err)
	}

	if state.IsBlocked() {
		if state.IsStale(MaxCooldown) {
			t.logger.Warn().
				Time("last_update", state.LastUpdate).
				Time("blocked_until", state.BlockedUntil).
				Msg("Ignoring stale block state")
			return true, nil
		}
		t.logger.Warn().
			Dur("remaining", state.TimeUntilUnblock()).
			Msg("Upstream cooldown active - refusing request")
		blockedRequestsTotal.Inc()
		return false, nil
	}

	return true, nil
}

// Reset clears any recorded block.
func (t *Tracker) Reset(ctx context.Context) error {
	if err := t.redis.Del(ctx, t.keys.blockedUntil, t.keys.count, t.keys.lastUpdate).Err(); err != nil {
		return fmt.Errorf("reset block state: %w", err)
	}
	cooldownSeconds.Set(0)
	return nil
}

// ParseRetryAfter reads the Retry-After header, either delta-seconds or an
// HTTP date. Returns 0 when absent or unparsable.
func ParseRetryAfter(headers http.Header) time.Duration {
	value := strings.TrimSpace(headers.Get("Retry-After"))
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func parseInt(v interface{}) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, errors.New("unexpected value type")
	}
	return strconv.ParseInt(s, 10, 64)
}
