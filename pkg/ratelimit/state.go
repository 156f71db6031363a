// Package ratelimit tracks upstream blocks and gates outbound requests.
//
// Sina answers with HTTP 456 (and sometimes 429) once it decides a client
// is scraping too aggressively. The tracker stores a cooldown deadline in
// Redis so every process sharing that Redis stops hitting the upstream until
// the deadline passes.
package ratelimit

import (
	"time"
)

// RedisKeyPrefix namespaces block state. Each upstream host gets its own
// key set: finnews:upstream_block:<scope>:blocked_until and so on.
const RedisKeyPrefix = "finnews:upstream_block"

// DefaultScope is used when a tracker is created without a scope.
const DefaultScope = "default"

// keySet holds the Redis keys of one scope.
type keySet struct {
	blockedUntil string
	count        string
	lastUpdate   string
}

func keysFor(scope string) keySet {
	if scope == "" {
		scope = DefaultScope
	}
	base := RedisKeyPrefix + ":" + scope
	return keySet{
		blockedUntil: base + ":blocked_until",
		count:        base + ":count",
		lastUpdate:   base + ":last_update",
	}
}

// BlockedUntilKey returns the Redis key holding the cooldown deadline of scope.
func BlockedUntilKey(scope string) string {
	return keysFor(scope).blockedUntil
}

// StatusUpstreamBlocked is the non-standard status Sina uses for blocked clients.
const StatusUpstreamBlocked = 456

const (
	// DefaultCooldown is applied when the upstream gives no Retry-After hint.
	DefaultCooldown = 5 * time.Minute

	// MaxCooldown caps Retry-After values so a bogus header cannot park the
	// client for hours.
	MaxCooldown = 1 * time.Hour
)

// BlockState represents the current upstream block state.
// This state is shared across all client instances via Redis, one state per
// upstream host.
type BlockState struct {
	// BlockedUntil is the deadline before which no request should be sent.
	// Zero when no block has been recorded.
	BlockedUntil time.Time `json:"blocked_until"`

	// Blocks is the number of block responses recorded so far.
	Blocks int64 `json:"blocks"`

	// LastUpdate is the timestamp when this state was last written.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked returns true while the cooldown deadline lies in the future.
func (s *BlockState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// TimeUntilUnblock returns the remaining cooldown.
// Returns 0 if the deadline has already passed.
func (s *BlockState) TimeUntilUnblock() time.Duration {
	duration := time.Until(s.BlockedUntil)
	if duration < 0 {
		return 0
	}
	return duration
}

// IsStale returns true if the state data is older than the given duration.
// A deadline is never written more than MaxCooldown ahead of LastUpdate, so
// state older than that cannot hold a legitimate block.
func (s *BlockState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// IsBlockStatus reports whether an HTTP status means the upstream blocked us.
func IsBlockStatus(status int) bool {
	return status == StatusUpstreamBlocked || status == 429
}

// clampCooldown picks the effective cooldown for a block.
func clampCooldown(retryAfter, fallback time.Duration) time.Duration {
	cooldown := retryAfter
	if cooldown <= 0 {
		cooldown = fallback
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if cooldown > MaxCooldown {
		cooldown = MaxCooldown
	}
	return cooldown
}
