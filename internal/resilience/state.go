package resilience

import "time"

// StateVersion is the persisted schema version.
const StateVersion = 1

// State is the resilience state shared by concurrent passctl processes so
// that refresh circuit-breaking and rate limiting coordinate across them.
type State struct {
	Version        int            `json:"version"`
	RefreshBreaker BreakerState   `json:"refresh_breaker"`
	RateLimiter    RateLimitState `json:"rate_limiter"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// Breaker states.
const (
	BreakerClosed   = "closed"
	BreakerOpen     = "open"
	BreakerHalfOpen = "half_open"
)

// BreakerState tracks consecutive token-refresh failures. After the failure
// threshold the breaker opens and refresh attempts short-circuit without a
// network call until the cooldown elapses.
type BreakerState struct {
	State         string    `json:"state"`
	Failures      int       `json:"failures"`
	LastFailureAt time.Time `json:"last_failure_at"`
	OpenedAt      time.Time `json:"opened_at"`
}

// IsClosed reports normal operation.
func (b *BreakerState) IsClosed() bool {
	return b.State == "" || b.State == BreakerClosed
}

// IsOpen reports the failing-fast state.
func (b *BreakerState) IsOpen() bool {
	return b.State == BreakerOpen
}

// IsHalfOpen reports the probing state after the cooldown.
func (b *BreakerState) IsHalfOpen() bool {
	return b.State == BreakerHalfOpen
}

// RateLimitState is a token bucket plus the server-imposed Retry-After
// window from the most recent 429.
type RateLimitState struct {
	Tokens          float64   `json:"tokens"`
	LastRefillAt    time.Time `json:"last_refill_at"`
	RetryAfterUntil time.Time `json:"retry_after_until"`
}

// IsBlocked reports whether a Retry-After window is still in force.
func (r *RateLimitState) IsBlocked() bool {
	return !r.RetryAfterUntil.IsZero() && time.Now().Before(r.RetryAfterUntil)
}

// BlockedFor returns the remaining Retry-After window, or zero.
func (r *RateLimitState) BlockedFor() time.Duration {
	if r.RetryAfterUntil.IsZero() {
		return 0
	}
	remaining := time.Until(r.RetryAfterUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// NewState returns a fresh State. LastRefillAt is left zero so the first
// refill initializes the bucket from the configured maximum.
func NewState() *State {
	return &State{
		Version:        StateVersion,
		RefreshBreaker: BreakerState{State: BreakerClosed},
		UpdatedAt:      time.Now(),
	}
}
