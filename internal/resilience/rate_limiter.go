package resilience

import "time"

// RateLimitConfig configures the client-side token bucket.
type RateLimitConfig struct {
	// MaxTokens is the bucket capacity. Default 50.
	MaxTokens float64

	// RefillRate is tokens added per second. Default 10.
	RefillRate float64
}

// DefaultRateLimitConfig stays comfortably under the API's documented
// per-client budget.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{MaxTokens: 50, RefillRate: 10}
}

// RateLimiter is a token bucket shared across processes, plus enforcement
// of the server's Retry-After window after a 429.
type RateLimiter struct {
	config RateLimitConfig
	store  *Store
}

// NewRateLimiter creates a limiter, applying defaults for zero values.
func NewRateLimiter(store *Store, config RateLimitConfig) *RateLimiter {
	if config.MaxTokens <= 0 {
		config.MaxTokens = 50
	}
	if config.RefillRate <= 0 {
		config.RefillRate = 10
	}
	return &RateLimiter{config: config, store: store}
}

// Allow consumes a token if one is available and no Retry-After window is
// in force. Store errors fail open.
func (rl *RateLimiter) Allow() bool {
	allowed := true
	err := rl.store.Update(func(s *State) error {
		st := &s.RateLimiter
		now := time.Now()

		if st.IsBlocked() {
			allowed = false
			return nil
		}

		if st.LastRefillAt.IsZero() {
			st.Tokens = rl.config.MaxTokens
		} else {
			st.Tokens += now.Sub(st.LastRefillAt).Seconds() * rl.config.RefillRate
			if st.Tokens > rl.config.MaxTokens {
				st.Tokens = rl.config.MaxTokens
			}
		}
		st.LastRefillAt = now

		if st.Tokens < 1 {
			allowed = false
			return nil
		}
		st.Tokens--
		s.UpdatedAt = now
		return nil
	})
	if err != nil {
		return true
	}
	return allowed
}

// SetRetryAfter records a server-imposed backoff window so every process
// honors it, not just the one that received the 429.
func (rl *RateLimiter) SetRetryAfter(d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return rl.store.Update(func(s *State) error {
		until := time.Now().Add(d)
		if until.After(s.RateLimiter.RetryAfterUntil) {
			s.RateLimiter.RetryAfterUntil = until
		}
		s.UpdatedAt = time.Now()
		return nil
	})
}

// BlockedFor returns the remaining Retry-After window, or zero.
func (rl *RateLimiter) BlockedFor() time.Duration {
	state, err := rl.store.Load()
	if err != nil {
		return 0
	}
	return state.RateLimiter.BlockedFor()
}
