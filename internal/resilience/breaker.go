package resilience

import "time"

// BreakerConfig configures the refresh circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures before the
	// breaker opens. Default 3.
	FailureThreshold int

	// Cooldown is how long the breaker stays open before a probe attempt
	// is allowed through. Default 30 seconds.
	Cooldown time.Duration
}

// DefaultBreakerConfig matches the token-refresh policy: three consecutive
// failures, thirty-second cooldown.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 3, Cooldown: 30 * time.Second}
}

// Breaker short-circuits token-refresh attempts after repeated failures.
// Its state lives in the shared Store so every passctl process backs off
// together instead of each one independently hammering a broken endpoint.
type Breaker struct {
	config BreakerConfig
	store  *Store
}

// NewBreaker creates a breaker, applying defaults for zero config values.
func NewBreaker(store *Store, config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 3
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	return &Breaker{config: config, store: store}
}

// Allow reports whether a refresh attempt may proceed. While open and
// inside the cooldown it returns false without any network activity; once
// the cooldown elapses the breaker moves to half-open and lets one probe
// through. Store errors fail open.
func (b *Breaker) Allow() bool {
	state, err := b.store.Load()
	if err != nil {
		return true
	}

	bs := &state.RefreshBreaker
	if bs.IsClosed() || bs.IsHalfOpen() {
		return true
	}

	if time.Since(bs.OpenedAt) < b.config.Cooldown {
		return false
	}

	// Cooldown elapsed: transition to half-open so the next attempt probes
	// the endpoint. Re-check under the lock in case a sibling already did.
	allowed := true
	err = b.store.Update(func(s *State) error {
		if s.RefreshBreaker.IsOpen() {
			if time.Since(s.RefreshBreaker.OpenedAt) < b.config.Cooldown {
				allowed = false
				return nil
			}
			s.RefreshBreaker.State = BreakerHalfOpen
			s.UpdatedAt = time.Now()
		}
		return nil
	})
	if err != nil {
		return true
	}
	return allowed
}

// RecordSuccess resets the failure count and closes the breaker.
func (b *Breaker) RecordSuccess() error {
	return b.store.Update(func(s *State) error {
		s.RefreshBreaker = BreakerState{State: BreakerClosed}
		s.UpdatedAt = time.Now()
		return nil
	})
}

// RecordFailure counts a failed refresh. A half-open probe failure reopens
// immediately; in closed state the breaker opens at the threshold.
func (b *Breaker) RecordFailure() error {
	return b.store.Update(func(s *State) error {
		bs := &s.RefreshBreaker
		now := time.Now()
		bs.LastFailureAt = now

		switch {
		case bs.IsHalfOpen():
			bs.State = BreakerOpen
			bs.OpenedAt = now
		default:
			bs.Failures++
			if bs.Failures >= b.config.FailureThreshold {
				bs.State = BreakerOpen
				bs.OpenedAt = now
			}
		}

		s.UpdatedAt = now
		return nil
	})
}

// State returns the effective breaker state, accounting for an elapsed
// cooldown that has not yet been observed by Allow.
func (b *Breaker) State() string {
	state, err := b.store.Load()
	if err != nil {
		return BreakerClosed
	}
	bs := &state.RefreshBreaker
	if bs.IsOpen() && time.Since(bs.OpenedAt) >= b.config.Cooldown {
		return BreakerHalfOpen
	}
	if bs.State == "" {
		return BreakerClosed
	}
	return bs.State
}

// Reset closes the breaker and clears its counters.
func (b *Breaker) Reset() error {
	return b.RecordSuccess()
}
