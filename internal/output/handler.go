package output

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/stagepass/passctl/internal/observability"
)

// AuthState is the slice of session state the handler needs: whether a
// refresh is still possible, and how to tear the session down.
type AuthState interface {
	HasRefreshToken() bool
	ClearAuth() error
}

// Handler maps errors to user-facing actions. The HTTP client's 401
// interceptor owns credential clearing during requests; Handle only
// clears when a 401 arrives with no refresh token left to try.
type Handler struct {
	hooks observability.Hooks
	auth  AuthState
}

// NewHandler creates a Handler. hooks may be nil.
func NewHandler(hooks observability.Hooks, auth AuthState) *Handler {
	if hooks == nil {
		hooks = observability.NopHooks{}
	}
	return &Handler{hooks: hooks, auth: auth}
}

// Handle classifies err in the context of operation and notifies
// subscribers. It returns the structured form of err for the caller to
// render. Handle never panics the session: unknown errors become a
// generic API error.
func (h *Handler) Handle(err error, operation string) *Error {
	e := AsError(err)

	switch {
	case e.Code == CodeAuth || e.HTTPStatus == 401:
		if h.auth != nil && !h.auth.HasRefreshToken() {
			_ = h.auth.ClearAuth()
			h.hooks.OnAuthRequired("session_expired", err)
		}
	case e.HTTPStatus == 403:
		h.hooks.OnNotice("permission_denied", e.Message)
	case e.HTTPStatus == 429:
		h.hooks.OnNotice("rate_limited", e.Message)
	case e.HTTPStatus >= 500:
		h.hooks.OnServerError(operation, err)
	case isNetworkError(e):
		h.hooks.OnNotice("connection_error", e.Message)
	}

	return e
}

func isNetworkError(e *Error) bool {
	if e.Code == CodeNetwork {
		return true
	}
	var netErr net.Error
	return e.Cause != nil && errors.As(e.Cause, &netErr)
}

// RetryOptions tunes WithRetry.
type RetryOptions struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryOptions matches the interactive defaults: three attempts
// with a one-second base delay.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{MaxAttempts: 3, Delay: time.Second}
}

// WithRetry runs fn up to opts.MaxAttempts times with a linearly growing
// delay (delay, 2*delay, ...). Auth failures and 401/403/404 statuses
// are terminal immediately: retrying cannot change an authorization
// decision or make a missing resource appear.
func (h *Handler) WithRetry(ctx context.Context, operation string, opts RetryOptions, fn func(ctx context.Context) error) error {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		if terminal(lastErr) || attempt == opts.MaxAttempts {
			break
		}

		h.hooks.OnRetry(ctx, observability.RequestInfo{Method: operation, Attempt: attempt}, attempt, lastErr)

		select {
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", operation, ctx.Err())
		case <-time.After(opts.Delay * time.Duration(attempt)):
		}
	}

	h.Handle(lastErr, operation)
	return lastErr
}

func terminal(err error) bool {
	e := AsError(err)
	if e.Code == CodeAuth || e.Code == CodeForbidden || e.Code == CodeNotFound || e.Code == CodeUsage || e.Code == CodeValidation {
		return true
	}
	switch e.HTTPStatus {
	case 401, 403, 404:
		return true
	}
	return false
}
