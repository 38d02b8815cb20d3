// Package observability provides the client core's outward-facing observer
// interface plus metrics collection and tracing. Consumers (the CLI today,
// any embedding UI tomorrow) subscribe through Hooks instead of the core
// reaching into a UI event bus.
package observability

import (
	"context"
	"sync"
	"time"
)

// RequestInfo describes an HTTP request at the client boundary.
type RequestInfo struct {
	ID      string // uuid assigned per original request
	Method  string
	URL     string
	Attempt int
}

// RequestResult describes how a request ended.
type RequestResult struct {
	StatusCode int
	Duration   time.Duration
	FromRetry  bool
	Err        error
}

// Hooks receives lifecycle events from the client core. Implementations
// must be safe for concurrent use. All methods are fire-and-forget: the
// core never blocks on a subscriber and never changes behavior based on
// one.
type Hooks interface {
	// OnRequestStart fires before a request is sent.
	OnRequestStart(ctx context.Context, info RequestInfo)

	// OnRequestEnd fires when a request completes, successfully or not.
	OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult)

	// OnRetry fires before a retry attempt.
	OnRetry(ctx context.Context, info RequestInfo, attempt int, err error)

	// OnAuthRequired fires when stored credentials have been cleared and
	// the user must re-authenticate. Reasons: "session_expired",
	// "refresh_token_expired", "refresh_rejected".
	OnAuthRequired(reason string, err error)

	// OnServerError fires on a 5xx classified as a generic server fault.
	// Credentials are untouched; subscribers may surface a banner.
	OnServerError(operation string, err error)

	// OnNotice carries user-facing classifications that need no state
	// change: "permission_denied", "rate_limited", "connection_error".
	OnNotice(code, message string)
}

// NopHooks discards every event.
type NopHooks struct{}

func (NopHooks) OnRequestStart(context.Context, RequestInfo)                {}
func (NopHooks) OnRequestEnd(context.Context, RequestInfo, RequestResult)   {}
func (NopHooks) OnRetry(context.Context, RequestInfo, int, error)           {}
func (NopHooks) OnAuthRequired(string, error)                               {}
func (NopHooks) OnServerError(string, error)                                {}
func (NopHooks) OnNotice(string, string)                                    {}

// Verify CLIHooks implements Hooks at compile time.
var _ Hooks = (*CLIHooks)(nil)
var _ Hooks = NopHooks{}

// CLIHooks renders events for a terminal session with configurable
// verbosity:
//   - 0: silent (stats still collected)
//   - 1: auth/server events only
//   - 2: every request and retry
type CLIHooks struct {
	mu        sync.Mutex
	level     int
	collector *SessionCollector
	writer    *TraceWriter
}

// NewCLIHooks creates CLIHooks. A nil collector disables stats, a nil
// writer disables trace output.
func NewCLIHooks(level int, collector *SessionCollector, writer *TraceWriter) *CLIHooks {
	return &CLIHooks{level: level, collector: collector, writer: writer}
}

// SetLevel changes verbosity at runtime.
func (h *CLIHooks) SetLevel(level int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.level = level
}

func (h *CLIHooks) snapshot() (int, *SessionCollector, *TraceWriter) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level, h.collector, h.writer
}

func (h *CLIHooks) OnRequestStart(ctx context.Context, info RequestInfo) {
	level, _, writer := h.snapshot()
	if level >= 2 && writer != nil {
		writer.WriteRequestStart(info)
	}
}

func (h *CLIHooks) OnRequestEnd(ctx context.Context, info RequestInfo, result RequestResult) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordRequest(info, result)
	}
	if level >= 2 && writer != nil {
		writer.WriteRequestEnd(info, result)
	}
}

func (h *CLIHooks) OnRetry(ctx context.Context, info RequestInfo, attempt int, err error) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordRetry()
	}
	if level >= 2 && writer != nil {
		writer.WriteRetry(info, attempt, err)
	}
}

func (h *CLIHooks) OnAuthRequired(reason string, err error) {
	level, _, writer := h.snapshot()
	if level >= 1 && writer != nil {
		writer.WriteAuthRequired(reason, err)
	}
}

func (h *CLIHooks) OnServerError(operation string, err error) {
	level, collector, writer := h.snapshot()
	if collector != nil {
		collector.RecordServerError()
	}
	if level >= 1 && writer != nil {
		writer.WriteServerError(operation, err)
	}
}

func (h *CLIHooks) OnNotice(code, message string) {
	level, _, writer := h.snapshot()
	if level >= 1 && writer != nil {
		writer.WriteNotice(code, message)
	}
}
