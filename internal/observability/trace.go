package observability

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"sync"
	"time"
)

// sensitiveParams are query parameter names scrubbed from trace output.
// Kept deliberately specific so useful debug info is not hidden.
var sensitiveParams = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"token":         true,
	"api_key":       true,
	"apikey":        true,
	"password":      true,
	"secret":        true,
	"client_secret": true,
}

// TraceWriter prints human-readable trace lines with timestamps relative
// to session start.
type TraceWriter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
}

// NewTraceWriter creates a TraceWriter targeting stderr.
func NewTraceWriter() *TraceWriter {
	return NewTraceWriterTo(os.Stderr)
}

// NewTraceWriterTo creates a TraceWriter targeting w.
func NewTraceWriterTo(w io.Writer) *TraceWriter {
	return &TraceWriter{writer: w, startTime: time.Now()}
}

func (t *TraceWriter) elapsed() float64 {
	return time.Since(t.startTime).Seconds()
}

// ScrubURL masks sensitive query parameter values.
func ScrubURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	changed := false
	for name := range q {
		if sensitiveParams[name] {
			q.Set(name, "***")
			changed = true
		}
	}
	if changed {
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// WriteRequestStart prints: [0.234s] -> GET /events
func (t *TraceWriter) WriteRequestStart(info RequestInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.writer, "[%.3fs] -> %s %s (req %s)\n", t.elapsed(), info.Method, ScrubURL(info.URL), info.ID)
}

// WriteRequestEnd prints: [0.456s] <- 200 GET /events (222ms)
func (t *TraceWriter) WriteRequestEnd(info RequestInfo, result RequestResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if result.Err != nil {
		fmt.Fprintf(t.writer, "[%.3fs] <- %s %s failed: %v\n", t.elapsed(), info.Method, ScrubURL(info.URL), result.Err)
		return
	}
	fmt.Fprintf(t.writer, "[%.3fs] <- %d %s %s (%dms)\n",
		t.elapsed(), result.StatusCode, info.Method, ScrubURL(info.URL), result.Duration.Milliseconds())
}

// WriteRetry prints a retry line.
func (t *TraceWriter) WriteRetry(info RequestInfo, attempt int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.writer, "[%.3fs] retry %d %s %s: %v\n", t.elapsed(), attempt, info.Method, ScrubURL(info.URL), err)
}

// WriteAuthRequired prints a re-authentication prompt line.
func (t *TraceWriter) WriteAuthRequired(reason string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		fmt.Fprintf(t.writer, "[%.3fs] auth required (%s): %v\n", t.elapsed(), reason, err)
		return
	}
	fmt.Fprintf(t.writer, "[%.3fs] auth required (%s)\n", t.elapsed(), reason)
}

// WriteServerError prints a server-fault line.
func (t *TraceWriter) WriteServerError(operation string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.writer, "[%.3fs] server error in %s: %v\n", t.elapsed(), operation, err)
}

// WriteNotice prints a classification notice.
func (t *TraceWriter) WriteNotice(code, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.writer, "[%.3fs] %s: %s\n", t.elapsed(), code, message)
}
