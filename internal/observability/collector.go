package observability

import (
	"sync"
	"time"
)

// SessionMetrics is a snapshot of what happened during one CLI session.
type SessionMetrics struct {
	StartTime     time.Time
	TotalRequests int
	FailedReqs    int
	TotalRetries  int
	ServerErrors  int
	TotalLatency  time.Duration
}

// AvgLatency returns the mean request latency, or zero with no requests.
func (m SessionMetrics) AvgLatency() time.Duration {
	if m.TotalRequests == 0 {
		return 0
	}
	return m.TotalLatency / time.Duration(m.TotalRequests)
}

// SessionCollector accumulates request metrics across a session. Safe for
// concurrent use; counters only, no unbounded slices.
type SessionCollector struct {
	mu sync.Mutex

	startTime     time.Time
	totalRequests int
	failedReqs    int
	totalRetries  int
	serverErrors  int
	totalLatency  time.Duration
}

// NewSessionCollector creates a collector anchored at now.
func NewSessionCollector() *SessionCollector {
	return &SessionCollector{startTime: time.Now()}
}

// RecordRequest records one completed request.
func (c *SessionCollector) RecordRequest(info RequestInfo, result RequestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
	c.totalLatency += result.Duration
	if result.Err != nil || result.StatusCode >= 400 {
		c.failedReqs++
	}
}

// RecordRetry counts a retry attempt.
func (c *SessionCollector) RecordRetry() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

// RecordServerError counts a generic 5xx.
func (c *SessionCollector) RecordServerError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.serverErrors++
}

// Snapshot returns a copy of the current metrics.
func (c *SessionCollector) Snapshot() SessionMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return SessionMetrics{
		StartTime:     c.startTime,
		TotalRequests: c.totalRequests,
		FailedReqs:    c.failedReqs,
		TotalRetries:  c.totalRetries,
		ServerErrors:  c.serverErrors,
		TotalLatency:  c.totalLatency,
	}
}
