package commands

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/passctl/internal/appctx"
	"github.com/stagepass/passctl/internal/config"
	"github.com/stagepass/passctl/internal/resilience"
)

func TestDoctorResultSummary(t *testing.T) {
	tests := []struct {
		name     string
		result   DoctorResult
		expected string
	}{
		{
			name:     "all passed",
			result:   DoctorResult{Passed: 5},
			expected: "All 5 checks passed",
		},
		{
			name:     "some failed",
			result:   DoctorResult{Passed: 3, Failed: 2},
			expected: "3 passed, 2 failed",
		},
		{
			name:     "with warnings",
			result:   DoctorResult{Passed: 4, Warned: 1},
			expected: "4 passed, 1 warned",
		},
		{
			name:     "failures and warnings",
			result:   DoctorResult{Passed: 2, Failed: 1, Warned: 2},
			expected: "2 passed, 1 failed, 2 warned",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.result.Summary())
		})
	}
}

func TestDoctorResultAdd(t *testing.T) {
	r := &DoctorResult{}
	r.add(Check{Name: "a", Status: "pass"})
	r.add(Check{Name: "b", Status: "fail"})
	r.add(Check{Name: "c", Status: "warn"})
	r.add(Check{Name: "d", Status: "skip"})

	assert.Len(t, r.Checks, 4)
	assert.Equal(t, 1, r.Passed)
	assert.Equal(t, 1, r.Failed)
	assert.Equal(t, 1, r.Warned)
}

func TestCheckBreakerStates(t *testing.T) {
	newBreaker := func(cooldown time.Duration) *resilience.Breaker {
		store := resilience.NewStore(t.TempDir())
		return resilience.NewBreaker(store, resilience.BreakerConfig{FailureThreshold: 1, Cooldown: cooldown})
	}

	t.Run("closed", func(t *testing.T) {
		app := &appctx.App{Breaker: newBreaker(time.Hour)}
		assert.Equal(t, "pass", checkBreaker(app).Status)
	})

	t.Run("open", func(t *testing.T) {
		b := newBreaker(time.Hour)
		require.NoError(t, b.RecordFailure())
		check := checkBreaker(&appctx.App{Breaker: b})
		assert.Equal(t, "warn", check.Status)
		assert.Contains(t, check.Message, "open")
		assert.NotEmpty(t, check.Hint)
	})

	t.Run("half-open after cooldown", func(t *testing.T) {
		b := newBreaker(time.Millisecond)
		require.NoError(t, b.RecordFailure())
		time.Sleep(5 * time.Millisecond)
		check := checkBreaker(&appctx.App{Breaker: b})
		assert.Equal(t, "warn", check.Status)
		assert.Contains(t, check.Message, "probe")
	})
}

func refreshProbeApp(baseURL string) *appctx.App {
	return &appctx.App{Config: &config.Config{BaseURL: baseURL}}
}

func TestCheckRefreshEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		wantStatus string
	}{
		{"empty probe rejected with 400", http.StatusBadRequest, "pass"},
		{"empty probe rejected with 401", http.StatusUnauthorized, "pass"},
		{"validation rejection", http.StatusUnprocessableEntity, "pass"},
		{"endpoint missing", http.StatusNotFound, "fail"},
		{"server error", http.StatusBadGateway, "warn"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, config.RefreshPath, r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			check := checkRefreshEndpoint(context.Background(), refreshProbeApp(srv.URL))
			assert.Equal(t, "refresh_endpoint", check.Name)
			assert.Equal(t, tt.wantStatus, check.Status)
		})
	}

	t.Run("unreachable host", func(t *testing.T) {
		// Port 0 never connects.
		check := checkRefreshEndpoint(context.Background(), refreshProbeApp("http://127.0.0.1:0"))
		assert.Equal(t, "fail", check.Status)
		assert.NotEmpty(t, check.Hint)
	})
}
