package api

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagepass/passctl/internal/config"
	"github.com/stagepass/passctl/internal/observability"
	"github.com/stagepass/passctl/internal/output"
	"github.com/stagepass/passctl/internal/resilience"
)

type fakeTokens struct {
	mu           sync.Mutex
	token        string
	refreshed    string
	refreshCalls int
	cleared      bool
}

func (f *fakeTokens) AccessToken(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, nil
}

func (f *fakeTokens) Refresh(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	f.token = f.refreshed
	return f.refreshed, nil
}

func (f *fakeTokens) HasRefreshToken() bool { return true }

func (f *fakeTokens) ClearAuth() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	return nil
}

func newTestClient(t *testing.T, server *httptest.Server, tokens TokenSource) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.BaseURL = server.URL
	// Single attempt keeps per-status assertions sharp; the retry loop
	// has its own tests.
	cfg.RetryMax = 0
	return NewClient(cfg, tokens, observability.NopHooks{}, nil)
}

func TestBearerInjection(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, &fakeTokens{token: "tok-1"})
	_, err := client.Get(context.Background(), "/api/events/")
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-1", gotAuth.Load())
}

func TestNoBearerOnExemptEndpoints(t *testing.T) {
	var gotAuth atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, &fakeTokens{token: "tok-1"})
	_, err := client.Post(context.Background(), config.RefreshPath, map[string]string{"refresh": "r"})
	require.NoError(t, err)
	assert.Equal(t, "", gotAuth.Load())
}

// Exactly one refresh and one replay per original 401.
func TestSingleRefreshRetryOn401(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		if r.Header.Get("Authorization") != "Bearer tok-new" {
			w.WriteHeader(401)
			fmt.Fprint(w, `{"message": "token expired"}`)
			return
		}
		fmt.Fprint(w, `{"id": 42}`)
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "tok-old", refreshed: "tok-new"}
	client := newTestClient(t, server, tokens)

	resp, err := client.Get(context.Background(), "/api/events/42/")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, tokens.refreshCalls)
	assert.Equal(t, int64(2), requests.Load())
}

// A replay that still gets 401 propagates the failure instead of
// looping.
func TestReplay401IsTerminal(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(401)
		fmt.Fprint(w, `{"message": "still no"}`)
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "tok-old", refreshed: "tok-new"}
	client := newTestClient(t, server, tokens)

	_, err := client.Get(context.Background(), "/api/events/")
	require.Error(t, err)
	assert.Equal(t, output.CodeAuth, output.AsError(err).Code)
	assert.Equal(t, 1, tokens.refreshCalls)
	assert.Equal(t, int64(2), requests.Load(), "exactly one replay")
}

// A soft refresh (no token, no hard error) propagates the original 401
// without a replay and without touching auth state.
func TestSoftRefreshPropagatesOriginal401(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(401)
		fmt.Fprint(w, `{"message": "expired"}`)
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "tok-old", refreshed: ""} // soft refresh
	client := newTestClient(t, server, tokens)

	_, err := client.Get(context.Background(), "/api/events/")
	require.Error(t, err)
	assert.Equal(t, output.CodeAuth, output.AsError(err).Code)
	assert.Equal(t, int64(1), requests.Load(), "no replay without a fresh token")
	assert.False(t, tokens.cleared)
}

func Test401OnRefreshEndpointIsNotIntercepted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		fmt.Fprint(w, `{"message": "bad refresh token"}`)
	}))
	defer server.Close()

	tokens := &fakeTokens{token: "tok", refreshed: "tok-2"}
	client := newTestClient(t, server, tokens)

	_, err := client.Post(context.Background(), config.RefreshPath, map[string]string{"refresh": "r"})
	require.Error(t, err)
	assert.Zero(t, tokens.refreshCalls, "refresh endpoint failures pass through")
}

func TestValidationErrorCarriesField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(422)
		fmt.Fprint(w, `{"quantity": ["Must be at least 1."]}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, &fakeTokens{token: "tok"})
	_, err := client.Post(context.Background(), "/api/bookings/", map[string]int{"quantity": 0})
	require.Error(t, err)

	e := output.AsError(err)
	assert.Equal(t, output.CodeValidation, e.Code)
	assert.Equal(t, "quantity", e.Field)
	assert.Equal(t, "Must be at least 1.", e.Message)
}

// A 500 whose structured code marks an auth failure is surfaced as an
// auth error, not a server fault.
func Test5xxAuthReclassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(500)
		fmt.Fprint(w, `{"error": {"code": "token_not_valid", "message": "Token is invalid"}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, &fakeTokens{token: "tok"})
	_, err := client.Get(context.Background(), "/api/events/")
	require.Error(t, err)
	assert.Equal(t, output.CodeAuth, output.AsError(err).Code)
}

func TestPlain5xxIsRetryableServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
		fmt.Fprint(w, `{"message": "maintenance"}`)
	}))
	defer server.Close()

	client := newTestClient(t, server, &fakeTokens{token: "tok"})
	_, err := client.Get(context.Background(), "/api/events/")
	require.Error(t, err)

	var retryable *RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.Equal(t, 503, retryable.Status)
	assert.Equal(t, output.CodeAPI, output.AsError(err).Code)
}

func TestServerErrorRetriedUntilSuccess(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) < 3 {
			w.WriteHeader(503)
			fmt.Fprint(w, `{"message": "maintenance"}`)
			return
		}
		fmt.Fprint(w, `{"ok": true}`)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.BaseURL = server.URL
	cfg.RetryMax = 3
	cfg.RetryDelay = 1 // milliseconds
	client := NewClient(cfg, &fakeTokens{token: "tok"}, observability.NopHooks{}, nil)

	resp, err := client.Get(context.Background(), "/api/events/")
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, int64(3), requests.Load())
}

func TestClientErrorNeverRetried(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(400)
		fmt.Fprint(w, `{"quantity": ["Must be at least 1."]}`)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.BaseURL = server.URL
	cfg.RetryMax = 3
	cfg.RetryDelay = 1
	client := NewClient(cfg, &fakeTokens{token: "tok"}, observability.NopHooks{}, nil)

	_, err := client.Get(context.Background(), "/api/orders/")
	require.Error(t, err)
	assert.Equal(t, int64(1), requests.Load())
}

func TestRetryExhaustionSurfacesLastError(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(503)
		fmt.Fprint(w, `{"message": "maintenance"}`)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.BaseURL = server.URL
	cfg.RetryMax = 2
	cfg.RetryDelay = 1
	client := NewClient(cfg, &fakeTokens{token: "tok"}, observability.NopHooks{}, nil)

	_, err := client.Get(context.Background(), "/api/events/")
	require.Error(t, err)
	assert.Equal(t, output.CodeAPI, output.AsError(err).Code)
	assert.Equal(t, int64(3), requests.Load()) // initial + 2 retries
}

func TestLocalBucketGatesRequests(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	state := resilience.NewStore(t.TempDir())
	limiter := resilience.NewRateLimiter(state, resilience.RateLimitConfig{MaxTokens: 1, RefillRate: 0.01})

	cfg := config.Default()
	cfg.BaseURL = server.URL
	cfg.RetryMax = 0
	client := NewClient(cfg, &fakeTokens{token: "tok"}, observability.NopHooks{}, limiter)

	_, err := client.Get(context.Background(), "/api/events/")
	require.NoError(t, err)

	// Bucket is empty: the send is refused before the network.
	_, err = client.Get(context.Background(), "/api/events/")
	require.Error(t, err)
	var retryable *RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.Equal(t, 429, retryable.Status)
	assert.Equal(t, int64(1), requests.Load())
}

func TestRateLimitSharedThroughLimiter(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(429)
		fmt.Fprint(w, `{"message": "slow down"}`)
	}))
	defer server.Close()

	state := resilience.NewStore(t.TempDir())
	limiter := resilience.NewRateLimiter(state, resilience.DefaultRateLimitConfig())

	cfg := config.Default()
	cfg.BaseURL = server.URL
	cfg.RetryMax = 0
	client := NewClient(cfg, &fakeTokens{token: "tok"}, observability.NopHooks{}, limiter)

	_, err := client.Get(context.Background(), "/api/events/")
	require.Error(t, err)
	var retryable *RetryableError
	require.ErrorAs(t, err, &retryable)
	assert.Equal(t, 30*time.Second, retryable.RetryAfter)

	// The shared window now blocks before any network call.
	_, err = client.Get(context.Background(), "/api/venues/")
	require.Error(t, err)
	assert.Equal(t, output.CodeRateLimit, output.AsError(err).Code)
	assert.Equal(t, int64(1), requests.Load())
}

func TestGetAllFollowsLinkHeader(t *testing.T) {
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("page") {
		case "", "1":
			w.Header().Set("Link", fmt.Sprintf(`<%s/api/events/?page=2>; rel="next"`, server.URL))
			fmt.Fprint(w, `[{"id": 1}, {"id": 2}]`)
		case "2":
			fmt.Fprint(w, `[{"id": 3}]`)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server, &fakeTokens{token: "tok"})
	items, err := client.GetAll(context.Background(), "/api/events/")
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestHooksSeeRequestLifecycle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	collector := observability.NewSessionCollector()
	hooks := observability.NewCLIHooks(0, collector, nil)

	cfg := config.Default()
	cfg.BaseURL = server.URL
	client := NewClient(cfg, &fakeTokens{token: "tok"}, hooks, nil)

	_, err := client.Get(context.Background(), "/api/events/")
	require.NoError(t, err)

	m := collector.Snapshot()
	assert.Equal(t, 1, m.TotalRequests)
	assert.Zero(t, m.FailedReqs)
}
