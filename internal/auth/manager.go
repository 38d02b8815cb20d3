// Package auth manages the token lifecycle: expiry checks, the guarded
// refresh flow, and session setup/teardown. Refresh is protected three
// ways, outermost first: a cross-process file lock, a circuit breaker
// shared through the resilience store, and in-process singleflight.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/stagepass/passctl/internal/api"
	"github.com/stagepass/passctl/internal/config"
	"github.com/stagepass/passctl/internal/observability"
	"github.com/stagepass/passctl/internal/resilience"
	"github.com/stagepass/passctl/internal/secure"
	"github.com/stagepass/passctl/internal/validate"
)

const refreshTimeout = 10 * time.Second

// Manager owns the session token lifecycle.
type Manager struct {
	store      *secure.Store
	httpClient *http.Client
	breaker    *resilience.Breaker
	lock       *resilience.RefreshLock
	hooks      observability.Hooks
	baseURL    string

	sf singleflight.Group
}

// NewManager creates a Manager. hooks may be nil; httpClient may be nil
// for the default client.
func NewManager(cfg *config.Config, store *secure.Store, breaker *resilience.Breaker, lock *resilience.RefreshLock, hooks observability.Hooks, httpClient *http.Client) *Manager {
	if hooks == nil {
		hooks = observability.NopHooks{}
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: refreshTimeout}
	}
	return &Manager{
		store:      store,
		httpClient: httpClient,
		breaker:    breaker,
		lock:       lock,
		hooks:      hooks,
		baseURL:    config.NormalizeBaseURL(cfg.BaseURL),
	}
}

// AccessToken returns a usable access token, refreshing if the stored
// one is expired. An empty string with a nil error means no valid token
// exists right now; errors are reserved for storage faults.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	if tok := os.Getenv("STAGEPASS_TOKEN"); tok != "" {
		return tok, nil
	}

	access, err := m.store.AccessToken()
	if err != nil {
		return "", err
	}
	if access == "" {
		return "", nil
	}

	refresh, err := m.store.RefreshToken()
	if err != nil {
		return "", err
	}
	if refresh == "" {
		return "", nil
	}

	// Only a conclusively re-parsed expiry logs the user out. A refresh
	// token we cannot decode is handed to the server to judge.
	if exp, ok := validate.TokenExpiry(refresh); ok && time.Now().After(exp) {
		_ = m.ClearAuth()
		m.hooks.OnAuthRequired("refresh_token_expired", nil)
		return "", nil
	}

	if validate.IsTokenExpired(access, validate.DefaultExpiryBuffer) {
		return m.Refresh(ctx)
	}

	return access, nil
}

// Refresh rotates the token pair. Concurrent callers in this process
// share one network call; concurrent processes coordinate through the
// file lock and reuse a sibling's result. Soft failures return ("",
// nil) with the session intact; hard failures clear it.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	v, err, _ := m.sf.Do("refresh", func() (any, error) {
		return m.refreshLocked(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (m *Manager) refreshLocked(ctx context.Context) (string, error) {
	release, err := m.lock.Acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	// A sibling process may have rotated the tokens while we waited.
	access, err := m.store.AccessToken()
	if err != nil {
		return "", err
	}
	if access != "" && !validate.IsTokenExpired(access, validate.DefaultExpiryBuffer) {
		return access, nil
	}

	refresh, err := m.store.RefreshToken()
	if err != nil {
		return "", err
	}
	if refresh == "" {
		return "", nil
	}

	if !m.breaker.Allow() {
		return "", nil
	}

	pair, hard, err := m.performRefresh(ctx, refresh)
	switch {
	case err == nil:
		_ = m.breaker.RecordSuccess()
		if err := m.store.SetTokens(pair.Access, pair.Refresh); err != nil {
			return "", err
		}
		return pair.Access, nil

	case hard:
		_ = m.breaker.RecordFailure()
		_ = m.ClearAuth()
		m.hooks.OnAuthRequired("refresh_rejected", err)
		return "", nil

	default:
		// Soft failure: network fault or an endpoint problem that says
		// nothing about the session. Keep credentials, retry later.
		_ = m.breaker.RecordFailure()
		return "", nil
	}
}

type tokenPair struct {
	Access  string
	Refresh string
}

// performRefresh executes the refresh POST. The second return reports a
// hard failure: the server conclusively rejected this refresh token.
func (m *Manager) performRefresh(ctx context.Context, refreshToken string) (tokenPair, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, refreshTimeout)
	defer cancel()

	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return tokenPair{}, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+config.RefreshPath, bytes.NewReader(payload))
	if err != nil {
		return tokenPair{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return tokenPair{}, false, fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return tokenPair{}, false, fmt.Errorf("refresh response unreadable: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		norm := api.ParseErrorBody(body, resp.StatusCode)
		return tokenPair{}, refreshFailureIsHard(resp.StatusCode, norm), norm
	}

	var parsed struct {
		Access       string `json:"access"`
		AccessToken  string `json:"access_token"`
		Refresh      string `json:"refresh"`
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return tokenPair{}, false, fmt.Errorf("refresh response malformed: %w", err)
	}

	pair := tokenPair{Access: parsed.Access, Refresh: parsed.Refresh}
	if pair.Access == "" {
		pair.Access = parsed.AccessToken
	}
	if pair.Refresh == "" {
		pair.Refresh = parsed.RefreshToken
	}
	if pair.Access == "" {
		return tokenPair{}, false, errors.New("refresh response missing access token")
	}
	return pair, false, nil
}

// refreshFailureIsHard classifies a refresh rejection. 401/422 and
// bodies naming an expired or invalid token end the session; endpoint
// faults (404, 5xx without an auth code) and anything ambiguous do not.
func refreshFailureIsHard(status int, norm *api.NormalizedError) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusUnprocessableEntity:
		return true
	case http.StatusNotFound:
		return false
	}
	if status >= 500 {
		return norm.IsAuthFailure()
	}
	return norm.IsAuthFailure()
}

// IsAuthenticated reports whether a session exists that can still
// produce tokens: a stored access token that is either current or
// renewable through a usable refresh token.
func (m *Manager) IsAuthenticated() bool {
	if os.Getenv("STAGEPASS_TOKEN") != "" {
		return true
	}
	access, err := m.store.AccessToken()
	if err != nil || access == "" {
		return false
	}
	if !validate.IsTokenExpired(access, 0) {
		return true
	}
	refresh, err := m.store.RefreshToken()
	if err != nil {
		return false
	}
	return validate.IsRefreshTokenUsable(refresh)
}

// HasRefreshToken reports whether a refresh token is stored.
func (m *Manager) HasRefreshToken() bool {
	refresh, err := m.store.RefreshToken()
	return err == nil && refresh != ""
}

// ClearAuth removes the stored session.
func (m *Manager) ClearAuth() error {
	return m.store.ClearAuth()
}
