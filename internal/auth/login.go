package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/stagepass/passctl/internal/api"
	"github.com/stagepass/passctl/internal/config"
	"github.com/stagepass/passctl/internal/output"
	"github.com/stagepass/passctl/internal/validate"
)

// Profile is the user identity returned by the login endpoint.
type Profile struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Login authenticates with email and password, storing the token pair
// and profile on success.
func (m *Manager) Login(ctx context.Context, email, password string) (*Profile, error) {
	email = validate.Sanitize(email)
	if !validate.CheckEmail(email) {
		return nil, output.ErrValidation("email", "invalid email address")
	}
	if password == "" {
		return nil, output.ErrValidation("password", "password is required")
	}

	payload, err := json.Marshal(map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+config.LoginPath, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, output.ErrNetwork(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("login response unreadable: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		norm := api.ParseErrorBody(body, resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusBadRequest {
			return nil, &output.Error{
				Code:       output.CodeAuth,
				Message:    norm.Message,
				Field:      norm.Field,
				HTTPStatus: resp.StatusCode,
			}
		}
		return nil, output.ErrAPI(resp.StatusCode, norm.Message)
	}

	var parsed struct {
		Access       string          `json:"access"`
		AccessToken  string          `json:"access_token"`
		Refresh      string          `json:"refresh"`
		RefreshToken string          `json:"refresh_token"`
		User         json.RawMessage `json:"user"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("login response malformed: %w", err)
	}

	access := parsed.Access
	if access == "" {
		access = parsed.AccessToken
	}
	refresh := parsed.Refresh
	if refresh == "" {
		refresh = parsed.RefreshToken
	}
	if access == "" || refresh == "" {
		return nil, fmt.Errorf("login response missing tokens")
	}

	if err := m.store.SetTokens(access, refresh); err != nil {
		return nil, err
	}

	var profile Profile
	if len(parsed.User) > 0 {
		if err := json.Unmarshal(parsed.User, &profile); err == nil {
			_ = m.store.SetProfile(string(parsed.User))
		}
	}
	if profile.Email == "" {
		profile.Email = email
	}
	return &profile, nil
}

// Logout invalidates the session server-side, best effort, then clears
// local credentials regardless of the server's answer.
func (m *Manager) Logout(ctx context.Context) error {
	if access, err := m.store.AccessToken(); err == nil && access != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+config.LogoutPath, nil)
		if err == nil {
			req.Header.Set("Authorization", "Bearer "+access)
			if resp, err := m.httpClient.Do(req); err == nil {
				io.Copy(io.Discard, resp.Body) //nolint:errcheck
				resp.Body.Close()
			}
		}
	}
	return m.ClearAuth()
}

// StoredProfile returns the cached profile from the last login, if any.
func (m *Manager) StoredProfile() (*Profile, error) {
	raw, err := m.store.Profile()
	if err != nil || raw == "" {
		return nil, err
	}
	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, nil // stale blob from an older build, ignore
	}
	return &profile, nil
}
