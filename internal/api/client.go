package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/stagepass/passctl/internal/config"
	"github.com/stagepass/passctl/internal/observability"
	"github.com/stagepass/passctl/internal/output"
	"github.com/stagepass/passctl/internal/resilience"
	"github.com/stagepass/passctl/internal/version"
)

const maxPages = 10000

// TokenSource supplies bearer tokens and owns auth state transitions.
// Refresh returning ("", nil) means the refresh could not produce a
// token but the session may still recover later (soft failure).
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
	HasRefreshToken() bool
	ClearAuth() error
}

// Client is the authenticated HTTP client for the StagePass API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	hooks      observability.Hooks
	limiter    *resilience.RateLimiter
	maxRetries int
	retryDelay time.Duration
}

// Response wraps an API response.
type Response struct {
	Data       json.RawMessage
	StatusCode int
	Headers    http.Header
}

// UnmarshalData unmarshals the response data into the given value.
func (r *Response) UnmarshalData(v any) error {
	return json.Unmarshal(r.Data, v)
}

// NewClient creates an API client. tokens may be nil for unauthenticated
// use; hooks and limiter may be nil.
func NewClient(cfg *config.Config, tokens TokenSource, hooks observability.Hooks, limiter *resilience.RateLimiter) *Client {
	if hooks == nil {
		hooks = observability.NopHooks{}
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout(),
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL:    config.NormalizeBaseURL(cfg.BaseURL),
		tokens:     tokens,
		hooks:      hooks,
		limiter:    limiter,
		maxRetries: cfg.RetryMax,
		retryDelay: cfg.RetryBaseDelay(),
	}
}

// Get performs a GET request.
func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.doRequest(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.doRequest(ctx, http.MethodPost, path, body)
}

// Put performs a PUT request with a JSON body.
func (c *Client) Put(ctx context.Context, path string, body any) (*Response, error) {
	return c.doRequest(ctx, http.MethodPut, path, body)
}

// Delete performs a DELETE request.
func (c *Client) Delete(ctx context.Context, path string) (*Response, error) {
	return c.doRequest(ctx, http.MethodDelete, path, nil)
}

// GetAll fetches every page of a paginated collection, following
// Link: rel="next" headers.
func (c *Client) GetAll(ctx context.Context, path string) ([]json.RawMessage, error) {
	var all []json.RawMessage
	url := c.buildURL(path)

	for page := 1; page <= maxPages; page++ {
		resp, err := c.doRequestURL(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}

		var items []json.RawMessage
		if err := json.Unmarshal(resp.Data, &items); err != nil {
			return nil, fmt.Errorf("failed to parse page %d: %w", page, err)
		}
		all = append(all, items...)

		next := parseNextLink(resp.Headers.Get("Link"))
		if next == "" {
			return all, nil
		}
		url = next
	}
	return all, fmt.Errorf("pagination exceeded %d pages", maxPages)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*Response, error) {
	return c.doRequestURL(ctx, method, c.buildURL(path), body)
}

func (c *Client) doRequestURL(ctx context.Context, method, url string, body any) (*Response, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
	}

	var result *Response
	var lastErr error
	attempt := 0
	err := Retry(ctx, c.maxRetries, c.retryDelay, func(ctx context.Context) error {
		if attempt > 0 {
			c.hooks.OnRetry(ctx, observability.RequestInfo{Method: method, URL: url, Attempt: attempt}, attempt, lastErr)
		}
		result, lastErr = c.attempt(ctx, method, url, payload, attempt)
		attempt++
		return lastErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// attempt runs one request cycle, including the 401 replay. Retryable
// failures come back as *RetryableError for the surrounding loop.
func (c *Client) attempt(ctx context.Context, method, url string, payload []byte, retryN int) (*Response, error) {
	if c.limiter != nil {
		if blocked := c.limiter.BlockedFor(); blocked > 0 {
			return nil, output.ErrRateLimit(int(blocked.Seconds()) + 1)
		}
		if !c.limiter.Allow() {
			// Local bucket exhausted: back off without touching the
			// network and let the refill catch up.
			return nil, &RetryableError{
				Err:        output.ErrRateLimit(1),
				Status:     http.StatusTooManyRequests,
				RetryAfter: time.Second,
			}
		}
	}

	info := observability.RequestInfo{
		ID:      uuid.NewString(),
		Method:  method,
		URL:     url,
		Attempt: retryN,
	}

	resp, err := c.send(ctx, info, url, payload, "")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && c.tokens != nil && !c.authExempt(url) {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		resp.Body.Close()
		return c.replayAfterRefresh(ctx, info, url, payload, resp)
	}

	defer resp.Body.Close()
	return c.consume(resp)
}

// replayAfterRefresh is the 401 interceptor: exactly one refresh and one
// replay per original request. A soft refresh (no token, no hard error)
// propagates the original 401, keeping the session intact.
func (c *Client) replayAfterRefresh(ctx context.Context, info observability.RequestInfo, url string, payload []byte, original *http.Response) (*Response, error) {
	token, err := c.tokens.Refresh(ctx)
	if err != nil || token == "" {
		return nil, c.statusError(original.StatusCode, nil, original.Header)
	}

	info.Attempt++
	resp, err := c.send(ctx, info, url, payload, token)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.consume(resp)
}

// send executes one HTTP exchange. forceToken overrides token lookup
// after a refresh so the replay cannot race a sibling rotation.
func (c *Client) send(ctx context.Context, info observability.RequestInfo, url string, payload []byte, forceToken string) (*http.Response, error) {
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, info.Method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", version.UserAgent())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if !c.authExempt(url) && c.tokens != nil {
		token := forceToken
		if token == "" {
			// Token acquisition failures are swallowed: the request
			// proceeds unauthenticated and the response decides.
			token, _ = c.tokens.AccessToken(ctx)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.hooks.OnRequestStart(ctx, info)
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{
			Duration:  time.Since(start),
			FromRetry: info.Attempt > 0,
			Err:       err,
		})
		return nil, &RetryableError{Err: output.ErrNetwork(err)}
	}

	c.hooks.OnRequestEnd(ctx, info, observability.RequestResult{
		StatusCode: resp.StatusCode,
		Duration:   time.Since(start),
		FromRetry:  info.Attempt > 0,
	})
	return resp, nil
}

// consume turns a completed HTTP response into a Response or an error.
func (c *Client) consume(resp *http.Response) (*Response, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &Response{
			Data:       respBody,
			StatusCode: resp.StatusCode,
			Headers:    resp.Header,
		}, nil
	}

	return nil, c.statusError(resp.StatusCode, respBody, resp.Header)
}

// statusError maps a non-2xx response to a structured error. A nil body
// means the body was already discarded (the propagated-401 path).
func (c *Client) statusError(status int, body []byte, headers http.Header) error {
	norm := ParseErrorBody(body, status)

	switch {
	case status == http.StatusUnauthorized:
		return output.ErrAuth(norm.Message)

	case status == http.StatusForbidden:
		return output.ErrForbidden(norm.Message)

	case status == http.StatusNotFound:
		return &output.Error{
			Code:       output.CodeNotFound,
			Message:    norm.Message,
			HTTPStatus: status,
		}

	case status == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(headers.Get("Retry-After"))
		if c.limiter != nil && retryAfter > 0 {
			_ = c.limiter.SetRetryAfter(time.Duration(retryAfter) * time.Second)
		}
		return &RetryableError{
			Err:        output.ErrRateLimit(retryAfter),
			Status:     status,
			RetryAfter: time.Duration(retryAfter) * time.Second,
		}

	case status >= 500:
		// Some backends mislabel auth failures as 5xx. A structured
		// code wins; message text is only a legacy fallback.
		if norm.IsAuthFailure() {
			return output.ErrAuth(norm.Message)
		}
		return &RetryableError{
			Err:    output.ErrAPI(status, norm.Message),
			Status: status,
		}

	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return &output.Error{
			Code:       output.CodeValidation,
			Message:    norm.Message,
			Field:      norm.Field,
			HTTPStatus: status,
		}

	default:
		return output.ErrAPI(status, norm.Message)
	}
}

// authExempt reports whether url targets an endpoint that never carries
// a bearer token and never triggers the 401 interceptor.
func (c *Client) authExempt(url string) bool {
	path := strings.TrimPrefix(url, c.baseURL)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return config.IsAuthExempt(path)
}

func (c *Client) buildURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// parseNextLink extracts the next URL from a Link header.
// Example: <https://...?page=2>; rel="next", <https://...?page=5>; rel="last"
func parseNextLink(linkHeader string) string {
	if linkHeader == "" {
		return ""
	}
	for _, part := range strings.Split(linkHeader, ",") {
		part = strings.TrimSpace(part)
		if strings.Contains(part, `rel="next"`) {
			start := strings.Index(part, "<")
			end := strings.Index(part, ">")
			if start >= 0 && end > start {
				return part[start+1 : end]
			}
		}
	}
	return ""
}

// parseRetryAfter parses the Retry-After header value in seconds.
func parseRetryAfter(header string) int {
	if header == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds >= 0 {
		return seconds
	}
	return 0
}
