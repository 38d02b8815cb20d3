// Package api implements the authenticated HTTP client: bearer
// injection, the single 401 refresh-and-retry interceptor, backend error
// normalization, and retry with backoff.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// NormalizedError is the single error shape the rest of the program
// consumes, regardless of which of the backend's response formats
// produced it.
type NormalizedError struct {
	Message string
	Code    string
	Field   string
	Status  int
}

func (e *NormalizedError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Structured codes the backend uses on auth-related 5xx responses.
// When present they override the status-based classification.
const (
	CodeTokenNotValid        = "token_not_valid"
	CodeAuthenticationFailed = "authentication_failed"
)

// ParseErrorBody normalizes the three error shapes the backend emits:
//
//	{"error": {"code": "...", "message": "..."}}
//	{"message": "..."} or {"message": {"field": ["..."]}}
//	{"field": ["problem"], "other": "problem"}
//
// The result always has a non-empty Message; an unrecognizable body
// falls back to the HTTP status text.
func ParseErrorBody(body []byte, status int) *NormalizedError {
	norm := &NormalizedError{Status: status}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(body, &probe); err != nil || len(probe) == 0 {
		norm.Message = statusMessage(status)
		return norm
	}

	// Shape 1: {"error": {"code", "message"}}
	if raw, ok := probe["error"]; ok {
		var inner struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(raw, &inner); err == nil && (inner.Code != "" || inner.Message != "") {
			norm.Code = inner.Code
			norm.Message = inner.Message
			if norm.Message == "" {
				norm.Message = statusMessage(status)
			}
			return norm
		}
		// {"error": "plain text"}
		var text string
		if err := json.Unmarshal(raw, &text); err == nil && text != "" {
			norm.Message = text
			return norm
		}
	}

	// Shape 2: {"message": string | {field: [...]}}
	if raw, ok := probe["message"]; ok {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil && text != "" {
			norm.Message = text
			if raw, ok := probe["code"]; ok {
				_ = json.Unmarshal(raw, &norm.Code)
			}
			return norm
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err == nil && len(fields) > 0 {
			field, msg := firstFieldError(fields)
			norm.Field = field
			norm.Message = msg
			return norm
		}
	}

	// Shape 3: bare field map {field: ["problem"] | "problem"}
	if field, msg := firstFieldError(probe); msg != "" {
		norm.Field = field
		norm.Message = msg
		return norm
	}

	norm.Message = statusMessage(status)
	return norm
}

// firstFieldError picks the lexicographically first field so the same
// body always yields the same error. Envelope members (code, status,
// error) are not fields and never win.
func firstFieldError(fields map[string]json.RawMessage) (string, string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if k == "code" || k == "status" || k == "error" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := fields[key]

		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 && list[0] != "" {
			return fieldName(key), list[0]
		}
		var text string
		if err := json.Unmarshal(raw, &text); err == nil && text != "" {
			return fieldName(key), text
		}
	}
	return "", ""
}

// fieldName hides the backend's catch-all key from users.
func fieldName(key string) string {
	if key == "non_field_errors" || key == "detail" {
		return ""
	}
	return key
}

func statusMessage(status int) string {
	if text := http.StatusText(status); text != "" {
		return fmt.Sprintf("request failed: %s", strings.ToLower(text))
	}
	return fmt.Sprintf("request failed with status %d", status)
}

// IsAuthCode reports whether a structured error code marks the response
// as an authentication failure. Used to reclassify auth errors the
// backend mislabels as 5xx.
func IsAuthCode(code string) bool {
	return code == CodeTokenNotValid || code == CodeAuthenticationFailed
}

// looksLikeAuthText is the legacy fallback for backends that emit auth
// failures without a structured code. Only consulted when Code is empty.
func looksLikeAuthText(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "token not valid") ||
		strings.Contains(lower, "authentication failed") ||
		strings.Contains(lower, "token is expired") ||
		strings.Contains(lower, "token is invalid")
}

// IsAuthFailure reports whether the normalized error represents an
// authentication failure regardless of its HTTP status. A structured
// code is authoritative; message text is only a fallback.
func (e *NormalizedError) IsAuthFailure() bool {
	if e.Code != "" {
		return IsAuthCode(e.Code)
	}
	return looksLikeAuthText(e.Message)
}
