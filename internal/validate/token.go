// Package validate provides stateless checks on tokens and user input.
package validate

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"
)

// DefaultExpiryBuffer is subtracted from a token's remaining lifetime so a
// token about to expire mid-request is treated as already expired.
const DefaultExpiryBuffer = 30 * time.Second

// tokenPayload holds the claims we care about when peeking inside a token
// without verifying its signature.
type tokenPayload struct {
	Exp float64 `json:"exp"`
	Sub string  `json:"sub"`
}

// decodePayload decodes the middle segment of a three-segment token.
// The caller is responsible for checking the segment count first.
func decodePayload(segment string) (*tokenPayload, map[string]any, error) {
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		// Tolerate padded encodings produced by non-conforming issuers.
		raw, err = base64.URLEncoding.DecodeString(segment)
		if err != nil {
			return nil, nil, err
		}
	}

	var claims map[string]any
	if err := json.Unmarshal(raw, &claims); err != nil {
		return nil, nil, err
	}

	var payload tokenPayload
	if v, ok := claims["exp"].(float64); ok {
		payload.Exp = v
	}
	if v, ok := claims["sub"].(string); ok {
		payload.Sub = v
	}
	return &payload, claims, nil
}

// IsTokenExpired reports whether token expires within buffer from now.
//
// The check deliberately favors false negatives: a missing token, a token
// that is not in three-segment form, or a payload without an exp claim is
// reported as NOT expired, so a parse hiccup never cascades into a
// destructive logout. The one fail-closed case is a structurally plausible
// token whose payload cannot be decoded at all.
func IsTokenExpired(token string, buffer time.Duration) bool {
	if token == "" {
		return false
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}

	payload, claims, err := decodePayload(parts[1])
	if err != nil {
		// Decoding blew up on something shaped like a token. Treat it as
		// expired so the refresh path replaces it.
		return true
	}
	if _, ok := claims["exp"]; !ok {
		// No exp claim means the issuer did not bound the lifetime.
		return false
	}

	expiresAt := time.Unix(int64(payload.Exp), 0)
	return time.Now().Add(buffer).After(expiresAt)
}

// IsRefreshTokenUsable reports whether token looks like a refresh token we
// could post to the refresh endpoint: three segments with a JSON payload
// that carries an exp claim.
func IsRefreshTokenUsable(token string) bool {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return false
	}
	_, claims, err := decodePayload(parts[1])
	if err != nil {
		return false
	}
	_, ok := claims["exp"]
	return ok
}

// TokenExpiry re-parses the exp claim directly and returns it.
// ok is false when the token has no conclusive expiry. Callers that clear
// credentials must only do so when ok is true and the time is in the past;
// anything less conclusive is not grounds for logout.
func TokenExpiry(token string) (time.Time, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return time.Time{}, false
	}
	payload, claims, err := decodePayload(parts[1])
	if err != nil {
		return time.Time{}, false
	}
	if _, ok := claims["exp"]; !ok {
		return time.Time{}, false
	}
	return time.Unix(int64(payload.Exp), 0), true
}

// TokenSubject returns the sub claim, if any.
func TokenSubject(token string) string {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, _, err := decodePayload(parts[1])
	if err != nil {
		return ""
	}
	return payload.Sub
}
