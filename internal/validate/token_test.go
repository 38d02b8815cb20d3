package validate

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"
)

// makeToken builds an unsigned three-segment token with the given claims.
func makeToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	return header + "." + base64.RawURLEncoding.EncodeToString(payload) + ".sig"
}

func TestIsTokenExpiredBuffer(t *testing.T) {
	now := time.Now().Unix()

	// exp 10s out with a 30s buffer is already expired.
	soon := makeToken(t, map[string]any{"exp": now + 10})
	if !IsTokenExpired(soon, 30*time.Second) {
		t.Error("token expiring in 10s should be expired with 30s buffer")
	}

	// exp 120s out with a 30s buffer is still valid.
	later := makeToken(t, map[string]any{"exp": now + 120})
	if IsTokenExpired(later, 30*time.Second) {
		t.Error("token expiring in 120s should be valid with 30s buffer")
	}
}

func TestIsTokenExpiredPermissive(t *testing.T) {
	// Missing, malformed, or exp-less tokens must never read as expired:
	// a parse hiccup is not grounds for logout.
	cases := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"one segment", "nonsense"},
		{"two segments", "a.b"},
		{"four segments", "a.b.c.d"},
		{"no exp claim", makeToken(t, map[string]any{"sub": "42"})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if IsTokenExpired(tc.token, 30*time.Second) {
				t.Errorf("IsTokenExpired(%q) = true, want false", tc.token)
			}
		})
	}
}

func TestIsTokenExpiredFailClosed(t *testing.T) {
	// A three-segment token whose payload does not decode is the one case
	// that reads as expired.
	if !IsTokenExpired("aaa.!!!not-base64!!!.ccc", 30*time.Second) {
		t.Error("undecodable payload should be treated as expired")
	}
}

func TestIsRefreshTokenUsable(t *testing.T) {
	now := time.Now().Unix()
	if !IsRefreshTokenUsable(makeToken(t, map[string]any{"exp": now + 3600})) {
		t.Error("well-formed refresh token should be usable")
	}
	if IsRefreshTokenUsable(makeToken(t, map[string]any{"sub": "42"})) {
		t.Error("token without exp should not be usable as refresh token")
	}
	if IsRefreshTokenUsable("a.b") {
		t.Error("two-segment token should not be usable")
	}
	if IsRefreshTokenUsable("aaa.!!!.ccc") {
		t.Error("undecodable token should not be usable")
	}
}

func TestTokenExpiry(t *testing.T) {
	now := time.Now().Unix()
	exp, ok := TokenExpiry(makeToken(t, map[string]any{"exp": now + 60}))
	if !ok {
		t.Fatal("expected conclusive expiry")
	}
	if got := exp.Unix(); got != now+60 {
		t.Errorf("expiry = %d, want %d", got, now+60)
	}

	if _, ok := TokenExpiry(makeToken(t, map[string]any{"sub": "42"})); ok {
		t.Error("token without exp must not report a conclusive expiry")
	}
	if _, ok := TokenExpiry("garbage"); ok {
		t.Error("malformed token must not report a conclusive expiry")
	}
}

func TestTokenSubject(t *testing.T) {
	if got := TokenSubject(makeToken(t, map[string]any{"sub": "user-9", "exp": 1.0})); got != "user-9" {
		t.Errorf("TokenSubject = %q, want %q", got, "user-9")
	}
	if got := TokenSubject("nope"); got != "" {
		t.Errorf("TokenSubject on garbage = %q, want empty", got)
	}
}

func TestDecodePayloadPaddedEncoding(t *testing.T) {
	// Some issuers emit padded base64; the decoder tolerates it.
	payload := base64.URLEncoding.EncodeToString([]byte(`{"exp":1}`))
	token := "hdr." + payload + ".sig"
	if _, ok := TokenExpiry(token); !ok {
		t.Error("padded payload encoding should still parse")
	}
}
