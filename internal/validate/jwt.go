package validate

import (
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Result is the outcome of a full JWT check.
type Result struct {
	Valid  bool
	Claims jwt.MapClaims
	Err    error
}

// CheckJWT checks a token in one of two modes. With a non-empty secret
// it verifies the HMAC signature and the standard claims. With an empty
// secret it parses the structure only and the claims come back unverified.
// There is no in-between mode that pretends to verify.
func CheckJWT(token string, secret []byte) Result {
	if strings.Count(token, ".") != 2 {
		return Result{Err: fmt.Errorf("token is not in three-segment form")}
	}

	if len(secret) == 0 {
		// Structural parse only. The claims are readable but unverified.
		claims := jwt.MapClaims{}
		parser := jwt.NewParser()
		if _, _, err := parser.ParseUnverified(token, claims); err != nil {
			return Result{Err: fmt.Errorf("parse token: %w", err)}
		}
		return Result{Valid: true, Claims: claims}
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return Result{Err: err}
	}
	return Result{Valid: true, Claims: claims}
}
