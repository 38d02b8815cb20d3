package validate

import (
	"regexp"
	"strings"
	"unicode"
)

// PasswordRules configures CheckPassword. Zero values fall back to the
// platform's account defaults.
type PasswordRules struct {
	MinLength         int
	MaxLength         int
	RequireUppercase  bool
	RequireLowercase  bool
	RequireDigit      bool
	RequireSymbol     bool
	ForbiddenPatterns []string
}

// DefaultPasswordRules match the account service's registration policy.
func DefaultPasswordRules() PasswordRules {
	return PasswordRules{
		MinLength:         8,
		MaxLength:         128,
		RequireUppercase:  true,
		RequireLowercase:  true,
		RequireDigit:      true,
		ForbiddenPatterns: []string{"password", "12345678", "qwerty"},
	}
}

// Password strength buckets.
const (
	StrengthWeak   = "weak"
	StrengthMedium = "medium"
	StrengthStrong = "strong"
)

// PasswordResult reports rule violations and a 0-100 strength score.
type PasswordResult struct {
	Valid    bool
	Errors   []string
	Score    int
	Strength string
}

// CheckPassword enforces rules and scores the password. Scoring rewards
// length and character-class variety; buckets split at 60 and 80.
func CheckPassword(password string, rules PasswordRules) PasswordResult {
	if rules.MinLength <= 0 {
		rules.MinLength = 8
	}
	if rules.MaxLength <= 0 {
		rules.MaxLength = 128
	}

	var res PasswordResult
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSymbol = true
		}
	}

	if len(password) < rules.MinLength {
		res.Errors = append(res.Errors, "password is too short")
	}
	if len(password) > rules.MaxLength {
		res.Errors = append(res.Errors, "password is too long")
	}
	if rules.RequireUppercase && !hasUpper {
		res.Errors = append(res.Errors, "password needs an uppercase letter")
	}
	if rules.RequireLowercase && !hasLower {
		res.Errors = append(res.Errors, "password needs a lowercase letter")
	}
	if rules.RequireDigit && !hasDigit {
		res.Errors = append(res.Errors, "password needs a digit")
	}
	if rules.RequireSymbol && !hasSymbol {
		res.Errors = append(res.Errors, "password needs a symbol")
	}
	lower := strings.ToLower(password)
	for _, pattern := range rules.ForbiddenPatterns {
		if pattern != "" && strings.Contains(lower, strings.ToLower(pattern)) {
			res.Errors = append(res.Errors, "password contains a common pattern")
			break
		}
	}

	// Length contributes up to 40 points (capped at 20 chars), each
	// character class 15.
	score := len(password) * 2
	if score > 40 {
		score = 40
	}
	for _, ok := range []bool{hasUpper, hasLower, hasDigit, hasSymbol} {
		if ok {
			score += 15
		}
	}
	if score > 100 {
		score = 100
	}
	res.Score = score

	switch {
	case score >= 80:
		res.Strength = StrengthStrong
	case score >= 60:
		res.Strength = StrengthMedium
	default:
		res.Strength = StrengthWeak
	}

	res.Valid = len(res.Errors) == 0
	return res
}

var (
	emailRe = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)
	phoneRe = regexp.MustCompile(`^\+?[0-9][0-9 ().-]{5,18}[0-9]$`)

	jsPrefixRe  = regexp.MustCompile(`(?i)javascript\s*:`)
	onAttrRe    = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	angleChars  = strings.NewReplacer("<", "", ">", "")
	maxInputLen = 1000
)

// CheckEmail is a format check only; it says nothing about deliverability.
func CheckEmail(email string) bool {
	return emailRe.MatchString(email)
}

// CheckPhone accepts international numbers with common separators.
func CheckPhone(phone string) bool {
	return phoneRe.MatchString(phone)
}

// Sanitize strips the obvious script-injection vectors from free-form user
// input and truncates it. Defense in depth only: output encoding at render
// time is still required wherever this value is displayed.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = angleChars.Replace(s)
	s = jsPrefixRe.ReplaceAllString(s, "")
	s = onAttrRe.ReplaceAllString(s, "")
	runes := []rune(s)
	if len(runes) > maxInputLen {
		s = string(runes[:maxInputLen])
	}
	return s
}
