package commands

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/stagepass/passctl/internal/appctx"
	"github.com/stagepass/passctl/internal/config"
	"github.com/stagepass/passctl/internal/resilience"
	"github.com/stagepass/passctl/internal/validate"
	"github.com/stagepass/passctl/internal/version"
)

// Check represents a single diagnostic check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "pass", "fail", "warn", "skip"
	Message string `json:"message"`
	Hint    string `json:"hint,omitempty"`
}

// DoctorResult holds the complete diagnostic results.
type DoctorResult struct {
	Checks []Check `json:"checks"`
	Passed int     `json:"passed"`
	Failed int     `json:"failed"`
	Warned int     `json:"warned"`
}

func (r *DoctorResult) add(c Check) {
	r.Checks = append(r.Checks, c)
	switch c.Status {
	case "pass":
		r.Passed++
	case "fail":
		r.Failed++
	case "warn":
		r.Warned++
	}
}

// Summary returns a human-readable summary of the results.
func (r *DoctorResult) Summary() string {
	if r.Failed == 0 && r.Warned == 0 {
		return fmt.Sprintf("All %d checks passed", r.Passed)
	}
	var parts []string
	if r.Passed > 0 {
		parts = append(parts, fmt.Sprintf("%d passed", r.Passed))
	}
	if r.Failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", r.Failed))
	}
	if r.Warned > 0 {
		parts = append(parts, fmt.Sprintf("%d warned", r.Warned))
	}
	return strings.Join(parts, ", ")
}

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check CLI health and diagnose issues",
		Long: `Run diagnostic checks on credential storage, session state, resilience
state, and refresh-endpoint reachability.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			result := &DoctorResult{}
			result.add(Check{Name: "version", Status: "pass", Message: version.Full()})
			result.add(checkStorage(app))
			result.add(checkSession(app))
			result.add(checkBreaker(app))
			result.add(checkRefreshEndpoint(cmd.Context(), app))

			return app.OKSummary(result, result.Summary())
		},
	}
}

func checkStorage(app *appctx.App) Check {
	backend := app.Store.Backend()
	switch backend {
	case "keyring":
		return Check{Name: "storage", Status: "pass", Message: "system keyring available"}
	case "encrypted-file":
		return Check{
			Name:    "storage",
			Status:  "warn",
			Message: "system keyring unavailable, using encrypted file storage",
		}
	default:
		return Check{
			Name:    "storage",
			Status:  "warn",
			Message: "credentials held in memory only and will not survive this process",
		}
	}
}

func checkSession(app *appctx.App) Check {
	if !app.Auth.IsAuthenticated() {
		return Check{
			Name:    "session",
			Status:  "warn",
			Message: "not logged in",
			Hint:    "Run: passctl auth login",
		}
	}

	access, err := app.Store.AccessToken()
	if err != nil {
		return Check{Name: "session", Status: "fail", Message: fmt.Sprintf("credential storage error: %v", err)}
	}
	if exp, ok := validate.TokenExpiry(access); ok {
		if time.Now().After(exp) {
			return Check{Name: "session", Status: "pass", Message: "access token expired, refresh token usable"}
		}
		return Check{Name: "session", Status: "pass", Message: fmt.Sprintf("access token valid until %s", exp.UTC().Format(time.RFC3339))}
	}
	return Check{Name: "session", Status: "pass", Message: "logged in"}
}

func checkBreaker(app *appctx.App) Check {
	switch state := app.Breaker.State(); state {
	case resilience.BreakerClosed:
		return Check{Name: "refresh_breaker", Status: "pass", Message: "circuit closed"}
	case resilience.BreakerHalfOpen:
		return Check{Name: "refresh_breaker", Status: "warn", Message: "circuit half-open, next refresh is a probe"}
	default:
		return Check{
			Name:    "refresh_breaker",
			Status:  "warn",
			Message: "circuit open after repeated refresh failures",
			Hint:    "Refresh calls are suppressed until the cooldown elapses",
		}
	}
}

// checkRefreshEndpoint probes the refresh endpoint without credentials.
// A 4xx rejection proves the endpoint exists; a 404 is escalated because
// refreshes will silently soft-fail against a misconfigured base URL.
func checkRefreshEndpoint(ctx context.Context, app *appctx.App) Check {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := config.NormalizeBaseURL(app.Config.BaseURL) + config.RefreshPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader([]byte(`{}`)))
	if err != nil {
		return Check{Name: "refresh_endpoint", Status: "fail", Message: err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := (&http.Client{Timeout: 5 * time.Second}).Do(req)
	if err != nil {
		return Check{
			Name:    "refresh_endpoint",
			Status:  "fail",
			Message: fmt.Sprintf("cannot reach %s: %v", url, err),
			Hint:    "Check your network and base_url setting",
		}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Check{
			Name:    "refresh_endpoint",
			Status:  "fail",
			Message: fmt.Sprintf("refresh endpoint missing at %s (HTTP 404)", url),
			Hint:    "base_url likely points at the wrong deployment; run: passctl config get base_url",
		}
	case resp.StatusCode >= 500:
		return Check{
			Name:    "refresh_endpoint",
			Status:  "warn",
			Message: fmt.Sprintf("refresh endpoint unhealthy (HTTP %d)", resp.StatusCode),
		}
	default:
		// 400/401/422 on an empty probe is the healthy answer.
		return Check{Name: "refresh_endpoint", Status: "pass", Message: "refresh endpoint reachable"}
	}
}
