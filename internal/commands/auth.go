package commands

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/stagepass/passctl/internal/appctx"
	"github.com/stagepass/passctl/internal/output"
	"github.com/stagepass/passctl/internal/validate"
)

// NewAuthCmd creates the auth command group.
func NewAuthCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage authentication",
		Long:  "Manage StagePass authentication including login, logout, and session status.",
	}

	cmd.AddCommand(
		newAuthLoginCmd(),
		newAuthLogoutCmd(),
		newAuthStatusCmd(),
		newAuthRefreshCmd(),
		newAuthTokenCmd(),
	)

	return cmd
}

func newAuthLoginCmd() *cobra.Command {
	var email string
	var password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with StagePass",
		Long:  "Log in with email and password; tokens are stored in the system keyring when available.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if app == nil {
				return fmt.Errorf("app not initialized")
			}

			if email == "" {
				fmt.Fprint(os.Stderr, "Email: ")
				if _, err := fmt.Fscanln(os.Stdin, &email); err != nil {
					return output.ErrUsage("email is required")
				}
			}
			if password == "" {
				pw, err := promptPassword("Password: ")
				if err != nil {
					return err
				}
				password = pw
			}

			profile, err := app.Auth.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}

			if !app.Store.UsingKeyring() {
				fmt.Fprintf(os.Stderr, "note: system keyring unavailable, using %s storage\n", app.Store.Backend())
			}
			return app.OKSummary(profile, fmt.Sprintf("Logged in as %s", profile.Email))
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Password (prompted when omitted)")
	return cmd
}

func promptPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		// Piped input: read one line.
		var pw string
		if _, err := fmt.Fscanln(os.Stdin, &pw); err != nil {
			return "", output.ErrUsage("password is required")
		}
		return pw, nil
	}

	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

func newAuthLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and clear stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if err := app.Auth.Logout(cmd.Context()); err != nil {
				return err
			}
			return app.OKSummary(map[string]bool{"logged_out": true}, "Logged out")
		},
	}
}

func newAuthStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show authentication status",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			status := map[string]any{
				"authenticated": app.Auth.IsAuthenticated(),
				"storage":       app.Store.Backend(),
				"base_url":      app.Config.BaseURL,
			}

			if profile, err := app.Auth.StoredProfile(); err == nil && profile != nil {
				status["email"] = profile.Email
			}

			access, err := app.Store.AccessToken()
			if err == nil && access != "" {
				if exp, ok := validate.TokenExpiry(access); ok {
					status["access_expires"] = exp.UTC().Format(time.RFC3339)
					status["access_expired"] = time.Now().After(exp)
				}
			}
			if refresh, err := app.Store.RefreshToken(); err == nil && refresh != "" {
				if exp, ok := validate.TokenExpiry(refresh); ok {
					status["refresh_expires"] = exp.UTC().Format(time.RFC3339)
				}
			}

			summary := "Not logged in"
			if app.Auth.IsAuthenticated() {
				summary = "Logged in"
				if email, ok := status["email"].(string); ok {
					summary = fmt.Sprintf("Logged in as %s", email)
				}
			}
			return app.OKSummary(status, summary)
		},
	}
}

func newAuthRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Force a token refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			if !app.Auth.HasRefreshToken() {
				return output.ErrAuth("No session to refresh")
			}

			token, err := app.Auth.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			if token == "" {
				if !app.Auth.IsAuthenticated() {
					return output.ErrAuth("Session ended: refresh token rejected")
				}
				return output.ErrAPI(503, "Refresh unavailable right now, session kept")
			}

			result := map[string]any{"refreshed": true}
			if exp, ok := validate.TokenExpiry(token); ok {
				result["access_expires"] = exp.UTC().Format(time.RFC3339)
			}
			return app.OKSummary(result, "Token refreshed")
		},
	}
}

func newAuthTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the current access token",
		Long:  "Print a valid access token for use in scripts, refreshing first if needed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			token, err := app.Auth.AccessToken(cmd.Context())
			if err != nil {
				return err
			}
			if token == "" {
				return output.ErrAuth("No valid token available")
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
}
