package appctx

import (
	"context"
	"testing"
	"time"

	"github.com/stagepass/passctl/internal/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("STAGEPASS_NO_KEYRING", "1")
	cfg := config.Default()
	cfg.CacheDir = t.TempDir()
	return NewApp(cfg)
}

func TestNewApp(t *testing.T) {
	app := newTestApp(t)

	if app == nil {
		t.Fatal("NewApp returned nil")
	}
	if app.Store == nil {
		t.Error("credential store not initialized")
	}
	if app.Auth == nil {
		t.Error("auth manager not initialized")
	}
	if app.Client == nil {
		t.Error("API client not initialized")
	}
	if app.Handler == nil {
		t.Error("error handler not initialized")
	}
	if app.Breaker == nil {
		t.Error("refresh breaker not initialized")
	}
	if app.Limiter == nil {
		t.Error("rate limiter not initialized")
	}
	if app.Collector == nil {
		t.Error("session collector not initialized")
	}
}

func TestWithAppAndFromContext(t *testing.T) {
	app := newTestApp(t)

	ctx := WithApp(context.Background(), app)
	if got := FromContext(ctx); got != app {
		t.Errorf("FromContext returned %v, want the stored app", got)
	}

	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext on empty context = %v, want nil", got)
	}
}

func TestApplyFlagsSetsOutput(t *testing.T) {
	app := newTestApp(t)
	app.Flags.Quiet = true
	app.ApplyFlags()

	if app.Output == nil {
		t.Fatal("ApplyFlags did not initialize the output writer")
	}
}

func TestRoundDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected time.Duration
	}{
		{1537 * time.Millisecond, 1500 * time.Millisecond},
		{2050 * time.Millisecond, 2100 * time.Millisecond},
		{12345 * time.Microsecond, 12 * time.Millisecond},
		{900 * time.Microsecond, 1 * time.Millisecond},
	}

	for _, tt := range tests {
		if got := roundDuration(tt.input); got != tt.expected {
			t.Errorf("roundDuration(%v) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}
