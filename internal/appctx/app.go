// Package appctx provides the application composition root shared by
// all commands.
package appctx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/stagepass/passctl/internal/api"
	"github.com/stagepass/passctl/internal/auth"
	"github.com/stagepass/passctl/internal/config"
	"github.com/stagepass/passctl/internal/observability"
	"github.com/stagepass/passctl/internal/output"
	"github.com/stagepass/passctl/internal/resilience"
	"github.com/stagepass/passctl/internal/secure"
)

// App holds the shared application context for all commands.
type App struct {
	Config  *config.Config
	Store   *secure.Store
	Auth    *auth.Manager
	Client  *api.Client
	Handler *output.Handler
	Output  *output.Writer

	Breaker *resilience.Breaker
	Limiter *resilience.RateLimiter

	Collector *observability.SessionCollector
	Hooks     *observability.CLIHooks

	// Flags holds the global flag values
	Flags GlobalFlags
}

// GlobalFlags holds values for global CLI flags.
type GlobalFlags struct {
	JSON     bool
	Quiet    bool
	Verbose  int // 0=off, 1=auth/server events, 2=every request
	Stats    bool
	BaseURL  string
	CacheDir string
}

// NewApp wires the service graph from resolved configuration.
func NewApp(cfg *config.Config) *App {
	collector := observability.NewSessionCollector()
	hooks := observability.NewCLIHooks(0, collector, observability.NewTraceWriter())

	store := secure.NewStore(filepath.Join(cfg.CacheDir, "credentials"))
	resState := resilience.NewStore(filepath.Join(cfg.CacheDir, "resilience"))
	breaker := resilience.NewBreaker(resState, resilience.DefaultBreakerConfig())
	limiter := resilience.NewRateLimiter(resState, resilience.DefaultRateLimitConfig())
	lock := resilience.NewRefreshLock(filepath.Join(cfg.CacheDir, "resilience"))

	authMgr := auth.NewManager(cfg, store, breaker, lock, hooks, nil)
	client := api.NewClient(cfg, authMgr, hooks, limiter)
	handler := output.NewHandler(hooks, authMgr)

	return &App{
		Config:    cfg,
		Store:     store,
		Auth:      authMgr,
		Client:    client,
		Handler:   handler,
		Breaker:   breaker,
		Limiter:   limiter,
		Collector: collector,
		Hooks:     hooks,
	}
}

// ApplyFlags finalizes verbosity and output format after flag parsing.
func (a *App) ApplyFlags() {
	level := a.Flags.Verbose
	if level == 0 && a.Config.Verbose != nil {
		level = *a.Config.Verbose
	}
	a.Hooks.SetLevel(level)

	format := output.FormatJSON
	switch {
	case a.Flags.Quiet:
		format = output.FormatQuiet
	case a.Flags.JSON:
		format = output.FormatJSON
	default:
		switch a.Config.Format {
		case "quiet":
			format = output.FormatQuiet
		case "text":
			format = output.FormatText
		case "auto":
			if isTTY(os.Stdout) {
				format = output.FormatText
			}
		}
	}
	a.Output = output.New(output.Options{Format: format})
}

// OK renders a success envelope.
func (a *App) OK(data any) error {
	return a.Output.OK(data)
}

// OKSummary renders a success envelope with a one-line summary.
func (a *App) OKSummary(data any, summary string) error {
	return a.Output.OKSummary(data, summary)
}

// ReportError classifies err through the handler, renders it, and
// returns the exit code.
func (a *App) ReportError(err error, operation string) int {
	e := a.Handler.Handle(err, operation)
	_ = a.Output.Err(e)
	return e.ExitCode()
}

// PrintStats writes a compact session summary to stderr when enabled.
func (a *App) PrintStats() {
	enabled := a.Flags.Stats
	if !enabled && a.Config.Stats != nil {
		enabled = *a.Config.Stats
	}
	if !enabled || a.Collector == nil {
		return
	}

	m := a.Collector.Snapshot()
	if m.TotalRequests == 0 {
		return
	}

	parts := []string{
		fmt.Sprintf("%s elapsed", roundDuration(time.Since(m.StartTime))),
		fmt.Sprintf("%d requests", m.TotalRequests),
		fmt.Sprintf("avg %s", roundDuration(m.AvgLatency())),
	}
	if m.TotalRetries > 0 {
		parts = append(parts, fmt.Sprintf("%d retries", m.TotalRetries))
	}
	if m.FailedReqs > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", m.FailedReqs))
	}
	fmt.Fprintf(os.Stderr, "\nStats: %s\n", strings.Join(parts, " | "))
}

func roundDuration(d time.Duration) time.Duration {
	if d >= time.Second {
		return d.Round(100 * time.Millisecond)
	}
	return d.Round(time.Millisecond)
}

func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
