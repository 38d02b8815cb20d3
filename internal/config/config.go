// Package config provides layered configuration loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the resolved configuration.
type Config struct {
	// API settings
	BaseURL        string `json:"base_url" yaml:"base_url"`
	RequestTimeout int    `json:"request_timeout" yaml:"request_timeout"` // seconds

	// Retry behavior for idempotent requests
	RetryMax   int `json:"retry_max" yaml:"retry_max"`
	RetryDelay int `json:"retry_delay" yaml:"retry_delay"` // milliseconds

	// Output settings
	Format string `json:"format" yaml:"format"`

	// Behavior preferences (persisted via config set, overridable by flags)
	Stats   *bool `json:"stats,omitempty" yaml:"stats,omitempty"`
	Verbose *int  `json:"verbose,omitempty" yaml:"verbose,omitempty"`

	// CacheDir roots resilience state and the credential file fallback.
	CacheDir string `json:"cache_dir" yaml:"cache_dir"`

	// Sources tracks where each value came from (for config list).
	Sources map[string]string `json:"-" yaml:"-"`
}

// Source indicates where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceSystem  Source = "system"
	SourceGlobal  Source = "global"
	SourceEnv     Source = "env"
	SourceFlag    Source = "flag"
)

// FlagOverrides holds command-line flag values.
type FlagOverrides struct {
	BaseURL  string
	Format   string
	CacheDir string
	Verbose  int
	HasVerb  bool
	Stats    bool
	HasStats bool
}

// Default returns the default configuration.
func Default() *Config {
	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, _ := os.UserHomeDir()
		cacheDir = filepath.Join(home, ".cache")
	}

	return &Config{
		BaseURL:        "https://api.stagepass.dev",
		RequestTimeout: 30,
		RetryMax:       3,
		RetryDelay:     1000,
		Format:         "auto",
		CacheDir:       filepath.Join(cacheDir, "stagepass"),
		Sources:        make(map[string]string),
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence: flags > env > global > system > defaults
func Load(overrides FlagOverrides) (*Config, error) {
	cfg := Default()

	loadFromFile(cfg, systemConfigPath(), SourceSystem)
	if path := globalConfigPath(); path != "" {
		loadFromFile(cfg, path, SourceGlobal)
	}

	LoadFromEnv(cfg)
	ApplyOverrides(cfg, overrides)

	cfg.BaseURL = NormalizeBaseURL(cfg.BaseURL)
	return cfg, nil
}

func loadFromFile(cfg *Config, path string, source Source) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // File doesn't exist, skip
	}

	fileCfg, err := decodeConfigFile(path, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: skipping malformed config at %s: %v\n", path, err)
		return
	}

	if v, ok := fileCfg["base_url"].(string); ok && v != "" {
		cfg.BaseURL = v
		cfg.Sources["base_url"] = string(source)
	}
	if v, ok := intValue(fileCfg, "request_timeout"); ok && v > 0 {
		cfg.RequestTimeout = v
		cfg.Sources["request_timeout"] = string(source)
	}
	if v, ok := intValue(fileCfg, "retry_max"); ok && v >= 0 {
		cfg.RetryMax = v
		cfg.Sources["retry_max"] = string(source)
	}
	if v, ok := intValue(fileCfg, "retry_delay"); ok && v >= 0 {
		cfg.RetryDelay = v
		cfg.Sources["retry_delay"] = string(source)
	}
	if v, ok := fileCfg["format"].(string); ok && v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(source)
	}
	if v, ok := fileCfg["cache_dir"].(string); ok && v != "" {
		cfg.CacheDir = v
		cfg.Sources["cache_dir"] = string(source)
	}
	if v, ok := fileCfg["stats"].(bool); ok {
		cfg.Stats = &v
		cfg.Sources["stats"] = string(source)
	}
	if v, ok := intValue(fileCfg, "verbose"); ok && v >= 0 && v <= 2 {
		cfg.Verbose = &v
		cfg.Sources["verbose"] = string(source)
	}
}

// decodeConfigFile parses JSON or YAML depending on the file extension.
func decodeConfigFile(path string, data []byte) (map[string]any, error) {
	var fileCfg map[string]any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &fileCfg); err != nil {
			return nil, err
		}
	}
	return fileCfg, nil
}

// intValue extracts an int that JSON decodes as float64 and YAML as int.
func intValue(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

// LoadFromEnv loads configuration from STAGEPASS_* environment variables.
// Exported so root.go can re-apply after flag parsing.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("STAGEPASS_BASE_URL"); v != "" {
		cfg.BaseURL = v
		cfg.Sources["base_url"] = string(SourceEnv)
	}
	if v := os.Getenv("STAGEPASS_FORMAT"); v != "" {
		cfg.Format = v
		cfg.Sources["format"] = string(SourceEnv)
	}
	if v := os.Getenv("STAGEPASS_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
		cfg.Sources["cache_dir"] = string(SourceEnv)
	}
	if v := os.Getenv("STAGEPASS_TIMEOUT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RequestTimeout = n
			cfg.Sources["request_timeout"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("STAGEPASS_VERBOSE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 2 {
			cfg.Verbose = &n
			cfg.Sources["verbose"] = string(SourceEnv)
		}
	}
	if v := os.Getenv("STAGEPASS_STATS"); v != "" {
		if b, ok := parseEnvBool(v); ok {
			cfg.Stats = &b
			cfg.Sources["stats"] = string(SourceEnv)
		}
	}
}

// parseEnvBool parses a boolean environment variable strictly. Unrecognized
// values are ignored to preserve three-state pointer semantics.
func parseEnvBool(v string) (bool, bool) {
	switch strings.ToLower(v) {
	case "true", "1":
		return true, true
	case "false", "0":
		return false, true
	default:
		return false, false
	}
}

// ApplyOverrides applies non-empty flag overrides to cfg.
func ApplyOverrides(cfg *Config, o FlagOverrides) {
	if o.BaseURL != "" {
		cfg.BaseURL = o.BaseURL
		cfg.Sources["base_url"] = string(SourceFlag)
	}
	if o.Format != "" {
		cfg.Format = o.Format
		cfg.Sources["format"] = string(SourceFlag)
	}
	if o.CacheDir != "" {
		cfg.CacheDir = o.CacheDir
		cfg.Sources["cache_dir"] = string(SourceFlag)
	}
	if o.HasVerb {
		v := o.Verbose
		cfg.Verbose = &v
		cfg.Sources["verbose"] = string(SourceFlag)
	}
	if o.HasStats {
		s := o.Stats
		cfg.Stats = &s
		cfg.Sources["stats"] = string(SourceFlag)
	}
}

// Timeout returns the request timeout as a duration.
func (cfg *Config) Timeout() time.Duration {
	return time.Duration(cfg.RequestTimeout) * time.Second
}

// RetryBaseDelay returns the retry base delay as a duration.
func (cfg *Config) RetryBaseDelay() time.Duration {
	return time.Duration(cfg.RetryDelay) * time.Millisecond
}

// NormalizeBaseURL ensures consistent URL format (no trailing slash).
func NormalizeBaseURL(url string) string {
	return strings.TrimSuffix(strings.TrimSpace(url), "/")
}
