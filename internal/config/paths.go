package config

import (
	"os"
	"path/filepath"
	"strings"
)

// API endpoint paths. The refresh, login, and password-reset endpoints
// never carry a bearer token: a stale token on those would turn a
// recoverable expiry into a hard failure.
const (
	LoginPath           = "/api/auth/login/"
	LogoutPath          = "/api/auth/logout/"
	RefreshPath         = "/api/auth/token/refresh/"
	PasswordResetPrefix = "/api/auth/password-reset"
)

// IsAuthExempt reports whether path is called without a bearer token.
func IsAuthExempt(path string) bool {
	switch path {
	case LoginPath, RefreshPath:
		return true
	}
	return strings.HasPrefix(path, PasswordResetPrefix)
}

func systemConfigPath() string {
	return "/etc/stagepass/config.json"
}

// globalConfigPath returns the first existing global config file,
// preferring JSON, or the JSON path when none exists yet.
func globalConfigPath() string {
	dir := GlobalConfigDir()
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(dir, "config.json")
}

// GlobalConfigDir returns the global config directory path.
func GlobalConfigDir() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, ".config")
	}
	return filepath.Join(configDir, "stagepass")
}
