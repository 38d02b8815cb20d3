package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// settableKeys are the keys `config set` accepts, with a parser that
// validates and converts the raw string.
var settableKeys = map[string]func(raw string) (any, error){
	"base_url": func(raw string) (any, error) {
		normalized := NormalizeBaseURL(raw)
		if normalized == "" {
			return nil, fmt.Errorf("base_url cannot be empty")
		}
		return normalized, nil
	},
	"format": func(raw string) (any, error) {
		switch raw {
		case "auto", "json", "text", "quiet":
			return raw, nil
		}
		return nil, fmt.Errorf("format must be one of: auto, json, text, quiet")
	},
	"request_timeout": parsePositiveInt,
	"retry_max":       parseNonNegativeInt,
	"retry_delay":     parseNonNegativeInt,
	"cache_dir": func(raw string) (any, error) {
		if raw == "" {
			return nil, fmt.Errorf("cache_dir cannot be empty")
		}
		return raw, nil
	},
	"stats": func(raw string) (any, error) {
		b, ok := parseEnvBool(raw)
		if !ok {
			return nil, fmt.Errorf("stats must be true or false")
		}
		return b, nil
	},
	"verbose": func(raw string) (any, error) {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 || n > 2 {
			return nil, fmt.Errorf("verbose must be 0, 1, or 2")
		}
		return n, nil
	},
}

func parsePositiveInt(raw string) (any, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("value must be a positive integer")
	}
	return n, nil
}

func parseNonNegativeInt(raw string) (any, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return nil, fmt.Errorf("value must be a non-negative integer")
	}
	return n, nil
}

// SettableKeys returns the keys `config set` accepts, sorted.
func SettableKeys() []string {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetValue validates and persists one key in the global config file.
// The global file stays JSON even when a YAML file was read: JSON is
// what this tool writes, YAML is accepted for hand-maintained configs.
func SetValue(key, raw string) error {
	parse, ok := settableKeys[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (known: %v)", key, SettableKeys())
	}
	value, err := parse(raw)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}

	dir := GlobalConfigDir()
	path := filepath.Join(dir, "config.json")

	existing := make(map[string]any)
	if data, err := os.ReadFile(path); err == nil {
		_ = json.Unmarshal(data, &existing)
	}
	existing[key] = value

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}

// UnsetValue removes one key from the global config file.
func UnsetValue(key string) error {
	if _, ok := settableKeys[key]; !ok {
		return fmt.Errorf("unknown config key %q (known: %v)", key, SettableKeys())
	}

	path := filepath.Join(GlobalConfigDir(), "config.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	existing := make(map[string]any)
	if err := json.Unmarshal(data, &existing); err != nil {
		return err
	}
	delete(existing, key)

	out, err := json.MarshalIndent(existing, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(out, '\n'), 0600)
}

// Value returns the resolved value and source for a key, for config get.
func (cfg *Config) Value(key string) (any, string, bool) {
	source := cfg.Sources[key]
	if source == "" {
		source = string(SourceDefault)
	}
	switch key {
	case "base_url":
		return cfg.BaseURL, source, true
	case "format":
		return cfg.Format, source, true
	case "request_timeout":
		return cfg.RequestTimeout, source, true
	case "retry_max":
		return cfg.RetryMax, source, true
	case "retry_delay":
		return cfg.RetryDelay, source, true
	case "cache_dir":
		return cfg.CacheDir, source, true
	case "stats":
		if cfg.Stats == nil {
			return false, source, true
		}
		return *cfg.Stats, source, true
	case "verbose":
		if cfg.Verbose == nil {
			return 0, source, true
		}
		return *cfg.Verbose, source, true
	}
	return nil, "", false
}
