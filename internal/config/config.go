// Package config implements the layered configuration: defaults <- config
// file <- environment <- CLI flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// Config represents the redline configuration. The API key is never written
// to the config file; it comes from the environment or a flag.
type Config struct {
	Model          string      `json:"model"`
	BaseURL        string      `json:"baseURL,omitempty"`
	Context        string      `json:"context,omitempty"`
	Format         string      `json:"format"`
	Author         string      `json:"author"`
	Budget         int         `json:"budget"`
	Concurrency    int         `json:"concurrency"`
	AlignThreshold float64     `json:"alignThreshold"`
	MaxRetries     int         `json:"maxRetries"`
	RequestTimeout int         `json:"requestTimeoutSeconds"`
	GuideFile      string      `json:"guideFile,omitempty"`
	Cache          CacheConfig `json:"cache"`
	RedactSecrets  bool        `json:"redactSecrets"`

	// APIKey is runtime-only.
	APIKey string `json:"-"`
}

// CacheConfig controls response caching.
type CacheConfig struct {
	Enabled bool   `json:"enabled"`
	Dir     string `json:"dir,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Model:          "ollama/gemma3:12b",
		Format:         "text",
		Author:         "redline",
		Budget:         6000,
		Concurrency:    4,
		AlignThreshold: 0.75,
		MaxRetries:     3,
		RequestTimeout: 120,
		Cache: CacheConfig{
			Enabled: true,
			Dir:     ".review_cache",
		},
		RedactSecrets: true,
	}
}

// ConfigDir returns the platform-appropriate config directory for redline.
func ConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "redline"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "redline"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "redline"), nil
		}
		return filepath.Join(home, "AppData", "Roaming", "redline"), nil
	default:
		return filepath.Join(home, ".config", "redline"), nil
	}
}

// ConfigPath returns the full path to the config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// LoadFile loads config from the config file. Returns zero Config and nil
// error if the file doesn't exist.
func LoadFile() (Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return Config{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Save writes the config to the config file.
func Save(cfg Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <-
// overrides. The overrides map comes from CLI flags (only set values).
func Load(overrides map[string]string) (Config, error) {
	cfg := Default()

	fileCfg, err := LoadFile()
	if err != nil {
		return Config{}, err
	}
	mergeFile(&cfg, fileCfg)
	mergeEnv(&cfg)
	mergeOverrides(&cfg, overrides)

	return cfg, nil
}

func mergeFile(dst *Config, src Config) {
	if src.Model != "" {
		dst.Model = src.Model
	}
	if src.BaseURL != "" {
		dst.BaseURL = src.BaseURL
	}
	if src.Context != "" {
		dst.Context = src.Context
	}
	if src.Format != "" {
		dst.Format = src.Format
	}
	if src.Author != "" {
		dst.Author = src.Author
	}
	if src.Budget > 0 {
		dst.Budget = src.Budget
	}
	if src.Concurrency > 0 {
		dst.Concurrency = src.Concurrency
	}
	if src.AlignThreshold > 0 {
		dst.AlignThreshold = src.AlignThreshold
	}
	if src.MaxRetries > 0 {
		dst.MaxRetries = src.MaxRetries
	}
	if src.RequestTimeout > 0 {
		dst.RequestTimeout = src.RequestTimeout
	}
	if src.GuideFile != "" {
		dst.GuideFile = src.GuideFile
	}
	if src.Cache.Dir != "" {
		dst.Cache.Dir = src.Cache.Dir
	}
	// JSON cannot distinguish unset bools from false; trust an enabled flag
	// from either layer.
	dst.Cache.Enabled = src.Cache.Enabled || dst.Cache.Enabled
}

func mergeEnv(cfg *Config) {
	if v := os.Getenv("REDLINE_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("REDLINE_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("REDLINE_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv("REDLINE_CONTEXT"); v != "" {
		cfg.Context = v
	}
	if v := os.Getenv("REDLINE_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("REDLINE_FORMAT"); v != "" {
		cfg.Format = v
	}
	if v := os.Getenv("REDLINE_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Budget = n
		}
	}
	if v := os.Getenv("REDLINE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
}

func mergeOverrides(cfg *Config, overrides map[string]string) {
	if overrides == nil {
		return
	}
	if v, ok := overrides["model"]; ok && v != "" {
		cfg.Model = v
	}
	if v, ok := overrides["apiKey"]; ok && v != "" {
		cfg.APIKey = v
	}
	if v, ok := overrides["baseURL"]; ok && v != "" {
		cfg.BaseURL = v
	}
	if v, ok := overrides["context"]; ok && v != "" {
		cfg.Context = v
	}
	if v, ok := overrides["format"]; ok && v != "" {
		cfg.Format = v
	}
	if v, ok := overrides["author"]; ok && v != "" {
		cfg.Author = v
	}
	if v, ok := overrides["cacheDir"]; ok && v != "" {
		cfg.Cache.Dir = v
	}
	if v, ok := overrides["guideFile"]; ok && v != "" {
		cfg.GuideFile = v
	}
	if v, ok := overrides["budget"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Budget = n
		}
	}
	if v, ok := overrides["concurrency"]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v, ok := overrides["alignThreshold"]; ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.AlignThreshold = f
		}
	}
}

// SetField sets a single config field by key name. Returns an error if the
// key is unknown.
func SetField(cfg *Config, key, value string) error {
	switch key {
	case "model":
		cfg.Model = value
	case "baseURL":
		cfg.BaseURL = value
	case "context":
		cfg.Context = value
	case "format":
		cfg.Format = value
	case "author":
		cfg.Author = value
	case "guideFile":
		cfg.GuideFile = value
	case "cacheDir":
		cfg.Cache.Dir = value
	case "budget":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("budget must be an integer: %w", err)
		}
		cfg.Budget = n
	case "concurrency":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("concurrency must be an integer: %w", err)
		}
		cfg.Concurrency = n
	case "alignThreshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("alignThreshold must be a number: %w", err)
		}
		cfg.AlignThreshold = f
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	return nil
}
