package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds application configuration.
// Values come from defaults, then config.json files, then environment variables.
type Config struct {
	// OpenRouterKey authenticates calls to the generation service.
	OpenRouterKey string `json:"openrouter_api_key,omitempty" env:"OPENROUTER_API_KEY"`

	// OpenRouterURL is the base URL of the OpenRouter-compatible API.
	OpenRouterURL string `json:"openrouter_url,omitempty" env:"OPENROUTER_URL"`

	// Model is the generation model identifier.
	Model string `json:"model,omitempty" env:"OPENROUTER_MODEL"`

	// RequestTimeoutSeconds bounds a whole generation stream.
	RequestTimeoutSeconds int `json:"request_timeout_seconds,omitempty" env:"REQUEST_TIMEOUT_SECONDS"`

	// ImageKit credentials for the upload/transform service.
	ImageKitPublicKey   string `json:"imagekit_public_key,omitempty" env:"IMAGEKIT_PUBLIC_KEY"`
	ImageKitPrivateKey  string `json:"imagekit_private_key,omitempty" env:"IMAGEKIT_PRIVATE_KEY"`
	ImageKitURLEndpoint string `json:"imagekit_url_endpoint,omitempty" env:"IMAGEKIT_URL_ENDPOINT"`
	ImageKitUploadURL   string `json:"imagekit_upload_url,omitempty" env:"IMAGEKIT_UPLOAD_URL"`

	// VercelToken authenticates deployments. VercelAPIURL is overridable for tests.
	VercelToken  string `json:"vercel_token,omitempty" env:"VERCEL_TOKEN"`
	VercelAPIURL string `json:"vercel_api_url,omitempty" env:"VERCEL_API_URL"`

	// DatabaseURL selects the Postgres persistence bridge when set.
	// Empty means the local SQLite database under the base directory.
	DatabaseURL string `json:"database_url,omitempty" env:"DATABASE_URL"`

	// DBMaxOpenConns limits the maximum number of open SQLite connections.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty" env:"DB_MAX_OPEN_CONNS"`

	// DBMaxIdleConns limits the maximum number of idle SQLite connections.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty" env:"DB_MAX_IDLE_CONNS"`

	// AllowedPaths is an allowlist of directories for import/export operations.
	// Paths outside ~/.sitesmith/exports require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty" env:"ALLOWED_PATHS" envSeparator:","`

	// AllowUnsafePaths disables directory restrictions for import/export.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty" env:"ALLOW_UNSAFE_PATHS"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty" env:"DISABLED_TOOLS" envSeparator:","`

	// SaveCooldownMs is how long the inspector keeps showing "Changes Saved!".
	SaveCooldownMs int `json:"save_cooldown_ms,omitempty" env:"SAVE_COOLDOWN_MS"`

	// Bind and Port configure the web server.
	Bind string `json:"bind,omitempty" env:"SITESMITH_BIND"`
	Port int    `json:"port,omitempty" env:"SITESMITH_PORT"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty" env:"LOG_LEVEL"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		OpenRouterURL:         "https://openrouter.ai/api/v1",
		Model:                 "google/gemini-2.0-flash-001",
		RequestTimeoutSeconds: 90,
		ImageKitUploadURL:     "https://upload.imagekit.io/api/v1/files/upload",
		VercelAPIURL:          "https://api.vercel.com",
		SaveCooldownMs:        3000,
		Bind:                  "127.0.0.1",
		Port:                  8420,
		LogLevel:              "info",
	}
}

// RequestTimeout returns the generation timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// SaveCooldown returns the inspector "saved" cool-down as a duration.
func (c *Config) SaveCooldown() time.Duration {
	return time.Duration(c.SaveCooldownMs) * time.Millisecond
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(c.LogLevel)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load loads configuration from baseDir/config.json and the environment.
// Returns default config (plus environment) if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	cfg, err := loadFile(filepath.Join(baseDir, "config.json"))
	if err != nil {
		return nil, err
	}
	return applyEnv(cfg)
}

// LoadWithRepo loads configuration from both global (~/.sitesmith) and repo (.sitesmith) directories,
// then applies environment variables on top.
// Repo config is found by walking upward from startDir to find the nearest .sitesmith/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return applyEnv(Merge(Merge(DefaultConfig(), global), repo))
}

// FindRepoConfig walks upward from startDir to find the nearest .sitesmith/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".sitesmith", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// applyEnv overlays environment variables. Unset variables leave the field untouched.
func applyEnv(cfg *Config) (*Config, error) {
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path on top of the defaults.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	return &Config{
		OpenRouterKey:         pickString(base.OpenRouterKey, overlay.OpenRouterKey),
		OpenRouterURL:         pickString(base.OpenRouterURL, overlay.OpenRouterURL),
		Model:                 pickString(base.Model, overlay.Model),
		RequestTimeoutSeconds: pickInt(base.RequestTimeoutSeconds, overlay.RequestTimeoutSeconds),
		ImageKitPublicKey:     pickString(base.ImageKitPublicKey, overlay.ImageKitPublicKey),
		ImageKitPrivateKey:    pickString(base.ImageKitPrivateKey, overlay.ImageKitPrivateKey),
		ImageKitURLEndpoint:   pickString(base.ImageKitURLEndpoint, overlay.ImageKitURLEndpoint),
		ImageKitUploadURL:     pickString(base.ImageKitUploadURL, overlay.ImageKitUploadURL),
		VercelToken:           pickString(base.VercelToken, overlay.VercelToken),
		VercelAPIURL:          pickString(base.VercelAPIURL, overlay.VercelAPIURL),
		DatabaseURL:           pickString(base.DatabaseURL, overlay.DatabaseURL),
		DBMaxOpenConns:        pickInt(base.DBMaxOpenConns, overlay.DBMaxOpenConns),
		DBMaxIdleConns:        pickInt(base.DBMaxIdleConns, overlay.DBMaxIdleConns),
		AllowedPaths:          mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths),
		AllowUnsafePaths:      base.AllowUnsafePaths || overlay.AllowUnsafePaths,
		DisabledTools:         mergeStringSlice(base.DisabledTools, overlay.DisabledTools),
		SaveCooldownMs:        pickInt(base.SaveCooldownMs, overlay.SaveCooldownMs),
		Bind:                  pickString(base.Bind, overlay.Bind),
		Port:                  pickInt(base.Port, overlay.Port),
		LogLevel:              pickString(base.LogLevel, overlay.LogLevel),
	}
}

func pickString(base, overlay string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func pickInt(base, overlay int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, s := range list {
			s = strings.TrimSpace(s)
			if s != "" && !seen[s] {
				seen[s] = true
				result = append(result, s)
			}
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
