// Package config loads vwo-pulse configuration from built-in defaults, an
// optional YAML file and the environment (highest priority). Before that,
// .env.local and .env are read into the process environment if present.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar names the environment variable holding a YAML config path.
const ConfigPathEnvVar = "VWOP_CONFIG"

// DefaultConfigPaths are searched when no explicit config path is given.
var DefaultConfigPaths = []string{"vwo-pulse.yaml", "vwo-pulse.yml"}

// DotEnvFiles are loaded in order; earlier files win because godotenv never
// overrides variables that are already set.
var DotEnvFiles = []string{".env.local", ".env"}

// ErrMissingCredentials is returned by RequireCredentials.
var ErrMissingCredentials = errors.New("VWO credentials not configured (set VWO_ACCOUNT_ID and VWO_API_TOKEN)")

type Config struct {
	VWO    VWOConfig    `koanf:"vwo"`
	Cache  CacheConfig  `koanf:"cache"`
	Server ServerConfig `koanf:"server"`
	Store  StoreConfig  `koanf:"store"`
	Log    LogConfig    `koanf:"log"`
}

type VWOConfig struct {
	AccountID   string `koanf:"account_id"`
	APIToken    string `koanf:"api_token"`
	BaseURL     string `koanf:"base_url"`
	SettingsURL string `koanf:"settings_url"`

	// Types is the default campaign type allow-list.
	Types []string `koanf:"types"`

	PageSize          int           `koanf:"page_size"`
	BatchSize         int           `koanf:"batch_size"`
	BatchDelay        time.Duration `koanf:"batch_delay"`
	RateLimitCooldown time.Duration `koanf:"rate_limit_cooldown"`
	RequestTimeout    time.Duration `koanf:"request_timeout"`

	// BreakerFailures is the number of consecutive API failures that opens
	// the circuit breaker; BreakerTimeout is how long it stays open.
	BreakerFailures uint32        `koanf:"breaker_failures"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout"`
}

type CacheConfig struct {
	RunningTTL time.Duration `koanf:"running_ttl"`
	DraftTTL   time.Duration `koanf:"draft_ttl"`
	PausedTTL  time.Duration `koanf:"paused_ttl"`
	// ServeStale returns the last good bucket data when a refresh fails.
	ServeStale bool `koanf:"serve_stale"`
}

type ServerConfig struct {
	Port      int    `koanf:"port"`
	TokenFile string `koanf:"token_file"`
	// APIRateLimit is the per-IP request budget per minute for /api/*.
	APIRateLimit int `koanf:"api_rate_limit"`
}

type StoreConfig struct {
	// Path selects the override backend: *.db/*.sqlite use SQLite,
	// anything else is a JSON file.
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		VWO: VWOConfig{
			BaseURL:           "https://app.vwo.com/api/v2",
			SettingsURL:       "https://dev.visualwebsiteoptimizer.com/dcdn/settings.js",
			Types:             []string{"ab", "multivariate", "split_url"},
			PageSize:          100,
			BatchSize:         5,
			BatchDelay:        2 * time.Second,
			RateLimitCooldown: 5 * time.Second,
			RequestTimeout:    30 * time.Second,
			BreakerFailures:   5,
			BreakerTimeout:    30 * time.Second,
		},
		Cache: CacheConfig{
			RunningTTL: 30 * time.Minute,
			DraftTTL:   60 * time.Minute,
			PausedTTL:  60 * time.Minute,
		},
		Server: ServerConfig{
			Port:         8080,
			APIRateLimit: 120,
		},
		Store: StoreConfig{
			Path: "./data/looker-data.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds the configuration. configPath may be empty, in which case
// VWOP_CONFIG and DefaultConfigPaths are consulted.
func Load(configPath string) (*Config, error) {
	for _, f := range DotEnvFiles {
		// Missing dotenv files are expected outside development.
		_ = godotenv.Load(f)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(configPath); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// envMappings maps supported environment variables to config paths.
// VWO_ACCOUNT_ID / VWO_API_TOKEN / VWO_API_KEY keep the names used by the
// existing .env.local files.
var envMappings = map[string]string{
	"VWO_ACCOUNT_ID":   "vwo.account_id",
	"VWO_API_TOKEN":    "vwo.api_token",
	"VWO_API_KEY":      "vwo.api_token",
	"VWO_BASE_URL":     "vwo.base_url",
	"VWO_SETTINGS_URL": "vwo.settings_url",

	"VWOP_TYPES":               "vwo.types",
	"VWOP_PAGE_SIZE":           "vwo.page_size",
	"VWOP_BATCH_SIZE":          "vwo.batch_size",
	"VWOP_BATCH_DELAY":         "vwo.batch_delay",
	"VWOP_RATE_LIMIT_COOLDOWN": "vwo.rate_limit_cooldown",
	"VWOP_REQUEST_TIMEOUT":     "vwo.request_timeout",
	"VWOP_BREAKER_FAILURES":    "vwo.breaker_failures",
	"VWOP_BREAKER_TIMEOUT":     "vwo.breaker_timeout",

	"VWOP_CACHE_RUNNING_TTL": "cache.running_ttl",
	"VWOP_CACHE_DRAFT_TTL":   "cache.draft_ttl",
	"VWOP_CACHE_PAUSED_TTL":  "cache.paused_ttl",
	"VWOP_SERVE_STALE":       "cache.serve_stale",

	"VWOP_PORT":           "server.port",
	"VWOP_TOKEN_FILE":     "server.token_file",
	"VWOP_API_RATE_LIMIT": "server.api_rate_limit",

	"VWOP_STORE_PATH": "store.path",

	"LOG_LEVEL":  "log.level",
	"LOG_FORMAT": "log.format",
}

// envTransformFunc returns "" for unknown variables so koanf skips them.
// VWO_API_KEY is only an alias: it is skipped whenever VWO_API_TOKEN is set.
func envTransformFunc(key string) string {
	if key == "VWO_API_KEY" {
		if _, ok := os.LookupEnv("VWO_API_TOKEN"); ok {
			return ""
		}
	}
	return envMappings[key]
}

var sliceConfigPaths = []string{"vwo.types"}

// processSliceFields splits comma-separated env values into slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := SplitList(strVal)
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// SplitList splits a comma-separated list, trimming blanks.
func SplitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.VWO.PageSize <= 0 {
		return fmt.Errorf("vwo.page_size must be positive, got %d", c.VWO.PageSize)
	}
	if c.VWO.BatchSize <= 0 {
		return fmt.Errorf("vwo.batch_size must be positive, got %d", c.VWO.BatchSize)
	}
	if c.VWO.BatchDelay < 0 || c.VWO.RateLimitCooldown < 0 {
		return errors.New("vwo delays must not be negative")
	}
	if c.VWO.BaseURL == "" {
		return errors.New("vwo.base_url is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	for name, ttl := range map[string]time.Duration{
		"running_ttl": c.Cache.RunningTTL,
		"draft_ttl":   c.Cache.DraftTTL,
		"paused_ttl":  c.Cache.PausedTTL,
	} {
		if ttl <= 0 {
			return fmt.Errorf("cache.%s must be positive", name)
		}
	}
	return nil
}

// RequireCredentials reports whether the API account and token are set.
func (c *Config) RequireCredentials() error {
	if c.VWO.AccountID == "" || c.VWO.APIToken == "" {
		return ErrMissingCredentials
	}
	return nil
}
