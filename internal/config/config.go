// Package config loads server and client settings.
//
// Sources, later ones winning: built-in defaults, an optional TOML file,
// a .env file found by walking up from the working directory, and
// LUMINOTE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LUMINOTE_"

// Config is the top-level configuration.
type Config struct {
	ListenAddr   string   `toml:"listen_addr"`
	APIPrefix    string   `toml:"api_prefix"`
	CORSOrigins  []string `toml:"cors_origins"`
	LogLevel     string   `toml:"log_level"` // debug | info | warn | error
	CatalogPath  string   `toml:"catalog_path"`
	BlockTimeout Duration `toml:"block_timeout"`
	ReadTimeout  Duration `toml:"read_timeout"`
	WriteTimeout Duration `toml:"write_timeout"`

	Cache    CacheConfig    `toml:"cache"`
	Extract  ExtractConfig  `toml:"extract"`
	Versions VersionsConfig `toml:"versions"`
	Client   ClientConfig   `toml:"client"`
}

// CacheConfig configures the translation cache.
type CacheConfig struct {
	Enabled bool     `toml:"enabled"`
	Path    string   `toml:"path"`
	TTL     Duration `toml:"ttl"`
}

// ExtractConfig configures page fetching for /extract.
type ExtractConfig struct {
	Timeout   Duration `toml:"timeout"`
	UserAgent string   `toml:"user_agent"`
}

// VersionsConfig configures the translation version history.
type VersionsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
	Keep    int    `toml:"keep"` // versions kept per document
}

// ClientConfig holds defaults for the stream client used by the CLI.
type ClientConfig struct {
	BaseURL    string   `toml:"base_url"`
	MaxRetries int      `toml:"max_retries"`
	RetryDelay Duration `toml:"retry_delay"`
}

// Duration is a time.Duration written as "1.5s" in TOML.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ListenAddr:   ":8000",
		APIPrefix:    "/api/v1",
		CORSOrigins:  []string{"http://localhost:3000"},
		LogLevel:     "info",
		BlockTimeout: Duration{120 * time.Second},
		ReadTimeout:  Duration{30 * time.Second},
		WriteTimeout: Duration{0}, // streams can run for minutes
		Cache: CacheConfig{
			Enabled: false,
			Path:    filepath.Join(".luminote", "cache.db"),
			TTL:     Duration{24 * time.Hour},
		},
		Extract: ExtractConfig{
			Timeout:   Duration{30 * time.Second},
			UserAgent: "Mozilla/5.0 (compatible; Luminote/1.0; +https://github.com/haowjy/luminote-go)",
		},
		Versions: VersionsConfig{
			Enabled: false,
			Path:    filepath.Join(".luminote", "versions.db"),
			Keep:    5,
		},
		Client: ClientConfig{
			BaseURL:    "http://localhost:8000",
			MaxRetries: 3,
			RetryDelay: Duration{time.Second},
		},
	}
}

// Load builds the configuration. path may be empty; a named file that does
// not exist is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("config: no config file found at %s", path)
			}
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	LoadEnv()
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnv loads the first .env file found walking up from the working
// directory. Variables already set in the environment are kept. A missing
// file is not an error.
func LoadEnv() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}

	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			if err := godotenv.Load(envPath); err != nil {
				slog.Warn("failed to load .env file", "path", envPath, "error", err)
			}
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

func (c *Config) applyEnv() error {
	c.ListenAddr = getEnv("LISTEN_ADDR", c.ListenAddr)
	c.APIPrefix = getEnv("API_PREFIX", c.APIPrefix)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.CatalogPath = getEnv("CATALOG_PATH", c.CatalogPath)
	c.Cache.Path = getEnv("CACHE_PATH", c.Cache.Path)
	c.Extract.UserAgent = getEnv("USER_AGENT", c.Extract.UserAgent)
	c.Versions.Path = getEnv("VERSIONS_PATH", c.Versions.Path)
	c.Client.BaseURL = getEnv("BASE_URL", c.Client.BaseURL)

	if v, ok := lookupEnv("CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}

	var errs []error
	setBool(&c.Cache.Enabled, "CACHE_ENABLED", &errs)
	setBool(&c.Versions.Enabled, "VERSIONS_ENABLED", &errs)
	setInt(&c.Versions.Keep, "VERSIONS_KEEP", &errs)
	setInt(&c.Client.MaxRetries, "MAX_RETRIES", &errs)
	setDuration(&c.BlockTimeout, "BLOCK_TIMEOUT", &errs)
	setDuration(&c.ReadTimeout, "READ_TIMEOUT", &errs)
	setDuration(&c.WriteTimeout, "WRITE_TIMEOUT", &errs)
	setDuration(&c.Cache.TTL, "CACHE_TTL", &errs)
	setDuration(&c.Extract.Timeout, "EXTRACT_TIMEOUT", &errs)
	setDuration(&c.Client.RetryDelay, "RETRY_DELAY", &errs)
	return errors.Join(errs...)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	if c.ListenAddr == "" {
		errs = append(errs, errors.New("config: listen_addr must not be empty"))
	}
	if !strings.HasPrefix(c.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("config: api_prefix %q must start with '/'", c.APIPrefix))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.BlockTimeout.Duration <= 0 {
		errs = append(errs, errors.New("config: block_timeout must be positive"))
	}
	if c.Cache.Enabled {
		if c.Cache.Path == "" {
			errs = append(errs, errors.New("config: cache.path is required when the cache is enabled"))
		}
		if c.Cache.TTL.Duration <= 0 {
			errs = append(errs, errors.New("config: cache.ttl must be positive"))
		}
	}
	if c.Extract.Timeout.Duration <= 0 {
		errs = append(errs, errors.New("config: extract.timeout must be positive"))
	}
	if c.Versions.Enabled {
		if c.Versions.Path == "" {
			errs = append(errs, errors.New("config: versions.path is required when version history is enabled"))
		}
		if c.Versions.Keep <= 0 {
			errs = append(errs, errors.New("config: versions.keep must be positive"))
		}
	}
	if c.Client.MaxRetries < 0 {
		errs = append(errs, errors.New("config: client.max_retries must not be negative"))
	}
	if c.Client.RetryDelay.Duration < 0 {
		errs = append(errs, errors.New("config: client.retry_delay must not be negative"))
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("config: unknown log level %q", name)
	}
	return level, nil
}

// Level returns the configured log level, or info if it does not parse.
func (c *Config) Level() slog.Level {
	level, err := ParseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func lookupEnv(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return strings.TrimSpace(v), true
}

func getEnv(key, fallback string) string {
	if v, ok := lookupEnv(key); ok {
		return v
	}
	return fallback
}

func setBool(dst *bool, key string, errs *[]error) {
	v, ok := lookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = b
}

func setInt(dst *int, key string, errs *[]error) {
	v, ok := lookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err))
		return
	}
	*dst = n
}

func setDuration(dst *Duration, key string, errs *[]error) {
	v, ok := lookupEnv(key)
	if !ok {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err))
		return
	}
	dst.Duration = d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
