package techu

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/tailscale/hujson"

	"github.com/techu/techu/pkg/constants"
	"github.com/techu/techu/pkg/retry"
)

// Duration is a time.Duration that reads and writes JSON as a Go duration
// string such as "250ms" or "10s". A bare number is taken as seconds.
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(v * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// Config holds every tunable of the proxy. Zero values are not defaults:
// start from DefaultConfig and overlay a file with LoadConfig.
type Config struct {
	// MaxRetries is the number of failovers allowed after the first
	// attempt of a write, so a write makes at most MaxRetries+1 attempts.
	MaxRetries int `json:"max_retries"`

	LockTTL          Duration `json:"lock_ttl"`
	LockWaitTimeout  Duration `json:"lock_wait_timeout"`
	LockPollInterval Duration `json:"lock_poll_interval"`

	SearchCacheEnabled  bool     `json:"search_cache_enabled"`
	SearchCacheTTL      Duration `json:"search_cache_ttl"`
	ExcerptCacheEnabled bool     `json:"excerpt_cache_enabled"`
	ExcerptCacheTTL     Duration `json:"excerpt_cache_ttl"`

	// BackendTimeout bounds every single engine or store call.
	BackendTimeout Duration `json:"backend_timeout"`

	// RetryDelay is the pause before the first failover. Zero fails over
	// immediately. RetryBackoff selects "fixed" or "exponential".
	RetryDelay   Duration `json:"retry_delay"`
	RetryBackoff string   `json:"retry_backoff"`

	RedisURL    string            `json:"redis_url"`
	SphinxDSN   string            `json:"sphinx_dsn"`
	SphinxDSNs  map[string]string `json:"sphinx_dsns"`
	MetadataDSN string            `json:"metadata_dsn"`
	Indexes     map[int64]string  `json:"indexes"`

	Listen   string `json:"listen"`
	LogPath  string `json:"log_path"`
	LogLevel string `json:"log_level"`
}

func DefaultConfig() Config {
	return Config{
		MaxRetries:          constants.DefaultMaxRetries,
		LockTTL:             Duration(constants.DefaultLockTTL),
		LockWaitTimeout:     Duration(constants.DefaultLockWaitTimeout),
		LockPollInterval:    Duration(constants.DefaultLockPollInterval),
		SearchCacheEnabled:  true,
		SearchCacheTTL:      Duration(constants.DefaultSearchCacheTTL),
		ExcerptCacheEnabled: true,
		ExcerptCacheTTL:     Duration(constants.DefaultExcerptCacheTTL),
		BackendTimeout:      Duration(constants.DefaultBackendTimeout),
		RetryBackoff:        "fixed",
		Listen:              ":8080",
		LogLevel:            "info",
	}
}

// LoadConfig reads a JSON file that may contain comments and trailing
// commas. Keys missing from the file keep their DefaultConfig value.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	positive := []struct {
		name  string
		value Duration
	}{
		{"lock_ttl", c.LockTTL},
		{"lock_wait_timeout", c.LockWaitTimeout},
		{"lock_poll_interval", c.LockPollInterval},
		{"backend_timeout", c.BackendTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", p.name, p.value.Std()))
		}
	}
	if c.SearchCacheEnabled && c.SearchCacheTTL <= 0 {
		errs = append(errs, errors.New("search_cache_ttl must be positive when the search cache is enabled"))
	}
	if c.ExcerptCacheEnabled && c.ExcerptCacheTTL <= 0 {
		errs = append(errs, errors.New("excerpt_cache_ttl must be positive when the excerpt cache is enabled"))
	}
	if c.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must not be negative, got %s", c.RetryDelay.Std()))
	}
	switch c.RetryBackoff {
	case "", "fixed", "exponential":
	default:
		errs = append(errs, fmt.Errorf("retry_backoff must be fixed or exponential, got %q", c.RetryBackoff))
	}
	for id, name := range c.Indexes {
		if id <= 0 || name == "" {
			errs = append(errs, fmt.Errorf("indexes: invalid entry %d=%q", id, name))
		}
	}
	return errors.Join(errs...)
}

// Retryer returns the pause policy between failover attempts.
func (c Config) Retryer() retry.Retryer {
	if c.RetryDelay <= 0 {
		return retry.NoDelay{}
	}
	if c.RetryBackoff == "exponential" {
		return retry.NewExponentialBackoff(c.RetryDelay.Std())
	}
	return retry.NewFixedDelay(c.RetryDelay.Std())
}
