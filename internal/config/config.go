package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kjstillabower/weather-lookup/internal/client"
)

// History storage backends.
const (
	BackendFile      = "file"
	BackendSQLite    = "sqlite"
	BackendMemcached = "memcached"
	BackendMemory    = "memory"
)

// Config holds service configuration loaded from YAML, .env and env.
type Config struct {
	ServerPort string

	// WeatherAPIKey may be empty; the client then reports INVALID_KEY on fetch.
	WeatherAPIKey string
	WeatherAPIURL string

	RequestTimeout time.Duration

	HistoryBackend          string
	// HistoryPath is a directory for the file backend and a database file for sqlite.
	HistoryPath             string
	HistoryDefaultMaxLength int

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled bool
	CircuitBreaker        client.BreakerConfig

	DegradedWindow   time.Duration
	DegradedErrorPct int

	ShutdownTimeout time.Duration

	baseDir        string
	historyPathSet bool
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		URL string `yaml:"url"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	History struct {
		Backend          string `yaml:"backend"`
		Path             string `yaml:"path"`
		DefaultMaxLength int    `yaml:"default_max_length"`
		Memcached        struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"history"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          bool   `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			HalfOpenRequests int    `yaml:"half_open_requests"`
			OpenTimeout      string `yaml:"open_timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Health struct {
		DegradedWindow   string `yaml:"degraded_window"`
		DegradedErrorPct int    `yaml:"degraded_error_pct"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"shutdown"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration relative to the working directory. See LoadFrom.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom reads dir/.env (if present), dir/config/{ENV_NAME}.yaml (default
// dev, optional) and dir/config/secrets.yaml. Environment variables set
// before the call win over .env. The API key comes from WEATHER_API_KEY or
// the secrets file; a missing key is not an error.
func LoadFrom(dir string) (*Config, error) {
	if err := godotenv.Load(filepath.Join(dir, ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	var fc fileConfig
	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", configPath, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	default:
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{baseDir: dir}

	cfg.ServerPort = strings.TrimSpace(fc.Server.Port)
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.WeatherAPIKey = strings.TrimSpace(os.Getenv("WEATHER_API_KEY"))
	if cfg.WeatherAPIKey == "" {
		key, err := readSecrets(filepath.Join(dir, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}

	cfg.WeatherAPIURL = strings.TrimSpace(fc.WeatherAPI.URL)
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = client.DefaultBaseURL
	}

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.HistoryBackend = strings.TrimSpace(strings.ToLower(os.Getenv("HISTORY_BACKEND")))
	if cfg.HistoryBackend == "" {
		cfg.HistoryBackend = strings.TrimSpace(strings.ToLower(fc.History.Backend))
	}
	if cfg.HistoryBackend == "" {
		cfg.HistoryBackend = BackendFile
	}
	cfg.HistoryPath = strings.TrimSpace(fc.History.Path)
	cfg.historyPathSet = cfg.HistoryPath != ""
	cfg.resolveHistoryPath()
	cfg.HistoryDefaultMaxLength = fc.History.DefaultMaxLength
	if cfg.HistoryDefaultMaxLength <= 0 {
		cfg.HistoryDefaultMaxLength = 10
	}

	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.History.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.History.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.History.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 20
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 40
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = cb.Enabled
	cfg.CircuitBreaker = client.BreakerConfig{
		FailureThreshold: cb.FailureThreshold,
		HalfOpenRequests: cb.HalfOpenRequests,
		OpenTimeout:      parseDuration(cb.OpenTimeout, 30*time.Second),
	}
	if cfg.CircuitBreaker.FailureThreshold <= 0 {
		cfg.CircuitBreaker.FailureThreshold = 5
	}
	if cfg.CircuitBreaker.HalfOpenRequests <= 0 {
		cfg.CircuitBreaker.HalfOpenRequests = 1
	}

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 || cfg.DegradedErrorPct > 100 {
		cfg.DegradedErrorPct = 50
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readSecrets(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

// SetHistoryBackend overrides the configured backend. A history path that
// came from defaults is re-derived for the new backend.
func (c *Config) SetHistoryBackend(backend string) error {
	backend = strings.TrimSpace(strings.ToLower(backend))
	if !validBackend(backend) {
		return fmt.Errorf("history backend must be file, sqlite, memcached or memory, got %q", backend)
	}
	c.HistoryBackend = backend
	if !c.historyPathSet {
		c.HistoryPath = ""
	}
	c.resolveHistoryPath()
	return nil
}

func (c *Config) resolveHistoryPath() {
	if c.HistoryPath == "" {
		c.HistoryPath = defaultHistoryPath(c.HistoryBackend)
	}
	if c.HistoryPath != "" && !filepath.IsAbs(c.HistoryPath) {
		c.HistoryPath = filepath.Join(c.baseDir, c.HistoryPath)
	}
}

func validBackend(b string) bool {
	switch b {
	case BackendFile, BackendSQLite, BackendMemcached, BackendMemory:
		return true
	}
	return false
}

func defaultHistoryPath(backend string) string {
	switch backend {
	case BackendFile:
		return "data"
	case BackendSQLite:
		return filepath.Join("data", "history.db")
	}
	return ""
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

// validate checks the backend name and keeps RequestTimeout above the
// provider fetch timeout so a fetch can report TIMEOUT before the handler gives up.
func validate(cfg *Config) error {
	if cfg.RequestTimeout <= client.RequestTimeout {
		cfg.RequestTimeout = client.RequestTimeout + 5*time.Second
	}
	if !validBackend(cfg.HistoryBackend) {
		return fmt.Errorf("history.backend must be file, sqlite, memcached or memory, got %q", cfg.HistoryBackend)
	}
	return nil
}
