package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Platform   string `envconfig:"PLATFORM"`
	Server     ServerConfig
	Browser    BrowserConfig
	Storage    StorageConfig
	Runner     RunnerConfig
	RateLimit  RateLimitConfig
	Logging    LogConfig
	Tracing    TracingConfig
	Jobs       JobsConfig
	Supervisor SupervisorConfig
}

// ServerConfig holds HTTP server configuration. Port 0 means the
// platform's catalog port.
type ServerConfig struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"0"`
}

// BrowserConfig selects and locates the browser engine.
type BrowserConfig struct {
	Driver           string `envconfig:"BROWSER_DRIVER" default:"playwright"`
	HeadlessOverride string `envconfig:"BROWSER_HEADLESS_OVERRIDE"`
	DriverPath       string `envconfig:"BROWSER_DRIVER_PATH"`
	ChromeBinaryPath string `envconfig:"CHROME_BINARY_PATH"`
}

// StorageConfig holds file locations.
type StorageConfig struct {
	CredentialsFile  string `envconfig:"CREDENTIALS_FILE" default:"platforms_auth.json"`
	BrowserDataDir   string `envconfig:"BROWSER_DATA_DIR" default:"./data/browser_profiles"`
	CatalogDir       string `envconfig:"CATALOG_DIR"`
	WatchCredentials bool   `envconfig:"CREDENTIALS_WATCH" default:"true"`
}

// RunnerConfig holds retry and timeout policy.
type RunnerConfig struct {
	TimeoutOverride time.Duration `envconfig:"OPERATION_TIMEOUT_OVERRIDE"`
	MaxAttempts     int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	RetryDelay      time.Duration `envconfig:"RETRY_DELAY" default:"2s"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond       int  `envconfig:"RATE_LIMIT_RPS" default:"5"`
	Burst                   int  `envconfig:"RATE_LIMIT_BURST" default:"10"`
	GlobalRequestsPerSecond int  `envconfig:"RATE_LIMIT_GLOBAL_RPS" default:"20"`
	GlobalBurst             int  `envconfig:"RATE_LIMIT_GLOBAL_BURST" default:"40"`
	Enabled                 bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Format string `envconfig:"LOG_FORMAT" default:"text"`
}

// TracingConfig toggles span export.
type TracingConfig struct {
	Enabled bool `envconfig:"TRACING_ENABLED" default:"false"`
}

// JobsConfig sizes the asynchronous task queue.
type JobsConfig struct {
	Workers   int `envconfig:"JOBS_WORKERS" default:"1"`
	QueueSize int `envconfig:"JOBS_QUEUE_SIZE" default:"64"`
}

// SupervisorConfig drives the multi-bridge process registry.
type SupervisorConfig struct {
	Platforms      string        `envconfig:"SUPERVISOR_PLATFORMS"`
	HealthInterval time.Duration `envconfig:"SUPERVISOR_HEALTH_INTERVAL" default:"30s"`
}

// LoadDotEnv - loads .env style files into the environment; missing files
// are not an error
func LoadDotEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
		},
		Browser: BrowserConfig{
			Driver: "playwright",
		},
		Storage: StorageConfig{
			CredentialsFile:  "platforms_auth.json",
			BrowserDataDir:   "./data/browser_profiles",
			WatchCredentials: true,
		},
		Runner: RunnerConfig{
			MaxAttempts: 3,
			RetryDelay:  2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond:       5,
			Burst:                   10,
			GlobalRequestsPerSecond: 20,
			GlobalBurst:             40,
			Enabled:                 true,
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Jobs: JobsConfig{
			Workers:   1,
			QueueSize: 64,
		},
		Supervisor: SupervisorConfig{
			HealthInterval: 30 * time.Second,
		},
	}
}

// Validate - rejects settings the process cannot start with
func (c *Config) Validate() error {
	switch c.Browser.Driver {
	case "playwright", "selenium":
	default:
		return fmt.Errorf("BROWSER_DRIVER must be playwright or selenium, got %q", c.Browser.Driver)
	}
	if _, _, err := c.HeadlessOverride(); err != nil {
		return err
	}
	if c.Runner.MaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Jobs.Workers < 1 {
		return fmt.Errorf("JOBS_WORKERS must be at least 1")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("PORT %d out of range", c.Server.Port)
	}
	return nil
}

// HeadlessOverride - parsed BROWSER_HEADLESS_OVERRIDE; ok is false when unset
func (c *Config) HeadlessOverride() (headless bool, ok bool, err error) {
	raw := strings.TrimSpace(c.Browser.HeadlessOverride)
	if raw == "" {
		return false, false, nil
	}
	headless, err = strconv.ParseBool(raw)
	if err != nil {
		return false, false, fmt.Errorf("BROWSER_HEADLESS_OVERRIDE: %w", err)
	}
	return headless, true, nil
}

// SupervisedPlatforms - SUPERVISOR_PLATFORMS split on commas
func (c *Config) SupervisedPlatforms() []string {
	var out []string
	for _, p := range strings.Split(c.Supervisor.Platforms, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
