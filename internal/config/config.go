package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvFile names the environment variable pointing at an optional YAML file.
const EnvFile = "KOBODASH_CONFIG"

const defaultJWTSecret = "kobodash-dev-secret-change-me"

type Config struct {
	HTTPAddr     string `yaml:"http_addr"`
	DatabasePath string `yaml:"database_path"`

	KoboURL      string `yaml:"kobo_url"`
	KoboToken    string `yaml:"kobo_token"`
	KoboTimeout  int    `yaml:"kobo_timeout_seconds"`
	KoboPageSize int    `yaml:"kobo_page_size"`

	JWTSecret       string   `yaml:"jwt_secret"`
	WebhookUser     string   `yaml:"webhook_user"`
	WebhookPassHash string   `yaml:"webhook_password_hash"`
	CORSOrigins     []string `yaml:"cors_origins"`

	// SyncInterval is in minutes; zero disables the periodic sync.
	SyncInterval    int `yaml:"sync_interval_minutes"`
	SyncConcurrency int `yaml:"sync_concurrency"`

	LogLevel string `yaml:"log_level"`
	GelfAddr string `yaml:"gelf_addr"`
}

func defaults() *Config {
	return &Config{
		HTTPAddr:        ":8080",
		DatabasePath:    "data/kobodash.db",
		KoboURL:         "https://kf.kobotoolbox.org/api/v2",
		KoboTimeout:     60,
		KoboPageSize:    1000,
		JWTSecret:       defaultJWTSecret,
		WebhookUser:     "kobo",
		CORSOrigins:     []string{"*"},
		SyncConcurrency: 4,
		LogLevel:        "info",
	}
}

// Load builds the configuration from defaults, then the YAML file at path
// (or $KOBODASH_CONFIG), then environment variables.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path == "" {
		path = os.Getenv(EnvFile)
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.HTTPAddr = getEnv("KOBODASH_ADDR", cfg.HTTPAddr)
	cfg.DatabasePath = getEnv("KOBODASH_DB", cfg.DatabasePath)
	cfg.KoboURL = getEnv("KOBO_API_URL", cfg.KoboURL)
	cfg.KoboToken = getEnv("KOBO_API_TOKEN", cfg.KoboToken)
	cfg.KoboTimeout = getEnvInt("KOBO_TIMEOUT", cfg.KoboTimeout)
	cfg.KoboPageSize = getEnvInt("KOBO_PAGE_SIZE", cfg.KoboPageSize)
	cfg.JWTSecret = getEnv("KOBODASH_JWT_SECRET", cfg.JWTSecret)
	cfg.WebhookUser = getEnv("KOBODASH_WEBHOOK_USER", cfg.WebhookUser)
	cfg.WebhookPassHash = getEnv("KOBODASH_WEBHOOK_PASSWORD_HASH", cfg.WebhookPassHash)
	cfg.CORSOrigins = getEnvList("KOBODASH_CORS_ORIGINS", cfg.CORSOrigins)
	cfg.SyncInterval = getEnvInt("KOBODASH_SYNC_INTERVAL", cfg.SyncInterval)
	cfg.SyncConcurrency = getEnvInt("KOBODASH_SYNC_CONCURRENCY", cfg.SyncConcurrency)
	cfg.LogLevel = getEnv("KOBODASH_LOG_LEVEL", cfg.LogLevel)
	cfg.GelfAddr = getEnv("GELF_ADDR", cfg.GelfAddr)
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("database_path is required"))
	}
	if u, err := url.Parse(c.KoboURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("kobo_url %q is not an absolute URL", c.KoboURL))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("jwt_secret is required"))
	}
	if c.KoboTimeout <= 0 {
		errs = append(errs, errors.New("kobo_timeout_seconds must be positive"))
	}
	if c.SyncInterval < 0 {
		errs = append(errs, errors.New("sync_interval_minutes must not be negative"))
	}
	if c.SyncConcurrency <= 0 {
		errs = append(errs, errors.New("sync_concurrency must be positive"))
	}
	if c.WebhookPassHash != "" && !strings.HasPrefix(c.WebhookPassHash, "$2") {
		errs = append(errs, errors.New("webhook_password_hash must be a bcrypt hash"))
	}
	return errors.Join(errs...)
}

// InsecureDefaults reports whether the development JWT secret is in use.
func (c *Config) InsecureDefaults() bool {
	return c.JWTSecret == defaultJWTSecret
}

func (c *Config) KoboRequestTimeout() time.Duration {
	return time.Duration(c.KoboTimeout) * time.Second
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return fallback
		}
		n = n*10 + int(c-'0')
	}
	return n
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
