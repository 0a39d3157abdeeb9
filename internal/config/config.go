// Package config loads service configuration from environment variables with
// an optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string // listen address, default "0.0.0.0"
	Port int    // listen port, default 8080
}

// ProviderConfig holds the credentials and retry tuning for the MailGoat
// provider API.
type ProviderConfig struct {
	BaseURL        string        // provider API root, default https://api.mailgoat.ai/v1
	APIKey         string        // bearer token for the provider
	AttemptTimeout time.Duration // per-attempt HTTP timeout
	MaxRetries     int           // extra attempts after the first, default 3
	BaseDelay      time.Duration // backoff seed, default 1s
	MaxDelay       time.Duration // backoff cap, default 30s
	SendDeadline   time.Duration // overall deadline for one send including retries
	RatePerSecond  float64       // outbound send cap, 0 disables
}

// WebhookConfig holds the inbound webhook settings.
type WebhookConfig struct {
	Secret string // HMAC shared secret; empty disables verification
}

// InboxConfig holds cache maintenance tuning.
type InboxConfig struct {
	RetryInterval time.Duration // unprocessed-record retry cadence, default 5m
	RetryBatch    int           // records per retry pass, default 100
}

// CORSConfig lists the origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string // "*" allows all origins
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level       string // debug, info, warn, error
	Development bool   // console encoding and caller info
}

// DatabaseConfig holds the SQL connection settings. An empty Type selects the
// in-memory store.
type DatabaseConfig struct {
	Type            string // "mysql" or "postgres", empty for in-memory
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the optional event dedup cache settings. An empty
// Address disables the cache.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	DedupTTL time.Duration // how long applied event ids stay cached
}

// AuthConfig guards the management endpoints.
type AuthConfig struct {
	APIToken string // static bearer token; empty disables the guard
}

// Config is the root configuration for the service.
type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Webhook  WebhookConfig
	Inbox    InboxConfig
	CORS     CORSConfig
	Log      LogConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Auth     AuthConfig
}

// Load reads configuration from the environment, with values from an
// optional .env file filling in anything unset. Environment variables use
// the MAILGOAT_ prefix, e.g. MAILGOAT_PROVIDER_API_KEY.
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetEnvPrefix("mailgoat")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("provider.base_url", "https://api.mailgoat.ai/v1")
	viper.SetDefault("provider.api_key", "")
	viper.SetDefault("provider.attempt_timeout", "10s")
	viper.SetDefault("provider.max_retries", 3)
	viper.SetDefault("provider.base_delay", "1s")
	viper.SetDefault("provider.max_delay", "30s")
	viper.SetDefault("provider.send_deadline", "2m")
	viper.SetDefault("provider.rate_per_second", 0)
	viper.SetDefault("webhook.secret", "")
	viper.SetDefault("inbox.retry_interval", "5m")
	viper.SetDefault("inbox.retry_batch", 100)
	viper.SetDefault("cors.allowed_origins", "*")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // empty selects the in-memory store
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.dedup_ttl", "24h")
	viper.SetDefault("auth.api_token", "")

	baseURL := strings.TrimSpace(viper.GetString("provider.base_url"))
	if baseURL == "" {
		return nil, fmt.Errorf("provider.base_url must not be empty")
	}

	attemptTimeout, err := parseDuration("provider.attempt_timeout")
	if err != nil {
		return nil, err
	}
	baseDelay, err := parseDuration("provider.base_delay")
	if err != nil {
		return nil, err
	}
	maxDelay, err := parseDuration("provider.max_delay")
	if err != nil {
		return nil, err
	}
	sendDeadline, err := parseDuration("provider.send_deadline")
	if err != nil {
		return nil, err
	}

	maxRetries := viper.GetInt("provider.max_retries")
	if maxRetries < 0 {
		return nil, fmt.Errorf("provider.max_retries must not be negative")
	}

	retryInterval, err := parseDuration("inbox.retry_interval")
	if err != nil {
		return nil, err
	}
	retryBatch := viper.GetInt("inbox.retry_batch")
	if retryBatch <= 0 {
		retryBatch = 100
	}

	corsOrigins := parseList(viper.GetString("cors.allowed_origins"))
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	dbType := strings.ToLower(strings.TrimSpace(viper.GetString("database.type")))
	switch dbType {
	case "", "mysql", "postgres":
	default:
		return nil, fmt.Errorf("unsupported database.type %q", dbType)
	}
	if dbType != "" && viper.GetString("database.dsn") == "" {
		return nil, fmt.Errorf("database.dsn is required when database.type is set")
	}

	connMaxLifetime, err := parseDuration("database.conn_max_lifetime")
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}
	dedupTTL, err := parseDuration("redis.dedup_ttl")
	if err != nil {
		dedupTTL = 24 * time.Hour
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Provider: ProviderConfig{
			BaseURL:        baseURL,
			APIKey:         viper.GetString("provider.api_key"),
			AttemptTimeout: attemptTimeout,
			MaxRetries:     maxRetries,
			BaseDelay:      baseDelay,
			MaxDelay:       maxDelay,
			SendDeadline:   sendDeadline,
			RatePerSecond:  viper.GetFloat64("provider.rate_per_second"),
		},
		Webhook: WebhookConfig{
			Secret: viper.GetString("webhook.secret"),
		},
		Inbox: InboxConfig{
			RetryInterval: retryInterval,
			RetryBatch:    retryBatch,
		},
		CORS: CORSConfig{
			AllowedOrigins: corsOrigins,
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            dbType,
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
			DedupTTL: dedupTTL,
		},
		Auth: AuthConfig{
			APIToken: viper.GetString("auth.api_token"),
		},
	}

	return cfg, nil
}

// parseDuration reads a viper key as a duration with a keyed error.
func parseDuration(key string) (time.Duration, error) {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// parseList splits a comma-separated string into trimmed items.
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile loads .env from the working directory or its parent. Missing
// files are fine; set environment variables always win.
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}
	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
