package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Resend    ResendConfig    `yaml:"resend"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Auth      AuthConfig      `yaml:"auth"`
	Snowflake SnowflakeConfig `yaml:"snowflake"`
	Exports   ExportConfig    `yaml:"exports"`
	RSS       RSSConfig       `yaml:"rss"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port int    `yaml:"port"`
	Host string `yaml:"host"`
}

// GetHost returns the server host, with container detection
func (c ServerConfig) GetHost() string {
	// In a container, listen on all interfaces
	if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" || os.Getenv("AWS_EXECUTION_ENV") != "" {
		return "0.0.0.0"
	}
	if host := os.Getenv("SERVER_HOST"); host != "" {
		return host
	}
	return c.Host
}

// DatabaseConfig holds Postgres settings
type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig holds Redis settings for dispatch locks and preview caching
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ResendConfig holds the email delivery API configuration
type ResendConfig struct {
	APIKey         string `yaml:"api_key"`
	BaseURL        string `yaml:"base_url"`
	FromName       string `yaml:"from_name"`
	FromEmail      string `yaml:"from_email"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured timeout as a duration
func (c ResendConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DispatchConfig holds campaign dispatch loop settings
type DispatchConfig struct {
	BatchSize            int `yaml:"batch_size"`
	PacingMs             int `yaml:"pacing_ms"`
	SchedulerPollSeconds int `yaml:"scheduler_poll_seconds"`
	LockTTLSeconds       int `yaml:"lock_ttl_seconds"`
}

// Pacing returns the fixed delay between individual sends
func (c DispatchConfig) Pacing() time.Duration {
	return time.Duration(c.PacingMs) * time.Millisecond
}

// LockTTL returns the per-campaign dispatch lock lifetime
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLSeconds) * time.Second
}

// AuthConfig holds Google OAuth settings for the admin dashboard
type AuthConfig struct {
	Enabled            bool   `yaml:"enabled"`
	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`
	RedirectURL        string `yaml:"redirect_url"`
	SessionSecret      string `yaml:"session_secret"`
	AllowedDomain      string `yaml:"allowed_domain"`
	CookieName         string `yaml:"cookie_name"`
	CookieMaxAge       int    `yaml:"cookie_max_age"`
}

// SnowflakeConfig holds the data lake connection for navigation analytics
type SnowflakeConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Account   string `yaml:"account"`
	User      string `yaml:"user"`
	Password  string `yaml:"password"`
	Database  string `yaml:"database"`
	Schema    string `yaml:"schema"`
	Warehouse string `yaml:"warehouse"`
}

// ExportConfig holds S3 settings for compliance and audience exports
type ExportConfig struct {
	Enabled  bool   `yaml:"enabled"`
	S3Bucket string `yaml:"s3_bucket"`
	S3Region string `yaml:"s3_region"`
	Prefix   string `yaml:"prefix"`
}

// RSSConfig holds the product feed used to draft promotional campaigns
type RSSConfig struct {
	Enabled bool   `yaml:"enabled"`
	FeedURL string `yaml:"feed_url"`
}

// Load reads configuration from a YAML file and applies defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Set defaults
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Resend.BaseURL == "" {
		cfg.Resend.BaseURL = "https://api.resend.com"
	}
	if cfg.Resend.TimeoutSeconds == 0 {
		cfg.Resend.TimeoutSeconds = 30
	}
	if cfg.Dispatch.BatchSize == 0 {
		cfg.Dispatch.BatchSize = 100
	}
	if cfg.Dispatch.PacingMs == 0 {
		cfg.Dispatch.PacingMs = 100
	}
	if cfg.Dispatch.SchedulerPollSeconds == 0 {
		cfg.Dispatch.SchedulerPollSeconds = 60
	}
	if cfg.Dispatch.LockTTLSeconds == 0 {
		cfg.Dispatch.LockTTLSeconds = 600
	}
	if cfg.Auth.CookieName == "" {
		cfg.Auth.CookieName = "velora_session"
	}
	if cfg.Auth.CookieMaxAge == 0 {
		cfg.Auth.CookieMaxAge = 86400
	}
	if cfg.Snowflake.Database == "" {
		cfg.Snowflake.Database = "VELORA_DATA_LAKE"
	}
	if cfg.Snowflake.Schema == "" {
		cfg.Snowflake.Schema = "STOREFRONT"
	}
	if cfg.Exports.S3Region == "" {
		cfg.Exports.S3Region = "us-east-1"
	}
	if cfg.Exports.Prefix == "" {
		cfg.Exports.Prefix = "exports"
	}

	return &cfg, nil
}

// LoadFromEnv loads configuration with environment variable overrides.
// It loads a .env file (if present) before reading env vars, so secrets can
// live in .env locally and in real env vars on the container platform.
func LoadFromEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		cfg.Resend.APIKey = v
	}
	if v := os.Getenv("RESEND_BASE_URL"); v != "" {
		cfg.Resend.BaseURL = v
	}
	if v := os.Getenv("DISPATCH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Dispatch.BatchSize = n
		}
	}

	// Auth overrides
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Auth.GoogleClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Auth.GoogleClientSecret = v
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		cfg.Auth.SessionSecret = v
	}
	if v := os.Getenv("AUTH_ALLOWED_DOMAIN"); v != "" {
		cfg.Auth.AllowedDomain = v
	}

	// Snowflake overrides
	if v := os.Getenv("SNOWFLAKE_ACCOUNT"); v != "" {
		cfg.Snowflake.Account = v
	}
	if v := os.Getenv("SNOWFLAKE_USER"); v != "" {
		cfg.Snowflake.User = v
	}
	if v := os.Getenv("SNOWFLAKE_PASSWORD"); v != "" {
		cfg.Snowflake.Password = v
	}

	// Export overrides
	if v := os.Getenv("EXPORTS_S3_BUCKET"); v != "" {
		cfg.Exports.S3Bucket = v
	}
	if v := os.Getenv("EXPORTS_S3_REGION"); v != "" {
		cfg.Exports.S3Region = v
	}

	return cfg, nil
}
