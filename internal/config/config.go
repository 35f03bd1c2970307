package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application. It is built once at
// process start and passed by pointer into constructors.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Vault    VaultConfig    `yaml:"vault"`
	Google   GoogleConfig   `yaml:"google"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Dispatch DispatchConfig `yaml:"dispatch"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	PublicBaseURL  string   `yaml:"public_base_url"` // used for unsubscribe links
	AllowedOrigins []string `yaml:"allowed_origins"`
	StateSecret    string   `yaml:"state_secret"` // signs OAuth state; falls back to the vault key
}

// Addr returns host:port for http.Server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	URL                    string `yaml:"url"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	MigrationsPath         string `yaml:"migrations_path"`
}

// ConnMaxLifetime returns the configured lifetime as a duration
func (c DatabaseConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(c.ConnMaxLifetimeMinutes) * time.Minute
}

// RedisConfig holds the optional Redis connection used for dispatch locks.
// When URL is empty, locks fall back to Postgres advisory locks.
type RedisConfig struct {
	URL string `yaml:"url"`
}

// VaultConfig holds the master encryption key (hex or base64, 32 bytes).
type VaultConfig struct {
	EncryptionKey string `yaml:"encryption_key"`
}

// GoogleConfig holds OAuth client credentials and provider endpoints for both
// the business-data provider and the email provider.
type GoogleConfig struct {
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	RedirectURL    string   `yaml:"redirect_url"`
	AuthURL        string   `yaml:"auth_url"`
	TokenURL       string   `yaml:"token_url"`
	UserInfoURL    string   `yaml:"userinfo_url"`
	BusinessScopes []string `yaml:"business_scopes"`
	GmailScopes    []string `yaml:"gmail_scopes"`

	AccountsBaseURL string `yaml:"accounts_base_url"`
	InfoBaseURL     string `yaml:"info_base_url"`
	ReviewsBaseURL  string `yaml:"reviews_base_url"`
	GmailBaseURL    string `yaml:"gmail_base_url"`

	TimeoutSeconds int `yaml:"timeout_seconds"`
	MaxAttempts    int `yaml:"max_attempts"`
}

// Timeout returns the per-attempt HTTP timeout as a duration
func (c GoogleConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GmailSendScope is the scope that enables the per-tenant OAuth channel.
const GmailSendScope = "https://www.googleapis.com/auth/gmail.send"

// SMTPConfig holds the shared-credential email channel.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
}

// DispatchConfig holds campaign dispatch pipeline settings.
type DispatchConfig struct {
	ThrottleMillis int `yaml:"throttle_millis"`
	QueueSize      int `yaml:"queue_size"`
	LockTTLMinutes int `yaml:"lock_ttl_minutes"`
}

// Throttle returns the pause between recipients.
func (c DispatchConfig) Throttle() time.Duration {
	return time.Duration(c.ThrottleMillis) * time.Millisecond
}

// LockTTL returns the TTL of the per-campaign dispatch lock.
func (c DispatchConfig) LockTTL() time.Duration {
	return time.Duration(c.LockTTLMinutes) * time.Minute
}

// SyncConfig holds reconciler settings.
type SyncConfig struct {
	Schedule    string `yaml:"schedule"` // cron expression for periodic sync
	Concurrency int    `yaml:"concurrency"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	RedactPII *bool  `yaml:"redact_pii"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied. Used when no
// config file is present.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 20
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetimeMinutes == 0 {
		cfg.Database.ConnMaxLifetimeMinutes = 5
	}
	if cfg.Database.MigrationsPath == "" {
		cfg.Database.MigrationsPath = "migrations"
	}
	if cfg.Google.AuthURL == "" {
		cfg.Google.AuthURL = "https://accounts.google.com/o/oauth2/auth"
	}
	if cfg.Google.TokenURL == "" {
		cfg.Google.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if cfg.Google.UserInfoURL == "" {
		cfg.Google.UserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	}
	if len(cfg.Google.BusinessScopes) == 0 {
		cfg.Google.BusinessScopes = []string{
			"https://www.googleapis.com/auth/business.manage",
			"https://www.googleapis.com/auth/userinfo.email",
		}
	}
	if len(cfg.Google.GmailScopes) == 0 {
		cfg.Google.GmailScopes = []string{
			GmailSendScope,
			"https://www.googleapis.com/auth/userinfo.email",
		}
	}
	if cfg.Google.AccountsBaseURL == "" {
		cfg.Google.AccountsBaseURL = "https://mybusinessaccountmanagement.googleapis.com"
	}
	if cfg.Google.InfoBaseURL == "" {
		cfg.Google.InfoBaseURL = "https://mybusinessbusinessinformation.googleapis.com"
	}
	if cfg.Google.ReviewsBaseURL == "" {
		cfg.Google.ReviewsBaseURL = "https://mybusiness.googleapis.com"
	}
	if cfg.Google.GmailBaseURL == "" {
		cfg.Google.GmailBaseURL = "https://gmail.googleapis.com"
	}
	if cfg.Google.TimeoutSeconds == 0 {
		cfg.Google.TimeoutSeconds = 30
	}
	if cfg.Google.MaxAttempts == 0 {
		cfg.Google.MaxAttempts = 3
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	if cfg.Dispatch.ThrottleMillis == 0 {
		cfg.Dispatch.ThrottleMillis = 100
	}
	if cfg.Dispatch.QueueSize == 0 {
		cfg.Dispatch.QueueSize = 100
	}
	if cfg.Dispatch.LockTTLMinutes == 0 {
		cfg.Dispatch.LockTTLMinutes = 60
	}
	if cfg.Sync.Schedule == "" {
		cfg.Sync.Schedule = "0 */6 * * *"
	}
	if cfg.Sync.Concurrency == 0 {
		cfg.Sync.Concurrency = 1
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// LoadFromEnv loads configuration with environment variable overrides.
// It automatically loads a .env file (if present) before reading env vars,
// so secrets can live in .env locally and in real env vars in production.
// A missing config file is not an error; defaults plus env are used.
func LoadFromEnv(path string) (*Config, error) {
	// Load .env file if it exists (no error if missing)
	_ = godotenv.Load()

	cfg, err := Load(path)
	if os.IsNotExist(err) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("ENCRYPTION_KEY"); v != "" {
		cfg.Vault.EncryptionKey = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_ID"); v != "" {
		cfg.Google.ClientID = v
	}
	if v := os.Getenv("GOOGLE_CLIENT_SECRET"); v != "" {
		cfg.Google.ClientSecret = v
	}
	if v := os.Getenv("GOOGLE_REDIRECT_URL"); v != "" {
		cfg.Google.RedirectURL = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		cfg.SMTP.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SMTP_PORT %q: %w", v, err)
		}
		cfg.SMTP.Port = port
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		cfg.SMTP.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		cfg.SMTP.Password = v
	}
	if v := os.Getenv("SMTP_FROM"); v != "" {
		cfg.SMTP.From = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.Server.PublicBaseURL = v
	}
	if v := os.Getenv("OAUTH_STATE_SECRET"); v != "" {
		cfg.Server.StateSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return cfg, nil
}

// Validate checks the settings every binary needs. The vault key itself is
// validated by vault.NewFromEncodedKey.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("database url is required (DATABASE_URL)")
	}
	if c.Vault.EncryptionKey == "" {
		return fmt.Errorf("encryption key is required (ENCRYPTION_KEY)")
	}
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		return fmt.Errorf("google client id and secret are required")
	}
	return nil
}
