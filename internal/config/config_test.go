package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
server:
  port: 9090
  host: "0.0.0.0"
  public_base_url: "https://app.example.com"

database:
  url: "postgres://localhost/revwave"
  max_open_conns: 40

vault:
  encryption_key: "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"

google:
  client_id: "client-id"
  client_secret: "client-secret"
  token_url: "https://oauth.test/token"
  timeout_seconds: 10

smtp:
  host: "smtp.example.com"
  port: 2525
  from: "noreply@example.com"

dispatch:
  throttle_millis: 250
  queue_size: 5

sync:
  schedule: "*/15 * * * *"
  concurrency: 4

logging:
  level: debug
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	// Test server config
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, "0.0.0.0:9090", cfg.Server.Addr())
	assert.Equal(t, "https://app.example.com", cfg.Server.PublicBaseURL)

	// Test database config
	assert.Equal(t, "postgres://localhost/revwave", cfg.Database.URL)
	assert.Equal(t, 40, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)

	// Test google config
	assert.Equal(t, "client-id", cfg.Google.ClientID)
	assert.Equal(t, "https://oauth.test/token", cfg.Google.TokenURL)
	assert.Equal(t, 10*time.Second, cfg.Google.Timeout())
	assert.Equal(t, "https://mybusiness.googleapis.com", cfg.Google.ReviewsBaseURL)
	assert.Contains(t, cfg.Google.GmailScopes, GmailSendScope)

	// Test smtp config
	assert.Equal(t, "smtp.example.com", cfg.SMTP.Host)
	assert.Equal(t, 2525, cfg.SMTP.Port)

	// Test dispatch config
	assert.Equal(t, 250*time.Millisecond, cfg.Dispatch.Throttle())
	assert.Equal(t, 5, cfg.Dispatch.QueueSize)
	assert.Equal(t, time.Hour, cfg.Dispatch.LockTTL())

	// Test sync config
	assert.Equal(t, "*/15 * * * *", cfg.Sync.Schedule)
	assert.Equal(t, 4, cfg.Sync.Concurrency)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("{}"), 0644)
	require.NoError(t, err)

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicBaseURL)
	assert.Equal(t, 100*time.Millisecond, cfg.Dispatch.Throttle())
	assert.Equal(t, 100, cfg.Dispatch.QueueSize)
	assert.Equal(t, "https://oauth2.googleapis.com/token", cfg.Google.TokenURL)
	assert.Equal(t, 30, cfg.Google.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Google.MaxAttempts)
	assert.Equal(t, "0 */6 * * *", cfg.Sync.Schedule)
	assert.Equal(t, 1, cfg.Sync.Concurrency)
	assert.Equal(t, 587, cfg.SMTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	err := os.WriteFile(configPath, []byte("invalid: yaml: content: ["), 0644)
	require.NoError(t, err)

	_, err = Load(configPath)
	assert.Error(t, err)
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("ENCRYPTION_KEY", "env-key")
	t.Setenv("GOOGLE_CLIENT_ID", "env-client")
	t.Setenv("GOOGLE_CLIENT_SECRET", "env-secret")
	t.Setenv("SMTP_PORT", "465")
	t.Setenv("PUBLIC_BASE_URL", "https://public.example.com")
	t.Setenv("OAUTH_STATE_SECRET", "state-secret")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, "env-key", cfg.Vault.EncryptionKey)
	assert.Equal(t, "env-client", cfg.Google.ClientID)
	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "https://public.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, "state-secret", cfg.Server.StateSecret)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvBadPort(t *testing.T) {
	t.Setenv("SMTP_PORT", "not-a-port")
	_, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())

	cfg.Database.URL = "postgres://x"
	assert.Error(t, cfg.Validate())

	cfg.Vault.EncryptionKey = "k"
	assert.Error(t, cfg.Validate())

	cfg.Google.ClientID = "id"
	cfg.Google.ClientSecret = "secret"
	assert.NoError(t, cfg.Validate())
}
