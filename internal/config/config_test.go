package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "993", cfg.Mailbox.Port)
	assert.True(t, cfg.Mailbox.TLS)
	assert.Equal(t, 30*time.Second, cfg.Mailbox.ConnectTimeout)

	assert.Equal(t, 5*time.Minute, cfg.Poll.Interval)
	assert.Equal(t, 7, cfg.Poll.FallbackWindowDays)
	assert.Equal(t, 3, cfg.Poll.MaxConnectRetries)
	assert.Equal(t, 5*time.Second, cfg.Poll.RetryDelay)
	assert.Equal(t, 10, cfg.Poll.FetchLimit)

	assert.Equal(t, 50, cfg.Extract.ContextWindow)

	assert.Equal(t, "ordertrack.db", cfg.DatabasePath)
	assert.Equal(t, "uploads/invoices", cfg.AttachmentDir)
	assert.Equal(t, ":8090", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordertrack.yaml")
	content := `
mailbox:
  host: imap.example.com
  username: orders@example.com
  tls: false
poll:
  interval: 90s
  fetch_limit: 25
log_level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "imap.example.com", cfg.Mailbox.Host)
	assert.Equal(t, "orders@example.com", cfg.Mailbox.Username)
	assert.False(t, cfg.Mailbox.TLS)
	assert.Equal(t, 90*time.Second, cfg.Poll.Interval)
	assert.Equal(t, 25, cfg.Poll.FetchLimit)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Unset keys keep their defaults.
	assert.Equal(t, "993", cfg.Mailbox.Port)
	assert.Equal(t, 7, cfg.Poll.FallbackWindowDays)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ORDERTRACK_MAILBOX_HOST", "imap.internal.example.com")
	t.Setenv("ORDERTRACK_LOG_LEVEL", "warn")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "imap.internal.example.com", cfg.Mailbox.Host)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadLegacyEnvNames(t *testing.T) {
	t.Setenv("IMAP_HOST", "legacy.example.com")
	t.Setenv("IMAP_USER", "legacy@example.com")
	t.Setenv("EMAIL_CHECK_INTERVAL", "2m")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "legacy.example.com", cfg.Mailbox.Host)
	assert.Equal(t, "legacy@example.com", cfg.Mailbox.Username)
	assert.Equal(t, 2*time.Minute, cfg.Poll.Interval)
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ordertrack.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mailbox: [not a map"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
