package coach

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	require.Equal(t, 3, cfg.Retry.MaxRetries)
	require.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	require.Equal(t, 30*time.Second, cfg.PingInterval)
	require.Error(t, cfg.Validate(), "URL is required")
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "ws://localhost:8080/chat"
	require.NoError(t, cfg.Validate())

	cfg.URL = "ftp://example.com"
	require.Equal(t, ErrorInvalidConfig, CodeOf(cfg.Validate()))

	cfg.URL = "wss://example.com"
	cfg.Retry.MaxRetries = -1
	require.Equal(t, ErrorInvalidConfig, CodeOf(cfg.Validate()))
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "coach.yaml")
	err := os.WriteFile(path, []byte(`
url: wss://coach.example.com/stream
conversation_id: conv-1
read_timeout: 45s
retry:
  max_retries: 5
  delays: [100ms, 1s]
signal_types: [plan_updated]
strict_types: true
`), 0o600)
	require.NoError(t, err)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "wss://coach.example.com/stream", cfg.URL)
	require.Equal(t, "conv-1", cfg.ConversationID)
	require.Equal(t, 45*time.Second, cfg.ReadTimeout)
	require.Equal(t, 10*time.Second, cfg.HandshakeTimeout)
	require.Equal(t, 5, cfg.Retry.MaxRetries)
	require.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	require.Equal(t, []time.Duration{100 * time.Millisecond, time.Second}, cfg.Retry.Delays)
	require.Equal(t, []string{"plan_updated"}, cfg.SignalTypes)
	require.True(t, cfg.StrictTypes)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("COACH_URL", "ws://env.example.com")
	t.Setenv("COACH_RETRY_MAX_RETRIES", "1")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	require.Equal(t, "ws://env.example.com", cfg.URL)
	require.Equal(t, 1, cfg.Retry.MaxRetries)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestRetryConfigOptions(t *testing.T) {
	rc := RetryConfig{MaxRetries: 2, BaseDelay: time.Second, Delays: []time.Duration{time.Millisecond}}
	require.Len(t, rc.Options(), 3)
	require.Len(t, RetryConfig{}.Options(), 2)
}
