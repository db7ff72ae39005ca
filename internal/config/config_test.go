package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DHAN_API_CREDENTIALS", "c2VjcmV0LW9uZQ==, c2VjcmV0LXR3bw==")
	t.Setenv("CREDENTIAL_ENCRYPTION_KEY", "passphrase")
	t.Setenv("TRADE_SERVICE_URL", "http://trades.internal")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "development", cfg.Env)
	require.Equal(t, "dhan", cfg.Vendor)
	require.Equal(t, "0.0.0.0:8080", cfg.HTTP.Addr())
	require.True(t, cfg.Dhan.Active)
	require.Equal(t, []string{"c2VjcmV0LW9uZQ==", "c2VjcmV0LXR3bw=="}, cfg.Dhan.APICredentials)
	require.Equal(t, 1, cfg.Dhan.AllowedConnections)
	require.Equal(t, 30, cfg.Dhan.HeartbeatSeconds)
	require.Equal(t, "http://trades.internal", cfg.TradeService.BaseURL)
	require.Equal(t, 1024, cfg.Matching.QueueSize)
	require.Empty(t, cfg.RabbitMQ.URL)
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DHAN_ACTIVE", "false")
	t.Setenv("DHAN_ALLOWED_CONNECTIONS", "5")
	t.Setenv("MATCHING_QUEUE_SIZE", "64")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.HTTP.Port)
	require.False(t, cfg.Dhan.Active)
	require.Equal(t, 5, cfg.Dhan.AllowedConnections)
	require.Equal(t, 64, cfg.Matching.QueueSize)
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TRADE_SERVICE_URL", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsBadIntegers(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("HTTP_PORT", "not-a-port")

	_, err := Load()
	require.Error(t, err)
}
