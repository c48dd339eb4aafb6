package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse(`{}`)
	require.NoError(t, err)
	require.Equal(t, "./data", cfg.DataDir)
	require.Equal(t, defaultAPIPort, cfg.APIPort)
	require.Equal(t, "badger", cfg.StorageBackend)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse(`{"data-dir":"/var/lib/storage","api-port":9090,"storage-quota":1000000}`)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/storage", cfg.DataDir)
	require.Equal(t, 9090, cfg.APIPort)
	require.Equal(t, uint64(1000000), cfg.StorageQuota)
	require.Equal(t, defaultLogLevel, cfg.LogLevel)
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse(`{"not-a-real-field":true}`)
	require.Error(t, err)
}

func TestParseRejectsNegativeThreadCount(t *testing.T) {
	_, err := Parse(`{"num-threads":-1}`)
	require.Error(t, err)
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	_, err := Parse(`{`)
	require.Error(t, err)
}
