package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// unsetenv clears key for the duration of the test.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}

func TestSelectPicksRemoteProvider(t *testing.T) {
	unsetenv(t, "VAULT_ADDR")
	t.Setenv("REMOTE_CONFIG_PROVIDER", "consul")

	require.True(t, RemoteEnabled())
	require.Equal(t, RemoteModule, Select())
}

func TestSelectDefaultsToLocalFile(t *testing.T) {
	unsetenv(t, "VAULT_ADDR")
	unsetenv(t, "REMOTE_CONFIG_PROVIDER")

	require.False(t, RemoteEnabled())
	require.Equal(t, Module, Select())
}

func TestSelectLayersVaultSecrets(t *testing.T) {
	unsetenv(t, "REMOTE_CONFIG_PROVIDER")
	t.Setenv("VAULT_ADDR", "http://127.0.0.1:8200")

	require.NotEqual(t, Module, Select())
}
