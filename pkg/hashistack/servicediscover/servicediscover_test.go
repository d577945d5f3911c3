package servicediscover

import (
	"testing"

	"engagement-ledger/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestNewRegistryDisabledWithoutAddress(t *testing.T) {
	r, err := NewRegistry(&config.Config{})
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestNewRegistryBuildsReadinessCheck(t *testing.T) {
	cfg := &config.Config{AppName: "engagement-ledger"}
	cfg.Consul.Addr = "127.0.0.1:8500"
	cfg.Consul.ServiceHost = "ledger-1"
	cfg.Server.Addr = "8080"

	r, err := NewRegistry(cfg)
	require.NoError(t, err)

	reg := r.(*ConsulRegistry)
	require.Equal(t, "engagement-ledger-ledger-1", reg.serviceID)
	require.Equal(t, 8080, reg.service.Port)
	require.Equal(t, "http://ledger-1:8080/readyz", reg.service.Check.HTTP)
}

func TestNewRegistryRejectsNonNumericPort(t *testing.T) {
	cfg := &config.Config{}
	cfg.Consul.Addr = "127.0.0.1:8500"
	cfg.Server.Addr = "localhost:8080"

	_, err := NewRegistry(cfg)
	require.Error(t, err)
}
