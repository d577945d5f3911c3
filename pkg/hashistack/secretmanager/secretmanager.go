package secretmanager

import (
	"context"
	"fmt"
	"os"
	"time"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

var Module = fx.Module("secretmanager", fx.Provide(ProvideVault, NewStore))

// Enabled reports whether a Vault address is configured for this process.
func Enabled() bool {
	_, ok := os.LookupEnv("VAULT_ADDR")
	return ok
}

func ProvideVault() (*vault.Client, error) {
	return vault.New(
		vault.WithEnvironment(),
	)
}

// Store reads the ledger's credentials from a KV v2 mount. The mount
// defaults to "secret" and can be moved with VAULT_KV_MOUNT.
type Store struct {
	client *vault.Client
	mount  string
}

func NewStore(client *vault.Client) *Store {
	mount := os.Getenv("VAULT_KV_MOUNT")
	if mount == "" {
		mount = "secret"
	}
	return &Store{client: client, mount: mount}
}

// Read returns the string values stored at path. Non string values are
// skipped since every ledger credential is a plain string.
func (s *Store) Read(ctx context.Context, path string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	resp, err := s.client.Secrets.KvV2Read(ctx, path, vault.WithMountPath(s.mount))
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", s.mount, path, err)
	}
	return stringValues(resp.Data.Data), nil
}

func stringValues(data map[string]interface{}) map[string]string {
	out := make(map[string]string, len(data))
	for k, v := range data {
		if s, ok := v.(string); ok && s != "" {
			out[k] = s
		}
	}
	return out
}
