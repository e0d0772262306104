// internal/secrets/masterkey.go
//
// Master key loading. The key is a process-wide, read-only operational
// secret: either supplied directly through configuration (hex or base64,
// must decode to exactly 32 bytes) or fetched from a HashiCorp Vault KV-v2
// secret at boot. It is never persisted alongside tenant data.
package secrets

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
)

// LoadMasterKey resolves the master key from either a directly configured
// value or, when that is empty, a HashiCorp Vault secret.
func LoadMasterKey(ctx context.Context, direct, vaultPath, vaultField string) ([]byte, error) {
	if strings.TrimSpace(direct) != "" {
		return DecodeMasterKey(direct)
	}
	if vaultPath != "" {
		return MasterKeyFromVault(ctx, vaultPath, vaultField)
	}
	return nil, appErrors.NewConfigurationError("no master key configured")
}

// DecodeMasterKey accepts a 64-char hex string or standard base64 and
// requires the decoded form to be exactly 32 bytes.
func DecodeMasterKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, appErrors.NewConfigurationError("master key is not set")
	}

	if b, err := hex.DecodeString(s); err == nil {
		if err := checkKey(b); err != nil {
			return nil, err
		}
		return b, nil
	}
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		if err := checkKey(b); err != nil {
			return nil, err
		}
		return b, nil
	}
	return nil, appErrors.NewConfigurationError("master key is neither hex nor base64")
}

// MasterKeyFromVault reads field from a KV-v2 secret path ("mount/rel/path")
// and decodes it. VAULT_ADDR and VAULT_TOKEN come from the environment, the
// same way the rest of the Vault SDK expects them.
func MasterKeyFromVault(ctx context.Context, secretPath, field string) ([]byte, error) {
	if secretPath == "" || field == "" {
		return nil, appErrors.NewConfigurationError("vault secret path and field must be set")
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}

	cli, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}
	if tok := os.Getenv("VAULT_TOKEN"); tok != "" {
		cli.SetToken(tok)
	}

	mount, rel := splitMount(secretPath)
	sec, err := cli.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return nil, fmt.Errorf("vault get %s: %w", secretPath, err)
	}

	raw, ok := sec.Data[field]
	if !ok {
		return nil, appErrors.NewConfigurationError(
			fmt.Sprintf("field %q not found in vault secret %q", field, secretPath))
	}
	sval, ok := raw.(string)
	if !ok {
		return nil, appErrors.NewConfigurationError(
			fmt.Sprintf("vault value at %s#%s is not a string", secretPath, field))
	}

	return DecodeMasterKey(sval)
}

func splitMount(p string) (mount, rel string) {
	parts := strings.SplitN(p, "/", 2)
	mount = parts[0]
	if len(parts) == 2 {
		rel = parts[1]
	}
	return
}
