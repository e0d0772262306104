// internal/secrets/vault.go
//
// The credential vault: stores tenant sending credentials under envelope
// encryption and hands decrypted values to the dispatch worker on demand.
// Active-key resolution goes through the tenant's active_key_id pointer so
// rotation is a single pointer swap.
package secrets

import (
	"context"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
	"github.com/mailkite/campaign-engine/internal/model"
)

// SecretRepository defines the persistence the vault needs.
type SecretRepository interface {
	Get(ctx context.Context, tenantID, keyID string) (*model.TenantSecret, error)
	Upsert(ctx context.Context, sec *model.TenantSecret) error
	ListByTenant(ctx context.Context, tenantID string) ([]*model.TenantSecret, error)
}

// TenantReader resolves tenants and their active key pointer.
type TenantReader interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	SetActiveKey(ctx context.Context, tenantID, keyID string) error
}

// Credential is a decrypted sending credential. Never persisted.
type Credential struct {
	KeyID     string
	APIKey    string
	SMTPLogin string
}

type Vault struct {
	masterKey []byte
	Secrets   SecretRepository
	Tenants   TenantReader
	Log       *zap.SugaredLogger
}

// NewVault validates the master key up front so a misconfigured process
// fails at boot instead of at first send.
func NewVault(masterKey []byte, secrets SecretRepository, tenants TenantReader, log *zap.SugaredLogger) (*Vault, error) {
	if err := checkKey(masterKey); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.S()
	}
	return &Vault{masterKey: masterKey, Secrets: secrets, Tenants: tenants, Log: log}, nil
}

// SaveKey encrypts apiKey and stores it as keyID for the tenant. New writes
// always take the envelope path; there is no way to store plaintext here.
func (v *Vault) SaveKey(ctx context.Context, tenantID, keyID, apiKey, smtpLogin string, activate bool) error {
	env, err := Encrypt(apiKey, v.masterKey)
	if err != nil {
		return err
	}
	encoded, err := env.Encode()
	if err != nil {
		return err
	}

	now := time.Now()
	sec := &model.TenantSecret{
		TenantID:  tenantID,
		KeyID:     keyID,
		Value:     encoded,
		Encrypted: true,
		SMTPLogin: smtpLogin,
		CreatedAt: now,
		UpdatedAt: &now,
	}
	if err := v.Secrets.Upsert(ctx, sec); err != nil {
		return err
	}

	if activate {
		return v.Tenants.SetActiveKey(ctx, tenantID, keyID)
	}
	return nil
}

// Activate swaps the tenant's active key pointer after verifying the target
// key exists.
func (v *Vault) Activate(ctx context.Context, tenantID, keyID string) error {
	sec, err := v.Secrets.Get(ctx, tenantID, keyID)
	if err != nil {
		return err
	}
	if sec == nil {
		return appErrors.NewNotConfigured(tenantID)
	}
	return v.Tenants.SetActiveKey(ctx, tenantID, keyID)
}

// ResolveActive returns the decrypted credential the tenant currently sends
// with. Fails with NotConfiguredError when no active key is designated or
// the referenced record is missing.
func (v *Vault) ResolveActive(ctx context.Context, tenantID string) (*Credential, error) {
	tenant, err := v.Tenants.GetByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.ActiveKeyID == nil || *tenant.ActiveKeyID == "" {
		return nil, appErrors.NewNotConfigured(tenantID)
	}

	sec, err := v.Secrets.Get(ctx, tenantID, *tenant.ActiveKeyID)
	if err != nil {
		return nil, err
	}
	if sec == nil {
		return nil, appErrors.NewNotConfigured(tenantID)
	}

	plain, stale, err := v.decryptValue(sec)
	if err != nil {
		return nil, err
	}
	if stale {
		v.Log.Warnw("tenant credential stored in legacy format, run migrate",
			"tenant", tenantID, "key", sec.KeyID)
	}

	return &Credential{KeyID: sec.KeyID, APIKey: plain, SMTPLogin: sec.SMTPLogin}, nil
}

// Migrate re-encrypts every legacy-format or plaintext credential of a
// tenant as a versioned envelope. Returns the number of records rewritten.
func (v *Vault) Migrate(ctx context.Context, tenantID string) (int, error) {
	secs, err := v.Secrets.ListByTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for _, sec := range secs {
		if sec.Value == "" {
			continue
		}
		if _, ok := ParseEnvelope(sec.Value); ok && sec.Encrypted {
			continue
		}

		plain, _, err := v.decryptValue(sec)
		if err != nil {
			return migrated, err
		}

		env, err := Encrypt(plain, v.masterKey)
		if err != nil {
			return migrated, err
		}
		encoded, err := env.Encode()
		if err != nil {
			return migrated, err
		}

		now := time.Now()
		sec.Value = encoded
		sec.Encrypted = true
		sec.UpdatedAt = &now
		if err := v.Secrets.Upsert(ctx, sec); err != nil {
			return migrated, err
		}
		migrated++
		v.Log.Infow("credential re-encrypted", "tenant", tenantID, "key", sec.KeyID)
	}
	return migrated, nil
}

// decryptValue dispatches on the stored format: versioned envelope first,
// then the historical iv:ciphertext pair, then the plaintext fallback for
// un-migrated tenants. The second return value flags records that should be
// rewritten as envelopes.
func (v *Vault) decryptValue(sec *model.TenantSecret) (string, bool, error) {
	if !sec.Encrypted {
		// Plaintext fallback, legacy tenants only. New code never writes this.
		return sec.Value, true, nil
	}

	if env, ok := ParseEnvelope(sec.Value); ok {
		plain, err := env.Decrypt(v.masterKey)
		return plain, false, err
	}

	if looksLegacy(sec.Value) {
		plain, err := decryptLegacy(sec.Value, v.masterKey)
		return plain, true, err
	}

	return "", false, appErrors.NewIntegrityError("stored value is not a recognized envelope format")
}
