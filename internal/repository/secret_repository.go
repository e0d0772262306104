package repository

import (
	"context"
	"database/sql"

	"github.com/mailkite/campaign-engine/internal/model"
)

// SecretRepository persists tenant_secrets rows. Decryption never happens
// here; the secrets package owns the envelope format.
type SecretRepository struct {
	DB *sql.DB
}

func (r *SecretRepository) Get(ctx context.Context, tenantID, keyID string) (*model.TenantSecret, error) {
	query := `
        SELECT tenant_id, key_id, value, encrypted, smtp_login, created_at, updated_at
        FROM tenant_secrets WHERE tenant_id=$1 AND key_id=$2
    `
	var s model.TenantSecret
	err := r.DB.QueryRowContext(ctx, query, tenantID, keyID).Scan(
		&s.TenantID, &s.KeyID, &s.Value, &s.Encrypted, &s.SMTPLogin,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *SecretRepository) Upsert(ctx context.Context, sec *model.TenantSecret) error {
	query := `
        INSERT INTO tenant_secrets (tenant_id, key_id, value, encrypted, smtp_login, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        ON CONFLICT (tenant_id, key_id) DO UPDATE
        SET value=EXCLUDED.value, encrypted=EXCLUDED.encrypted,
            smtp_login=EXCLUDED.smtp_login, updated_at=NOW()
    `
	_, err := r.DB.ExecContext(ctx, query, sec.TenantID, sec.KeyID, sec.Value, sec.Encrypted, sec.SMTPLogin)
	return err
}

func (r *SecretRepository) ListByTenant(ctx context.Context, tenantID string) ([]*model.TenantSecret, error) {
	query := `
        SELECT tenant_id, key_id, value, encrypted, smtp_login, created_at, updated_at
        FROM tenant_secrets WHERE tenant_id=$1 ORDER BY key_id
    `
	rows, err := r.DB.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	secrets := []*model.TenantSecret{}
	for rows.Next() {
		var s model.TenantSecret
		if err := rows.Scan(&s.TenantID, &s.KeyID, &s.Value, &s.Encrypted, &s.SMTPLogin,
			&s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		secrets = append(secrets, &s)
	}
	return secrets, rows.Err()
}
