package repository

import (
	"context"
	"database/sql"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
	"github.com/mailkite/campaign-engine/internal/model"
)

type TenantRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Tenant, error)
	SetActiveKey(ctx context.Context, tenantID, keyID string) error
}

type TenantRepository struct {
	DB *sql.DB
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*model.Tenant, error) {
	query := `
        SELECT id, name, plan, active_key_id, sender_email, sender_name, created_at, updated_at
        FROM tenants WHERE id=$1
    `
	var t model.Tenant
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.Name, &t.Plan, &t.ActiveKeyID, &t.SenderEmail, &t.SenderName,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewTenantNotFound(id)
		}
		return nil, err
	}
	return &t, nil
}

// SetActiveKey is the rotation pointer swap.
func (r *TenantRepository) SetActiveKey(ctx context.Context, tenantID, keyID string) error {
	query := `UPDATE tenants SET active_key_id=$2, updated_at=NOW() WHERE id=$1`
	res, err := r.DB.ExecContext(ctx, query, tenantID, keyID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.NewTenantNotFound(tenantID)
	}
	return nil
}

var _ TenantRepositoryInterface = (*TenantRepository)(nil)
