package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
	"github.com/mailkite/campaign-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(ctx context.Context, c *model.Campaign) error
	GetByID(ctx context.Context, id string) (*model.Campaign, error)
	List(ctx context.Context, offset, limit int, tenantID, status string) ([]*model.Campaign, int, error)

	// Dispatch pipeline
	Candidates(ctx context.Context, limit int, now time.Time) ([]*model.Campaign, error)
	Claim(ctx context.Context, id string, now time.Time) (int, error)
	Enqueue(ctx context.Context, id string, at time.Time) error
	MarkSent(ctx context.Context, id, messageID string, httpStatus int) error
	MarkRetry(ctx context.Context, id string, consumeAttempt bool, rescheduleAt time.Time, httpStatus int, lastError string) error
	MarkFailed(ctx context.Context, id string, consumeAttempt bool, httpStatus int, lastError string) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, tenant_id, owner_uid, subject, html_content, recipients, status,
       attempts, scheduled_at, idempotency_key, message_id, http_status, last_error,
       created_at, updated_at`

// ====================== CRUD ======================

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	if c.ScheduledAt.IsZero() {
		c.ScheduledAt = time.Now()
	}
	c.CreatedAt = time.Now()

	query := `
        INSERT INTO campaigns
            (id, tenant_id, owner_uid, subject, html_content, recipients, status,
             attempts, scheduled_at, idempotency_key, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)
    `
	_, err := r.DB.ExecContext(ctx, query,
		c.ID, c.TenantID, c.OwnerUID, c.Subject, c.HTMLContent, c.Recipients,
		string(c.Status), c.ScheduledAt, c.IdempotencyKey, c.CreatedAt)
	return err
}

func (r *CampaignRepository) GetByID(ctx context.Context, id string) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, appErrors.NewCampaignNotFound(id)
	}
	return c, err
}

func (r *CampaignRepository) List(ctx context.Context, offset, limit int, tenantID, status string) ([]*model.Campaign, int, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if tenantID != "" {
		query += fmt.Sprintf(" AND tenant_id=$%d", argPos)
		args = append(args, tenantID)
		argPos++
	}
	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	countArgs := []interface{}{}
	argPos = 1
	if tenantID != "" {
		countQuery += fmt.Sprintf(" AND tenant_id=$%d", argPos)
		countArgs = append(countArgs, tenantID)
		argPos++
	}
	if status != "" {
		countQuery += fmt.Sprintf(" AND status=$%d", argPos)
		countArgs = append(countArgs, status)
	}

	var total int
	if err := r.DB.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ====================== Dispatch pipeline ======================

// Candidates returns a bounded batch of campaigns eligible for dispatch:
// queued or retry, with scheduled_at in the past.
func (r *CampaignRepository) Candidates(ctx context.Context, limit int, now time.Time) ([]*model.Campaign, error) {
	query := `
        SELECT ` + campaignColumns + `
        FROM campaigns
        WHERE status IN ('queued', 'retry') AND scheduled_at <= $1
        ORDER BY scheduled_at ASC
        LIMIT $2
    `
	rows, err := r.DB.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// Claim is the atomic conditional transition into processing. The WHERE
// clause is the compare half of the compare-and-swap: with two concurrent
// workers exactly one UPDATE matches, the other gets ErrClaimConflict. The
// eligibility conditions are re-checked here rather than trusted from the
// candidate snapshot, so a row another worker just rescheduled cannot be
// claimed before its delay elapses. Returns the row's current attempt count;
// callers must base retry-bound decisions on it, not on their snapshot.
func (r *CampaignRepository) Claim(ctx context.Context, id string, now time.Time) (int, error) {
	query := `
        UPDATE campaigns
        SET status='processing', updated_at=NOW()
        WHERE id=$1 AND status IN ('queued', 'retry') AND scheduled_at <= $2
        RETURNING attempts
    `
	var attempts int
	err := r.DB.QueryRowContext(ctx, query, id, now).Scan(&attempts)
	if err == sql.ErrNoRows {
		return 0, appErrors.ErrClaimConflict
	}
	if err != nil {
		return 0, err
	}
	return attempts, nil
}

// Enqueue moves a draft into the queued state; same CAS shape as Claim so a
// double enqueue is harmless.
func (r *CampaignRepository) Enqueue(ctx context.Context, id string, at time.Time) error {
	query := `
        UPDATE campaigns
        SET status='queued', scheduled_at=$2, updated_at=NOW()
        WHERE id=$1 AND status='draft'
    `
	res, err := r.DB.ExecContext(ctx, query, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrClaimConflict
	}
	return nil
}

func (r *CampaignRepository) MarkSent(ctx context.Context, id, messageID string, httpStatus int) error {
	query := `
        UPDATE campaigns
        SET status='sent', attempts=attempts+1, message_id=$2, http_status=$3,
            last_error='', updated_at=NOW()
        WHERE id=$1 AND status='processing'
    `
	res, err := r.DB.ExecContext(ctx, query, id, messageID, httpStatus)
	if err != nil {
		return err
	}
	return requireOutcomeWrite(res)
}

// MarkRetry reschedules a campaign. consumeAttempt is false for quota
// deferrals, which must not burn one of the three attempts.
func (r *CampaignRepository) MarkRetry(ctx context.Context, id string, consumeAttempt bool, rescheduleAt time.Time, httpStatus int, lastError string) error {
	query := `
        UPDATE campaigns
        SET status='retry', attempts=attempts+$2, scheduled_at=$3, http_status=$4,
            last_error=$5, updated_at=NOW()
        WHERE id=$1 AND status='processing'
    `
	res, err := r.DB.ExecContext(ctx, query, id, attemptDelta(consumeAttempt), rescheduleAt, httpStatus, lastError)
	if err != nil {
		return err
	}
	return requireOutcomeWrite(res)
}

func (r *CampaignRepository) MarkFailed(ctx context.Context, id string, consumeAttempt bool, httpStatus int, lastError string) error {
	query := `
        UPDATE campaigns
        SET status='failed', attempts=attempts+$2, http_status=$3, last_error=$4, updated_at=NOW()
        WHERE id=$1 AND status='processing'
    `
	res, err := r.DB.ExecContext(ctx, query, id, attemptDelta(consumeAttempt), httpStatus, lastError)
	if err != nil {
		return err
	}
	return requireOutcomeWrite(res)
}

// requireOutcomeWrite surfaces an outcome update that matched no processing
// row, typically because an operator moved the row out from under the worker.
// Silently losing the write would leave the campaign's record wrong.
func requireOutcomeWrite(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrClaimConflict
	}
	return nil
}

func attemptDelta(consume bool) int {
	if consume {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCampaign(row rowScanner) (*model.Campaign, error) {
	var c model.Campaign
	var status string
	err := row.Scan(
		&c.ID, &c.TenantID, &c.OwnerUID, &c.Subject, &c.HTMLContent, &c.Recipients,
		&status, &c.Attempts, &c.ScheduledAt, &c.IdempotencyKey, &c.MessageID,
		&c.HTTPStatus, &c.LastError, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Status = model.CampaignStatus(status)
	return &c, nil
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
