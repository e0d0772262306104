// internal/model/campaign.go
package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type CampaignStatus string

const (
	StatusDraft      CampaignStatus = "draft"
	StatusQueued     CampaignStatus = "queued"
	StatusProcessing CampaignStatus = "processing"
	StatusSent       CampaignStatus = "sent"
	StatusRetry      CampaignStatus = "retry"
	StatusFailed     CampaignStatus = "failed"
)

// Terminal reports whether a campaign in this status will never be
// picked up by the dispatch worker again.
func (s CampaignStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Recipient is one addressable target of a campaign.
type Recipient struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// Recipients is stored as a jsonb column.
type Recipients []Recipient

func (r Recipients) Value() (driver.Value, error) {
	if r == nil {
		return "[]", nil
	}
	b, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (r *Recipients) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*r = nil
		return nil
	case []byte:
		return json.Unmarshal(v, r)
	case string:
		return json.Unmarshal([]byte(v), r)
	default:
		return fmt.Errorf("recipients: cannot scan %T", src)
	}
}

type Campaign struct {
	ID             string         `db:"id" json:"id"`
	TenantID       string         `db:"tenant_id" json:"tenant_id"`
	OwnerUID       string         `db:"owner_uid" json:"owner_uid"`
	Subject        string         `db:"subject" json:"subject"`
	HTMLContent    string         `db:"html_content" json:"html_content"`
	Recipients     Recipients     `db:"recipients" json:"recipients"`
	Status         CampaignStatus `db:"status" json:"status"`
	Attempts       int            `db:"attempts" json:"attempts"`
	ScheduledAt    time.Time      `db:"scheduled_at" json:"scheduled_at"`
	IdempotencyKey string         `db:"idempotency_key" json:"idempotency_key,omitempty"`
	MessageID      string         `db:"message_id" json:"message_id,omitempty"`
	HTTPStatus     int            `db:"http_status" json:"http_status,omitempty"`
	LastError      string         `db:"last_error" json:"last_error,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
