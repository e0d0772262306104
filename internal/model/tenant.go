// internal/model/tenant.go
package model

import "time"

type Tenant struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Plan        string     `db:"plan" json:"plan"`
	ActiveKeyID *string    `db:"active_key_id" json:"active_key_id,omitempty"`
	SenderEmail string     `db:"sender_email" json:"sender_email"`
	SenderName  string     `db:"sender_name" json:"sender_name"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// TenantSecret is one stored sending credential. A tenant may hold several
// named keys; the tenant's active_key_id points at the one in use.
//
// When Encrypted is true, Value holds either the versioned JSON envelope or
// the historical iv:ciphertext hex pair. When Encrypted is false, Value is a
// plaintext credential left over from before encryption at rest was rolled
// out; new writes always go through the envelope path.
type TenantSecret struct {
	TenantID  string     `db:"tenant_id" json:"tenant_id"`
	KeyID     string     `db:"key_id" json:"key_id"`
	Value     string     `db:"value" json:"-"`
	Encrypted bool       `db:"encrypted" json:"encrypted"`
	SMTPLogin string     `db:"smtp_login" json:"smtp_login,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
