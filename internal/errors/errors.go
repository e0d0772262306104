// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// ErrClaimConflict means another worker already moved the campaign out of an
// eligible status. Not a failure; callers skip the campaign and move on.
var ErrClaimConflict = errors.New("campaign already claimed")

// ConfigurationError covers a missing or malformed master key, or any other
// operator-side misconfiguration. Never retried.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

func NewConfigurationError(reason string) error {
	return &ConfigurationError{Reason: reason}
}

// IntegrityError means an envelope failed authentication: the ciphertext was
// tampered with or the wrong master key is in use. Hard failure, no plaintext
// fallback.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string {
	return "integrity error: " + e.Reason
}

func NewIntegrityError(reason string) error {
	return &IntegrityError{Reason: reason}
}

// NotConfiguredError means a tenant has no active sending credential.
type NotConfiguredError struct {
	TenantID string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("tenant %s has no active sending credential", e.TenantID)
}

func NewNotConfigured(tenantID string) error {
	return &NotConfiguredError{TenantID: tenantID}
}

// QuotaExceededError is transient; the campaign is rescheduled without
// consuming a retry attempt.
type QuotaExceededError struct {
	TenantID  string
	Requested int
	Remaining int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("tenant %s daily quota exceeded: requested %d, remaining %d",
		e.TenantID, e.Requested, e.Remaining)
}

// SendError is any failure reported by the external sender. Retried up to the
// attempt bound.
type SendError struct {
	HTTPStatus int
	Reason     string
}

func (e *SendError) Error() string {
	if e.HTTPStatus != 0 {
		return fmt.Sprintf("send failed (http %d): %s", e.HTTPStatus, e.Reason)
	}
	return "send failed: " + e.Reason
}

// CampaignNotFoundError is returned when a campaign ID does not exist.
type CampaignNotFoundError struct {
	CampaignID string
}

func (e *CampaignNotFoundError) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

func NewCampaignNotFound(id string) error {
	return &CampaignNotFoundError{CampaignID: id}
}

// TenantNotFoundError is returned when a tenant ID does not exist.
type TenantNotFoundError struct {
	TenantID string
}

func (e *TenantNotFoundError) Error() string {
	return fmt.Sprintf("tenant %s not found", e.TenantID)
}

func NewTenantNotFound(id string) error {
	return &TenantNotFoundError{TenantID: id}
}
