// internal/handler/tenant_handler.go
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
	"github.com/mailkite/campaign-engine/internal/secrets"
	"github.com/mailkite/campaign-engine/internal/service"
)

// TenantHandler serves the credential-management endpoints. The API key
// itself is write-only: it goes into the vault and never comes back out
// through HTTP.
type TenantHandler struct {
	Vault           *secrets.Vault
	CampaignService *service.CampaignService
}

// SaveKey stores a sending credential for a tenant, always envelope
// encrypted.
func (h *TenantHandler) SaveKey(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	var body struct {
		KeyID     string `json:"key_id"`
		APIKey    string `json:"api_key"`
		SMTPLogin string `json:"smtp_login"`
		Activate  bool   `json:"activate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if body.APIKey == "" {
		http.Error(w, "api_key is required", http.StatusBadRequest)
		return
	}
	if body.KeyID == "" {
		body.KeyID = uuid.NewString()
	}

	if err := h.Vault.SaveKey(r.Context(), tenantID, body.KeyID, body.APIKey, body.SMTPLogin, body.Activate); err != nil {
		writeVaultError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tenant_id": tenantID,
		"key_id":    body.KeyID,
		"active":    body.Activate,
	})
}

// ActivateKey swaps the tenant's active key pointer.
func (h *TenantHandler) ActivateKey(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")
	keyID := chi.URLParam(r, "keyID")

	if err := h.Vault.Activate(r.Context(), tenantID, keyID); err != nil {
		writeVaultError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tenant_id":     tenantID,
		"active_key_id": keyID,
	})
}

// MigrateKeys re-encrypts every legacy-format credential of the tenant as a
// versioned envelope.
func (h *TenantHandler) MigrateKeys(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	migrated, err := h.Vault.Migrate(r.Context(), tenantID)
	if err != nil {
		writeVaultError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tenant_id": tenantID,
		"migrated":  migrated,
	})
}

// Quota reports today's sending allowance for the tenant.
func (h *TenantHandler) Quota(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")

	allow, planID, err := h.CampaignService.QuotaPeek(r.Context(), tenantID)
	if err != nil {
		writeVaultError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"tenant_id": tenantID,
		"plan":      planID,
		"allowance": allow,
	})
}

func writeVaultError(w http.ResponseWriter, err error) {
	var tenNF *appErrors.TenantNotFoundError
	var notConf *appErrors.NotConfiguredError
	var confErr *appErrors.ConfigurationError
	switch {
	case errors.As(err, &tenNF):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &notConf):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &confErr):
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
