// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
	"github.com/mailkite/campaign-engine/internal/model"
	"github.com/mailkite/campaign-engine/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
}

func (c *CampaignController) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID    string           `json:"tenant_id"`
		OwnerUID    string           `json:"owner_uid"`
		Subject     string           `json:"subject"`
		HTMLContent string           `json:"html_content"`
		Recipients  model.Recipients `json:"recipients"`
		ScheduledAt *string          `json:"scheduled_at"`
		Enqueue     bool             `json:"enqueue"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.CreateCampaign(r.Context(), service.CreateCampaignInput{
		TenantID:    body.TenantID,
		OwnerUID:    body.OwnerUID,
		Subject:     body.Subject,
		HTMLContent: body.HTMLContent,
		Recipients:  body.Recipients,
		ScheduledAt: body.ScheduledAt,
		Enqueue:     body.Enqueue,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	tenantID := r.URL.Query().Get("tenant_id")
	status := r.URL.Query().Get("status")

	campaigns, pagination, err := c.CampaignService.ListCampaigns(r.Context(), page, pageSize, tenantID, status)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data":       campaigns,
		"pagination": pagination,
	})
}

func (c *CampaignController) GetCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := c.CampaignService.GetCampaign(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}

func (c *CampaignController) EnqueueCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := c.CampaignService.Enqueue(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"id":           campaign.ID,
		"status":       campaign.Status,
		"scheduled_at": campaign.ScheduledAt,
	})
}

// PersonalizedPreview renders campaign content for one recipient.
func (c *CampaignController) PersonalizedPreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		Recipient    model.Recipient `json:"recipient"`
		OverrideHTML *string         `json:"override_html"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	campaign, err := c.CampaignService.GetCampaign(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	content := campaign.HTMLContent
	if body.OverrideHTML != nil && *body.OverrideHTML != "" {
		content = *body.OverrideHTML
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"rendered_html":    service.RenderForRecipient(content, body.Recipient),
		"rendered_subject": service.RenderForRecipient(campaign.Subject, body.Recipient),
		"recipient":        body.Recipient,
	})
}

func writeError(w http.ResponseWriter, err error) {
	var campNF *appErrors.CampaignNotFoundError
	var tenNF *appErrors.TenantNotFoundError
	switch {
	case errors.As(err, &campNF), errors.As(err, &tenNF):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
