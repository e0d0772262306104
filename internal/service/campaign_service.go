// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mailkite/campaign-engine/internal/model"
	"github.com/mailkite/campaign-engine/internal/quota"
	"github.com/mailkite/campaign-engine/internal/queue"
	"github.com/mailkite/campaign-engine/internal/repository"
)

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	TenantRepo   repository.TenantRepositoryInterface
	Quota        *quota.Enforcer
	Plans        quota.PlanTable
	Queue        queue.Queue // optional; nil skips the broker notification
	Log          *zap.SugaredLogger
}

type CreateCampaignInput struct {
	TenantID    string
	OwnerUID    string
	Subject     string
	HTMLContent string
	Recipients  model.Recipients
	ScheduledAt *string // RFC3339; empty means now
	Enqueue     bool    // create directly in queued instead of draft
}

// CreateCampaign validates and stores a new campaign. An idempotency key is
// assigned at creation so a retried send attempt can never double-deliver.
func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(in.Subject) == "" {
		return nil, fmt.Errorf("subject cannot be empty")
	}
	if strings.TrimSpace(in.HTMLContent) == "" {
		return nil, fmt.Errorf("html content cannot be empty")
	}
	if len(in.Recipients) == 0 {
		return nil, fmt.Errorf("at least one recipient is required")
	}
	if _, err := s.TenantRepo.GetByID(ctx, in.TenantID); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		ID:             uuid.NewString(),
		TenantID:       in.TenantID,
		OwnerUID:       in.OwnerUID,
		Subject:        in.Subject,
		HTMLContent:    in.HTMLContent,
		Recipients:     in.Recipients,
		Status:         model.StatusDraft,
		IdempotencyKey: uuid.NewString(),
	}
	if in.Enqueue {
		c.Status = model.StatusQueued
	}

	if in.ScheduledAt != nil && *in.ScheduledAt != "" {
		t, err := time.Parse(time.RFC3339, *in.ScheduledAt)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduled_at: %w", err)
		}
		c.ScheduledAt = t
	}

	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	if in.Enqueue {
		s.notify(ctx, c.ID)
	}
	return c, nil
}

// Enqueue moves a draft into the queued state and nudges the worker over the
// broker. The broker publish is best-effort; the poll loop is the fallback.
func (s *CampaignService) Enqueue(ctx context.Context, id string) (*model.Campaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	at := c.ScheduledAt
	if at.Before(time.Now()) {
		at = time.Now()
	}
	if err := s.CampaignRepo.Enqueue(ctx, id, at); err != nil {
		return nil, fmt.Errorf("campaign cannot be enqueued in status %q", c.Status)
	}

	s.notify(ctx, id)
	return s.CampaignRepo.GetByID(ctx, id)
}

func (s *CampaignService) notify(ctx context.Context, id string) {
	if s.Queue == nil {
		return
	}
	if err := s.Queue.Publish(ctx, id); err != nil {
		s.Log.Warnw("dispatch notification failed, poller will pick it up",
			"campaign", id, "err", err)
	}
}

// ListCampaigns fetches campaigns with pagination.
func (s *CampaignService) ListCampaigns(ctx context.Context, page, pageSize int, tenantID, status string) ([]model.Campaign, map[string]int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	ptrs, total, err := s.CampaignRepo.List(ctx, offset, pageSize, tenantID, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}

	totalPages := (total + pageSize - 1) / pageSize
	pagination := map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": totalPages,
	}

	return campaigns, pagination, nil
}

func (s *CampaignService) GetCampaign(ctx context.Context, id string) (*model.Campaign, error) {
	return s.CampaignRepo.GetByID(ctx, id)
}

// QuotaPeek reports today's allowance for a tenant, for dashboard display.
func (s *CampaignService) QuotaPeek(ctx context.Context, tenantID string) (*quota.Allowance, string, error) {
	tenant, err := s.TenantRepo.GetByID(ctx, tenantID)
	if err != nil {
		return nil, "", err
	}
	plan := s.Plans.Get(tenant.Plan)
	allow, err := s.Quota.CheckAllowance(ctx, tenantID, plan, 1)
	if err != nil {
		return nil, "", err
	}
	return &allow, plan.ID, nil
}
