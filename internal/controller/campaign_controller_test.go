package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appErrors "github.com/mailkite/campaign-engine/internal/errors"
	"github.com/mailkite/campaign-engine/internal/model"
	"github.com/mailkite/campaign-engine/internal/quota"
	"github.com/mailkite/campaign-engine/internal/service"
)

type stubCampaignRepo struct {
	campaigns map[string]*model.Campaign
}

func (r *stubCampaignRepo) Create(_ context.Context, c *model.Campaign) error {
	cp := *c
	r.campaigns[c.ID] = &cp
	return nil
}

func (r *stubCampaignRepo) GetByID(_ context.Context, id string) (*model.Campaign, error) {
	if c, ok := r.campaigns[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, appErrors.NewCampaignNotFound(id)
}

func (r *stubCampaignRepo) List(_ context.Context, offset, limit int, tenantID, status string) ([]*model.Campaign, int, error) {
	out := []*model.Campaign{}
	for _, c := range r.campaigns {
		cp := *c
		out = append(out, &cp)
	}
	return out, len(out), nil
}

func (r *stubCampaignRepo) Candidates(_ context.Context, limit int, now time.Time) ([]*model.Campaign, error) {
	return nil, nil
}

func (r *stubCampaignRepo) Claim(_ context.Context, id string, now time.Time) (int, error) {
	return 0, nil
}

func (r *stubCampaignRepo) Enqueue(_ context.Context, id string, at time.Time) error {
	c, ok := r.campaigns[id]
	if !ok || c.Status != model.StatusDraft {
		return appErrors.ErrClaimConflict
	}
	c.Status = model.StatusQueued
	c.ScheduledAt = at
	return nil
}

func (r *stubCampaignRepo) MarkSent(_ context.Context, id, messageID string, httpStatus int) error {
	return nil
}

func (r *stubCampaignRepo) MarkRetry(_ context.Context, id string, consumeAttempt bool, rescheduleAt time.Time, httpStatus int, lastError string) error {
	return nil
}

func (r *stubCampaignRepo) MarkFailed(_ context.Context, id string, consumeAttempt bool, httpStatus int, lastError string) error {
	return nil
}

type stubTenantRepo struct{}

func (stubTenantRepo) GetByID(_ context.Context, id string) (*model.Tenant, error) {
	if id != "acme" {
		return nil, appErrors.NewTenantNotFound(id)
	}
	return &model.Tenant{ID: "acme", Name: "Acme", Plan: "free"}, nil
}

func (stubTenantRepo) SetActiveKey(_ context.Context, tenantID, keyID string) error { return nil }

type stubUsage struct{}

func (stubUsage) Increment(_ context.Context, tenantID, day string, n int) error { return nil }
func (stubUsage) Get(_ context.Context, tenantID, day string) (int64, error)     { return 0, nil }

func newTestRouter(campaigns map[string]*model.Campaign) (*chi.Mux, *stubCampaignRepo) {
	if campaigns == nil {
		campaigns = map[string]*model.Campaign{}
	}
	repo := &stubCampaignRepo{campaigns: campaigns}
	svc := &service.CampaignService{
		CampaignRepo: repo,
		TenantRepo:   stubTenantRepo{},
		Quota:        quota.NewEnforcer(stubUsage{}),
		Plans:        quota.DefaultPlans(),
		Log:          zap.NewNop().Sugar(),
	}
	ctrl := &CampaignController{CampaignService: svc}

	r := chi.NewRouter()
	r.Post("/campaigns", ctrl.CreateCampaign)
	r.Get("/campaigns", ctrl.ListCampaigns)
	r.Get("/campaigns/{id}", ctrl.GetCampaign)
	r.Post("/campaigns/{id}/enqueue", ctrl.EnqueueCampaign)
	r.Post("/campaigns/{id}/preview", ctrl.PersonalizedPreview)
	return r, repo
}

func TestCreateCampaignEndpoint(t *testing.T) {
	router, _ := newTestRouter(nil)

	body := `{
		"tenant_id": "acme",
		"subject": "Hello",
		"html_content": "<p>Hi {name}</p>",
		"recipients": [{"email": "user@acme.example", "name": "User"}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var got model.Campaign
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.NotEmpty(t, got.ID)
	assert.NotEmpty(t, got.IdempotencyKey)
	assert.Equal(t, model.StatusDraft, got.Status)
}

func TestCreateCampaignEndpointRejectsBadBody(t *testing.T) {
	router, _ := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateCampaignEndpointUnknownTenant(t *testing.T) {
	router, _ := newTestRouter(nil)

	body := `{
		"tenant_id": "ghost",
		"subject": "Hello",
		"html_content": "<p>Hi</p>",
		"recipients": [{"email": "user@acme.example"}]
	}`
	req := httptest.NewRequest(http.MethodPost, "/campaigns", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetCampaignEndpointNotFound(t *testing.T) {
	router, _ := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/campaigns/ghost", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEnqueueCampaignEndpoint(t *testing.T) {
	router, repo := newTestRouter(map[string]*model.Campaign{
		"d1": {ID: "d1", TenantID: "acme", Subject: "Hello", HTMLContent: "<p>Hi</p>",
			Status: model.StatusDraft, ScheduledAt: time.Now().Add(-time.Hour)},
	})

	req := httptest.NewRequest(http.MethodPost, "/campaigns/d1/enqueue", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.StatusQueued, repo.campaigns["d1"].Status)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "queued", out["status"])
}

func TestPersonalizedPreviewEndpoint(t *testing.T) {
	router, _ := newTestRouter(map[string]*model.Campaign{
		"c1": {ID: "c1", TenantID: "acme", Subject: "Hi {name}",
			HTMLContent: "<p>Hello {name}, this went to {email}</p>",
			Status:      model.StatusDraft},
	})

	body := `{"recipient": {"email": "ada@acme.example", "name": "Ada"}}`
	req := httptest.NewRequest(http.MethodPost, "/campaigns/c1/preview", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "<p>Hello Ada, this went to ada@acme.example</p>", out["rendered_html"])
	assert.Equal(t, "Hi Ada", out["rendered_subject"])
}
