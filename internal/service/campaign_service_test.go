package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mailkite/campaign-engine/internal/model"
	"github.com/mailkite/campaign-engine/internal/quota"
	"github.com/mailkite/campaign-engine/internal/queue"
)

func newCampaignService(cs ...*model.Campaign) (*CampaignService, *memCampaignRepo, *queue.InMemoryQueue) {
	campaigns := newMemCampaignRepo(cs...)
	tenants := &memTenantRepo{tenants: map[string]*model.Tenant{
		"acme": {ID: "acme", Name: "Acme", Plan: "free"},
	}}
	q := queue.NewInMemoryQueue(8)
	svc := &CampaignService{
		CampaignRepo: campaigns,
		TenantRepo:   tenants,
		Quota:        quota.NewEnforcer(&memUsage{}),
		Plans:        quota.DefaultPlans(),
		Queue:        q,
		Log:          zap.NewNop().Sugar(),
	}
	return svc, campaigns, q
}

func TestCreateCampaignAssignsIdempotencyKey(t *testing.T) {
	svc, repo, _ := newCampaignService()

	c, err := svc.CreateCampaign(context.Background(), CreateCampaignInput{
		TenantID:    "acme",
		Subject:     "Hello",
		HTMLContent: "<p>Hi</p>",
		Recipients:  model.Recipients{{Email: "user@acme.example"}},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, c.ID)
	assert.NotEmpty(t, c.IdempotencyKey)
	assert.Equal(t, model.StatusDraft, c.Status)

	stored := repo.get(c.ID)
	require.NotNil(t, stored)
	assert.Equal(t, c.IdempotencyKey, stored.IdempotencyKey)
}

func TestCreateCampaignValidation(t *testing.T) {
	svc, _, _ := newCampaignService()
	ctx := context.Background()
	base := CreateCampaignInput{
		TenantID:    "acme",
		Subject:     "Hello",
		HTMLContent: "<p>Hi</p>",
		Recipients:  model.Recipients{{Email: "user@acme.example"}},
	}

	noSubject := base
	noSubject.Subject = "  "
	_, err := svc.CreateCampaign(ctx, noSubject)
	assert.Error(t, err)

	noContent := base
	noContent.HTMLContent = ""
	_, err = svc.CreateCampaign(ctx, noContent)
	assert.Error(t, err)

	noRecipients := base
	noRecipients.Recipients = nil
	_, err = svc.CreateCampaign(ctx, noRecipients)
	assert.Error(t, err)

	unknownTenant := base
	unknownTenant.TenantID = "ghost"
	_, err = svc.CreateCampaign(ctx, unknownTenant)
	assert.Error(t, err)

	badSchedule := base
	when := "not-a-timestamp"
	badSchedule.ScheduledAt = &when
	_, err = svc.CreateCampaign(ctx, badSchedule)
	assert.Error(t, err)
}

func TestCreateCampaignEnqueueNotifies(t *testing.T) {
	svc, repo, q := newCampaignService()
	when := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)

	c, err := svc.CreateCampaign(context.Background(), CreateCampaignInput{
		TenantID:    "acme",
		Subject:     "Hello",
		HTMLContent: "<p>Hi</p>",
		Recipients:  model.Recipients{{Email: "user@acme.example"}},
		ScheduledAt: &when,
		Enqueue:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, model.StatusQueued, c.Status)
	assert.Equal(t, when, repo.get(c.ID).ScheduledAt.UTC().Format(time.RFC3339))

	// The broker got a nudge for this campaign.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got := make(chan string, 1)
	go q.Consume(ctx, func(_ context.Context, id string) error {
		got <- id
		return nil
	})
	select {
	case id := <-got:
		assert.Equal(t, c.ID, id)
	case <-ctx.Done():
		t.Fatal("no notification published")
	}
}

func TestEnqueueDraftOnly(t *testing.T) {
	draft := queuedCampaign("d1", 1)
	draft.Status = model.StatusDraft
	sent := queuedCampaign("s1", 1)
	sent.Status = model.StatusSent

	svc, repo, _ := newCampaignService(draft, sent)
	ctx := context.Background()

	c, err := svc.Enqueue(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusQueued, c.Status)
	assert.False(t, repo.get("d1").ScheduledAt.After(time.Now().Add(time.Second)))

	_, err = svc.Enqueue(ctx, "s1")
	assert.ErrorContains(t, err, "cannot be enqueued")

	_, err = svc.Enqueue(ctx, "ghost")
	assert.Error(t, err)
}

func TestListCampaignsPagination(t *testing.T) {
	var cs []*model.Campaign
	for i := 0; i < 45; i++ {
		cs = append(cs, queuedCampaign(fmt.Sprintf("c%02d", i), 1))
	}
	svc, _, _ := newCampaignService(cs...)

	campaigns, pagination, err := svc.ListCampaigns(context.Background(), 0, 0, "acme", "")
	require.NoError(t, err)

	assert.Equal(t, 1, pagination["page"])
	assert.Equal(t, 20, pagination["page_size"])
	assert.Equal(t, 45, pagination["total_count"])
	assert.Equal(t, 3, pagination["total_pages"])
	assert.Len(t, campaigns, 20)

	last, pagination, err := svc.ListCampaigns(context.Background(), 3, 20, "acme", "")
	require.NoError(t, err)
	assert.Len(t, last, 5)
	assert.Equal(t, 3, pagination["page"])
}

func TestQuotaPeek(t *testing.T) {
	svc, _, _ := newCampaignService()

	allow, planID, err := svc.QuotaPeek(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "free", planID)
	assert.True(t, allow.Allowed)
	assert.Equal(t, int64(50), allow.Remaining)

	_, _, err = svc.QuotaPeek(context.Background(), "ghost")
	assert.Error(t, err)
}

func TestRenderForRecipient(t *testing.T) {
	r := model.Recipient{Email: "user@acme.example", Name: "Ada"}
	assert.Equal(t, "Hi Ada, mail to user@acme.example",
		RenderForRecipient("Hi {name}, mail to {email}", r))

	anon := model.Recipient{Email: "user@acme.example"}
	assert.Equal(t, "Hi there", RenderForRecipient("Hi {name}", anon))
}
