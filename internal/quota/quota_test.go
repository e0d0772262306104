package quota

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailkite/campaign-engine/internal/model"
)

type memUsageRepo struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newMemUsageRepo() *memUsageRepo {
	return &memUsageRepo{counts: make(map[string]int64)}
}

func (r *memUsageRepo) Increment(_ context.Context, tenantID, day string, n int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[tenantID+"/"+day] += int64(n)
	return nil
}

func (r *memUsageRepo) Get(_ context.Context, tenantID, day string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[tenantID+"/"+day], nil
}

func fixedEnforcer(usage UsageRepository) *Enforcer {
	e := NewEnforcer(usage)
	e.now = func() time.Time {
		return time.Date(2025, time.March, 10, 12, 0, 0, 0, time.UTC)
	}
	return e
}

func TestCheckAllowanceBoundary(t *testing.T) {
	ctx := context.Background()
	usage := newMemUsageRepo()
	e := fixedEnforcer(usage)
	plan := model.Plan{ID: "free", EmailsPerDay: model.LimitOf(50)}

	require.NoError(t, e.RecordSend(ctx, "acme", 49))

	// One below the limit: a single send still fits.
	a, err := e.CheckAllowance(ctx, "acme", plan, 1)
	require.NoError(t, err)
	assert.True(t, a.Allowed)
	assert.Equal(t, int64(49), a.Used)
	assert.Equal(t, int64(1), a.Remaining)

	// But two no longer do.
	a, err = e.CheckAllowance(ctx, "acme", plan, 2)
	require.NoError(t, err)
	assert.False(t, a.Allowed)

	require.NoError(t, e.RecordSend(ctx, "acme", 1))

	// At the limit: denied, zero headroom.
	a, err = e.CheckAllowance(ctx, "acme", plan, 1)
	require.NoError(t, err)
	assert.False(t, a.Allowed)
	assert.Equal(t, int64(50), a.Used)
	assert.Equal(t, int64(0), a.Remaining)
}

func TestCheckAllowanceBatchOvershoot(t *testing.T) {
	ctx := context.Background()
	e := fixedEnforcer(newMemUsageRepo())
	plan := model.Plan{ID: "free", EmailsPerDay: model.LimitOf(50)}

	require.NoError(t, e.RecordSend(ctx, "acme", 48))

	// 48 used, 3 requested: would land at 51, over the 50 cap.
	a, err := e.CheckAllowance(ctx, "acme", plan, 3)
	require.NoError(t, err)
	assert.False(t, a.Allowed)
	assert.Equal(t, int64(2), a.Remaining)

	// 2 requested exactly fills the cap.
	a, err = e.CheckAllowance(ctx, "acme", plan, 2)
	require.NoError(t, err)
	assert.True(t, a.Allowed)
}

func TestCheckAllowanceUnlimited(t *testing.T) {
	ctx := context.Background()
	e := fixedEnforcer(newMemUsageRepo())
	plan := model.Plan{ID: "enterprise", EmailsPerDay: model.Unlimited()}

	a, err := e.CheckAllowance(ctx, "acme", plan, 1_000_000)
	require.NoError(t, err)
	assert.True(t, a.Allowed)
	assert.True(t, a.Unlimited)
	assert.Equal(t, int64(-1), a.Remaining)
}

func TestRecordSendIgnoresNonPositive(t *testing.T) {
	ctx := context.Background()
	usage := newMemUsageRepo()
	e := fixedEnforcer(usage)

	require.NoError(t, e.RecordSend(ctx, "acme", 0))
	require.NoError(t, e.RecordSend(ctx, "acme", -5))

	used, err := usage.Get(ctx, "acme", model.UsageDay(e.now()))
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)
}

func TestUsageIsPerTenantPerDay(t *testing.T) {
	ctx := context.Background()
	usage := newMemUsageRepo()
	e := fixedEnforcer(usage)
	plan := model.Plan{ID: "free", EmailsPerDay: model.LimitOf(50)}

	require.NoError(t, e.RecordSend(ctx, "acme", 50))

	// A different tenant has its own counter.
	a, err := e.CheckAllowance(ctx, "globex", plan, 1)
	require.NoError(t, err)
	assert.True(t, a.Allowed)

	// The next UTC day starts fresh.
	e.now = func() time.Time {
		return time.Date(2025, time.March, 11, 0, 0, 1, 0, time.UTC)
	}
	a, err = e.CheckAllowance(ctx, "acme", plan, 50)
	require.NoError(t, err)
	assert.True(t, a.Allowed)
	assert.Equal(t, int64(0), a.Used)
}

func TestPlanTableFallsBackToFree(t *testing.T) {
	plans := DefaultPlans()

	assert.Equal(t, "free", plans.Get("no-such-plan").ID)
	assert.Equal(t, int64(5000), plans.Get("pro").EmailsPerDay.Int())
	assert.True(t, plans.Get("enterprise").EmailsPerDay.IsUnlimited())
}

func TestPlanTableApplyOverride(t *testing.T) {
	plans := DefaultPlans()
	plans.Apply("free", 100, 600, 5, 500, 5)
	plans.Apply("internal", -1, -1, -1, -1, -1)

	assert.Equal(t, int64(100), plans.Get("free").EmailsPerDay.Int())
	assert.True(t, plans.Get("internal").EmailsPerDay.IsUnlimited())
}
