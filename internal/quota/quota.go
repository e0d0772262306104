// internal/quota/quota.go
//
// Per-tenant daily send quota. CheckAllowance is an advisory pre-flight;
// RecordSend's atomic increment is the true counter. Under concurrent
// workers a check-then-send race can overshoot slightly, which is the
// documented trade-off for not locking the counter across a network send.
// Usage days are UTC calendar dates.
package quota

import (
	"context"
	"time"

	"github.com/mailkite/campaign-engine/internal/model"
)

// UsageRepository is the atomic counter storage.
type UsageRepository interface {
	// Increment adds n to the (tenantID, day) counter, creating it at n when
	// absent. Must be a single atomic operation in the store.
	Increment(ctx context.Context, tenantID, day string, n int) error
	// Get returns the counter, 0 when absent.
	Get(ctx context.Context, tenantID, day string) (int64, error)
}

// Allowance is the result of a quota check.
type Allowance struct {
	Allowed   bool  `json:"allowed"`
	Unlimited bool  `json:"unlimited"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"` // -1 when unlimited
}

type Enforcer struct {
	Usage UsageRepository
	now   func() time.Time
}

func NewEnforcer(usage UsageRepository) *Enforcer {
	return &Enforcer{Usage: usage, now: time.Now}
}

// CheckAllowance decides whether the tenant may send n more emails today
// under the given plan, and reports the remaining headroom for display.
func (e *Enforcer) CheckAllowance(ctx context.Context, tenantID string, plan model.Plan, n int) (Allowance, error) {
	limit := plan.EmailsPerDay
	if limit.IsUnlimited() {
		return Allowance{Allowed: true, Unlimited: true, Remaining: -1}, nil
	}

	used, err := e.Usage.Get(ctx, tenantID, model.UsageDay(e.now()))
	if err != nil {
		return Allowance{}, err
	}

	return Allowance{
		Allowed:   limit.Allows(used, int64(n)),
		Used:      used,
		Remaining: limit.Remaining(used),
	}, nil
}

// RecordSend adds n sends to today's counter. Callers invoke this once the
// external sender has accepted the sends.
func (e *Enforcer) RecordSend(ctx context.Context, tenantID string, n int) error {
	if n <= 0 {
		return nil
	}
	return e.Usage.Increment(ctx, tenantID, model.UsageDay(e.now()), n)
}
