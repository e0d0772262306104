// internal/quota/plans.go
package quota

import "github.com/mailkite/campaign-engine/internal/model"

// PlanTable maps plan IDs to their limits. Read-only after startup.
type PlanTable map[string]model.Plan

// DefaultPlans mirrors the shipped subscription tiers. -1 means unlimited.
func DefaultPlans() PlanTable {
	return PlanTable{
		"free": {
			ID:             "free",
			EmailsPerDay:   model.LimitOf(50),
			EmailsPerMonth: model.LimitOf(300),
			Campaigns:      model.LimitOf(3),
			Contacts:       model.LimitOf(250),
			Templates:      model.LimitOf(3),
		},
		"starter": {
			ID:             "starter",
			EmailsPerDay:   model.LimitOf(500),
			EmailsPerMonth: model.LimitOf(10000),
			Campaigns:      model.LimitOf(20),
			Contacts:       model.LimitOf(5000),
			Templates:      model.LimitOf(20),
		},
		"pro": {
			ID:             "pro",
			EmailsPerDay:   model.LimitOf(5000),
			EmailsPerMonth: model.LimitOf(100000),
			Campaigns:      model.Unlimited(),
			Contacts:       model.LimitOf(50000),
			Templates:      model.Unlimited(),
		},
		"enterprise": {
			ID:             "enterprise",
			EmailsPerDay:   model.Unlimited(),
			EmailsPerMonth: model.Unlimited(),
			Campaigns:      model.Unlimited(),
			Contacts:       model.Unlimited(),
			Templates:      model.Unlimited(),
		},
	}
}

// Apply overrides or adds one plan, using the -1 sentinel convention for
// unlimited values.
func (t PlanTable) Apply(id string, emailsPerDay, emailsPerMonth, campaigns, contacts, templates int64) {
	t[id] = model.Plan{
		ID:             id,
		EmailsPerDay:   model.LimitFromInt(emailsPerDay),
		EmailsPerMonth: model.LimitFromInt(emailsPerMonth),
		Campaigns:      model.LimitFromInt(campaigns),
		Contacts:       model.LimitFromInt(contacts),
		Templates:      model.LimitFromInt(templates),
	}
}

// Get falls back to the free tier for unknown plan IDs so a bad tenant row
// can never bypass quotas.
func (t PlanTable) Get(id string) model.Plan {
	if p, ok := t[id]; ok {
		return p
	}
	return t["free"]
}
