// internal/model/plan.go
package model

// Limit is a tagged quota value. The persisted convention uses -1 for
// "unlimited"; Limit keeps that sentinel out of arithmetic.
type Limit struct {
	unlimited bool
	n         int64
}

func Unlimited() Limit { return Limit{unlimited: true} }

func LimitOf(n int64) Limit { return Limit{n: n} }

// LimitFromInt converts the stored integer form, where -1 means unlimited.
func LimitFromInt(n int64) Limit {
	if n < 0 {
		return Unlimited()
	}
	return LimitOf(n)
}

func (l Limit) IsUnlimited() bool { return l.unlimited }

// Allows reports whether used+n stays within the limit.
func (l Limit) Allows(used, n int64) bool {
	if l.unlimited {
		return true
	}
	return used+n <= l.n
}

// Remaining returns the headroom left given current usage. Unlimited limits
// report -1, matching the stored sentinel for display purposes.
func (l Limit) Remaining(used int64) int64 {
	if l.unlimited {
		return -1
	}
	if used >= l.n {
		return 0
	}
	return l.n - used
}

// Int returns the stored integer form (-1 for unlimited).
func (l Limit) Int() int64 {
	if l.unlimited {
		return -1
	}
	return l.n
}

// Plan is the static limit set attached to a subscription tier.
type Plan struct {
	ID             string
	EmailsPerDay   Limit
	EmailsPerMonth Limit
	Campaigns      Limit
	Contacts       Limit
	Templates      Limit
}
