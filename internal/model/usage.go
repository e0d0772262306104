// internal/model/usage.go
package model

import "time"

// DailyUsage is the per-tenant send counter for one UTC calendar day.
// Count only ever moves up, via an atomic increment in the store.
type DailyUsage struct {
	TenantID string `db:"tenant_id" json:"tenant_id"`
	Day      string `db:"day" json:"day"`
	Count    int64  `db:"count" json:"count"`
}

// UsageDay formats the UTC calendar day a timestamp falls on.
func UsageDay(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
