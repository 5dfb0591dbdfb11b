package models

import "time"

// HealthStatus classifies a site's sync health.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthDown     HealthStatus = "down"
)

// HealthSnapshot is a point-in-time sync health summary for one site.
// It is recomputed on demand from SiteCounters and the open-conflict count;
// it is never persisted.
type HealthSnapshot struct {
	OrgID           string       `json:"org_id"`
	SiteID          string       `json:"site_id"`
	Status          HealthStatus `json:"status"`
	LagSeconds      float64      `json:"lag_seconds"`
	PullSuccessRate float64      `json:"pull_success_rate"`
	PushSuccessRate float64      `json:"push_success_rate"`
	OpenConflicts   int          `json:"open_conflicts"`
	LastSuccessAt   time.Time    `json:"last_success_at"`
}
