// Package models defines data structures for the pressbridge sync engine.
package models

import "time"

// Site is one external WordPress endpoint bound to exactly one organization.
type Site struct {
	ID            string    `json:"id"`
	OrgID         string    `json:"org_id"`
	BaseURL       string    `json:"base_url"`
	CredentialRef string    `json:"credential_ref"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SyncCursor is the per-site watermark for incremental pulls.
// LastPulledAt is monotonically non-decreasing and only advances after a
// pull batch item has been durably applied. LastProcessedRemoteIDs holds the
// remote ids already applied at exactly LastPulledAt, so items sharing the
// boundary timestamp are not processed twice.
type SyncCursor struct {
	SiteID                 string    `json:"site_id"`
	LastPulledAt           time.Time `json:"last_pulled_at"`
	LastProcessedRemoteIDs []int64   `json:"last_processed_remote_ids"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// SeenAtBoundary reports whether remoteID was already processed at exactly ts.
func (c *SyncCursor) SeenAtBoundary(remoteID int64, ts time.Time) bool {
	if !ts.Equal(c.LastPulledAt) {
		return false
	}
	for _, id := range c.LastProcessedRemoteIDs {
		if id == remoteID {
			return true
		}
	}
	return false
}

// PluginConfig is the per-site inbound-webhook credential set for the
// companion plugin installed on the WordPress side.
type PluginConfig struct {
	SiteID     string    `json:"site_id"`
	OrgID      string    `json:"org_id"`
	APIKey     string    `json:"api_key"`
	HMACSecret string    `json:"hmac_secret,omitempty"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// SiteCounters holds the persisted per-site sync counters that health
// snapshots are derived from. Mutated by pull/push/webhook paths only.
type SiteCounters struct {
	SiteID        string    `json:"site_id"`
	OrgID         string    `json:"org_id"`
	PullSuccesses int64     `json:"pull_successes"`
	PullFailures  int64     `json:"pull_failures"`
	PushSuccesses int64     `json:"push_successes"`
	PushFailures  int64     `json:"push_failures"`
	LastSuccessAt time.Time `json:"last_success_at"`
	TotalLagMs    int64     `json:"total_lag_ms"`
	LagSamples    int64     `json:"lag_samples"`
}

// AvgLagSeconds returns the mean observed sync lag in seconds.
func (c *SiteCounters) AvgLagSeconds() float64 {
	if c.LagSamples == 0 {
		return 0
	}
	return float64(c.TotalLagMs) / float64(c.LagSamples) / 1000.0
}
