package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/store"
)

// HealthConfig holds the SLO classification thresholds.
type HealthConfig struct {
	// MaxSilence: no successful pull or push within this window means the
	// site is down.
	MaxSilence time.Duration

	// MinSuccessRate: a pull or push success rate below this means the
	// site is degraded.
	MinSuccessRate float64

	// MaxOpenConflicts: more open conflicts than this means degraded.
	MaxOpenConflicts int
}

// Health aggregates pull/push counters and conflict counts into per-site
// and per-organization health snapshots. It is a pure read-side service and
// never mutates sync state.
type Health struct {
	store store.Store
	cfg   HealthConfig
	now   func() time.Time
}

// NewHealth creates the sync health service.
func NewHealth(st store.Store, cfg HealthConfig) *Health {
	return &Health{store: st, cfg: cfg, now: time.Now}
}

// SiteHealth computes the health snapshot for one site.
func (h *Health) SiteHealth(ctx context.Context, orgID, siteID string) (*models.HealthSnapshot, error) {
	site, err := h.store.GetSite(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("get site %s: %w", siteID, err)
	}
	if site.OrgID != orgID {
		return nil, fmt.Errorf("site %s: %w", siteID, ErrTenantMismatch)
	}

	counters, err := h.store.GetCounters(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("get counters: %w", err)
	}
	openConflicts, err := h.store.CountOpenConflicts(ctx, orgID, siteID)
	if err != nil {
		return nil, fmt.Errorf("count conflicts: %w", err)
	}

	snap := &models.HealthSnapshot{
		OrgID:           orgID,
		SiteID:          siteID,
		LagSeconds:      counters.AvgLagSeconds(),
		PullSuccessRate: successRate(counters.PullSuccesses, counters.PullFailures),
		PushSuccessRate: successRate(counters.PushSuccesses, counters.PushFailures),
		OpenConflicts:   openConflicts,
		LastSuccessAt:   counters.LastSuccessAt,
	}
	snap.Status = h.classify(snap)
	return snap, nil
}

// OrganizationHealth computes snapshots for all of an org's sites.
// Deactivated sites are included: an admin who turned a failing site off
// still sees it in the org view instead of having it vanish.
func (h *Health) OrganizationHealth(ctx context.Context, orgID string) ([]models.HealthSnapshot, error) {
	sites, err := h.store.ListSites(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	snaps := make([]models.HealthSnapshot, 0, len(sites))
	for _, site := range sites {
		snap, err := h.SiteHealth(ctx, orgID, site.ID)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, nil
}

func (h *Health) classify(snap *models.HealthSnapshot) models.HealthStatus {
	if snap.LastSuccessAt.IsZero() || h.now().Sub(snap.LastSuccessAt) > h.cfg.MaxSilence {
		return models.HealthDown
	}
	if snap.PullSuccessRate < h.cfg.MinSuccessRate ||
		snap.PushSuccessRate < h.cfg.MinSuccessRate ||
		snap.OpenConflicts > h.cfg.MaxOpenConflicts {
		return models.HealthDegraded
	}
	return models.HealthHealthy
}

// successRate treats an empty sample set as fully healthy.
func successRate(ok, failed int64) float64 {
	total := ok + failed
	if total == 0 {
		return 1.0
	}
	return float64(ok) / float64(total)
}
