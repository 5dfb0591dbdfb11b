package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/store"
)

func newTestHealth(mem *store.Memory) *Health {
	return NewHealth(mem, HealthConfig{
		MaxSilence:       time.Hour,
		MinSuccessRate:   0.9,
		MaxOpenConflicts: 2,
	})
}

func recordPulls(t *testing.T, mem *store.Memory, siteID string, ok, failed int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < ok; i++ {
		require.NoError(t, mem.RecordPull(ctx, testOrg, siteID, true, 2*time.Second))
	}
	for i := 0; i < failed; i++ {
		require.NoError(t, mem.RecordPull(ctx, testOrg, siteID, false, 0))
	}
}

func TestSiteHealthClassification(t *testing.T) {
	t.Run("never synced is down", func(t *testing.T) {
		mem := newTestStore()
		snap, err := newTestHealth(mem).SiteHealth(context.Background(), testOrg, testSiteID)
		require.NoError(t, err)
		assert.Equal(t, models.HealthDown, snap.Status)
		// No samples yet reads as fully healthy rates, not zero.
		assert.Equal(t, 1.0, snap.PullSuccessRate)
	})

	t.Run("healthy", func(t *testing.T) {
		mem := newTestStore()
		recordPulls(t, mem, testSiteID, 10, 0)
		require.NoError(t, mem.RecordPush(context.Background(), testOrg, testSiteID, true))

		snap, err := newTestHealth(mem).SiteHealth(context.Background(), testOrg, testSiteID)
		require.NoError(t, err)
		assert.Equal(t, models.HealthHealthy, snap.Status)
		assert.Equal(t, 2.0, snap.LagSeconds)
	})

	t.Run("degraded by pull failures", func(t *testing.T) {
		mem := newTestStore()
		recordPulls(t, mem, testSiteID, 8, 2)

		snap, err := newTestHealth(mem).SiteHealth(context.Background(), testOrg, testSiteID)
		require.NoError(t, err)
		assert.Equal(t, models.HealthDegraded, snap.Status)
		assert.Equal(t, 0.8, snap.PullSuccessRate)
	})

	t.Run("degraded by open conflicts", func(t *testing.T) {
		mem := newTestStore()
		recordPulls(t, mem, testSiteID, 10, 0)
		d := NewDetector(mem, testLogger())
		for _, id := range []string{"c1", "c2", "c3"} {
			item := seedContent(mem, models.ContentItem{ID: id, Title: id})
			_, err := d.Detect(context.Background(), &item,
				models.ContentSnapshot{RevisionMarker: "l"},
				models.ContentSnapshot{RevisionMarker: "r"}, "base")
			require.NoError(t, err)
		}

		snap, err := newTestHealth(mem).SiteHealth(context.Background(), testOrg, testSiteID)
		require.NoError(t, err)
		assert.Equal(t, models.HealthDegraded, snap.Status)
		assert.Equal(t, 3, snap.OpenConflicts)
	})

	t.Run("down after prolonged silence", func(t *testing.T) {
		mem := newTestStore()
		recordPulls(t, mem, testSiteID, 10, 0)

		h := newTestHealth(mem)
		h.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

		snap, err := h.SiteHealth(context.Background(), testOrg, testSiteID)
		require.NoError(t, err)
		assert.Equal(t, models.HealthDown, snap.Status)
	})

	t.Run("tenant mismatch", func(t *testing.T) {
		mem := newTestStore()
		_, err := newTestHealth(mem).SiteHealth(context.Background(), "org-other", testSiteID)
		assert.ErrorIs(t, err, ErrTenantMismatch)
	})
}

func TestOrganizationHealth(t *testing.T) {
	mem := newTestStore()
	mem.AddSite(models.Site{ID: "site-2", OrgID: testOrg, Active: true})
	mem.AddSite(models.Site{ID: "site-inactive", OrgID: testOrg, Active: false})
	mem.AddSite(models.Site{ID: "site-foreign", OrgID: "org-other", Active: true})
	recordPulls(t, mem, testSiteID, 5, 0)

	snaps, err := newTestHealth(mem).OrganizationHealth(context.Background(), testOrg)
	require.NoError(t, err)
	// Deactivated sites stay visible in the org rollup; foreign orgs don't.
	require.Len(t, snaps, 3)

	bySite := map[string]models.HealthSnapshot{}
	for _, s := range snaps {
		bySite[s.SiteID] = s
	}
	assert.Equal(t, models.HealthHealthy, bySite[testSiteID].Status)
	assert.Equal(t, models.HealthDown, bySite["site-2"].Status)
	assert.Contains(t, bySite, "site-inactive")
	assert.NotContains(t, bySite, "site-foreign")
}
