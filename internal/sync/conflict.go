package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/store"
)

// Detector decides whether local and remote revisions of a content item
// diverged independently since the last known-synced baseline.
type Detector struct {
	store store.Store
	log   *slog.Logger
}

// NewDetector creates a conflict detector.
func NewDetector(st store.Store, log *slog.Logger) *Detector {
	return &Detector{store: st, log: log}
}

// Detect compares both sides against lastSyncedMarker. A conflict exists iff
// both the local and the remote marker moved past the baseline. On conflict
// an open ConflictRecord is persisted and returned; the caller must not
// apply any mutation to the content item. If only one side moved, nil is
// returned and the mover's value wins.
//
// An already-open record for the same content is reused rather than
// duplicated, so repeated reconciliation of an unresolved item stays quiet.
func (d *Detector) Detect(ctx context.Context, item *models.ContentItem, local, remoteSnap models.ContentSnapshot, lastSyncedMarker string) (*models.ConflictRecord, error) {
	localMoved := local.RevisionMarker != lastSyncedMarker
	remoteMoved := remoteSnap.RevisionMarker != lastSyncedMarker
	if !localMoved || !remoteMoved {
		return nil, nil
	}
	return d.record(ctx, item, local, remoteSnap, lastSyncedMarker)
}

// record persists an open conflict for item, reusing an already-open record.
// Callers have already established that both sides diverged; the push path
// uses this directly because its remote baseline lives in a different marker
// space than the webhook/pull baseline Detect compares against.
func (d *Detector) record(ctx context.Context, item *models.ContentItem, local, remoteSnap models.ContentSnapshot, baseline string) (*models.ConflictRecord, error) {
	open, err := d.store.OpenConflicts(ctx, item.OrgID, item.SiteID)
	if err != nil {
		return nil, fmt.Errorf("list open conflicts: %w", err)
	}
	for i := range open {
		if open[i].ContentID == item.ID {
			d.log.Debug("conflict already open", "content_id", item.ID, "conflict_id", open[i].ID)
			return &open[i], nil
		}
	}

	rec := &models.ConflictRecord{
		OrgID:          item.OrgID,
		SiteID:         item.SiteID,
		ContentID:      item.ID,
		LocalSnapshot:  local,
		RemoteSnapshot: remoteSnap,
		Status:         models.ConflictOpen,
		DetectedAt:     time.Now(),
	}
	if err := d.store.SaveConflict(ctx, rec); err != nil {
		return nil, fmt.Errorf("save conflict: %w", err)
	}

	d.log.Warn("sync conflict detected",
		"content_id", item.ID,
		"site_id", item.SiteID,
		"local_marker", local.RevisionMarker,
		"remote_marker", remoteSnap.RevisionMarker,
		"baseline", baseline)
	return rec, nil
}

// OpenConflicts lists open conflicts for an organization, optionally
// narrowed to one site.
func (d *Detector) OpenConflicts(ctx context.Context, orgID, siteID string) ([]models.ConflictRecord, error) {
	return d.store.OpenConflicts(ctx, orgID, siteID)
}

// Resolve closes a conflict record with a note. Which side won (or how the
// sides were merged) is the administrator's decision; the engine only
// records the outcome.
func (d *Detector) Resolve(ctx context.Context, id, note string) error {
	if err := d.store.ResolveConflict(ctx, id, note); err != nil {
		return fmt.Errorf("resolve conflict %s: %w", id, err)
	}
	d.log.Info("conflict resolved", "conflict_id", id)
	return nil
}
