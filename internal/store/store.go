// Package store defines the persistence interfaces used by the sync and
// reindex services, plus an in-memory implementation.
//
// The engine never talks to a database directly; internal/db provides the
// SurrealDB-backed implementation of these interfaces.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/pressbridge/pressbridge/internal/models"
)

// Sentinel errors for store operations. Use errors.Is() to check.
var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrCursorConflict indicates a compare-and-set cursor update lost a
	// race with a concurrent pull for the same site. The losing caller
	// reloads and retries on its next scheduled invocation.
	ErrCursorConflict = errors.New("cursor compare-and-set conflict")
)

// SiteStore provides read access to site registrations.
type SiteStore interface {
	GetSite(ctx context.Context, id string) (*models.Site, error)

	// ListSites returns all sites regardless of activation state,
	// optionally filtered by org (empty orgID means all organizations).
	ListSites(ctx context.Context, orgID string) ([]models.Site, error)

	// ListActiveSites returns active sites, optionally filtered by org
	// (empty orgID means all organizations).
	ListActiveSites(ctx context.Context, orgID string) ([]models.Site, error)
}

// ContentStore persists canonical content items.
type ContentStore interface {
	GetContent(ctx context.Context, id string) (*models.ContentItem, error)
	GetContentByRemoteID(ctx context.Context, siteID string, remotePostID int64) (*models.ContentItem, error)
	UpsertContent(ctx context.Context, item *models.ContentItem) error

	// UpdateMarkers writes the revision-marker pair and the remote baseline
	// in one call. The markers must never be updated separately: a partial
	// update corrupts conflict detection.
	UpdateMarkers(ctx context.Context, id, revisionMarker, lastSyncedMarker, remoteMarker string) error

	// SetRemoteBinding persists the remote post id and URL returned by a
	// create push. This must happen before the push is reported successful.
	SetRemoteBinding(ctx context.Context, id string, remotePostID int64, remoteURL string) error

	SetEmbeddedHash(ctx context.Context, id, hash string) error

	// ListDrifted returns content whose current hash no longer matches the
	// hash recorded at last successful embedding.
	ListDrifted(ctx context.Context, limit int) ([]models.ContentItem, error)
}

// CursorStore persists per-site pull watermarks.
type CursorStore interface {
	// GetCursor returns the site's cursor, or a zero cursor if none exists.
	GetCursor(ctx context.Context, siteID string) (*models.SyncCursor, error)

	// CompareAndSetCursor stores cursor only if the persisted LastPulledAt
	// still equals prev; otherwise it returns ErrCursorConflict.
	CompareAndSetCursor(ctx context.Context, cursor *models.SyncCursor, prev time.Time) error
}

// PluginStore resolves inbound webhook credentials.
type PluginStore interface {
	GetPluginByAPIKey(ctx context.Context, apiKey string) (*models.PluginConfig, error)
}

// ConflictStore persists conflict records.
type ConflictStore interface {
	SaveConflict(ctx context.Context, rec *models.ConflictRecord) error
	OpenConflicts(ctx context.Context, orgID, siteID string) ([]models.ConflictRecord, error)
	CountOpenConflicts(ctx context.Context, orgID, siteID string) (int, error)
	ResolveConflict(ctx context.Context, id, note string) error
}

// JobStore persists embedding jobs with coalescing semantics.
type JobStore interface {
	// EnqueueJob inserts job unless an active job for the same coalesce key
	// exists, in which case the existing job is returned. The check-and-
	// insert is atomic.
	EnqueueJob(ctx context.Context, job *models.EmbeddingJob) (created bool, existing *models.EmbeddingJob, err error)

	// UpdateJobHash refreshes the recorded content hash of a queued job so
	// the eventual embedding run picks up the newest content.
	UpdateJobHash(ctx context.Context, id, hash string) error

	ListQueuedJobs(ctx context.Context, limit int) ([]models.EmbeddingJob, error)
	MarkJob(ctx context.Context, id string, status models.JobStatus, errMsg string) error
}

// CounterStore accumulates per-site sync counters for health snapshots.
type CounterStore interface {
	GetCounters(ctx context.Context, siteID string) (*models.SiteCounters, error)
	RecordPull(ctx context.Context, orgID, siteID string, ok bool, lag time.Duration) error
	RecordPush(ctx context.Context, orgID, siteID string, ok bool) error
}

// Store is the full persistence surface the engine depends on.
type Store interface {
	SiteStore
	ContentStore
	CursorStore
	PluginStore
	ConflictStore
	JobStore
	CounterStore
}
