package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/remote"
	"github.com/pressbridge/pressbridge/internal/store"
	"github.com/pressbridge/pressbridge/internal/throttle"
)

// Enqueuer hands applied content mutations to the reindex admission queue.
type Enqueuer interface {
	EnqueueContent(ctx context.Context, item *models.ContentItem) error
}

// PullerConfig tunes the incremental pull service.
type PullerConfig struct {
	// MinPullInterval is how stale a site's cursor must be before a
	// scheduled run pulls it again.
	MinPullInterval time.Duration

	// RemoteTimeout bounds each remote page fetch.
	RemoteTimeout time.Duration
}

// Puller is the incremental pull service: the backup path that reconciles
// remote changes when webhooks are delayed or missed.
type Puller struct {
	store    store.Store
	remotes  remote.Factory
	limiter  *throttle.Limiter
	detector *Detector
	queue    Enqueuer
	cfg      PullerConfig
	log      *slog.Logger
}

// NewPuller creates the incremental pull service.
func NewPuller(st store.Store, remotes remote.Factory, limiter *throttle.Limiter, detector *Detector, queue Enqueuer, cfg PullerConfig, log *slog.Logger) *Puller {
	return &Puller{
		store:    st,
		remotes:  remotes,
		limiter:  limiter,
		detector: detector,
		queue:    queue,
		cfg:      cfg,
		log:      log,
	}
}

// PullResult reports one site's incremental pull.
type PullResult struct {
	SiteID           string      `json:"site_id"`
	Fetched          int         `json:"fetched"`
	Applied          int         `json:"applied"`
	Conflicts        int         `json:"conflicts"`
	SkippedThrottled bool        `json:"skipped_throttled,omitempty"`
	NewCursor        time.Time   `json:"new_cursor"`
	Errors           []ItemError `json:"errors,omitempty"`
}

// pullOutcome classifies one item's processing inside a batch.
type pullOutcome int

const (
	outcomeApplied pullOutcome = iota
	outcomeSkipped             // remote side unchanged, nothing to do
	outcomeConflict
	outcomeFailed
)

// PullIncremental fetches remotely-modified items for one site since its
// cursor and reconciles them. Admission is checked before any network call;
// a throttled invocation is a no-op, not an error. The cursor advances only
// past items that were fully handled, and a failed item blocks advancement
// past itself without aborting the rest of the batch. Idempotency across
// invocations comes from the cursor, so there is no in-process retry loop.
func (p *Puller) PullIncremental(ctx context.Context, site models.Site, limit int) (*PullResult, error) {
	result := &PullResult{SiteID: site.ID}

	if !p.limiter.Allow("pull:" + site.OrgID) {
		result.SkippedThrottled = true
		p.log.Debug("pull throttled", "site_id", site.ID, "org_id", site.OrgID)
		return result, nil
	}

	cursor, err := p.store.GetCursor(ctx, site.ID)
	if err != nil {
		return result, fmt.Errorf("get cursor: %w", err)
	}
	result.NewCursor = cursor.LastPulledAt

	client := p.remotes(site.BaseURL, site.CredentialRef)
	fetchCtx, cancel := context.WithTimeout(ctx, p.cfg.RemoteTimeout)
	posts, err := client.FetchModifiedSince(fetchCtx, cursor.LastPulledAt, limit)
	cancel()
	if err != nil {
		if recErr := p.store.RecordPull(ctx, site.OrgID, site.ID, false, 0); recErr != nil {
			p.log.Warn("failed to record pull failure", "site_id", site.ID, "error", recErr)
		}
		return result, fmt.Errorf("fetch modified since %s: %w", cursor.LastPulledAt.Format(time.RFC3339), err)
	}
	result.Fetched = len(posts)

	advanceTo := cursor.LastPulledAt
	boundary := append([]int64(nil), cursor.LastProcessedRemoteIDs...)
	blocked := false
	var lastApplied time.Time

	for i := range posts {
		post := posts[i]
		if cursor.SeenAtBoundary(post.ID, post.ModifiedAt) {
			continue
		}
		if ctx.Err() != nil {
			// Deadline hit: stop starting new items. Everything already
			// applied stays applied; the cursor covers exactly that.
			break
		}

		outcome, err := p.processOne(ctx, site, post)
		switch outcome {
		case outcomeApplied:
			result.Applied++
			lastApplied = post.ModifiedAt
		case outcomeConflict:
			result.Conflicts++
		case outcomeFailed:
			result.Errors = append(result.Errors, ItemError{
				ID:      fmt.Sprintf("remote:%d", post.ID),
				Code:    CodeInternal,
				Message: err.Error(),
			})
			// The failed item must be refetched next run, so the cursor
			// stops before it. Later items still get processed.
			blocked = true
		}

		if blocked || outcome == outcomeFailed {
			continue
		}
		if post.ModifiedAt.After(advanceTo) {
			advanceTo = post.ModifiedAt
			boundary = boundary[:0]
		}
		boundary = append(boundary, post.ID)
	}

	if !advanceTo.Equal(cursor.LastPulledAt) || len(boundary) != len(cursor.LastProcessedRemoteIDs) {
		newCursor := &models.SyncCursor{
			SiteID:                 site.ID,
			LastPulledAt:           advanceTo,
			LastProcessedRemoteIDs: boundary,
		}
		if err := p.store.CompareAndSetCursor(ctx, newCursor, cursor.LastPulledAt); err != nil {
			if errors.Is(err, store.ErrCursorConflict) {
				// A concurrent pull for this site won the race; its cursor
				// stands and our applied items are idempotent.
				p.log.Warn("cursor advanced concurrently, keeping theirs", "site_id", site.ID)
			} else {
				return result, fmt.Errorf("advance cursor: %w", err)
			}
		} else {
			result.NewCursor = advanceTo
		}
	}

	var lag time.Duration
	if !lastApplied.IsZero() {
		lag = time.Since(lastApplied)
	}
	ok := len(result.Errors) == 0
	if err := p.store.RecordPull(ctx, site.OrgID, site.ID, ok, lag); err != nil {
		p.log.Warn("failed to record pull counters", "site_id", site.ID, "error", err)
	}

	p.log.Info("incremental pull finished",
		"site_id", site.ID,
		"fetched", result.Fetched,
		"applied", result.Applied,
		"conflicts", result.Conflicts,
		"errors", len(result.Errors),
		"cursor", result.NewCursor.Format(time.RFC3339))
	return result, nil
}

// PullAllDue runs PullIncremental for every active site whose cursor is
// stale beyond MinPullInterval. One site's failure does not stop the rest.
func (p *Puller) PullAllDue(ctx context.Context, orgID string, limit int) ([]PullResult, error) {
	sites, err := p.store.ListActiveSites(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("list active sites: %w", err)
	}

	var results []PullResult
	for _, site := range sites {
		cursor, err := p.store.GetCursor(ctx, site.ID)
		if err != nil {
			p.log.Warn("skipping site, cursor unavailable", "site_id", site.ID, "error", err)
			continue
		}
		if !cursor.UpdatedAt.IsZero() && time.Since(cursor.UpdatedAt) < p.cfg.MinPullInterval {
			continue
		}

		res, err := p.PullIncremental(ctx, site, limit)
		if err != nil {
			p.log.Warn("pull failed", "site_id", site.ID, "error", err)
			res.Errors = append(res.Errors, ItemError{ID: site.ID, Code: CodeInternal, Message: err.Error()})
		}
		results = append(results, *res)
	}
	return results, nil
}

func (p *Puller) processOne(ctx context.Context, site models.Site, post remote.Post) (pullOutcome, error) {
	remoteMarker := post.RevisionMarker()

	item, err := p.store.GetContentByRemoteID(ctx, site.ID, post.ID)
	if errors.Is(err, store.ErrNotFound) {
		item = &models.ContentItem{
			OrgID:                    site.OrgID,
			SiteID:                   site.ID,
			Title:                    post.Title,
			Body:                     post.Content,
			Status:                   contentStatus(post.Status),
			SourceType:               models.SourcePage,
			RemotePostID:             post.ID,
			RemoteURL:                post.Link,
			RevisionMarker:           remoteMarker,
			LastSyncedRevisionMarker: remoteMarker,
			RemoteRevisionMarker:     remoteMarker,
			UpdatedAt:                time.Now(),
		}
		if err := p.store.UpsertContent(ctx, item); err != nil {
			return outcomeFailed, fmt.Errorf("create content from remote %d: %w", post.ID, err)
		}
		if err := p.queue.EnqueueContent(ctx, item); err != nil {
			p.log.Warn("reindex enqueue failed", "content_id", item.ID, "error", err)
		}
		return outcomeApplied, nil
	}
	if err != nil {
		return outcomeFailed, fmt.Errorf("lookup content for remote %d: %w", post.ID, err)
	}

	if remoteMarker == item.LastSyncedRevisionMarker {
		// Remote side hasn't actually moved past the baseline; nothing to
		// reconcile (typically the tail of our own earlier push).
		return outcomeSkipped, nil
	}

	local := models.ContentSnapshot{
		RevisionMarker: item.RevisionMarker,
		Title:          item.Title,
		Status:         item.Status,
		ModifiedAt:     item.UpdatedAt,
	}
	remoteSnap := models.ContentSnapshot{
		RevisionMarker: remoteMarker,
		Title:          post.Title,
		Body:           post.Content,
		Status:         contentStatus(post.Status),
		RemoteURL:      post.Link,
		ModifiedAt:     post.ModifiedAt,
	}
	rec, err := p.detector.Detect(ctx, item, local, remoteSnap, item.LastSyncedRevisionMarker)
	if err != nil {
		return outcomeFailed, err
	}
	if rec != nil {
		return outcomeConflict, nil
	}

	item.Title = post.Title
	item.Body = post.Content
	item.Status = contentStatus(post.Status)
	item.RemoteURL = post.Link
	item.RevisionMarker = remoteMarker
	item.LastSyncedRevisionMarker = remoteMarker
	item.RemoteRevisionMarker = remoteMarker
	item.UpdatedAt = time.Now()
	if err := p.store.UpsertContent(ctx, item); err != nil {
		return outcomeFailed, fmt.Errorf("apply remote %d: %w", post.ID, err)
	}
	if err := p.queue.EnqueueContent(ctx, item); err != nil {
		p.log.Warn("reindex enqueue failed", "content_id", item.ID, "error", err)
	}
	return outcomeApplied, nil
}

func contentStatus(wp string) models.ContentStatus {
	if wp == "publish" {
		return models.ContentStatusPublished
	}
	return models.ContentStatusDraft
}
