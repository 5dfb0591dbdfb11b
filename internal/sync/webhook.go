package sync

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/store"
)

// InboundChange is the webhook payload sent by the companion plugin when
// content changes on the WordPress side. OriginToken, when the plugin
// carries it back from a prior push, makes loop suppression an exact match
// instead of a timing heuristic.
type InboundChange struct {
	APIKey       string    `json:"api_key"`
	ContentID    string    `json:"content_id,omitempty"`
	RemotePostID int64     `json:"post_id"`
	RemoteURL    string    `json:"url"`
	Status       string    `json:"status"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	ModifiedAt   time.Time `json:"modified_at"`
	OriginToken  string    `json:"origin_token,omitempty"`
}

// signedFields is the canonical subset of an InboundChange covered by the
// HMAC signature: exactly the mutable fields, in this field order.
type signedFields struct {
	RemotePostID int64  `json:"post_id"`
	RemoteURL    string `json:"url"`
	Status       string `json:"status"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	ModifiedAt   string `json:"modified_at"`
}

// IngestResult reports what happened to an inbound webhook.
type IngestResult struct {
	Accepted  bool   `json:"accepted"`
	Applied   bool   `json:"applied"`
	Reason    string `json:"reason"`
	ContentID string `json:"content_id,omitempty"`
}

// Ingest reasons.
const (
	ReasonApplied        = "applied"
	ReasonCreated        = "created"
	ReasonLoopSuppressed = "loop-suppressed"
	ReasonAlreadySynced  = "already-synced"
	ReasonConflict       = "conflict"
)

// Ingestor authenticates inbound change webhooks and decides whether they
// represent genuine external edits or echoes of a CMS-initiated push.
type Ingestor struct {
	store      store.Store
	detector   *Detector
	selfWrites *SelfWrites
	queue      Enqueuer
	log        *slog.Logger
}

// NewIngestor creates the webhook ingestion service.
func NewIngestor(st store.Store, detector *Detector, selfWrites *SelfWrites, queue Enqueuer, log *slog.Logger) *Ingestor {
	return &Ingestor{
		store:      st,
		detector:   detector,
		selfWrites: selfWrites,
		queue:      queue,
		log:        log,
	}
}

// Ingest processes one inbound change notification.
//
// The step order is load-bearing and must not change: authenticate, then
// verify signature, then scope-check the content against the credential's
// site, then loop-check, then conflict-check. Scope must hold before any
// content-id-keyed lookup is trusted, and loop suppression must run before
// conflict detection so self-echoes never produce spurious conflicts.
func (g *Ingestor) Ingest(ctx context.Context, payload InboundChange, signature string) (*IngestResult, error) {
	// 1. Authenticate by API key.
	plugin, err := g.store.GetPluginByAPIKey(ctx, payload.APIKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("resolve plugin config: %w", err)
	}
	if !plugin.Active {
		return nil, ErrUnauthenticated
	}

	// 2. Verify HMAC when a shared secret is configured.
	if plugin.HMACSecret != "" {
		expected := SignChange(payload, plugin.HMACSecret)
		if !hmac.Equal([]byte(expected), []byte(signature)) {
			return nil, ErrInvalidSignature
		}
	}

	// 3. Resolve the target content and verify it belongs to the site
	// bound to this plugin config.
	item, err := g.resolveContent(ctx, plugin, payload)
	if err != nil {
		return nil, err
	}

	remoteMarker := payload.ModifiedAt.UTC().Format(time.RFC3339)

	if item == nil {
		// Unknown remote post: a genuinely new item created on the
		// WordPress side.
		item = &models.ContentItem{
			OrgID:                    plugin.OrgID,
			SiteID:                   plugin.SiteID,
			Title:                    payload.Title,
			Body:                     payload.Content,
			Status:                   contentStatus(payload.Status),
			SourceType:               models.SourcePage,
			RemotePostID:             payload.RemotePostID,
			RemoteURL:                payload.RemoteURL,
			RevisionMarker:           remoteMarker,
			LastSyncedRevisionMarker: remoteMarker,
			RemoteRevisionMarker:     remoteMarker,
			UpdatedAt:                time.Now(),
		}
		if err := g.store.UpsertContent(ctx, item); err != nil {
			return nil, fmt.Errorf("create content from webhook: %w", err)
		}
		if err := g.queue.EnqueueContent(ctx, item); err != nil {
			g.log.Warn("reindex enqueue failed", "content_id", item.ID, "error", err)
		}
		g.log.Info("webhook created content", "content_id", item.ID, "site_id", plugin.SiteID)
		return &IngestResult{Accepted: true, Applied: true, Reason: ReasonCreated, ContentID: item.ID}, nil
	}

	// 4. Loop detection: discard echoes of our own recent push without
	// mutating state or enqueuing a reindex job.
	if g.selfWrites.Match(item.ID, payload.OriginToken, remoteMarker) {
		g.log.Debug("webhook suppressed as push echo", "content_id", item.ID)
		return &IngestResult{Accepted: true, Applied: false, Reason: ReasonLoopSuppressed, ContentID: item.ID}, nil
	}

	// 5. Genuine external change: conflict-check, then apply.
	if remoteMarker == item.LastSyncedRevisionMarker {
		// Stale or duplicate notification; the baseline already covers it.
		// Reported distinctly from loop suppression so echo-guard metrics
		// stay clean.
		return &IngestResult{Accepted: true, Applied: false, Reason: ReasonAlreadySynced, ContentID: item.ID}, nil
	}

	local := models.ContentSnapshot{
		RevisionMarker: item.RevisionMarker,
		Title:          item.Title,
		Status:         item.Status,
		ModifiedAt:     item.UpdatedAt,
	}
	remoteSnap := models.ContentSnapshot{
		RevisionMarker: remoteMarker,
		Title:          payload.Title,
		Body:           payload.Content,
		Status:         contentStatus(payload.Status),
		RemoteURL:      payload.RemoteURL,
		ModifiedAt:     payload.ModifiedAt,
	}
	rec, err := g.detector.Detect(ctx, item, local, remoteSnap, item.LastSyncedRevisionMarker)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return &IngestResult{Accepted: true, Applied: false, Reason: ReasonConflict, ContentID: item.ID}, nil
	}

	item.Title = payload.Title
	item.Body = payload.Content
	item.Status = contentStatus(payload.Status)
	item.RemoteURL = payload.RemoteURL
	item.RevisionMarker = remoteMarker
	item.LastSyncedRevisionMarker = remoteMarker
	item.RemoteRevisionMarker = remoteMarker
	item.UpdatedAt = time.Now()
	if err := g.store.UpsertContent(ctx, item); err != nil {
		return nil, fmt.Errorf("apply webhook change: %w", err)
	}
	if err := g.queue.EnqueueContent(ctx, item); err != nil {
		g.log.Warn("reindex enqueue failed", "content_id", item.ID, "error", err)
	}

	if err := g.store.RecordPull(ctx, plugin.OrgID, plugin.SiteID, true, time.Since(payload.ModifiedAt)); err != nil {
		g.log.Warn("failed to record webhook counters", "site_id", plugin.SiteID, "error", err)
	}

	g.log.Info("webhook applied", "content_id", item.ID, "site_id", plugin.SiteID)
	return &IngestResult{Accepted: true, Applied: true, Reason: ReasonApplied, ContentID: item.ID}, nil
}

// resolveContent finds the content item a webhook refers to. Returns nil
// without error when the remote post is unknown (new external content).
func (g *Ingestor) resolveContent(ctx context.Context, plugin *models.PluginConfig, payload InboundChange) (*models.ContentItem, error) {
	if payload.ContentID != "" {
		item, err := g.store.GetContent(ctx, payload.ContentID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("content %s: %w", payload.ContentID, ErrTenantMismatch)
		}
		if err != nil {
			return nil, fmt.Errorf("get content %s: %w", payload.ContentID, err)
		}
		if item.SiteID != plugin.SiteID {
			return nil, fmt.Errorf("content %s: %w", payload.ContentID, ErrTenantMismatch)
		}
		return item, nil
	}

	item, err := g.store.GetContentByRemoteID(ctx, plugin.SiteID, payload.RemotePostID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup content for remote %d: %w", payload.RemotePostID, err)
	}
	return item, nil
}

// SignChange computes the hex HMAC-SHA256 signature over the canonical JSON
// of a change's mutable fields. The companion plugin computes the same.
func SignChange(payload InboundChange, secret string) string {
	canonical, _ := json.Marshal(signedFields{
		RemotePostID: payload.RemotePostID,
		RemoteURL:    payload.RemoteURL,
		Status:       payload.Status,
		Title:        payload.Title,
		Content:      payload.Content,
		ModifiedAt:   payload.ModifiedAt.UTC().Format(time.RFC3339),
	})
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil))
}
