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
)

// PushAction is the remote mutation a push performs.
type PushAction string

const (
	ActionCreate  PushAction = "create"
	ActionUpdate  PushAction = "update"
	ActionPublish PushAction = "publish"
)

// PushRequest identifies one content push.
type PushRequest struct {
	OrgID         string     `json:"org_id"`
	SiteID        string     `json:"site_id"`
	ContentID     string     `json:"content_id"`
	Action        PushAction `json:"action"`
	CorrelationID string     `json:"correlation_id,omitempty"`
}

// PushResult reports the outcome of a push. A push that found independent
// remote edits applies nothing: Success is false, Conflict is true and
// ConflictID names the parked record awaiting resolution.
type PushResult struct {
	Success      bool   `json:"success"`
	NoOp         bool   `json:"no_op,omitempty"`
	Conflict     bool   `json:"conflict,omitempty"`
	ConflictID   string `json:"conflict_id,omitempty"`
	RemotePostID int64  `json:"remote_post_id,omitempty"`
	RemoteURL    string `json:"remote_url,omitempty"`
}

// PusherConfig tunes the push service.
type PusherConfig struct {
	RemoteTimeout time.Duration
}

// Pusher propagates local content mutations to the remote site. Pushes are
// idempotent per content revision: an unchanged item short-circuits, and a
// create persists the returned remote id before the call is considered
// successful so a retry can never create a duplicate remote post. Before
// mutating an existing remote post the pusher inspects its current revision;
// an independent remote edit parks the push as a conflict instead of
// clobbering it.
type Pusher struct {
	store      store.Store
	remotes    remote.Factory
	detector   *Detector
	selfWrites *SelfWrites
	cfg        PusherConfig
	log        *slog.Logger
}

// NewPusher creates the push service.
func NewPusher(st store.Store, remotes remote.Factory, detector *Detector, selfWrites *SelfWrites, cfg PusherConfig, log *slog.Logger) *Pusher {
	return &Pusher{
		store:      st,
		remotes:    remotes,
		detector:   detector,
		selfWrites: selfWrites,
		cfg:        cfg,
		log:        log,
	}
}

// PushPage pushes one content item to its site.
func (p *Pusher) PushPage(ctx context.Context, req PushRequest) (*PushResult, error) {
	site, err := p.store.GetSite(ctx, req.SiteID)
	if err != nil {
		return nil, fmt.Errorf("get site %s: %w", req.SiteID, err)
	}
	if site.OrgID != req.OrgID {
		return nil, fmt.Errorf("site %s: %w", req.SiteID, ErrTenantMismatch)
	}

	item, err := p.store.GetContent(ctx, req.ContentID)
	if err != nil {
		return nil, fmt.Errorf("get content %s: %w", req.ContentID, err)
	}
	if item.SiteID != site.ID || item.OrgID != req.OrgID {
		return nil, fmt.Errorf("content %s: %w", req.ContentID, ErrTenantMismatch)
	}

	// Idempotent short-circuit: nothing changed locally since the last
	// reconciliation, so there is nothing to push. A create with no remote
	// binding yet still goes through.
	if item.RevisionMarker == item.LastSyncedRevisionMarker &&
		!(req.Action == ActionCreate && item.RemotePostID == 0) {
		p.log.Debug("push no-op, revision already synced", "content_id", item.ID)
		return &PushResult{Success: true, NoOp: true, RemotePostID: item.RemotePostID, RemoteURL: item.RemoteURL}, nil
	}

	client := p.remotes(site.BaseURL, site.CredentialRef)
	pushCtx, cancel := context.WithTimeout(ctx, p.cfg.RemoteTimeout)
	defer cancel()

	// Divergence gate: a push that would mutate an existing remote post
	// first verifies the remote side has not moved past the shared baseline.
	if item.RemotePostID != 0 {
		rec, err := p.checkRemoteDivergence(pushCtx, client, item)
		if err != nil {
			if recErr := p.store.RecordPush(ctx, site.OrgID, site.ID, false); recErr != nil {
				p.log.Warn("failed to record push failure", "site_id", site.ID, "error", recErr)
			}
			return nil, err
		}
		if rec != nil {
			p.log.Warn("push parked, remote edited independently",
				"content_id", item.ID,
				"site_id", site.ID,
				"conflict_id", rec.ID)
			return &PushResult{Conflict: true, ConflictID: rec.ID, RemotePostID: item.RemotePostID, RemoteURL: item.RemoteURL}, nil
		}
	}

	var post *remote.Post
	switch req.Action {
	case ActionCreate:
		post, err = p.create(pushCtx, client, item)
	case ActionUpdate:
		post, err = p.update(pushCtx, client, item)
	case ActionPublish:
		post, err = p.publish(pushCtx, client, item)
	default:
		return nil, fmt.Errorf("unknown push action %q", req.Action)
	}
	if err != nil {
		if recErr := p.store.RecordPush(ctx, site.OrgID, site.ID, false); recErr != nil {
			p.log.Warn("failed to record push failure", "site_id", site.ID, "error", recErr)
		}
		return nil, err
	}

	// Reconciliation point: the pushed revision is now the shared baseline,
	// and the remote marker the push produced is the remote baseline.
	if err := p.store.UpdateMarkers(ctx, item.ID, item.RevisionMarker, item.RevisionMarker, post.RevisionMarker()); err != nil {
		return nil, fmt.Errorf("update markers after push: %w", err)
	}

	// Stamp before returning so the webhook echo can be matched even when
	// it races the response.
	p.selfWrites.Stamp(item.ID, req.CorrelationID, post.RevisionMarker())

	if err := p.store.RecordPush(ctx, site.OrgID, site.ID, true); err != nil {
		p.log.Warn("failed to record push counters", "site_id", site.ID, "error", err)
	}

	p.log.Info("push succeeded",
		"content_id", item.ID,
		"site_id", site.ID,
		"action", req.Action,
		"remote_post_id", post.ID)
	return &PushResult{Success: true, RemotePostID: post.ID, RemoteURL: post.Link}, nil
}

// checkRemoteDivergence fetches the current remote post and decides whether
// it was edited independently since the last reconciliation. The local side
// has already been established as moved (the no-op short-circuit ran), so a
// moved remote means both sides diverged: the conflict is persisted and
// returned, and the caller must not push.
//
// "Not moved" means the current remote marker equals the stored remote
// baseline, or matches a recent self-write stamp (the tail of our own push
// before its markers landed).
func (p *Pusher) checkRemoteDivergence(ctx context.Context, client remote.Client, item *models.ContentItem) (*models.ConflictRecord, error) {
	current, err := client.GetPost(ctx, item.RemotePostID)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, fmt.Errorf("remote post %d: %w", item.RemotePostID, ErrRemoteNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("inspect remote post %d: %w", item.RemotePostID, err)
	}

	marker := current.RevisionMarker()
	if p.selfWrites.Match(item.ID, "", marker) {
		return nil, nil
	}
	baseline := item.RemoteRevisionMarker
	if baseline == "" {
		// Pull- and webhook-originated reconciliations store the remote
		// marker as the shared baseline.
		baseline = item.LastSyncedRevisionMarker
	}
	if marker == baseline {
		return nil, nil
	}

	local := models.ContentSnapshot{
		RevisionMarker: item.RevisionMarker,
		Title:          item.Title,
		Status:         item.Status,
		ModifiedAt:     item.UpdatedAt,
	}
	remoteSnap := models.ContentSnapshot{
		RevisionMarker: marker,
		Title:          current.Title,
		Body:           current.Content,
		Status:         contentStatus(current.Status),
		RemoteURL:      current.Link,
		ModifiedAt:     current.ModifiedAt,
	}
	return p.detector.record(ctx, item, local, remoteSnap, baseline)
}

func (p *Pusher) create(ctx context.Context, client remote.Client, item *models.ContentItem) (*remote.Post, error) {
	if item.RemotePostID != 0 {
		// Already bound; a repeated create behaves as an update.
		return p.update(ctx, client, item)
	}

	post, err := client.CreatePost(ctx, remote.Post{
		Title:   item.Title,
		Content: item.Body,
		Status:  wpStatus(item.Status),
	})
	if err != nil {
		return nil, fmt.Errorf("create remote post: %w", err)
	}

	// Idempotency boundary: the remote id must be durable before this call
	// reports success, otherwise a retry would create a duplicate post.
	if err := p.store.SetRemoteBinding(ctx, item.ID, post.ID, post.Link); err != nil {
		return nil, fmt.Errorf("persist remote binding %d: %w", post.ID, err)
	}
	item.RemotePostID = post.ID
	item.RemoteURL = post.Link
	return post, nil
}

func (p *Pusher) update(ctx context.Context, client remote.Client, item *models.ContentItem) (*remote.Post, error) {
	if item.RemotePostID == 0 {
		return nil, fmt.Errorf("content %s: %w", item.ID, ErrNotPushed)
	}
	post, err := client.UpdatePost(ctx, item.RemotePostID, remote.Post{
		Title:   item.Title,
		Content: item.Body,
	})
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, fmt.Errorf("remote post %d: %w", item.RemotePostID, ErrRemoteNotFound)
		}
		return nil, fmt.Errorf("update remote post %d: %w", item.RemotePostID, err)
	}
	return post, nil
}

func (p *Pusher) publish(ctx context.Context, client remote.Client, item *models.ContentItem) (*remote.Post, error) {
	if item.RemotePostID == 0 {
		return nil, fmt.Errorf("content %s: %w", item.ID, ErrNotPushed)
	}
	post, err := client.PublishPost(ctx, item.RemotePostID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			return nil, fmt.Errorf("remote post %d: %w", item.RemotePostID, ErrRemoteNotFound)
		}
		return nil, fmt.Errorf("publish remote post %d: %w", item.RemotePostID, err)
	}

	item.Status = models.ContentStatusPublished
	item.UpdatedAt = time.Now()
	if err := p.store.UpsertContent(ctx, item); err != nil {
		return nil, fmt.Errorf("persist published status: %w", err)
	}
	return post, nil
}

func wpStatus(s models.ContentStatus) string {
	if s == models.ContentStatusPublished {
		return "publish"
	}
	return "draft"
}
