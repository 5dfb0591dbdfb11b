package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/surrealdb/surrealdb.go"

	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/store"
)

// Compile-time check that Client implements the full store surface.
var _ store.Store = (*Client)(nil)

// Domain models carry plain string ids, so every SELECT aliases
// record::id(id) AS id instead of exposing SurrealDB record ids. Tables
// keyed by site id (sync_cursor, plugin_config, sync_counter) omit the id
// entirely and rely on the site_id field.

// rows unwraps the first statement's result set from a query response.
func rows[T any](results *[]surrealdb.QueryResult[[]T]) []T {
	if results == nil || len(*results) == 0 {
		return nil
	}
	return (*results)[0].Result
}

// --- sites ---

func (c *Client) GetSite(ctx context.Context, id string) (*models.Site, error) {
	results, err := surrealdb.Query[[]models.Site](ctx, c.db, `
		SELECT *, record::id(id) AS id FROM type::record("site", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get site: %w", wrapQueryError(err))
	}
	sites := rows(results)
	if len(sites) == 0 {
		return nil, fmt.Errorf("site %s: %w", id, store.ErrNotFound)
	}
	return &sites[0], nil
}

func (c *Client) ListSites(ctx context.Context, orgID string) ([]models.Site, error) {
	return c.listSites(ctx, orgID, false)
}

func (c *Client) ListActiveSites(ctx context.Context, orgID string) ([]models.Site, error) {
	return c.listSites(ctx, orgID, true)
}

func (c *Client) listSites(ctx context.Context, orgID string, activeOnly bool) ([]models.Site, error) {
	where := []string{"true"}
	vars := map[string]any{}
	if activeOnly {
		where = append(where, "active = true")
	}
	if orgID != "" {
		where = append(where, "org_id = $org_id")
		vars["org_id"] = orgID
	}

	sql := fmt.Sprintf(`
		SELECT *, record::id(id) AS id FROM site
		WHERE %s
		ORDER BY id
	`, strings.Join(where, " AND "))

	results, err := surrealdb.Query[[]models.Site](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", wrapQueryError(err))
	}
	return rows(results), nil
}

// --- content ---

func (c *Client) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	results, err := surrealdb.Query[[]models.ContentItem](ctx, c.db, `
		SELECT *, record::id(id) AS id FROM type::record("content_item", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get content: %w", wrapQueryError(err))
	}
	items := rows(results)
	if len(items) == 0 {
		return nil, fmt.Errorf("content %s: %w", id, store.ErrNotFound)
	}
	return &items[0], nil
}

func (c *Client) GetContentByRemoteID(ctx context.Context, siteID string, remotePostID int64) (*models.ContentItem, error) {
	results, err := surrealdb.Query[[]models.ContentItem](ctx, c.db, `
		SELECT *, record::id(id) AS id FROM content_item
		WHERE site_id = $site_id AND remote_post_id = $remote_post_id
		LIMIT 1
	`, map[string]any{"site_id": siteID, "remote_post_id": remotePostID})
	if err != nil {
		return nil, fmt.Errorf("get content by remote id: %w", wrapQueryError(err))
	}
	items := rows(results)
	if len(items) == 0 {
		return nil, fmt.Errorf("remote post %d on %s: %w", remotePostID, siteID, store.ErrNotFound)
	}
	return &items[0], nil
}

func (c *Client) UpsertContent(ctx context.Context, item *models.ContentItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("content_item", $id) SET
			org_id = $org_id,
			site_id = $site_id,
			title = $title,
			body = $body,
			status = $status,
			source_type = $source_type,
			remote_post_id = $remote_post_id,
			remote_url = $remote_url,
			revision_marker = $revision_marker,
			last_synced_revision_marker = $last_synced_revision_marker,
			remote_revision_marker = $remote_revision_marker,
			last_embedded_hash = $last_embedded_hash,
			updated_at = time::now()
	`, map[string]any{
		"id":                          item.ID,
		"org_id":                      item.OrgID,
		"site_id":                     item.SiteID,
		"title":                       item.Title,
		"body":                        item.Body,
		"status":                      string(item.Status),
		"source_type":                 string(item.SourceType),
		"remote_post_id":              item.RemotePostID,
		"remote_url":                  item.RemoteURL,
		"revision_marker":             item.RevisionMarker,
		"last_synced_revision_marker": item.LastSyncedRevisionMarker,
		"remote_revision_marker":      item.RemoteRevisionMarker,
		"last_embedded_hash":          item.LastEmbeddedHash,
	})
	if err != nil {
		return fmt.Errorf("upsert content: %w", wrapQueryError(err))
	}
	return nil
}

// updateContent wraps the UPDATE-or-not-found pattern shared by the partial
// content writers below.
func (c *Client) updateContent(ctx context.Context, op, set string, vars map[string]any) error {
	sql := fmt.Sprintf(`UPDATE type::record("content_item", $id) SET %s RETURN AFTER`, set)
	results, err := surrealdb.Query[[]models.ContentItem](ctx, c.db, sql, vars)
	if err != nil {
		return fmt.Errorf("%s: %w", op, wrapQueryError(err))
	}
	if len(rows(results)) == 0 {
		return fmt.Errorf("%s: content %v: %w", op, vars["id"], store.ErrNotFound)
	}
	return nil
}

func (c *Client) UpdateMarkers(ctx context.Context, id, revisionMarker, lastSyncedMarker, remoteMarker string) error {
	return c.updateContent(ctx, "update markers", `
		revision_marker = $revision_marker,
		last_synced_revision_marker = $last_synced_revision_marker,
		remote_revision_marker = $remote_revision_marker,
		updated_at = time::now()
	`, map[string]any{
		"id":                          id,
		"revision_marker":             revisionMarker,
		"last_synced_revision_marker": lastSyncedMarker,
		"remote_revision_marker":      remoteMarker,
	})
}

func (c *Client) SetRemoteBinding(ctx context.Context, id string, remotePostID int64, remoteURL string) error {
	return c.updateContent(ctx, "set remote binding", `
		remote_post_id = $remote_post_id,
		remote_url = $remote_url,
		updated_at = time::now()
	`, map[string]any{
		"id":             id,
		"remote_post_id": remotePostID,
		"remote_url":     remoteURL,
	})
}

func (c *Client) SetEmbeddedHash(ctx context.Context, id, hash string) error {
	return c.updateContent(ctx, "set embedded hash", `
		last_embedded_hash = $hash
	`, map[string]any{"id": id, "hash": hash})
}

// StoreEmbedding writes the vector onto the content record so the HNSW
// index picks it up. Satisfies reindex.Sink.
func (c *Client) StoreEmbedding(ctx context.Context, item *models.ContentItem, vector []float32) error {
	return c.updateContent(ctx, "store embedding", `
		embedding = $vector
	`, map[string]any{"id": item.ID, "vector": vector})
}

func (c *Client) ListDrifted(ctx context.Context, limit int) ([]models.ContentItem, error) {
	// Drift = current body hash differs from the hash recorded at the last
	// successful embedding. Never-embedded items ("" hash) count as drifted.
	results, err := surrealdb.Query[[]models.ContentItem](ctx, c.db, `
		SELECT *, record::id(id) AS id FROM content_item
		WHERE crypto::sha256(body) != last_embedded_hash
		ORDER BY id
		LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list drifted: %w", wrapQueryError(err))
	}
	return rows(results), nil
}

// --- cursors ---

func (c *Client) GetCursor(ctx context.Context, siteID string) (*models.SyncCursor, error) {
	results, err := surrealdb.Query[[]models.SyncCursor](ctx, c.db, `
		SELECT * OMIT id FROM type::record("sync_cursor", $site_id)
	`, map[string]any{"site_id": siteID})
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", wrapQueryError(err))
	}
	cursors := rows(results)
	if len(cursors) == 0 {
		return &models.SyncCursor{SiteID: siteID}, nil
	}
	return &cursors[0], nil
}

func (c *Client) CompareAndSetCursor(ctx context.Context, cursor *models.SyncCursor, prev time.Time) error {
	ids := cursor.LastProcessedRemoteIDs
	if ids == nil {
		ids = []int64{}
	}

	// The watermark check and the write must be one atomic step, otherwise
	// two concurrent pulls for the same site could both advance the cursor.
	// A losing writer sees the THROW as store.ErrCursorConflict.
	_, err := surrealdb.Query[any](ctx, c.db, `
		BEGIN TRANSACTION;
		LET $current = (SELECT VALUE last_pulled_at FROM ONLY type::record("sync_cursor", $site_id));
		IF $current != NONE AND $current != $prev {
			THROW "cursor conflict";
		};
		IF $current == NONE AND $has_prev {
			THROW "cursor conflict";
		};
		UPSERT type::record("sync_cursor", $site_id) SET
			site_id = $site_id,
			last_pulled_at = $last_pulled_at,
			last_processed_remote_ids = $remote_ids,
			updated_at = time::now();
		COMMIT TRANSACTION;
	`, map[string]any{
		"site_id":        cursor.SiteID,
		"prev":           prev,
		"has_prev":       !prev.IsZero(),
		"last_pulled_at": cursor.LastPulledAt,
		"remote_ids":     ids,
	})
	if err != nil {
		return fmt.Errorf("compare-and-set cursor: %w", wrapQueryError(err))
	}
	return nil
}

// --- plugins ---

func (c *Client) GetPluginByAPIKey(ctx context.Context, apiKey string) (*models.PluginConfig, error) {
	results, err := surrealdb.Query[[]models.PluginConfig](ctx, c.db, `
		SELECT * OMIT id FROM plugin_config WHERE api_key = $api_key LIMIT 1
	`, map[string]any{"api_key": apiKey})
	if err != nil {
		return nil, fmt.Errorf("get plugin by api key: %w", wrapQueryError(err))
	}
	plugins := rows(results)
	if len(plugins) == 0 {
		return nil, fmt.Errorf("plugin config: %w", store.ErrNotFound)
	}
	return &plugins[0], nil
}

// --- conflicts ---

func (c *Client) SaveConflict(ctx context.Context, rec *models.ConflictRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()[:8]
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("conflict", $id) SET
			org_id = $org_id,
			site_id = $site_id,
			content_id = $content_id,
			local_snapshot = $local_snapshot,
			remote_snapshot = $remote_snapshot,
			status = $status,
			resolution_note = $resolution_note,
			detected_at = $detected_at,
			resolved_at = $resolved_at
	`, map[string]any{
		"id":              rec.ID,
		"org_id":          rec.OrgID,
		"site_id":         rec.SiteID,
		"content_id":      rec.ContentID,
		"local_snapshot":  rec.LocalSnapshot,
		"remote_snapshot": rec.RemoteSnapshot,
		"status":          string(rec.Status),
		"resolution_note": rec.ResolutionNote,
		"detected_at":     rec.DetectedAt,
		"resolved_at":     rec.ResolvedAt,
	})
	if err != nil {
		return fmt.Errorf("save conflict: %w", wrapQueryError(err))
	}
	return nil
}

func (c *Client) OpenConflicts(ctx context.Context, orgID, siteID string) ([]models.ConflictRecord, error) {
	clauses := ""
	vars := map[string]any{}
	if orgID != "" {
		clauses += " AND org_id = $org_id"
		vars["org_id"] = orgID
	}
	if siteID != "" {
		clauses += " AND site_id = $site_id"
		vars["site_id"] = siteID
	}

	sql := fmt.Sprintf(`
		SELECT *, record::id(id) AS id FROM conflict
		WHERE status = "open" %s
		ORDER BY detected_at
	`, clauses)

	results, err := surrealdb.Query[[]models.ConflictRecord](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("open conflicts: %w", wrapQueryError(err))
	}
	return rows(results), nil
}

func (c *Client) CountOpenConflicts(ctx context.Context, orgID, siteID string) (int, error) {
	clauses := ""
	vars := map[string]any{}
	if orgID != "" {
		clauses += " AND org_id = $org_id"
		vars["org_id"] = orgID
	}
	if siteID != "" {
		clauses += " AND site_id = $site_id"
		vars["site_id"] = siteID
	}

	sql := fmt.Sprintf(`
		SELECT count() AS count FROM conflict
		WHERE status = "open" %s
		GROUP ALL
	`, clauses)

	results, err := surrealdb.Query[[]struct {
		Count int `json:"count"`
	}](ctx, c.db, sql, vars)
	if err != nil {
		return 0, fmt.Errorf("count open conflicts: %w", wrapQueryError(err))
	}
	counts := rows(results)
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0].Count, nil
}

func (c *Client) ResolveConflict(ctx context.Context, id, note string) error {
	results, err := surrealdb.Query[[]models.ConflictRecord](ctx, c.db, `
		UPDATE type::record("conflict", $id) SET
			status = "resolved",
			resolution_note = $note,
			resolved_at = time::now()
		RETURN AFTER
	`, map[string]any{"id": id, "note": note})
	if err != nil {
		return fmt.Errorf("resolve conflict: %w", wrapQueryError(err))
	}
	if len(rows(results)) == 0 {
		return fmt.Errorf("conflict %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// --- embedding jobs ---

// enqueueOutcome is the shape returned by the EnqueueJob transaction.
type enqueueOutcome struct {
	Created bool                 `json:"created"`
	Job     *models.EmbeddingJob `json:"job"`
}

func (c *Client) EnqueueJob(ctx context.Context, job *models.EmbeddingJob) (bool, *models.EmbeddingJob, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()[:8]
	}

	// Check-and-insert runs in one transaction so concurrent enqueues for
	// the same coalesce key cannot both create a job.
	results, err := surrealdb.Query[enqueueOutcome](ctx, c.db, `
		BEGIN TRANSACTION;
		LET $existing = (SELECT *, record::id(id) AS id FROM embedding_job
			WHERE coalesce_key = $key AND status IN ["queued", "processing"]
			LIMIT 1);
		IF array::len($existing) > 0 {
			RETURN { created: false, job: $existing[0] };
		} ELSE {
			CREATE type::record("embedding_job", $id) SET
				org_id = $org_id,
				site_id = $site_id,
				source_type = $source_type,
				source_id = $source_id,
				content_hash = $content_hash,
				status = "queued",
				enqueued_at = time::now();
			RETURN { created: true, job: NONE };
		};
		COMMIT TRANSACTION;
	`, map[string]any{
		"id":           job.ID,
		"key":          job.CoalesceKey(),
		"org_id":       job.OrgID,
		"site_id":      job.SiteID,
		"source_type":  string(job.SourceType),
		"source_id":    job.SourceID,
		"content_hash": job.ContentHash,
	})
	if err != nil {
		return false, nil, fmt.Errorf("enqueue job: %w", wrapQueryError(err))
	}

	// The LET statement yields an empty result; take the last one, which
	// carries the IF's return value.
	if results == nil || len(*results) == 0 {
		return false, nil, fmt.Errorf("enqueue job: empty result")
	}
	outcome := (*results)[len(*results)-1].Result
	if outcome.Created {
		job.Status = models.JobQueued
		return true, nil, nil
	}
	return false, outcome.Job, nil
}

func (c *Client) UpdateJobHash(ctx context.Context, id, hash string) error {
	results, err := surrealdb.Query[[]models.EmbeddingJob](ctx, c.db, `
		UPDATE type::record("embedding_job", $id) SET content_hash = $hash RETURN AFTER
	`, map[string]any{"id": id, "hash": hash})
	if err != nil {
		return fmt.Errorf("update job hash: %w", wrapQueryError(err))
	}
	if len(rows(results)) == 0 {
		return fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (c *Client) ListQueuedJobs(ctx context.Context, limit int) ([]models.EmbeddingJob, error) {
	results, err := surrealdb.Query[[]models.EmbeddingJob](ctx, c.db, `
		SELECT *, record::id(id) AS id FROM embedding_job
		WHERE status = "queued"
		ORDER BY enqueued_at
		LIMIT $limit
	`, map[string]any{"limit": limit})
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", wrapQueryError(err))
	}
	return rows(results), nil
}

func (c *Client) MarkJob(ctx context.Context, id string, status models.JobStatus, errMsg string) error {
	results, err := surrealdb.Query[[]models.EmbeddingJob](ctx, c.db, `
		UPDATE type::record("embedding_job", $id) SET
			status = $status,
			error = $error,
			completed_at = IF $status IN ["done", "failed"] { time::now() } ELSE { NONE }
		RETURN AFTER
	`, map[string]any{"id": id, "status": string(status), "error": errMsg})
	if err != nil {
		return fmt.Errorf("mark job: %w", wrapQueryError(err))
	}
	if len(rows(results)) == 0 {
		return fmt.Errorf("job %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// --- counters ---

func (c *Client) GetCounters(ctx context.Context, siteID string) (*models.SiteCounters, error) {
	results, err := surrealdb.Query[[]models.SiteCounters](ctx, c.db, `
		SELECT * OMIT id FROM type::record("sync_counter", $site_id)
	`, map[string]any{"site_id": siteID})
	if err != nil {
		return nil, fmt.Errorf("get counters: %w", wrapQueryError(err))
	}
	counters := rows(results)
	if len(counters) == 0 {
		return &models.SiteCounters{SiteID: siteID}, nil
	}
	return &counters[0], nil
}

func (c *Client) RecordPull(ctx context.Context, orgID, siteID string, ok bool, lag time.Duration) error {
	lagMs := int64(0)
	if ok && lag > 0 {
		lagMs = lag.Milliseconds()
	}
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("sync_counter", $site_id) SET
			site_id = $site_id,
			org_id = $org_id,
			pull_successes += IF $ok { 1 } ELSE { 0 },
			pull_failures += IF $ok { 0 } ELSE { 1 },
			last_success_at = IF $ok { time::now() } ELSE { last_success_at },
			total_lag_ms += $lag_ms,
			lag_samples += IF $lag_ms > 0 { 1 } ELSE { 0 }
	`, map[string]any{"site_id": siteID, "org_id": orgID, "ok": ok, "lag_ms": lagMs})
	if err != nil {
		return fmt.Errorf("record pull: %w", wrapQueryError(err))
	}
	return nil
}

func (c *Client) RecordPush(ctx context.Context, orgID, siteID string, ok bool) error {
	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("sync_counter", $site_id) SET
			site_id = $site_id,
			org_id = $org_id,
			push_successes += IF $ok { 1 } ELSE { 0 },
			push_failures += IF $ok { 0 } ELSE { 1 },
			last_success_at = IF $ok { time::now() } ELSE { last_success_at }
	`, map[string]any{"site_id": siteID, "org_id": orgID, "ok": ok})
	if err != nil {
		return fmt.Errorf("record push: %w", wrapQueryError(err))
	}
	return nil
}
