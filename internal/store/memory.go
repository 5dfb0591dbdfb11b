package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pressbridge/pressbridge/internal/models"
)

// maxBoundaryIDs bounds the remote-id set kept on a cursor. Pages are capped
// well below this, so the set only ever holds ids from one boundary instant.
const maxBoundaryIDs = 256

// Memory is an in-memory Store. It backs unit tests and single-process
// deployments without a database.
type Memory struct {
	mu        sync.Mutex
	sites     map[string]models.Site
	content   map[string]models.ContentItem
	cursors   map[string]models.SyncCursor
	plugins   map[string]models.PluginConfig // keyed by API key
	conflicts map[string]models.ConflictRecord
	jobs      map[string]models.EmbeddingJob
	counters  map[string]models.SiteCounters
}

// Compile-time check that Memory implements Store.
var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sites:     make(map[string]models.Site),
		content:   make(map[string]models.ContentItem),
		cursors:   make(map[string]models.SyncCursor),
		plugins:   make(map[string]models.PluginConfig),
		conflicts: make(map[string]models.ConflictRecord),
		jobs:      make(map[string]models.EmbeddingJob),
		counters:  make(map[string]models.SiteCounters),
	}
}

// AddSite registers a site (test/setup helper).
func (m *Memory) AddSite(site models.Site) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sites[site.ID] = site
}

// AddPlugin registers a plugin config (test/setup helper).
func (m *Memory) AddPlugin(cfg models.PluginConfig) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plugins[cfg.APIKey] = cfg
}

func (m *Memory) GetSite(ctx context.Context, id string) (*models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	site, ok := m.sites[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &site, nil
}

func (m *Memory) ListSites(ctx context.Context, orgID string) ([]models.Site, error) {
	return m.listSites(orgID, false)
}

func (m *Memory) ListActiveSites(ctx context.Context, orgID string) ([]models.Site, error) {
	return m.listSites(orgID, true)
}

func (m *Memory) listSites(orgID string, activeOnly bool) ([]models.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Site
	for _, site := range m.sites {
		if activeOnly && !site.Active {
			continue
		}
		if orgID != "" && site.OrgID != orgID {
			continue
		}
		out = append(out, site)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetContent(ctx context.Context, id string) (*models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.content[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &item, nil
}

func (m *Memory) GetContentByRemoteID(ctx context.Context, siteID string, remotePostID int64) (*models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range m.content {
		if item.SiteID == siteID && item.RemotePostID == remotePostID {
			return &item, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) UpsertContent(ctx context.Context, item *models.ContentItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item.ID == "" {
		item.ID = uuid.New().String()
	}
	m.content[item.ID] = *item
	return nil
}

func (m *Memory) UpdateMarkers(ctx context.Context, id, revisionMarker, lastSyncedMarker, remoteMarker string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.content[id]
	if !ok {
		return ErrNotFound
	}
	item.RevisionMarker = revisionMarker
	item.LastSyncedRevisionMarker = lastSyncedMarker
	item.RemoteRevisionMarker = remoteMarker
	m.content[id] = item
	return nil
}

func (m *Memory) SetRemoteBinding(ctx context.Context, id string, remotePostID int64, remoteURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.content[id]
	if !ok {
		return ErrNotFound
	}
	item.RemotePostID = remotePostID
	item.RemoteURL = remoteURL
	m.content[id] = item
	return nil
}

func (m *Memory) SetEmbeddedHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.content[id]
	if !ok {
		return ErrNotFound
	}
	item.LastEmbeddedHash = hash
	m.content[id] = item
	return nil
}

func (m *Memory) ListDrifted(ctx context.Context, limit int) ([]models.ContentItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ContentItem
	for _, item := range m.content {
		if models.ContentHash(item.Body) != item.LastEmbeddedHash {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) GetCursor(ctx context.Context, siteID string) (*models.SyncCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cursor, ok := m.cursors[siteID]
	if !ok {
		return &models.SyncCursor{SiteID: siteID}, nil
	}
	return &cursor, nil
}

func (m *Memory) CompareAndSetCursor(ctx context.Context, cursor *models.SyncCursor, prev time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, ok := m.cursors[cursor.SiteID]
	if ok && !current.LastPulledAt.Equal(prev) {
		return ErrCursorConflict
	}
	if !ok && !prev.IsZero() {
		return ErrCursorConflict
	}
	stored := *cursor
	if len(stored.LastProcessedRemoteIDs) > maxBoundaryIDs {
		stored.LastProcessedRemoteIDs = stored.LastProcessedRemoteIDs[len(stored.LastProcessedRemoteIDs)-maxBoundaryIDs:]
	}
	stored.UpdatedAt = time.Now()
	m.cursors[cursor.SiteID] = stored
	return nil
}

func (m *Memory) GetPluginByAPIKey(ctx context.Context, apiKey string) (*models.PluginConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, ok := m.plugins[apiKey]
	if !ok {
		return nil, ErrNotFound
	}
	return &cfg, nil
}

func (m *Memory) SaveConflict(ctx context.Context, rec *models.ConflictRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()[:8]
	}
	m.conflicts[rec.ID] = *rec
	return nil
}

func (m *Memory) OpenConflicts(ctx context.Context, orgID, siteID string) ([]models.ConflictRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ConflictRecord
	for _, rec := range m.conflicts {
		if rec.Status != models.ConflictOpen {
			continue
		}
		if orgID != "" && rec.OrgID != orgID {
			continue
		}
		if siteID != "" && rec.SiteID != siteID {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	return out, nil
}

func (m *Memory) CountOpenConflicts(ctx context.Context, orgID, siteID string) (int, error) {
	recs, err := m.OpenConflicts(ctx, orgID, siteID)
	if err != nil {
		return 0, err
	}
	return len(recs), nil
}

func (m *Memory) ResolveConflict(ctx context.Context, id, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.conflicts[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	rec.Status = models.ConflictResolved
	rec.ResolutionNote = note
	rec.ResolvedAt = &now
	m.conflicts[id] = rec
	return nil
}

func (m *Memory) EnqueueJob(ctx context.Context, job *models.EmbeddingJob) (bool, *models.EmbeddingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := job.CoalesceKey()
	for _, existing := range m.jobs {
		if existing.Status.Active() && existing.CoalesceKey() == key {
			return false, &existing, nil
		}
	}
	if job.ID == "" {
		job.ID = uuid.New().String()[:8]
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	job.Status = models.JobQueued
	m.jobs[job.ID] = *job
	return true, nil, nil
}

func (m *Memory) UpdateJobHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.ContentHash = hash
	m.jobs[id] = job
	return nil
}

func (m *Memory) ListQueuedJobs(ctx context.Context, limit int) ([]models.EmbeddingJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.EmbeddingJob
	for _, job := range m.jobs {
		if job.Status == models.JobQueued {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EnqueuedAt.Before(out[j].EnqueuedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkJob(ctx context.Context, id string, status models.JobStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	job.Status = status
	job.Error = errMsg
	if !status.Active() {
		now := time.Now()
		job.CompletedAt = &now
	}
	m.jobs[id] = job
	return nil
}

func (m *Memory) GetCounters(ctx context.Context, siteID string) (*models.SiteCounters, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counters[siteID]
	if !ok {
		return &models.SiteCounters{SiteID: siteID}, nil
	}
	return &c, nil
}

func (m *Memory) RecordPull(ctx context.Context, orgID, siteID string, ok bool, lag time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters[siteID]
	c.SiteID = siteID
	c.OrgID = orgID
	if ok {
		c.PullSuccesses++
		c.LastSuccessAt = time.Now()
		if lag > 0 {
			c.TotalLagMs += lag.Milliseconds()
			c.LagSamples++
		}
	} else {
		c.PullFailures++
	}
	m.counters[siteID] = c
	return nil
}

func (m *Memory) RecordPush(ctx context.Context, orgID, siteID string, ok bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.counters[siteID]
	c.SiteID = siteID
	c.OrgID = orgID
	if ok {
		c.PushSuccesses++
		c.LastSuccessAt = time.Now()
	} else {
		c.PushFailures++
	}
	m.counters[siteID] = c
	return nil
}
