package reindex

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/store"
	"github.com/pressbridge/pressbridge/internal/throttle"
)

// Request asks for one source to be re-embedded.
type Request struct {
	OrgID       string            `json:"org_id"`
	SiteID      string            `json:"site_id"`
	SourceType  models.SourceType `json:"source_type"`
	SourceID    string            `json:"source_id"`
	ContentHash string            `json:"content_hash"`
}

// Outcome classifies what an enqueue did.
type Outcome string

const (
	OutcomeQueued    Outcome = "queued"
	OutcomeCoalesced Outcome = "coalesced" // active job existed; hash refreshed
	OutcomeNoOp      Outcome = "noop"      // active job already has this hash
	OutcomeBlocked   Outcome = "blocked"
)

// Result reports one incremental reindex run.
type Result struct {
	Queued           int            `json:"queued"`
	SkippedThrottled int            `json:"skipped_throttled"`
	SkippedBlocked   int            `json:"skipped_blocked"`
	ByType           map[string]int `json:"by_type"`
	ByTenant         map[string]int `json:"by_tenant"`
	Errors           []string       `json:"errors,omitempty"`
}

// QueueConfig tunes admission for incremental runs.
type QueueConfig struct {
	// BatchLimit caps total admissions per run.
	BatchLimit int

	// TenantCap caps admissions per tenant within one run. Items beyond
	// the cap are reconsidered on the next run, not dropped.
	TenantCap int
}

// Queue is the reindex/embedding admission queue. Confirmed content
// mutations enter through EnqueueContent; RunIncremental is the self-healing
// backstop that discovers content whose hash drifted from its last-embedded
// hash without any explicit trigger.
type Queue struct {
	store     store.Store
	blocklist *Blocklist
	cfg       QueueConfig
	log       *slog.Logger
}

// NewQueue creates the admission queue.
func NewQueue(st store.Store, blocklist *Blocklist, cfg QueueConfig, log *slog.Logger) *Queue {
	if blocklist == nil {
		blocklist = NewBlocklist(nil, nil)
	}
	return &Queue{store: st, blocklist: blocklist, cfg: cfg, log: log}
}

// EnqueueContent implements the sync engine's enqueue hook for a mutated
// content item.
func (q *Queue) EnqueueContent(ctx context.Context, item *models.ContentItem) error {
	_, err := q.Enqueue(ctx, Request{
		OrgID:       item.OrgID,
		SiteID:      item.SiteID,
		SourceType:  item.SourceType,
		SourceID:    item.ID,
		ContentHash: models.ContentHash(item.Body),
	})
	return err
}

// Enqueue admits one reindex request. An existing unfinished job for the
// same (org, source type, source id) coalesces: identical hash is a no-op,
// a newer hash refreshes the job in place. Blocked requests are silently
// accounted.
func (q *Queue) Enqueue(ctx context.Context, req Request) (Outcome, error) {
	if q.blocklist.Blocked(req.OrgID, req.SourceType) {
		q.log.Debug("reindex blocked", "org_id", req.OrgID, "source_type", req.SourceType)
		return OutcomeBlocked, nil
	}

	job := &models.EmbeddingJob{
		OrgID:       req.OrgID,
		SiteID:      req.SiteID,
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
		ContentHash: req.ContentHash,
		EnqueuedAt:  time.Now(),
	}
	created, existing, err := q.store.EnqueueJob(ctx, job)
	if err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	if created {
		q.log.Debug("reindex queued", "job_id", job.ID, "source_id", req.SourceID)
		return OutcomeQueued, nil
	}

	if existing.ContentHash == req.ContentHash {
		return OutcomeNoOp, nil
	}
	if err := q.store.UpdateJobHash(ctx, existing.ID, req.ContentHash); err != nil {
		return "", fmt.Errorf("refresh job hash: %w", err)
	}
	q.log.Debug("reindex coalesced", "job_id", existing.ID, "source_id", req.SourceID)
	return OutcomeCoalesced, nil
}

// RunIncremental scans for content whose hash drifted from its last
// embedded hash and admits it subject to the global batch limit and the
// per-tenant cap. Both caps run through the throttle primitive with a
// fresh per-run window, so fairness is exact within the run regardless of
// discovery order. Items beyond a cap are counted and retried next run.
func (q *Queue) RunIncremental(ctx context.Context, limit int) (*Result, error) {
	if limit <= 0 || limit > q.cfg.BatchLimit {
		limit = q.cfg.BatchLimit
	}

	result := &Result{
		ByType:   make(map[string]int),
		ByTenant: make(map[string]int),
	}

	// Scan past the admission limit so throttled tenants don't starve the
	// rest of the batch.
	drifted, err := q.store.ListDrifted(ctx, limit*4)
	if err != nil {
		return nil, fmt.Errorf("list drifted content: %w", err)
	}

	global := throttle.NewLimiter(limit, time.Hour)
	perTenant := throttle.NewLimiter(q.cfg.TenantCap, time.Hour)
	defer global.Stop()
	defer perTenant.Stop()

	for i := range drifted {
		item := drifted[i]
		if q.blocklist.Blocked(item.OrgID, item.SourceType) {
			result.SkippedBlocked++
			continue
		}
		// Peek the tenant cap before charging the global budget, and charge
		// the tenant only after global admission: a skipped item must not
		// consume either counter, or capped tenants would starve the batch
		// and throttled batches would eat tenant budgets.
		if perTenant.Remaining(item.OrgID) == 0 {
			result.SkippedThrottled++
			continue
		}
		if !global.Allow("run") {
			result.SkippedThrottled++
			continue
		}
		perTenant.Allow(item.OrgID)

		outcome, err := q.Enqueue(ctx, Request{
			OrgID:       item.OrgID,
			SiteID:      item.SiteID,
			SourceType:  item.SourceType,
			SourceID:    item.ID,
			ContentHash: models.ContentHash(item.Body),
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("content %s: %v", item.ID, err))
			continue
		}
		if outcome == OutcomeQueued || outcome == OutcomeCoalesced {
			result.Queued++
			result.ByType[string(item.SourceType)]++
			result.ByTenant[item.OrgID]++
		}
	}

	q.log.Info("incremental reindex finished",
		"scanned", len(drifted),
		"queued", result.Queued,
		"skipped_throttled", result.SkippedThrottled,
		"skipped_blocked", result.SkippedBlocked,
		"errors", len(result.Errors))
	return result, nil
}
