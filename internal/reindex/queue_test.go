package reindex

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestQueue(mem *store.Memory, blocklist *Blocklist) *Queue {
	return NewQueue(mem, blocklist, QueueConfig{BatchLimit: 100, TenantCap: 50}, testLogger())
}

func addDrifted(t *testing.T, mem *store.Memory, org, id string, sourceType models.SourceType) {
	t.Helper()
	require.NoError(t, mem.UpsertContent(context.Background(), &models.ContentItem{
		ID:         id,
		OrgID:      org,
		SiteID:     "site-" + org,
		Title:      id,
		Body:       "body of " + id,
		Status:     models.ContentStatusPublished,
		SourceType: sourceType,
	}))
}

func TestEnqueueCoalescing(t *testing.T) {
	mem := store.NewMemory()
	q := newTestQueue(mem, nil)
	ctx := context.Background()

	req := Request{
		OrgID:       "org-1",
		SiteID:      "site-1",
		SourceType:  models.SourcePage,
		SourceID:    "content-1",
		ContentHash: "hash-1",
	}

	outcome, err := q.Enqueue(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, outcome)

	t.Run("identical hash is a no-op", func(t *testing.T) {
		outcome, err := q.Enqueue(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, OutcomeNoOp, outcome)
	})

	t.Run("newer hash refreshes in place", func(t *testing.T) {
		refreshed := req
		refreshed.ContentHash = "hash-2"
		outcome, err := q.Enqueue(ctx, refreshed)
		require.NoError(t, err)
		assert.Equal(t, OutcomeCoalesced, outcome)

		jobs, err := mem.ListQueuedJobs(ctx, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, "hash-2", jobs[0].ContentHash)
	})

	t.Run("different source gets its own job", func(t *testing.T) {
		other := req
		other.SourceID = "content-2"
		outcome, err := q.Enqueue(ctx, other)
		require.NoError(t, err)
		assert.Equal(t, OutcomeQueued, outcome)
	})

	t.Run("finished job frees the slot", func(t *testing.T) {
		jobs, err := mem.ListQueuedJobs(ctx, 10)
		require.NoError(t, err)
		for _, job := range jobs {
			require.NoError(t, mem.MarkJob(ctx, job.ID, models.JobDone, ""))
		}

		outcome, err := q.Enqueue(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, OutcomeQueued, outcome)
	})
}

func TestEnqueueBlocked(t *testing.T) {
	mem := store.NewMemory()
	q := newTestQueue(mem, NewBlocklist([]string{"org-banned"}, []models.SourceType{models.SourceTemplate}))
	ctx := context.Background()

	t.Run("blocked tenant", func(t *testing.T) {
		outcome, err := q.Enqueue(ctx, Request{
			OrgID: "org-banned", SourceType: models.SourcePage, SourceID: "c1", ContentHash: "h",
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeBlocked, outcome)
	})

	t.Run("blocked source type", func(t *testing.T) {
		outcome, err := q.Enqueue(ctx, Request{
			OrgID: "org-ok", SourceType: models.SourceTemplate, SourceID: "c2", ContentHash: "h",
		})
		require.NoError(t, err)
		assert.Equal(t, OutcomeBlocked, outcome)
	})

	jobs, err := mem.ListQueuedJobs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRunIncrementalDriftDiscovery(t *testing.T) {
	mem := store.NewMemory()
	q := newTestQueue(mem, nil)
	ctx := context.Background()

	addDrifted(t, mem, "org-1", "never-embedded", models.SourcePage)
	addDrifted(t, mem, "org-1", "stale-hash", models.SourceAIContent)
	require.NoError(t, mem.SetEmbeddedHash(ctx, "stale-hash", "outdated"))

	// Fresh content must not be rediscovered.
	addDrifted(t, mem, "org-1", "fresh", models.SourcePage)
	require.NoError(t, mem.SetEmbeddedHash(ctx, "fresh", models.ContentHash("body of fresh")))

	res, err := q.RunIncremental(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Queued)
	assert.Equal(t, 0, res.SkippedThrottled)
	assert.Equal(t, map[string]int{"page": 1, "ai_content": 1}, res.ByType)

	t.Run("rerun coalesces instead of duplicating", func(t *testing.T) {
		res, err := q.RunIncremental(ctx, 0)
		require.NoError(t, err)
		// Identical hashes are no-ops, so nothing counts as queued.
		assert.Equal(t, 0, res.Queued)

		jobs, err := mem.ListQueuedJobs(ctx, 10)
		require.NoError(t, err)
		assert.Len(t, jobs, 2)
	})
}

func TestRunIncrementalBatchLimit(t *testing.T) {
	mem := store.NewMemory()
	q := NewQueue(mem, nil, QueueConfig{BatchLimit: 3, TenantCap: 50}, testLogger())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		addDrifted(t, mem, "org-1", fmt.Sprintf("content-%02d", i), models.SourcePage)
	}

	res, err := q.RunIncremental(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Queued)
	assert.Equal(t, 7, res.SkippedThrottled)

	t.Run("request limit cannot exceed the configured cap", func(t *testing.T) {
		// Settle the first batch so the next run sees fresh drift only.
		jobs, err := mem.ListQueuedJobs(ctx, 10)
		require.NoError(t, err)
		for _, job := range jobs {
			require.NoError(t, mem.MarkJob(ctx, job.ID, models.JobDone, ""))
			require.NoError(t, mem.SetEmbeddedHash(ctx, job.SourceID, job.ContentHash))
		}

		res, err := q.RunIncremental(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, 3, res.Queued)
	})
}

func TestRunIncrementalTenantFairness(t *testing.T) {
	mem := store.NewMemory()
	q := NewQueue(mem, nil, QueueConfig{BatchLimit: 10, TenantCap: 2}, testLogger())
	ctx := context.Background()

	// org-a's items sort first and would starve org-b without the cap.
	for i := 0; i < 6; i++ {
		addDrifted(t, mem, "org-a", fmt.Sprintf("a-%02d", i), models.SourcePage)
	}
	for i := 0; i < 2; i++ {
		addDrifted(t, mem, "org-b", fmt.Sprintf("b-%02d", i), models.SourcePage)
	}

	res, err := q.RunIncremental(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"org-a": 2, "org-b": 2}, res.ByTenant)
	assert.Equal(t, 4, res.SkippedThrottled)
}

func TestRunIncrementalCappedTenantKeepsBudgetsIntact(t *testing.T) {
	mem := store.NewMemory()
	q := NewQueue(mem, nil, QueueConfig{BatchLimit: 2, TenantCap: 1}, testLogger())
	ctx := context.Background()

	// org-a has more drift than its cap allows; its capped items must not
	// eat the global budget, or org-b would get nothing.
	for i := 0; i < 3; i++ {
		addDrifted(t, mem, "org-a", fmt.Sprintf("a-%02d", i), models.SourcePage)
	}
	addDrifted(t, mem, "org-b", "b-00", models.SourcePage)

	res, err := q.RunIncremental(ctx, 0)
	require.NoError(t, err)

	assert.Equal(t, map[string]int{"org-a": 1, "org-b": 1}, res.ByTenant)
	assert.Equal(t, 2, res.Queued)
	assert.Equal(t, 2, res.SkippedThrottled)
}

func TestRunIncrementalSkipsBlocked(t *testing.T) {
	mem := store.NewMemory()
	q := newTestQueue(mem, NewBlocklist([]string{"org-banned"}, nil))
	ctx := context.Background()

	addDrifted(t, mem, "org-banned", "banned-content", models.SourcePage)
	addDrifted(t, mem, "org-ok", "ok-content", models.SourcePage)

	res, err := q.RunIncremental(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Queued)
	assert.Equal(t, 1, res.SkippedBlocked)
}

func TestEnqueueContentUsesBodyHash(t *testing.T) {
	mem := store.NewMemory()
	q := newTestQueue(mem, nil)
	ctx := context.Background()

	item := &models.ContentItem{
		ID:         "content-1",
		OrgID:      "org-1",
		SiteID:     "site-1",
		Body:       "some body",
		SourceType: models.SourcePage,
	}
	require.NoError(t, q.EnqueueContent(ctx, item))

	jobs, err := mem.ListQueuedJobs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, models.ContentHash("some body"), jobs[0].ContentHash)
	assert.Equal(t, models.SourcePage, jobs[0].SourceType)
}

func TestBlocklistLoadFromFile(t *testing.T) {
	path := t.TempDir() + "/blocklist.yaml"
	yaml := "tenants:\n  - org-banned\nsource_types:\n  - template\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	b, err := LoadBlocklist(path)
	require.NoError(t, err)
	assert.True(t, b.Blocked("org-banned", models.SourcePage))
	assert.True(t, b.Blocked("org-ok", models.SourceTemplate))
	assert.False(t, b.Blocked("org-ok", models.SourcePage))

	t.Run("empty path yields empty blocklist", func(t *testing.T) {
		b, err := LoadBlocklist("")
		require.NoError(t, err)
		assert.False(t, b.Blocked("anyone", models.SourcePage))
	})

	t.Run("missing file errors", func(t *testing.T) {
		_, err := LoadBlocklist(t.TempDir() + "/nope.yaml")
		assert.Error(t, err)
	})
}
