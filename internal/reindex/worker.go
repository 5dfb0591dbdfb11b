package reindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pressbridge/pressbridge/internal/metrics"
	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/store"
)

// Embedder generates the embedding vector for a piece of content.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Sink receives finished embeddings. The vector index itself lives
// downstream; the engine only hands vectors over.
type Sink interface {
	StoreEmbedding(ctx context.Context, item *models.ContentItem, vector []float32) error
}

// Worker drains queued embedding jobs. Each job is a complete idempotent
// unit: it embeds the content's current body and records the embedded hash,
// so a drift scan won't re-discover it.
type Worker struct {
	store    store.Store
	embedder Embedder
	sink     Sink               // optional
	stats    *metrics.Collector // optional
	log      *slog.Logger
}

// NewWorker creates an embedding worker.
func NewWorker(st store.Store, embedder Embedder, sink Sink, stats *metrics.Collector, log *slog.Logger) *Worker {
	return &Worker{store: st, embedder: embedder, sink: sink, stats: stats, log: log}
}

// WorkResult reports one ProcessQueued invocation.
type WorkResult struct {
	Processed int      `json:"processed"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// ProcessQueued runs up to limit queued jobs. One job's failure is recorded
// on the job and does not abort its siblings.
func (w *Worker) ProcessQueued(ctx context.Context, limit int) (*WorkResult, error) {
	jobs, err := w.store.ListQueuedJobs(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list queued jobs: %w", err)
	}

	result := &WorkResult{}
	for i := range jobs {
		job := jobs[i]
		if ctx.Err() != nil {
			break
		}
		if err := w.processOne(ctx, &job); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("job %s: %v", job.ID, err))
			if markErr := w.store.MarkJob(ctx, job.ID, models.JobFailed, err.Error()); markErr != nil {
				w.log.Warn("failed to mark job failed", "job_id", job.ID, "error", markErr)
			}
			continue
		}
		result.Processed++
	}

	if result.Processed > 0 || result.Failed > 0 {
		w.log.Info("embedding jobs processed", "processed", result.Processed, "failed", result.Failed)
	}
	return result, nil
}

func (w *Worker) processOne(ctx context.Context, job *models.EmbeddingJob) error {
	if err := w.store.MarkJob(ctx, job.ID, models.JobProcessing, ""); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}

	item, err := w.store.GetContent(ctx, job.SourceID)
	if errors.Is(err, store.ErrNotFound) {
		// Content deleted between enqueue and processing; the job is moot.
		return w.store.MarkJob(ctx, job.ID, models.JobDone, "")
	}
	if err != nil {
		return fmt.Errorf("load content: %w", err)
	}

	// Embed the current body, not the enqueue-time snapshot: coalesced
	// jobs may have been refreshed while queued.
	hash := models.ContentHash(item.Body)

	start := time.Now()
	vector, err := w.embedder.Embed(ctx, item.Title+"\n\n"+item.Body)
	if w.stats != nil {
		w.stats.RecordTiming(metrics.OpEmbed, time.Since(start), err == nil)
	}
	if err != nil {
		return fmt.Errorf("embed: %w", err)
	}
	w.log.Debug("embedded content",
		"content_id", item.ID,
		"dimension", len(vector),
		"duration_ms", time.Since(start).Milliseconds())

	if w.sink != nil {
		if err := w.sink.StoreEmbedding(ctx, item, vector); err != nil {
			return fmt.Errorf("store embedding: %w", err)
		}
	}

	if err := w.store.SetEmbeddedHash(ctx, item.ID, hash); err != nil {
		return fmt.Errorf("record embedded hash: %w", err)
	}
	return w.store.MarkJob(ctx, job.ID, models.JobDone, "")
}
