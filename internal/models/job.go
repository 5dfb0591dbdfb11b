package models

import "time"

// JobStatus represents the state of an embedding job.
type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// Active reports whether the job still occupies its coalescing slot.
func (s JobStatus) Active() bool {
	return s == JobQueued || s == JobProcessing
}

// EmbeddingJob is one queued unit of reindex work. At most one active job
// exists per (org, source type, source id); duplicate enqueues coalesce.
type EmbeddingJob struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"org_id"`
	SiteID      string     `json:"site_id"`
	SourceType  SourceType `json:"source_type"`
	SourceID    string     `json:"source_id"`
	ContentHash string     `json:"content_hash"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	EnqueuedAt  time.Time  `json:"enqueued_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CoalesceKey returns the uniqueness key for active jobs.
func (j *EmbeddingJob) CoalesceKey() string {
	return j.OrgID + "/" + string(j.SourceType) + "/" + j.SourceID
}
