package models

import "time"

// ConflictStatus is the lifecycle state of a conflict record.
type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

// ContentSnapshot captures one side's view of a content item at conflict
// detection time.
type ContentSnapshot struct {
	RevisionMarker string        `json:"revision_marker"`
	Title          string        `json:"title,omitempty"`
	Body           string        `json:"body,omitempty"`
	Status         ContentStatus `json:"status,omitempty"`
	RemoteURL      string        `json:"remote_url,omitempty"`
	ModifiedAt     time.Time     `json:"modified_at,omitempty"`
}

// ConflictRecord is created when both sides of a content item changed
// independently since the last known-synced baseline. Resolution is an
// explicit external action; the engine only detects and records.
type ConflictRecord struct {
	ID             string          `json:"id"`
	OrgID          string          `json:"org_id"`
	SiteID         string          `json:"site_id"`
	ContentID      string          `json:"content_id"`
	LocalSnapshot  ContentSnapshot `json:"local_snapshot"`
	RemoteSnapshot ContentSnapshot `json:"remote_snapshot"`
	Status         ConflictStatus  `json:"status"`
	ResolutionNote string          `json:"resolution_note,omitempty"`
	DetectedAt     time.Time       `json:"detected_at"`
	ResolvedAt     *time.Time      `json:"resolved_at,omitempty"`
}
