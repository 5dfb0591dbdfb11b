package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ContentStatus represents the publishing state of a content item.
type ContentStatus string

const (
	ContentStatusDraft     ContentStatus = "draft"
	ContentStatusPublished ContentStatus = "published"
)

// ContentItem is the canonical representation of a page, post or
// AI-generated article.
//
// RevisionMarker advances on every local edit; LastSyncedRevisionMarker is
// the marker value known to match the remote side as of the last successful
// reconciliation and is updated only by a reconciliation step (pull apply,
// push acknowledgment, or trusted webhook). The two fields must always be
// written together in a single store call.
//
// RemoteRevisionMarker is the remote post's own revision marker as of that
// same reconciliation. Local markers and remote markers are different value
// spaces (a local edit counter vs. the remote modification timestamp), so
// push-time divergence checks compare against this field rather than the
// local baseline.
type ContentItem struct {
	ID                       string        `json:"id"`
	OrgID                    string        `json:"org_id"`
	SiteID                   string        `json:"site_id"`
	Title                    string        `json:"title"`
	Body                     string        `json:"body"`
	Status                   ContentStatus `json:"status"`
	SourceType               SourceType    `json:"source_type"`
	RemotePostID             int64         `json:"remote_post_id,omitempty"`
	RemoteURL                string        `json:"remote_url,omitempty"`
	RevisionMarker           string        `json:"revision_marker"`
	LastSyncedRevisionMarker string        `json:"last_synced_revision_marker"`
	RemoteRevisionMarker     string        `json:"remote_revision_marker,omitempty"`
	LastEmbeddedHash         string        `json:"last_embedded_hash,omitempty"`
	UpdatedAt                time.Time     `json:"updated_at"`
}

// SourceType identifies what kind of content a reindex job refers to.
type SourceType string

const (
	SourcePage      SourceType = "page"
	SourceAIContent SourceType = "ai_content"
	SourceTemplate  SourceType = "template"
)

// ContentHash returns the canonical content hash used as a revision marker
// and for embedding drift detection.
func ContentHash(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
