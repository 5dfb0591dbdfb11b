// Package remote defines the client used to talk to a site's WordPress
// REST API, plus the default HTTP implementation.
package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound indicates the remote post no longer exists (404-class).
// Push surfaces this as a distinct failure instead of retrying silently.
var ErrNotFound = errors.New("remote post not found")

// HTTPError carries a non-2xx response from the remote site.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("remote http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("remote http %d: %s", e.StatusCode, e.Message)
}

// Post is the remote site's view of a content item.
type Post struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Status     string    `json:"status"` // draft | publish
	Link       string    `json:"link"`
	ModifiedAt time.Time `json:"modified_gmt"`
}

// RevisionMarker returns the marker the engine uses for the remote side:
// the modification timestamp in RFC3339, which WordPress bumps on every
// edit and which is comparable across pulls.
func (p *Post) RevisionMarker() string {
	return p.ModifiedAt.UTC().Format(time.RFC3339)
}

// Client is the per-site WordPress API surface the sync engine needs.
// Implementations must honor ctx deadlines; a timed-out call is a plain
// failure, retried only on the next scheduled invocation.
type Client interface {
	// FetchModifiedSince returns posts with modification time >= since, in
	// ascending modification-time order, at most limit posts.
	FetchModifiedSince(ctx context.Context, since time.Time, limit int) ([]Post, error)

	GetPost(ctx context.Context, id int64) (*Post, error)
	CreatePost(ctx context.Context, post Post) (*Post, error)

	// UpdatePost returns ErrNotFound (wrapped) when id vanished remotely.
	UpdatePost(ctx context.Context, id int64, post Post) (*Post, error)

	// PublishPost flips the remote post to publish status.
	PublishPost(ctx context.Context, id int64) (*Post, error)
}

// Factory builds a Client for one site. Injected so tests can substitute
// fakes per site.
type Factory func(baseURL, credentialRef string) Client
