package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/remote"
	"github.com/pressbridge/pressbridge/internal/store"
)

const (
	testOrg    = "org-1"
	testSiteID = "site-1"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRemote is an in-memory remote.Client. Tests drive it single-threaded.
type fakeRemote struct {
	posts  []remote.Post
	nextID int64

	fetchErr  error
	createErr error
	updateErr error

	createCalls int
	updateCalls int
}

func (f *fakeRemote) FetchModifiedSince(ctx context.Context, since time.Time, limit int) ([]remote.Post, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	var out []remote.Post
	for _, p := range f.posts {
		if p.ModifiedAt.Before(since) {
			continue
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRemote) GetPost(ctx context.Context, id int64) (*remote.Post, error) {
	for i := range f.posts {
		if f.posts[i].ID == id {
			p := f.posts[i]
			return &p, nil
		}
	}
	return nil, remote.ErrNotFound
}

func (f *fakeRemote) CreatePost(ctx context.Context, post remote.Post) (*remote.Post, error) {
	f.createCalls++
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	post.ID = f.nextID
	post.Link = fmt.Sprintf("https://blog.example.com/?p=%d", post.ID)
	post.ModifiedAt = time.Now().UTC().Truncate(time.Second)
	f.posts = append(f.posts, post)
	return &post, nil
}

func (f *fakeRemote) UpdatePost(ctx context.Context, id int64, post remote.Post) (*remote.Post, error) {
	f.updateCalls++
	if f.updateErr != nil {
		return nil, fmt.Errorf("update %d: %w", id, f.updateErr)
	}
	for i := range f.posts {
		if f.posts[i].ID == id {
			f.posts[i].Title = post.Title
			f.posts[i].Content = post.Content
			f.posts[i].ModifiedAt = time.Now().UTC().Truncate(time.Second)
			p := f.posts[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("update %d: %w", id, remote.ErrNotFound)
}

func (f *fakeRemote) PublishPost(ctx context.Context, id int64) (*remote.Post, error) {
	for i := range f.posts {
		if f.posts[i].ID == id {
			f.posts[i].Status = "publish"
			f.posts[i].ModifiedAt = time.Now().UTC().Truncate(time.Second)
			p := f.posts[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("publish %d: %w", id, remote.ErrNotFound)
}

func (f *fakeRemote) factory() remote.Factory {
	return func(baseURL, credentialRef string) remote.Client { return f }
}

// fakeQueue records reindex enqueues.
type fakeQueue struct {
	enqueued []string
	err      error
}

func (q *fakeQueue) EnqueueContent(ctx context.Context, item *models.ContentItem) error {
	if q.err != nil {
		return q.err
	}
	q.enqueued = append(q.enqueued, item.ID)
	return nil
}

// flakyStore fails UpsertContent for one title, to exercise partial-failure
// handling in batches.
type flakyStore struct {
	store.Store
	failTitle string
}

func (s *flakyStore) UpsertContent(ctx context.Context, item *models.ContentItem) error {
	if item.Title == s.failTitle {
		return errors.New("storage unavailable")
	}
	return s.Store.UpsertContent(ctx, item)
}

func newTestStore() *store.Memory {
	mem := store.NewMemory()
	mem.AddSite(models.Site{
		ID:            testSiteID,
		OrgID:         testOrg,
		BaseURL:       "https://blog.example.com",
		CredentialRef: "cred-1",
		Active:        true,
	})
	return mem
}

func remotePost(id int64, title string, modified time.Time) remote.Post {
	return remote.Post{
		ID:         id,
		Title:      title,
		Content:    "body of " + title,
		Status:     "publish",
		Link:       fmt.Sprintf("https://blog.example.com/?p=%d", id),
		ModifiedAt: modified,
	}
}

func seedContent(mem *store.Memory, item models.ContentItem) models.ContentItem {
	if item.OrgID == "" {
		item.OrgID = testOrg
	}
	if item.SiteID == "" {
		item.SiteID = testSiteID
	}
	if item.SourceType == "" {
		item.SourceType = models.SourcePage
	}
	if item.Status == "" {
		item.Status = models.ContentStatusPublished
	}
	_ = mem.UpsertContent(context.Background(), &item)
	return item
}
