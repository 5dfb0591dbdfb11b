package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressbridge/pressbridge/internal/metrics"
	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/reindex"
	"github.com/pressbridge/pressbridge/internal/remote"
	"github.com/pressbridge/pressbridge/internal/store"
	"github.com/pressbridge/pressbridge/internal/sync"
	"github.com/pressbridge/pressbridge/internal/throttle"
)

const testToken = "test-token"

// fakeRemote is a canned remote.Client for handler tests.
type fakeRemote struct {
	posts  []remote.Post
	nextID int64
}

func (f *fakeRemote) FetchModifiedSince(ctx context.Context, since time.Time, limit int) ([]remote.Post, error) {
	var out []remote.Post
	for _, p := range f.posts {
		if !p.ModifiedAt.Before(since) {
			out = append(out, p)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRemote) GetPost(ctx context.Context, id int64) (*remote.Post, error) {
	for i := range f.posts {
		if f.posts[i].ID == id {
			return &f.posts[i], nil
		}
	}
	return nil, remote.ErrNotFound
}

func (f *fakeRemote) CreatePost(ctx context.Context, post remote.Post) (*remote.Post, error) {
	f.nextID++
	post.ID = f.nextID
	post.Link = "https://remote.test/?p=1"
	post.ModifiedAt = time.Now().UTC().Truncate(time.Second)
	f.posts = append(f.posts, post)
	return &post, nil
}

func (f *fakeRemote) UpdatePost(ctx context.Context, id int64, post remote.Post) (*remote.Post, error) {
	for i := range f.posts {
		if f.posts[i].ID == id {
			f.posts[i].Title = post.Title
			f.posts[i].Content = post.Content
			f.posts[i].ModifiedAt = time.Now().UTC().Truncate(time.Second)
			return &f.posts[i], nil
		}
	}
	return nil, remote.ErrNotFound
}

func (f *fakeRemote) PublishPost(ctx context.Context, id int64) (*remote.Post, error) {
	for i := range f.posts {
		if f.posts[i].ID == id {
			f.posts[i].Status = "publish"
			f.posts[i].ModifiedAt = time.Now().UTC().Truncate(time.Second)
			return &f.posts[i], nil
		}
	}
	return nil, remote.ErrNotFound
}

type testEnv struct {
	server *httptest.Server
	store  *store.Memory
	remote *fakeRemote
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mem := store.NewMemory()
	mem.AddSite(models.Site{ID: "site-1", OrgID: "org-1", BaseURL: "https://remote.test", CredentialRef: "u:p", Active: true})
	mem.AddPlugin(models.PluginConfig{SiteID: "site-1", OrgID: "org-1", APIKey: "key-1", HMACSecret: "secret", Active: true})

	fake := &fakeRemote{}
	factory := func(baseURL, credentialRef string) remote.Client { return fake }

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	selfWrites := sync.NewSelfWrites(time.Minute)
	detector := sync.NewDetector(mem, logger)
	queue := reindex.NewQueue(mem, reindex.NewBlocklist(nil, nil), reindex.QueueConfig{BatchLimit: 100, TenantCap: 50}, logger)
	limiter := throttle.NewLimiter(100, time.Minute)

	svc := Services{
		Store:    mem,
		Puller:   sync.NewPuller(mem, factory, limiter, detector, queue, sync.PullerConfig{MinPullInterval: time.Minute, RemoteTimeout: time.Second}, logger),
		Pusher:   sync.NewPusher(mem, factory, detector, selfWrites, sync.PusherConfig{RemoteTimeout: time.Second}, logger),
		Ingestor: sync.NewIngestor(mem, detector, selfWrites, queue, logger),
		Detector: detector,
		Health:   sync.NewHealth(mem, sync.HealthConfig{MaxSilence: time.Hour, MinSuccessRate: 0.9, MaxOpenConflicts: 10}),
		Queue:    queue,
		Worker:   reindex.NewWorker(mem, nil, nil, nil, logger),
	}

	srv := New(svc, metrics.NewCollector(), Config{
		BearerToken:       testToken,
		PullBatchLimit:    50,
		ReindexBatchLimit: 100,
	}, logger)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	return &testEnv{server: ts, store: mem, remote: fake}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, authed bool) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestLiveness(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t)

	t.Run("rejects missing token", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/sync/health?org_id=org-1", nil, false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("accepts valid token", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/sync/health?org_id=org-1", nil, true)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestCorrelationIDEcho(t *testing.T) {
	env := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, env.server.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(correlationHeader, "corr-42")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "corr-42", resp.Header.Get(correlationHeader))

	// Generated when absent
	resp2 := env.do(t, http.MethodGet, "/health", nil, false)
	assert.NotEmpty(t, resp2.Header.Get(correlationHeader))
}

func TestWebhookEndpoint(t *testing.T) {
	env := newTestEnv(t)

	payload := sync.InboundChange{
		APIKey:       "key-1",
		RemotePostID: 77,
		RemoteURL:    "https://remote.test/?p=77",
		Status:       "publish",
		Title:        "External post",
		Content:      "written in the WordPress editor",
		ModifiedAt:   time.Now().UTC().Truncate(time.Second),
	}

	t.Run("rejects missing signature", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/webhook/content", payload, false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("rejects unknown api key", func(t *testing.T) {
		bad := payload
		bad.APIKey = "nope"
		resp := env.do(t, http.MethodPost, "/webhook/content", bad, false)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("accepts signed change", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(payload))
		req, err := http.NewRequest(http.MethodPost, env.server.URL+"/webhook/content", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(signatureHeader, sync.SignChange(payload, "secret"))

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		result := decodeBody[sync.IngestResult](t, resp)
		assert.True(t, result.Accepted)
		assert.True(t, result.Applied)
		assert.Equal(t, sync.ReasonCreated, result.Reason)

		item, err := env.store.GetContentByRemoteID(context.Background(), "site-1", 77)
		require.NoError(t, err)
		assert.Equal(t, "External post", item.Title)
	})
}

func TestPushEndpoint(t *testing.T) {
	env := newTestEnv(t)

	item := &models.ContentItem{
		ID:             "content-1",
		OrgID:          "org-1",
		SiteID:         "site-1",
		Title:          "Draft page",
		Body:           "body",
		Status:         models.ContentStatusDraft,
		SourceType:     models.SourcePage,
		RevisionMarker: models.ContentHash("body"),
	}
	require.NoError(t, env.store.UpsertContent(context.Background(), item))

	resp := env.do(t, http.MethodPost, "/sync/push", sync.PushRequest{
		OrgID:     "org-1",
		SiteID:    "site-1",
		ContentID: "content-1",
		Action:    sync.ActionCreate,
	}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[sync.PushResult](t, resp)
	assert.True(t, result.Success)
	assert.Equal(t, int64(1), result.RemotePostID)

	t.Run("tenant mismatch reads as not found", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/sync/push", sync.PushRequest{
			OrgID:     "org-other",
			SiteID:    "site-1",
			ContentID: "content-1",
			Action:    sync.ActionUpdate,
		}, true)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing fields rejected", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/sync/push", sync.PushRequest{OrgID: "org-1"}, true)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestPullEndpoint(t *testing.T) {
	env := newTestEnv(t)

	now := time.Now().UTC().Truncate(time.Second)
	env.remote.posts = []remote.Post{
		{ID: 5, Title: "Remote page", Content: "remote body", Status: "publish", Link: "https://remote.test/?p=5", ModifiedAt: now},
	}

	resp := env.do(t, http.MethodPost, "/sync/pull", pullRequest{OrgID: "org-1", SiteID: "site-1"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decodeBody[sync.PullResult](t, resp)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Applied)

	item, err := env.store.GetContentByRemoteID(context.Background(), "site-1", 5)
	require.NoError(t, err)
	assert.Equal(t, "Remote page", item.Title)

	t.Run("unknown site", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/sync/pull", pullRequest{OrgID: "org-1", SiteID: "missing"}, true)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestConflictEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec := &models.ConflictRecord{
		ID:         "conf-1",
		OrgID:      "org-1",
		SiteID:     "site-1",
		ContentID:  "content-1",
		Status:     models.ConflictOpen,
		DetectedAt: time.Now(),
	}
	require.NoError(t, env.store.SaveConflict(context.Background(), rec))

	resp := env.do(t, http.MethodGet, "/sync/conflicts?org_id=org-1", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[map[string][]models.ConflictRecord](t, resp)
	require.Len(t, body["conflicts"], 1)

	resp = env.do(t, http.MethodPost, "/sync/conflicts/resolve", resolveRequest{ConflictID: "conf-1", Note: "kept local"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/sync/conflicts?org_id=org-1", nil, true)
	body = decodeBody[map[string][]models.ConflictRecord](t, resp)
	assert.Empty(t, body["conflicts"])

	t.Run("resolving unknown conflict", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/sync/conflicts/resolve", resolveRequest{ConflictID: "missing"}, true)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestReindexRunEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// One item that was never embedded: drifted by definition
	require.NoError(t, env.store.UpsertContent(context.Background(), &models.ContentItem{
		ID:         "content-1",
		OrgID:      "org-1",
		SiteID:     "site-1",
		Title:      "Page",
		Body:       "body",
		Status:     models.ContentStatusPublished,
		SourceType: models.SourcePage,
	}))

	resp := env.do(t, http.MethodPost, "/reindex/run", reindexRequest{}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]json.RawMessage](t, resp)
	var result reindex.Result
	require.NoError(t, json.Unmarshal(body["admission"], &result))
	assert.Equal(t, 1, result.Queued)

	jobs, err := env.store.ListQueuedJobs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "content-1", jobs[0].SourceID)
}

func TestStatsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	// Drive one pull so the snapshot has something in it
	resp := env.do(t, http.MethodPost, "/sync/pull", pullRequest{OrgID: "org-1", SiteID: "site-1"}, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/stats", nil, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	snap := decodeBody[metrics.Snapshot](t, resp)
	require.NotNil(t, snap.Pull)
	assert.Equal(t, int64(1), snap.Pull.Count)
}
