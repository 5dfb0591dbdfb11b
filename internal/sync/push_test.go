package sync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pressbridge/pressbridge/internal/models"
	"github.com/pressbridge/pressbridge/internal/remote"
	"github.com/pressbridge/pressbridge/internal/store"
)

func newTestPusher(st store.Store, fr *fakeRemote, selfWrites *SelfWrites) *Pusher {
	return NewPusher(st, fr.factory(), NewDetector(st, testLogger()), selfWrites, PusherConfig{
		RemoteTimeout: 5 * time.Second,
	}, testLogger())
}

func TestPushCreate(t *testing.T) {
	mem := newTestStore()
	seedContent(mem, models.ContentItem{
		ID:             "content-1",
		Title:          "fresh page",
		Body:           "hello",
		Status:         models.ContentStatusDraft,
		RevisionMarker: "v1",
	})
	fr := &fakeRemote{}
	selfWrites := NewSelfWrites(time.Minute)
	p := newTestPusher(mem, fr, selfWrites)

	res, err := p.PushPage(context.Background(), PushRequest{
		OrgID:         testOrg,
		SiteID:        testSiteID,
		ContentID:     "content-1",
		Action:        ActionCreate,
		CorrelationID: "corr-1",
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.NoOp)
	assert.Equal(t, int64(1), res.RemotePostID)
	assert.NotEmpty(t, res.RemoteURL)

	item, err := mem.GetContent(context.Background(), "content-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), item.RemotePostID)
	// The pushed revision became the shared baseline.
	assert.Equal(t, "v1", item.RevisionMarker)
	assert.Equal(t, "v1", item.LastSyncedRevisionMarker)

	// The push stamped a self-write, so the webhook echo will be suppressed.
	post, err := fr.GetPost(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, selfWrites.Match("content-1", "corr-1", post.RevisionMarker()))
	// The remote marker the push produced is now the remote baseline.
	assert.Equal(t, post.RevisionMarker(), item.RemoteRevisionMarker)

	counters, err := mem.GetCounters(context.Background(), testSiteID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.PushSuccesses)
}

func TestPushNoOpWhenAlreadySynced(t *testing.T) {
	mem := newTestStore()
	seedContent(mem, models.ContentItem{
		ID:                       "content-1",
		Title:                    "synced page",
		RemotePostID:             7,
		RemoteURL:                "https://blog.example.com/?p=7",
		RevisionMarker:           "v3",
		LastSyncedRevisionMarker: "v3",
	})
	fr := &fakeRemote{}
	p := newTestPusher(mem, fr, NewSelfWrites(time.Minute))

	res, err := p.PushPage(context.Background(), PushRequest{
		OrgID: testOrg, SiteID: testSiteID, ContentID: "content-1", Action: ActionUpdate,
	})
	require.NoError(t, err)

	assert.True(t, res.NoOp)
	assert.Equal(t, int64(7), res.RemotePostID)
	assert.Equal(t, 0, fr.updateCalls)
}

func TestPushRepeatedCreateActsAsUpdate(t *testing.T) {
	mem := newTestStore()
	fr := &fakeRemote{posts: []remote.Post{remotePost(7, "bound page", time.Now())}}
	seedContent(mem, models.ContentItem{
		ID:                       "content-1",
		Title:                    "bound page",
		RemotePostID:             7,
		RevisionMarker:           "v2",
		LastSyncedRevisionMarker: "v1",
		RemoteRevisionMarker:     fr.posts[0].RevisionMarker(),
	})
	p := newTestPusher(mem, fr, NewSelfWrites(time.Minute))

	res, err := p.PushPage(context.Background(), PushRequest{
		OrgID: testOrg, SiteID: testSiteID, ContentID: "content-1", Action: ActionCreate,
	})
	require.NoError(t, err)

	// No duplicate remote post may ever be created for bound content.
	assert.Equal(t, 0, fr.createCalls)
	assert.Equal(t, 1, fr.updateCalls)
	assert.Equal(t, int64(7), res.RemotePostID)
}

func TestPushUpdateUnbound(t *testing.T) {
	mem := newTestStore()
	seedContent(mem, models.ContentItem{
		ID:             "content-1",
		Title:          "never pushed",
		RevisionMarker: "v1",
	})
	p := newTestPusher(mem, &fakeRemote{}, NewSelfWrites(time.Minute))

	_, err := p.PushPage(context.Background(), PushRequest{
		OrgID: testOrg, SiteID: testSiteID, ContentID: "content-1", Action: ActionUpdate,
	})
	assert.ErrorIs(t, err, ErrNotPushed)
}

func TestPushRemoteVanished(t *testing.T) {
	mem := newTestStore()
	seedContent(mem, models.ContentItem{
		ID:                       "content-1",
		Title:                    "orphaned page",
		RemotePostID:             99,
		RevisionMarker:           "v2",
		LastSyncedRevisionMarker: "v1",
	})
	fr := &fakeRemote{updateErr: remote.ErrNotFound}
	p := newTestPusher(mem, fr, NewSelfWrites(time.Minute))

	_, err := p.PushPage(context.Background(), PushRequest{
		OrgID: testOrg, SiteID: testSiteID, ContentID: "content-1", Action: ActionUpdate,
	})
	assert.ErrorIs(t, err, ErrRemoteNotFound)

	counters, err := mem.GetCounters(context.Background(), testSiteID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.PushFailures)
}

func TestPushPublish(t *testing.T) {
	mem := newTestStore()
	fr := &fakeRemote{posts: []remote.Post{remotePost(7, "draft page", time.Now())}}
	fr.posts[0].Status = "draft"
	seedContent(mem, models.ContentItem{
		ID:                       "content-1",
		Title:                    "draft page",
		Status:                   models.ContentStatusDraft,
		RemotePostID:             7,
		RevisionMarker:           "v2",
		LastSyncedRevisionMarker: "v1",
		RemoteRevisionMarker:     fr.posts[0].RevisionMarker(),
	})
	p := newTestPusher(mem, fr, NewSelfWrites(time.Minute))

	res, err := p.PushPage(context.Background(), PushRequest{
		OrgID: testOrg, SiteID: testSiteID, ContentID: "content-1", Action: ActionPublish,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.Equal(t, "publish", fr.posts[0].Status)
	item, err := mem.GetContent(context.Background(), "content-1")
	require.NoError(t, err)
	assert.Equal(t, models.ContentStatusPublished, item.Status)
}

func TestPushParkedOnRemoteDivergence(t *testing.T) {
	mem := newTestStore()
	baseline := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	edited := baseline.Add(30 * time.Minute)

	// The remote post was edited independently after the last reconciliation.
	fr := &fakeRemote{posts: []remote.Post{remotePost(7, "remote edit", edited)}}
	seedContent(mem, models.ContentItem{
		ID:                       "content-1",
		Title:                    "local title",
		Body:                     "local body",
		RemotePostID:             7,
		RevisionMarker:           "v2",
		LastSyncedRevisionMarker: "v1",
		RemoteRevisionMarker:     baseline.Format(time.RFC3339),
	})
	p := newTestPusher(mem, fr, NewSelfWrites(time.Minute))

	res, err := p.PushPage(context.Background(), PushRequest{
		OrgID: testOrg, SiteID: testSiteID, ContentID: "content-1", Action: ActionUpdate,
	})
	require.NoError(t, err)

	// The push is parked, not applied: the remote edit must survive.
	assert.False(t, res.Success)
	assert.True(t, res.Conflict)
	assert.NotEmpty(t, res.ConflictID)
	assert.Equal(t, 0, fr.updateCalls)
	assert.Equal(t, "remote edit", fr.posts[0].Title)

	// Markers stay where they were so a later push retries the check.
	item, err := mem.GetContent(context.Background(), "content-1")
	require.NoError(t, err)
	assert.Equal(t, "v2", item.RevisionMarker)
	assert.Equal(t, "v1", item.LastSyncedRevisionMarker)

	open, err := mem.OpenConflicts(context.Background(), testOrg, testSiteID)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "content-1", open[0].ContentID)
	assert.Equal(t, "remote edit", open[0].RemoteSnapshot.Title)
	assert.Equal(t, "local title", open[0].LocalSnapshot.Title)

	t.Run("publish is parked the same way", func(t *testing.T) {
		res, err := p.PushPage(context.Background(), PushRequest{
			OrgID: testOrg, SiteID: testSiteID, ContentID: "content-1", Action: ActionPublish,
		})
		require.NoError(t, err)
		assert.True(t, res.Conflict)
		// The already-open record is reused, not duplicated.
		open, err := mem.OpenConflicts(context.Background(), testOrg, testSiteID)
		require.NoError(t, err)
		assert.Len(t, open, 1)
	})
}

func TestPushProceedsPastOwnRecentWrite(t *testing.T) {
	mem := newTestStore()
	fr := &fakeRemote{posts: []remote.Post{remotePost(7, "page", time.Now().UTC().Truncate(time.Second))}}
	seedContent(mem, models.ContentItem{
		ID:                       "content-1",
		Title:                    "page",
		RemotePostID:             7,
		RevisionMarker:           "v3",
		LastSyncedRevisionMarker: "v2",
	})
	selfWrites := NewSelfWrites(time.Minute)
	// A just-finished push produced this remote marker; its echo must not
	// read as an independent remote edit.
	selfWrites.Stamp("content-1", "corr-old", fr.posts[0].RevisionMarker())
	p := newTestPusher(mem, fr, selfWrites)

	res, err := p.PushPage(context.Background(), PushRequest{
		OrgID: testOrg, SiteID: testSiteID, ContentID: "content-1", Action: ActionUpdate,
	})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.Conflict)
	assert.Equal(t, 1, fr.updateCalls)
}

func TestPushTenantChecks(t *testing.T) {
	mem := newTestStore()
	mem.AddSite(models.Site{ID: "site-other", OrgID: "org-other", Active: true})
	seedContent(mem, models.ContentItem{
		ID:             "content-1",
		Title:          "page",
		RevisionMarker: "v1",
	})
	p := newTestPusher(mem, &fakeRemote{}, NewSelfWrites(time.Minute))

	t.Run("wrong org for site", func(t *testing.T) {
		_, err := p.PushPage(context.Background(), PushRequest{
			OrgID: "org-other", SiteID: testSiteID, ContentID: "content-1", Action: ActionCreate,
		})
		assert.ErrorIs(t, err, ErrTenantMismatch)
	})

	t.Run("content bound to another site", func(t *testing.T) {
		_, err := p.PushPage(context.Background(), PushRequest{
			OrgID: "org-other", SiteID: "site-other", ContentID: "content-1", Action: ActionCreate,
		})
		assert.ErrorIs(t, err, ErrTenantMismatch)
	})

	t.Run("unknown site", func(t *testing.T) {
		_, err := p.PushPage(context.Background(), PushRequest{
			OrgID: testOrg, SiteID: "missing", ContentID: "content-1", Action: ActionCreate,
		})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestPushUnknownAction(t *testing.T) {
	mem := newTestStore()
	seedContent(mem, models.ContentItem{
		ID:             "content-1",
		Title:          "page",
		RevisionMarker: "v1",
	})
	p := newTestPusher(mem, &fakeRemote{}, NewSelfWrites(time.Minute))

	_, err := p.PushPage(context.Background(), PushRequest{
		OrgID: testOrg, SiteID: testSiteID, ContentID: "content-1", Action: "delete",
	})
	assert.Error(t, err)
}
