package query

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsriver/aggregator/internal/database"
	"newsriver/aggregator/internal/image"
	"newsriver/aggregator/internal/models"
	"newsriver/aggregator/internal/store"
)

func newTestService(t *testing.T, preferredSource string) (*Service, *store.Store) {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, preferredSource)
	return NewService(st, image.NewResolver(500*time.Millisecond)), st
}

// deadLink is unroutable fast: the remote tier fails immediately
// instead of reaching out to the network.
const deadLink = "http://127.0.0.1:1/articles/"

func seedItem(n int, summary string) *models.FeedItem {
	item := models.NewFeedItem()
	item.Source = "Example Feed"
	item.GUID = fmt.Sprintf("urn:guid:%d", n)
	item.Link = deadLink + fmt.Sprint(n)
	item.Title = fmt.Sprintf("Article %d", n)
	item.Summary = summary
	item.PublishedAt = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(n) * time.Minute)
	return item
}

func TestList_PaginationWindow(t *testing.T) {
	svc, st := newTestService(t, "")
	ctx := context.Background()

	batch := make([]*models.FeedItem, 0, 31)
	for n := 1; n <= 31; n++ {
		batch = append(batch, seedItem(n, `<img src="https://img.example/x.png">`))
	}
	_, _, err := st.InsertBatch(ctx, batch)
	require.NoError(t, err)

	page, err := svc.List(ctx, 0, 30)
	require.NoError(t, err)
	assert.Len(t, page.Items, 30)
	assert.True(t, page.HasMore)
	assert.Nil(t, page.Total, "the API never computes an exact total")

	page, err = svc.List(ctx, 30, 30)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.False(t, page.HasMore)

	page, err = svc.List(ctx, 100, 30)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestList_PreferredSourceRanksFirst(t *testing.T) {
	svc, st := newTestService(t, "sspai")
	ctx := context.Background()

	when := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	plain := seedItem(1, `<img src="https://img.example/x.png">`)
	plain.PublishedAt = when
	preferred := seedItem(2, `<img src="https://img.example/x.png">`)
	preferred.Source = "sspai"
	preferred.PublishedAt = when

	_, _, err := st.InsertBatch(ctx, []*models.FeedItem{plain, preferred})
	require.NoError(t, err)

	page, err := svc.List(ctx, 0, 30)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, preferred.GUID, page.Items[0].GUID)
}

func TestList_SummaryImageWinsOverStoredValue(t *testing.T) {
	svc, st := newTestService(t, "")
	ctx := context.Background()

	item := seedItem(1, `<img src="https://img.example/from-summary.png">`)
	item.ImageURL = sql.NullString{String: "https://img.example/stored.png", Valid: true}
	_, _, err := st.InsertBatch(ctx, []*models.FeedItem{item})
	require.NoError(t, err)

	page, err := svc.List(ctx, 0, 30)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].ImageURL)
	assert.Equal(t, "https://img.example/from-summary.png", *page.Items[0].ImageURL)
	assert.Equal(t, "https://img.example/from-summary.png", page.Items[0].ThumbnailURL)
}

func TestList_StoredValueUsedWhenSummaryHasNoImage(t *testing.T) {
	svc, st := newTestService(t, "")
	ctx := context.Background()

	item := seedItem(1, "<p>no markup image</p>")
	item.ImageURL = sql.NullString{String: "https://img.example/stored.png", Valid: true}
	_, _, err := st.InsertBatch(ctx, []*models.FeedItem{item})
	require.NoError(t, err)

	page, err := svc.List(ctx, 0, 30)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].ImageURL)
	assert.Equal(t, "https://img.example/stored.png", *page.Items[0].ImageURL)
}

func TestList_RemoteRepairPersists(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><meta property="og:image" content="https://img.example/repaired.png"></head></html>`)
	}))
	defer ts.Close()

	svc, st := newTestService(t, "")
	ctx := context.Background()

	item := seedItem(1, "<p>nothing static</p>")
	item.Link = ts.URL + "/articles/1"
	_, _, err := st.InsertBatch(ctx, []*models.FeedItem{item})
	require.NoError(t, err)

	page, err := svc.List(ctx, 0, 30)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.Items[0].ImageURL)
	assert.Equal(t, "https://img.example/repaired.png", *page.Items[0].ImageURL)

	// The repair was written back before responding.
	stored, err := st.GetItem(ctx, page.Items[0].ID)
	require.NoError(t, err)
	assert.True(t, stored.ImageURL.Valid)
	assert.Equal(t, "https://img.example/repaired.png", stored.ImageURL.String)
}

func TestList_PlaceholderWhenEveryTierFails(t *testing.T) {
	svc, st := newTestService(t, "")
	ctx := context.Background()

	first := seedItem(1, "<p>plain</p>")
	first.Title = "Shared Title"
	second := seedItem(2, "<p>plain</p>")
	second.Title = "Shared Title"
	third := seedItem(3, "<p>plain</p>")
	third.Title = "Another Title"

	_, _, err := st.InsertBatch(ctx, []*models.FeedItem{first, second, third})
	require.NoError(t, err)

	page, err := svc.List(ctx, 0, 30)
	require.NoError(t, err)
	require.Len(t, page.Items, 3)

	byGUID := map[string]Item{}
	for _, item := range page.Items {
		byGUID[item.GUID] = item
		assert.Nil(t, item.ImageURL, "no image resolves for %s", item.GUID)
		assert.NotEmpty(t, item.ThumbnailURL)
	}

	assert.Equal(t, byGUID[first.GUID].ThumbnailURL, byGUID[second.GUID].ThumbnailURL,
		"same title must yield the same placeholder")
	assert.NotEqual(t, byGUID[first.GUID].ThumbnailURL, byGUID[third.GUID].ThumbnailURL,
		"different titles must yield different placeholders")
}

func TestGet_ReturnsSingleItem(t *testing.T) {
	svc, st := newTestService(t, "")
	ctx := context.Background()

	item := seedItem(1, `<img src="https://img.example/x.png">`)
	_, _, err := st.InsertBatch(ctx, []*models.FeedItem{item})
	require.NoError(t, err)

	rows, err := st.ListRanked(ctx, 0, 1)
	require.NoError(t, err)

	got, err := svc.Get(ctx, rows[0].ID)
	require.NoError(t, err)
	assert.Equal(t, item.GUID, got.GUID)

	_, err = svc.Get(ctx, 99999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
