package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsriver/aggregator/internal/config"
	"newsriver/aggregator/internal/database"
	"newsriver/aggregator/internal/store"
)

const feedDoc = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:media="http://search.yahoo.com/mrss/">
<channel><title>Test Feed</title><link>https://example.com</link>
<item>
  <title>First</title>
  <link>https://example.com/articles/1</link>
  <guid>urn:guid:1</guid>
  <pubDate>Sat, 01 Mar 2025 10:00:00 GMT</pubDate>
  <media:content url="https://img.example/1.jpg" medium="image"/>
  <description><![CDATA[<p>first body</p>]]></description>
</item>
<item>
  <title>Second</title>
  <link>https://example.com/articles/2</link>
  <description><![CDATA[<p>second body</p>]]></description>
</item>
<item>
  <title>No Link At All</title>
  <description>cannot be identified</description>
</item>
</channel></rss>`

func newTestScheduler(t *testing.T, sources []string, fetchLimit int) (*Scheduler, *store.Store) {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	st := store.New(db, "")
	cfg := &config.Config{
		FeedURLs:      sources,
		FetchLimit:    fetchLimit,
		FetchTimeout:  2 * time.Second,
		FetchInterval: time.Minute,
	}
	return New(st, cfg), st
}

func newFeedServer(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, feedDoc)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestRunCycle_IngestsEntries(t *testing.T) {
	ts := newFeedServer(t)
	sched, st := newTestScheduler(t, []string{ts.URL}, 100)
	ctx := context.Background()

	results := sched.RunCycle(ctx)
	require.Len(t, results, 1)
	res := results[0]
	require.NoError(t, res.Err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 0, res.Duplicates)
	assert.Equal(t, 1, res.Discarded, "the linkless entry is discarded")

	items, err := st.ListRanked(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	byGUID := make(map[string]int)
	for i, item := range items {
		byGUID[item.GUID] = i
		assert.Equal(t, "Test Feed", item.Source)
	}

	first := items[byGUID["urn:guid:1"]]
	assert.True(t, first.ImageURL.Valid, "static chain resolves the media attachment at ingestion")
	assert.Equal(t, "https://img.example/1.jpg", first.ImageURL.String)

	// The second entry had no explicit guid; its link stands in.
	second := items[byGUID["https://example.com/articles/2"]]
	assert.False(t, second.ImageURL.Valid)
}

func TestRunCycle_Idempotent(t *testing.T) {
	ts := newFeedServer(t)
	sched, st := newTestScheduler(t, []string{ts.URL}, 100)
	ctx := context.Background()

	sched.RunCycle(ctx)
	results := sched.RunCycle(ctx)
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 0, results[0].Inserted)
	assert.Equal(t, 2, results[0].Duplicates)

	count, err := st.CountItems(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestRunCycle_SourceFailureIsIsolated(t *testing.T) {
	ts := newFeedServer(t)
	// The unreachable source comes first; the healthy one must still be
	// processed, in order.
	sched, st := newTestScheduler(t, []string{"http://127.0.0.1:1/feed", ts.URL}, 100)
	ctx := context.Background()

	results := sched.RunCycle(ctx)
	require.Len(t, results, 2)
	assert.Error(t, results[0].Err)
	require.NoError(t, results[1].Err)
	assert.Equal(t, 2, results[1].Inserted)

	count, err := st.CountItems(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestRunCycle_MalformedFeedIsIsolated(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "this is not a feed document")
	}))
	defer bad.Close()

	sched, st := newTestScheduler(t, []string{bad.URL}, 100)
	results := sched.RunCycle(context.Background())
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)

	count, err := st.CountItems(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRunCycle_RespectsFetchLimit(t *testing.T) {
	ts := newFeedServer(t)
	sched, _ := newTestScheduler(t, []string{ts.URL}, 1)

	results := sched.RunCycle(context.Background())
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, 1, results[0].Fetched)
	assert.Equal(t, 1, results[0].Inserted)
}
