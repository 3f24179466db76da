package models

import (
	"database/sql"
	"time"
)

// FeedItem represents a row in the feed_items table. A row is uniquely
// identified by both its guid and its link; a candidate matching either
// value of an existing row is a duplicate.
type FeedItem struct {
	ID          int64          `db:"id"`
	Source      string         `db:"source"`
	GUID        string         `db:"guid"`
	Title       string         `db:"title"`
	Link        string         `db:"link"`
	Summary     string         `db:"summary"`
	ImageURL    sql.NullString `db:"image_url"`
	PublishedAt time.Time      `db:"published_at"`
	CreatedAt   time.Time      `db:"created_at"`
	ViewCount   int64          `db:"view_count"`
}

// NewFeedItem creates a new FeedItem with its ingestion timestamp set.
func NewFeedItem() *FeedItem {
	return &FeedItem{
		CreatedAt: time.Now(),
	}
}
