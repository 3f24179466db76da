package models

import "time"

// ArticleView represents a row in the article_views table. One row per
// (item, client IP) pair; the UNIQUE constraint makes repeat visits
// from the same address a no-op.
type ArticleView struct {
	ID       int64     `db:"id"`
	ItemID   int64     `db:"item_id"`
	ClientIP string    `db:"client_ip"`
	ViewedAt time.Time `db:"viewed_at"`
}
