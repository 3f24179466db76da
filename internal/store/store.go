// Package store is the single shared mutable resource of the system:
// all persistence goes through it, and its guarantees (dual-key
// uniqueness on insert, idempotent image write-back) are what let the
// ingestion scheduler and the read path run concurrently without any
// caller-side coordination.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"newsriver/aggregator/internal/database"
	"newsriver/aggregator/internal/models"
)

// ErrNotFound is returned when a requested feed item does not exist.
var ErrNotFound = errors.New("feed item not found")

// Store provides access to feed items and their view records.
type Store struct {
	db *database.DB

	// preferredSource ranks matching rows ahead of all others; matched
	// as a substring against both link and source. Empty disables the
	// priority tier.
	preferredSource string
}

// New creates a Store using an existing database connection.
func New(db *database.DB, preferredSource string) *Store {
	return &Store{db: db, preferredSource: preferredSource}
}

// InsertBatch writes a batch of candidate items inside one transaction.
// Deduplication is enforced by the storage layer itself: feed_items
// carries UNIQUE constraints on both guid and link, and the insert is
// declared ON CONFLICT DO NOTHING, so a candidate matching either key
// of any stored row is skipped, never merged. Re-running the same
// batch is therefore a no-op.
//
// Any statement failure rolls back the entire batch; the caller treats
// that as one source's persistence failure and moves on.
func (s *Store) InsertBatch(ctx context.Context, batch []*models.FeedItem) (inserted, duplicates int, err error) {
	if len(batch) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO feed_items (source, guid, link, title, summary, image_url, published_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING;`)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for _, item := range batch {
		res, err := stmt.ExecContext(ctx,
			item.Source, item.GUID, item.Link, item.Title,
			item.Summary, item.ImageURL, item.PublishedAt, item.CreatedAt,
		)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to insert item %s: %w", item.Link, err)
		}
		rowsAffected, err := res.RowsAffected()
		if err != nil {
			return 0, 0, fmt.Errorf("failed to get rows affected for %s: %w", item.Link, err)
		}
		if rowsAffected > 0 {
			inserted++
		} else {
			duplicates++
			log.Debug().
				Str("guid", item.GUID).
				Str("link", item.Link).
				Msg("Duplicate item detected")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit batch: %w", err)
	}
	return inserted, duplicates, nil
}

// UpdateImage persists a repaired image URL. An empty URL is a no-op:
// a present value is never cleared, only replaced. Concurrent repairs
// of the same row are last-writer-wins; both writers apply the same
// deterministic chain to the same row, so the race is benign.
func (s *Store) UpdateImage(ctx context.Context, id int64, imageURL string) error {
	if imageURL == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE feed_items SET image_url = ? WHERE id = ?`, imageURL, id)
	if err != nil {
		return fmt.Errorf("failed to update image for item %d: %w", id, err)
	}
	return nil
}

// ListRanked returns a window of items ordered by the priority tier
// (preferred-source rows first), then published_at descending, with
// stored row order breaking timestamp ties. Callers request limit+1
// rows to learn whether more pages exist without counting the table.
func (s *Store) ListRanked(ctx context.Context, offset, limit int) ([]models.FeedItem, error) {
	pattern := "%" + s.preferredSource + "%"

	var items []models.FeedItem
	err := s.db.SelectContext(ctx, &items, `
		SELECT * FROM feed_items
		ORDER BY
			CASE WHEN ? != '' AND (link LIKE ? OR source LIKE ?) THEN 1 ELSE 0 END DESC,
			published_at DESC,
			id ASC
		LIMIT ? OFFSET ?`,
		s.preferredSource, pattern, pattern, limit, offset)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.FeedItem{}, nil
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return items, nil
}

// GetItem fetches a single item by id.
func (s *Store) GetItem(ctx context.Context, id int64) (*models.FeedItem, error) {
	var item models.FeedItem
	err := s.db.GetContext(ctx, &item, `SELECT * FROM feed_items WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}
	return &item, nil
}

// RecordView registers one view of an item from a client address. Each
// (item, address) pair is counted once; repeat visits return the
// current count unchanged. The returned bool reports whether this call
// incremented the counter.
func (s *Store) RecordView(ctx context.Context, id int64, clientIP string) (int64, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var viewCount int64
	err = tx.GetContext(ctx, &viewCount, `SELECT view_count FROM feed_items WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, ErrNotFound
		}
		return 0, false, fmt.Errorf("failed to load item %d: %w", id, err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO article_views (item_id, client_ip)
		VALUES (?, ?)
		ON CONFLICT DO NOTHING;`, id, clientIP)
	if err != nil {
		return 0, false, fmt.Errorf("failed to record view for item %d: %w", id, err)
	}
	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("failed to get rows affected for view of item %d: %w", id, err)
	}

	counted := rowsAffected > 0
	if counted {
		if _, err := tx.ExecContext(ctx,
			`UPDATE feed_items SET view_count = view_count + 1 WHERE id = ?`, id); err != nil {
			return 0, false, fmt.Errorf("failed to increment view count for item %d: %w", id, err)
		}
		viewCount++
	}

	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("failed to commit view for item %d: %w", id, err)
	}
	return viewCount, counted, nil
}

// ViewsForItem returns the recorded views of one item, oldest first.
func (s *Store) ViewsForItem(ctx context.Context, id int64) ([]models.ArticleView, error) {
	var views []models.ArticleView
	err := s.db.SelectContext(ctx, &views,
		`SELECT * FROM article_views WHERE item_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load views for item %d: %w", id, err)
	}
	return views, nil
}

// CountItems returns the total number of stored items.
func (s *Store) CountItems(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM feed_items`); err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return count, nil
}
