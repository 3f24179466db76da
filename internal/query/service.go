// Package query serves the priority-ranked, paginated view of stored
// items, repairing missing images opportunistically on each read.
package query

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"newsriver/aggregator/internal/image"
	"newsriver/aggregator/internal/models"
	"newsriver/aggregator/internal/store"
)

// Item is the API representation of one stored feed item.
type Item struct {
	ID           int64     `json:"id"`
	Source       string    `json:"source"`
	GUID         string    `json:"guid"`
	Title        string    `json:"title"`
	Link         string    `json:"link"`
	Summary      string    `json:"summary"`
	ImageURL     *string   `json:"image_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	PublishedAt  time.Time `json:"published_at"`
	ViewCount    int64     `json:"view_count"`
}

// Page is one window of the ranked listing. Total is deliberately
// never populated: the API does not promise an exact count and the
// service never runs one.
type Page struct {
	Items   []Item `json:"items"`
	Total   *int64 `json:"total"`
	HasMore bool   `json:"has_more"`
}

// Service answers read requests against the store.
type Service struct {
	store    *store.Store
	resolver *image.Resolver
}

// NewService creates a Service. The resolver is used for the on-demand
// remote image tier on rows the static chain failed at ingestion time.
func NewService(st *store.Store, resolver *image.Resolver) *Service {
	return &Service{store: st, resolver: resolver}
}

// List returns one page of the ranked listing. It fetches limit+1 rows
// to decide has_more without a count query, then repairs each row's
// image: an image extracted live from the summary wins over the stored
// value, and rows still missing one trigger a synchronous remote fetch
// whose result is persisted before responding. A row that defeats
// every tier still gets a deterministic placeholder thumbnail; this
// path degrades, it never fails.
func (s *Service) List(ctx context.Context, offset, limit int) (*Page, error) {
	rows, err := s.store.ListRanked(ctx, offset, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	items := make([]Item, 0, len(rows))
	for i := range rows {
		items = append(items, s.present(ctx, &rows[i], true))
	}

	return &Page{
		Items:   items,
		HasMore: hasMore,
	}, nil
}

// Get returns the API representation of a single item. No remote
// repair happens here; the listing is the repair trigger.
func (s *Service) Get(ctx context.Context, id int64) (*Item, error) {
	row, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, err
	}
	item := s.present(ctx, row, false)
	return &item, nil
}

// present builds the response item, applying the image preference
// order: live summary scan, stored value, then (when allowed) the
// remote tier with write-back, and finally the placeholder.
func (s *Service) present(ctx context.Context, row *models.FeedItem, allowRemote bool) Item {
	imageURL := image.FromHTML(row.Summary)
	if imageURL == "" && row.ImageURL.Valid {
		imageURL = row.ImageURL.String
	}
	if imageURL == "" && allowRemote {
		if imageURL = s.resolver.ResolveRemote(ctx, row.Link); imageURL != "" {
			if err := s.store.UpdateImage(ctx, row.ID, imageURL); err != nil {
				// The repaired value still goes out in the response;
				// the next read will try the write-back again.
				log.Warn().
					Err(err).
					Int64("item_id", row.ID).
					Msg("Failed to persist repaired image")
			}
		}
	}

	thumbnail := imageURL
	if thumbnail == "" {
		thumbnail = image.Placeholder(row.Title, row.Source)
	}

	item := Item{
		ID:           row.ID,
		Source:       row.Source,
		GUID:         row.GUID,
		Title:        row.Title,
		Link:         row.Link,
		Summary:      row.Summary,
		ThumbnailURL: thumbnail,
		PublishedAt:  row.PublishedAt,
		ViewCount:    row.ViewCount,
	}
	if imageURL != "" {
		item.ImageURL = &imageURL
	}
	return item
}
