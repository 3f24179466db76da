// Package feed turns raw upstream feed entries into canonical records.
package feed

import (
	"errors"
	"time"

	"github.com/mmcdole/gofeed"

	"newsriver/aggregator/internal/models"
)

// UntitledPlaceholder is stored when an entry carries no usable title.
const UntitledPlaceholder = "(untitled)"

// ErrNoLink marks an entry without a resolvable link. Such entries
// cannot be identified or deduplicated and are discarded.
var ErrNoLink = errors.New("entry has no link")

// Normalize converts one parsed entry into a candidate FeedItem.
//
// The publication timestamp falls back in order: the entry's published
// time, its updated time, then now. The guid falls back to the link,
// and the source to the feed's configured URL when the feed declares
// no title. No network or store access happens here.
func Normalize(parsed *gofeed.Feed, feedURL string, item *gofeed.Item, now time.Time) (*models.FeedItem, error) {
	if item == nil || item.Link == "" {
		return nil, ErrNoLink
	}

	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}

	title := item.Title
	if title == "" {
		title = UntitledPlaceholder
	}

	publishedAt := now
	if item.PublishedParsed != nil {
		publishedAt = *item.PublishedParsed
	} else if item.UpdatedParsed != nil {
		publishedAt = *item.UpdatedParsed
	}

	source := feedURL
	if parsed != nil && parsed.Title != "" {
		source = parsed.Title
	}

	candidate := models.NewFeedItem()
	candidate.Source = source
	candidate.GUID = guid
	candidate.Title = title
	candidate.Link = item.Link
	candidate.Summary = item.Description
	candidate.PublishedAt = publishedAt
	return candidate, nil
}
