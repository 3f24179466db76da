// Package image resolves a representative image URL for a feed entry
// through a layered fallback chain: structured entry metadata first,
// markup embedded in the entry summary second, and an on-demand fetch
// of the article page last.
package image

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"
)

const (
	// Browser-like UA; several article pages serve meta tags only to browsers.
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120 Safari/537.36"

	maxRemoteBodyBytes = 2 << 20

	placeholderBase     = "https://source.unsplash.com/featured/160x100/?"
	placeholderFallback = "news"
	placeholderMaxRunes = 60
)

// imgSrcRe pulls the first <img src> out of raw summary markup. The
// first attribute value wins even when malformed markup yields a false
// positive; a real DOM parse would change that observable behavior.
var imgSrcRe = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)

// metaSelectors are tried in priority order against the fetched
// article page; the first selector with a non-empty content wins.
var metaSelectors = []string{
	`meta[property="og:image"]`,
	`meta[name="og:image"]`,
	`meta[name="twitter:image"]`,
	`meta[property="og:image:url"]`,
}

// ResolveStatic evaluates the side-effect-free fallback chain over one
// entry, top to bottom, stopping at the first hit:
//
//  1. media:content / media:thumbnail attachments (original order),
//     or the feed-declared entry image;
//  2. enclosures with an image/* MIME type, or any declared enclosure;
//  3. the first <img src> inside the entry's raw summary markup.
//
// Returns "" when every tier misses.
func ResolveStatic(item *gofeed.Item, summary string) string {
	if item != nil {
		if u := fromMediaExtensions(item); u != "" {
			return u
		}
		if item.Image != nil && item.Image.URL != "" {
			return item.Image.URL
		}
		if u := fromEnclosures(item); u != "" {
			return u
		}
	}
	return FromHTML(summary)
}

// fromMediaExtensions scans media:content then media:thumbnail
// elements, preserving their declared order.
func fromMediaExtensions(item *gofeed.Item) string {
	media, ok := item.Extensions["media"]
	if !ok {
		return ""
	}
	for _, key := range []string{"content", "thumbnail"} {
		for _, ext := range media[key] {
			if u := ext.Attrs["url"]; u != "" {
				return u
			}
		}
	}
	return ""
}

// fromEnclosures returns the first enclosure URL in declared order.
// An enclosure qualifies when its MIME type begins with image/, or
// simply by being declared as an enclosure; upstream feeds routinely
// attach cover images as bare enclosures with no type at all.
func fromEnclosures(item *gofeed.Item) string {
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		// Everything gofeed collects here was declared rel="enclosure"
		// or came from an RSS <enclosure> element, so an image/* MIME
		// type is sufficient but not required.
		return enc.URL
	}
	return ""
}

// FromHTML extracts the first <img src> occurrence from raw markup.
// Returns "" when the markup contains none.
func FromHTML(markup string) string {
	if markup == "" {
		return ""
	}
	m := imgSrcRe.FindStringSubmatch(markup)
	if m == nil {
		return ""
	}
	return m[1]
}

// Resolver performs the on-demand remote tier: fetching an article
// page and scanning it for link-preview meta tags.
type Resolver struct {
	client *http.Client
}

// NewResolver creates a Resolver whose page fetches are bounded by timeout.
func NewResolver(timeout time.Duration) *Resolver {
	return &Resolver{
		client: &http.Client{Timeout: timeout},
	}
}

// ResolveRemote fetches the article page and scans it for og:image,
// its name-attribute variant, twitter:image and og:image:url, in that
// order. Relative and protocol-relative results are normalized against
// the article URL. Any network error, non-200 response or absence of
// all patterns degrades to "" silently; this never fails the caller.
func (r *Resolver) ResolveRemote(ctx context.Context, articleURL string) string {
	if articleURL == "" {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, articleURL, nil)
	if err != nil {
		log.Debug().Err(err).Str("url", articleURL).Msg("Remote image request build failed")
		return ""
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("url", articleURL).Msg("Remote image fetch failed")
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Debug().Int("status", resp.StatusCode).Str("url", articleURL).Msg("Remote image fetch non-200")
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxRemoteBodyBytes))
	if err != nil {
		log.Debug().Err(err).Str("url", articleURL).Msg("Remote image page parse failed")
		return ""
	}

	for _, sel := range metaSelectors {
		content, _ := doc.Find(sel).First().Attr("content")
		if content = strings.TrimSpace(content); content != "" {
			return normalizeURL(content, articleURL)
		}
	}
	return ""
}

// normalizeURL resolves protocol-relative and relative image URLs
// against the article URL's origin. Already-absolute URLs and
// unparsable input pass through untouched.
func normalizeURL(raw, base string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if ref.IsAbs() {
		return raw
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return raw
	}
	return baseURL.ResolveReference(ref).String()
}

// Placeholder derives a deterministic thumbnail reference from the
// item's title, falling back to its source name and finally to a fixed
// keyword. Identical input always yields the identical URL.
func Placeholder(title, source string) string {
	query := strings.TrimSpace(title)
	if query == "" {
		query = strings.TrimSpace(source)
	}
	if query == "" {
		query = placeholderFallback
	}
	if runes := []rune(query); len(runes) > placeholderMaxRunes {
		query = string(runes[:placeholderMaxRunes])
	}
	return placeholderBase + url.QueryEscape(query)
}
