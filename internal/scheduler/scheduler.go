// Package scheduler drives periodic feed ingestion. Sources are
// processed sequentially in configured order; each source's failures
// stay contained in its own result and never abort the cycle.
package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog/log"

	"newsriver/aggregator/internal/config"
	"newsriver/aggregator/internal/feed"
	"newsriver/aggregator/internal/image"
	"newsriver/aggregator/internal/models"
	"newsriver/aggregator/internal/store"
)

// SourceResult aggregates the outcome of one source within a cycle.
// Err is set for fetch/parse failures and whole-batch persistence
// failures; partial per-entry problems show up as Discarded.
type SourceResult struct {
	URL        string
	Fetched    int
	Inserted   int
	Duplicates int
	Discarded  int
	Err        error
}

// Scheduler ingests the configured sources on a fixed period.
type Scheduler struct {
	store        *store.Store
	parser       *gofeed.Parser
	sources      []string
	fetchLimit   int
	fetchTimeout time.Duration
	interval     time.Duration
}

// New creates a Scheduler writing through the given store.
func New(st *store.Store, cfg *config.Config) *Scheduler {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: cfg.FetchTimeout}
	parser.UserAgent = "NewsRiver/1.0"

	return &Scheduler{
		store:        st,
		parser:       parser,
		sources:      cfg.FeedURLs,
		fetchLimit:   cfg.FetchLimit,
		fetchTimeout: cfg.FetchTimeout,
		interval:     cfg.FetchInterval,
	}
}

// RunCycle ingests every configured source once, in configured order,
// and returns one result per source. Running the same cycle twice over
// unchanged upstream content does not change the stored row count;
// idempotence is enforced entirely by the store's uniqueness check.
func (s *Scheduler) RunCycle(ctx context.Context) []SourceResult {
	results := make([]SourceResult, 0, len(s.sources))
	for _, sourceURL := range s.sources {
		res := s.ingestSource(ctx, sourceURL)
		if res.Err != nil {
			log.Warn().
				Err(res.Err).
				Str("source", sourceURL).
				Msg("Source skipped for this cycle")
		} else {
			log.Info().
				Str("source", sourceURL).
				Int("fetched", res.Fetched).
				Int("inserted", res.Inserted).
				Int("duplicates", res.Duplicates).
				Int("discarded", res.Discarded).
				Msg("Source processed")
		}
		results = append(results, res)
	}
	return results
}

// ingestSource fetches and parses one feed, normalizes its entries,
// resolves static images, and submits the batch to the store.
func (s *Scheduler) ingestSource(ctx context.Context, sourceURL string) SourceResult {
	res := SourceResult{URL: sourceURL}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	parsed, err := s.parser.ParseURLWithContext(sourceURL, fetchCtx)
	if err != nil {
		res.Err = fmt.Errorf("error fetching feed %s: %w", sourceURL, err)
		return res
	}

	entries := parsed.Items
	if s.fetchLimit > 0 && len(entries) > s.fetchLimit {
		entries = entries[:s.fetchLimit]
	}
	res.Fetched = len(entries)

	now := time.Now()
	batch := make([]*models.FeedItem, 0, len(entries))
	for _, entry := range entries {
		candidate, err := feed.Normalize(parsed, sourceURL, entry, now)
		if err != nil {
			res.Discarded++
			log.Debug().
				Err(err).
				Str("source", sourceURL).
				Msg("Entry discarded")
			continue
		}
		if imageURL := image.ResolveStatic(entry, candidate.Summary); imageURL != "" {
			candidate.ImageURL = sql.NullString{String: imageURL, Valid: true}
		}
		batch = append(batch, candidate)
	}

	inserted, duplicates, err := s.store.InsertBatch(ctx, batch)
	if err != nil {
		res.Err = fmt.Errorf("error persisting batch for %s: %w", sourceURL, err)
		return res
	}
	res.Inserted = inserted
	res.Duplicates = duplicates
	return res
}

// Run executes one cycle immediately and then one per interval until
// ctx is cancelled. Cancellation is observed between cycles only; a
// cycle already in progress runs to completion under its own
// per-source timeouts.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().
		Dur("interval", s.interval).
		Int("sources", len(s.sources)).
		Msg("Ingestion scheduler starting")

	s.runCycleLogged(context.WithoutCancel(ctx))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCycleLogged(context.WithoutCancel(ctx))
			log.Info().
				Time("next_run", time.Now().Add(s.interval)).
				Msg("Waiting for next ingestion cycle")

		case <-ctx.Done():
			log.Info().Msg("Shutting down ingestion scheduler")
			return
		}
	}
}

func (s *Scheduler) runCycleLogged(ctx context.Context) {
	startTime := time.Now()
	results := s.RunCycle(ctx)

	var inserted, duplicates, discarded, failed int
	for _, res := range results {
		inserted += res.Inserted
		duplicates += res.Duplicates
		discarded += res.Discarded
		if res.Err != nil {
			failed++
		}
	}

	log.Info().
		Dur("duration", time.Since(startTime)).
		Int("sources", len(results)).
		Int("failed_sources", failed).
		Int("inserted", inserted).
		Int("duplicates", duplicates).
		Int("discarded", discarded).
		Msg("Ingestion cycle finished")
}
