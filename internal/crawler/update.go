// internal/crawler/update.go
package crawler

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"policy-atlas/internal/database"
	custom_errors "policy-atlas/internal/errors"
	"policy-atlas/internal/model"
)

// update re-checks already-known repositories that were never crawled or are
// known to have changed upstream. Candidates are checked concurrently with a
// bounded group; each candidate's full name is distinct, so no two workers
// ever touch the same repository rows.
func (c *Crawler) update(ctx context.Context, starThreshold int) (model.RunStats, error) {
	var stats model.RunStats

	repos, err := c.store.ListRepositoriesNeedingCheck(ctx)
	if err != nil {
		c.logger.Error("Update: failed to list candidate repositories", "error", err)
		stats.Errors++
		return stats, err
	}
	stats.ReposChecked = len(repos)

	c.logger.Info("Update: checking repositories", "count", len(repos))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(updateConcurrency)

	for _, repo := range repos {
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			repoStats := c.updateRepository(gctx, repo, starThreshold)
			mu.Lock()
			stats.Merge(repoStats)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return stats, ctx.Err()
}

// updateRepository checks one repository against the provider. Failures are
// isolated: they are counted, last_crawled_at still advances so a broken
// target is not retried every run, and the scan moves on.
func (c *Crawler) updateRepository(ctx context.Context, repo model.Repository, starThreshold int) model.RunStats {
	var stats model.RunStats
	logger := c.logger.With("repo", repo.FullName)
	now := c.now()

	meta, err := c.provider.GetRepository(ctx, repo.FullName)
	if err != nil {
		if custom_errors.IsQuotaExceeded(err) {
			// Transient: cool down and abandon the item for this run
			// without marking it checked.
			logger.Warn("Update: provider quota exceeded, cooling down", "error", err)
			c.cooldown(ctx, c.cooldownDur)
			stats.Errors++
			return stats
		}
		// Renamed or deleted upstream, or a plain request failure.
		logger.Warn("Update: failed to fetch repository metadata", "error", err)
		stats.Errors++
		if touchErr := c.store.TouchRepositoryLastCrawled(ctx, repo.ID, now); touchErr != nil {
			logger.Error("Update: failed to advance crawl timestamp", "error", touchErr)
			stats.Errors++
		}
		return stats
	}

	// Not pushed since the last crawl: skip the file-level search entirely,
	// but still advance last_crawled_at to avoid re-checking too soon.
	if repo.LastCrawledAt != nil && meta.PushedAt != nil && !meta.PushedAt.After(*repo.LastCrawledAt) {
		stats.Skipped++
		if err := c.store.TouchRepositoryLastCrawled(ctx, repo.ID, now); err != nil {
			logger.Error("Update: failed to advance crawl timestamp", "error", err)
			stats.Errors++
		}
		return stats
	}

	logger.Info("Update: repository changed upstream, re-checking files")

	for _, term := range c.searchTerms {
		if ctx.Err() != nil {
			return stats
		}

		matches, err := c.provider.SearchCode(ctx, term, repo.FullName, 0)
		if err != nil {
			if custom_errors.IsQuotaExceeded(err) {
				logger.Warn("Update: provider quota exceeded, cooling down", "term", term, "error", err)
				c.cooldown(ctx, c.cooldownDur)
			} else {
				logger.Warn("Update: search failed", "term", term, "error", err)
			}
			stats.Errors++
			continue
		}
		stats.Searched += len(matches)

		for _, match := range matches {
			match.Repository = *meta // search results carry stale metadata
			err := c.store.WithTx(ctx, func(tx database.Store) error {
				return c.ingestFile(ctx, tx, match, &repo, starThreshold, &stats)
			})
			if err != nil {
				if custom_errors.IsQuotaExceeded(err) {
					logger.Warn("Update: provider quota exceeded, cooling down", "path", match.Path, "error", err)
					c.cooldown(ctx, c.cooldownDur)
				} else {
					logger.Warn("Update: failed to ingest file", "path", match.Path, "error", err)
				}
				stats.Errors++
			}
		}
	}

	// Metadata refresh and timestamp advance commit together, after every
	// file of this repository has had its own transaction.
	err = c.store.UpdateRepositoryCrawl(ctx, database.UpdateRepositoryCrawlParams{
		ID:            repo.ID,
		Stars:         meta.Stars,
		Forks:         meta.Forks,
		Language:      meta.Language,
		UpdatedAt:     meta.PushedAt,
		LastCrawledAt: now,
	})
	if err != nil {
		logger.Error("Update: failed to refresh repository metadata", "error", err)
		stats.Errors++
	}

	return stats
}
