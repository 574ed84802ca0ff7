// internal/crawler/discovery.go
package crawler

import (
	"context"
	"errors"

	"policy-atlas/internal/database"
	custom_errors "policy-atlas/internal/errors"
	"policy-atlas/internal/model"
)

// discover scans the provider broadly for previously unknown repositories.
// Already-known repositories are skipped untouched: refreshing them is the
// update scan's responsibility, which keeps the two phases from racing on the
// same rows within one run.
func (c *Crawler) discover(ctx context.Context, resultLimit, starThreshold int) (model.RunStats, error) {
	var stats model.RunStats

	for _, term := range c.searchTerms {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		logger := c.logger.With("term", term)
		logger.Info("Discovery: searching")

		matches, err := c.provider.SearchCode(ctx, term, "", resultLimit)
		if err != nil {
			if custom_errors.IsQuotaExceeded(err) {
				logger.Warn("Discovery: provider quota exceeded, cooling down", "error", err)
				c.cooldown(ctx, c.cooldownDur)
			} else {
				logger.Warn("Discovery: search failed", "error", err)
			}
			stats.Errors++
			continue
		}
		stats.Searched += len(matches)

		for _, match := range matches {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			c.discoverMatch(ctx, match, starThreshold, &stats)
		}
	}

	return stats, nil
}

// discoverMatch handles a single search hit: gate, dedupe, and first-time
// ingestion. All failures are isolated to this one file.
func (c *Crawler) discoverMatch(ctx context.Context, match model.FileMatch, starThreshold int, stats *model.RunStats) {
	meta := match.Repository

	if !Admit(meta.Stars, starThreshold) {
		stats.Skipped++
		return
	}

	_, err := c.store.FindRepositoryByFullName(ctx, meta.FullName)
	switch {
	case err == nil:
		// Known repository: leave it and its files to the update scan.
		stats.Skipped++
		return
	case !errors.Is(err, custom_errors.ErrNotFound):
		c.logger.Warn("Discovery: repository lookup failed", "repo", meta.FullName, "error", err)
		stats.Errors++
		return
	}

	now := c.now()
	err = c.store.WithTx(ctx, func(tx database.Store) error {
		repo, err := tx.InsertRepository(ctx, &model.Repository{
			Name:          meta.Name,
			FullName:      meta.FullName,
			Stars:         meta.Stars,
			Forks:         meta.Forks,
			Language:      meta.Language,
			URL:           meta.URL,
			UpdatedAt:     meta.PushedAt,
			LastCrawledAt: &now,
		})
		if err != nil {
			return err
		}
		return c.ingestFile(ctx, tx, match, repo, starThreshold, stats)
	})
	if err != nil {
		if custom_errors.IsQuotaExceeded(err) {
			c.logger.Warn("Discovery: provider quota exceeded, cooling down", "repo", meta.FullName, "error", err)
			c.cooldown(ctx, c.cooldownDur)
		} else {
			c.logger.Warn("Discovery: failed to ingest new repository", "repo", meta.FullName, "path", match.Path, "error", err)
		}
		stats.Errors++
	}
}
