// internal/crawler/ingest.go
package crawler

import (
	"context"
	"errors"
	"fmt"

	"policy-atlas/internal/database"
	custom_errors "policy-atlas/internal/errors"
	"policy-atlas/internal/model"
)

// ingestFile runs the shared per-file routine for one search match against
// the given repository row: gate, fetch+decode, classify, write.
//
// It is called inside a per-file transaction scope, so a returned error rolls
// back only this file's writes. Decode failures and generic fetch failures
// are counted here and swallowed; quota and store errors propagate to the
// caller, which owns cooldown and error counting.
func (c *Crawler) ingestFile(ctx context.Context, tx database.Store, match model.FileMatch, repo *model.Repository, starThreshold int, stats *model.RunStats) error {
	stats.Processed++

	// Same gate as the scanners. Redundant for discovery, which gated
	// before creating the row, but keeps both paths counting identically.
	if !Admit(match.Repository.Stars, starThreshold) {
		stats.Skipped++
		return nil
	}

	fileURL := fmt.Sprintf("https://github.com/%s/blob/%s/%s",
		match.Repository.FullName, match.Repository.DefaultBranch, match.Path)

	content, err := c.provider.FileContent(ctx, match.Repository.FullName, match.Repository.DefaultBranch, match.Path)
	if err != nil {
		if custom_errors.IsQuotaExceeded(err) {
			return err
		}
		if custom_errors.IsDecode(err) {
			c.logger.Warn("Failed to decode file content", "repo", match.Repository.FullName, "path", match.Path, "error", err)
		} else {
			c.logger.Warn("Failed to fetch file content", "repo", match.Repository.FullName, "path", match.Path, "error", err)
		}
		stats.Errors++
		return nil
	}

	var existingContent *string
	existing, err := tx.FindPolicy(ctx, repo.ID, match.Path)
	if err != nil && !errors.Is(err, custom_errors.ErrNotFound) {
		return err
	}
	if existing != nil {
		existingContent = &existing.Content
	}

	switch Classify(existingContent, content) {
	case ActionCreate:
		_, err := tx.InsertPolicy(ctx, &model.Policy{
			RepoID:   repo.ID,
			Filename: match.Name,
			FilePath: match.Path,
			FileURL:  fileURL,
			Content:  content,
		})
		if err != nil {
			return err
		}
		stats.Created++
		c.logger.Info("Created policy", "repo", match.Repository.FullName, "path", match.Path, "stars", match.Repository.Stars)
	case ActionUpdate:
		if err := tx.UpdatePolicyContent(ctx, existing.ID, content, fileURL); err != nil {
			return err
		}
		stats.Updated++
		c.logger.Info("Updated policy", "repo", match.Repository.FullName, "path", match.Path, "stars", match.Repository.Stars)
	case ActionUnchanged:
		// Re-ingesting byte-identical content produces no write.
		stats.Skipped++
	}

	return nil
}
