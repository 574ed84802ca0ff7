// internal/crawler/crawler.go
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"policy-atlas/internal/database"
	"policy-atlas/internal/model"
)

const (
	// Number of repositories to check in parallel during the update scan.
	// Also acts as the cap on concurrent provider calls.
	updateConcurrency = 5
)

// Mode selects which scan phases a run performs.
type Mode string

const (
	ModeUpdate   Mode = "update"
	ModeDiscover Mode = "discover"
	ModeBoth     Mode = "both"
)

// ParseMode validates a mode string, defaulting to "both" when empty.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeUpdate, ModeDiscover, ModeBoth:
		return Mode(s), nil
	case "":
		return ModeBoth, nil
	default:
		return "", fmt.Errorf("invalid crawl mode %q", s)
	}
}

// SearchProvider is the external search capability consumed by the crawler.
// Implementations must report quota exhaustion as errors.ErrQuotaExceeded so
// the crawler can apply its cooldown-and-continue policy.
type SearchProvider interface {
	// SearchCode searches for term, optionally scoped to one repository
	// full name. limit <= 0 means no cap.
	SearchCode(ctx context.Context, term, scope string, limit int) ([]model.FileMatch, error)
	GetRepository(ctx context.Context, fullName string) (*model.RepoMeta, error)
	FileContent(ctx context.Context, fullName, ref, path string) (string, error)
}

// CooldownFunc pauses after a quota signal. Injectable so tests can
// substitute a recorder instead of a wall-clock sleep.
type CooldownFunc func(ctx context.Context, d time.Duration)

// SleepCooldown blocks for d or until ctx is done.
func SleepCooldown(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Crawler discovers policy files on the provider and keeps the local store in
// sync with upstream changes.
type Crawler struct {
	store    database.Store
	provider SearchProvider
	logger   *slog.Logger

	searchTerms   []string
	starThreshold int
	resultLimit   int

	cooldown    CooldownFunc
	cooldownDur time.Duration
	now         func() time.Time
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithCooldown replaces the quota backoff behavior.
func WithCooldown(fn CooldownFunc, d time.Duration) Option {
	return func(c *Crawler) {
		c.cooldown = fn
		c.cooldownDur = d
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Crawler) {
		c.now = now
	}
}

// NewCrawler creates a Crawler with the given collaborators and defaults.
func NewCrawler(store database.Store, provider SearchProvider, logger *slog.Logger, searchTerms []string, starThreshold, resultLimit int, opts ...Option) (*Crawler, error) {
	if len(searchTerms) == 0 {
		return nil, errors.New("crawler requires at least one search term")
	}

	c := &Crawler{
		store:         store,
		provider:      provider,
		logger:        logger,
		searchTerms:   searchTerms,
		starThreshold: starThreshold,
		resultLimit:   resultLimit,
		cooldown:      SleepCooldown,
		cooldownDur:   60 * time.Second,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Run executes one crawl invocation. resultLimit and starThreshold override
// the configured defaults when positive. In "both" mode the update phase runs
// to completion before discovery starts, so discovery's already-known checks
// see up-to-date rows; errors in one phase never abort the other.
func (c *Crawler) Run(ctx context.Context, mode Mode, resultLimit, starThreshold int) (model.RunStats, error) {
	if resultLimit <= 0 {
		resultLimit = c.resultLimit
	}
	if starThreshold <= 0 {
		starThreshold = c.starThreshold
	}

	logger := c.logger.With("mode", string(mode))
	logger.Info("Starting crawl run", "result_limit", resultLimit, "star_threshold", starThreshold)

	var stats model.RunStats
	var runErr error

	if mode == ModeUpdate || mode == ModeBoth {
		updateStats, err := c.update(ctx, starThreshold)
		stats.Merge(updateStats)
		runErr = errors.Join(runErr, err)
	}

	if mode == ModeDiscover || mode == ModeBoth {
		if ctx.Err() != nil {
			return stats, errors.Join(runErr, ctx.Err())
		}
		discoverStats, err := c.discover(ctx, resultLimit, starThreshold)
		stats.Merge(discoverStats)
		runErr = errors.Join(runErr, err)
	}

	logger.Info("Crawl run finished",
		"searched", stats.Searched,
		"processed", stats.Processed,
		"created", stats.Created,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"repos_checked", stats.ReposChecked,
	)
	return stats, runErr
}
