// internal/jobs/crawl.go
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"policy-atlas/internal/crawler"
	"policy-atlas/internal/model"
)

// CrawlArgs defines one crawl invocation. Zero ResultLimit/StarThreshold
// defer to the configured defaults.
type CrawlArgs struct {
	Mode          string `json:"mode"`
	ResultLimit   int    `json:"result_limit,omitempty"`
	StarThreshold int    `json:"star_threshold,omitempty"`
}

func (CrawlArgs) Kind() string { return JobKindCrawl }

// InsertOpts makes crawl jobs unique by args while queued or running, so at
// most one crawl of a given shape is ever in flight.
func (CrawlArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: CrawlMaxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// CrawlRunner is implemented by crawler.Crawler; narrowed for tests.
type CrawlRunner interface {
	Run(ctx context.Context, mode crawler.Mode, resultLimit, starThreshold int) (model.RunStats, error)
}

// CrawlWorker runs the crawl engine as a background job.
type CrawlWorker struct {
	river.WorkerDefaults[CrawlArgs]
	Crawler CrawlRunner
	Logger  *slog.Logger

	// recordOutput persists run stats on the job row so the status endpoint
	// can report them. Nil selects river.RecordOutput; tests inject a recorder.
	recordOutput func(ctx context.Context, output any) error
}

func (w *CrawlWorker) Work(ctx context.Context, job *river.Job[CrawlArgs]) error {
	mode, err := crawler.ParseMode(job.Args.Mode)
	if err != nil {
		// A bad mode never becomes valid; cancel instead of retrying.
		return river.JobCancel(err)
	}

	logger := w.Logger.With("job_id", job.ID, "mode", string(mode), "attempt", job.Attempt)
	logger.Info("Crawl job starting")

	stats, err := w.Crawler.Run(ctx, mode, job.Args.ResultLimit, job.Args.StarThreshold)

	record := w.recordOutput
	if record == nil {
		record = func(ctx context.Context, output any) error {
			return river.RecordOutput(ctx, output)
		}
	}
	if recErr := record(ctx, stats); recErr != nil {
		logger.Warn("Failed to record run stats on the job", "error", recErr)
	}

	logger.Info("Crawl job finished",
		"searched", stats.Searched,
		"processed", stats.Processed,
		"created", stats.Created,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"repos_checked", stats.ReposChecked,
		"error", err,
	)
	if err != nil {
		return fmt.Errorf("crawl run (%s): %w", mode, err)
	}
	return nil
}
