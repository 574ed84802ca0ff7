// internal/jobs/river.go
package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindCrawl = "crawl"

	// CrawlMaxAttempts bounds run-level retries of a failed crawl
	// invocation; in-run failures are isolated per item by the engine and
	// never bubble up here.
	CrawlMaxAttempts = 3
)

// Migrate applies River's own schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return err
	}
	_, err = migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{})
	return err
}

// LoggingErrorHandler logs job failures and panics.
type LoggingErrorHandler struct {
	Logger *slog.Logger
}

func (h *LoggingErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	h.Logger.Error("job failed", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", err)
	return nil
}

func (h *LoggingErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	h.Logger.Error("job panicked", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "panic", panicVal, "trace", trace)
	return nil
}

// NewClient creates a River client over pgx with the crawl schedule attached.
// The crawl queue runs a single worker: invocations are serialized, which is
// the only ordering guarantee the engine requires.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, updateInterval, discoveryInterval time.Duration) (*river.Client[pgx.Tx], error) {
	config := &river.Config{
		Workers:      workers,
		MaxAttempts:  CrawlMaxAttempts,
		PeriodicJobs: newPeriodicJobs(updateInterval, discoveryInterval),
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 1},
		},
		Logger:       logger,
		ErrorHandler: &LoggingErrorHandler{Logger: logger},
	}
	return river.NewClient(riverpgxv5.New(pool), config)
}

// newPeriodicJobs builds the crawl schedule: frequent update scans of known
// repositories and a much rarer, quota-hungry discovery scan.
func newPeriodicJobs(updateInterval, discoveryInterval time.Duration) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(updateInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return CrawlArgs{Mode: "update"}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(discoveryInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return CrawlArgs{Mode: "discover"}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
	}
}
