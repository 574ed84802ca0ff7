// internal/jobs/crawl_test.go
package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"policy-atlas/internal/crawler"
	"policy-atlas/internal/model"
)

// MockCrawlRunner is a mock of the CrawlRunner interface.
type MockCrawlRunner struct {
	mock.Mock
}

func (m *MockCrawlRunner) Run(ctx context.Context, mode crawler.Mode, resultLimit, starThreshold int) (model.RunStats, error) {
	args := m.Called(ctx, mode, resultLimit, starThreshold)
	stats, _ := args.Get(0).(model.RunStats)
	return stats, args.Error(1)
}

func newCrawlJob(args CrawlArgs) *river.Job[CrawlArgs] {
	return &river.Job[CrawlArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Kind: JobKindCrawl, Attempt: 1},
		Args:   args,
	}
}

// newTestWorker builds a worker with a no-op output recorder; recording
// against a real job row is exercised by the status endpoint tests.
func newTestWorker(runner CrawlRunner, logger *slog.Logger) *CrawlWorker {
	return &CrawlWorker{
		Crawler:      runner,
		Logger:       logger,
		recordOutput: func(context.Context, any) error { return nil },
	}
}

func TestCrawlWorker_Work(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("runs the crawler with the job's overrides", func(t *testing.T) {
		runner := new(MockCrawlRunner)
		runner.On("Run", ctx, crawler.ModeUpdate, 25, 75).Return(model.RunStats{Created: 2}, nil).Once()
		worker := newTestWorker(runner, logger)

		err := worker.Work(ctx, newCrawlJob(CrawlArgs{Mode: "update", ResultLimit: 25, StarThreshold: 75}))

		require.NoError(t, err)
		runner.AssertExpectations(t)
	})

	t.Run("an empty mode runs both phases", func(t *testing.T) {
		runner := new(MockCrawlRunner)
		runner.On("Run", ctx, crawler.ModeBoth, 0, 0).Return(model.RunStats{}, nil).Once()
		worker := newTestWorker(runner, logger)

		err := worker.Work(ctx, newCrawlJob(CrawlArgs{}))

		require.NoError(t, err)
		runner.AssertExpectations(t)
	})

	t.Run("cancels instead of retrying on an invalid mode", func(t *testing.T) {
		runner := new(MockCrawlRunner)
		worker := newTestWorker(runner, logger)

		err := worker.Work(ctx, newCrawlJob(CrawlArgs{Mode: "everything"}))

		require.Error(t, err)
		assert.ErrorContains(t, err, "invalid crawl mode")
		runner.AssertNotCalled(t, "Run")
	})

	t.Run("propagates run failures for retry", func(t *testing.T) {
		runner := new(MockCrawlRunner)
		runErr := errors.New("list candidates: connection refused")
		runner.On("Run", ctx, crawler.ModeBoth, 0, 0).Return(model.RunStats{Errors: 1}, runErr).Once()
		worker := newTestWorker(runner, logger)

		err := worker.Work(ctx, newCrawlJob(CrawlArgs{Mode: "both"}))

		require.Error(t, err)
		assert.ErrorIs(t, err, runErr)
	})

	t.Run("records the run's stats on the job", func(t *testing.T) {
		runner := new(MockCrawlRunner)
		stats := model.RunStats{Searched: 3, Processed: 3, Created: 1, Skipped: 2, ReposChecked: 4}
		runner.On("Run", ctx, crawler.ModeBoth, 0, 0).Return(stats, nil).Once()

		var recorded any
		worker := newTestWorker(runner, logger)
		worker.recordOutput = func(_ context.Context, output any) error {
			recorded = output
			return nil
		}

		err := worker.Work(ctx, newCrawlJob(CrawlArgs{Mode: "both"}))

		require.NoError(t, err)
		assert.Equal(t, stats, recorded)
	})

	t.Run("a stats recording failure does not fail the job", func(t *testing.T) {
		runner := new(MockCrawlRunner)
		runner.On("Run", ctx, crawler.ModeBoth, 0, 0).Return(model.RunStats{Created: 1}, nil).Once()

		worker := newTestWorker(runner, logger)
		worker.recordOutput = func(context.Context, any) error {
			return errors.New("metadata update failed")
		}

		err := worker.Work(ctx, newCrawlJob(CrawlArgs{Mode: "both"}))

		require.NoError(t, err)
	})
}

func TestCrawlArgs(t *testing.T) {
	t.Run("kind matches the registered worker", func(t *testing.T) {
		assert.Equal(t, "crawl", CrawlArgs{}.Kind())
	})

	t.Run("insert options dedupe by args", func(t *testing.T) {
		opts := CrawlArgs{}.InsertOpts()
		assert.True(t, opts.UniqueOpts.ByArgs)
		assert.Equal(t, CrawlMaxAttempts, opts.MaxAttempts)
	})
}

func TestNewPeriodicJobs(t *testing.T) {
	jobs := newPeriodicJobs(2*time.Minute, 24*time.Hour)
	require.Len(t, jobs, 2, "one update schedule and one discovery schedule")
}
