// internal/database/store.go
package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"policy-atlas/internal/model"
)

// UpdateRepositoryCrawlParams carries the metadata refresh written after a
// repository has been checked against the provider.
type UpdateRepositoryCrawlParams struct {
	ID            uuid.UUID
	Stars         int
	Forks         int
	Language      *string
	UpdatedAt     *time.Time
	LastCrawledAt time.Time
}

// ListPoliciesParams controls pagination and ordering of the browse queries.
type ListPoliciesParams struct {
	Page     int
	PageSize int
	SortBy   string // "recent", "votes" or "ai-score"
}

// SearchPoliciesParams extends listing with content filters.
type SearchPoliciesParams struct {
	ListPoliciesParams
	Query    string
	Language string
	MinScore *float64
	MaxScore *float64
}

// Store is the persistence boundary of the service. The crawler uses the
// repository/policy operations; the HTTP API additionally uses the browse
// queries. All methods run in the caller's transaction scope when obtained
// through WithTx.
type Store interface {
	FindRepositoryByFullName(ctx context.Context, fullName string) (*model.Repository, error)
	InsertRepository(ctx context.Context, repo *model.Repository) (*model.Repository, error)
	UpdateRepositoryCrawl(ctx context.Context, arg UpdateRepositoryCrawlParams) error
	// TouchRepositoryLastCrawled advances last_crawled_at without touching
	// any other field. The timestamp never moves backward.
	TouchRepositoryLastCrawled(ctx context.Context, id uuid.UUID, t time.Time) error
	// ListRepositoriesNeedingCheck returns repositories that were never
	// crawled or whose upstream push time is newer than the last crawl.
	ListRepositoriesNeedingCheck(ctx context.Context) ([]model.Repository, error)

	FindPolicy(ctx context.Context, repoID uuid.UUID, filePath string) (*model.Policy, error)
	InsertPolicy(ctx context.Context, policy *model.Policy) (*model.Policy, error)
	UpdatePolicyContent(ctx context.Context, id uuid.UUID, content, fileURL string) error

	ListPolicies(ctx context.Context, arg ListPoliciesParams) ([]model.PolicyWithRepo, int, error)
	GetPolicy(ctx context.Context, id uuid.UUID) (*model.PolicyWithRepo, error)
	SearchPolicies(ctx context.Context, arg SearchPoliciesParams) ([]model.PolicyWithRepo, int, error)

	// WithTx runs fn against a store bound to a single transaction,
	// committing on nil and rolling back on error.
	WithTx(ctx context.Context, fn func(Store) error) error
}
