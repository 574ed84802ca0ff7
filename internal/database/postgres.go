// internal/database/postgres.go
package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	custom_errors "policy-atlas/internal/errors"
	"policy-atlas/internal/model"
)

// DBTX is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Compile-time interface assertion.
var _ Store = (*PGStore)(nil)

// PGStore implements Store on PostgreSQL via pgx.
type PGStore struct {
	db   DBTX
	pool *pgxpool.Pool // nil when the store is bound to a transaction
}

// NewPGStore creates a pool-backed store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{db: pool, pool: pool}
}

// WithTx runs fn against a transaction-bound store.
func (s *PGStore) WithTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// Already inside a transaction; reuse it.
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if the transaction is already committed.

	if err := fn(&PGStore{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const repositoryColumns = `id, name, full_name, stars, forks, language, url, updated_at, last_crawled_at, created_at`

func (s *PGStore) FindRepositoryByFullName(ctx context.Context, fullName string) (*model.Repository, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE full_name = $1`,
		fullName,
	)
	repo, err := scanRepository(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, custom_errors.ErrNotFound
		}
		return nil, fmt.Errorf("find repository %q: %w", fullName, err)
	}
	return repo, nil
}

func (s *PGStore) InsertRepository(ctx context.Context, repo *model.Repository) (*model.Repository, error) {
	row := s.db.QueryRow(ctx,
		`INSERT INTO repositories (name, full_name, stars, forks, language, url, updated_at, last_crawled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+repositoryColumns,
		repo.Name, repo.FullName, repo.Stars, repo.Forks,
		textOrNull(repo.Language), repo.URL,
		timestamptzOrNull(repo.UpdatedAt), timestamptzOrNull(repo.LastCrawledAt),
	)
	inserted, err := scanRepository(row)
	if err != nil {
		return nil, fmt.Errorf("insert repository %q: %w", repo.FullName, err)
	}
	return inserted, nil
}

func (s *PGStore) UpdateRepositoryCrawl(ctx context.Context, arg UpdateRepositoryCrawlParams) error {
	_, err := s.db.Exec(ctx,
		`UPDATE repositories
		 SET stars = $2,
		     forks = $3,
		     language = $4,
		     updated_at = $5,
		     last_crawled_at = GREATEST(COALESCE(last_crawled_at, 'epoch'::timestamptz), $6)
		 WHERE id = $1`,
		arg.ID, arg.Stars, arg.Forks, textOrNull(arg.Language),
		timestamptzOrNull(arg.UpdatedAt), arg.LastCrawledAt,
	)
	if err != nil {
		return fmt.Errorf("update repository crawl data %s: %w", arg.ID, err)
	}
	return nil
}

func (s *PGStore) TouchRepositoryLastCrawled(ctx context.Context, id uuid.UUID, t time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE repositories
		 SET last_crawled_at = GREATEST(COALESCE(last_crawled_at, 'epoch'::timestamptz), $2)
		 WHERE id = $1`,
		id, t,
	)
	if err != nil {
		return fmt.Errorf("touch repository %s: %w", id, err)
	}
	return nil
}

func (s *PGStore) ListRepositoriesNeedingCheck(ctx context.Context) ([]model.Repository, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+repositoryColumns+`
		 FROM repositories
		 WHERE last_crawled_at IS NULL OR updated_at > last_crawled_at
		 ORDER BY last_crawled_at ASC NULLS FIRST`,
	)
	if err != nil {
		return nil, fmt.Errorf("list repositories needing check: %w", err)
	}
	defer rows.Close()

	var repos []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("scan repository: %w", err)
		}
		repos = append(repos, *repo)
	}
	return repos, rows.Err()
}

const policyColumns = `id, repo_id, filename, file_path, file_url, content, summary, tags, ai_score, upvotes_count, downvotes_count, language, created_at`

func (s *PGStore) FindPolicy(ctx context.Context, repoID uuid.UUID, filePath string) (*model.Policy, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE repo_id = $1 AND file_path = $2`,
		repoID, filePath,
	)
	policy, err := scanPolicy(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, custom_errors.ErrNotFound
		}
		return nil, fmt.Errorf("find policy %s %q: %w", repoID, filePath, err)
	}
	return policy, nil
}

func (s *PGStore) InsertPolicy(ctx context.Context, policy *model.Policy) (*model.Policy, error) {
	tags := policy.Tags
	if tags == nil {
		tags = []string{}
	}
	row := s.db.QueryRow(ctx,
		`INSERT INTO policies (repo_id, filename, file_path, file_url, content, tags, language)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING `+policyColumns,
		policy.RepoID, policy.Filename, policy.FilePath, policy.FileURL,
		policy.Content, tags, textOrNull(policy.Language),
	)
	inserted, err := scanPolicy(row)
	if err != nil {
		return nil, fmt.Errorf("insert policy %q: %w", policy.FilePath, err)
	}
	return inserted, nil
}

func (s *PGStore) UpdatePolicyContent(ctx context.Context, id uuid.UUID, content, fileURL string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE policies SET content = $2, file_url = $3 WHERE id = $1`,
		id, content, fileURL,
	)
	if err != nil {
		return fmt.Errorf("update policy content %s: %w", id, err)
	}
	return nil
}

func (s *PGStore) ListPolicies(ctx context.Context, arg ListPoliciesParams) ([]model.PolicyWithRepo, int, error) {
	return s.queryPolicies(ctx, "", nil, arg)
}

func (s *PGStore) GetPolicy(ctx context.Context, id uuid.UUID) (*model.PolicyWithRepo, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+joinedColumns()+`
		 FROM policies p JOIN repositories r ON r.id = p.repo_id
		 WHERE p.id = $1`,
		id,
	)
	pwr, err := scanPolicyWithRepo(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, custom_errors.ErrNotFound
		}
		return nil, fmt.Errorf("get policy %s: %w", id, err)
	}
	return pwr, nil
}

func (s *PGStore) SearchPolicies(ctx context.Context, arg SearchPoliciesParams) ([]model.PolicyWithRepo, int, error) {
	where := ""
	var args []any
	and := func(cond string) {
		if where == "" {
			where = " WHERE " + cond
		} else {
			where += " AND " + cond
		}
	}

	if arg.Query != "" {
		args = append(args, "%"+arg.Query+"%", arg.Query)
		and(fmt.Sprintf("(p.filename ILIKE $%d OR p.summary ILIKE $%d OR $%d = ANY(p.tags))", len(args)-1, len(args)-1, len(args)))
	}
	if arg.Language != "" {
		args = append(args, arg.Language)
		and(fmt.Sprintf("r.language ILIKE $%d", len(args)))
	}
	if arg.MinScore != nil {
		args = append(args, *arg.MinScore)
		and(fmt.Sprintf("p.ai_score >= $%d", len(args)))
	}
	if arg.MaxScore != nil {
		args = append(args, *arg.MaxScore)
		and(fmt.Sprintf("p.ai_score <= $%d", len(args)))
	}

	return s.queryPolicies(ctx, where, args, arg.ListPoliciesParams)
}

func (s *PGStore) queryPolicies(ctx context.Context, where string, args []any, arg ListPoliciesParams) ([]model.PolicyWithRepo, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM policies p JOIN repositories r ON r.id = p.repo_id` + where
	if err := s.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count policies: %w", err)
	}

	order := orderClause(arg.SortBy)
	limitArgs := append(args, arg.PageSize, (arg.Page-1)*arg.PageSize)
	query := fmt.Sprintf(
		`SELECT %s FROM policies p JOIN repositories r ON r.id = p.repo_id%s %s LIMIT $%d OFFSET $%d`,
		joinedColumns(), where, order, len(limitArgs)-1, len(limitArgs),
	)

	rows, err := s.db.Query(ctx, query, limitArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list policies: %w", err)
	}
	defer rows.Close()

	var items []model.PolicyWithRepo
	for rows.Next() {
		pwr, err := scanPolicyWithRepo(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan policy: %w", err)
		}
		items = append(items, *pwr)
	}
	return items, total, rows.Err()
}

// orderClause maps an API sort key to a whitelisted ORDER BY.
func orderClause(sortBy string) string {
	switch sortBy {
	case "votes":
		return "ORDER BY (p.upvotes_count - p.downvotes_count) DESC, p.created_at DESC"
	case "ai-score":
		return "ORDER BY p.ai_score DESC NULLS LAST, p.created_at DESC"
	default:
		return "ORDER BY p.created_at DESC"
	}
}

func joinedColumns() string {
	return `p.id, p.repo_id, p.filename, p.file_path, p.file_url, p.content, p.summary, p.tags, p.ai_score, p.upvotes_count, p.downvotes_count, p.language, p.created_at,
		r.id, r.name, r.full_name, r.stars, r.forks, r.language, r.url, r.updated_at, r.last_crawled_at, r.created_at`
}

func scanRepository(row pgx.Row) (*model.Repository, error) {
	var repo model.Repository
	var language pgtype.Text
	var updatedAt, lastCrawledAt pgtype.Timestamptz

	err := row.Scan(&repo.ID, &repo.Name, &repo.FullName, &repo.Stars, &repo.Forks,
		&language, &repo.URL, &updatedAt, &lastCrawledAt, &repo.CreatedAt)
	if err != nil {
		return nil, err
	}
	repo.Language = textPtr(language)
	repo.UpdatedAt = timePtr(updatedAt)
	repo.LastCrawledAt = timePtr(lastCrawledAt)
	return &repo, nil
}

func scanPolicy(row pgx.Row) (*model.Policy, error) {
	var p model.Policy
	var summary, language pgtype.Text
	var aiScore pgtype.Float8

	err := row.Scan(&p.ID, &p.RepoID, &p.Filename, &p.FilePath, &p.FileURL, &p.Content,
		&summary, &p.Tags, &aiScore, &p.UpvotesCount, &p.DownvotesCount, &language, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Summary = textPtr(summary)
	p.Language = textPtr(language)
	p.AIScore = float8Ptr(aiScore)
	return &p, nil
}

func scanPolicyWithRepo(row pgx.Row) (*model.PolicyWithRepo, error) {
	var pwr model.PolicyWithRepo
	var summary, pLanguage, rLanguage pgtype.Text
	var aiScore pgtype.Float8
	var updatedAt, lastCrawledAt pgtype.Timestamptz

	err := row.Scan(
		&pwr.ID, &pwr.RepoID, &pwr.Filename, &pwr.FilePath, &pwr.FileURL, &pwr.Content,
		&summary, &pwr.Tags, &aiScore, &pwr.UpvotesCount, &pwr.DownvotesCount, &pLanguage, &pwr.CreatedAt,
		&pwr.Repo.ID, &pwr.Repo.Name, &pwr.Repo.FullName, &pwr.Repo.Stars, &pwr.Repo.Forks,
		&rLanguage, &pwr.Repo.URL, &updatedAt, &lastCrawledAt, &pwr.Repo.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	pwr.Summary = textPtr(summary)
	pwr.Policy.Language = textPtr(pLanguage)
	pwr.AIScore = float8Ptr(aiScore)
	pwr.Repo.Language = textPtr(rLanguage)
	pwr.Repo.UpdatedAt = timePtr(updatedAt)
	pwr.Repo.LastCrawledAt = timePtr(lastCrawledAt)
	return &pwr, nil
}

func textOrNull(s *string) pgtype.Text {
	if s == nil || *s == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func timestamptzOrNull(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	return &t.String
}

func timePtr(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func float8Ptr(f pgtype.Float8) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}
