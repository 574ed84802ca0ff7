// internal/github/client.go
package github

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	custom_errors "policy-atlas/internal/errors"
	"policy-atlas/internal/model"
)

// Client is a wrapper around the go-github client implementing the search
// provider consumed by the crawler.
type Client struct {
	gh     *github.Client
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance.
// The provided token is used to create an authenticated http.Client.
func NewClient(token string, logger *slog.Logger) *Client {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:     github.NewClient(tc),
		logger: logger,
	}
}

// SetBaseURL points the underlying client at a different API host. Used by
// tests to target an httptest server.
func (c *Client) SetBaseURL(url string) error {
	ghc, err := c.gh.WithEnterpriseURLs(url, url)
	if err != nil {
		return err
	}
	c.gh = ghc
	return nil
}

// SearchCode runs a code search for term, optionally scoped to a single
// repository full name, and returns up to limit matches. Pagination is
// handled transparently.
//
// Code search results carry only a minimal repository object, so full
// metadata (stars, forks, push time) is resolved with one extra lookup per
// distinct repository, memoized for the duration of the call.
func (c *Client) SearchCode(ctx context.Context, term, scope string, limit int) ([]model.FileMatch, error) {
	query := term
	if scope != "" {
		query = fmt.Sprintf("%s repo:%s", term, scope)
	}

	opts := &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	var matches []model.FileMatch
	repoCache := make(map[string]*model.RepoMeta)

	for {
		c.logger.Debug("Searching code", "query", query, "page", opts.Page)

		result, resp, err := c.gh.Search.Code(ctx, query, opts)
		if err != nil {
			return nil, translateError(err)
		}

		for _, cr := range result.CodeResults {
			fullName := cr.GetRepository().GetFullName()
			meta, ok := repoCache[fullName]
			if !ok {
				meta, err = c.GetRepository(ctx, fullName)
				if err != nil {
					return matches, translateError(err)
				}
				repoCache[fullName] = meta
			}

			matches = append(matches, model.FileMatch{
				Name:       cr.GetName(),
				Path:       cr.GetPath(),
				Repository: *meta,
			})
			if limit > 0 && len(matches) >= limit {
				return matches, nil
			}
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return matches, nil
}

// GetRepository fetches repository metadata and translates it to our internal model.
func (c *Client) GetRepository(ctx context.Context, fullName string) (*model.RepoMeta, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return nil, translateError(err)
	}
	return toRepoMeta(repo), nil
}

// FileContent downloads and decodes the content of a single file. A decode
// failure is reported as an ErrDecode so callers can count it without
// aborting the surrounding scan.
func (c *Client) FileContent(ctx context.Context, fullName, ref, path string) (string, error) {
	owner, name, err := splitFullName(fullName)
	if err != nil {
		return "", err
	}

	var opts *github.RepositoryContentGetOptions
	if ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: ref}
	}

	fc, _, _, err := c.gh.Repositories.GetContents(ctx, owner, name, path, opts)
	if err != nil {
		return "", translateError(err)
	}
	if fc == nil {
		return "", &custom_errors.ErrDecode{Path: path, Err: fmt.Errorf("path is a directory, not a file")}
	}

	content, err := fc.GetContent()
	if err != nil {
		return "", &custom_errors.ErrDecode{Path: path, Err: err}
	}
	return content, nil
}

// translateError maps go-github rate-limit conditions to the distinguished
// quota error; everything else passes through unchanged.
func translateError(err error) error {
	switch e := err.(type) {
	case *github.RateLimitError:
		retryAfter := time.Until(e.Rate.Reset.Time)
		if retryAfter < 0 {
			retryAfter = 0
		}
		return &custom_errors.ErrQuotaExceeded{RetryAfter: retryAfter}
	case *github.AbuseRateLimitError:
		var retryAfter time.Duration
		if e.RetryAfter != nil {
			retryAfter = *e.RetryAfter
		}
		return &custom_errors.ErrQuotaExceeded{RetryAfter: retryAfter}
	default:
		return err
	}
}

// toRepoMeta translates a github.Repository object to our internal model.RepoMeta.
func toRepoMeta(r *github.Repository) *model.RepoMeta {
	meta := &model.RepoMeta{
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Stars:         r.GetStargazersCount(),
		Forks:         r.GetForksCount(),
		Language:      r.Language,
		URL:           r.GetHTMLURL(),
		DefaultBranch: r.GetDefaultBranch(),
	}
	if r.PushedAt != nil {
		t := r.PushedAt.Time
		meta.PushedAt = &t
	}
	if meta.DefaultBranch == "" {
		meta.DefaultBranch = "main"
	}
	return meta
}

func splitFullName(fullName string) (owner, name string, err error) {
	parts := strings.Split(fullName, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", &custom_errors.ErrInvalidRepoFormat{Repo: fullName}
	}
	return parts[0], parts[1], nil
}
