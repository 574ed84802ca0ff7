// internal/model/models.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// Repository represents one externally hosted project tracked by the atlas.
type Repository struct {
	ID       uuid.UUID
	Name     string
	FullName string // "owner/name", unique across the store
	Stars    int
	Forks    int
	Language *string
	URL      string
	// UpdatedAt is the upstream push time as of the last metadata snapshot.
	UpdatedAt *time.Time
	// LastCrawledAt is nil until the repository has been checked once.
	// Once set it only moves forward.
	LastCrawledAt *time.Time
	CreatedAt     time.Time
}

// Policy represents one tracked file within a repository.
// (RepoID, FilePath) is unique. The crawler owns identity, content and
// timestamps; summary, tags, ai_score and the vote counters belong to the
// enrichment and voting subsystems and are never written here after insert.
type Policy struct {
	ID             uuid.UUID
	RepoID         uuid.UUID
	Filename       string
	FilePath       string
	FileURL        string
	Content        string
	Summary        *string
	Tags           []string
	AIScore        *float64
	UpvotesCount   int
	DownvotesCount int
	Language       *string
	CreatedAt      time.Time
}

// PolicyWithRepo is a Policy joined with its owning repository, as served by
// the browse API.
type PolicyWithRepo struct {
	Policy
	Repo Repository
}

// RepoMeta carries the repository metadata attached to a search result or
// fetched directly from the provider.
type RepoMeta struct {
	Name     string
	FullName string
	Stars    int
	Forks    int
	Language *string
	URL      string
	// PushedAt is the upstream last-push time, nil if the provider omits it.
	PushedAt *time.Time
	// DefaultBranch is used to build browsable file URLs.
	DefaultBranch string
}

// FileMatch is a single code-search hit: a file identity plus its owning
// repository's metadata. Content is fetched lazily by the provider.
type FileMatch struct {
	Name       string
	Path       string
	Repository RepoMeta
}

// RunStats accumulates the counters describing one crawl invocation.
// All fields are monotonically non-decreasing within a run.
type RunStats struct {
	Searched     int `json:"searched"`
	Processed    int `json:"processed"`
	Created      int `json:"created"`
	Updated      int `json:"updated"`
	Skipped      int `json:"skipped"`
	Errors       int `json:"errors"`
	ReposChecked int `json:"repos_checked"`
}

// Merge adds the counters of other into s. Used to combine the update and
// discovery phases of a "both" run.
func (s *RunStats) Merge(other RunStats) {
	s.Searched += other.Searched
	s.Processed += other.Processed
	s.Created += other.Created
	s.Updated += other.Updated
	s.Skipped += other.Skipped
	s.Errors += other.Errors
	s.ReposChecked += other.ReposChecked
}
