// internal/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by the store when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrInvalidRepoFormat is returned when a repository full name is not in 'owner/name' format.
type ErrInvalidRepoFormat struct {
	Repo string
}

func (e *ErrInvalidRepoFormat) Error() string {
	return fmt.Sprintf("invalid repository format: %q, expected 'owner/name'", e.Repo)
}

// ErrQuotaExceeded signals that the search provider refused a call because the
// API quota is exhausted. It is transient: callers cool down and continue
// instead of treating it as a permanent failure.
type ErrQuotaExceeded struct {
	RetryAfter time.Duration
}

func (e *ErrQuotaExceeded) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider quota exceeded, retry after %s", e.RetryAfter)
	}
	return "provider quota exceeded"
}

// IsQuotaExceeded reports whether err is (or wraps) an ErrQuotaExceeded.
func IsQuotaExceeded(err error) bool {
	var qe *ErrQuotaExceeded
	return errors.As(err, &qe)
}

// ErrDecode is returned when fetched file content cannot be decoded.
type ErrDecode struct {
	Path string
	Err  error
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("failed to decode content of %q: %v", e.Path, e.Err)
}

func (e *ErrDecode) Unwrap() error { return e.Err }

// IsDecode reports whether err is (or wraps) an ErrDecode.
func IsDecode(err error) bool {
	var de *ErrDecode
	return errors.As(err, &de)
}
