// internal/crawler/detect.go
package crawler

import (
	"crypto/sha256"
	"encoding/hex"
)

// Action is the outcome of classifying candidate content against the stored
// policy, if any.
type Action int

const (
	ActionCreate Action = iota
	ActionUpdate
	ActionUnchanged
)

func (a Action) String() string {
	switch a {
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionUnchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// Fingerprint returns the hex-encoded SHA-256 of content. Only byte content
// decides equality; filenames and timestamps play no part.
func Fingerprint(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// Classify decides how candidate content relates to the existing stored
// content. existing is nil when no policy row exists yet.
func Classify(existing *string, candidate string) Action {
	if existing == nil {
		return ActionCreate
	}
	if Fingerprint(*existing) == Fingerprint(candidate) {
		return ActionUnchanged
	}
	return ActionUpdate
}
