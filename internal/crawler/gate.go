// internal/crawler/gate.go
package crawler

// Admit reports whether a repository with the given star count clears the
// admission threshold. Both scanners use this same gate so the threshold
// semantics never diverge between the discovery and update paths.
func Admit(stars, threshold int) bool {
	return stars >= threshold
}
