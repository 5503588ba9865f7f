// Package fetch retrieves artifact content from its declared source.
//
// A fetch is a single blocking HTTP(S) GET that either returns the complete
// body or fails. Failures are never retried here; they are wrapped in
// ErrTransfer and left to the caller's run-level policy.
package fetch
