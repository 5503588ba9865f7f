// Package acquire fetches, verifies and persists the artifacts a scan found missing.
//
// The Orchestrator walks the missing set group by group, fetching one artifact
// at a time. Content that fails digest verification is logged and skipped
// without touching the target file. Successive fetches are separated by a
// random whole-minute pause so the sources are not hammered.
package acquire
