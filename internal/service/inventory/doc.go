// Package inventory determines which configured artifacts are already present
// on disk with a valid digest.
//
// The Scanner never modifies files. It reports, per group, the ordered list of
// artifact names that are missing, empty or fail digest verification.
package inventory
