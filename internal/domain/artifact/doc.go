// Package artifact contains the core domain types of the acquisition pipeline.
//
// It defines Spec (what should be on disk), Record (what a component observed
// on disk) and MissingSet (which artifacts need to be fetched), plus helpers
// that derive the designated on-disk path for an artifact.
package artifact
