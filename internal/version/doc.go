// Package version exposes build metadata for the provisioner.
//
// Version, Commit and BuildTime are injected with -ldflags at release time.
// UserAgent derives the header sent to artifact hosts from them.
package version
