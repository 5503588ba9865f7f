// Package lock implements persistence for the lock file.
//
// The FileRepository stores and loads the pins confirmed by a run as YAML on
// disk, so operators can review and commit exactly what was provisioned.
package lock
