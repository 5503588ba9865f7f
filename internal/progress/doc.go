// Package progress renders the readiness table shown while waiting for artifacts.
//
// On a terminal the table is redrawn in place; anywhere else every snapshot is
// appended so logs and pipes keep a readable history.
package progress
