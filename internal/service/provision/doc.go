// Package provision wires the pipeline together and exposes the CLI entry points.
//
// A full run prepares the group directories, scans them, acquires what is
// missing, waits until every artifact is confirmed, assembles the build and
// writes the lock file. Scan, Wait, Assemble and Pin run single stages.
package provision
