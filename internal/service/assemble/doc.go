// Package assemble merges the provisioned directories into a runnable build.
//
// The contents of config land in the build root next to the server jars from
// bin, plugins go to build/plugins, and a start.sh launch script is rendered
// from the java and game settings. Files are only rewritten when their
// content differs, so repeated runs leave an unchanged build untouched.
package assemble
