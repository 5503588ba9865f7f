// Package config loads the provisioning configuration from TOML or YAML.
//
// The document maps the "bin" and "plugins" groups to artifact entries
// ({url, hash, algorithm}), holds launch flags in the "java" and "game"
// sections, and accepts ambient settings (logging, pacing, polling) in an
// optional "provisioner" section. Validate fills defaults for anything unset.
package config
