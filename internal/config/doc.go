// Package config loads blockscrub configuration from local and global YAML
// files with precedence rules. Formats are keyed by extension and decoded
// into types.FormatSpec values; the CLI and server build registries from
// them.
package config
