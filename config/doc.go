// Package config loads the sync engine's YAML configuration: where the
// per-server databases live, network timing knobs, and logging options.
// Environment variables in ${VAR_NAME} form are expanded before parsing.
package config
