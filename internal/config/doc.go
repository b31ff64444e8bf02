// Package config loads, normalizes, and validates the TOML configuration
// that drives the digitization pipeline.
package config
