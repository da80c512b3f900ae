// Package config loads, normalizes, and validates the worker TOML
// configuration. Secrets may be supplied via environment variables instead
// of the file; path fields are tilde-expanded and made absolute.
package config
