// Package logging centralizes slog construction and the structured field
// vocabulary used across the worker. Console output is a readable per-line
// format for interactive runs; JSON output is for service deployments.
package logging
