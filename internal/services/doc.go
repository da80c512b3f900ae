// Package services provides shared helpers for pipeline stages: the failure
// classification sentinels every stage wraps its errors with, and context
// annotations used for structured log correlation.
package services
