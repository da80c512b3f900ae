package services

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel markers for stage failure classification. Every stage wraps its
// failures with exactly one of these so the pipeline can map the error to a
// delivery outcome in a single place.
var (
	// ErrInputRejected marks notifications or object keys that can never be
	// processed (non-audio keys, unparseable payloads).
	ErrInputRejected = errors.New("input rejected")
	// ErrAdmissionRejected marks objects that fail a deterministic admission
	// limit (size, duration). Retrying reproduces the same failure.
	ErrAdmissionRejected = errors.New("admission rejected")
	// ErrResourceExhausted marks transient local resource shortages such as
	// missing disk headroom.
	ErrResourceExhausted = errors.New("resource exhausted")
	// ErrExternalTool marks encoder, probe, or speech engine failures.
	ErrExternalTool = errors.New("external tool error")
	// ErrTransport marks queue or object store call failures.
	ErrTransport = errors.New("transport error")
	// ErrReconciliation marks advisory metadata/index update failures.
	ErrReconciliation = errors.New("reconciliation error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker. The marker should be one of the exported sentinel
// errors above; a nil marker is treated as ErrExternalTool.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrExternalTool
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Kind names the sentinel marker carried by err for structured logging.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInputRejected):
		return "input_rejected"
	case errors.Is(err, ErrAdmissionRejected):
		return "admission_rejected"
	case errors.Is(err, ErrResourceExhausted):
		return "resource_exhausted"
	case errors.Is(err, ErrExternalTool):
		return "external_tool"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrReconciliation):
		return "reconciliation"
	default:
		return "unclassified"
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
