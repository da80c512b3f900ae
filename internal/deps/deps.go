// Package deps verifies the external binaries the worker shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"chorus/internal/config"
)

// Requirement defines an external dependency Chorus relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements derives the external binary list from configuration. The
// transcription binary is only required when the local engine is selected.
func Requirements(cfg *config.Config) []Requirement {
	requirements := []Requirement{
		{Name: "FFmpeg", Command: "ffmpeg", Description: "HLS transcoding"},
		{Name: "FFprobe", Command: "ffprobe", Description: "Audio duration probing"},
	}
	if cfg.Speech.Engine == config.SpeechEngineLocal {
		requirements = append(requirements, Requirement{
			Name:        "Transcriber",
			Command:     cfg.Speech.Binary,
			Description: "Local speech-to-text engine",
		})
	}
	return requirements
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}

// Missing filters statuses down to unavailable required dependencies.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}
