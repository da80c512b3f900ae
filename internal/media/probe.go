// Package media wraps the external ffprobe tool used to interrogate
// downloaded audio before expensive pipeline work begins.
package media

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultProbeBinary is the probe command resolved from PATH.
const DefaultProbeBinary = "ffprobe"

// CommandRunner executes an external tool and returns its combined output.
// Injected by tests.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Prober measures audio duration via ffprobe.
type Prober struct {
	binary string
	runner CommandRunner
}

// NewProber builds a Prober for the given binary, defaulting to ffprobe on
// PATH when empty.
func NewProber(binary string) *Prober {
	if binary == "" {
		binary = DefaultProbeBinary
	}
	return &Prober{binary: binary, runner: runCommand}
}

// WithRunner overrides the command runner (tests only).
func (p *Prober) WithRunner(runner CommandRunner) *Prober {
	p.runner = runner
	return p
}

// Duration returns the audio duration in seconds. Any tool or parse failure
// means the duration is unknown; callers treat that as non-fatal.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	args := []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
	output, err := p.runner(ctx, p.binary, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %s", p.binary, err, strings.TrimSpace(string(output)))
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s output: %w", p.binary, err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %f from %s", seconds, p.binary)
	}
	return seconds, nil
}
