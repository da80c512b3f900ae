// Package encoding turns a source audio file into per-bitrate HLS
// renditions with ffmpeg. Each configured bitrate gets its own directory
// holding a media playlist plus numbered transport-stream segments.
package encoding

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"chorus/internal/config"
	"chorus/internal/logging"
	"chorus/internal/services"
)

const (
	// DefaultBinary is the encoder executable resolved from PATH.
	DefaultBinary = "ffmpeg"

	// PlaylistName is the media playlist filename inside each rendition
	// directory.
	PlaylistName = "playlist.m3u8"

	segmentPattern = "segment_%03d.ts"
)

// CommandRunner executes an external command and returns combined output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// Rendition is one produced bitrate variant.
type Rendition struct {
	Label        string
	Bandwidth    int
	Dir          string
	PlaylistPath string
}

// Encoder drives ffmpeg to build HLS renditions.
type Encoder struct {
	binary         string
	segmentSeconds int
	profiles       []config.BitrateProfile
	logger         *slog.Logger
	runner         CommandRunner
}

func NewEncoder(binary string, segmentSeconds int, profiles []config.BitrateProfile, logger *slog.Logger) *Encoder {
	if binary == "" {
		binary = DefaultBinary
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Encoder{
		binary:         binary,
		segmentSeconds: segmentSeconds,
		profiles:       profiles,
		logger:         logger,
		runner: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// WithRunner replaces the command runner. Test hook.
func (e *Encoder) WithRunner(runner CommandRunner) *Encoder {
	e.runner = runner
	return e
}

// Encode produces one rendition per configured profile under outputDir.
// Renditions are returned in profile order, which the manifest relies on
// for ascending bandwidth.
func (e *Encoder) Encode(ctx context.Context, sourcePath, outputDir string) ([]Rendition, error) {
	if len(e.profiles) == 0 {
		return nil, services.Wrap(services.ErrInputRejected, "encode", "profiles", "no bitrate profiles configured", nil)
	}
	renditions := make([]Rendition, 0, len(e.profiles))
	for _, profile := range e.profiles {
		rendition, err := e.encodeProfile(ctx, sourcePath, outputDir, profile)
		if err != nil {
			return nil, err
		}
		renditions = append(renditions, rendition)
	}
	return renditions, nil
}

func (e *Encoder) encodeProfile(ctx context.Context, sourcePath, outputDir string, profile config.BitrateProfile) (Rendition, error) {
	dir := filepath.Join(outputDir, profile.Label)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Rendition{}, services.Wrap(services.ErrExternalTool, "encode", profile.Label, "create rendition directory", err)
	}

	playlist := filepath.Join(dir, PlaylistName)
	args := e.args(sourcePath, dir, playlist, profile)

	start := time.Now()
	output, err := e.runner(ctx, e.binary, args...)
	if err != nil {
		marker := classify(output)
		return Rendition{}, services.Wrap(marker, "encode", profile.Label,
			"ffmpeg failed: "+lastLines(output, 5), err)
	}
	e.logger.Info("rendition encoded",
		logging.String("profile", profile.Label),
		logging.Duration("elapsed", time.Since(start)))

	return Rendition{
		Label:        profile.Label,
		Bandwidth:    profile.Bandwidth,
		Dir:          dir,
		PlaylistPath: playlist,
	}, nil
}

func (e *Encoder) args(sourcePath, dir, playlist string, profile config.BitrateProfile) []string {
	return []string{
		"-hide_banner", "-nostdin",
		"-i", sourcePath,
		"-vn",
		"-c:a", "aac",
		"-b:a", fmt.Sprintf("%dk", profile.Bandwidth/1000),
		"-hls_time", fmt.Sprintf("%d", e.segmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(dir, segmentPattern),
		playlist,
	}
}

// permanentSignatures are ffmpeg stderr fragments that indicate the input
// itself is unusable. Redelivering such a message can never succeed.
var permanentSignatures = []string{
	"Invalid data found when processing input",
	"could not find codec parameters",
	"Invalid argument",
}

func classify(output []byte) error {
	text := string(output)
	for _, signature := range permanentSignatures {
		if strings.Contains(text, signature) {
			return services.ErrInputRejected
		}
	}
	return services.ErrExternalTool
}

func lastLines(output []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, " | ")
}
