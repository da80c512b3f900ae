// Package workspace manages the private per-job scratch directory tree.
// Each job execution owns its workspace exclusively; release is best-effort
// and runs on every exit path.
package workspace

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"chorus/internal/logging"
)

// Workspace is the on-disk scratch area for one job execution. The root
// carries a uniqueness suffix so overlapping retries of the same key never
// collide; the suffix is never part of the published output prefix.
type Workspace struct {
	Root string
	// DownloadPath receives the raw source object. It sits outside
	// OutputDir so it is never published.
	DownloadPath string
	// OutputDir is the subtree that publish uploads verbatim.
	OutputDir string
	// CaptionsDir holds the subtitle document and its wrapper playlist.
	CaptionsDir string
}

// VariantDir returns the output directory for one bitrate label.
func (w *Workspace) VariantDir(label string) string {
	return filepath.Join(w.OutputDir, label)
}

// Manager allocates and releases job workspaces under a staging root.
type Manager struct {
	stagingDir string
	logger     *slog.Logger
}

// NewManager builds a workspace manager rooted at stagingDir.
func NewManager(stagingDir string, logger *slog.Logger) *Manager {
	return &Manager{
		stagingDir: stagingDir,
		logger:     logging.NewComponentLogger(logger, "workspace"),
	}
}

// Acquire creates a fresh workspace for jobID. ext is the source object's
// file extension (with dot); labels are the bitrate variant directories to
// pre-create.
func (m *Manager) Acquire(jobID, ext string, labels []string) (*Workspace, error) {
	if err := os.MkdirAll(m.stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure staging dir: %w", err)
	}
	root, err := os.MkdirTemp(m.stagingDir, sanitize(jobID)+"-")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	ws := &Workspace{
		Root:         root,
		DownloadPath: filepath.Join(root, "source", "audio"+ext),
		OutputDir:    filepath.Join(root, "output"),
		CaptionsDir:  filepath.Join(root, "output", "captions"),
	}

	dirs := []string{filepath.Dir(ws.DownloadPath), ws.OutputDir, ws.CaptionsDir}
	for _, label := range labels {
		dirs = append(dirs, ws.VariantDir(label))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			m.Release(ws)
			return nil, fmt.Errorf("create workspace dir %s: %w", dir, err)
		}
	}
	return ws, nil
}

// Release removes the workspace tree. Deletion errors are logged, never
// propagated: cleanup must not mask the job's real outcome.
func (m *Manager) Release(ws *Workspace) {
	if ws == nil || ws.Root == "" {
		return
	}
	if err := os.RemoveAll(ws.Root); err != nil {
		m.logger.Warn("workspace cleanup failed",
			logging.String("path", ws.Root),
			logging.Error(err),
			logging.String(logging.FieldEventType, "workspace_cleanup_failed"))
		return
	}
	m.logger.Debug("workspace released", logging.String("path", ws.Root))
}

// SweepStale removes leftover workspaces from previous runs. Called once at
// daemon startup, before any job is accepted.
func (m *Manager) SweepStale() error {
	entries, err := os.ReadDir(m.stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read staging dir: %w", err)
	}
	for _, entry := range entries {
		path := filepath.Join(m.stagingDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			m.logger.Warn("stale workspace not removed",
				logging.String("path", path),
				logging.Error(err))
			continue
		}
	}
	return nil
}

func sanitize(jobID string) string {
	replacer := strings.NewReplacer("/", "_", string(filepath.Separator), "_", "*", "_")
	cleaned := replacer.Replace(jobID)
	if cleaned == "" {
		return "job"
	}
	return cleaned
}
