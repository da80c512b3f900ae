// Package publish uploads a finished job's output tree to the destination
// bucket. Only the output directory is walked; the raw source download
// lives outside it and never leaves the worker.
package publish

import (
	"context"
	"io/fs"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"chorus/internal/logging"
	"chorus/internal/services"
	"chorus/internal/storage"
)

// contentTypes maps the extensions the pipeline produces. Anything else
// falls back to the platform MIME registry, then octet-stream.
var contentTypes = map[string]string{
	".m3u8": "application/vnd.apple.mpegurl",
	".ts":   "video/mp2t",
	".vtt":  "text/vtt",
}

// ContentType resolves the upload content type for a filename.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Publisher uploads output trees.
type Publisher struct {
	store  storage.ObjectStore
	bucket string
	logger *slog.Logger
}

func NewPublisher(store storage.ObjectStore, bucket string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Publisher{store: store, bucket: bucket, logger: logger}
}

// Publish walks outputDir and uploads every regular file under
// keyPrefix, preserving relative paths. The first failed upload aborts
// the publish; a partially published prefix is safe because the same job
// overwrites the same keys on redelivery.
func (p *Publisher) Publish(ctx context.Context, outputDir, keyPrefix string) (int, error) {
	uploaded := 0
	start := time.Now()
	err := filepath.WalkDir(outputDir, func(filePath string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return services.Wrap(services.ErrExternalTool, "publish", "walk", "walk output tree", walkErr)
		}
		if entry.IsDir() {
			return nil
		}
		relative, err := filepath.Rel(outputDir, filePath)
		if err != nil {
			return services.Wrap(services.ErrExternalTool, "publish", "walk", "resolve relative path", err)
		}
		key := path.Join(keyPrefix, filepath.ToSlash(relative))
		if err := p.store.Upload(ctx, p.bucket, key, filePath, ContentType(entry.Name())); err != nil {
			return services.Wrap(services.ErrTransport, "publish", "upload", "upload "+key, err)
		}
		uploaded++
		return nil
	})
	if err != nil {
		return uploaded, err
	}
	if uploaded == 0 {
		return 0, services.Wrap(services.ErrExternalTool, "publish", "walk", "output tree is empty", nil)
	}
	p.logger.Info("output tree published",
		logging.Int("files", uploaded),
		logging.String("prefix", keyPrefix),
		logging.Duration("elapsed", time.Since(start)))
	return uploaded, nil
}
