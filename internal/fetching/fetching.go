// Package fetching pulls the source object into the job workspace and
// enforces admission limits before any expensive work starts.
//
// Order matters: the size limit is checked against object metadata before
// the download, disk headroom is checked before the download, and the
// duration limit is checked after, once the local file can be probed.
package fetching

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"chorus/internal/logging"
	"chorus/internal/media"
	"chorus/internal/services"
	"chorus/internal/storage"
)

// Limits bounds what the worker will accept.
type Limits struct {
	MaxFileSizeBytes   int64
	MaxDurationSeconds float64
}

// Result describes the fetched source audio.
type Result struct {
	LocalPath       string
	SizeBytes       int64
	DurationSeconds float64
	DurationKnown   bool
}

// Fetcher downloads source objects and applies admission policy.
type Fetcher struct {
	store  storage.ObjectStore
	prober *media.Prober
	limits Limits
	logger *slog.Logger

	diskFree func(path string) (uint64, error)
}

func NewFetcher(store storage.ObjectStore, prober *media.Prober, limits Limits, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fetcher{
		store:    store,
		prober:   prober,
		limits:   limits,
		logger:   logger,
		diskFree: freeBytes,
	}
}

// Fetch downloads bucket/key to destPath after admission checks pass.
//
// Oversized objects and over-length audio are permanent rejections; the
// input will never shrink on redelivery. Insufficient disk is transient
// and retryable. A failed duration probe is not a rejection: the job
// proceeds with the duration recorded as unknown.
func (f *Fetcher) Fetch(ctx context.Context, bucket, key, destPath string) (Result, error) {
	size, err := f.store.HeadObject(ctx, bucket, key)
	if err != nil {
		return Result{}, services.Wrap(services.ErrTransport, "fetch", "head", "stat source object", err)
	}
	if f.limits.MaxFileSizeBytes > 0 && size > f.limits.MaxFileSizeBytes {
		f.logger.Warn("source object exceeds size limit",
			logging.String(logging.FieldObjectKey, key),
			logging.String("size", humanize.IBytes(uint64(size))),
			logging.String("limit", humanize.IBytes(uint64(f.limits.MaxFileSizeBytes))))
		return Result{}, services.Wrap(services.ErrAdmissionRejected, "fetch", "size_limit", "source object exceeds size limit", nil)
	}

	if err := f.checkHeadroom(destPath, size); err != nil {
		return Result{}, err
	}

	start := time.Now()
	if err := f.store.Download(ctx, bucket, key, destPath); err != nil {
		return Result{}, services.Wrap(services.ErrTransport, "fetch", "download", "download source object", err)
	}
	f.logger.Info("source object downloaded",
		logging.String(logging.FieldObjectKey, key),
		logging.String("size", humanize.IBytes(uint64(size))),
		logging.Duration("elapsed", time.Since(start)))

	result := Result{LocalPath: destPath, SizeBytes: size}
	duration, err := f.prober.Duration(ctx, destPath)
	if err != nil {
		f.logger.Warn("duration probe failed, continuing with unknown duration",
			logging.String(logging.FieldObjectKey, key),
			logging.Error(err))
		return result, nil
	}
	result.DurationSeconds = duration
	result.DurationKnown = true
	if f.limits.MaxDurationSeconds > 0 && duration > f.limits.MaxDurationSeconds {
		return Result{}, services.Wrap(services.ErrAdmissionRejected, "fetch", "duration_limit", "audio exceeds duration limit", nil)
	}
	return result, nil
}

// checkHeadroom requires free space for twice the source size, covering
// the download plus the transcoded renditions derived from it.
func (f *Fetcher) checkHeadroom(destPath string, size int64) error {
	needed := uint64(size) * 2
	free, err := f.diskFree(destPath)
	if err != nil {
		f.logger.Warn("free disk probe failed, skipping headroom check", logging.Error(err))
		return nil
	}
	if free < needed {
		f.logger.Warn("insufficient disk headroom",
			logging.String("free", humanize.IBytes(free)),
			logging.String("needed", humanize.IBytes(needed)))
		return services.Wrap(services.ErrResourceExhausted, "fetch", "disk_headroom", "insufficient disk space for job", nil)
	}
	return nil
}

func freeBytes(path string) (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(nearestExistingDir(path), &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}

func nearestExistingDir(path string) string {
	dir := path
	for {
		if err := unix.Access(dir, unix.F_OK); err == nil {
			return dir
		}
		parent := parentDir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

func parentDir(path string) string {
	for i := len(path) - 1; i > 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "/"
}
