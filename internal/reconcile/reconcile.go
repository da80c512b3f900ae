// Package reconcile closes the loop after a successful publish: catalog
// metadata update, caption search indexing, and removal of the consumed
// source object. Every step here is advisory. The published HLS tree is
// already durable, so reconciliation failures degrade freshness, never
// correctness, and the pipeline completes the job regardless.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"chorus/internal/logging"
	"chorus/internal/services"
	"chorus/internal/storage"
)

// Summary carries everything reconciliation targets need about a finished
// job.
type Summary struct {
	JobID           string
	PlaybackURL     string
	Transcription   string
	Language        string
	DurationSeconds float64
	DurationKnown   bool
	SourceBucket    string
	SourceKey       string
}

// MetadataUpdater patches the catalog row for a job, whether the run
// produced output or died trying.
type MetadataUpdater interface {
	Update(ctx context.Context, summary Summary) error
	UpdateFailure(ctx context.Context, jobID, detail string) error
}

// CaptionIndexer stores caption text for search.
type CaptionIndexer interface {
	Upsert(ctx context.Context, summary Summary) error
}

// Reconciler fans a job summary out to the configured targets. Any target
// may be nil, meaning that integration is not configured.
type Reconciler struct {
	metadata     MetadataUpdater
	index        CaptionIndexer
	store        storage.ObjectStore
	deleteSource bool
	logger       *slog.Logger
}

func NewReconciler(metadata MetadataUpdater, index CaptionIndexer, store storage.ObjectStore, deleteSource bool, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reconciler{
		metadata:     metadata,
		index:        index,
		store:        store,
		deleteSource: deleteSource,
		logger:       logger,
	}
}

// Reconcile runs every configured target and returns the advisory
// failures. One target failing never stops the others.
func (r *Reconciler) Reconcile(ctx context.Context, summary Summary) []error {
	var advisories []error
	if r.metadata != nil {
		if err := r.metadata.Update(ctx, summary); err != nil {
			advisories = append(advisories, err)
			r.logger.Warn("catalog metadata update failed",
				logging.String(logging.FieldJobID, summary.JobID),
				logging.Error(err))
		}
	}
	if r.index != nil {
		if err := r.index.Upsert(ctx, summary); err != nil {
			advisories = append(advisories, err)
			r.logger.Warn("caption index upsert failed",
				logging.String(logging.FieldJobID, summary.JobID),
				logging.Error(err))
		}
	}
	if r.deleteSource && r.store != nil && summary.SourceKey != "" {
		if err := r.store.DeleteObject(ctx, summary.SourceBucket, summary.SourceKey); err != nil {
			wrapped := services.Wrap(services.ErrReconciliation, "reconcile", "cleanup", "delete source object", err)
			advisories = append(advisories, wrapped)
			r.logger.Warn("source object deletion failed",
				logging.String(logging.FieldJobID, summary.JobID),
				logging.String(logging.FieldObjectKey, summary.SourceKey),
				logging.Error(err))
		}
	}
	return advisories
}

// ReconcileFailure records a failed run in the catalog. Advisory like
// everything else here; the queue, not the catalog, decides what happens
// to the job next.
func (r *Reconciler) ReconcileFailure(ctx context.Context, jobID, detail string) {
	if r.metadata == nil {
		return
	}
	if err := r.metadata.UpdateFailure(ctx, jobID, detail); err != nil {
		r.logger.Warn("catalog failure update failed",
			logging.String(logging.FieldJobID, jobID),
			logging.Error(err))
	}
}

// PlaybackURL derives the public master manifest URL. A configured CDN
// domain takes precedence over the raw bucket endpoint.
func PlaybackURL(cdnDomain, bucket, region, keyPrefix string) string {
	if cdnDomain != "" {
		return fmt.Sprintf("https://%s/%s/master.m3u8", cdnDomain, keyPrefix)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s/master.m3u8", bucket, region, keyPrefix)
}
