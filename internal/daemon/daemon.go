// Package daemon assembles the worker from configuration and runs it as a
// single-instance process: flock-based locking, binary preflight, stale
// workspace sweep, then the poll loop until shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"chorus/internal/config"
	"chorus/internal/deps"
	"chorus/internal/encoding"
	"chorus/internal/events"
	"chorus/internal/fetching"
	"chorus/internal/jobs"
	"chorus/internal/logging"
	"chorus/internal/media"
	"chorus/internal/notifications"
	"chorus/internal/pipeline"
	"chorus/internal/poller"
	"chorus/internal/publish"
	"chorus/internal/queue"
	"chorus/internal/reconcile"
	"chorus/internal/speech"
	"chorus/internal/storage"
	"chorus/internal/workspace"
)

// Daemon owns the worker lifecycle.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	lockPath string
	lock     *flock.Flock

	workspaces *workspace.Manager
	poller     *poller.Poller
	notifier   notifications.Service
	ledger     *jobs.Store
}

// New wires every component from configuration. It opens the run ledger
// and AWS clients but does not start polling.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure log directory: %w", err)
	}

	s3Client, sqsClient, err := storage.NewAWSClients(ctx, storage.ClientOptions{
		Region:       cfg.AWS.Region,
		Endpoint:     cfg.AWS.Endpoint,
		UsePathStyle: cfg.AWS.UsePathStyle,
	})
	if err != nil {
		return nil, err
	}
	store := storage.NewS3(s3Client)
	q := queue.NewSQS(sqsClient, cfg.AWS.QueueURL, int32(cfg.Workflow.VisibilityTimeoutSeconds))

	ledger, err := jobs.Open(cfg.Paths.LogDir)
	if err != nil {
		return nil, err
	}

	workspaces := workspace.NewManager(cfg.Paths.StagingDir, logger)
	notifier := notifications.NewService(cfg)

	prober := media.NewProber(media.DefaultProbeBinary)
	fetcher := fetching.NewFetcher(store, prober, fetching.Limits{
		MaxFileSizeBytes:   cfg.Limits.MaxFileSizeMB << 20,
		MaxDurationSeconds: float64(cfg.Limits.MaxDurationSeconds),
	}, logging.NewComponentLogger(logger, "fetching"))

	encoder := encoding.NewEncoder(encoding.DefaultBinary, cfg.HLS.SegmentSeconds, cfg.HLS.Profiles,
		logging.NewComponentLogger(logger, "encoding"))

	orchestrator := pipeline.NewOrchestrator(pipeline.Deps{
		Config:     cfg,
		Workspaces: workspaces,
		Fetcher:    fetcher,
		Engine:     buildEngine(cfg),
		Encoder:    encoder,
		Publisher:  publish.NewPublisher(store, cfg.AWS.DestinationBucket, logging.NewComponentLogger(logger, "publish")),
		Reconciler: buildReconciler(cfg, store, logger),
		Ledger:     ledger,
		Notifier:   notifier,
		Logger:     logging.NewComponentLogger(logger, "pipeline"),
	})

	decoder := events.NewDecoder(cfg.AudioExtensions, logging.NewComponentLogger(logger, "events"))
	p := poller.New(q, decoder, orchestrator, cfg, logging.NewComponentLogger(logger, "poller"))

	lockPath := filepath.Join(cfg.Paths.LogDir, "chorusd.lock")
	return &Daemon{
		cfg:        cfg,
		logger:     logger,
		lockPath:   lockPath,
		lock:       flock.New(lockPath),
		workspaces: workspaces,
		poller:     p,
		notifier:   notifier,
		ledger:     ledger,
	}, nil
}

func buildEngine(cfg *config.Config) speech.Engine {
	timeout := time.Duration(cfg.Speech.RequestTimeoutSeconds) * time.Second
	if cfg.Speech.Engine == config.SpeechEngineRemote {
		return speech.NewRemoteEngine(cfg.Speech.APIURL, cfg.Speech.APIKey, timeout)
	}
	return speech.NewLocalEngine(cfg.Speech.Binary, cfg.Speech.Model)
}

func buildReconciler(cfg *config.Config, store storage.ObjectStore, logger *slog.Logger) *reconcile.Reconciler {
	timeout := time.Duration(cfg.Reconcile.TimeoutSeconds) * time.Second
	var metadata reconcile.MetadataUpdater
	if cfg.Reconcile.MetadataURL != "" {
		metadata = reconcile.NewMetadataClient(cfg.Reconcile.MetadataURL, cfg.Reconcile.MetadataKey, timeout)
	}
	var index reconcile.CaptionIndexer
	if cfg.Reconcile.IndexURL != "" {
		index = reconcile.NewIndexClient(cfg.Reconcile.IndexURL, cfg.Reconcile.IndexToken, timeout)
	}
	return reconcile.NewReconciler(metadata, index, store, cfg.Reconcile.DeleteSource,
		logging.NewComponentLogger(logger, "reconcile"))
}

// Run acquires the instance lock, verifies external binaries, sweeps
// stale workspaces, and polls until ctx is canceled.
func (d *Daemon) Run(ctx context.Context) error {
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another chorus worker instance is already running")
	}
	defer func() {
		if err := d.lock.Unlock(); err != nil {
			d.logger.Warn("failed to release instance lock", logging.Error(err))
		}
	}()

	if missing := deps.Missing(deps.CheckBinaries(deps.Requirements(d.cfg))); len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for _, status := range missing {
			names = append(names, status.Command)
		}
		return fmt.Errorf("missing required binaries: %s", strings.Join(names, ", "))
	}

	if err := d.workspaces.SweepStale(); err != nil {
		d.logger.Warn("stale workspace sweep failed", logging.Error(err))
	}

	d.logger.Info("chorus worker started",
		logging.String("queue_url", d.cfg.AWS.QueueURL),
		logging.String("lock", d.lockPath))
	_ = d.notifier.NotifyWorkerStarted(ctx, d.cfg.AWS.QueueURL)

	started := time.Now()
	runErr := d.poller.Run(ctx)

	stats := d.poller.Stats()
	d.logger.Info("chorus worker stopped",
		logging.Int("processed", stats.Processed),
		logging.Int("failed", stats.Failed),
		logging.Duration("uptime", time.Since(started)))
	_ = d.notifier.NotifyWorkerStopped(context.WithoutCancel(ctx), stats.Processed, stats.Failed, time.Since(started))
	return runErr
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	if d == nil {
		return nil
	}
	return d.ledger.Close()
}
