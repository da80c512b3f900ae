// Package pipeline runs one job end to end: fetch the source object,
// transcribe it, transcode to HLS, assemble manifests, publish the output
// tree, and reconcile downstream systems. Its outcome classification is
// what gives the worker its delivery semantics, so every stage error is
// funneled through OutcomeForError before the queue is touched.
package pipeline

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"chorus/internal/config"
	"chorus/internal/encoding"
	"chorus/internal/events"
	"chorus/internal/fetching"
	"chorus/internal/hls"
	"chorus/internal/identity"
	"chorus/internal/jobs"
	"chorus/internal/logging"
	"chorus/internal/notifications"
	"chorus/internal/publish"
	"chorus/internal/reconcile"
	"chorus/internal/services"
	"chorus/internal/speech"
	"chorus/internal/workspace"
)

// AckEarlyFunc deletes the in-flight message before processing finishes.
// Used only when workflow.early_ack is enabled.
type AckEarlyFunc func(ctx context.Context) error

// Result reports how a run ended.
type Result struct {
	JobID      string
	Outcome    Outcome
	EarlyAcked bool
	Err        error
}

// Orchestrator wires the stages together.
type Orchestrator struct {
	cfg        *config.Config
	workspaces *workspace.Manager
	fetcher    *fetching.Fetcher
	engine     speech.Engine
	encoder    *encoding.Encoder
	publisher  *publish.Publisher
	reconciler *reconcile.Reconciler
	ledger     *jobs.Store
	notifier   notifications.Service
	logger     *slog.Logger
}

// Deps collects the orchestrator's collaborators. Ledger may be nil when
// run history is disabled.
type Deps struct {
	Config     *config.Config
	Workspaces *workspace.Manager
	Fetcher    *fetching.Fetcher
	Engine     speech.Engine
	Encoder    *encoding.Encoder
	Publisher  *publish.Publisher
	Reconciler *reconcile.Reconciler
	Ledger     *jobs.Store
	Notifier   notifications.Service
	Logger     *slog.Logger
}

func NewOrchestrator(deps Deps) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		cfg:        deps.Config,
		workspaces: deps.Workspaces,
		fetcher:    deps.Fetcher,
		engine:     deps.Engine,
		encoder:    deps.Encoder,
		publisher:  deps.Publisher,
		reconciler: deps.Reconciler,
		ledger:     deps.Ledger,
		notifier:   deps.Notifier,
		logger:     logger,
	}
}

// Process runs the full pipeline for one work item. ackEarly, when
// non-nil, is invoked once the source object is safely on local disk;
// from that point the queue no longer guards the job and any failure is
// final for this delivery.
func (o *Orchestrator) Process(ctx context.Context, item events.WorkItem, ackEarly AckEarlyFunc) Result {
	id := identity.Resolve(item.ObjectKey, time.Now())
	ctx = services.WithJobID(ctx, id.JobID)
	logger := logging.WithContext(ctx, o.logger).With(
		logging.String(logging.FieldObjectKey, item.ObjectKey))

	start := time.Now()
	runID := o.beginRun(ctx, id.JobID, item.ObjectKey, logger)

	result := o.run(ctx, item, id, logger, ackEarly)
	result.JobID = id.JobID

	o.finishRun(ctx, runID, result, logger)
	switch result.Outcome {
	case OutcomeCompleted:
		logger.Info("job completed", logging.Duration("elapsed", time.Since(start)))
		if o.notifier != nil {
			_ = o.notifier.NotifyJobCompleted(ctx, id.JobID, time.Since(start))
		}
	case OutcomeFailedPermanent:
		logger.Error("job discarded", logging.Error(result.Err))
		o.reconcileFailure(ctx, id.JobID, result.Err)
		if o.notifier != nil {
			_ = o.notifier.NotifyJobDiscarded(ctx, id.JobID, errDetail(result.Err))
		}
	default:
		logger.Warn("job failed, eligible for retry",
			logging.String(logging.FieldErrorKind, services.Kind(result.Err)),
			logging.Error(result.Err))
		o.reconcileFailure(ctx, id.JobID, result.Err)
	}
	return result
}

// reconcileFailure surfaces a failed run to the catalog so the track does
// not sit in a processing state forever. A later successful retry patches
// the same row back to processed.
func (o *Orchestrator) reconcileFailure(ctx context.Context, jobID string, err error) {
	if o.reconciler == nil {
		return
	}
	o.reconciler.ReconcileFailure(services.WithStage(ctx, "reconcile"), jobID, errDetail(err))
}

func (o *Orchestrator) run(ctx context.Context, item events.WorkItem, id identity.Identity, logger *slog.Logger, ackEarly AckEarlyFunc) Result {
	labels := make([]string, 0, len(o.cfg.HLS.Profiles))
	for _, profile := range o.cfg.HLS.Profiles {
		labels = append(labels, profile.Label)
	}
	ws, err := o.workspaces.Acquire(id.JobID, filepath.Ext(item.ObjectKey), labels)
	if err != nil {
		return Result{Outcome: OutcomeFailedRetryable,
			Err: services.Wrap(services.ErrResourceExhausted, "workspace", "acquire", "create job workspace", err)}
	}
	defer o.workspaces.Release(ws)

	fetched, err := o.fetcher.Fetch(services.WithStage(ctx, "fetch"), item.SourceBucket, item.ObjectKey, ws.DownloadPath)
	if err != nil {
		return Result{Outcome: OutcomeForError(err), Err: err}
	}
	logger.Info("source fetched", logging.String("size", humanize.IBytes(uint64(fetched.SizeBytes))))

	earlyAcked := false
	if ackEarly != nil {
		if err := ackEarly(ctx); err != nil {
			logger.Warn("early acknowledgment failed, delivery stays in flight", logging.Error(err))
		} else {
			earlyAcked = true
		}
	}

	transcript, err := o.engine.Transcribe(services.WithStage(ctx, "transcribe"), fetched.LocalPath)
	if err != nil {
		return Result{Outcome: OutcomeForError(err), EarlyAcked: earlyAcked, Err: err}
	}

	renditions, err := o.encoder.Encode(services.WithStage(ctx, "encode"), fetched.LocalPath, ws.OutputDir)
	if err != nil {
		return Result{Outcome: OutcomeForError(err), EarlyAcked: earlyAcked, Err: err}
	}

	subs, err := o.writeCaptions(ws, transcript, fetched)
	if err != nil {
		return Result{Outcome: OutcomeForError(err), EarlyAcked: earlyAcked, Err: err}
	}

	manifest, err := hls.Master(hls.VariantsFromRenditions(renditions), subs, o.cfg.HLS.Codec)
	if err != nil {
		return Result{Outcome: OutcomeForError(err), EarlyAcked: earlyAcked, Err: err}
	}
	masterPath := filepath.Join(ws.OutputDir, hls.MasterName)
	if err := os.WriteFile(masterPath, []byte(manifest), 0o644); err != nil {
		wrapped := services.Wrap(services.ErrResourceExhausted, "manifest", "write", "write master manifest", err)
		return Result{Outcome: OutcomeFailedRetryable, EarlyAcked: earlyAcked, Err: wrapped}
	}

	if _, err := o.publisher.Publish(services.WithStage(ctx, "publish"), ws.OutputDir, id.OutputPrefix); err != nil {
		return Result{Outcome: OutcomeForError(err), EarlyAcked: earlyAcked, Err: err}
	}

	o.reconcile(services.WithStage(ctx, "reconcile"), item, id, transcript, fetched)
	return Result{Outcome: OutcomeCompleted, EarlyAcked: earlyAcked}
}

// writeCaptions materializes the VTT document and its wrapper playlist.
// A transcript with no usable text yields no caption track at all.
func (o *Orchestrator) writeCaptions(ws *workspace.Workspace, transcript *speech.Transcript, fetched fetching.Result) (*hls.Subtitles, error) {
	cues := speech.Cues(transcript)
	if len(cues) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(ws.CaptionsDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrResourceExhausted, "captions", "mkdir", "create captions directory", err)
	}
	vttPath := filepath.Join(ws.CaptionsDir, hls.CaptionsFileName)
	if err := os.WriteFile(vttPath, []byte(hls.WriteVTT(cues)), 0o644); err != nil {
		return nil, services.Wrap(services.ErrResourceExhausted, "captions", "write", "write caption document", err)
	}
	playlistPath := filepath.Join(ws.CaptionsDir, hls.CaptionsPlaylistName)
	if err := os.WriteFile(playlistPath, []byte(hls.CaptionsPlaylist(fetched.DurationSeconds)), 0o644); err != nil {
		return nil, services.Wrap(services.ErrResourceExhausted, "captions", "write", "write captions playlist", err)
	}
	return &hls.Subtitles{Language: transcript.Language}, nil
}

func (o *Orchestrator) reconcile(ctx context.Context, item events.WorkItem, id identity.Identity, transcript *speech.Transcript, fetched fetching.Result) {
	if o.reconciler == nil {
		return
	}
	summary := reconcile.Summary{
		JobID: id.JobID,
		PlaybackURL: reconcile.PlaybackURL(
			o.cfg.AWS.CDNDomain,
			o.cfg.AWS.DestinationBucket,
			o.cfg.AWS.Region,
			id.OutputPrefix),
		DurationSeconds: fetched.DurationSeconds,
		DurationKnown:   fetched.DurationKnown,
		SourceBucket:    item.SourceBucket,
		SourceKey:       item.ObjectKey,
	}
	if transcript != nil {
		summary.Transcription = transcript.Text
		summary.Language = transcript.Language
	}
	o.reconciler.Reconcile(ctx, summary)
}

func (o *Orchestrator) beginRun(ctx context.Context, jobID, objectKey string, logger *slog.Logger) int64 {
	if o.ledger == nil {
		return 0
	}
	runID, err := o.ledger.Begin(ctx, jobID, objectKey)
	if err != nil {
		logger.Warn("run ledger unavailable", logging.Error(err))
		return 0
	}
	return runID
}

func (o *Orchestrator) finishRun(ctx context.Context, runID int64, result Result, logger *slog.Logger) {
	if o.ledger == nil || runID == 0 {
		return
	}
	outcome := jobs.OutcomeCompleted
	switch result.Outcome {
	case OutcomeFailedRetryable:
		outcome = jobs.OutcomeFailedRetryable
	case OutcomeFailedPermanent:
		outcome = jobs.OutcomeFailedPermanent
	}
	if err := o.ledger.Finish(ctx, runID, outcome, services.Kind(result.Err), errDetail(result.Err)); err != nil {
		logger.Warn("run ledger update failed", logging.Error(err))
	}
}

func errDetail(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
