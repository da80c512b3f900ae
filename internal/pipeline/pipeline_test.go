package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"chorus/internal/config"
	"chorus/internal/encoding"
	"chorus/internal/events"
	"chorus/internal/fetching"
	"chorus/internal/jobs"
	"chorus/internal/media"
	"chorus/internal/publish"
	"chorus/internal/reconcile"
	"chorus/internal/services"
	"chorus/internal/speech"
	"chorus/internal/workspace"
)

type fakeStore struct {
	size        int64
	headErr     error
	downloadErr error
	uploads     map[string]string
	deleted     []string
}

func newFakeStore(size int64) *fakeStore {
	return &fakeStore{size: size, uploads: map[string]string{}}
}

func (f *fakeStore) HeadObject(ctx context.Context, bucket, key string) (int64, error) {
	return f.size, f.headErr
}

func (f *fakeStore) Download(ctx context.Context, bucket, key, destPath string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte("audio"), 0o644)
}

func (f *fakeStore) Upload(ctx context.Context, bucket, key, srcPath, contentType string) error {
	f.uploads[key] = contentType
	return nil
}

func (f *fakeStore) DeleteObject(ctx context.Context, bucket, key string) error {
	f.deleted = append(f.deleted, bucket+"/"+key)
	return nil
}

type fakeEngine struct {
	transcript *speech.Transcript
	err        error
	calls      int
}

func (f *fakeEngine) Transcribe(ctx context.Context, audioPath string) (*speech.Transcript, error) {
	f.calls++
	return f.transcript, f.err
}

type fakeMetadata struct {
	summaries []reconcile.Summary
	failures  []string
}

func (f *fakeMetadata) Update(ctx context.Context, summary reconcile.Summary) error {
	f.summaries = append(f.summaries, summary)
	return nil
}

func (f *fakeMetadata) UpdateFailure(ctx context.Context, jobID, detail string) error {
	f.failures = append(f.failures, jobID+": "+detail)
	return nil
}

func testTranscript() *speech.Transcript {
	return &speech.Transcript{
		Language: "en",
		Text:     "hello world",
		Segments: []speech.Segment{{Start: 0, End: 2, Text: "hello world"}},
	}
}

type harness struct {
	orchestrator *Orchestrator
	store        *fakeStore
	engine       *fakeEngine
	metadata     *fakeMetadata
	ledger       *jobs.Store
	staging      string
}

func newHarness(t *testing.T, store *fakeStore, engine *fakeEngine) *harness {
	t.Helper()
	cfg := config.Default()
	cfg.AWS.QueueURL = "https://sqs.example/queue"
	cfg.AWS.SourceBucket = "temp"
	cfg.AWS.DestinationBucket = "production"
	cfg.AWS.CDNDomain = "cdn.example.com"
	cfg.HLS.Profiles = []config.BitrateProfile{{Label: "128k", Bandwidth: 128000}}

	staging := t.TempDir()
	prober := media.NewProber("ffprobe")
	prober.WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("42.0\n"), nil
	})
	fetcher := fetching.NewFetcher(store, prober, fetching.Limits{
		MaxFileSizeBytes:   500 << 20,
		MaxDurationSeconds: 3600,
	}, nil)

	encoder := encoding.NewEncoder("ffmpeg", 6, cfg.HLS.Profiles, nil).WithRunner(
		func(ctx context.Context, name string, args ...string) ([]byte, error) {
			playlist := args[len(args)-1]
			if err := os.WriteFile(playlist, []byte("#EXTM3U\n"), 0o644); err != nil {
				return nil, err
			}
			segment := filepath.Join(filepath.Dir(playlist), "segment_000.ts")
			return nil, os.WriteFile(segment, []byte("ts"), 0o644)
		})

	metadata := &fakeMetadata{}
	ledger, err := jobs.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ledger.Close() })

	orchestrator := NewOrchestrator(Deps{
		Config:     &cfg,
		Workspaces: workspace.NewManager(staging, nil),
		Fetcher:    fetcher,
		Engine:     engine,
		Encoder:    encoder,
		Publisher:  publish.NewPublisher(store, cfg.AWS.DestinationBucket, nil),
		Reconciler: reconcile.NewReconciler(metadata, nil, store, true, nil),
		Ledger:     ledger,
	})
	return &harness{
		orchestrator: orchestrator,
		store:        store,
		engine:       engine,
		metadata:     metadata,
		ledger:       ledger,
		staging:      staging,
	}
}

func workItem() events.WorkItem {
	return events.WorkItem{
		SourceBucket: "temp",
		ObjectKey:    "9b2f6c3a-1111-4222-8333-444455556666_song.mp3",
		RawKey:       "9b2f6c3a-1111-4222-8333-444455556666_song.mp3",
	}
}

func TestProcessPublishesStream(t *testing.T) {
	h := newHarness(t, newFakeStore(1024), &fakeEngine{transcript: testTranscript()})

	result := h.orchestrator.Process(context.Background(), workItem(), nil)
	if result.Err != nil {
		t.Fatalf("Process returned error: %v", result.Err)
	}
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v, want completed", result.Outcome)
	}
	if result.JobID != "9b2f6c3a-1111-4222-8333-444455556666" {
		t.Fatalf("job id = %q", result.JobID)
	}

	prefix := result.JobID + "/"
	wantKeys := []string{
		prefix + "master.m3u8",
		prefix + "128k/playlist.m3u8",
		prefix + "128k/segment_000.ts",
		prefix + "captions/captions.vtt",
		prefix + "captions/playlist.m3u8",
	}
	for _, key := range wantKeys {
		if _, ok := h.store.uploads[key]; !ok {
			t.Fatalf("missing upload %q, got %v", key, h.store.uploads)
		}
	}
	for key := range h.store.uploads {
		if strings.Contains(key, "source") || strings.HasSuffix(key, ".mp3") {
			t.Fatalf("raw source must not be published: %q", key)
		}
	}

	if len(h.metadata.summaries) != 1 {
		t.Fatalf("expected one metadata update, got %d", len(h.metadata.summaries))
	}
	summary := h.metadata.summaries[0]
	if summary.PlaybackURL != "https://cdn.example.com/"+result.JobID+"/master.m3u8" {
		t.Fatalf("playback url = %q", summary.PlaybackURL)
	}
	if !summary.DurationKnown || summary.DurationSeconds != 42 {
		t.Fatalf("duration not propagated: %+v", summary)
	}
	if len(h.store.deleted) != 1 {
		t.Fatalf("source object should be deleted, got %v", h.store.deleted)
	}
	if len(h.metadata.failures) != 0 {
		t.Fatalf("completed job must not be marked failed: %v", h.metadata.failures)
	}

	entries, err := os.ReadDir(h.staging)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("workspace not released: %v", entries)
	}
}

func TestProcessRecordsRunHistory(t *testing.T) {
	h := newHarness(t, newFakeStore(1024), &fakeEngine{transcript: testTranscript()})

	h.orchestrator.Process(context.Background(), workItem(), nil)
	runs, err := h.ledger.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Outcome != jobs.OutcomeCompleted {
		t.Fatalf("unexpected run history: %+v", runs)
	}
}

func TestProcessOversizedSourceIsPermanent(t *testing.T) {
	h := newHarness(t, newFakeStore(600<<20), &fakeEngine{transcript: testTranscript()})

	result := h.orchestrator.Process(context.Background(), workItem(), nil)
	if result.Outcome != OutcomeFailedPermanent {
		t.Fatalf("outcome = %v, want permanent", result.Outcome)
	}
	if h.engine.calls != 0 {
		t.Fatal("rejected job must not be transcribed")
	}
	if len(h.store.uploads) != 0 {
		t.Fatalf("rejected job must not publish: %v", h.store.uploads)
	}
	if len(h.metadata.failures) != 1 || !strings.HasPrefix(h.metadata.failures[0], result.JobID+": ") {
		t.Fatalf("catalog should record the failure: %v", h.metadata.failures)
	}
	if len(h.metadata.summaries) != 0 {
		t.Fatalf("rejected job must not record a success summary: %v", h.metadata.summaries)
	}
}

func TestProcessTransportFailureIsRetryable(t *testing.T) {
	store := newFakeStore(1024)
	store.downloadErr = errors.New("connection reset")
	h := newHarness(t, store, &fakeEngine{transcript: testTranscript()})

	result := h.orchestrator.Process(context.Background(), workItem(), nil)
	if result.Outcome != OutcomeFailedRetryable {
		t.Fatalf("outcome = %v, want retryable", result.Outcome)
	}
	if !errors.Is(result.Err, services.ErrTransport) {
		t.Fatalf("expected transport error, got %v", result.Err)
	}
	if len(h.metadata.failures) != 1 {
		t.Fatalf("catalog should record the failure: %v", h.metadata.failures)
	}

	entries, err := os.ReadDir(h.staging)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("workspace must be released on failure: %v", entries)
	}
}

func TestProcessNoTranscriptSkipsCaptions(t *testing.T) {
	h := newHarness(t, newFakeStore(1024), &fakeEngine{transcript: &speech.Transcript{}})

	result := h.orchestrator.Process(context.Background(), workItem(), nil)
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v: %v", result.Outcome, result.Err)
	}
	for key := range h.store.uploads {
		if strings.Contains(key, "captions") {
			t.Fatalf("captions must not be published without a transcript: %q", key)
		}
	}
}

func TestProcessEarlyAck(t *testing.T) {
	h := newHarness(t, newFakeStore(1024), &fakeEngine{transcript: testTranscript()})

	acked := 0
	result := h.orchestrator.Process(context.Background(), workItem(), func(ctx context.Context) error {
		acked++
		return nil
	})
	if !result.EarlyAcked || acked != 1 {
		t.Fatalf("early ack not recorded: %+v calls=%d", result, acked)
	}
}

func TestProcessEarlyAckFailureIsNonFatal(t *testing.T) {
	h := newHarness(t, newFakeStore(1024), &fakeEngine{transcript: testTranscript()})

	result := h.orchestrator.Process(context.Background(), workItem(), func(ctx context.Context) error {
		return errors.New("queue unreachable")
	})
	if result.Outcome != OutcomeCompleted {
		t.Fatalf("outcome = %v: %v", result.Outcome, result.Err)
	}
	if result.EarlyAcked {
		t.Fatal("failed early ack must not be recorded as acked")
	}
}

func TestOutcomeForError(t *testing.T) {
	cases := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeCompleted},
		{services.Wrap(services.ErrInputRejected, "decode", "", "", nil), OutcomeFailedPermanent},
		{services.Wrap(services.ErrAdmissionRejected, "fetch", "", "", nil), OutcomeFailedPermanent},
		{services.Wrap(services.ErrResourceExhausted, "fetch", "", "", nil), OutcomeFailedRetryable},
		{services.Wrap(services.ErrTransport, "publish", "", "", nil), OutcomeFailedRetryable},
		{services.Wrap(services.ErrExternalTool, "encode", "", "", nil), OutcomeFailedRetryable},
		{errors.New("untagged"), OutcomeFailedRetryable},
	}
	for _, tc := range cases {
		if got := OutcomeForError(tc.err); got != tc.want {
			t.Errorf("OutcomeForError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestAckFor(t *testing.T) {
	cases := []struct {
		outcome    Outcome
		policy     string
		earlyAcked bool
		want       AckAction
	}{
		{OutcomeCompleted, config.RetryPolicyRedeliver, false, AckDelete},
		{OutcomeFailedPermanent, config.RetryPolicyRedeliver, false, AckDelete},
		{OutcomeFailedRetryable, config.RetryPolicyRedeliver, false, AckNone},
		{OutcomeFailedRetryable, config.RetryPolicyRequeue, false, AckRequeue},
		{OutcomeFailedRetryable, config.RetryPolicyRedeliver, true, AckNone},
		{OutcomeCompleted, config.RetryPolicyRedeliver, true, AckNone},
	}
	for _, tc := range cases {
		if got := AckFor(tc.outcome, tc.policy, tc.earlyAcked); got != tc.want {
			t.Errorf("AckFor(%v, %q, %v) = %v, want %v", tc.outcome, tc.policy, tc.earlyAcked, got, tc.want)
		}
	}
}
