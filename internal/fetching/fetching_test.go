package fetching

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"chorus/internal/media"
	"chorus/internal/services"
	"chorus/internal/storage"
)

type fakeStore struct {
	size        int64
	headErr     error
	downloadErr error
	downloaded  []string
}

var _ storage.ObjectStore = (*fakeStore)(nil)

func (f *fakeStore) HeadObject(ctx context.Context, bucket, key string) (int64, error) {
	return f.size, f.headErr
}

func (f *fakeStore) Download(ctx context.Context, bucket, key, destPath string) error {
	if f.downloadErr != nil {
		return f.downloadErr
	}
	f.downloaded = append(f.downloaded, destPath)
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(destPath, []byte("audio"), 0o644)
}

func (f *fakeStore) Upload(ctx context.Context, bucket, key, srcPath, contentType string) error {
	return nil
}

func (f *fakeStore) DeleteObject(ctx context.Context, bucket, key string) error {
	return nil
}

func proberWithDuration(output string, err error) *media.Prober {
	prober := media.NewProber("ffprobe")
	prober.WithRunner(func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte(output), err
	})
	return prober
}

func newTestFetcher(store *fakeStore, prober *media.Prober, limits Limits) *Fetcher {
	fetcher := NewFetcher(store, prober, limits, nil)
	fetcher.diskFree = func(path string) (uint64, error) { return 1 << 40, nil }
	return fetcher
}

func TestFetchHappyPath(t *testing.T) {
	store := &fakeStore{size: 1024}
	fetcher := newTestFetcher(store, proberWithDuration("120.5\n", nil), Limits{
		MaxFileSizeBytes:   500 << 20,
		MaxDurationSeconds: 3600,
	})

	dest := filepath.Join(t.TempDir(), "source", "audio.mp3")
	result, err := fetcher.Fetch(context.Background(), "bucket", "song.mp3", dest)
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if result.SizeBytes != 1024 {
		t.Fatalf("SizeBytes = %d, want 1024", result.SizeBytes)
	}
	if !result.DurationKnown || result.DurationSeconds != 120.5 {
		t.Fatalf("duration = %v known=%v, want 120.5 known", result.DurationSeconds, result.DurationKnown)
	}
	if len(store.downloaded) != 1 {
		t.Fatalf("expected one download, got %d", len(store.downloaded))
	}
}

func TestFetchRejectsOversizedObjectBeforeDownload(t *testing.T) {
	store := &fakeStore{size: 600 << 20}
	fetcher := newTestFetcher(store, proberWithDuration("10\n", nil), Limits{MaxFileSizeBytes: 500 << 20})

	_, err := fetcher.Fetch(context.Background(), "bucket", "big.mp3", filepath.Join(t.TempDir(), "audio.mp3"))
	if !errors.Is(err, services.ErrAdmissionRejected) {
		t.Fatalf("expected ErrAdmissionRejected, got %v", err)
	}
	if len(store.downloaded) > 0 {
		t.Fatal("oversized object must not be downloaded")
	}
}

func TestFetchRejectsOverlongAudio(t *testing.T) {
	store := &fakeStore{size: 1024}
	fetcher := newTestFetcher(store, proberWithDuration("7200.0\n", nil), Limits{MaxDurationSeconds: 3600})

	_, err := fetcher.Fetch(context.Background(), "bucket", "long.mp3", filepath.Join(t.TempDir(), "audio.mp3"))
	if !errors.Is(err, services.ErrAdmissionRejected) {
		t.Fatalf("expected ErrAdmissionRejected, got %v", err)
	}
}

func TestFetchProceedsWhenProbeFails(t *testing.T) {
	store := &fakeStore{size: 1024}
	fetcher := newTestFetcher(store, proberWithDuration("", errors.New("ffprobe missing")), Limits{MaxDurationSeconds: 3600})

	result, err := fetcher.Fetch(context.Background(), "bucket", "song.mp3", filepath.Join(t.TempDir(), "audio.mp3"))
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if result.DurationKnown {
		t.Fatal("duration should be unknown when probe fails")
	}
}

func TestFetchInsufficientDiskIsRetryable(t *testing.T) {
	store := &fakeStore{size: 100 << 20}
	fetcher := newTestFetcher(store, proberWithDuration("10\n", nil), Limits{})
	fetcher.diskFree = func(path string) (uint64, error) { return 50 << 20, nil }

	_, err := fetcher.Fetch(context.Background(), "bucket", "song.mp3", filepath.Join(t.TempDir(), "audio.mp3"))
	if !errors.Is(err, services.ErrResourceExhausted) {
		t.Fatalf("expected ErrResourceExhausted, got %v", err)
	}
	if len(store.downloaded) > 0 {
		t.Fatal("download must not run without headroom")
	}
}

func TestFetchTransportErrorsAreTagged(t *testing.T) {
	store := &fakeStore{headErr: errors.New("connection reset")}
	fetcher := newTestFetcher(store, proberWithDuration("10\n", nil), Limits{})

	_, err := fetcher.Fetch(context.Background(), "bucket", "song.mp3", filepath.Join(t.TempDir(), "audio.mp3"))
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}
