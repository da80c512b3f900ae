package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"chorus/internal/services"
)

func TestRemoteEngineTranscribe(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("content type = %q, want multipart", r.Header.Get("Content-Type"))
		}
		json.NewEncoder(w).Encode(map[string]any{
			"text":     "hello world",
			"language": "en",
			"chunks": []map[string]any{
				{"timestamp": []any{0.0, 1.5}, "text": " hello "},
				{"timestamp": []any{1.5, nil}, "text": "world"},
			},
		})
	}))
	defer server.Close()

	audio := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(audio, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	engine := NewRemoteEngine(server.URL, "secret", 5*time.Second)
	transcript, err := engine.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("authorization header = %q", gotAuth)
	}
	if transcript.Language != "en" || transcript.Text != "hello world" {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
	if len(transcript.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(transcript.Segments))
	}
	if transcript.Segments[1].End != transcript.Segments[1].Start {
		t.Fatalf("open-ended chunk should close at its start, got %+v", transcript.Segments[1])
	}
}

func TestRemoteTranscriptClampsMissingStart(t *testing.T) {
	five, six, eight := 5.0, 6.0, 8.0
	response := remoteResponse{
		Language: "en",
		Chunks: []remoteChunk{
			{Timestamp: [2]*float64{&five, &six}, Text: "a"},
			{Timestamp: [2]*float64{nil, &eight}, Text: "b"},
		},
	}

	transcript := response.transcript()
	if len(transcript.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(transcript.Segments))
	}
	if transcript.Segments[1].Start != 6 || transcript.Segments[1].End != 8 {
		t.Fatalf("missing start should clamp to previous end, got %+v", transcript.Segments[1])
	}

	cues := Cues(transcript)
	for i := 1; i < len(cues); i++ {
		if cues[i].Start < cues[i-1].Start {
			t.Fatalf("cue starts not monotonic: %+v", cues)
		}
	}
}

func TestRemoteEngineServerErrorIsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	audio := filepath.Join(t.TempDir(), "song.mp3")
	os.WriteFile(audio, []byte("audio"), 0o644)

	engine := NewRemoteEngine(server.URL, "", 5*time.Second)
	_, err := engine.Transcribe(context.Background(), audio)
	if !errors.Is(err, services.ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}

func TestLocalEngineTranscribe(t *testing.T) {
	dir := t.TempDir()
	audio := filepath.Join(dir, "song.mp3")
	if err := os.WriteFile(audio, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}

	var gotArgs []string
	engine := NewLocalEngine("whisper-ctranslate2", "small").WithRunner(
		func(ctx context.Context, name string, args ...string) ([]byte, error) {
			gotArgs = append([]string{name}, args...)
			result := localResult{
				Language: "en",
				Segments: []localSegment{
					{
						Start: 0, End: 2, Text: "hello world",
						Words: []localWord{
							{Start: 0, End: 1, Word: " hello"},
							{Start: 1, End: 2, Word: " world"},
						},
					},
				},
			}
			payload, _ := json.Marshal(result)
			return nil, os.WriteFile(filepath.Join(dir, "song.json"), payload, 0o644)
		})

	transcript, err := engine.Transcribe(context.Background(), audio)
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if gotArgs[0] != "whisper-ctranslate2" || gotArgs[1] != audio {
		t.Fatalf("unexpected command: %v", gotArgs)
	}
	if transcript.Language != "en" || len(transcript.Segments) != 1 {
		t.Fatalf("unexpected transcript: %+v", transcript)
	}
	if len(transcript.Segments[0].Words) != 2 || transcript.Segments[0].Words[1].Text != "world" {
		t.Fatalf("unexpected words: %+v", transcript.Segments[0].Words)
	}
	if transcript.Text != "hello world" {
		t.Fatalf("text should be assembled from segments, got %q", transcript.Text)
	}
}

func TestLocalEngineCommandFailure(t *testing.T) {
	audio := filepath.Join(t.TempDir(), "song.mp3")
	os.WriteFile(audio, []byte("audio"), 0o644)

	engine := NewLocalEngine("whisper-ctranslate2", "small").WithRunner(
		func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return []byte("model download failed"), errors.New("exit status 1")
		})

	_, err := engine.Transcribe(context.Background(), audio)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if !strings.Contains(err.Error(), "model download failed") {
		t.Fatalf("command output missing from error: %v", err)
	}
}
