package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chorus/internal/services"
)

// RemoteEngine transcribes audio through an HTTP inference endpoint that
// accepts multipart uploads and returns chunked timestamps.
type RemoteEngine struct {
	apiURL string
	apiKey string
	client *http.Client
}

// NewRemoteEngine builds a remote engine. timeout bounds the whole request
// including upload and inference.
func NewRemoteEngine(apiURL, apiKey string, timeout time.Duration) *RemoteEngine {
	return &RemoteEngine{
		apiURL: apiURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}
}

type remoteChunk struct {
	Timestamp [2]*float64 `json:"timestamp"`
	Text      string      `json:"text"`
}

type remoteResponse struct {
	Text     string        `json:"text"`
	Language string        `json:"language"`
	Chunks   []remoteChunk `json:"chunks"`
}

func (e *RemoteEngine) Transcribe(ctx context.Context, audioPath string) (*Transcript, error) {
	body, contentType, err := multipartFile(audioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "speech", "remote", "prepare upload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.apiURL, body)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "speech", "remote", "build request", err)
	}
	req.Header.Set("Content-Type", contentType)
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "speech", "remote", "post audio", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransport, "speech", "remote", "read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		marker := services.ErrTransport
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrExternalTool
		}
		return nil, services.Wrap(marker, "speech", "remote",
			fmt.Sprintf("inference endpoint returned %d", resp.StatusCode), nil)
	}

	var decoded remoteResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, "speech", "remote", "decode response", err)
	}
	return decoded.transcript(), nil
}

// transcript maps the chunk list to segments. The service sometimes omits
// timestamps: a missing start is clamped to the previous segment's end and
// a missing end closes at the segment's own start, so cue starts stay
// monotonic through the sequence.
func (r remoteResponse) transcript() *Transcript {
	t := &Transcript{
		Language: r.Language,
		Text:     strings.TrimSpace(r.Text),
	}
	var cursor float64
	for _, chunk := range r.Chunks {
		text := strings.TrimSpace(chunk.Text)
		if text == "" {
			continue
		}
		start := cursor
		if chunk.Timestamp[0] != nil {
			start = *chunk.Timestamp[0]
		}
		end := start
		if chunk.Timestamp[1] != nil {
			end = *chunk.Timestamp[1]
		}
		if end > cursor {
			cursor = end
		}
		t.Segments = append(t.Segments, Segment{Start: start, End: end, Text: text})
	}
	return t
}

func multipartFile(path string) (io.Reader, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}
