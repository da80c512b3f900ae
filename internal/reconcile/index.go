package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"chorus/internal/services"
)

// IndexClient upserts caption text into a hosted vector index so lyrics
// become searchable. The service embeds raw text server-side.
type IndexClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewIndexClient(baseURL, token string, timeout time.Duration) *IndexClient {
	return &IndexClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

type indexRecord struct {
	ID       string         `json:"id"`
	Data     string         `json:"data"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Upsert stores the transcription under the job id. Jobs with no
// transcription are skipped without error.
func (c *IndexClient) Upsert(ctx context.Context, summary Summary) error {
	if summary.Transcription == "" {
		return nil
	}
	record := indexRecord{
		ID:   summary.JobID,
		Data: summary.Transcription,
		Metadata: map[string]any{
			"hls_url":  summary.PlaybackURL,
			"language": summary.Language,
		},
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return services.Wrap(services.ErrReconciliation, "reconcile", "index", "encode record", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upsert-data", bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrReconciliation, "reconcile", "index", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrReconciliation, "reconcile", "index", "upsert caption text", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.Wrap(services.ErrReconciliation, "reconcile", "index",
			fmt.Sprintf("index endpoint returned %d", resp.StatusCode), nil)
	}
	return nil
}
