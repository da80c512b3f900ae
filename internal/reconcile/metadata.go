package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"chorus/internal/services"
)

// MetadataClient patches the catalog row for a processed track through a
// PostgREST-style endpoint.
type MetadataClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewMetadataClient(baseURL, apiKey string, timeout time.Duration) *MetadataClient {
	return &MetadataClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type metadataPatch struct {
	Status          string   `json:"status"`
	PlaybackURL     string   `json:"hls_url"`
	Transcription   string   `json:"transcription,omitempty"`
	Language        string   `json:"language,omitempty"`
	DurationSeconds *float64 `json:"duration,omitempty"`
}

type metadataFailurePatch struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

// failureDetailLimit caps the error text stored in the catalog row.
const failureDetailLimit = 100

// Update marks the row whose processing id matches the job as processed
// and records the playback URL plus transcription details.
func (c *MetadataClient) Update(ctx context.Context, summary Summary) error {
	patch := metadataPatch{
		Status:        "processed",
		PlaybackURL:   summary.PlaybackURL,
		Transcription: summary.Transcription,
		Language:      summary.Language,
	}
	if summary.DurationKnown {
		duration := summary.DurationSeconds
		patch.DurationSeconds = &duration
	}
	return c.patchRow(ctx, summary.JobID, patch)
}

// UpdateFailure marks the row as failed and records a truncated error
// summary so the catalog reflects jobs that never produced output.
func (c *MetadataClient) UpdateFailure(ctx context.Context, jobID, detail string) error {
	if len(detail) > failureDetailLimit {
		detail = detail[:failureDetailLimit]
	}
	return c.patchRow(ctx, jobID, metadataFailurePatch{Status: "failed", Error: detail})
}

func (c *MetadataClient) patchRow(ctx context.Context, jobID string, patch any) error {
	payload, err := json.Marshal(patch)
	if err != nil {
		return services.Wrap(services.ErrReconciliation, "reconcile", "metadata", "encode patch", err)
	}

	endpoint := fmt.Sprintf("%s/rest/v1/songs?processing_id=eq.%s", c.baseURL, url.QueryEscape(jobID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(payload))
	if err != nil {
		return services.Wrap(services.ErrReconciliation, "reconcile", "metadata", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrReconciliation, "reconcile", "metadata", "patch catalog row", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return services.Wrap(services.ErrReconciliation, "reconcile", "metadata",
			fmt.Sprintf("catalog endpoint returned %d", resp.StatusCode), nil)
	}
	return nil
}
