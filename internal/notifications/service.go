package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"chorus/internal/config"
)

const userAgent = "Chorus-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyJobCompleted(ctx context.Context, jobID string, duration time.Duration) error
	NotifyJobDiscarded(ctx context.Context, jobID, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	NotifyWorkerStarted(ctx context.Context, queueURL string) error
	NotifyWorkerStopped(ctx context.Context, processed, failed int, uptime time.Duration) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyJobCompleted(ctx context.Context, jobID string, duration time.Duration) error {
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	data := payload{
		title:   "Chorus - Job Complete",
		message: fmt.Sprintf("Stream published: %s in %s", strings.TrimSpace(jobID), duration),
		tags:    []string{"chorus", "job", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyJobDiscarded(ctx context.Context, jobID, reason string) error {
	jobID = strings.TrimSpace(jobID)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Chorus - Job Discarded",
		message:  fmt.Sprintf("Job %s discarded: %s\nManual review required", jobID, reason),
		tags:     []string{"chorus", "job", "discarded"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Chorus - Error",
		message:  builder.String(),
		tags:     []string{"chorus", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWorkerStarted(ctx context.Context, queueURL string) error {
	data := payload{
		title:   "Chorus - Worker Started",
		message: fmt.Sprintf("Polling %s", strings.TrimSpace(queueURL)),
		tags:    []string{"chorus", "worker", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyWorkerStopped(ctx context.Context, processed, failed int, uptime time.Duration) error {
	uptime = uptime.Round(time.Second)
	if uptime < 0 {
		uptime = 0
	}

	var title, message string
	if failed == 0 {
		title = "Chorus - Worker Stopped"
		message = fmt.Sprintf("Worker stopped: %d jobs processed in %s", processed, uptime)
	} else {
		title = "Chorus - Worker Stopped (with errors)"
		message = fmt.Sprintf("Worker stopped: %d succeeded, %d failed in %s", processed, failed, uptime)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"chorus", "worker", "stopped"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Chorus - Test",
		message:  "Notification system test",
		tags:     []string{"chorus", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyJobCompleted(context.Context, string, time.Duration) error    { return nil }
func (noopService) NotifyJobDiscarded(context.Context, string, string) error           { return nil }
func (noopService) NotifyError(context.Context, error, string) error                   { return nil }
func (noopService) NotifyWorkerStarted(context.Context, string) error                  { return nil }
func (noopService) NotifyWorkerStopped(context.Context, int, int, time.Duration) error { return nil }
func (noopService) TestNotification(context.Context) error                             { return nil }
