package events

import (
	"encoding/json"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"chorus/internal/logging"
	"chorus/internal/services"
)

// testEventMarker identifies the synthetic notification S3 emits when a
// bucket's event configuration is created.
const testEventMarker = "s3:TestEvent"

// WorkItem is one actionable unit of work decoded from a queue message.
// A single message can carry multiple object records, so a message may yield
// zero, one, or many WorkItems.
type WorkItem struct {
	SourceBucket string
	// ObjectKey is percent-decoded ("+" treated as space, matching the
	// encoding S3 applies to event notification keys).
	ObjectKey string
	RawKey    string
}

type notification struct {
	Event   string   `json:"Event"`
	Records []record `json:"Records"`
}

type record struct {
	S3 struct {
		Bucket struct {
			Name string `json:"name"`
		} `json:"bucket"`
		Object struct {
			Key string `json:"key"`
		} `json:"object"`
	} `json:"s3"`
}

// Decoder parses raw S3 event notification bodies into WorkItems.
type Decoder struct {
	allowed map[string]struct{}
	logger  *slog.Logger
}

// NewDecoder builds a decoder filtering on the given audio extension
// allow-list (lower-case, dot-prefixed).
func NewDecoder(extensions []string, logger *slog.Logger) *Decoder {
	allowed := make(map[string]struct{}, len(extensions))
	for _, ext := range extensions {
		allowed[strings.ToLower(ext)] = struct{}{}
	}
	return &Decoder{allowed: allowed, logger: logging.NewComponentLogger(logger, "decoder")}
}

// Decode parses a message body. A nil error with zero items means the
// message carries nothing actionable and should be acknowledged. A non-nil
// error is always tagged ErrInputRejected: un-parseable input must not be
// retried indefinitely, so it too is acknowledgeable.
func (d *Decoder) Decode(body string) ([]WorkItem, error) {
	var n notification
	if err := json.Unmarshal([]byte(body), &n); err != nil {
		return nil, services.Wrap(services.ErrInputRejected, "decode", "parse", "malformed notification body", err)
	}

	if n.Event == testEventMarker {
		d.logger.Info("ignoring S3 test event", logging.String(logging.FieldEventType, "test_event_skipped"))
		return nil, nil
	}
	if len(n.Records) == 0 {
		d.logger.Warn("notification carries no records",
			logging.String(logging.FieldEventType, "empty_notification"))
		return nil, nil
	}

	items := make([]WorkItem, 0, len(n.Records))
	for _, rec := range n.Records {
		rawKey := rec.S3.Object.Key
		if rawKey == "" {
			d.logger.Warn("record missing object key, skipping",
				logging.String(logging.FieldEventType, "record_skipped"))
			continue
		}
		decoded, err := url.QueryUnescape(rawKey)
		if err != nil {
			d.logger.Warn("object key has invalid percent encoding, skipping",
				logging.String(logging.FieldObjectKey, rawKey),
				logging.Error(err),
				logging.String(logging.FieldEventType, "record_skipped"))
			continue
		}
		if !d.isAudioKey(decoded) {
			d.logger.Info("skipping non-audio object",
				logging.String(logging.FieldObjectKey, decoded),
				logging.String(logging.FieldEventType, "non_audio_skipped"))
			continue
		}
		items = append(items, WorkItem{
			SourceBucket: rec.S3.Bucket.Name,
			ObjectKey:    decoded,
			RawKey:       rawKey,
		})
	}
	return items, nil
}

func (d *Decoder) isAudioKey(key string) bool {
	ext := strings.ToLower(filepath.Ext(key))
	_, ok := d.allowed[ext]
	return ok
}
