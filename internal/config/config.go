package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// AWS contains queue and object store configuration. Credentials ride the
// SDK default chain (env, shared config, instance role) and are never stored
// in the config file.
type AWS struct {
	Region            string `toml:"region"`
	QueueURL          string `toml:"queue_url"`
	SourceBucket      string `toml:"source_bucket"`
	DestinationBucket string `toml:"destination_bucket"`
	// Endpoint overrides the S3 endpoint for S3-compatible stores
	// (MinIO, RustFS). Empty means the real AWS endpoint.
	Endpoint     string `toml:"endpoint"`
	UsePathStyle bool   `toml:"use_path_style"`
	// CDNDomain, when set, becomes the host of published stream URLs.
	CDNDomain string `toml:"cdn_domain"`
}

// Limits contains admission limits applied after download.
type Limits struct {
	MaxFileSizeMB      int64 `toml:"max_file_size_mb"`
	MaxDurationSeconds int   `toml:"max_duration_seconds"`
}

// BitrateProfile describes one HLS rendition.
type BitrateProfile struct {
	Label     string `toml:"label"`
	Bandwidth int    `toml:"bandwidth"`
}

// HLS contains transcode and playlist settings.
type HLS struct {
	SegmentSeconds int              `toml:"segment_seconds"`
	Codec          string           `toml:"codec"`
	Profiles       []BitrateProfile `toml:"profiles"`
}

// Speech contains transcription engine settings.
type Speech struct {
	// Engine selects the transcription backend: "remote" (HTTP inference
	// API) or "local" (whisper CLI on this host).
	Engine                string `toml:"engine"`
	Model                 string `toml:"model"`
	Binary                string `toml:"binary"`
	APIURL                string `toml:"api_url"`
	APIKey                string `toml:"api_key"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Reconcile contains advisory side-effect settings applied after publish.
type Reconcile struct {
	MetadataURL string `toml:"metadata_url"`
	MetadataKey string `toml:"metadata_key"`
	IndexURL    string `toml:"index_url"`
	IndexToken  string `toml:"index_token"`
	// DeleteSource removes the staging object after a successful publish.
	DeleteSource   bool `toml:"delete_source"`
	TimeoutSeconds int  `toml:"timeout_seconds"`
}

// Workflow contains poll loop and delivery policy settings.
type Workflow struct {
	BatchSize                 int    `toml:"batch_size"`
	WaitTimeSeconds           int    `toml:"wait_time_seconds"`
	VisibilityTimeoutSeconds  int    `toml:"visibility_timeout_seconds"`
	MaxConcurrentJobs         int    `toml:"max_concurrent_jobs"`
	ErrorRetryIntervalSeconds int    `toml:"error_retry_interval_seconds"`
	RetryPolicy               string `toml:"retry_policy"`
	RequeueDelaySeconds       int    `toml:"requeue_delay_seconds"`
	// EarlyAck deletes the inbound message right after a successful fetch.
	// A crash later in the pipeline then loses the job instead of retrying
	// it. Deliberate opt-in, never the default.
	EarlyAck bool `toml:"early_ack"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the worker.
type Config struct {
	Paths         Paths         `toml:"paths"`
	AWS           AWS           `toml:"aws"`
	Limits        Limits        `toml:"limits"`
	HLS           HLS           `toml:"hls"`
	Speech        Speech        `toml:"speech"`
	Reconcile     Reconcile     `toml:"reconcile"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`

	// AudioExtensions is the lower-cased extension allow-list applied by the
	// notification decoder.
	AudioExtensions []string `toml:"audio_extensions"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/chorus/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		switch {
		case err == nil:
			return expanded, true, nil
		case errors.Is(err, fs.ErrNotExist):
			return expanded, false, nil
		default:
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	_, err = os.Stat(defaultPath)
	switch {
	case err == nil:
		return defaultPath, true, nil
	case errors.Is(err, fs.ErrNotExist):
		return defaultPath, false, nil
	default:
		return "", false, fmt.Errorf("stat config: %w", err)
	}
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if trimmed == "~" {
			return home, nil
		}
		trimmed = filepath.Join(home, trimmed[2:])
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve path %q: %w", path, err)
	}
	return abs, nil
}
