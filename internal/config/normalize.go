package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAWS()
	c.normalizeSpeech()
	c.normalizeReconcile()
	c.normalizeWorkflow()
	c.normalizeLogging()
	c.normalizeExtensions()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAWS() {
	c.AWS.QueueURL = strings.TrimSpace(c.AWS.QueueURL)
	if c.AWS.QueueURL == "" {
		if value, ok := os.LookupEnv("SQS_URL"); ok {
			c.AWS.QueueURL = strings.TrimSpace(value)
		}
	}
	if c.AWS.SourceBucket == "" {
		if value, ok := os.LookupEnv("TEMP_BUCKET_NAME"); ok {
			c.AWS.SourceBucket = strings.TrimSpace(value)
		}
	}
	if c.AWS.DestinationBucket == "" {
		if value, ok := os.LookupEnv("PRODUCTION_BUCKET_NAME"); ok {
			c.AWS.DestinationBucket = strings.TrimSpace(value)
		}
	}
	if region, ok := os.LookupEnv("AWS_REGION"); ok && strings.TrimSpace(region) != "" {
		c.AWS.Region = strings.TrimSpace(region)
	}
	if c.AWS.Region == "" {
		c.AWS.Region = defaultRegion
	}
	c.AWS.CDNDomain = strings.TrimPrefix(strings.TrimSpace(c.AWS.CDNDomain), "https://")
}

func (c *Config) normalizeSpeech() {
	c.Speech.Engine = strings.ToLower(strings.TrimSpace(c.Speech.Engine))
	if c.Speech.Engine == "" {
		c.Speech.Engine = defaultSpeechEngine
	}
	if c.Speech.APIKey == "" {
		if value, ok := os.LookupEnv("CHORUS_SPEECH_API_KEY"); ok {
			c.Speech.APIKey = value
		}
	}
	if c.Speech.RequestTimeoutSeconds <= 0 {
		c.Speech.RequestTimeoutSeconds = defaultSpeechTimeout
	}
}

func (c *Config) normalizeReconcile() {
	if c.Reconcile.MetadataKey == "" {
		if value, ok := os.LookupEnv("CHORUS_METADATA_KEY"); ok {
			c.Reconcile.MetadataKey = value
		}
	}
	if c.Reconcile.IndexToken == "" {
		if value, ok := os.LookupEnv("CHORUS_INDEX_TOKEN"); ok {
			c.Reconcile.IndexToken = value
		}
	}
	if c.Reconcile.TimeoutSeconds <= 0 {
		c.Reconcile.TimeoutSeconds = defaultReconcileTime
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.RetryPolicy = strings.ToLower(strings.TrimSpace(c.Workflow.RetryPolicy))
	if c.Workflow.RetryPolicy == "" {
		c.Workflow.RetryPolicy = defaultRetryPolicy
	}
	if c.Workflow.BatchSize <= 0 {
		c.Workflow.BatchSize = defaultBatchSize
	}
	if c.Workflow.MaxConcurrentJobs <= 0 {
		c.Workflow.MaxConcurrentJobs = defaultConcurrency
	}
	if c.Workflow.ErrorRetryIntervalSeconds <= 0 {
		c.Workflow.ErrorRetryIntervalSeconds = defaultErrorRetry
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeExtensions() {
	if len(c.AudioExtensions) == 0 {
		c.AudioExtensions = Default().AudioExtensions
		return
	}
	normalized := make([]string, 0, len(c.AudioExtensions))
	for _, ext := range c.AudioExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		normalized = append(normalized, ext)
	}
	c.AudioExtensions = normalized
}
