package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateAWS(); err != nil {
		return err
	}
	if err := c.validateLimits(); err != nil {
		return err
	}
	if err := c.validateHLS(); err != nil {
		return err
	}
	if err := c.validateSpeech(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAWS() error {
	if c.AWS.QueueURL == "" {
		return errors.New("aws.queue_url is required. Set SQS_URL env var or edit the config file (create with 'chorus config init')")
	}
	if c.AWS.SourceBucket == "" {
		return errors.New("aws.source_bucket is required. Set TEMP_BUCKET_NAME env var or edit the config file")
	}
	if c.AWS.DestinationBucket == "" {
		return errors.New("aws.destination_bucket is required. Set PRODUCTION_BUCKET_NAME env var or edit the config file")
	}
	if c.AWS.SourceBucket == c.AWS.DestinationBucket {
		return errors.New("aws.source_bucket and aws.destination_bucket must differ")
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Limits.MaxFileSizeMB <= 0 {
		return errors.New("limits.max_file_size_mb must be positive")
	}
	if c.Limits.MaxDurationSeconds <= 0 {
		return errors.New("limits.max_duration_seconds must be positive")
	}
	return nil
}

func (c *Config) validateHLS() error {
	if c.HLS.SegmentSeconds <= 0 {
		return errors.New("hls.segment_seconds must be positive")
	}
	if len(c.HLS.Profiles) == 0 {
		return errors.New("hls.profiles must list at least one bitrate profile")
	}
	seen := make(map[string]struct{}, len(c.HLS.Profiles))
	lastBandwidth := 0
	for i, profile := range c.HLS.Profiles {
		label := strings.TrimSpace(profile.Label)
		if label == "" {
			return fmt.Errorf("hls.profiles[%d].label must be set", i)
		}
		if strings.ContainsAny(label, "/\\") {
			return fmt.Errorf("hls.profiles[%d].label %q may not contain path separators", i, label)
		}
		if profile.Bandwidth <= 0 {
			return fmt.Errorf("hls.profiles[%d].bandwidth must be positive", i)
		}
		if profile.Bandwidth <= lastBandwidth {
			return errors.New("hls.profiles must be listed in ascending bandwidth order")
		}
		lastBandwidth = profile.Bandwidth
		if _, dup := seen[label]; dup {
			return fmt.Errorf("hls.profiles contains duplicate label %q", label)
		}
		seen[label] = struct{}{}
	}
	return nil
}

func (c *Config) validateSpeech() error {
	switch c.Speech.Engine {
	case SpeechEngineLocal:
		if strings.TrimSpace(c.Speech.Binary) == "" {
			return errors.New("speech.binary must be set when speech.engine is \"local\"")
		}
	case SpeechEngineRemote:
		if strings.TrimSpace(c.Speech.APIURL) == "" {
			return errors.New("speech.api_url must be set when speech.engine is \"remote\"")
		}
		if strings.TrimSpace(c.Speech.APIKey) == "" {
			return errors.New("speech.api_key must be set when speech.engine is \"remote\" (CHORUS_SPEECH_API_KEY env var)")
		}
	default:
		return fmt.Errorf("speech.engine must be \"local\" or \"remote\", got %q", c.Speech.Engine)
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.BatchSize < 1 || c.Workflow.BatchSize > 10 {
		return errors.New("workflow.batch_size must be between 1 and 10")
	}
	if c.Workflow.WaitTimeSeconds < 0 || c.Workflow.WaitTimeSeconds > 20 {
		return errors.New("workflow.wait_time_seconds must be between 0 and 20")
	}
	if c.Workflow.VisibilityTimeoutSeconds <= 0 {
		return errors.New("workflow.visibility_timeout_seconds must be positive")
	}
	switch c.Workflow.RetryPolicy {
	case RetryPolicyRedeliver, RetryPolicyRequeue:
	default:
		return fmt.Errorf("workflow.retry_policy must be %q or %q, got %q",
			RetryPolicyRedeliver, RetryPolicyRequeue, c.Workflow.RetryPolicy)
	}
	if c.Workflow.RetryPolicy == RetryPolicyRequeue && c.Workflow.RequeueDelaySeconds <= 0 {
		return errors.New("workflow.requeue_delay_seconds must be positive when retry_policy is \"requeue\"")
	}
	return nil
}
