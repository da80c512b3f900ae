package config

const (
	defaultStagingDir     = "~/.local/share/chorus/staging"
	defaultLogDir         = "~/.local/share/chorus/logs"
	defaultRegion         = "ap-south-1"
	defaultMaxFileSizeMB  = 500
	defaultMaxDurationSec = 3600
	defaultSegmentSeconds = 6
	defaultCodec          = "mp4a.40.2"
	defaultSpeechEngine   = "local"
	defaultSpeechModel    = "medium"
	defaultSpeechBinary   = "whisper-ctranslate2"
	defaultSpeechTimeout  = 300
	defaultBatchSize      = 1
	defaultWaitTime       = 20
	defaultVisibility     = 1800
	defaultConcurrency    = 1
	defaultErrorRetry     = 5
	defaultRetryPolicy    = RetryPolicyRedeliver
	defaultRequeueDelay   = 60
	defaultReconcileTime  = 30
	defaultNtfyTimeout    = 10
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
)

// Speech engine names accepted by speech.engine.
const (
	SpeechEngineLocal  = "local"
	SpeechEngineRemote = "remote"
)

// Retry policy names accepted by workflow.retry_policy.
const (
	// RetryPolicyRedeliver leaves a retryable message unacknowledged so the
	// queue redelivers it after the visibility window.
	RetryPolicyRedeliver = "redeliver"
	// RetryPolicyRequeue sends a delayed copy of the message and deletes the
	// original.
	RetryPolicyRequeue = "requeue"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		AWS: AWS{
			Region: defaultRegion,
		},
		Limits: Limits{
			MaxFileSizeMB:      defaultMaxFileSizeMB,
			MaxDurationSeconds: defaultMaxDurationSec,
		},
		HLS: HLS{
			SegmentSeconds: defaultSegmentSeconds,
			Codec:          defaultCodec,
			Profiles: []BitrateProfile{
				{Label: "64k", Bandwidth: 64000},
				{Label: "128k", Bandwidth: 128000},
				{Label: "256k", Bandwidth: 256000},
			},
		},
		Speech: Speech{
			Engine:                defaultSpeechEngine,
			Model:                 defaultSpeechModel,
			Binary:                defaultSpeechBinary,
			RequestTimeoutSeconds: defaultSpeechTimeout,
		},
		Reconcile: Reconcile{
			DeleteSource:   true,
			TimeoutSeconds: defaultReconcileTime,
		},
		Workflow: Workflow{
			BatchSize:                 defaultBatchSize,
			WaitTimeSeconds:           defaultWaitTime,
			VisibilityTimeoutSeconds:  defaultVisibility,
			MaxConcurrentJobs:         defaultConcurrency,
			ErrorRetryIntervalSeconds: defaultErrorRetry,
			RetryPolicy:               defaultRetryPolicy,
			RequeueDelaySeconds:       defaultRequeueDelay,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		AudioExtensions: []string{".mp3", ".wav", ".aac", ".m4a", ".flac", ".ogg", ".opus"},
	}
}
