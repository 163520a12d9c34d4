package config

const (
	defaultAudioDir           = "~/.local/share/podbay/audio"
	defaultCaptionDir         = "~/.local/share/podbay/captions"
	defaultStagingDir         = "~/.local/share/podbay/staging"
	defaultModelDir           = "~/.local/share/podbay/models"
	defaultLogDir             = "~/.local/share/podbay/logs"
	defaultDatabase           = "~/.local/share/podbay/metadata.db"
	defaultDownloadTimeout    = 3600
	defaultProgressIntervalMS = 300
	defaultUserAgent          = "podbay/0.1"
	defaultMinFreeSpaceMiB    = 256
	defaultWorkers            = 1
	defaultTranscribeBinary   = "whisper-cli"
	defaultModelBaseURL       = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main"
	defaultLanguage           = "en"
	defaultTranscribeTimeout  = 7200
	defaultReconcileSchedule  = "@every 15m"
	defaultStagingMaxAgeHours = 24
	defaultNtfyTimeout        = 10
	defaultLogFormat          = "auto"
	defaultLogLevel           = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			AudioDir:   defaultAudioDir,
			CaptionDir: defaultCaptionDir,
			StagingDir: defaultStagingDir,
			ModelDir:   defaultModelDir,
			LogDir:     defaultLogDir,
			Database:   defaultDatabase,
		},
		Downloads: Downloads{
			TimeoutSeconds:     defaultDownloadTimeout,
			ProgressIntervalMS: defaultProgressIntervalMS,
			UserAgent:          defaultUserAgent,
			MinFreeSpaceMiB:    defaultMinFreeSpaceMiB,
		},
		Transcription: Transcription{
			Workers:         defaultWorkers,
			Binary:          defaultTranscribeBinary,
			ModelBaseURL:    defaultModelBaseURL,
			DefaultLanguage: defaultLanguage,
			TimeoutSeconds:  defaultTranscribeTimeout,
		},
		Reconcile: Reconcile{
			Schedule:        defaultReconcileSchedule,
			StagingMaxAgeHr: defaultStagingMaxAgeHours,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
			Downloads:      true,
			Transcripts:    true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
