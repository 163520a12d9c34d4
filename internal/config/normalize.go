package config

import (
	"fmt"
	"strings"
)

// normalize expands user paths and fills empty fields from defaults so the
// rest of the code never sees a partially specified config.
func (c *Config) normalize() error {
	defaults := Default()

	pathFields := []struct {
		value    *string
		fallback string
	}{
		{&c.Paths.AudioDir, defaults.Paths.AudioDir},
		{&c.Paths.CaptionDir, defaults.Paths.CaptionDir},
		{&c.Paths.StagingDir, defaults.Paths.StagingDir},
		{&c.Paths.ModelDir, defaults.Paths.ModelDir},
		{&c.Paths.LogDir, defaults.Paths.LogDir},
		{&c.Paths.Database, defaults.Paths.Database},
	}
	for _, field := range pathFields {
		if strings.TrimSpace(*field.value) == "" {
			*field.value = field.fallback
		}
		expanded, err := expandPath(*field.value)
		if err != nil {
			return err
		}
		*field.value = expanded
	}

	if c.Downloads.TimeoutSeconds <= 0 {
		c.Downloads.TimeoutSeconds = defaults.Downloads.TimeoutSeconds
	}
	if c.Downloads.ProgressIntervalMS <= 0 {
		c.Downloads.ProgressIntervalMS = defaults.Downloads.ProgressIntervalMS
	}
	if strings.TrimSpace(c.Downloads.UserAgent) == "" {
		c.Downloads.UserAgent = defaults.Downloads.UserAgent
	}
	if c.Downloads.MinFreeSpaceMiB <= 0 {
		c.Downloads.MinFreeSpaceMiB = defaults.Downloads.MinFreeSpaceMiB
	}

	if c.Transcription.Workers <= 0 {
		c.Transcription.Workers = defaults.Transcription.Workers
	}
	if strings.TrimSpace(c.Transcription.Binary) == "" {
		c.Transcription.Binary = defaults.Transcription.Binary
	}
	if strings.TrimSpace(c.Transcription.ModelBaseURL) == "" {
		c.Transcription.ModelBaseURL = defaults.Transcription.ModelBaseURL
	}
	if strings.TrimSpace(c.Transcription.DefaultLanguage) == "" {
		c.Transcription.DefaultLanguage = defaults.Transcription.DefaultLanguage
	}
	if c.Transcription.TimeoutSeconds <= 0 {
		c.Transcription.TimeoutSeconds = defaults.Transcription.TimeoutSeconds
	}

	if strings.TrimSpace(c.Reconcile.Schedule) == "" {
		c.Reconcile.Schedule = defaults.Reconcile.Schedule
	}
	if c.Reconcile.StagingMaxAgeHr <= 0 {
		c.Reconcile.StagingMaxAgeHr = defaults.Reconcile.StagingMaxAgeHr
	}

	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaults.Notifications.RequestTimeout
	}

	if strings.TrimSpace(c.Logging.Format) == "" {
		c.Logging.Format = defaults.Logging.Format
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = defaults.Logging.Level
	}

	return nil
}

// Validate rejects configurations the coordinators cannot run with.
func (c *Config) Validate() error {
	if c.Paths.AudioDir == c.Paths.StagingDir {
		return fmt.Errorf("config: audio_dir and staging_dir must differ so promotes stay atomic renames into a clean destination")
	}
	if c.Transcription.Workers > 4 {
		return fmt.Errorf("config: transcription workers capped at 4, got %d", c.Transcription.Workers)
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "auto", "console", "json":
	default:
		return fmt.Errorf("config: logging format must be auto, console, or json, got %q", c.Logging.Format)
	}
	return nil
}
