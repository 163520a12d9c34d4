// Package assetstore owns the on-disk locations of downloaded audio and
// generated captions. It answers existence queries independently of the
// metadata database, which makes it the ground truth the reconciliation
// sweep repairs against. All writes stage into a scratch directory and
// promote with an atomic rename so readers never observe partial files.
package assetstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"podbay/internal/config"
	"podbay/internal/fileutil"
	"podbay/internal/services"
)

// AudioExtensions lists the audio file extensions probed for an episode, in
// preference order. Keep ".mp3" first: it is the fallback for URLs with an
// unrecognized extension.
var AudioExtensions = []string{".mp3", ".m4a", ".aac", ".ogg", ".opus", ".wav", ".flac"}

const (
	captionExtension = ".srt"
	sidecarSuffix    = ".words.json"
)

// Store resolves artifact paths under the configured directories.
type Store struct {
	audioDir   string
	captionDir string
	stagingDir string
	modelDir   string
}

// New builds a Store from configuration. Directories are created lazily by
// config.EnsureDirectories; the store itself never creates them.
func New(cfg *config.Config) *Store {
	return &Store{
		audioDir:   cfg.Paths.AudioDir,
		captionDir: cfg.Paths.CaptionDir,
		stagingDir: cfg.Paths.StagingDir,
		modelDir:   cfg.Paths.ModelDir,
	}
}

// AudioDir returns the directory holding finished audio files.
func (s *Store) AudioDir() string { return s.audioDir }

// StagingDir returns the scratch directory for in-flight writes.
func (s *Store) StagingDir() string { return s.stagingDir }

// ModelDir returns the directory holding provisioned speech models.
func (s *Store) ModelDir() string { return s.modelDir }

// AudioPath returns the destination path for an episode's audio with the
// given extension (normalized through NormalizeAudioExtension).
func (s *Store) AudioPath(base, ext string) string {
	return filepath.Join(s.audioDir, base+NormalizeAudioExtension(ext))
}

// CaptionPath returns the destination path for an episode's SRT transcript.
func (s *Store) CaptionPath(base string) string {
	return filepath.Join(s.captionDir, base+captionExtension)
}

// SidecarPath returns the destination path for an episode's word-timing JSON.
func (s *Store) SidecarPath(base string) string {
	return filepath.Join(s.captionDir, base+sidecarSuffix)
}

// ProbeAudio reports the existing audio file for a base name, checking every
// supported extension. Returns "" when none exists. This deliberately never
// consults the metadata store.
func (s *Store) ProbeAudio(base string) string {
	for _, ext := range AudioExtensions {
		candidate := filepath.Join(s.audioDir, base+ext)
		if fileutil.FileExists(candidate) {
			return candidate
		}
	}
	return ""
}

// ProbeCaption reports the existing caption file for a base name, or "".
func (s *Store) ProbeCaption(base string) string {
	candidate := s.CaptionPath(base)
	if fileutil.FileExists(candidate) {
		return candidate
	}
	return ""
}

// NewStagingFile returns a unique path in the staging directory for an
// in-flight write. The caller owns cleanup on failure.
func (s *Store) NewStagingFile(label string) string {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "artifact"
	}
	return filepath.Join(s.stagingDir, fmt.Sprintf("%s-%s.partial", label, uuid.NewString()))
}

// Promote atomically moves a fully written staging file to its final
// destination. The destination's parent must already exist.
func (s *Store) Promote(stagingPath, finalPath string) error {
	if err := fileutil.MoveFile(stagingPath, finalPath); err != nil {
		return services.Wrap(services.ErrFilesystem, "assets", "promote", finalPath, err)
	}
	return nil
}

// Discard removes a staging file, tolerating its absence.
func (s *Store) Discard(stagingPath string) {
	if stagingPath == "" {
		return
	}
	_ = os.Remove(stagingPath)
}

// CleanStaleStaging removes staging files older than maxAge and returns the
// removed paths. Interrupted jobs leave partials behind; this is the repair.
func (s *Store) CleanStaleStaging(maxAge time.Duration) ([]string, error) {
	entries, err := os.ReadDir(s.stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrFilesystem, "assets", "clean staging", s.stagingDir, err)
	}

	cutoff := time.Now().Add(-maxAge)
	var removed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.stagingDir, entry.Name())
			if err := os.Remove(path); err == nil {
				removed = append(removed, path)
			}
		}
	}
	return removed, nil
}

// NormalizeAudioExtension maps an arbitrary extension (with or without dot)
// onto a supported one, defaulting to ".mp3".
func NormalizeAudioExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	for _, known := range AudioExtensions {
		if ext == known {
			return ext
		}
	}
	return AudioExtensions[0]
}
