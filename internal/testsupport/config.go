// Package testsupport provides shared builders for package tests: a config
// seeded with per-test temp directories and an opened metadata store.
package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"podbay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// Directories are created eagerly so tests can write artifacts immediately.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.AudioDir = filepath.Join(base, "audio")
	cfg.Paths.CaptionDir = filepath.Join(base, "captions")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.ModelDir = filepath.Join(base, "models")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.Database = filepath.Join(base, "metadata.db")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return &cfg
}

// WithWorkers overrides the transcription worker bound on the test config.
func WithWorkers(n int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Transcription.Workers = n
	}
}

// WithStubbedBinary writes a stub executable with the given name and script
// body, prepends its directory to PATH, and restores PATH on cleanup.
func WithStubbedBinary(t testing.TB, name, script string) ConfigOption {
	return func(cfg *config.Config) {
		t.Helper()
		binDir := filepath.Join(filepath.Dir(cfg.Paths.AudioDir), "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			t.Fatalf("mkdir bin dir: %v", err)
		}
		target := filepath.Join(binDir, name)
		if err := os.WriteFile(target, []byte(script), 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			t.Fatalf("set PATH: %v", err)
		}
		t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}
