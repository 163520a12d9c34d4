package logging_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"podbay/internal/logging"
)

func TestNewJSONLoggerOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("episode downloaded", logging.String("podcast", "P1"))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if record["msg"] != "episode downloaded" {
		t.Fatalf("msg = %v", record["msg"])
	}
	if record["podcast"] != "P1" {
		t.Fatalf("podcast = %v", record["podcast"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatal("expected ts field")
	}
}

func TestConsoleHandlerFoldsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "debug", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	component := logging.NewComponentLogger(logger, "downloads")
	component.Info("download started", logging.Float64("progress", 0.25))

	line := buf.String()
	if !strings.Contains(line, "downloads: download started") {
		t.Fatalf("expected component prefix, got %q", line)
	}
	if !strings.Contains(line, "progress=0.25") {
		t.Fatalf("expected attr rendering, got %q", line)
	}
	if strings.Contains(line, "component=") {
		t.Fatalf("component should be folded into prefix, got %q", line)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New(logging.Options{Level: "warn", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("ignored")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "ignored") {
		t.Fatal("info line should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "kept") {
		t.Fatal("warn line missing")
	}
}

func TestNopLogger(t *testing.T) {
	logger := logging.NewNop()
	if logger.Enabled(nil, slog.LevelError) {
		t.Fatal("nop logger must report disabled")
	}
}
