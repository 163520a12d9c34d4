package transcription

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"podbay/internal/captions"
	"podbay/internal/config"
	"podbay/internal/fileutil"
	"podbay/internal/logging"
)

// modelFileName is the whisper.cpp model podbay provisions. One model serves
// all languages; per-language models would change this to a lookup.
const modelFileName = "ggml-base.bin"

// CLIEngine drives an external whisper-style binary and provisions its model
// file over HTTP on first use.
type CLIEngine struct {
	binary   string
	modelURL string
	modelDir string
	logger   *slog.Logger
	client   *http.Client
}

// NewCLIEngine builds the shipped engine from config. The binary is resolved
// via PATH at run time so a later install is picked up without a restart.
func NewCLIEngine(cfg *config.Config, modelDir string, logger *slog.Logger) *CLIEngine {
	return &CLIEngine{
		binary:   cfg.Transcription.Binary,
		modelURL: strings.TrimRight(cfg.Transcription.ModelBaseURL, "/") + "/" + modelFileName,
		modelDir: modelDir,
		logger:   logging.NewComponentLogger(logger, "whisper"),
		client:   &http.Client{},
	}
}

func (e *CLIEngine) modelPath() string {
	return filepath.Join(e.modelDir, modelFileName)
}

// ModelReady reports whether the model file exists on disk. Checked fresh
// every time; a deleted model triggers re-provisioning.
func (e *CLIEngine) ModelReady(_ context.Context) (bool, error) {
	return fileutil.FileExists(e.modelPath()), nil
}

// ProvisionModel downloads the model into the model directory through a
// temp file so a crashed download never looks like a usable model.
func (e *CLIEngine) ProvisionModel(ctx context.Context, progress func(float64)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.modelURL, nil)
	if err != nil {
		return fmt.Errorf("build model request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch model: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model server returned %s", resp.Status)
	}

	tmp := e.modelPath() + ".partial"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create model temp file: %w", err)
	}

	var written int64
	buf := make([]byte, 256*1024)
	for {
		if err := ctx.Err(); err != nil {
			_ = out.Close()
			_ = os.Remove(tmp)
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				_ = out.Close()
				_ = os.Remove(tmp)
				return fmt.Errorf("write model: %w", werr)
			}
			written += int64(n)
			if progress != nil && resp.ContentLength > 0 {
				progress(float64(written) / float64(resp.ContentLength))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			_ = out.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("stream model: %w", readErr)
		}
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close model temp file: %w", err)
	}
	if err := os.Rename(tmp, e.modelPath()); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("finalize model: %w", err)
	}
	e.logger.Info("model provisioned",
		logging.String("path", e.modelPath()),
		logging.Int64("bytes", written))
	return nil
}

// cliWord/cliSegment/cliPayload mirror the JSON the external binary emits.
type cliWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type cliSegment struct {
	Text  string    `json:"text"`
	Start float64   `json:"start"`
	End   float64   `json:"end"`
	Words []cliWord `json:"words"`
}

type cliPayload struct {
	Language string       `json:"language"`
	Segments []cliSegment `json:"segments"`
}

// Transcribe shells out to the external binary, which writes a JSON result
// file, and converts it into a transcript. Progress is coarse: the external
// tool reports none, so the callback fires only at start and end.
func (e *CLIEngine) Transcribe(ctx context.Context, audioPath, language string, progress func(float64)) (*captions.Transcript, error) {
	if _, err := exec.LookPath(e.binary); err != nil {
		return nil, fmt.Errorf("transcription binary %q not found: %w", e.binary, err)
	}

	outDir, err := os.MkdirTemp("", "podbay-transcribe-")
	if err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(outDir) }()
	outJSON := filepath.Join(outDir, "result.json")

	args := []string{
		"--model", e.modelPath(),
		"--input", audioPath,
		"--output", outJSON,
	}
	if trimmed := strings.TrimSpace(language); trimmed != "" {
		args = append(args, "--language", trimmed)
	}

	if progress != nil {
		progress(0)
	}
	start := time.Now()
	cmd := exec.CommandContext(ctx, e.binary, args...)
	var stderr strings.Builder
	cmd.Stdout = io.Discard
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return nil, fmt.Errorf("%s failed: %w: %s", e.binary, err, detail)
		}
		return nil, fmt.Errorf("%s failed: %w", e.binary, err)
	}

	data, err := os.ReadFile(outJSON)
	if err != nil {
		return nil, fmt.Errorf("read transcription output: %w", err)
	}
	var payload cliPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse transcription output: %w", err)
	}

	transcript := &captions.Transcript{Language: payload.Language}
	if transcript.Language == "" {
		transcript.Language = language
	}
	for _, seg := range payload.Segments {
		out := captions.Segment{Start: seg.Start, End: seg.End, Text: strings.TrimSpace(seg.Text)}
		for _, w := range seg.Words {
			out.Words = append(out.Words, captions.Word{Text: w.Word, Start: w.Start, End: w.End})
		}
		transcript.Segments = append(transcript.Segments, out)
	}
	if progress != nil {
		progress(1)
	}
	e.logger.Info("transcription finished",
		logging.String("audio", audioPath),
		logging.Int("segments", len(transcript.Segments)),
		logging.Duration("elapsed", time.Since(start)))
	return transcript, nil
}
