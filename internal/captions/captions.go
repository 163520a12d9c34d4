// Package captions models transcription output and renders it to the two
// on-disk artifacts: an SRT caption file and a word-timing JSON sidecar.
package captions

import (
	"encoding/json"
	"fmt"
	"os"
)

// Word is a single recognized word with its absolute timing in seconds.
type Word struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Segment is one caption cue: a span of speech rendered as a single SRT
// block, optionally carrying per-word timings.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
	Words []Word  `json:"words,omitempty"`
}

// Transcript is a full transcription result for one episode.
type Transcript struct {
	Language string    `json:"language,omitempty"`
	Segments []Segment `json:"segments"`
}

// Words flattens the per-segment word timings into one slice, preserving
// order. Segments without word timings contribute nothing.
func (t *Transcript) Words() []Word {
	var words []Word
	for _, seg := range t.Segments {
		words = append(words, seg.Words...)
	}
	return words
}

// sidecar is the schema of the word-timing JSON file written next to the SRT.
type sidecar struct {
	Language string `json:"language,omitempty"`
	Words    []Word `json:"words"`
}

// WriteSidecar writes the word-timing JSON sidecar to path. Written even
// when no word timings exist so consumers can rely on the file's presence.
func (t *Transcript) WriteSidecar(path string) error {
	words := t.Words()
	if words == nil {
		words = []Word{}
	}
	data, err := json.MarshalIndent(sidecar{Language: t.Language, Words: words}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal word timings: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write word timings: %w", err)
	}
	return nil
}

// ReadSidecar loads a word-timing sidecar back into memory.
func ReadSidecar(path string) (string, []Word, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read word timings: %w", err)
	}
	var sc sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return "", nil, fmt.Errorf("parse word timings: %w", err)
	}
	return sc.Language, sc.Words, nil
}
