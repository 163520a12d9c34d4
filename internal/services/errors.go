// Package services defines the shared failure taxonomy and context plumbing
// used by the coordinators. Every terminal job failure is tagged with one of
// the sentinel markers so observers and the CLI can classify it without
// string matching.
package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNetwork marks failures of the byte-stream transfer layer.
	ErrNetwork = errors.New("network failure")
	// ErrProvisioning marks failures while fetching or installing a speech model.
	ErrProvisioning = errors.New("model provisioning failure")
	// ErrTranscription marks failures of the speech-to-text engine itself.
	ErrTranscription = errors.New("transcription failure")
	// ErrFilesystem marks permission, space, or IO failures on local storage.
	ErrFilesystem = errors.New("filesystem failure")
	// ErrStateConflict marks duplicate or ambiguous identity conditions.
	ErrStateConflict = errors.New("state conflict")
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrFilesystem
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Reason extracts the human-readable reason surfaced in a job's Failed state.
// It strips nothing: the full wrapped message is what the UI shows next to a
// retry affordance.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
