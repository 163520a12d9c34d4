package transcription

import (
	"context"

	"podbay/internal/captions"
)

// Engine abstracts the speech-to-text backend. The coordinator treats it as
// a black box: it only asks whether the model is usable, provisions it when
// not, and runs transcriptions.
type Engine interface {
	// ModelReady reports whether the model is provisioned and usable. The
	// coordinator calls this per job and never caches the answer.
	ModelReady(ctx context.Context) (bool, error)

	// ProvisionModel fetches the model, reporting fractional progress (0..1)
	// through the callback. Safe to call when the model already exists.
	ProvisionModel(ctx context.Context, progress func(float64)) error

	// Transcribe runs recognition on the audio file and returns segments
	// with word timings where the backend supplies them.
	Transcribe(ctx context.Context, audioPath, language string, progress func(float64)) (*captions.Transcript, error)
}
