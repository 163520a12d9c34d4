package services

import (
	"context"

	"podbay/internal/episodekey"
)

type contextKey int

const (
	episodeKeyContextKey contextKey = iota
	requestIDContextKey
)

// WithEpisodeKey attaches the episode identity to the context for logging.
func WithEpisodeKey(ctx context.Context, key episodekey.Key) context.Context {
	return context.WithValue(ctx, episodeKeyContextKey, key)
}

// EpisodeKeyFromContext extracts an episode key previously attached.
func EpisodeKeyFromContext(ctx context.Context) (episodekey.Key, bool) {
	key, ok := ctx.Value(episodeKeyContextKey).(episodekey.Key)
	return key, ok
}

// WithRequestID attaches a correlation identifier to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext extracts a correlation identifier.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(requestIDContextKey).(string)
	return id, ok
}
