package metadata

import (
	"time"

	"podbay/internal/episodekey"
)

// Record is the persisted per-episode row the UI trusts. A record is created
// lazily on first star/download/playback event and deleted only by explicit
// user action. Logically one exists per EpisodeKey, but the storage layer
// tolerates duplicates; readers deduplicate with most-recently-updated wins.
type Record struct {
	ID               int64
	PodcastTitle     string
	EpisodeTitle     string
	AudioURL         string
	LocalAudioPath   string
	LocalCaptionPath string
	PlaybackPosition float64
	Completed        bool
	Starred          bool
	FileSize         int64
	ArtworkURL       string
	PublishedAt      *time.Time
	DownloadedAt     *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Key returns the canonical identity derived from the stored title fields.
// The stored fields, not a parsed key, are authoritative: they survive titles
// containing the legacy delimiter.
func (r *Record) Key() episodekey.Key {
	return episodekey.Make(r.PodcastTitle, r.EpisodeTitle)
}

// BaseName returns the deterministic artifact filename stem for this record.
func (r *Record) BaseName() string {
	return episodekey.BaseName(r.PodcastTitle, r.EpisodeTitle)
}
