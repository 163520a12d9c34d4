// Package reconcile restores agreement between the metadata store and the
// files actually on disk. Sweeps read both stores but write only metadata;
// a sweep over an unchanged disk performs zero writes.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"podbay/internal/assetstore"
	"podbay/internal/episodekey"
	"podbay/internal/logging"
	"podbay/internal/metadata"
	"podbay/internal/observer"
)

// Episode is the caller-supplied knowledge about an episode, typically from
// the feed layer. Only the titles are required; the rest seeds records
// synthesized for orphaned files.
type Episode struct {
	PodcastTitle string
	EpisodeTitle string
	AudioURL     string
	ArtworkURL   string
	PublishedAt  *time.Time
}

// Result counts what a sweep changed. A zero Result means the stores already
// agreed.
type Result struct {
	RecordsCreated  int
	AudioLinked     int
	AudioCleared    int
	CaptionLinked   int
	CaptionCleared  int
	RecordsExamined int
}

// Writes reports the total number of metadata mutations the sweep performed.
func (r Result) Writes() int {
	return r.RecordsCreated + r.AudioLinked + r.AudioCleared + r.CaptionLinked + r.CaptionCleared
}

// Service runs reconciliation sweeps.
type Service struct {
	store  *metadata.Store
	assets *assetstore.Store
	bus    observer.Bus
	logger *slog.Logger
}

// New builds a reconciliation service over the two stores.
func New(store *metadata.Store, assets *assetstore.Store, bus observer.Bus, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		assets: assets,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "reconcile"),
	}
}

// Sweep reconciles every known episode and every stored record against the
// filesystem. Idempotent: partial application leaves both stores valid, and
// re-running over an unchanged disk writes nothing.
func (s *Service) Sweep(ctx context.Context, known []Episode) (Result, error) {
	var res Result

	for _, ep := range known {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.sweepKnown(ctx, ep, &res); err != nil {
			return res, err
		}
	}

	// Second pass over stored records: clear links whose files vanished.
	// Works from the stored title fields, never a parsed key, so titles
	// containing a legacy delimiter cannot be misattributed.
	records, err := s.store.List(ctx)
	if err != nil {
		return res, err
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.RecordsExamined++
		if err := s.sweepRecord(ctx, rec, &res); err != nil {
			return res, err
		}
	}

	s.logger.Info("sweep complete",
		logging.Int("created", res.RecordsCreated),
		logging.Int("audio_linked", res.AudioLinked),
		logging.Int("audio_cleared", res.AudioCleared),
		logging.Int("caption_linked", res.CaptionLinked),
		logging.Int("caption_cleared", res.CaptionCleared),
		logging.Int("examined", res.RecordsExamined))
	if s.bus != nil {
		s.bus.Publish(observer.Event{Kind: observer.KindReconcile, Time: time.Now(), Payload: res})
	}
	return res, nil
}

func (s *Service) sweepKnown(ctx context.Context, ep Episode, res *Result) error {
	base := episodekey.BaseName(ep.PodcastTitle, ep.EpisodeTitle)
	audioPath := s.assets.ProbeAudio(base)
	captionPath := s.assets.ProbeCaption(base)

	rec, err := s.store.GetByTitles(ctx, ep.PodcastTitle, ep.EpisodeTitle)
	switch {
	case errors.Is(err, metadata.ErrNotFound):
		if audioPath == "" && captionPath == "" {
			return nil
		}
		// Orphaned artifact: synthesize the record from feed knowledge.
		rec = &metadata.Record{
			PodcastTitle: ep.PodcastTitle,
			EpisodeTitle: ep.EpisodeTitle,
			AudioURL:     ep.AudioURL,
			ArtworkURL:   ep.ArtworkURL,
			PublishedAt:  ep.PublishedAt,
		}
		if audioPath != "" {
			rec.LocalAudioPath = audioPath
			rec.FileSize = fileSize(audioPath)
			now := time.Now().UTC()
			rec.DownloadedAt = &now
		}
		rec.LocalCaptionPath = captionPath
		if err := s.store.Insert(ctx, rec); err != nil {
			return err
		}
		res.RecordsCreated++
		return nil
	case err != nil:
		return err
	}

	if audioPath != "" && rec.LocalAudioPath != audioPath {
		if err := s.store.SetLocalAudioPath(ctx, rec.PodcastTitle, rec.EpisodeTitle, audioPath, fileSize(audioPath)); err != nil {
			return err
		}
		res.AudioLinked++
	}
	if captionPath != "" && rec.LocalCaptionPath != captionPath {
		if err := s.store.SetLocalCaptionPath(ctx, rec.PodcastTitle, rec.EpisodeTitle, captionPath); err != nil {
			return err
		}
		res.CaptionLinked++
	}
	return nil
}

func (s *Service) sweepRecord(ctx context.Context, rec *metadata.Record, res *Result) error {
	if rec.LocalAudioPath != "" && !fileExists(rec.LocalAudioPath) {
		if err := s.store.ClearLocalAudioPath(ctx, rec.PodcastTitle, rec.EpisodeTitle); err != nil {
			return err
		}
		res.AudioCleared++
	}
	if rec.LocalCaptionPath != "" && !fileExists(rec.LocalCaptionPath) {
		if err := s.store.ClearLocalCaptionPath(ctx, rec.PodcastTitle, rec.EpisodeTitle); err != nil {
			return err
		}
		res.CaptionCleared++
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
