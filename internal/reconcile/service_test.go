package reconcile_test

import (
	"context"
	"os"
	"testing"

	"podbay/internal/assetstore"
	"podbay/internal/episodekey"
	"podbay/internal/logging"
	"podbay/internal/metadata"
	"podbay/internal/observer"
	"podbay/internal/reconcile"
	"podbay/internal/testsupport"
)

type fixture struct {
	store  *metadata.Store
	assets *assetstore.Store
	svc    *reconcile.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	assets := assetstore.New(cfg)
	svc := reconcile.New(store, assets, observer.New(), logging.NewNop())
	return &fixture{store: store, assets: assets, svc: svc}
}

func (f *fixture) writeAudio(t *testing.T, podcast, episode, ext string) string {
	t.Helper()
	base := episodekey.BaseName(podcast, episode)
	path := f.assets.AudioPath(base, ext)
	if err := os.WriteFile(path, []byte("audio-content"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func (f *fixture) writeCaption(t *testing.T, podcast, episode string) string {
	t.Helper()
	base := episodekey.BaseName(podcast, episode)
	path := f.assets.CaptionPath(base)
	if err := os.WriteFile(path, []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n\n"), 0o644); err != nil {
		t.Fatalf("write caption: %v", err)
	}
	return path
}

func TestSweepSynthesizesRecordForOrphanedFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	audioPath := f.writeAudio(t, "Go Time", "Episode 1", ".mp3")

	known := []reconcile.Episode{{
		PodcastTitle: "Go Time",
		EpisodeTitle: "Episode 1",
		AudioURL:     "https://example.com/ep1.mp3",
		ArtworkURL:   "https://example.com/art.png",
	}}
	res, err := f.svc.Sweep(ctx, known)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.RecordsCreated != 1 {
		t.Fatalf("RecordsCreated = %d, want 1", res.RecordsCreated)
	}

	rec, err := f.store.GetByTitles(ctx, "Go Time", "Episode 1")
	if err != nil {
		t.Fatalf("GetByTitles: %v", err)
	}
	if rec.LocalAudioPath != audioPath || rec.FileSize == 0 || rec.DownloadedAt == nil {
		t.Fatalf("synthesized record incomplete: %+v", rec)
	}
	if rec.AudioURL != "https://example.com/ep1.mp3" || rec.ArtworkURL != "https://example.com/art.png" {
		t.Fatalf("feed metadata not carried over: %+v", rec)
	}
}

func TestSweepRelinksDivergedPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	audioPath := f.writeAudio(t, "Go Time", "Episode 2", ".m4a")

	rec := &metadata.Record{
		PodcastTitle:   "Go Time",
		EpisodeTitle:   "Episode 2",
		LocalAudioPath: "/stale/location/old.mp3",
	}
	if err := f.store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	res, err := f.svc.Sweep(ctx, []reconcile.Episode{{PodcastTitle: "Go Time", EpisodeTitle: "Episode 2"}})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.AudioLinked != 1 {
		t.Fatalf("AudioLinked = %d, want 1", res.AudioLinked)
	}
	got, err := f.store.GetByTitles(ctx, "Go Time", "Episode 2")
	if err != nil || got.LocalAudioPath != audioPath {
		t.Fatalf("path not relinked: %+v, %v", got, err)
	}
}

func TestSweepClearsVanishedPaths(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := &metadata.Record{
		PodcastTitle:     "Go Time",
		EpisodeTitle:     "Episode 3",
		LocalAudioPath:   "/gone/audio.mp3",
		LocalCaptionPath: "/gone/captions.srt",
		Starred:          true,
	}
	if err := f.store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	// The vanished record is cleared even when the feed no longer knows it.
	res, err := f.svc.Sweep(ctx, nil)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.AudioCleared != 1 || res.CaptionCleared != 1 {
		t.Fatalf("cleared = %d/%d, want 1/1", res.AudioCleared, res.CaptionCleared)
	}
	got, err := f.store.GetByTitles(ctx, "Go Time", "Episode 3")
	if err != nil {
		t.Fatalf("record must survive clearing: %v", err)
	}
	if got.LocalAudioPath != "" || got.LocalCaptionPath != "" || !got.Starred {
		t.Fatalf("unexpected record: %+v", got)
	}
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.writeAudio(t, "Go Time", "Episode 4", ".mp3")
	f.writeCaption(t, "Go Time", "Episode 4")

	known := []reconcile.Episode{{PodcastTitle: "Go Time", EpisodeTitle: "Episode 4"}}
	first, err := f.svc.Sweep(ctx, known)
	if err != nil {
		t.Fatalf("first Sweep: %v", err)
	}
	if first.Writes() == 0 {
		t.Fatal("first sweep should have written")
	}

	second, err := f.svc.Sweep(ctx, known)
	if err != nil {
		t.Fatalf("second Sweep: %v", err)
	}
	if second.Writes() != 0 {
		t.Fatalf("second sweep wrote %d times, want 0 (%+v)", second.Writes(), second)
	}
}

func TestSweepSafeForTitlesContainingLegacyDelimiter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// A title with a literal pipe: identity must come from the stored title
	// fields, never from splitting an ambiguous key.
	podcast := "News | Tech"
	episode := "Episode 5"
	audioPath := f.writeAudio(t, podcast, episode, ".mp3")

	res, err := f.svc.Sweep(ctx, []reconcile.Episode{{PodcastTitle: podcast, EpisodeTitle: episode}})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.RecordsCreated != 1 {
		t.Fatalf("RecordsCreated = %d, want 1", res.RecordsCreated)
	}
	got, err := f.store.GetByTitles(ctx, podcast, episode)
	if err != nil {
		t.Fatalf("GetByTitles: %v", err)
	}
	if got.PodcastTitle != podcast || got.EpisodeTitle != episode || got.LocalAudioPath != audioPath {
		t.Fatalf("identity corrupted: %+v", got)
	}

	// Sweeping again must not duplicate or touch the record.
	second, err := f.svc.Sweep(ctx, []reconcile.Episode{{PodcastTitle: podcast, EpisodeTitle: episode}})
	if err != nil || second.Writes() != 0 {
		t.Fatalf("second sweep = %+v, %v", second, err)
	}
}

func TestSweepLinksCaptionArtifacts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rec := &metadata.Record{PodcastTitle: "Go Time", EpisodeTitle: "Episode 6"}
	if err := f.store.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	captionPath := f.writeCaption(t, "Go Time", "Episode 6")

	res, err := f.svc.Sweep(ctx, []reconcile.Episode{{PodcastTitle: "Go Time", EpisodeTitle: "Episode 6"}})
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.CaptionLinked != 1 {
		t.Fatalf("CaptionLinked = %d, want 1", res.CaptionLinked)
	}
	got, err := f.store.GetByTitles(ctx, "Go Time", "Episode 6")
	if err != nil || got.LocalCaptionPath != captionPath {
		t.Fatalf("caption not linked: %+v, %v", got, err)
	}
}
