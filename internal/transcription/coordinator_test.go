package transcription_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"podbay/internal/assetstore"
	"podbay/internal/captions"
	"podbay/internal/config"
	"podbay/internal/episodekey"
	"podbay/internal/logging"
	"podbay/internal/metadata"
	"podbay/internal/observer"
	"podbay/internal/services"
	"podbay/internal/testsupport"
	"podbay/internal/transcription"
)

type fakeEngine struct {
	mu          sync.Mutex
	ready       bool
	readyChecks int
	provisions  int
	transcribes int
	block       chan struct{}
	failWith    error
	transcript  *captions.Transcript
}

func (f *fakeEngine) ModelReady(context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyChecks++
	return f.ready, nil
}

func (f *fakeEngine) ProvisionModel(_ context.Context, progress func(float64)) error {
	f.mu.Lock()
	f.provisions++
	f.ready = true
	f.mu.Unlock()
	if progress != nil {
		progress(0.5)
		progress(1)
	}
	return nil
}

func (f *fakeEngine) Transcribe(ctx context.Context, _, language string, progress func(float64)) (*captions.Transcript, error) {
	f.mu.Lock()
	f.transcribes++
	block := f.block
	failWith := f.failWith
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failWith != nil {
		return nil, failWith
	}
	if progress != nil {
		progress(1)
	}
	tr := f.transcript
	if tr == nil {
		tr = &captions.Transcript{
			Language: language,
			Segments: []captions.Segment{
				{Start: 0, End: 2, Text: "hello world", Words: []captions.Word{
					{Text: "hello", Start: 0, End: 1},
					{Text: "world", Start: 1, End: 2},
				}},
			},
		}
	}
	return tr, nil
}

type fixture struct {
	cfg    *config.Config
	store  *metadata.Store
	assets *assetstore.Store
	bus    observer.Bus
	engine *fakeEngine
	coord  *transcription.Coordinator
}

func newFixture(t *testing.T, opts ...testsupport.ConfigOption) *fixture {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	store := testsupport.MustOpenStore(t, cfg)
	assets := assetstore.New(cfg)
	engine := &fakeEngine{ready: true}
	bus := observer.New()
	coord := transcription.New(cfg, store, assets, engine, bus, logging.NewNop())
	return &fixture{cfg: cfg, store: store, assets: assets, bus: bus, engine: engine, coord: coord}
}

func (f *fixture) seedAudio(t *testing.T, podcast, episode string) string {
	t.Helper()
	base := episodekey.BaseName(podcast, episode)
	path := f.assets.AudioPath(base, ".mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatalf("seed audio: %v", err)
	}
	return path
}

func waitDone(t *testing.T, f *fixture, podcast, episode string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, ok := f.coord.ActiveJob(podcast, episode)
		if !ok || st.State == transcription.StateFailed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("timed out waiting for job to finish")
}

func TestTranscriptionHappyPath(t *testing.T) {
	f := newFixture(t)
	audioPath := f.seedAudio(t, "Go Time", "Episode 1")
	base := episodekey.BaseName("Go Time", "Episode 1")
	ctx := context.Background()

	if err := f.coord.Enqueue(ctx, "Go Time", "Episode 1", audioPath, ""); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitDone(t, f, "Go Time", "Episode 1")

	captionPath := f.assets.CaptionPath(base)
	if _, err := os.Stat(captionPath); err != nil {
		t.Fatalf("caption missing: %v", err)
	}
	if _, err := os.Stat(f.assets.SidecarPath(base)); err != nil {
		t.Fatalf("sidecar missing: %v", err)
	}
	issues, err := captions.ValidateSRT(captionPath)
	if err != nil || len(issues) != 0 {
		t.Fatalf("srt invalid: %v %v", issues, err)
	}

	rec, err := f.store.GetByTitles(ctx, "Go Time", "Episode 1")
	if err != nil {
		t.Fatalf("GetByTitles: %v", err)
	}
	if rec.LocalCaptionPath != captionPath {
		t.Fatalf("caption not linked: %+v", rec)
	}

	// Completed jobs are dropped; the artifact is the durable signal.
	if _, ok := f.coord.ActiveJob("Go Time", "Episode 1"); ok {
		t.Fatal("completed job should be removed from memory")
	}
	if f.engine.provisions != 0 {
		t.Fatalf("model was ready, provisions = %d", f.engine.provisions)
	}
}

func TestModelProvisionedWhenMissingAndRecheckedPerJob(t *testing.T) {
	f := newFixture(t)
	f.engine.ready = false
	audio2 := f.seedAudio(t, "Go Time", "Episode 2")
	ctx := context.Background()

	events, unsubscribe := f.bus.Subscribe(64)
	defer unsubscribe()

	if err := f.coord.Enqueue(ctx, "Go Time", "Episode 2", audio2, "en"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitDone(t, f, "Go Time", "Episode 2")
	if f.engine.provisions != 1 {
		t.Fatalf("provisions = %d, want 1", f.engine.provisions)
	}

	sawProvision := false
drain:
	for {
		select {
		case ev := <-events:
			if st, ok := ev.Payload.(transcription.Status); ok && st.State == transcription.StateDownloadingModel {
				sawProvision = true
			}
		default:
			break drain
		}
	}
	if !sawProvision {
		t.Fatal("expected a downloading_model transition on the bus")
	}

	// A second job must ask again instead of trusting a cached answer.
	checksBefore := f.engine.readyChecks
	audio3 := f.seedAudio(t, "Go Time", "Episode 3")
	if err := f.coord.Enqueue(ctx, "Go Time", "Episode 3", audio3, "en"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitDone(t, f, "Go Time", "Episode 3")
	if f.engine.readyChecks <= checksBefore {
		t.Fatal("model readiness must be re-checked per job")
	}
	if f.engine.provisions != 1 {
		t.Fatalf("model already provisioned, provisions = %d", f.engine.provisions)
	}
}

func TestDuplicateEnqueueIsNoop(t *testing.T) {
	f := newFixture(t)
	f.engine.block = make(chan struct{})
	audio4 := f.seedAudio(t, "Go Time", "Episode 4")
	ctx := context.Background()

	if err := f.coord.Enqueue(ctx, "Go Time", "Episode 4", audio4, "en"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := f.coord.Enqueue(ctx, "Go Time", "Episode 4", audio4, "en"); err != nil {
		t.Fatalf("duplicate Enqueue: %v", err)
	}
	close(f.engine.block)
	waitDone(t, f, "Go Time", "Episode 4")

	if f.engine.transcribes != 1 {
		t.Fatalf("transcribes = %d, want 1", f.engine.transcribes)
	}
}

func TestFailureStaysVisibleUntilReplaced(t *testing.T) {
	f := newFixture(t)
	f.engine.failWith = errors.New("decode blew up")
	audio5 := f.seedAudio(t, "Go Time", "Episode 5")
	ctx := context.Background()

	if err := f.coord.Enqueue(ctx, "Go Time", "Episode 5", audio5, "en"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitDone(t, f, "Go Time", "Episode 5")

	st, ok := f.coord.ActiveJob("Go Time", "Episode 5")
	if !ok || st.State != transcription.StateFailed {
		t.Fatalf("failed job should stay visible, got %+v ok=%v", st, ok)
	}
	if !strings.Contains(st.Reason, "decode blew up") {
		t.Fatalf("reason = %q", st.Reason)
	}

	// Re-enqueueing replaces the failed job and succeeds.
	f.engine.mu.Lock()
	f.engine.failWith = nil
	f.engine.mu.Unlock()
	if err := f.coord.Enqueue(ctx, "Go Time", "Episode 5", audio5, "en"); err != nil {
		t.Fatalf("re-Enqueue: %v", err)
	}
	waitDone(t, f, "Go Time", "Episode 5")
	if _, ok := f.coord.ActiveJob("Go Time", "Episode 5"); ok {
		t.Fatal("replaced job should complete and drop")
	}
}

func TestWorkerBoundSerializesJobs(t *testing.T) {
	f := newFixture(t, testsupport.WithWorkers(1))
	f.engine.block = make(chan struct{})
	audio6 := f.seedAudio(t, "Go Time", "Episode 6")
	audio7 := f.seedAudio(t, "Go Time", "Episode 7")
	ctx := context.Background()

	if err := f.coord.Enqueue(ctx, "Go Time", "Episode 6", audio6, "en"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := f.coord.Enqueue(ctx, "Go Time", "Episode 7", audio7, "en"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// With one worker the second job must still be queued while the first
	// transcribes.
	deadline := time.Now().Add(2 * time.Second)
	for {
		first, _ := f.coord.ActiveJob("Go Time", "Episode 6")
		second, _ := f.coord.ActiveJob("Go Time", "Episode 7")
		if first.State == transcription.StateTranscribing {
			if second.State != transcription.StateQueued {
				t.Fatalf("second job state = %s, want queued", second.State)
			}
			break
		}
		if second.State == transcription.StateTranscribing {
			if first.State != transcription.StateQueued {
				t.Fatalf("first job state = %s, want queued", first.State)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("neither job reached transcribing")
		}
		time.Sleep(10 * time.Millisecond)
	}

	close(f.engine.block)
	waitDone(t, f, "Go Time", "Episode 6")
	waitDone(t, f, "Go Time", "Episode 7")
	if f.engine.transcribes != 2 {
		t.Fatalf("transcribes = %d, want 2", f.engine.transcribes)
	}
}

func TestEnqueueWithoutAudioFails(t *testing.T) {
	f := newFixture(t)
	missing := filepath.Join(t.TempDir(), "nothing_here.mp3")
	err := f.coord.Enqueue(context.Background(), "Go Time", "Nothing Here", missing, "en")
	if !errors.Is(err, services.ErrStateConflict) {
		t.Fatalf("err = %v, want state conflict", err)
	}
}

func TestEnqueueUsesCallerSuppliedAudioPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Audio living outside the library, under a name unrelated to the
	// episode, must still be transcribable.
	audioPath := filepath.Join(t.TempDir(), "imported-a1b2.mp3")
	if err := os.WriteFile(audioPath, []byte("audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	if err := f.coord.Enqueue(ctx, "Go Time", "Imported Episode", audioPath, "en"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitDone(t, f, "Go Time", "Imported Episode")

	base := episodekey.BaseName("Go Time", "Imported Episode")
	if _, err := os.Stat(f.assets.CaptionPath(base)); err != nil {
		t.Fatalf("caption missing: %v", err)
	}
	rec, err := f.store.GetByTitles(ctx, "Go Time", "Imported Episode")
	if err != nil {
		t.Fatalf("GetByTitles: %v", err)
	}
	if rec.LocalCaptionPath != f.assets.CaptionPath(base) {
		t.Fatalf("caption not linked: %+v", rec)
	}
}

func TestTranscriptWriteFailureLeavesNoStagedArtifacts(t *testing.T) {
	f := newFixture(t)
	audioPath := f.seedAudio(t, "Go Time", "Episode 8")
	ctx := context.Background()

	// A regular file in the staging directory's place makes every staged
	// write fail.
	if err := os.RemoveAll(f.assets.StagingDir()); err != nil {
		t.Fatalf("remove staging dir: %v", err)
	}
	if err := os.WriteFile(f.assets.StagingDir(), []byte("x"), 0o644); err != nil {
		t.Fatalf("block staging dir: %v", err)
	}

	if err := f.coord.Enqueue(ctx, "Go Time", "Episode 8", audioPath, "en"); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitDone(t, f, "Go Time", "Episode 8")

	st, ok := f.coord.ActiveJob("Go Time", "Episode 8")
	if !ok || st.State != transcription.StateFailed {
		t.Fatalf("job state = %+v ok=%v, want failed", st, ok)
	}

	base := episodekey.BaseName("Go Time", "Episode 8")
	if _, err := os.Stat(f.assets.CaptionPath(base)); !os.IsNotExist(err) {
		t.Fatalf("caption should not exist: %v", err)
	}
	if _, err := os.Stat(f.assets.SidecarPath(base)); !os.IsNotExist(err) {
		t.Fatalf("sidecar should not exist: %v", err)
	}
}
