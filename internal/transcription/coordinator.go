// Package transcription coordinates transcript generation: bounded workers
// pull queued episodes through model provisioning and recognition, then land
// the caption artifacts atomically.
package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"podbay/internal/assetstore"
	"podbay/internal/captions"
	"podbay/internal/config"
	"podbay/internal/episodekey"
	"podbay/internal/fileutil"
	"podbay/internal/logging"
	"podbay/internal/metadata"
	"podbay/internal/observer"
	"podbay/internal/services"
)

// State enumerates the transcription lifecycle.
type State string

const (
	StateQueued           State = "queued"
	StateDownloadingModel State = "downloading_model"
	StateTranscribing     State = "transcribing"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// Status is an immutable snapshot of one episode's transcription job.
type Status struct {
	Key         episodekey.Key
	State       State
	Progress    float64 // 0..1 within the current phase
	Language    string
	CaptionPath string // set on completion
	Reason      string // human-readable failure reason
}

type job struct {
	status Status
	done   chan struct{}
}

// Coordinator runs transcriptions with a bounded worker pool. Completed jobs
// are dropped from memory once their artifacts exist on disk; failed jobs
// stay visible until the episode is enqueued again.
type Coordinator struct {
	cfg    *config.Config
	store  *metadata.Store
	assets *assetstore.Store
	engine Engine
	bus    observer.Bus
	logger *slog.Logger
	sem    *semaphore.Weighted

	mu   sync.Mutex
	jobs map[episodekey.Key]*job
}

// New builds a transcription coordinator. The worker bound comes from the
// config (1..4, validated at load).
func New(cfg *config.Config, store *metadata.Store, assets *assetstore.Store, engine Engine, bus observer.Bus, logger *slog.Logger) *Coordinator {
	workers := cfg.Transcription.Workers
	if workers < 1 {
		workers = 1
	}
	return &Coordinator{
		cfg:    cfg,
		store:  store,
		assets: assets,
		engine: engine,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "transcription"),
		sem:    semaphore.NewWeighted(int64(workers)),
		jobs:   make(map[episodekey.Key]*job),
	}
}

// Enqueue queues the episode for transcription of the audio at audioPath.
// The caller supplies the path (from the metadata record or the asset store);
// no lookup happens here, so audio living anywhere on disk can be
// transcribed. Enqueueing an episode whose job is still active is a no-op; a
// failed job is replaced.
func (c *Coordinator) Enqueue(ctx context.Context, podcastTitle, episodeTitle, audioPath, language string) error {
	key := episodekey.Make(podcastTitle, episodeTitle)
	base := episodekey.BaseName(podcastTitle, episodeTitle)

	if !fileutil.FileExists(audioPath) {
		return services.Wrap(services.ErrStateConflict, "transcription", "enqueue",
			fmt.Sprintf("no audio file at %q", audioPath), nil)
	}
	if language == "" {
		language = c.cfg.Transcription.DefaultLanguage
	}

	c.mu.Lock()
	if existing, ok := c.jobs[key]; ok {
		switch existing.status.State {
		case StateQueued, StateDownloadingModel, StateTranscribing:
			c.mu.Unlock()
			return nil
		}
	}
	jobCtx := context.WithoutCancel(ctx)
	j := &job{
		status: Status{Key: key, State: StateQueued, Language: language},
		done:   make(chan struct{}),
	}
	c.jobs[key] = j
	c.mu.Unlock()

	c.publish(j.status)

	go func() {
		defer close(j.done)
		c.run(jobCtx, j, podcastTitle, episodeTitle, base, audioPath, language)
	}()
	return nil
}

func (c *Coordinator) run(ctx context.Context, j *job, podcastTitle, episodeTitle, base, audioPath, language string) {
	key := j.status.Key
	ctx = services.WithEpisodeKey(ctx, key)
	log := logging.WithContext(ctx, c.logger)

	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.fail(j, log, err)
		return
	}
	defer c.sem.Release(1)

	if c.cfg.Transcription.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.Transcription.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	log.Info("transcription started",
		logging.String(logging.FieldPodcast, podcastTitle),
		logging.String(logging.FieldEpisode, episodeTitle),
		logging.String("language", language))

	// Model readiness is asked fresh for every job: a model deleted from
	// disk between jobs must trigger re-provisioning, not a stale skip.
	ready, err := c.engine.ModelReady(ctx)
	if err != nil {
		c.fail(j, log, services.Wrap(services.ErrProvisioning, "transcription", "model_check", "check model", err))
		return
	}
	if !ready {
		c.setState(j, func(st *Status) {
			st.State = StateDownloadingModel
			st.Progress = 0
		})
		sampler := logging.NewProgressSampler(0.05, time.Duration(c.cfg.Downloads.ProgressIntervalMS)*time.Millisecond)
		err := c.engine.ProvisionModel(ctx, func(frac float64) {
			if sampler.ShouldEmit(frac, "provision") {
				c.setState(j, func(st *Status) { st.Progress = frac })
			}
		})
		if err != nil {
			c.fail(j, log, services.Wrap(services.ErrProvisioning, "transcription", "provision", "provision model", err))
			return
		}
	}

	c.setState(j, func(st *Status) {
		st.State = StateTranscribing
		st.Progress = 0
	})
	sampler := logging.NewProgressSampler(0.05, time.Duration(c.cfg.Downloads.ProgressIntervalMS)*time.Millisecond)
	transcript, err := c.engine.Transcribe(ctx, audioPath, language, func(frac float64) {
		if sampler.ShouldEmit(frac, "transcribe") {
			c.setState(j, func(st *Status) { st.Progress = frac })
		}
	})
	if err != nil {
		c.fail(j, log, services.Wrap(services.ErrTranscription, "transcription", "transcribe", "transcribe audio", err))
		return
	}

	captionPath, err := c.landArtifacts(base, transcript)
	if err != nil {
		c.fail(j, log, err)
		return
	}
	if err := c.store.SetLocalCaptionPath(ctx, podcastTitle, episodeTitle, captionPath); err != nil {
		c.fail(j, log, err)
		return
	}

	log.Info("transcription complete", logging.String("path", captionPath))
	c.setState(j, func(st *Status) {
		st.State = StateCompleted
		st.Progress = 1
		st.CaptionPath = captionPath
	})
	// Edge-triggered completion: the artifacts on disk are the durable
	// signal, so the job entry goes away immediately.
	c.mu.Lock()
	if c.jobs[key] == j {
		delete(c.jobs, key)
	}
	c.mu.Unlock()
}

// landArtifacts writes the SRT and word-timing sidecar through staging so a
// crash never leaves a partial transcript at the final path.
func (c *Coordinator) landArtifacts(base string, transcript *captions.Transcript) (string, error) {
	stagedSRT := c.assets.NewStagingFile("srt")
	if err := transcript.WriteSRT(stagedSRT); err != nil {
		c.assets.Discard(stagedSRT)
		return "", services.Wrap(services.ErrFilesystem, "transcription", "write_srt", "write staged srt", err)
	}
	stagedSidecar := c.assets.NewStagingFile("words")
	if err := transcript.WriteSidecar(stagedSidecar); err != nil {
		c.assets.Discard(stagedSRT)
		return "", services.Wrap(services.ErrFilesystem, "transcription", "write_sidecar", "write staged word timings", err)
	}

	captionPath := c.assets.CaptionPath(base)
	if err := c.assets.Promote(stagedSRT, captionPath); err != nil {
		c.assets.Discard(stagedSRT)
		c.assets.Discard(stagedSidecar)
		return "", err
	}
	if err := c.assets.Promote(stagedSidecar, c.assets.SidecarPath(base)); err != nil {
		c.assets.Discard(stagedSidecar)
		return "", err
	}
	return captionPath, nil
}

func (c *Coordinator) fail(j *job, log *slog.Logger, err error) {
	log.Error("transcription failed", logging.Error(err))
	c.setState(j, func(st *Status) {
		st.State = StateFailed
		st.Reason = services.Reason(err)
	})
}

// ActiveJob returns the in-memory job snapshot for the episode, if any.
// Completed jobs are gone by design; probe the asset store for artifacts.
func (c *Coordinator) ActiveJob(podcastTitle, episodeTitle string) (Status, bool) {
	key := episodekey.Make(podcastTitle, episodeTitle)
	c.mu.Lock()
	defer c.mu.Unlock()
	if j, ok := c.jobs[key]; ok {
		return j.status, true
	}
	return Status{}, false
}

// Jobs returns a snapshot of all in-memory jobs, for status rendering.
func (c *Coordinator) Jobs() []Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Status, 0, len(c.jobs))
	for _, j := range c.jobs {
		out = append(out, j.status)
	}
	return out
}

func (c *Coordinator) setState(j *job, mutate func(*Status)) {
	c.mu.Lock()
	mutate(&j.status)
	st := j.status
	c.mu.Unlock()
	c.publish(st)
}

func (c *Coordinator) publish(st Status) {
	c.bus.Publish(observer.Event{
		Kind:    observer.KindTranscription,
		Key:     st.Key,
		Time:    time.Now(),
		Payload: st,
	})
}
