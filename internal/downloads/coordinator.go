// Package downloads coordinates episode audio downloads: one in-memory job
// per episode, streaming into staging with an atomic promote into the audio
// directory, progress fanned out on the observer bus.
package downloads

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"sync"
	"time"

	"podbay/internal/assetstore"
	"podbay/internal/config"
	"podbay/internal/episodekey"
	"podbay/internal/logging"
	"podbay/internal/metadata"
	"podbay/internal/observer"
	"podbay/internal/services"
)

// State enumerates the download lifecycle.
type State string

const (
	StateNotStarted  State = "not_started"
	StateDownloading State = "downloading"
	StateFinishing   State = "finishing"
	StateDownloaded  State = "downloaded"
	StateFailed      State = "failed"
)

// Status is an immutable snapshot of one episode's download job.
type Status struct {
	Key      episodekey.Key
	State    State
	Progress float64 // 0..1, meaningful only while downloading
	Path     string  // final audio path, set once downloaded
	Reason   string  // human-readable failure reason
}

type job struct {
	status Status
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator runs downloads. All public methods are safe for concurrent
// use; job state lives only in memory, the artifact on disk is the durable
// record.
type Coordinator struct {
	cfg    *config.Config
	store  *metadata.Store
	assets *assetstore.Store
	bus    observer.Bus
	logger *slog.Logger
	client *http.Client

	mu   sync.Mutex
	jobs map[episodekey.Key]*job
}

// New builds a download coordinator on top of the metadata and asset stores.
func New(cfg *config.Config, store *metadata.Store, assets *assetstore.Store, bus observer.Bus, logger *slog.Logger) *Coordinator {
	return &Coordinator{
		cfg:    cfg,
		store:  store,
		assets: assets,
		bus:    bus,
		logger: logging.NewComponentLogger(logger, "downloads"),
		client: &http.Client{Timeout: time.Duration(cfg.Downloads.TimeoutSeconds) * time.Second},
		jobs:   make(map[episodekey.Key]*job),
	}
}

// Request starts downloading the episode's audio. A second request for an
// episode whose job is already in flight is a no-op; a Failed or Downloaded
// job is replaced, which is how retry and re-download work.
func (c *Coordinator) Request(ctx context.Context, podcastTitle, episodeTitle, audioURL string) error {
	key := episodekey.Make(podcastTitle, episodeTitle)

	c.mu.Lock()
	if existing, ok := c.jobs[key]; ok {
		switch existing.status.State {
		case StateDownloading, StateFinishing:
			c.mu.Unlock()
			return nil
		}
	}
	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	j := &job{
		status: Status{Key: key, State: StateDownloading},
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.jobs[key] = j
	c.mu.Unlock()

	c.publish(j.status)

	go func() {
		defer close(j.done)
		c.run(jobCtx, j, podcastTitle, episodeTitle, audioURL)
	}()
	return nil
}

func (c *Coordinator) run(ctx context.Context, j *job, podcastTitle, episodeTitle, audioURL string) {
	key := j.status.Key
	ctx = services.WithEpisodeKey(ctx, key)
	log := logging.WithContext(ctx, c.logger)

	base := episodekey.BaseName(podcastTitle, episodeTitle)
	log.Info("download started",
		logging.String(logging.FieldPodcast, podcastTitle),
		logging.String(logging.FieldEpisode, episodeTitle))

	finalPath, size, err := c.fetch(ctx, j, base, audioURL)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("download cancelled")
			c.setState(j, func(st *Status) {
				st.State = StateNotStarted
				st.Progress = 0
			})
			c.dropJob(key, j)
			return
		}
		log.Error("download failed", logging.Error(err))
		c.setState(j, func(st *Status) {
			st.State = StateFailed
			st.Reason = services.Reason(err)
		})
		return
	}

	if err := c.store.SetLocalAudioPath(ctx, podcastTitle, episodeTitle, finalPath, size); err != nil {
		log.Error("record download", logging.Error(err))
		c.setState(j, func(st *Status) {
			st.State = StateFailed
			st.Reason = fmt.Sprintf("downloaded but not recorded: %v", err)
		})
		return
	}

	log.Info("download complete",
		logging.String("path", finalPath),
		logging.Int64("bytes", size))
	c.setState(j, func(st *Status) {
		st.State = StateDownloaded
		st.Progress = 1
		st.Path = finalPath
	})
}

// fetch streams the remote audio into staging and promotes it into the audio
// directory, reporting progress through the job.
func (c *Coordinator) fetch(ctx context.Context, j *job, base, audioURL string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", 0, services.Wrap(services.ErrNetwork, "downloads", "request", "build request", err)
	}
	if c.cfg.Downloads.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.Downloads.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, services.Wrap(services.ErrNetwork, "downloads", "fetch", "fetch audio", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", 0, services.Wrap(services.ErrNetwork, "downloads", "fetch",
			fmt.Sprintf("server returned %s", resp.Status), nil)
	}

	// Preflight: the configured floor plus the payload when its size is known.
	need := c.cfg.Downloads.MinFreeSpaceMiB * 1024 * 1024
	if resp.ContentLength > 0 {
		need += resp.ContentLength
	}
	if err := c.assets.EnsureFreeSpace(need); err != nil {
		return "", 0, err
	}

	staged := c.assets.NewStagingFile("download")
	out, err := os.Create(staged)
	if err != nil {
		return "", 0, services.Wrap(services.ErrFilesystem, "downloads", "stage", "create staging file", err)
	}

	written, err := c.copyWithProgress(ctx, j, out, resp.Body, resp.ContentLength)
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		c.assets.Discard(staged)
		if ctx.Err() != nil {
			return "", 0, ctx.Err()
		}
		return "", 0, services.Wrap(services.ErrNetwork, "downloads", "stream", "stream audio", err)
	}

	c.setState(j, func(st *Status) { st.State = StateFinishing })

	ext := assetstore.NormalizeAudioExtension(path.Ext(urlPath(audioURL)))
	finalPath := c.assets.AudioPath(base, ext)
	if err := c.assets.Promote(staged, finalPath); err != nil {
		c.assets.Discard(staged)
		return "", 0, err
	}
	return finalPath, written, nil
}

func (c *Coordinator) copyWithProgress(ctx context.Context, j *job, dst io.Writer, src io.Reader, total int64) (int64, error) {
	sampler := logging.NewProgressSampler(0.02, time.Duration(c.cfg.Downloads.ProgressIntervalMS)*time.Millisecond)
	buf := make([]byte, 128*1024)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return written, err
			}
			written += int64(n)
			if total > 0 {
				frac := float64(written) / float64(total)
				if sampler.ShouldEmit(frac, "download") {
					c.setState(j, func(st *Status) { st.Progress = frac })
				}
			}
		}
		if readErr == io.EOF {
			return written, nil
		}
		if readErr != nil {
			return written, readErr
		}
	}
}

// Cancel aborts an in-flight download. It blocks until the transfer goroutine
// has exited and the partial file is gone, so the state observed afterwards
// is NotStarted with no staging residue.
func (c *Coordinator) Cancel(podcastTitle, episodeTitle string) {
	key := episodekey.Make(podcastTitle, episodeTitle)

	c.mu.Lock()
	j, ok := c.jobs[key]
	c.mu.Unlock()
	if !ok {
		return
	}
	j.cancel()
	<-j.done
}

// Delete removes the downloaded audio file and clears the metadata link.
// Held under the coordinator lock so it cannot race a restarted download.
func (c *Coordinator) Delete(ctx context.Context, podcastTitle, episodeTitle string) error {
	key := episodekey.Make(podcastTitle, episodeTitle)

	c.mu.Lock()
	defer c.mu.Unlock()

	if j, ok := c.jobs[key]; ok {
		switch j.status.State {
		case StateDownloading, StateFinishing:
			return services.Wrap(services.ErrStateConflict, "downloads", "delete",
				"download in flight, cancel it first", nil)
		}
		delete(c.jobs, key)
	}

	base := episodekey.BaseName(podcastTitle, episodeTitle)
	if p := c.assets.ProbeAudio(base); p != "" {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return services.Wrap(services.ErrFilesystem, "downloads", "delete", "remove audio file", err)
		}
	}
	if err := c.store.ClearLocalAudioPath(ctx, podcastTitle, episodeTitle); err != nil {
		return err
	}
	c.publish(Status{Key: key, State: StateNotStarted})
	return nil
}

// State reports the episode's download status. Synchronous and
// side-effect-free: with no in-memory job it probes the asset store for the
// deterministic filename, since job state does not survive restarts.
func (c *Coordinator) State(podcastTitle, episodeTitle string) Status {
	key := episodekey.Make(podcastTitle, episodeTitle)

	c.mu.Lock()
	if j, ok := c.jobs[key]; ok {
		st := j.status
		c.mu.Unlock()
		return st
	}
	c.mu.Unlock()

	base := episodekey.BaseName(podcastTitle, episodeTitle)
	if p := c.assets.ProbeAudio(base); p != "" {
		return Status{Key: key, State: StateDownloaded, Progress: 1, Path: p}
	}
	return Status{Key: key, State: StateNotStarted}
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

func (c *Coordinator) dropJob(key episodekey.Key, j *job) {
	c.mu.Lock()
	if c.jobs[key] == j {
		delete(c.jobs, key)
	}
	c.mu.Unlock()
}

func (c *Coordinator) publish(st Status) {
	c.bus.Publish(observer.Event{
		Kind:    observer.KindDownload,
		Key:     st.Key,
		Time:    time.Now(),
		Payload: st,
	})
}

func urlPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}
