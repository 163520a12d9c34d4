package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"podbay/internal/downloads"
	"podbay/internal/episodekey"
	"podbay/internal/logging"
	"podbay/internal/observer"
	"podbay/internal/reconcile"
	"podbay/internal/transcription"
)

func newDaemonCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run in the background: periodic reconciliation and notification relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := cctx.openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			fileLogger, closer, err := logging.NewForFile(a.cfg.LogFilePath(), a.cfg.Logging.Level)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()
			log := logging.NewComponentLogger(fileLogger, "daemon")

			scheduler, err := reconcile.NewScheduler(a.cfg.Reconcile.Schedule, a.reconcile, func() []reconcile.Episode {
				known, err := knownEpisodes(context.Background(), a)
				if err != nil {
					log.Error("collect episodes for sweep", logging.Error(err))
					return nil
				}
				return known
			}, fileLogger)
			if err != nil {
				return err
			}
			scheduler.Start()
			defer scheduler.Stop()

			events, unsubscribe := a.bus.Subscribe(128)
			defer unsubscribe()

			// Periodic staging hygiene alongside the cron sweeps.
			stagingTicker := time.NewTicker(time.Hour)
			defer stagingTicker.Stop()

			log.Info("daemon started",
				logging.String("schedule", a.cfg.Reconcile.Schedule),
				logging.String("lock", a.lock.Path()))
			fmt.Fprintln(cmd.OutOrStdout(), "podbay daemon running; press Ctrl-C to stop")

			for {
				select {
				case <-ctx.Done():
					log.Info("daemon stopping")
					return nil
				case <-stagingTicker.C:
					maxAge := time.Duration(a.cfg.Reconcile.StagingMaxAgeHr) * time.Hour
					if removed, err := a.assets.CleanStaleStaging(maxAge); err != nil {
						log.Error("staging cleanup failed", logging.Error(err))
					} else if len(removed) > 0 {
						log.Info("staging cleanup", logging.Int("removed", len(removed)))
					}
				case ev := <-events:
					relayEvent(ctx, a, log, ev)
				}
			}
		},
	}
}

// relayEvent forwards terminal bus events to the notifier. Progress events
// pass through untouched; notification failures are logged, never fatal.
func relayEvent(ctx context.Context, a *app, log *slog.Logger, ev observer.Event) {
	podcast, episode, ok := episodekey.Parse(ev.Key)
	if !ok {
		return
	}
	prefs := a.cfg.Notifications
	switch payload := ev.Payload.(type) {
	case downloads.Status:
		switch payload.State {
		case downloads.StateDownloaded:
			if !prefs.Downloads {
				return
			}
			if err := a.notifier.NotifyDownloadComplete(ctx, podcast, episode); err != nil {
				log.Warn("notify download", "error", err)
			}
		case downloads.StateFailed:
			if !prefs.Errors {
				return
			}
			if err := a.notifier.NotifyError(ctx, fmt.Errorf("%s", payload.Reason), "download"); err != nil {
				log.Warn("notify error", "error", err)
			}
		}
	case transcription.Status:
		switch payload.State {
		case transcription.StateCompleted:
			if !prefs.Transcripts {
				return
			}
			if err := a.notifier.NotifyTranscriptReady(ctx, podcast, episode); err != nil {
				log.Warn("notify transcript", "error", err)
			}
		case transcription.StateFailed:
			if !prefs.Errors {
				return
			}
			if err := a.notifier.NotifyError(ctx, fmt.Errorf("%s", payload.Reason), "transcription"); err != nil {
				log.Warn("notify error", "error", err)
			}
		}
	}
}
