package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"podbay/internal/episodekey"
	"podbay/internal/fileutil"
	"podbay/internal/transcription"
)

func newTranscribeCommand(cctx *commandContext) *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "transcribe <podcast> <episode>",
		Short: "Generate a transcript for a downloaded episode",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			podcast, episode := args[0], args[1]

			a, err := cctx.openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			base := episodekey.BaseName(podcast, episode)
			if p := a.assets.ProbeCaption(base); p != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "transcript already exists: %s\n", p)
				return nil
			}

			// Resolve the audio location here: prefer the recorded path,
			// fall back to the deterministic filename.
			audioPath := ""
			if rec, err := a.store.GetByTitles(cmd.Context(), podcast, episode); err == nil && fileutil.FileExists(rec.LocalAudioPath) {
				audioPath = rec.LocalAudioPath
			}
			if audioPath == "" {
				audioPath = a.assets.ProbeAudio(base)
			}
			if audioPath == "" {
				return fmt.Errorf("no downloaded audio for %s / %s", podcast, episode)
			}

			if err := a.transcription.Enqueue(cmd.Context(), podcast, episode, audioPath, language); err != nil {
				return err
			}

			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			var lastLine string
			for range ticker.C {
				st, active := a.transcription.ActiveJob(podcast, episode)
				if !active {
					// Edge-triggered completion: the job is gone, the
					// artifact on disk is the durable signal.
					p := a.assets.ProbeCaption(base)
					fmt.Fprintf(cmd.OutOrStdout(), "transcript ready: %s\n", p)
					if a.cfg.Notifications.Transcripts {
						if err := a.notifier.NotifyTranscriptReady(cmd.Context(), podcast, episode); err != nil {
							a.logger.Warn("notification failed", "error", err)
						}
					}
					return nil
				}
				var line string
				switch st.State {
				case transcription.StateQueued:
					line = "queued"
				case transcription.StateDownloadingModel:
					line = fmt.Sprintf("downloading model %3.0f%%", st.Progress*100)
				case transcription.StateTranscribing:
					line = fmt.Sprintf("transcribing %3.0f%%", st.Progress*100)
				case transcription.StateFailed:
					return fmt.Errorf("transcription failed: %s", st.Reason)
				}
				if line != "" && line != lastLine {
					fmt.Fprintln(cmd.OutOrStdout(), line)
					lastLine = line
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&language, "language", "l", "", "Spoken language (defaults to config)")
	return cmd
}
