package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"podbay/internal/downloads"
)

func newDownloadCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "download <podcast> <episode> <audio-url>",
		Short: "Download an episode's audio into the library",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			podcast, episode, audioURL := args[0], args[1], args[2]

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := cctx.openApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if st := a.downloads.State(podcast, episode); st.State == downloads.StateDownloaded {
				fmt.Fprintf(cmd.OutOrStdout(), "already downloaded: %s\n", st.Path)
				return nil
			}

			if err := a.downloads.Request(ctx, podcast, episode, audioURL); err != nil {
				return err
			}

			ticker := time.NewTicker(250 * time.Millisecond)
			defer ticker.Stop()
			var lastLine string
			for {
				select {
				case <-ctx.Done():
					// Interrupted: abort the transfer and clean up the partial.
					a.downloads.Cancel(podcast, episode)
					fmt.Fprintln(cmd.OutOrStdout(), "download cancelled")
					return nil
				case <-ticker.C:
				}

				st := a.downloads.State(podcast, episode)
				switch st.State {
				case downloads.StateDownloading:
					line := fmt.Sprintf("downloading %3.0f%%", st.Progress*100)
					if line != lastLine {
						fmt.Fprintln(cmd.OutOrStdout(), line)
						lastLine = line
					}
				case downloads.StateFinishing:
					if lastLine != "finishing" {
						fmt.Fprintln(cmd.OutOrStdout(), "finishing")
						lastLine = "finishing"
					}
				case downloads.StateDownloaded:
					fmt.Fprintf(cmd.OutOrStdout(), "downloaded: %s\n", st.Path)
					if a.cfg.Notifications.Downloads {
						if err := a.notifier.NotifyDownloadComplete(ctx, podcast, episode); err != nil {
							a.logger.Warn("notification failed", "error", err)
						}
					}
					return nil
				case downloads.StateFailed:
					return fmt.Errorf("download failed: %s", st.Reason)
				}
			}
		},
	}
}

func newDeleteCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <podcast> <episode>",
		Short: "Remove a downloaded episode's audio file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cctx.openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.downloads.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted")
			return nil
		},
	}
}
