package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"podbay/internal/metadata"
)

func newStatusCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the library and any in-flight jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cctx.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.store.List(cmd.Context())
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no episodes tracked")
				return nil
			}

			headers := []string{"Podcast", "Episode", "Audio", "Transcript", "Starred", "Position"}
			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.PodcastTitle,
					rec.EpisodeTitle,
					audioCell(rec),
					boolCell(rec.LocalCaptionPath != ""),
					boolCell(rec.Starred),
					positionCell(rec),
				})
			}
			aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
			return nil
		},
	}
}

func audioCell(rec *metadata.Record) string {
	if rec.LocalAudioPath == "" {
		return "-"
	}
	if rec.FileSize > 0 {
		return fmt.Sprintf("yes (%s)", humanSize(rec.FileSize))
	}
	return "yes"
}

func boolCell(v bool) string {
	if v {
		return "yes"
	}
	return "-"
}

func positionCell(rec *metadata.Record) string {
	if rec.Completed {
		return "done"
	}
	if rec.PlaybackPosition <= 0 {
		return "-"
	}
	return (time.Duration(rec.PlaybackPosition) * time.Second).Truncate(time.Second).String()
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
