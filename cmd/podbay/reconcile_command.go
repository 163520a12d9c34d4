package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"podbay/internal/reconcile"
)

func newReconcileCommand(cctx *commandContext) *cobra.Command {
	var cleanStaging bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Reconcile the metadata store with the files on disk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := cctx.openApp(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer a.Close()

			known, err := knownEpisodes(cmd.Context(), a)
			if err != nil {
				return err
			}
			res, err := a.reconcile.Sweep(cmd.Context(), known)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"examined %d records: %d created, %d audio linked, %d audio cleared, %d captions linked, %d captions cleared\n",
				res.RecordsExamined, res.RecordsCreated, res.AudioLinked, res.AudioCleared,
				res.CaptionLinked, res.CaptionCleared)

			if cleanStaging {
				maxAge := time.Duration(a.cfg.Reconcile.StagingMaxAgeHr) * time.Hour
				removed, err := a.assets.CleanStaleStaging(maxAge)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d stale staging files\n", len(removed))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&cleanStaging, "clean-staging", false, "Also remove stale staging files")
	return cmd
}

// knownEpisodes derives the sweep's episode knowledge from the store itself.
// An embedding client would pass its feed model here instead.
func knownEpisodes(ctx context.Context, a *app) ([]reconcile.Episode, error) {
	records, err := a.store.List(ctx)
	if err != nil {
		return nil, err
	}
	known := make([]reconcile.Episode, 0, len(records))
	for _, rec := range records {
		known = append(known, reconcile.Episode{
			PodcastTitle: rec.PodcastTitle,
			EpisodeTitle: rec.EpisodeTitle,
			AudioURL:     rec.AudioURL,
			ArtworkURL:   rec.ArtworkURL,
			PublishedAt:  rec.PublishedAt,
		})
	}
	return known, nil
}
