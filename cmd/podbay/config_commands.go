package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"podbay/internal/config"
)

func newConfigCommand(cctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage podbay configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newConfigInitCommand(cctx))
	cmd.AddCommand(newConfigShowCommand(cctx))
	return cmd
}

func newConfigInitCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init [path]",
		Short: "Write a sample configuration file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			} else if cctx.configFlag != nil {
				path = strings.TrimSpace(*cctx.configFlag)
			}
			if path == "" {
				var err error
				path, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}
			expanded, err := config.ExpandPath(path)
			if err != nil {
				return err
			}
			if err := config.CreateSample(expanded); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote sample configuration to %s\n", expanded)
			return nil
		},
	}
}

func newConfigShowCommand(cctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if cctx.configFlag != nil {
				path = strings.TrimSpace(*cctx.configFlag)
			}
			cfg, resolved, exists, err := config.Load(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if exists {
				fmt.Fprintf(out, "config file: %s\n", resolved)
			} else {
				fmt.Fprintf(out, "config file: %s (not found, using defaults)\n", resolved)
			}
			fmt.Fprintf(out, "audio_dir:    %s\n", cfg.Paths.AudioDir)
			fmt.Fprintf(out, "caption_dir:  %s\n", cfg.Paths.CaptionDir)
			fmt.Fprintf(out, "staging_dir:  %s\n", cfg.Paths.StagingDir)
			fmt.Fprintf(out, "model_dir:    %s\n", cfg.Paths.ModelDir)
			fmt.Fprintf(out, "database:     %s\n", cfg.Paths.Database)
			fmt.Fprintf(out, "workers:      %d\n", cfg.Transcription.Workers)
			fmt.Fprintf(out, "schedule:     %s\n", cfg.Reconcile.Schedule)
			return nil
		},
	}
}
