// Package cli holds the profilectl commands, which drive a session headless.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/anime-shed/line-profile-studio/internal/config"
	"github.com/anime-shed/line-profile-studio/internal/logger"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profilectl",
		Short: "Line-profile annotation client for the profile backend",
		Long: `profilectl uploads a reference image and samples to the profile backend,
selects a line on the reference, mirrors it onto every sample and runs the
per-sample line analysis, printing the resulting session.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// stdout carries the report
			logger.Logger.SetOutput(cmd.ErrOrStderr())
			return config.LoadDotEnv()
		},
	}

	cmd.AddCommand(newAnalyzeCmd())

	return cmd
}
