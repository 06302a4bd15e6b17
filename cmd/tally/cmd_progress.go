package main

import (
	"github.com/spf13/cobra"

	"github.com/tallyd/tally/internal/config"
)

func newProgressCommand() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "progress <session-id>",
		Short: "Show a session's recorded progress",
		Long: `Show a session's recorded progress.

Fetches the full recoverable state from the server: the session row plus
every step record, the running total, and the next step a resuming client
would work on.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}

			cli, err := apiClient(cfg, baseURL)
			if err != nil {
				return err
			}

			prog, err := cli.FetchProgress(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			printProgress(cmd.OutOrStdout(), prog)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server base URL (default from config: "+config.DefaultBaseURL+")")

	return cmd
}
