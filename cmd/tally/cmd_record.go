package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tallyd/tally/internal/client"
	"github.com/tallyd/tally/internal/config"
	"github.com/tallyd/tally/internal/eventlog"
)

func newRecordCommand() *cobra.Command {
	var baseURL string
	var eventsDir string
	var noEvents bool

	cmd := &cobra.Command{
		Use:   "record <session-id> <step-index> <raw-score>",
		Short: "Record a single step completion",
		Long: `Record a single step completion outside a scripted run.

Recording an index that already has a record replaces it wholesale and the
running total is recomputed, which makes this the tool for score
corrections: the latest write wins, nothing is double counted.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			stepIndex, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("step index must be an integer, got %q", args[1])
			}
			rawScore, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("raw score must be a number, got %q", args[2])
			}

			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			if eventsDir == "" {
				eventsDir = cfg.EventsDir
			}

			cli, err := apiClient(cfg, baseURL)
			if err != nil {
				return err
			}

			var events eventlog.Logger = eventlog.NopLogger{}
			if !noEvents {
				jl, err := eventlog.NewJSONLogger(eventlog.LogPath(eventsDir, sessionID))
				if err != nil {
					return fmt.Errorf("opening event log: %w", err)
				}
				defer jl.Close() //nolint:errcheck
				events = jl
			}

			driver := client.NewDriver(cli, client.DriverOptions{Events: events})
			rec, replaced, err := driver.RecordOne(cmd.Context(), sessionID, stepIndex, rawScore)
			if err != nil {
				return err
			}

			printStepRecord(cmd.OutOrStdout(), rec, replaced)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server base URL (default from config: "+config.DefaultBaseURL+")")
	cmd.Flags().StringVar(&eventsDir, "events-dir", "", "Directory for the session event log (default from config: "+config.DefaultEventsDir+")")
	cmd.Flags().BoolVar(&noEvents, "no-events", false, "Skip writing the event log")

	return cmd
}
