package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tallyd/tally/internal/client"
	"github.com/tallyd/tally/internal/config"
	"github.com/tallyd/tally/internal/eventlog"
)

func newRunCommand() *cobra.Command {
	var baseURL string
	var eventsDir string
	var stepDelay time.Duration
	var noEvents bool

	cmd := &cobra.Command{
		Use:   "run <script.yaml>",
		Short: "Submit a scripted session to the ledger",
		Long: `Submit a scripted session to the ledger.

The script declares the session (id, participant, step count, score
budget) and one raw score per step. Steps are submitted in order with
automatic retries for transient failures; once every step is recorded the
session is finalized.

Reruns are safe. The run first asks the server where the session stands
and resumes from the first unrecorded step, so an interrupted or crashed
run picks up where it left off. When the retry budget runs out the command
exits nonzero with the step still pending; run it again once the server is
reachable.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			if eventsDir == "" {
				eventsDir = cfg.EventsDir
			}

			script, err := client.LoadScript(args[0])
			if err != nil {
				return err
			}

			cli, err := apiClient(cfg, baseURL)
			if err != nil {
				return err
			}

			var events eventlog.Logger = eventlog.NopLogger{}
			if !noEvents {
				jl, err := eventlog.NewJSONLogger(eventlog.LogPath(eventsDir, script.Session.ID))
				if err != nil {
					return fmt.Errorf("opening event log: %w", err)
				}
				defer jl.Close() //nolint:errcheck
				events = jl
			}

			driver := client.NewDriver(cli, client.DriverOptions{
				Events:    events,
				StepDelay: stepDelay,
			})

			result, runErr := driver.Run(cmd.Context(), script)
			printRunSummary(cmd.OutOrStdout(), result, runErr)
			return runErr
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "", "Server base URL (default from config: "+config.DefaultBaseURL+")")
	cmd.Flags().StringVar(&eventsDir, "events-dir", "", "Directory for the session event log (default from config: "+config.DefaultEventsDir+")")
	cmd.Flags().DurationVar(&stepDelay, "delay", 0, "Pause between step submissions")
	cmd.Flags().BoolVar(&noEvents, "no-events", false, "Skip writing the event log")

	return cmd
}
