package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tallyd/tally/internal/config"
	"github.com/tallyd/tally/internal/eventlog"
)

func newEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "View submission event logs",
		Long: `View submission event logs.

Event logs are NDJSON files written during runs, one per session. They
record the full lifecycle: session start, step submissions and replays,
delivery failures, and finalization. Interrupted and resumed runs append
to the same file, so a session's whole history reads as one timeline.`,
	}

	cmd.AddCommand(newEventsListCommand())
	cmd.AddCommand(newEventsViewCommand())

	return cmd
}

func newEventsListCommand() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded event logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir == "" {
				cfg, err := config.Load(".")
				if err != nil {
					return err
				}
				dir = cfg.EventsDir
			}
			absDir, err := filepath.Abs(dir)
			if err != nil {
				return err
			}

			files, err := eventlog.ListLogs(absDir)
			if err != nil {
				return fmt.Errorf("listing event logs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(files) == 0 {
				fmt.Fprintln(out, "No event logs found.")
				return nil
			}

			fmt.Fprintf(out, "%-40s %-8s %s\n", "File", "Events", "Modified")
			fmt.Fprintln(out, "─────────────────────────────────────────────────────────────────")
			for _, f := range files {
				fmt.Fprintf(out, "%-40s %-8d %s\n", f.Name, f.NumEvents, f.ModTime.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Directory to search for event logs (default from config: "+config.DefaultEventsDir+")")

	return cmd
}

func newEventsViewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view <event-file>",
		Short: "View a session timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := eventlog.ReadEvents(args[0])
			if err != nil {
				return fmt.Errorf("reading events: %w", err)
			}

			eventlog.RenderTimeline(cmd.OutOrStdout(), events)
			return nil
		},
	}

	return cmd
}
