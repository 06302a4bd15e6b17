package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tallyd/tally/internal/archive"
	"github.com/tallyd/tally/internal/config"
	"github.com/tallyd/tally/internal/ledger"
	"github.com/tallyd/tally/internal/models"
)

func newExportCommand() *cobra.Command {
	var dbPath string
	var outDir string

	cmd := &cobra.Command{
		Use:   "export [session-id ...]",
		Short: "Archive submitted sessions as compressed NDJSON",
		Long: `Archive submitted sessions as compressed NDJSON.

Reads the ledger database directly, so the server does not need to be
running. Each archive holds the session row followed by its step records
in index order, zstd-compressed, with a manifest sidecar carrying the
digest of the compressed bytes.

Without arguments every submitted session is exported; pass session ids to
export a subset.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			if dbPath == "" {
				dbPath = cfg.Server.Database
			}
			if outDir == "" {
				outDir = cfg.ArchiveDir
			}

			store, err := ledger.NewSQLiteStore(dbPath)
			if err != nil {
				return fmt.Errorf("opening ledger database: %w", err)
			}
			defer store.Close() //nolint:errcheck

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			ids := args
			if len(ids) == 0 {
				sessions, err := store.ListSessions(ctx, models.SessionSubmitted)
				if err != nil {
					return fmt.Errorf("listing submitted sessions: %w", err)
				}
				for _, s := range sessions {
					ids = append(ids, s.ID)
				}
			}
			if len(ids) == 0 {
				fmt.Fprintln(out, "No submitted sessions to export.")
				return nil
			}

			w := archive.NewWriter(outDir)
			for _, id := range ids {
				prog, err := store.FetchProgress(ctx, id)
				if err != nil {
					return fmt.Errorf("fetching session %s: %w", id, err)
				}
				manifest, err := w.Export(prog)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Exported %s: %d records, total %.2f, %s (%d bytes)\n",
					manifest.SessionID, manifest.Records, manifest.RunningTotal, manifest.File, manifest.SizeBytes)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default from config: "+config.DefaultDatabase+")")
	cmd.Flags().StringVar(&outDir, "out", "", "Archive output directory (default from config: "+config.DefaultArchiveDir+")")

	return cmd
}
