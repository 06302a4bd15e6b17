package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tallyd/tally/internal/batch"
	"github.com/tallyd/tally/internal/config"
	"github.com/tallyd/tally/internal/ledger"
	"github.com/tallyd/tally/internal/webapi"
	"github.com/tallyd/tally/internal/webserver"
)

func newServeCommand() *cobra.Command {
	var listen string
	var dbPath string
	var inMemory bool
	var abandonAfter time.Duration
	var origins []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the progress ledger server",
		Long: `Start the progress ledger server.

The server records step completions as idempotent upserts keyed by
(session, step index), recomputes running totals from the full record set
on every write, and serves progress snapshots for client recovery.
Sessions live in a SQLite database unless --memory is given.

With --abandon-after, a janitor goroutine periodically marks in-progress
sessions with no recent activity as abandoned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(".")
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			if dbPath != "" {
				cfg.Server.Database = dbPath
			}
			if abandonAfter > 0 {
				cfg.Server.AbandonAfterSec = int(abandonAfter / time.Second)
			}
			if len(origins) > 0 {
				cfg.Server.AllowedOrigins = origins
			}

			logger := slog.Default()

			var store ledger.Store
			if inMemory {
				logger.Warn("using in-memory store, sessions will not survive a restart")
				store = ledger.NewMemoryStore()
			} else {
				s, err := ledger.NewSQLiteStore(cfg.Server.Database)
				if err != nil {
					return fmt.Errorf("opening ledger database: %w", err)
				}
				logger.Info("ledger database open", "path", cfg.Server.Database)
				store = s
			}
			defer store.Close() //nolint:errcheck

			handlers := webapi.NewHandlers(store, webapi.Options{
				Batch: batch.Config{
					ChunkSize:       cfg.Server.Batch.ChunkSize,
					MaxItems:        cfg.Server.Batch.MaxItems,
					InterChunkDelay: cfg.Server.Batch.InterChunkDelay(),
					ItemTimeout:     cfg.Server.Batch.ItemTimeout(),
					Logger:          logger,
				},
				Logger: logger,
			})

			srv := webserver.New(webserver.Config{
				Addr:           cfg.Server.Listen,
				AllowedOrigins: cfg.Server.AllowedOrigins,
				Logger:         logger,
			}, handlers)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("tally server listening", "addr", cfg.Server.Listen)
				return srv.ListenAndServe(ctx)
			})
			if cutoff := cfg.Server.AbandonAfter(); cutoff > 0 {
				g.Go(func() error {
					runAbandonSweep(ctx, store, cutoff, logger)
					return nil
				})
			}
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Address to listen on (default from config: "+config.DefaultListen+")")
	cmd.Flags().StringVar(&dbPath, "db", "", "SQLite database path (default from config: "+config.DefaultDatabase+")")
	cmd.Flags().BoolVar(&inMemory, "memory", false, "Keep the ledger in memory instead of SQLite")
	cmd.Flags().DurationVar(&abandonAfter, "abandon-after", 0, "Abandon in-progress sessions idle longer than this (0 disables the janitor)")
	cmd.Flags().StringArrayVar(&origins, "origin", nil, "Allowed CORS origin (can be repeated)")

	return cmd
}

// runAbandonSweep marks stale in-progress sessions abandoned until ctx is
// canceled.
func runAbandonSweep(ctx context.Context, store ledger.Store, cutoff time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(sweepInterval(cutoff))
	defer ticker.Stop()

	logger.Info("abandon janitor running", "cutoff", cutoff)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.AbandonStale(ctx, time.Now().Add(-cutoff))
			if err != nil {
				logger.Error("abandon sweep failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("abandoned stale sessions", "count", n)
			}
		}
	}
}

// sweepInterval derives the janitor cadence from the cutoff: a quarter of
// it, kept between 1 second and 5 minutes.
func sweepInterval(cutoff time.Duration) time.Duration {
	interval := cutoff / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > 5*time.Minute {
		interval = 5 * time.Minute
	}
	return interval
}
