package main

import (
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tallyd/tally/internal/client"
	"github.com/tallyd/tally/internal/config"
)

var version = "dev"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tally",
		Short: "Tally - resilient progressive score submission",
		Long: `Tally keeps long-running scored sessions durable.

The serve command runs the progress ledger: an HTTP service that records
step completions idempotently and recomputes running totals from the full
record set. The run command drives a scripted session against a server,
retrying transient failures and resuming interrupted sessions from
whatever the ledger already holds.`,
		Version:      version,
		SilenceUsage: true,
	}

	debugLogging := cmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	cmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		setupLogging(*debugLogging)
	}

	// Add subcommands
	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newRunCommand())
	cmd.AddCommand(newRecordCommand())
	cmd.AddCommand(newProgressCommand())
	cmd.AddCommand(newExportCommand())
	cmd.AddCommand(newEventsCommand())

	return cmd
}

// setupLogging installs the default slog handler: colorized tint on a
// terminal, plain text otherwise.
func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	if term.IsTerminal(int(os.Stderr.Fd())) {
		slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// apiClient builds the retrying HTTP client from config; a non-empty
// baseURL flag wins over the configured one.
func apiClient(cfg *config.Config, baseURL string) (*client.Client, error) {
	if baseURL == "" {
		baseURL = cfg.Client.BaseURL
	}
	return client.New(client.Config{
		BaseURL: baseURL,
		Retry: client.RetryConfig{
			MaxAttempts: cfg.Client.Retry.MaxAttempts,
			BaseDelay:   cfg.Client.Retry.BaseDelay(),
			MaxDelay:    cfg.Client.Retry.MaxDelay(),
			Jitter:      cfg.Client.Retry.Jitter(),
			Timeout:     cfg.Client.Retry.Timeout(),
		},
	})
}

func execute() error {
	rootCmd := newRootCommand()
	return rootCmd.Execute()
}
