package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNew_ReturnsAllDefaults(t *testing.T) {
	cfg := New()

	assertEqual(t, "Server.Listen", DefaultListen, cfg.Server.Listen)
	assertEqual(t, "Server.Database", DefaultDatabase, cfg.Server.Database)
	assertEqualInt(t, "Server.AbandonAfterSec", 0, cfg.Server.AbandonAfterSec)
	assertEqualInt(t, "Server.Batch.ChunkSize", DefaultBatchChunkSize, cfg.Server.Batch.ChunkSize)
	assertEqualInt(t, "Server.Batch.MaxItems", DefaultBatchMaxItems, cfg.Server.Batch.MaxItems)

	assertEqual(t, "Client.BaseURL", DefaultBaseURL, cfg.Client.BaseURL)
	assertEqualInt(t, "Client.Retry.MaxAttempts", DefaultRetryMaxAttempts, cfg.Client.Retry.MaxAttempts)
	assertEqualInt(t, "Client.Retry.BaseDelayMS", DefaultRetryBaseDelayMS, cfg.Client.Retry.BaseDelayMS)

	assertEqual(t, "EventsDir", DefaultEventsDir, cfg.EventsDir)
	assertEqual(t, "ArchiveDir", DefaultArchiveDir, cfg.ArchiveDir)
}

func TestLoad_FullConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".tally.yaml", `
server:
  listen: "0.0.0.0:9090"
  database: "/var/lib/tally/ledger.db"
  allowed_origins:
    - "https://dashboard.example.com"
  abandon_after_sec: 3600
  batch:
    chunk_size: 10
    max_items: 200
    inter_chunk_delay_ms: 50
    item_timeout_ms: 2000
client:
  base_url: "https://tally.example.com"
  retry:
    max_attempts: 6
    base_delay_ms: 100
    max_delay_ms: 2000
    jitter_ms: 25
    timeout_ms: 5000
events_dir: "/var/log/tally/events"
archive_dir: "/var/lib/tally/archives"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	assertEqual(t, "Server.Listen", "0.0.0.0:9090", cfg.Server.Listen)
	assertEqual(t, "Server.Database", "/var/lib/tally/ledger.db", cfg.Server.Database)
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://dashboard.example.com" {
		t.Errorf("Server.AllowedOrigins = %v, want one dashboard origin", cfg.Server.AllowedOrigins)
	}
	assertEqualInt(t, "Server.AbandonAfterSec", 3600, cfg.Server.AbandonAfterSec)
	assertEqualInt(t, "Server.Batch.ChunkSize", 10, cfg.Server.Batch.ChunkSize)
	assertEqualInt(t, "Server.Batch.MaxItems", 200, cfg.Server.Batch.MaxItems)
	assertEqualInt(t, "Server.Batch.InterChunkDelayMS", 50, cfg.Server.Batch.InterChunkDelayMS)
	assertEqualInt(t, "Server.Batch.ItemTimeoutMS", 2000, cfg.Server.Batch.ItemTimeoutMS)

	assertEqual(t, "Client.BaseURL", "https://tally.example.com", cfg.Client.BaseURL)
	assertEqualInt(t, "Client.Retry.MaxAttempts", 6, cfg.Client.Retry.MaxAttempts)
	assertEqualInt(t, "Client.Retry.BaseDelayMS", 100, cfg.Client.Retry.BaseDelayMS)
	assertEqualInt(t, "Client.Retry.MaxDelayMS", 2000, cfg.Client.Retry.MaxDelayMS)
	assertEqualInt(t, "Client.Retry.JitterMS", 25, cfg.Client.Retry.JitterMS)
	assertEqualInt(t, "Client.Retry.TimeoutMS", 5000, cfg.Client.Retry.TimeoutMS)

	assertEqual(t, "EventsDir", "/var/log/tally/events", cfg.EventsDir)
	assertEqual(t, "ArchiveDir", "/var/lib/tally/archives", cfg.ArchiveDir)
}

func TestLoad_PartialConfig(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".tally.yaml", `
server:
  listen: "0.0.0.0:9090"
`)

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	// Overridden
	assertEqual(t, "Server.Listen", "0.0.0.0:9090", cfg.Server.Listen)

	// Defaults preserved
	assertEqual(t, "Server.Database", DefaultDatabase, cfg.Server.Database)
	assertEqualInt(t, "Server.Batch.ChunkSize", DefaultBatchChunkSize, cfg.Server.Batch.ChunkSize)
	assertEqual(t, "Client.BaseURL", DefaultBaseURL, cfg.Client.BaseURL)
	assertEqualInt(t, "Client.Retry.MaxAttempts", DefaultRetryMaxAttempts, cfg.Client.Retry.MaxAttempts)
}

func TestLoad_MissingFile_ReturnsDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	defaults := New()
	assertEqual(t, "Server.Listen", defaults.Server.Listen, cfg.Server.Listen)
	assertEqual(t, "Client.BaseURL", defaults.Client.BaseURL, cfg.Client.BaseURL)
	assertEqual(t, "EventsDir", defaults.EventsDir, cfg.EventsDir)
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".tally.yaml", `
server:
  listen: [not valid yaml
    this is broken
`)

	if _, err := Load(dir); err == nil {
		t.Fatal("Load() should return error for invalid YAML")
	}
}

func TestLoad_WalksUpDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".tally.yaml", `
server:
  database: "found-it.db"
`)

	child := filepath.Join(root, "a", "b", "c")
	if err := os.MkdirAll(child, 0o755); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(child)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	assertEqual(t, "Server.Database", "found-it.db", cfg.Server.Database)
	assertEqual(t, "Server.Listen", DefaultListen, cfg.Server.Listen)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".tally.yaml", `
server:
  listen: "0.0.0.0:9090"
client:
  retry:
    max_attempts: 6
`)
	t.Setenv("TALLY_LISTEN", "0.0.0.0:7000")
	t.Setenv("TALLY_RETRY_MAX_ATTEMPTS", "2")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	assertEqual(t, "Server.Listen", "0.0.0.0:7000", cfg.Server.Listen)
	assertEqualInt(t, "Client.Retry.MaxAttempts", 2, cfg.Client.Retry.MaxAttempts)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"negative abandon cutoff", "server:\n  abandon_after_sec: -5\n"},
		{"negative chunk size", "server:\n  batch:\n    chunk_size: -1\n"},
		{"negative retry delay", "client:\n  retry:\n    base_delay_ms: -100\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, ".tally.yaml", tt.yaml)
			if _, err := Load(dir); err == nil {
				t.Fatal("Load() should reject the config")
			}
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	b := BatchConfig{InterChunkDelayMS: 50, ItemTimeoutMS: 2000}
	if b.InterChunkDelay() != 50*time.Millisecond {
		t.Errorf("InterChunkDelay() = %v, want 50ms", b.InterChunkDelay())
	}
	if b.ItemTimeout() != 2*time.Second {
		t.Errorf("ItemTimeout() = %v, want 2s", b.ItemTimeout())
	}

	r := RetryConfig{BaseDelayMS: 100, MaxDelayMS: 2000, JitterMS: 25, TimeoutMS: 5000}
	if r.BaseDelay() != 100*time.Millisecond {
		t.Errorf("BaseDelay() = %v, want 100ms", r.BaseDelay())
	}
	if r.MaxDelay() != 2*time.Second {
		t.Errorf("MaxDelay() = %v, want 2s", r.MaxDelay())
	}
	if r.Jitter() != 25*time.Millisecond {
		t.Errorf("Jitter() = %v, want 25ms", r.Jitter())
	}
	if r.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v, want 5s", r.Timeout())
	}

	s := ServerConfig{AbandonAfterSec: 3600}
	if s.AbandonAfter() != time.Hour {
		t.Errorf("AbandonAfter() = %v, want 1h", s.AbandonAfter())
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", field, got, want)
	}
}

func assertEqualInt(t *testing.T, field string, want, got int) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %d, want %d", field, got, want)
	}
}
