// Package config provides the Config struct and loader for .tally.yaml
// project-level configuration files. Values resolve in three layers:
// hard-coded defaults, then the config file, then TALLY_* environment
// variables (a .env file is honored when present).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values for project configuration. New() and the CLI flag help
// strings read these; nothing else should restate them.
const (
	DefaultListen   = "127.0.0.1:8787"
	DefaultDatabase = "tally.db"
	DefaultBaseURL  = "http://127.0.0.1:8787"

	DefaultEventsDir  = "events"
	DefaultArchiveDir = "archives"

	DefaultBatchChunkSize = 25
	DefaultBatchMaxItems  = 500

	DefaultRetryMaxAttempts = 4
	DefaultRetryBaseDelayMS = 200
	DefaultRetryMaxDelayMS  = 5000
	DefaultRetryJitterMS    = 100
	DefaultRetryTimeoutMS   = 10000
)

// BatchConfig tunes the batch import executor.
type BatchConfig struct {
	ChunkSize         int `yaml:"chunk_size,omitempty"`
	MaxItems          int `yaml:"max_items,omitempty"`
	InterChunkDelayMS int `yaml:"inter_chunk_delay_ms,omitempty"`
	ItemTimeoutMS     int `yaml:"item_timeout_ms,omitempty"`
}

// InterChunkDelay returns the configured delay as a duration.
func (b BatchConfig) InterChunkDelay() time.Duration {
	return time.Duration(b.InterChunkDelayMS) * time.Millisecond
}

// ItemTimeout returns the configured per-item timeout as a duration.
func (b BatchConfig) ItemTimeout() time.Duration {
	return time.Duration(b.ItemTimeoutMS) * time.Millisecond
}

// ServerConfig holds tally serve settings.
type ServerConfig struct {
	Listen          string      `yaml:"listen,omitempty"`
	Database        string      `yaml:"database,omitempty"`
	AllowedOrigins  []string    `yaml:"allowed_origins,omitempty"`
	AbandonAfterSec int         `yaml:"abandon_after_sec,omitempty"`
	Batch           BatchConfig `yaml:"batch,omitempty"`
}

// AbandonAfter returns the stale-session cutoff, zero when sweeping is
// disabled.
func (s ServerConfig) AbandonAfter() time.Duration {
	return time.Duration(s.AbandonAfterSec) * time.Second
}

// RetryConfig holds the client retry budget.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts,omitempty"`
	BaseDelayMS int `yaml:"base_delay_ms,omitempty"`
	MaxDelayMS  int `yaml:"max_delay_ms,omitempty"`
	JitterMS    int `yaml:"jitter_ms,omitempty"`
	TimeoutMS   int `yaml:"timeout_ms,omitempty"`
}

// BaseDelay returns the first backoff interval as a duration.
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the backoff ceiling as a duration.
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// Jitter returns the backoff jitter as a duration.
func (r RetryConfig) Jitter() time.Duration {
	return time.Duration(r.JitterMS) * time.Millisecond
}

// Timeout returns the per-attempt timeout as a duration.
func (r RetryConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// ClientConfig holds settings for commands that talk to a server.
type ClientConfig struct {
	BaseURL string      `yaml:"base_url,omitempty"`
	Retry   RetryConfig `yaml:"retry,omitempty"`
}

// Config is the top-level configuration loaded from .tally.yaml.
type Config struct {
	Server     ServerConfig `yaml:"server,omitempty"`
	Client     ClientConfig `yaml:"client,omitempty"`
	EventsDir  string       `yaml:"events_dir,omitempty"`
	ArchiveDir string       `yaml:"archive_dir,omitempty"`
}

// New returns a Config with all hard-coded defaults populated.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:   DefaultListen,
			Database: DefaultDatabase,
			Batch: BatchConfig{
				ChunkSize: DefaultBatchChunkSize,
				MaxItems:  DefaultBatchMaxItems,
			},
		},
		Client: ClientConfig{
			BaseURL: DefaultBaseURL,
			Retry: RetryConfig{
				MaxAttempts: DefaultRetryMaxAttempts,
				BaseDelayMS: DefaultRetryBaseDelayMS,
				MaxDelayMS:  DefaultRetryMaxDelayMS,
				JitterMS:    DefaultRetryJitterMS,
				TimeoutMS:   DefaultRetryTimeoutMS,
			},
		},
		EventsDir:  DefaultEventsDir,
		ArchiveDir: DefaultArchiveDir,
	}
}

// Load finds .tally.yaml by walking up from startDir (max 10 levels),
// unmarshals it, fills in missing fields with defaults and applies TALLY_*
// environment overrides. If no config file is found, defaults plus the
// environment are returned with a nil error. Real I/O errors (e.g.
// permission denied) are returned to the caller.
func Load(startDir string) (*Config, error) {
	godotenv.Load() //nolint:errcheck

	cfg := New()

	data, err := findConfigFile(startDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading .tally.yaml: %w", err)
		}
	} else {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing .tally.yaml: %w", err)
		}
		mergeConfig(cfg, &fileCfg)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values no layer should produce. Zeroes mean "default"
// and are filled before this runs, so only out-of-range values fail.
func (c *Config) Validate() error {
	if c.Server.AbandonAfterSec < 0 {
		return fmt.Errorf("server.abandon_after_sec must not be negative, got %d", c.Server.AbandonAfterSec)
	}
	b := c.Server.Batch
	if b.ChunkSize < 0 || b.MaxItems < 0 || b.InterChunkDelayMS < 0 || b.ItemTimeoutMS < 0 {
		return errors.New("server.batch values must not be negative")
	}
	r := c.Client.Retry
	if r.MaxAttempts < 1 {
		return fmt.Errorf("client.retry.max_attempts must be at least 1, got %d", r.MaxAttempts)
	}
	if r.BaseDelayMS < 0 || r.MaxDelayMS < 0 || r.JitterMS < 0 || r.TimeoutMS < 0 {
		return errors.New("client.retry delays must not be negative")
	}
	return nil
}

// findConfigFile walks up from dir looking for .tally.yaml (max 10 levels).
// Returns os.ErrNotExist if no config file is found. Propagates real I/O
// errors (e.g. permission denied) instead of silently swallowing them.
func findConfigFile(dir string) ([]byte, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving path %q: %w", dir, err)
	}
	dir = absDir

	for i := 0; i < 10; i++ {
		p := filepath.Join(dir, ".tally.yaml")
		data, err := os.ReadFile(p)
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading %q: %w", p, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return nil, os.ErrNotExist
}

// mergeConfig overlays non-zero values from src onto dst.
func mergeConfig(dst, src *Config) {
	if src.Server.Listen != "" {
		dst.Server.Listen = src.Server.Listen
	}
	if src.Server.Database != "" {
		dst.Server.Database = src.Server.Database
	}
	if len(src.Server.AllowedOrigins) > 0 {
		dst.Server.AllowedOrigins = src.Server.AllowedOrigins
	}
	if src.Server.AbandonAfterSec != 0 {
		dst.Server.AbandonAfterSec = src.Server.AbandonAfterSec
	}

	if src.Server.Batch.ChunkSize != 0 {
		dst.Server.Batch.ChunkSize = src.Server.Batch.ChunkSize
	}
	if src.Server.Batch.MaxItems != 0 {
		dst.Server.Batch.MaxItems = src.Server.Batch.MaxItems
	}
	if src.Server.Batch.InterChunkDelayMS != 0 {
		dst.Server.Batch.InterChunkDelayMS = src.Server.Batch.InterChunkDelayMS
	}
	if src.Server.Batch.ItemTimeoutMS != 0 {
		dst.Server.Batch.ItemTimeoutMS = src.Server.Batch.ItemTimeoutMS
	}

	if src.Client.BaseURL != "" {
		dst.Client.BaseURL = src.Client.BaseURL
	}
	if src.Client.Retry.MaxAttempts != 0 {
		dst.Client.Retry.MaxAttempts = src.Client.Retry.MaxAttempts
	}
	if src.Client.Retry.BaseDelayMS != 0 {
		dst.Client.Retry.BaseDelayMS = src.Client.Retry.BaseDelayMS
	}
	if src.Client.Retry.MaxDelayMS != 0 {
		dst.Client.Retry.MaxDelayMS = src.Client.Retry.MaxDelayMS
	}
	if src.Client.Retry.JitterMS != 0 {
		dst.Client.Retry.JitterMS = src.Client.Retry.JitterMS
	}
	if src.Client.Retry.TimeoutMS != 0 {
		dst.Client.Retry.TimeoutMS = src.Client.Retry.TimeoutMS
	}

	if src.EventsDir != "" {
		dst.EventsDir = src.EventsDir
	}
	if src.ArchiveDir != "" {
		dst.ArchiveDir = src.ArchiveDir
	}
}

// applyEnv overlays TALLY_* environment variables onto cfg. Unset and
// empty variables leave the current value alone.
func applyEnv(cfg *Config) {
	setString(&cfg.Server.Listen, "TALLY_LISTEN")
	setString(&cfg.Server.Database, "TALLY_DATABASE")
	setInt(&cfg.Server.AbandonAfterSec, "TALLY_ABANDON_AFTER_SEC")
	setString(&cfg.Client.BaseURL, "TALLY_BASE_URL")
	setInt(&cfg.Client.Retry.MaxAttempts, "TALLY_RETRY_MAX_ATTEMPTS")
	setString(&cfg.EventsDir, "TALLY_EVENTS_DIR")
	setString(&cfg.ArchiveDir, "TALLY_ARCHIVE_DIR")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
