// Package config provides configuration loading for rewind.
//
// Configuration is read from a YAML file with environment variable
// overrides and hardcoded defaults, in that precedence order.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds the complete rewind configuration.
type Config struct {
	Workspace     WorkspaceConfig     `koanf:"workspace"`
	Session       SessionConfig       `koanf:"session"`
	Remote        RemoteConfig        `koanf:"remote"`
	Logging       LoggingConfig       `koanf:"logging"`
	Observability ObservabilityConfig `koanf:"observability"`
}

// WorkspaceConfig controls which files the scanner picks up.
type WorkspaceConfig struct {
	// Root is the workspace directory. Empty means the current
	// directory, resolved by the CLI.
	Root string `koanf:"root"`

	// Extensions is the file-extension allowlist for scanning.
	Extensions []string `koanf:"extensions"`

	// MaxFileSizeKB caps scanned file size; larger files are skipped.
	MaxFileSizeKB int `koanf:"max_file_size_kb"`

	// Excludes are extra glob patterns on top of the workspace's
	// ignore files.
	Excludes []string `koanf:"excludes"`
}

// SessionConfig controls the call protocol surface.
type SessionConfig struct {
	// StatePath overrides where session state is persisted. Empty
	// means <root>/.rewind/state.json.
	StatePath string `koanf:"state_path"`

	// AutoWatch enables the filesystem watcher that tracks files
	// changed while a call is pending.
	AutoWatch bool `koanf:"auto_watch"`
}

// RemoteConfig configures the GitHub tree adapter.
type RemoteConfig struct {
	Owner string `koanf:"owner"`
	Repo  string `koanf:"repo"`

	// Ref is the branch to operate on; empty uses the repository's
	// default branch.
	Ref string `koanf:"ref"`

	// Token authenticates API calls. Prefer REMOTE_TOKEN over the
	// config file.
	Token Secret `koanf:"token"`

	CacheTTL          time.Duration `koanf:"cache_ttl"`
	CacheMaxEntries   int           `koanf:"cache_max_entries"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	Burst             int           `koanf:"burst"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// ObservabilityConfig holds OpenTelemetry configuration.
type ObservabilityConfig struct {
	EnableTelemetry bool   `koanf:"enable_telemetry"`
	ServiceName     string `koanf:"service_name"`

	// OTLPEndpoint is the OTLP/HTTP collector address, e.g.
	// "localhost:4318". Empty disables export even when telemetry is
	// enabled.
	OTLPEndpoint string `koanf:"otlp_endpoint"`
}

// defaultExtensions is the scan allowlist used when the config names
// none.
var defaultExtensions = []string{
	".go", ".py", ".js", ".ts", ".tsx", ".jsx",
	".md", ".txt", ".json", ".yaml", ".yml", ".toml",
	".html", ".css", ".sql", ".sh", ".rs", ".java", ".rb",
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if len(cfg.Workspace.Extensions) == 0 {
		cfg.Workspace.Extensions = append([]string(nil), defaultExtensions...)
	}
	if cfg.Workspace.MaxFileSizeKB == 0 {
		cfg.Workspace.MaxFileSizeKB = 1024
	}

	if cfg.Remote.CacheTTL == 0 {
		cfg.Remote.CacheTTL = 5 * time.Minute
	}
	if cfg.Remote.CacheMaxEntries == 0 {
		cfg.Remote.CacheMaxEntries = 500
	}
	if cfg.Remote.RequestsPerSecond == 0 {
		cfg.Remote.RequestsPerSecond = 5
	}
	if cfg.Remote.Burst == 0 {
		cfg.Remote.Burst = 10
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}

	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "rewind"
	}
}

// Validate checks the configuration for contradictions before use.
func (c *Config) Validate() error {
	if c.Workspace.MaxFileSizeKB < 0 {
		return fmt.Errorf("workspace max_file_size_kb cannot be negative: %d", c.Workspace.MaxFileSizeKB)
	}
	for _, ext := range c.Workspace.Extensions {
		if ext == "" {
			return errors.New("workspace extensions cannot contain empty entries")
		}
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	// A remote half-configured is a misconfiguration, not a disabled
	// remote.
	if (c.Remote.Owner == "") != (c.Remote.Repo == "") {
		return errors.New("remote owner and repo must be set together")
	}
	if c.Remote.Owner != "" && !c.Remote.Token.IsSet() {
		return errors.New("remote token required when remote owner/repo are set")
	}
	if c.Remote.RequestsPerSecond < 0 {
		return fmt.Errorf("remote requests_per_second cannot be negative: %v", c.Remote.RequestsPerSecond)
	}

	if c.Observability.EnableTelemetry && c.Observability.ServiceName == "" {
		return errors.New("service name required when telemetry is enabled")
	}

	return nil
}

// RemoteEnabled reports whether a remote repository is configured.
func (c *Config) RemoteEnabled() bool {
	return c.Remote.Owner != "" && c.Remote.Repo != ""
}
