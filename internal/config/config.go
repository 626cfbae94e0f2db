package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"autoengineer/internal/store"
)

const (
	// DirName is the per-workspace state directory.
	DirName = ".autoeng"

	// FileName is the config file inside DirName.
	FileName = "config.yaml"
)

// Config holds all autoengineer configuration.
type Config struct {
	Sandbox SandboxConfig `yaml:"sandbox"`
	Files   FilesConfig   `yaml:"files"`
	Logging LoggingConfig `yaml:"logging"`
	Store   StoreConfig   `yaml:"store"`
}

// FilesConfig configures the workspace file tools.
type FilesConfig struct {
	MaxReadSize    string `yaml:"max_read_size"`  // e.g. "1MiB"
	MaxWriteSize   string `yaml:"max_write_size"` // e.g. "5MiB"
	AllowHidden    bool   `yaml:"allow_hidden"`
	MaxListEntries int    `yaml:"max_list_entries"`
}

// StoreConfig configures the execution history database.
type StoreConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`      // relative paths resolve against the workspace
	MaxRows   int    `yaml:"max_rows"`  // 0 disables size pruning
	Retention string `yaml:"retention"` // e.g. "720h"; empty disables age pruning
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Sandbox: DefaultSandboxConfig(),
		Files: FilesConfig{
			MaxReadSize:    "1MiB",
			MaxWriteSize:   "5MiB",
			AllowHidden:    true,
			MaxListEntries: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Store: StoreConfig{
			Enabled:   true,
			Path:      filepath.Join(DirName, "tools.db"),
			MaxRows:   10000,
			Retention: "720h",
		},
	}
}

// DefaultPath returns the config path for a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, DirName, FileName)
}

// Load loads configuration from a YAML file. A missing file yields defaults.
// Environment overrides are applied in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AUTOENG_PODMAN_PATH"); v != "" {
		c.Sandbox.PodmanPath = v
	}
	if v := os.Getenv("AUTOENG_SANDBOX_IMAGE"); v != "" {
		c.Sandbox.Image = v
	}
	if v := os.Getenv("AUTOENG_SANDBOX_NETWORK"); v != "" {
		c.Sandbox.Network = v
	}
	if v := os.Getenv("AUTOENG_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("AUTOENG_DEBUG"); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			c.Logging.DebugMode = true
			c.Logging.Level = "debug"
		case "0", "false", "no", "off":
			c.Logging.DebugMode = false
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Sandbox.validate(); err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}

	if _, err := parseSize(c.Files.MaxReadSize); err != nil {
		return fmt.Errorf("files.max_read_size: %w", err)
	}
	if _, err := parseSize(c.Files.MaxWriteSize); err != nil {
		return fmt.Errorf("files.max_write_size: %w", err)
	}
	if c.Files.MaxListEntries < 0 {
		return fmt.Errorf("files.max_list_entries must not be negative")
	}

	switch c.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("invalid logging format: %s (valid: text, json)", c.Logging.Format)
	}

	if c.Store.Enabled && c.Store.Path == "" {
		return fmt.Errorf("store.path is required when the store is enabled")
	}
	if c.Store.MaxRows < 0 {
		return fmt.Errorf("store.max_rows must not be negative")
	}
	if c.Store.Retention != "" {
		if _, err := time.ParseDuration(c.Store.Retention); err != nil {
			return fmt.Errorf("store.retention: %w", err)
		}
	}
	return nil
}

// StorePath returns the store path resolved against workspace.
func (c *Config) StorePath(workspace string) string {
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(workspace, c.Store.Path)
}

// GetRetention returns the history retention, 0 when disabled.
func (c *Config) GetRetention() time.Duration {
	d, err := time.ParseDuration(c.Store.Retention)
	if err != nil {
		return 0
	}
	return d
}

// ToCleanupConfig translates the store section into history cleanup limits.
func (c *Config) ToCleanupConfig() store.CleanupConfig {
	return store.CleanupConfig{
		Retention: c.GetRetention(),
		MaxRows:   c.Store.MaxRows,
	}
}

// FindWorkspaceRoot walks up from dir looking for a .autoeng directory,
// then a .git directory or go.mod. It returns dir when neither is found.
func FindWorkspaceRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for _, marker := range []string{DirName, ".git", "go.mod"} {
		for d := abs; ; {
			if _, err := os.Stat(filepath.Join(d, marker)); err == nil {
				return d, nil
			}
			parent := filepath.Dir(d)
			if parent == d {
				break
			}
			d = parent
		}
	}
	return abs, nil
}
