package config

import (
	"fmt"
	"time"

	"autoengineer/internal/sandbox"

	"github.com/dustin/go-humanize"
)

// SandboxConfig configures the Podman sandbox.
type SandboxConfig struct {
	PodmanPath        string            `yaml:"podman_path"`
	Image             string            `yaml:"image"`
	MountPath         string            `yaml:"mount_path"`
	ReadOnlyWorkspace bool              `yaml:"read_only_workspace"`
	ReadOnlyRoot      bool              `yaml:"read_only_root"`
	Network           string            `yaml:"network"` // none, slirp4netns, pasta, host
	User              string            `yaml:"user"`
	Userns            string            `yaml:"userns"`
	DropCapabilities  []string          `yaml:"drop_capabilities"`
	NoNewPrivileges   bool              `yaml:"no_new_privileges"`
	TmpfsSize         string            `yaml:"tmpfs_size"`
	Memory            string            `yaml:"memory"` // e.g. "512MiB"
	CPUs              float64           `yaml:"cpus"`
	PidsLimit         int               `yaml:"pids_limit"`
	DefaultTimeout    string            `yaml:"default_timeout"`
	MaxTimeout        string            `yaml:"max_timeout"`
	MaxOutput         string            `yaml:"max_output"`
	AllowedEnv        []string          `yaml:"allowed_env"`
	Labels            map[string]string `yaml:"labels,omitempty"`
	Pool              PoolConfig        `yaml:"pool"`
}

// PoolConfig configures persistent sessions.
type PoolConfig struct {
	MaxSessions int    `yaml:"max_sessions"`
	IdleTimeout string `yaml:"idle_timeout"`
}

// ValidNetworks lists the accepted podman network modes.
var ValidNetworks = []string{"none", "slirp4netns", "pasta", "host", "private"}

// DefaultSandboxConfig mirrors sandbox.DefaultOptions.
func DefaultSandboxConfig() SandboxConfig {
	d := sandbox.DefaultOptions()
	return SandboxConfig{
		Image:            d.Image,
		MountPath:        d.MountPath,
		Network:          d.NetworkMode,
		Userns:           d.Userns,
		DropCapabilities: d.DropCapabilities,
		NoNewPrivileges:  d.NoNewPrivileges,
		Memory:           "512MiB",
		CPUs:             d.CPUs,
		PidsLimit:        d.PidsLimit,
		DefaultTimeout:   d.DefaultTimeout.String(),
		MaxTimeout:       d.MaxTimeout.String(),
		MaxOutput:        "10MiB",
		Pool: PoolConfig{
			MaxSessions: 4,
			IdleTimeout: "15m",
		},
	}
}

func (s SandboxConfig) validate() error {
	if s.Image == "" {
		return fmt.Errorf("image is required")
	}

	valid := false
	for _, n := range ValidNetworks {
		if s.Network == n {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid network: %s (valid: %v)", s.Network, ValidNetworks)
	}

	def, err := parseDuration(s.DefaultTimeout)
	if err != nil {
		return fmt.Errorf("default_timeout: %w", err)
	}
	maxT, err := parseDuration(s.MaxTimeout)
	if err != nil {
		return fmt.Errorf("max_timeout: %w", err)
	}
	if def > 0 && maxT > 0 && def > maxT {
		return fmt.Errorf("default_timeout %s exceeds max_timeout %s", def, maxT)
	}
	if _, err := parseDuration(s.Pool.IdleTimeout); err != nil {
		return fmt.Errorf("pool.idle_timeout: %w", err)
	}

	if _, err := parseSize(s.Memory); err != nil {
		return fmt.Errorf("memory: %w", err)
	}
	if _, err := parseSize(s.MaxOutput); err != nil {
		return fmt.Errorf("max_output: %w", err)
	}
	if s.CPUs < 0 {
		return fmt.Errorf("cpus must not be negative")
	}
	if s.PidsLimit < 0 {
		return fmt.Errorf("pids_limit must not be negative")
	}
	return nil
}

// ToSandboxOptions translates the sandbox section into sandbox.Options with
// workspace mounted. Invalid sizes and durations fall back to the defaults;
// call Validate first to surface them.
func (c *Config) ToSandboxOptions(workspace string) sandbox.Options {
	s := c.Sandbox
	d := sandbox.DefaultOptions()

	opts := sandbox.Options{
		PodmanPath:         s.PodmanPath,
		Image:              s.Image,
		WorkspaceDir:       workspace,
		MountPath:          s.MountPath,
		ReadOnlyWorkspace:  s.ReadOnlyWorkspace,
		ReadOnlyRoot:       s.ReadOnlyRoot,
		NetworkMode:        s.Network,
		User:               s.User,
		Userns:             s.Userns,
		DropCapabilities:   append([]string(nil), s.DropCapabilities...),
		NoNewPrivileges:    s.NoNewPrivileges,
		TmpfsSize:          s.TmpfsSize,
		CPUs:               s.CPUs,
		PidsLimit:          s.PidsLimit,
		AllowedEnvironment: append([]string(nil), s.AllowedEnv...),
		Labels:             s.Labels,
		MemoryBytes:        d.MemoryBytes,
		MaxOutputBytes:     d.MaxOutputBytes,
		DefaultTimeout:     d.DefaultTimeout,
		MaxTimeout:         d.MaxTimeout,
	}

	if n, err := parseSize(s.Memory); err == nil && n > 0 {
		opts.MemoryBytes = n
	}
	if n, err := parseSize(s.MaxOutput); err == nil && n > 0 {
		opts.MaxOutputBytes = n
	}
	if dur, err := parseDuration(s.DefaultTimeout); err == nil && dur > 0 {
		opts.DefaultTimeout = dur
	}
	if dur, err := parseDuration(s.MaxTimeout); err == nil && dur > 0 {
		opts.MaxTimeout = dur
	}
	return opts
}

// ToPoolConfig translates the pool section.
func (c *Config) ToPoolConfig() sandbox.PoolConfig {
	cfg := sandbox.DefaultPoolConfig()
	if c.Sandbox.Pool.MaxSessions > 0 {
		cfg.MaxSessions = c.Sandbox.Pool.MaxSessions
	}
	if d, err := parseDuration(c.Sandbox.Pool.IdleTimeout); err == nil && d > 0 {
		cfg.IdleTimeout = d
	}
	return cfg
}

// parseSize accepts humanized sizes ("512MiB", "1 GB", "4096"). Empty is 0.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	return int64(n), nil
}

// parseDuration is time.ParseDuration with empty meaning 0.
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
