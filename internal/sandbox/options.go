package sandbox

import "time"

const (
	DefaultImage     = "docker.io/library/python:3.12-slim"
	DefaultMountPath = "/workspace"

	// StateDir holds config, history and logs inside the workspace. Containers
	// see it read-only even when the workspace itself is writable.
	StateDir = ".autoeng"
)

// Options configures a PodmanSandbox.
type Options struct {
	// PodmanPath is the podman binary. Empty means "podman" on PATH.
	PodmanPath string `json:"podman_path,omitempty"`

	Image string `json:"image"`

	// WorkspaceDir is the host directory mounted at MountPath.
	// Empty means no mount.
	WorkspaceDir      string `json:"workspace_dir,omitempty"`
	MountPath         string `json:"mount_path"`
	ReadOnlyWorkspace bool   `json:"read_only_workspace"`
	ReadOnlyRoot      bool   `json:"read_only_root"`

	// NetworkMode is passed to --network. "none" isolates the container.
	NetworkMode string `json:"network_mode"`

	User string `json:"user,omitempty"`

	// Userns is applied only when a workspace is mounted, so files written
	// by the container keep the caller's uid.
	Userns string `json:"userns,omitempty"`

	DropCapabilities []string `json:"drop_capabilities,omitempty"`
	NoNewPrivileges  bool     `json:"no_new_privileges"`
	TmpfsSize        string   `json:"tmpfs_size,omitempty"`

	MemoryBytes int64   `json:"memory_bytes,omitempty"`
	CPUs        float64 `json:"cpus,omitempty"`
	PidsLimit   int     `json:"pids_limit,omitempty"`

	DefaultTimeout time.Duration `json:"default_timeout"`
	MaxTimeout     time.Duration `json:"max_timeout"`
	MaxOutputBytes int64         `json:"max_output_bytes"`

	// AllowedEnvironment names host variables copied into the container.
	AllowedEnvironment []string `json:"allowed_environment,omitempty"`

	Labels map[string]string `json:"labels,omitempty"`
}

// DefaultOptions returns a locked-down configuration: no network, all
// capabilities dropped, bounded memory, processes and time.
func DefaultOptions() Options {
	return Options{
		Image:            DefaultImage,
		MountPath:        DefaultMountPath,
		NetworkMode:      "none",
		Userns:           "keep-id",
		DropCapabilities: []string{"ALL"},
		NoNewPrivileges:  true,
		MemoryBytes:      512 * 1024 * 1024,
		CPUs:             1,
		PidsLimit:        256,
		DefaultTimeout:   60 * time.Second,
		MaxTimeout:       10 * time.Minute,
		MaxOutputBytes:   10 * 1024 * 1024,
	}
}

// withDefaults fills zero fields from DefaultOptions. A nil DropCapabilities
// drops everything. Booleans and Userns are taken as set.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.DropCapabilities == nil {
		o.DropCapabilities = d.DropCapabilities
	}
	if o.Image == "" {
		o.Image = d.Image
	}
	if o.MountPath == "" {
		o.MountPath = d.MountPath
	}
	if o.NetworkMode == "" {
		o.NetworkMode = d.NetworkMode
	}
	if o.DefaultTimeout <= 0 {
		o.DefaultTimeout = d.DefaultTimeout
	}
	if o.MaxTimeout <= 0 {
		o.MaxTimeout = d.MaxTimeout
	}
	if o.DefaultTimeout > o.MaxTimeout {
		o.DefaultTimeout = o.MaxTimeout
	}
	if o.MaxOutputBytes <= 0 {
		o.MaxOutputBytes = d.MaxOutputBytes
	}
	return o
}

// merge applies sandbox defaults to cmd and returns the effective command.
// The timeout is capped at MaxTimeout.
func (o Options) merge(cmd Command) Command {
	limits := cmd.Limits.clone()

	if limits.TimeoutMs <= 0 {
		limits.TimeoutMs = o.DefaultTimeout.Milliseconds()
	}
	if maxMs := o.MaxTimeout.Milliseconds(); maxMs > 0 && limits.TimeoutMs > maxMs {
		limits.TimeoutMs = maxMs
	}
	if limits.MaxOutputBytes <= 0 {
		limits.MaxOutputBytes = o.MaxOutputBytes
	}
	if limits.MaxMemoryBytes <= 0 {
		limits.MaxMemoryBytes = o.MemoryBytes
	}
	if limits.CPUs <= 0 {
		limits.CPUs = o.CPUs
	}
	if limits.MaxProcesses <= 0 {
		limits.MaxProcesses = o.PidsLimit
	}
	cmd.Limits = limits

	if cmd.WorkingDirectory == "" && o.WorkspaceDir != "" {
		cmd.WorkingDirectory = o.MountPath
	}
	if len(cmd.Arguments) > 0 {
		cmd.Arguments = append([]string(nil), cmd.Arguments...)
	}
	if len(cmd.Environment) > 0 {
		cmd.Environment = append([]string(nil), cmd.Environment...)
	}
	return cmd
}

// RunOption customizes the sandbox built by RunInSandbox.
type RunOption func(*Options)

// WithImage sets the container image.
func WithImage(image string) RunOption {
	return func(o *Options) { o.Image = image }
}

// WithWorkspace mounts dir read-write at the mount path.
func WithWorkspace(dir string) RunOption {
	return func(o *Options) { o.WorkspaceDir = dir }
}

// WithReadOnlyWorkspace mounts dir read-only.
func WithReadOnlyWorkspace(dir string) RunOption {
	return func(o *Options) {
		o.WorkspaceDir = dir
		o.ReadOnlyWorkspace = true
	}
}

// WithTimeout sets the default timeout. It also raises the max when needed.
func WithTimeout(d time.Duration) RunOption {
	return func(o *Options) {
		o.DefaultTimeout = d
		if o.MaxTimeout < d {
			o.MaxTimeout = d
		}
	}
}

// WithNetwork sets the podman network mode ("none", "slirp4netns", "pasta", ...).
func WithNetwork(mode string) RunOption {
	return func(o *Options) { o.NetworkMode = mode }
}

// WithEnv passes the named host variables through to the container.
func WithEnv(names ...string) RunOption {
	return func(o *Options) {
		o.AllowedEnvironment = append(o.AllowedEnvironment, names...)
	}
}

// WithMemory sets the memory limit in bytes.
func WithMemory(bytes int64) RunOption {
	return func(o *Options) { o.MemoryBytes = bytes }
}

// WithCPUs sets the CPU quota.
func WithCPUs(cpus float64) RunOption {
	return func(o *Options) { o.CPUs = cpus }
}

// WithPodmanPath selects a podman binary.
func WithPodmanPath(path string) RunOption {
	return func(o *Options) { o.PodmanPath = path }
}

// WithOptions replaces the whole option set. Later options still apply.
func WithOptions(opts Options) RunOption {
	return func(o *Options) { *o = opts }
}
