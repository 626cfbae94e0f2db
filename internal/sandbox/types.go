package sandbox

import (
	"strings"
	"time"
)

// Command describes one invocation inside a container.
type Command struct {
	// Binary is the executable to run inside the container.
	Binary string `json:"binary"`

	// Arguments are passed to Binary unchanged.
	Arguments []string `json:"arguments,omitempty"`

	// WorkingDirectory is a path inside the container.
	// Defaults to the workspace mount path when a workspace is mounted.
	WorkingDirectory string `json:"working_directory,omitempty"`

	// Environment entries in KEY=VALUE form.
	Environment []string `json:"environment,omitempty"`

	// Stdin is written to the process. Setting it adds -i to the podman args.
	Stdin string `json:"stdin,omitempty"`

	// Limits overrides the sandbox defaults for this command.
	Limits *ResourceLimits `json:"limits,omitempty"`

	// SessionID and RequestID are attached as container labels.
	SessionID string `json:"session_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// CommandString returns a shell-like rendering for logs.
func (c Command) CommandString() string {
	if len(c.Arguments) == 0 {
		return c.Binary
	}
	return c.Binary + " " + strings.Join(c.Arguments, " ")
}

// ResourceLimits caps what a single command may consume.
// Zero values mean "use the sandbox default".
type ResourceLimits struct {
	TimeoutMs      int64   `json:"timeout_ms,omitempty"`
	MaxMemoryBytes int64   `json:"max_memory_bytes,omitempty"`
	CPUs           float64 `json:"cpus,omitempty"`
	MaxOutputBytes int64   `json:"max_output_bytes,omitempty"`
	MaxProcesses   int     `json:"max_processes,omitempty"`

	// NetworkAllowed is tri-state: nil keeps the sandbox network mode.
	NetworkAllowed *bool `json:"network_allowed,omitempty"`
}

// Timeout returns TimeoutMs as a duration.
func (l *ResourceLimits) Timeout() time.Duration {
	if l == nil {
		return 0
	}
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

func (l *ResourceLimits) clone() *ResourceLimits {
	if l == nil {
		return &ResourceLimits{}
	}
	c := *l
	if l.NetworkAllowed != nil {
		v := *l.NetworkAllowed
		c.NetworkAllowed = &v
	}
	return &c
}

// ExecutionResult is the outcome of a command.
//
// Success reports whether the sandbox infrastructure worked. A command that
// ran and exited non-zero is still a successful execution; check ExitCode.
type ExecutionResult struct {
	Success  bool   `json:"success"`
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	Combined string `json:"combined"`

	Duration   time.Duration `json:"duration"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`

	Killed     bool   `json:"killed,omitempty"`
	KillReason string `json:"kill_reason,omitempty"`

	Truncated      bool  `json:"truncated,omitempty"`
	TruncatedBytes int64 `json:"truncated_bytes,omitempty"`

	// Error holds the infrastructure failure, if any.
	Error string `json:"error,omitempty"`

	ContainerName string   `json:"container_name,omitempty"`
	Command       *Command `json:"command,omitempty"`
}

// IsError reports an infrastructure failure or a killed process.
func (r *ExecutionResult) IsError() bool {
	return !r.Success || r.Killed
}

// IsNonZeroExit reports a command that ran but failed.
func (r *ExecutionResult) IsNonZeroExit() bool {
	return r.Success && !r.Killed && r.ExitCode != 0
}

// Output returns combined output, falling back to stdout then stderr.
func (r *ExecutionResult) Output() string {
	if r.Combined != "" {
		return r.Combined
	}
	if r.Stdout != "" {
		return r.Stdout
	}
	return r.Stderr
}

// Capabilities describes what the sandbox can enforce.
type Capabilities struct {
	Name                     string        `json:"name"`
	Platform                 string        `json:"platform"`
	PodmanVersion            string        `json:"podman_version,omitempty"`
	Image                    string        `json:"image"`
	Available                bool          `json:"available"`
	SupportsNetworkIsolation bool          `json:"supports_network_isolation"`
	SupportsMemoryLimit      bool          `json:"supports_memory_limit"`
	SupportsCPULimit         bool          `json:"supports_cpu_limit"`
	SupportsPidsLimit        bool          `json:"supports_pids_limit"`
	DefaultTimeout           time.Duration `json:"default_timeout"`
	MaxTimeout               time.Duration `json:"max_timeout"`
}

// AuditEventType classifies audit events.
type AuditEventType string

const (
	AuditEventStart    AuditEventType = "start"
	AuditEventComplete AuditEventType = "complete"
	AuditEventKilled   AuditEventType = "killed"
	AuditEventError    AuditEventType = "error"
	AuditEventBlocked  AuditEventType = "blocked"
)

// AuditEvent is emitted around every execution.
type AuditEvent struct {
	Type          AuditEventType   `json:"type"`
	Timestamp     time.Time        `json:"timestamp"`
	Command       Command          `json:"command"`
	Result        *ExecutionResult `json:"result,omitempty"`
	ContainerName string           `json:"container_name,omitempty"`
	ExecutorName  string           `json:"executor_name"`
	Error         string           `json:"error,omitempty"`
}
