package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"autoengineer/internal/logging"

	"github.com/google/uuid"
)

// Swapped in tests for a helper process that impersonates podman.
var (
	execCommandContext = exec.CommandContext
	lookPath           = exec.LookPath
)

const (
	executorName   = "podman"
	managedLabel   = "autoeng.managed"
	namePrefix     = "autoeng-"
	cleanupTimeout = 10 * time.Second

	// podman reserves 125 for its own failures; 126/127 belong to the command.
	podmanErrorExit = 125
)

// PodmanSandbox runs commands in throwaway rootless Podman containers.
type PodmanSandbox struct {
	mu            sync.RWMutex
	opts          Options
	podmanPath    string
	version       string
	available     bool
	auditCallback func(AuditEvent)
}

// NewPodmanSandbox resolves the podman binary and reads its version. A
// missing podman is recorded, not returned; check IsAvailable.
//
// Empty fields fall back to DefaultOptions, but NoNewPrivileges, the
// read-only flags and Userns are used exactly as given. Start from
// DefaultOptions and override what you need.
func NewPodmanSandbox(opts Options) *PodmanSandbox {
	s := &PodmanSandbox{opts: opts.withDefaults()}
	s.detectPodman()
	return s
}

func (s *PodmanSandbox) detectPodman() {
	bin := s.opts.PodmanPath
	if bin == "" {
		bin = "podman"
	}

	path, err := lookPath(bin)
	if err != nil {
		logging.SandboxWarn("podman not found (%s): %v", bin, err)
		return
	}
	s.podmanPath = path

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out, err := execCommandContext(ctx, path, "version", "--format", "{{.Client.Version}}").Output()
	if err != nil {
		logging.SandboxWarn("podman at %s is not responsive: %v", path, err)
		return
	}

	s.version = strings.TrimSpace(string(out))
	s.available = true
	logging.Sandbox("podman %s available at %s", s.version, path)
}

// IsAvailable returns whether podman answered the version query.
func (s *PodmanSandbox) IsAvailable() bool {
	return s.available
}

// Version returns the podman client version, empty when unavailable.
func (s *PodmanSandbox) Version() string {
	return s.version
}

// Options returns the effective options.
func (s *PodmanSandbox) Options() Options {
	return s.opts
}

// SetAuditCallback sets the callback for audit events.
func (s *PodmanSandbox) SetAuditCallback(callback func(AuditEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auditCallback = callback
}

func (s *PodmanSandbox) emitAudit(event AuditEvent) {
	s.mu.RLock()
	callback := s.auditCallback
	s.mu.RUnlock()

	if callback != nil {
		event.Timestamp = time.Now()
		event.ExecutorName = executorName
		callback(event)
	}
}

// Capabilities returns what this sandbox enforces.
func (s *PodmanSandbox) Capabilities() Capabilities {
	return Capabilities{
		Name:                     executorName,
		Platform:                 runtime.GOOS,
		PodmanVersion:            s.version,
		Image:                    s.opts.Image,
		Available:                s.available,
		SupportsNetworkIsolation: true,
		SupportsMemoryLimit:      true,
		SupportsCPULimit:         true,
		SupportsPidsLimit:        true,
		DefaultTimeout:           s.opts.DefaultTimeout,
		MaxTimeout:               s.opts.MaxTimeout,
	}
}

// Validate checks if a command can be executed.
func (s *PodmanSandbox) Validate(cmd Command) error {
	if !s.available {
		return ErrPodmanUnavailable
	}
	if strings.TrimSpace(cmd.Binary) == "" {
		return ErrEmptyCommand
	}
	return nil
}

// Execute runs cmd in a fresh container that is removed on exit.
//
// A non-zero exit is reported through the result, not the error. The error
// is non-nil only when the command was rejected before podman ran.
func (s *PodmanSandbox) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	timer := logging.StartTimer(logging.CategorySandbox, "podman run")
	defer timer.Stop()

	if err := s.Validate(cmd); err != nil {
		s.emitAudit(AuditEvent{Type: AuditEventBlocked, Command: cmd, Error: err.Error()})
		return nil, err
	}

	if err := s.prepareStateDir(); err != nil {
		return nil, err
	}

	cmd = s.opts.merge(cmd)
	name := containerName()
	args := s.buildRunArgs(cmd, name)

	logging.Sandbox("run %s: %s", name, cmd.CommandString())
	logging.SandboxDebug("podman args: %v", args)

	return s.invoke(ctx, cmd, name, args, func() { s.forceRemove(name) }), nil
}

// prepareStateDir creates the workspace state directory so its read-only
// mount has a source.
func (s *PodmanSandbox) prepareStateDir() error {
	if s.opts.WorkspaceDir == "" || s.opts.ReadOnlyWorkspace {
		return nil
	}
	dir := filepath.Join(s.opts.WorkspaceDir, StateDir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	return nil
}

// Run executes script with sh -c.
func (s *PodmanSandbox) Run(ctx context.Context, script string) (*ExecutionResult, error) {
	if strings.TrimSpace(script) == "" {
		return nil, ErrEmptyCommand
	}
	return s.Execute(ctx, Command{Binary: "sh", Arguments: []string{"-c", script}})
}

// invoke runs podman with args and classifies the outcome. onKill runs after
// a timeout or cancellation, on its own context.
func (s *PodmanSandbox) invoke(ctx context.Context, cmd Command, name string, args []string, onKill func()) *ExecutionResult {
	timeout := cmd.Limits.Timeout()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execCmd := execCommandContext(execCtx, s.podmanPath, args...)
	execCmd.WaitDelay = 2 * time.Second
	if cmd.Stdin != "" {
		execCmd.Stdin = strings.NewReader(cmd.Stdin)
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	stdoutLimited := newLimitedWriter(&stdoutBuf, cmd.Limits.MaxOutputBytes)
	stderrLimited := newLimitedWriter(&stderrBuf, cmd.Limits.MaxOutputBytes)
	execCmd.Stdout = stdoutLimited
	execCmd.Stderr = stderrLimited

	result := &ExecutionResult{
		ExitCode:      -1,
		ContainerName: name,
		Command:       &cmd,
	}

	s.emitAudit(AuditEvent{Type: AuditEventStart, Command: cmd, ContainerName: name})

	result.StartedAt = time.Now()
	err := execCmd.Run()
	result.FinishedAt = time.Now()
	result.Duration = result.FinishedAt.Sub(result.StartedAt)

	result.Stdout = stdoutBuf.String()
	result.Stderr = stderrBuf.String()
	result.Combined = result.Stdout
	if result.Stderr != "" {
		if result.Combined != "" {
			result.Combined += "\n"
		}
		result.Combined += result.Stderr
	}

	if stdoutLimited.truncated || stderrLimited.truncated {
		result.Truncated = true
		result.TruncatedBytes = stdoutLimited.discarded + stderrLimited.discarded
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.Success = true
		result.ExitCode = 0

	case errors.Is(execCtx.Err(), context.DeadlineExceeded):
		result.Success = true
		result.Killed = true
		result.KillReason = fmt.Sprintf("timeout after %s", timeout)

	case errors.Is(execCtx.Err(), context.Canceled):
		result.Success = true
		result.Killed = true
		result.KillReason = "context canceled"

	case errors.As(err, &exitErr) && exitErr.ExitCode() == podmanErrorExit:
		result.ExitCode = podmanErrorExit
		result.Error = fmt.Sprintf("podman failed: %s", strings.TrimSpace(result.Stderr))

	case errors.As(err, &exitErr):
		result.Success = true
		result.ExitCode = exitErr.ExitCode()

	default:
		result.Error = err.Error()
	}

	switch {
	case result.Killed:
		logging.SandboxWarn("%s killed: %s", name, result.KillReason)
		if onKill != nil {
			onKill()
		}
		s.emitAudit(AuditEvent{Type: AuditEventKilled, Command: cmd, Result: result, ContainerName: name})
	case !result.Success:
		logging.SandboxError("%s failed: %s", name, result.Error)
		s.emitAudit(AuditEvent{Type: AuditEventError, Command: cmd, Result: result, ContainerName: name, Error: result.Error})
	default:
		logging.SandboxDebug("%s exited %d in %v", name, result.ExitCode, result.Duration)
		s.emitAudit(AuditEvent{Type: AuditEventComplete, Command: cmd, Result: result, ContainerName: name})
	}

	return result
}

// forceRemove deletes a container left behind by a killed podman client.
func (s *PodmanSandbox) forceRemove(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if _, err := s.podman(ctx, "rm", "--force", "--ignore", name); err != nil {
		logging.SandboxWarn("cleanup of %s failed: %v", name, err)
	}
}

// podman runs a short podman subcommand and returns its trimmed stdout.
func (s *PodmanSandbox) podman(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	c := execCommandContext(ctx, s.podmanPath, args...)
	c.Stdout = &stdout
	c.Stderr = &stderr
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("podman %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// buildRunArgs constructs the podman run arguments for cmd.
func (s *PodmanSandbox) buildRunArgs(cmd Command, name string) []string {
	args := []string{"run", "--rm", "--name", name}
	args = append(args, s.isolationArgs(cmd)...)

	if cmd.Stdin != "" {
		args = append(args, "-i")
	}

	args = append(args, s.opts.Image, cmd.Binary)
	return append(args, cmd.Arguments...)
}

// isolationArgs are shared by run and create.
func (s *PodmanSandbox) isolationArgs(cmd Command) []string {
	o := s.opts
	var args []string

	args = append(args, "--label", managedLabel+"=true")
	if cmd.SessionID != "" {
		args = append(args, "--label", "autoeng.session="+cmd.SessionID)
	}
	if cmd.RequestID != "" {
		args = append(args, "--label", "autoeng.request="+cmd.RequestID)
	}
	keys := make([]string, 0, len(o.Labels))
	for k := range o.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "--label", k+"="+o.Labels[k])
	}

	args = append(args, "--network", networkMode(o.NetworkMode, cmd.Limits))

	if o.ReadOnlyRoot {
		args = append(args, "--read-only")
	}
	if o.ReadOnlyRoot || o.TmpfsSize != "" {
		size := o.TmpfsSize
		if size == "" {
			size = "64m"
		}
		args = append(args, "--tmpfs", "/tmp:rw,size="+size)
	}
	if o.NoNewPrivileges {
		args = append(args, "--security-opt", "no-new-privileges")
	}
	for _, c := range o.DropCapabilities {
		args = append(args, "--cap-drop", c)
	}
	if o.User != "" {
		args = append(args, "--user", o.User)
	}

	if o.WorkspaceDir != "" {
		if o.Userns != "" {
			args = append(args, "--userns", o.Userns)
		}
		mode := "rw"
		if o.ReadOnlyWorkspace {
			mode = "ro"
		}
		args = append(args, "-v", fmt.Sprintf("%s:%s:%s,Z", o.WorkspaceDir, o.MountPath, mode))
		if !o.ReadOnlyWorkspace {
			args = append(args, "-v", fmt.Sprintf("%s:%s:ro,Z",
				filepath.Join(o.WorkspaceDir, StateDir), path.Join(o.MountPath, StateDir)))
		}
	}
	if cmd.WorkingDirectory != "" {
		args = append(args, "-w", cmd.WorkingDirectory)
	}

	for _, name := range o.AllowedEnvironment {
		if v, ok := os.LookupEnv(name); ok {
			args = append(args, "-e", name+"="+v)
		}
	}
	for _, kv := range cmd.Environment {
		args = append(args, "-e", kv)
	}

	if l := cmd.Limits; l != nil {
		if l.MaxMemoryBytes > 0 {
			args = append(args, "--memory", strconv.FormatInt(l.MaxMemoryBytes, 10))
		}
		if l.CPUs > 0 {
			args = append(args, "--cpus", strconv.FormatFloat(l.CPUs, 'f', 2, 64))
		}
		if l.MaxProcesses > 0 {
			args = append(args, "--pids-limit", strconv.Itoa(l.MaxProcesses))
		}
	}
	return args
}

// networkMode lets a command opt in or out of networking. Opting in from
// "none" selects slirp4netns, the rootless default.
func networkMode(mode string, limits *ResourceLimits) string {
	if limits == nil || limits.NetworkAllowed == nil {
		return mode
	}
	if !*limits.NetworkAllowed {
		return "none"
	}
	if mode == "none" || mode == "" {
		return "slirp4netns"
	}
	return mode
}

func containerName() string {
	return namePrefix + shortID()
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// PullImage pulls image, or the configured image when empty.
func (s *PodmanSandbox) PullImage(ctx context.Context, image string) error {
	if !s.available {
		return ErrPodmanUnavailable
	}
	if image == "" {
		image = s.opts.Image
	}
	logging.Sandbox("pulling %s", image)
	_, err := s.podman(ctx, "pull", "--quiet", image)
	return err
}

// ImageExists checks the local image store.
func (s *PodmanSandbox) ImageExists(ctx context.Context, image string) bool {
	if !s.available {
		return false
	}
	if image == "" {
		image = s.opts.Image
	}
	_, err := s.podman(ctx, "image", "exists", image)
	return err == nil
}

// EnsureImage pulls the configured image if it is not present.
func (s *PodmanSandbox) EnsureImage(ctx context.Context) error {
	if s.ImageExists(ctx, s.opts.Image) {
		return nil
	}
	return s.PullImage(ctx, s.opts.Image)
}
