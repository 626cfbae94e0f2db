package sandbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"autoengineer/internal/logging"
)

// SessionState is the lifecycle state of a persistent container.
type SessionState string

const (
	SessionCreating SessionState = "creating"
	SessionRunning  SessionState = "running"
	SessionStopped  SessionState = "stopped"
	SessionRemoved  SessionState = "removed"
	SessionError    SessionState = "error"
)

// Session is a long-lived container that keeps filesystem state between
// commands. Commands run through podman exec.
type Session struct {
	mu         sync.Mutex
	sb         *PodmanSandbox
	key        string
	id         string
	name       string
	state      SessionState
	createdAt  time.Time
	lastUsedAt time.Time
	execCount  int
}

// SessionInfo is a snapshot of a session.
type SessionInfo struct {
	Key        string       `json:"key"`
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	State      SessionState `json:"state"`
	CreatedAt  time.Time    `json:"created_at"`
	LastUsedAt time.Time    `json:"last_used_at"`
	ExecCount  int          `json:"exec_count"`
}

// StartSession creates and starts a persistent container for key.
func (s *PodmanSandbox) StartSession(ctx context.Context, key string) (*Session, error) {
	if !s.available {
		return nil, ErrPodmanUnavailable
	}

	name := namePrefix + "session-" + shortID()
	sess := &Session{
		sb:        s,
		key:       key,
		name:      name,
		state:     SessionCreating,
		createdAt: time.Now(),
	}

	if err := s.prepareStateDir(); err != nil {
		return nil, err
	}

	base := s.opts.merge(Command{SessionID: key})
	args := []string{"create", "--name", name}
	args = append(args, s.isolationArgs(base)...)
	args = append(args, s.opts.Image, "sleep", "infinity")

	logging.Sandbox("creating session %s for %q", name, key)
	logging.SandboxDebug("podman args: %v", args)

	id, err := s.podman(ctx, args...)
	if err != nil {
		sess.state = SessionError
		return nil, fmt.Errorf("create session container: %w", err)
	}
	sess.id = id

	if _, err := s.podman(ctx, "start", id); err != nil {
		sess.state = SessionError
		s.forceRemove(id)
		return nil, fmt.Errorf("start session container: %w", err)
	}

	sess.state = SessionRunning
	sess.lastUsedAt = time.Now()
	logging.Sandbox("session %s running (%s)", name, shortContainerID(id))
	return sess, nil
}

// Exec runs cmd inside the session container.
func (ss *Session) Exec(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	ss.mu.Lock()
	if ss.state != SessionRunning {
		ss.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrSessionClosed, ss.name, ss.state)
	}
	ss.execCount++
	ss.lastUsedAt = time.Now()
	ss.mu.Unlock()

	if err := ss.sb.Validate(cmd); err != nil {
		return nil, err
	}

	cmd.SessionID = ss.key
	cmd = ss.sb.opts.merge(cmd)

	args := []string{"exec"}
	if cmd.Stdin != "" {
		args = append(args, "-i")
	}
	if cmd.WorkingDirectory != "" {
		args = append(args, "-w", cmd.WorkingDirectory)
	}
	for _, kv := range cmd.Environment {
		args = append(args, "-e", kv)
	}
	args = append(args, ss.id, cmd.Binary)
	args = append(args, cmd.Arguments...)

	logging.Sandbox("exec in %s: %s", ss.name, cmd.CommandString())
	logging.SandboxDebug("podman args: %v", args)

	return ss.sb.invoke(ctx, cmd, ss.name, args, ss.discard), nil
}

// discard removes the container after a killed exec. Killing the podman exec
// client leaves the process running inside, so the whole session goes; the
// pool starts a fresh one on the next Acquire.
func (ss *Session) discard() {
	ss.mu.Lock()
	ss.state = SessionError
	ss.mu.Unlock()

	logging.SandboxWarn("discarding session %s after killed exec", ss.name)
	ss.sb.forceRemove(ss.id)
}

// Execute is Exec; it lets a session stand in wherever a sandbox executor is expected.
func (ss *Session) Execute(ctx context.Context, cmd Command) (*ExecutionResult, error) {
	return ss.Exec(ctx, cmd)
}

// Options returns the options of the sandbox that started the session.
func (ss *Session) Options() Options {
	return ss.sb.opts
}

// HealthCheck reports whether the container is still running.
func (ss *Session) HealthCheck(ctx context.Context) bool {
	out, err := ss.sb.podman(ctx, "inspect", "--format", "{{.State.Running}}", ss.id)
	if err != nil || out != "true" {
		ss.mu.Lock()
		if ss.state == SessionRunning {
			ss.state = SessionStopped
		}
		ss.mu.Unlock()
		return false
	}
	return true
}

// Close removes the container. Closing twice is a no-op.
func (ss *Session) Close(ctx context.Context) error {
	ss.mu.Lock()
	if ss.state == SessionRemoved {
		ss.mu.Unlock()
		return nil
	}
	ss.mu.Unlock()

	if _, err := ss.sb.podman(ctx, "rm", "--force", "--ignore", ss.id); err != nil {
		ss.mu.Lock()
		ss.state = SessionError
		ss.mu.Unlock()
		return fmt.Errorf("remove session %s: %w", ss.name, err)
	}

	ss.mu.Lock()
	ss.state = SessionRemoved
	ss.mu.Unlock()
	logging.Sandbox("session %s removed", ss.name)
	return nil
}

// Touch marks the session as used now.
func (ss *Session) Touch() {
	ss.mu.Lock()
	ss.lastUsedAt = time.Now()
	ss.mu.Unlock()
}

// Info returns a snapshot of the session.
func (ss *Session) Info() SessionInfo {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return SessionInfo{
		Key:        ss.key,
		ID:         ss.id,
		Name:       ss.name,
		State:      ss.state,
		CreatedAt:  ss.createdAt,
		LastUsedAt: ss.lastUsedAt,
		ExecCount:  ss.execCount,
	}
}

func (ss *Session) idleSince(now time.Time) time.Duration {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return now.Sub(ss.lastUsedAt)
}

func shortContainerID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
