package sandbox

import "errors"

var (
	// ErrPodmanUnavailable is returned when no usable podman binary was found.
	ErrPodmanUnavailable = errors.New("podman is not available")

	// ErrEmptyCommand is returned for a blank binary or script.
	ErrEmptyCommand = errors.New("empty command")

	// ErrExecutionFailed wraps a podman failure reported in a result.
	ErrExecutionFailed = errors.New("execution failed")

	// ErrUnsupportedLanguage is returned by RunCode for unknown languages.
	ErrUnsupportedLanguage = errors.New("unsupported language")

	// ErrWorkspaceRequired is returned when a language cannot read from stdin
	// and no workspace is mounted.
	ErrWorkspaceRequired = errors.New("a mounted workspace is required")

	// ErrPoolExhausted is returned when the pool is at MaxSessions.
	ErrPoolExhausted = errors.New("session pool exhausted")

	// ErrPoolClosed is returned by Acquire after Close.
	ErrPoolClosed = errors.New("session pool closed")

	// ErrSessionClosed is returned by Exec on a removed session.
	ErrSessionClosed = errors.New("session closed")
)
