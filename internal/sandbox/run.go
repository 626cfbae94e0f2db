package sandbox

import (
	"context"
	"errors"
	"strings"
)

// RunInSandbox runs command with sh -c in a one-shot sandbox built from
// DefaultOptions and opts.
//
// A command that runs and exits non-zero returns a nil error; inspect the
// result's ExitCode. A podman failure returns the result and an error.
func RunInSandbox(ctx context.Context, command string, opts ...RunOption) (*ExecutionResult, error) {
	if strings.TrimSpace(command) == "" {
		return nil, ErrEmptyCommand
	}

	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	sb := NewPodmanSandbox(o)
	if !sb.IsAvailable() {
		return nil, ErrPodmanUnavailable
	}

	res, err := sb.Run(ctx, command)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return res, errors.New(res.Error)
	}
	return res, nil
}
