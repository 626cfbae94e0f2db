package shell

import (
	"context"
	"fmt"
	"path"

	"autoengineer/internal/sandbox"
	"autoengineer/internal/tools/files"
)

// Executor runs a command in a sandbox. *sandbox.PodmanSandbox implements it.
type Executor interface {
	Execute(ctx context.Context, cmd sandbox.Command) (*sandbox.ExecutionResult, error)
}

// CodeRunner runs a source snippet. *sandbox.PodmanSandbox implements it.
type CodeRunner interface {
	RunCode(ctx context.Context, lang, source string) (*sandbox.ExecutionResult, error)
}

// Runner is both; it is what RegisterAll needs.
type Runner interface {
	Executor
	CodeRunner
}

type optionsProvider interface {
	Options() sandbox.Options
}

// mountPath returns where the workspace appears inside the container.
func mountPath(exec Executor) string {
	if p, ok := exec.(optionsProvider); ok {
		if mp := p.Options().MountPath; mp != "" {
			return mp
		}
	}
	return sandbox.DefaultMountPath
}

// containerDir maps a workspace-relative directory to its path inside the
// container. The directory must stay within ws. Empty means the sandbox default.
func containerDir(exec Executor, ws *files.Workspace, dir string) (string, error) {
	if dir == "" {
		return "", nil
	}
	if ws == nil {
		if !path.IsAbs(dir) {
			return "", fmt.Errorf("working_dir %q must be absolute without a workspace", dir)
		}
		return path.Clean(dir), nil
	}
	host, err := ws.Resolve(dir)
	if err != nil {
		return "", err
	}
	return path.Join(mountPath(exec), ws.Rel(host)), nil
}

func timeoutLimits(seconds int) *sandbox.ResourceLimits {
	limits := &sandbox.ResourceLimits{}
	if seconds > 0 {
		limits.TimeoutMs = int64(seconds) * 1000
	}
	return limits
}
