package shell

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"autoengineer/internal/logging"
	"autoengineer/internal/sandbox"
	"autoengineer/internal/tools"
	"autoengineer/internal/tools/files"
)

// RunInSandboxTool returns a tool for executing shell commands in a sandbox
// container. working_dir is resolved against ws when ws is non-nil.
func RunInSandboxTool(exec Executor, ws *files.Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "run_in_sandbox",
		Description: "Execute a shell command inside an isolated container and return its output",
		Category:    tools.CategorySandbox,
		Priority:    70,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeRunInSandbox(ctx, exec, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"command"},
			Properties: map[string]tools.Property{
				"command": {
					Type:        "string",
					Description: "The command to execute with sh -c",
				},
				"working_dir": {
					Type:        "string",
					Description: "Working directory, relative to the workspace root",
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Timeout in seconds (default: 60)",
					Default:     60,
				},
				"env": {
					Type:        "object",
					Description: "Additional environment variables",
				},
				"allow_network": {
					Type:        "boolean",
					Description: "Give the container network access",
				},
			},
		},
	}
}

func executeRunInSandbox(ctx context.Context, exec Executor, ws *files.Workspace, args map[string]any) (string, error) {
	command, err := tools.StringArg(args, "command", "")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(command) == "" {
		return "", fmt.Errorf("%w: command", tools.ErrMissingRequiredArg)
	}
	workingDir, err := tools.StringArg(args, "working_dir", "")
	if err != nil {
		return "", err
	}
	timeout, err := tools.IntArg(args, "timeout_seconds", 0)
	if err != nil {
		return "", err
	}
	env, err := tools.StringMapArg(args, "env")
	if err != nil {
		return "", err
	}

	dir, err := containerDir(exec, ws, workingDir)
	if err != nil {
		return "", err
	}

	limits := timeoutLimits(timeout)
	if _, ok := args["allow_network"]; ok {
		allow, err := tools.BoolArg(args, "allow_network", false)
		if err != nil {
			return "", err
		}
		limits.NetworkAllowed = &allow
	}

	cmd := sandbox.Command{
		Binary:           "sh",
		Arguments:        []string{"-c", command},
		WorkingDirectory: dir,
		Environment:      envList(env),
		Limits:           limits,
		SessionID:        tools.SessionFromContext(ctx),
	}

	logging.SandboxDebug("run_in_sandbox: cmd=%s, dir=%s, timeout=%ds", command, dir, timeout)
	res, err := exec.Execute(ctx, cmd)
	if err == nil {
		logging.Sandbox("run_in_sandbox completed: %s (exit=%d, %dms)", command, res.ExitCode, res.Duration.Milliseconds())
	}
	return finish(res, err)
}

// RunCodeTool returns a tool for executing a code snippet in a sandbox.
func RunCodeTool(runner CodeRunner) *tools.Tool {
	langs := sandbox.Languages()
	enum := make([]any, len(langs))
	for i, l := range langs {
		enum[i] = l
	}

	return &tools.Tool{
		Name:        "run_code",
		Description: "Execute a code snippet inside an isolated container and return its output",
		Category:    tools.CategorySandbox,
		Priority:    65,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeRunCode(ctx, runner, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"language", "code"},
			Properties: map[string]tools.Property{
				"language": {
					Type:        "string",
					Description: "Language of the snippet",
					Enum:        enum,
				},
				"code": {
					Type:        "string",
					Description: "Source code to run",
				},
			},
		},
	}
}

func executeRunCode(ctx context.Context, runner CodeRunner, args map[string]any) (string, error) {
	lang, err := tools.StringArg(args, "language", "")
	if err != nil {
		return "", err
	}
	code, err := tools.StringArg(args, "code", "")
	if err != nil {
		return "", err
	}
	if lang == "" {
		return "", fmt.Errorf("%w: language", tools.ErrMissingRequiredArg)
	}

	logging.SandboxDebug("run_code: lang=%s, code_len=%d", lang, len(code))
	return finish(runner.RunCode(ctx, lang, code))
}

// envList renders env as sorted KEY=VALUE entries.
func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
