package shell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autoengineer/internal/logging"
	"autoengineer/internal/sandbox"
	"autoengineer/internal/tools"
	"autoengineer/internal/tools/files"
)

type marker struct {
	file    string
	command string
}

// Checked in order; the first marker present wins.
var buildMarkers = []marker{
	{"go.mod", "go build ./..."},
	{"Cargo.toml", "cargo build"},
	{"package.json", "npm run build"},
	{"Makefile", "make"},
	{"build.gradle", "./gradlew build"},
	{"pom.xml", "mvn package"},
	{"CMakeLists.txt", "cmake --build ."},
	{"setup.py", "python setup.py build"},
	{"pyproject.toml", "python -m build"},
}

var testMarkers = []marker{
	{"go.mod", "go test ./..."},
	{"Cargo.toml", "cargo test"},
	{"package.json", "npm test"},
	{"pytest.ini", "pytest"},
	{"setup.py", "python -m pytest"},
	{"pyproject.toml", "pytest"},
	{"build.gradle", "./gradlew test"},
	{"pom.xml", "mvn test"},
	{"Makefile", "make test"},
}

// RunBuildTool returns a tool for running project builds in a sandbox.
func RunBuildTool(exec Executor, ws *files.Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "run_build",
		Description: "Run the project build command inside an isolated container",
		Category:    tools.CategorySandbox,
		Priority:    75,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeRunBuild(ctx, exec, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{},
			Properties: map[string]tools.Property{
				"working_dir": {
					Type:        "string",
					Description: "Project directory, relative to the workspace root",
				},
				"command": {
					Type:        "string",
					Description: "Custom build command (auto-detected if not specified)",
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Timeout in seconds (default: 300)",
					Default:     300,
				},
			},
		},
	}
}

func executeRunBuild(ctx context.Context, exec Executor, ws *files.Workspace, args map[string]any) (string, error) {
	p, err := parseProjectArgs(exec, ws, args, 300)
	if err != nil {
		return "", err
	}
	if p.command == "" {
		p.command = detectCommand(p.hostDir, buildMarkers)
		if p.command == "" {
			return "", fmt.Errorf("could not detect build command, please specify one")
		}
	}

	logging.SandboxDebug("run_build: cmd=%s, dir=%s", p.command, p.containerDir)
	res, err := exec.Execute(ctx, p.sandboxCommand(ctx))
	out, err := finish(res, err)
	if err != nil || res.Killed {
		return out, err
	}
	return out + "\n" + AnalyzeBuildOutput(res.Stdout+"\n"+res.Stderr, res.ExitCode).Summary(), nil
}

// RunTestsTool returns a tool for running project tests in a sandbox.
func RunTestsTool(exec Executor, ws *files.Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "run_tests",
		Description: "Run the project test suite inside an isolated container",
		Category:    tools.CategorySandbox,
		Priority:    75,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeRunTests(ctx, exec, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{},
			Properties: map[string]tools.Property{
				"working_dir": {
					Type:        "string",
					Description: "Project directory, relative to the workspace root",
				},
				"command": {
					Type:        "string",
					Description: "Custom test command (auto-detected if not specified)",
				},
				"pattern": {
					Type:        "string",
					Description: "Test pattern/filter to run specific tests",
				},
				"timeout_seconds": {
					Type:        "integer",
					Description: "Timeout in seconds (default: 600)",
					Default:     600,
				},
			},
		},
	}
}

func executeRunTests(ctx context.Context, exec Executor, ws *files.Workspace, args map[string]any) (string, error) {
	p, err := parseProjectArgs(exec, ws, args, 600)
	if err != nil {
		return "", err
	}
	pattern, err := tools.StringArg(args, "pattern", "")
	if err != nil {
		return "", err
	}

	if p.command == "" {
		p.command = detectCommand(p.hostDir, testMarkers)
		if p.command == "" {
			return "", fmt.Errorf("could not detect test command, please specify one")
		}
	}
	if pattern != "" {
		p.command = addTestPattern(p.command, pattern)
	}

	logging.SandboxDebug("run_tests: cmd=%s, dir=%s", p.command, p.containerDir)
	res, err := exec.Execute(ctx, p.sandboxCommand(ctx))
	out, err := finish(res, err)
	if err != nil || res.Killed {
		return out, err
	}
	return out + "\n" + AnalyzeTestOutput(res.Stdout+"\n"+res.Stderr, res.ExitCode).Summary(), nil
}

type projectArgs struct {
	command      string
	hostDir      string
	containerDir string
	timeout      int
}

func parseProjectArgs(exec Executor, ws *files.Workspace, args map[string]any, defTimeout int) (projectArgs, error) {
	var p projectArgs
	if ws == nil {
		return p, fmt.Errorf("project tools need a workspace")
	}

	workingDir, err := tools.StringArg(args, "working_dir", "")
	if err != nil {
		return p, err
	}
	if p.command, err = tools.StringArg(args, "command", ""); err != nil {
		return p, err
	}
	if p.timeout, err = tools.IntArg(args, "timeout_seconds", defTimeout); err != nil {
		return p, err
	}

	if p.hostDir, err = ws.Resolve(workingDir); err != nil {
		return p, err
	}
	if info, err := os.Stat(p.hostDir); err != nil {
		return p, fmt.Errorf("working_dir: %w", err)
	} else if !info.IsDir() {
		return p, fmt.Errorf("working_dir: %w", files.ErrNotDirectory)
	}
	if p.containerDir, err = containerDir(exec, ws, workingDir); err != nil {
		return p, err
	}
	return p, nil
}

func (p projectArgs) sandboxCommand(ctx context.Context) sandbox.Command {
	return sandbox.Command{
		Binary:           "sh",
		Arguments:        []string{"-c", p.command},
		WorkingDirectory: p.containerDir,
		Limits:           timeoutLimits(p.timeout),
		SessionID:        tools.SessionFromContext(ctx),
	}
}

// detectCommand returns the command of the first marker file found in dir.
func detectCommand(dir string, markers []marker) string {
	for _, m := range markers {
		if _, err := os.Stat(filepath.Join(dir, m.file)); err == nil {
			return m.command
		}
	}
	return ""
}

// addTestPattern adds a test filter in the syntax of the detected runner.
func addTestPattern(command, pattern string) string {
	quoted := shellQuote(pattern)
	switch {
	case strings.HasPrefix(command, "go test"):
		return command + " -run " + quoted
	case strings.HasPrefix(command, "pytest"), strings.HasPrefix(command, "python -m pytest"):
		return command + " -k " + quoted
	case strings.HasPrefix(command, "npm test"):
		return command + " -- --grep " + quoted
	case strings.HasPrefix(command, "./gradlew test"):
		return command + " --tests " + quoted
	case strings.HasPrefix(command, "mvn test"):
		return command + " -Dtest=" + quoted
	}
	return command + " " + quoted
}

// shellQuote single-quotes s for sh unless it is a plain word.
func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '_' || r == '-' || r == '.' || r == '/' || r == '^' ||
			('a' <= r && r <= 'z') || ('A' <= r && r <= 'Z') || ('0' <= r && r <= '9'))
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
