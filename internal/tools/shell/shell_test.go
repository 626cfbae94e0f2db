package shell

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoengineer/internal/sandbox"
	"autoengineer/internal/tools"
	"autoengineer/internal/tools/files"
)

// =============================================================================
// FAKE EXECUTOR
// =============================================================================

type fakeExecutor struct {
	mount  string
	result *sandbox.ExecutionResult
	err    error

	cmds  []sandbox.Command
	codes [][2]string
}

func (f *fakeExecutor) Execute(_ context.Context, cmd sandbox.Command) (*sandbox.ExecutionResult, error) {
	f.cmds = append(f.cmds, cmd)
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &sandbox.ExecutionResult{Success: true, Stdout: "ok\n"}, nil
}

func (f *fakeExecutor) RunCode(_ context.Context, lang, source string) (*sandbox.ExecutionResult, error) {
	f.codes = append(f.codes, [2]string{lang, source})
	return f.Execute(context.Background(), sandbox.Command{Binary: lang, Stdin: source})
}

func (f *fakeExecutor) Options() sandbox.Options {
	o := sandbox.DefaultOptions()
	if f.mount != "" {
		o.MountPath = f.mount
	}
	return o
}

func newWorkspace(t *testing.T, markers ...string) *files.Workspace {
	t.Helper()
	root := t.TempDir()
	for _, m := range markers {
		p := filepath.Join(root, filepath.FromSlash(m))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(""), 0644))
	}
	ws, err := files.NewWorkspace(root)
	require.NoError(t, err)
	return ws
}

// =============================================================================
// RUN IN SANDBOX TOOL TESTS
// =============================================================================

func TestRunInSandboxTool_Definition(t *testing.T) {
	tool := RunInSandboxTool(&fakeExecutor{}, nil)
	assert.Equal(t, "run_in_sandbox", tool.Name)
	assert.Equal(t, tools.CategorySandbox, tool.Category)
	assert.NoError(t, tool.Validate())
	assert.Equal(t, []string{"command"}, tool.Schema.Required)
}

func TestRunInSandbox_BuildsCommand(t *testing.T) {
	ws := newWorkspace(t, "src/main.go")
	exec := &fakeExecutor{mount: "/work"}
	ctx := tools.WithSession(context.Background(), "sess-1")

	out, err := executeRunInSandbox(ctx, exec, ws, map[string]any{
		"command":         "ls -la",
		"working_dir":     "src",
		"timeout_seconds": float64(5),
		"env":             map[string]any{"B": "2", "A": "1"},
		"allow_network":   true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)

	require.Len(t, exec.cmds, 1)
	allow := true
	want := sandbox.Command{
		Binary:           "sh",
		Arguments:        []string{"-c", "ls -la"},
		WorkingDirectory: "/work/src",
		Environment:      []string{"A=1", "B=2"},
		Limits:           &sandbox.ResourceLimits{TimeoutMs: 5000, NetworkAllowed: &allow},
		SessionID:        "sess-1",
	}
	if diff := cmp.Diff(want, exec.cmds[0]); diff != "" {
		t.Errorf("command mismatch (-want +got):\n%s", diff)
	}
}

func TestRunInSandbox_Defaults(t *testing.T) {
	exec := &fakeExecutor{}
	_, err := executeRunInSandbox(context.Background(), exec, nil, map[string]any{"command": "true"})
	require.NoError(t, err)

	cmd := exec.cmds[0]
	assert.Empty(t, cmd.WorkingDirectory)
	assert.Nil(t, cmd.Environment)
	assert.Equal(t, int64(0), cmd.Limits.TimeoutMs, "sandbox default applies")
	assert.Nil(t, cmd.Limits.NetworkAllowed, "network follows sandbox mode when unset")
}

func TestRunInSandbox_Errors(t *testing.T) {
	ws := newWorkspace(t)

	tests := []struct {
		name    string
		args    map[string]any
		wantErr error
	}{
		{"blank command", map[string]any{"command": "   "}, tools.ErrMissingRequiredArg},
		{"bad timeout", map[string]any{"command": "x", "timeout_seconds": "soon"}, tools.ErrInvalidArgType},
		{"bad env", map[string]any{"command": "x", "env": "A=1"}, tools.ErrInvalidArgType},
		{"escaping dir", map[string]any{"command": "x", "working_dir": "../.."}, files.ErrOutsideWorkspace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := &fakeExecutor{}
			_, err := executeRunInSandbox(context.Background(), exec, ws, tt.args)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, exec.cmds, "nothing should run")
		})
	}
}

func TestRunInSandbox_RelativeDirWithoutWorkspace(t *testing.T) {
	_, err := executeRunInSandbox(context.Background(), &fakeExecutor{}, nil, map[string]any{
		"command":     "pwd",
		"working_dir": "src",
	})
	assert.Error(t, err)
}

func TestRunInSandbox_NonZeroExitIsNotAnError(t *testing.T) {
	exec := &fakeExecutor{result: &sandbox.ExecutionResult{
		Success:  true,
		ExitCode: 2,
		Stdout:   "partial",
		Stderr:   "boom\n",
	}}
	out, err := executeRunInSandbox(context.Background(), exec, nil, map[string]any{"command": "false"})
	require.NoError(t, err)
	assert.Equal(t, "partial\n--- stderr ---\nboom\n[exit code 2]", out)
}

func TestRunInSandbox_InfrastructureFailure(t *testing.T) {
	exec := &fakeExecutor{result: &sandbox.ExecutionResult{
		Success:  false,
		ExitCode: 125,
		Stderr:   "Error: image not known\n",
		Error:    "podman failed: Error: image not known",
	}}
	_, err := executeRunInSandbox(context.Background(), exec, nil, map[string]any{"command": "true"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image not known")

	exec = &fakeExecutor{err: sandbox.ErrPodmanUnavailable}
	_, err = executeRunInSandbox(context.Background(), exec, nil, map[string]any{"command": "true"})
	assert.ErrorIs(t, err, sandbox.ErrPodmanUnavailable)
}

// =============================================================================
// RUN CODE TOOL TESTS
// =============================================================================

func TestRunCodeTool(t *testing.T) {
	exec := &fakeExecutor{}
	tool := RunCodeTool(exec)
	assert.Equal(t, "run_code", tool.Name)
	assert.Len(t, tool.Schema.Properties["language"].Enum, len(sandbox.Languages()))

	out, err := tool.Execute(context.Background(), map[string]any{"language": "python", "code": "print(1)"})
	require.NoError(t, err)
	assert.Equal(t, "ok\n", out)
	assert.Equal(t, [][2]string{{"python", "print(1)"}}, exec.codes)

	_, err = tool.Execute(context.Background(), map[string]any{"code": "print(1)"})
	assert.ErrorIs(t, err, tools.ErrMissingRequiredArg)
}

// =============================================================================
// PROJECT TOOL TESTS
// =============================================================================

func TestDetectCommand(t *testing.T) {
	tests := []struct {
		markers   []string
		wantBuild string
		wantTest  string
	}{
		{[]string{"go.mod"}, "go build ./...", "go test ./..."},
		{[]string{"Cargo.toml"}, "cargo build", "cargo test"},
		{[]string{"package.json"}, "npm run build", "npm test"},
		{[]string{"pyproject.toml"}, "python -m build", "pytest"},
		{[]string{"Makefile"}, "make", "make test"},
		{[]string{"Makefile", "go.mod"}, "go build ./...", "go test ./..."},
		{nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.markers, "+"), func(t *testing.T) {
			ws := newWorkspace(t, tt.markers...)
			assert.Equal(t, tt.wantBuild, detectCommand(ws.Root(), buildMarkers))
			assert.Equal(t, tt.wantTest, detectCommand(ws.Root(), testMarkers))
		})
	}
}

func TestAddTestPattern(t *testing.T) {
	tests := []struct {
		command, pattern, want string
	}{
		{"go test ./...", "TestFoo", "go test ./... -run TestFoo"},
		{"go test ./...", "^TestFoo$", "go test ./... -run '^TestFoo$'"},
		{"pytest", "login and not slow", "pytest -k 'login and not slow'"},
		{"python -m pytest", "login", "python -m pytest -k login"},
		{"npm test", "auth", "npm test -- --grep auth"},
		{"./gradlew test", "com.example.*", "./gradlew test --tests 'com.example.*'"},
		{"mvn test", "UserTest", "mvn test -Dtest=UserTest"},
		{"cargo test", "parse", "cargo test parse"},
		{"make test", "it's", `make test 'it'\''s'`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, addTestPattern(tt.command, tt.pattern))
	}
}

func TestRunTests_DetectsAndAnalyzes(t *testing.T) {
	ws := newWorkspace(t, "svc/go.mod")
	exec := &fakeExecutor{result: &sandbox.ExecutionResult{
		Success:  true,
		ExitCode: 1,
		Stdout:   "--- PASS: TestA (0.00s)\n--- FAIL: TestB (0.01s)\nFAIL\n",
	}}

	out, err := executeRunTests(context.Background(), exec, ws, map[string]any{
		"working_dir": "svc",
		"pattern":     "TestB",
	})
	require.NoError(t, err)

	cmd := exec.cmds[0]
	assert.Equal(t, []string{"-c", "go test ./... -run TestB"}, cmd.Arguments)
	assert.Equal(t, sandbox.DefaultMountPath+"/svc", cmd.WorkingDirectory)
	assert.Equal(t, int64(600000), cmd.Limits.TimeoutMs)

	assert.Contains(t, out, "[exit code 1]")
	assert.Contains(t, out, "[tests failing: 1 passed, 1 failed, 0 skipped]")
	assert.Contains(t, out, "[failed: TestB]")
}

func TestRunTests_NoMarker(t *testing.T) {
	ws := newWorkspace(t)
	exec := &fakeExecutor{}
	_, err := executeRunTests(context.Background(), exec, ws, map[string]any{})
	assert.ErrorContains(t, err, "could not detect test command")
	assert.Empty(t, exec.cmds)
}

func TestRunTests_WorkingDirMustBeDirectory(t *testing.T) {
	ws := newWorkspace(t, "go.mod")
	_, err := executeRunTests(context.Background(), &fakeExecutor{}, ws, map[string]any{"working_dir": "go.mod"})
	assert.ErrorIs(t, err, files.ErrNotDirectory)

	_, err = executeRunTests(context.Background(), &fakeExecutor{}, ws, map[string]any{"working_dir": "missing"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRunBuild_CustomCommand(t *testing.T) {
	ws := newWorkspace(t)
	exec := &fakeExecutor{result: &sandbox.ExecutionResult{
		Success:  true,
		ExitCode: 1,
		Stderr:   "./main.go:5:2: undefined: foo\n",
	}}

	out, err := executeRunBuild(context.Background(), exec, ws, map[string]any{
		"command":         "go vet ./...",
		"timeout_seconds": 30,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"-c", "go vet ./..."}, exec.cmds[0].Arguments)
	assert.Equal(t, int64(30000), exec.cmds[0].Limits.TimeoutMs)
	assert.True(t, strings.HasSuffix(out, "[build failed: 1 errors, 0 warnings]"), out)
}

func TestRunBuild_NonZeroExitFailsWithoutDiagnostics(t *testing.T) {
	ws := newWorkspace(t, "package.json")
	exec := &fakeExecutor{result: &sandbox.ExecutionResult{
		Success:  true,
		ExitCode: 1,
		Stderr:   "npm ERR! code ELIFECYCLE\nnpm ERR! errno 1\n",
	}}

	out, err := executeRunBuild(context.Background(), exec, ws, map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "[exit code 1]")
	assert.True(t, strings.HasSuffix(out, "[build failed: 0 errors, 0 warnings]"), out)
	assert.NotContains(t, out, "[build ok")
}

func TestRunBuild_KilledSkipsAnalysis(t *testing.T) {
	ws := newWorkspace(t, "go.mod")
	exec := &fakeExecutor{result: &sandbox.ExecutionResult{
		Success:    true,
		ExitCode:   -1,
		Killed:     true,
		KillReason: "timeout after 300s",
	}}
	out, err := executeRunBuild(context.Background(), exec, ws, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "[killed: timeout after 300s]", out)
}

func TestProjectToolsNeedWorkspace(t *testing.T) {
	_, err := executeRunBuild(context.Background(), &fakeExecutor{}, nil, map[string]any{})
	assert.Error(t, err)
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestRegisterAll(t *testing.T) {
	reg := tools.NewRegistry()
	require.NoError(t, RegisterAll(reg, &fakeExecutor{}, newWorkspace(t)))

	assert.Equal(t, []string{"run_build", "run_code", "run_in_sandbox", "run_tests"}, reg.Names())
	for _, tool := range reg.GetByCategory(tools.CategorySandbox) {
		assert.NotEmpty(t, tool.Description)
	}

	res, err := reg.Execute(context.Background(), "run_in_sandbox", map[string]any{"command": "echo hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok\n", res.Result)

	_, err = reg.Execute(context.Background(), "run_in_sandbox", map[string]any{})
	assert.True(t, errors.Is(err, tools.ErrMissingRequiredArg))
}
