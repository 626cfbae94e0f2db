package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunCode_Stdin(t *testing.T) {
	logPath := withFakePodman(t)
	t.Setenv("MOCK_STDIN_ECHO", "1")

	sb := NewPodmanSandbox(DefaultOptions())
	res, err := sb.RunCode(context.Background(), "py", "print('hi')")
	require.NoError(t, err)
	assert.Equal(t, "print('hi')", res.Stdout)

	runs := callsWithPrefix(podmanCalls(t, logPath), "run ")
	require.Len(t, runs, 1)
	assert.True(t, strings.HasSuffix(runs[0], "-i "+DefaultImage+" python3 -"), runs[0])
}

func TestRunCode_WorkspaceScratchFile(t *testing.T) {
	withFakePodman(t)
	ws := t.TempDir()

	opts := DefaultOptions()
	opts.WorkspaceDir = ws
	sb := NewPodmanSandbox(opts)

	res, err := sb.RunCode(context.Background(), "node", "console.log(1)")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, " node /workspace/.autoeng/scratch/snippet-")
	assert.True(t, strings.HasSuffix(res.Stdout, ".js"), res.Stdout)

	entries, err := os.ReadDir(filepath.Join(ws, ".autoeng", "scratch"))
	require.NoError(t, err)
	assert.Empty(t, entries, "snippet should be removed after the run")
}

func TestRunCode_GoNeedsWorkspace(t *testing.T) {
	withFakePodman(t)
	sb := NewPodmanSandbox(DefaultOptions())

	_, err := sb.RunCode(context.Background(), "go", "package main\nfunc main() {}")
	assert.ErrorIs(t, err, ErrWorkspaceRequired)
}

func TestRunCode_Errors(t *testing.T) {
	withFakePodman(t)
	sb := NewPodmanSandbox(DefaultOptions())

	_, err := sb.RunCode(context.Background(), "cobol", "DISPLAY 'HI'.")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	assert.Contains(t, err.Error(), "python")

	_, err = sb.RunCode(context.Background(), "python", "  \n")
	assert.ErrorIs(t, err, ErrEmptyCommand)
}

func TestLookupLanguage(t *testing.T) {
	tests := map[string]string{
		"python":     "python3",
		"Python3":    "python3",
		"js":         "node",
		"javascript": "node",
		"bash":       "bash",
		"shell":      "sh",
		"golang":     "go",
	}
	for name, binary := range tests {
		lang, ok := lookupLanguage(name)
		if !ok {
			t.Errorf("lookupLanguage(%q) not found", name)
			continue
		}
		if lang.binary != binary {
			t.Errorf("lookupLanguage(%q).binary = %q, want %q", name, lang.binary, binary)
		}
	}
	if _, ok := lookupLanguage("ruby"); ok {
		t.Error("ruby should not be supported")
	}
}
