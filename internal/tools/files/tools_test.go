package files

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autoengineer/internal/tools"
)

// =============================================================================
// WRITE FILE TOOL TESTS
// =============================================================================

func TestWriteFile_Overwrite(t *testing.T) {
	ws := newTestWorkspace(t)
	ctx := context.Background()

	out, err := executeWriteFile(ctx, ws, map[string]any{
		"path":    "nested/dir/hello.txt",
		"content": "hello",
	})
	require.NoError(t, err)
	assert.Equal(t, "Wrote 5 bytes to nested/dir/hello.txt", out)

	out, err = executeWriteFile(ctx, ws, map[string]any{
		"path":    "nested/dir/hello.txt",
		"content": "bye",
	})
	require.NoError(t, err)
	assert.Equal(t, "Wrote 3 bytes to nested/dir/hello.txt", out)

	data, err := os.ReadFile(filepath.Join(ws.Root(), "nested", "dir", "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "bye", string(data))

	// No temp files left behind.
	dirents, err := os.ReadDir(filepath.Join(ws.Root(), "nested", "dir"))
	require.NoError(t, err)
	assert.Len(t, dirents, 1)
}

func TestWriteFile_PreservesMode(t *testing.T) {
	ws := newTestWorkspace(t)
	p := writeTestFile(t, ws, "run.sh", "#!/bin/sh\n")
	require.NoError(t, os.Chmod(p, 0755))

	_, err := executeWriteFile(context.Background(), ws, map[string]any{
		"path":    "run.sh",
		"content": "#!/bin/sh\necho hi\n",
	})
	require.NoError(t, err)

	info, err := os.Stat(p)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestWriteFile_Append(t *testing.T) {
	ws := newTestWorkspace(t)
	writeTestFile(t, ws, "log.txt", "one\n")

	out, err := executeWriteFile(context.Background(), ws, map[string]any{
		"path":    "log.txt",
		"content": "two\n",
		"mode":    "append",
	})
	require.NoError(t, err)
	assert.Equal(t, "Appended 4 bytes to log.txt", out)

	data, err := os.ReadFile(filepath.Join(ws.Root(), "log.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\n", string(data))
}

func TestWriteFile_Errors(t *testing.T) {
	ws := newTestWorkspace(t, WithMaxWriteBytes(8))
	require.NoError(t, os.Mkdir(filepath.Join(ws.Root(), "adir"), 0755))

	tests := []struct {
		name    string
		args    map[string]any
		wantErr error
	}{
		{"missing path", map[string]any{"content": "x"}, tools.ErrMissingRequiredArg},
		{"bad path type", map[string]any{"path": 42, "content": "x"}, tools.ErrInvalidArgType},
		{"bad mode", map[string]any{"path": "a.txt", "content": "x", "mode": "truncate"}, ErrInvalidMode},
		{"too large", map[string]any{"path": "a.txt", "content": "123456789"}, ErrTooLarge},
		{"escape", map[string]any{"path": "../a.txt", "content": "x"}, ErrOutsideWorkspace},
		{"protected", map[string]any{"path": ".autoeng/config.yaml", "content": "x"}, ErrProtectedPath},
		{"directory", map[string]any{"path": "adir", "content": "x"}, ErrIsDirectory},
		{"no parent", map[string]any{"path": "missing/a.txt", "content": "x", "create_dirs": false}, os.ErrNotExist},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeWriteFile(context.Background(), ws, tt.args)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

// =============================================================================
// READ FILE TOOL TESTS
// =============================================================================

func TestReadFile(t *testing.T) {
	ws := newTestWorkspace(t)
	writeTestFile(t, ws, "lines.txt", "one\ntwo\nthree\nfour")

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{"whole file", map[string]any{}, "one\ntwo\nthree\nfour"},
		{"range", map[string]any{"start_line": 2, "end_line": 3}, "two\nthree"},
		{"json numbers", map[string]any{"start_line": float64(3), "end_line": float64(3)}, "three"},
		{"start only", map[string]any{"start_line": 3}, "three\nfour"},
		{"end only", map[string]any{"end_line": 1}, "one"},
		{"end clamped", map[string]any{"start_line": 4, "end_line": 100}, "four"},
		{"start past end", map[string]any{"start_line": 10}, ""},
		{"start negative", map[string]any{"start_line": -5, "end_line": 2}, "one\ntwo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := map[string]any{"path": "lines.txt"}
			for k, v := range tt.args {
				args[k] = v
			}
			got, err := executeReadFile(context.Background(), ws, args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadFile_Errors(t *testing.T) {
	ws := newTestWorkspace(t, WithMaxReadBytes(16))
	writeTestFile(t, ws, "big.txt", strings.Repeat("x", 17))
	writeTestFile(t, ws, "bin.dat", "ab\x00cd")
	require.NoError(t, os.Mkdir(filepath.Join(ws.Root(), "adir"), 0755))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"missing", "nope.txt", os.ErrNotExist},
		{"too large", "big.txt", ErrTooLarge},
		{"binary", "bin.dat", ErrBinaryFile},
		{"directory", "adir", ErrIsDirectory},
		{"escape", "../../etc/passwd", ErrOutsideWorkspace},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := executeReadFile(context.Background(), ws, map[string]any{"path": tt.path})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestReadFile_StateDirIsReadable(t *testing.T) {
	ws := newTestWorkspace(t)
	writeTestFile(t, ws, ".autoeng/config.yaml", "sandbox: {}\n")

	got, err := executeReadFile(context.Background(), ws, map[string]any{"path": ".autoeng/config.yaml"})
	require.NoError(t, err)
	assert.Equal(t, "sandbox: {}\n", got)
}

// =============================================================================
// LIST DIRECTORY TOOL TESTS
// =============================================================================

func TestListDirectory(t *testing.T) {
	ws := newTestWorkspace(t)
	writeTestFile(t, ws, "b.txt", "b")
	writeTestFile(t, ws, "a.txt", "a")
	writeTestFile(t, ws, "src/main.go", "package main")
	writeTestFile(t, ws, "src/pkg/util.go", "package pkg")
	writeTestFile(t, ws, ".hidden/secret", "s")
	writeTestFile(t, ws, ".env", "X=1")

	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{
			name: "root",
			args: map[string]any{},
			want: []string{"a.txt", "b.txt", "src/"},
		},
		{
			name: "subdirectory",
			args: map[string]any{"path": "src"},
			want: []string{"src/main.go", "src/pkg/"},
		},
		{
			name: "recursive",
			args: map[string]any{"recursive": true},
			want: []string{"a.txt", "b.txt", "src/", "src/main.go", "src/pkg/", "src/pkg/util.go"},
		},
		{
			name: "include hidden",
			args: map[string]any{"include_hidden": true},
			want: []string{".env", ".hidden/", "a.txt", "b.txt", "src/"},
		},
		{
			name: "recursive hidden",
			args: map[string]any{"recursive": true, "include_hidden": true, "path": ".hidden"},
			want: []string{".hidden/secret"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := executeListDirectory(context.Background(), ws, tt.args)
			require.NoError(t, err)
			assert.Equal(t, strings.Join(tt.want, "\n"), got)
		})
	}
}

func TestListDirectory_Truncated(t *testing.T) {
	ws := newTestWorkspace(t, WithMaxListEntries(2))
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		writeTestFile(t, ws, name, name)
	}

	got, err := executeListDirectory(context.Background(), ws, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n... (3 more entries)", got)

	got, err = executeListDirectory(context.Background(), ws, map[string]any{"max_entries": 4})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\nd\n... (1 more entries)", got)
}

func TestListDirectory_Empty(t *testing.T) {
	ws := newTestWorkspace(t)
	got, err := executeListDirectory(context.Background(), ws, map[string]any{})
	require.NoError(t, err)
	assert.Equal(t, "(empty directory)", got)
}

func TestListDirectory_HiddenDisallowed(t *testing.T) {
	ws := newTestWorkspace(t, WithAllowHidden(false))
	writeTestFile(t, ws, ".env", "X=1")
	writeTestFile(t, ws, "a.txt", "a")

	got, err := executeListDirectory(context.Background(), ws, map[string]any{"include_hidden": true})
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got)
}

func TestListDirectory_Errors(t *testing.T) {
	ws := newTestWorkspace(t)
	writeTestFile(t, ws, "file.txt", "x")

	_, err := executeListDirectory(context.Background(), ws, map[string]any{"path": "file.txt"})
	assert.ErrorIs(t, err, ErrNotDirectory)

	_, err = executeListDirectory(context.Background(), ws, map[string]any{"path": ".."})
	assert.ErrorIs(t, err, ErrOutsideWorkspace)

	_, err = executeListDirectory(context.Background(), ws, map[string]any{"path": "missing"})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestListDirectory_Cancelled(t *testing.T) {
	ws := newTestWorkspace(t)
	writeTestFile(t, ws, "src/a.go", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := executeListDirectory(ctx, ws, map[string]any{"recursive": true})
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestCreateFileTools(t *testing.T) {
	root := t.TempDir()
	list, err := CreateFileTools(root)
	require.NoError(t, err)
	require.Len(t, list, 3)

	names := make([]string, len(list))
	for i, tool := range list {
		names[i] = tool.Name
		assert.Equal(t, tools.CategoryFiles, tool.Category)
		assert.NoError(t, tool.Validate())
	}
	assert.Equal(t, []string{"write_file", "read_file", "list_directory"}, names)

	_, err = CreateFileTools(filepath.Join(root, "missing"))
	assert.Error(t, err)
}

func TestRegisterAll_RoundTrip(t *testing.T) {
	ws := newTestWorkspace(t)
	reg := tools.NewRegistry()
	require.NoError(t, RegisterAll(reg, ws))
	assert.Equal(t, 3, reg.Count())

	ctx := context.Background()
	_, err := reg.Execute(ctx, "write_file", map[string]any{"path": "notes/todo.md", "content": "- ship it\n"})
	require.NoError(t, err)

	res, err := reg.Execute(ctx, "read_file", map[string]any{"path": "notes/todo.md"})
	require.NoError(t, err)
	assert.Equal(t, "- ship it\n", res.Result)

	res, err = reg.Execute(ctx, "list_directory", map[string]any{"recursive": true})
	require.NoError(t, err)
	assert.Equal(t, "notes/\nnotes/todo.md", res.Result)

	// Registering twice collides on names.
	assert.ErrorIs(t, RegisterAll(reg, ws), tools.ErrToolAlreadyRegistered)
}
