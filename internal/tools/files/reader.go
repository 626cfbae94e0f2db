package files

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"autoengineer/internal/logging"
	"autoengineer/internal/tools"
)

// binarySniffLen is how much of a file is checked for NUL bytes.
const binarySniffLen = 8192

// FileReaderTool returns the read_file tool bound to ws.
func FileReaderTool(ws *Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "read_file",
		Description: "Read the contents of a file in the workspace",
		Category:    tools.CategoryFiles,
		Priority:    90,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeReadFile(ctx, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"path"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "File path, relative to the workspace root",
				},
				"start_line": {
					Type:        "integer",
					Description: "First line to return (1-indexed)",
				},
				"end_line": {
					Type:        "integer",
					Description: "Last line to return (inclusive)",
				},
			},
		},
	}
}

func executeReadFile(ctx context.Context, ws *Workspace, args map[string]any) (string, error) {
	path, err := tools.StringArg(args, "path", "")
	if err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("%w: path", tools.ErrMissingRequiredArg)
	}
	startLine, err := tools.IntArg(args, "start_line", 0)
	if err != nil {
		return "", err
	}
	endLine, err := tools.IntArg(args, "end_line", 0)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	host, err := ws.Resolve(path)
	if err != nil {
		logging.FilesWarn("read_file rejected %s: %v", path, err)
		return "", err
	}
	rel := ws.Rel(host)

	info, err := os.Stat(host)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrIsDirectory, rel)
	}
	if info.Size() > ws.maxReadBytes {
		return "", fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrTooLarge, rel, info.Size(), ws.maxReadBytes)
	}

	data, err := os.ReadFile(host)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	if isBinary(data) {
		return "", fmt.Errorf("%w: %s", ErrBinaryFile, rel)
	}

	logging.FilesDebug("read_file: %s (%d bytes)", rel, len(data))

	if startLine <= 0 && endLine <= 0 {
		return string(data), nil
	}
	return lineRange(string(data), startLine, endLine), nil
}

// lineRange returns lines start..end (1-indexed, inclusive), clamped to the
// content. Zero means unbounded on that side.
func lineRange(content string, start, end int) string {
	lines := strings.Split(content, "\n")
	if start < 1 {
		start = 1
	}
	if end <= 0 || end > len(lines) {
		end = len(lines)
	}
	if start > end {
		return ""
	}
	return strings.Join(lines[start-1:end], "\n")
}

func isBinary(data []byte) bool {
	if len(data) > binarySniffLen {
		data = data[:binarySniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}
