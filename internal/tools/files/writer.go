package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"autoengineer/internal/logging"
	"autoengineer/internal/tools"
)

const (
	ModeOverwrite = "overwrite"
	ModeAppend    = "append"
)

// FileWriterTool returns the write_file tool bound to ws.
func FileWriterTool(ws *Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "write_file",
		Description: "Write content to a file in the workspace, creating or replacing it",
		Category:    tools.CategoryFiles,
		Priority:    80,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeWriteFile(ctx, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{"path", "content"},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "File path, relative to the workspace root",
				},
				"content": {
					Type:        "string",
					Description: "The content to write",
				},
				"mode": {
					Type:        "string",
					Description: "overwrite replaces the file, append adds to the end",
					Default:     ModeOverwrite,
					Enum:        []any{ModeOverwrite, ModeAppend},
				},
				"create_dirs": {
					Type:        "boolean",
					Description: "Create missing parent directories",
					Default:     true,
				},
			},
		},
	}
}

func executeWriteFile(ctx context.Context, ws *Workspace, args map[string]any) (string, error) {
	path, err := tools.StringArg(args, "path", "")
	if err != nil {
		return "", err
	}
	content, err := tools.StringArg(args, "content", "")
	if err != nil {
		return "", err
	}
	mode, err := tools.StringArg(args, "mode", ModeOverwrite)
	if err != nil {
		return "", err
	}
	createDirs, err := tools.BoolArg(args, "create_dirs", true)
	if err != nil {
		return "", err
	}

	if path == "" {
		return "", fmt.Errorf("%w: path", tools.ErrMissingRequiredArg)
	}
	if mode != ModeOverwrite && mode != ModeAppend {
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if size := int64(len(content)); size > ws.maxWriteBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrTooLarge, size, ws.maxWriteBytes)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	host, err := ws.ResolveWritable(path)
	if err != nil {
		logging.FilesWarn("write_file rejected %s: %v", path, err)
		return "", err
	}
	rel := ws.Rel(host)

	perm := fs.FileMode(0644)
	if info, err := os.Stat(host); err == nil {
		if info.IsDir() {
			return "", fmt.Errorf("%w: %s", ErrIsDirectory, rel)
		}
		perm = info.Mode().Perm()
	}

	dir := filepath.Dir(host)
	if createDirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	} else if _, err := os.Stat(dir); err != nil {
		return "", fmt.Errorf("parent directory of %s: %w", rel, err)
	}

	logging.FilesDebug("write_file: %s mode=%s bytes=%d", rel, mode, len(content))

	if mode == ModeAppend {
		if err := appendFile(host, []byte(content), perm); err != nil {
			logging.FilesError("write_file: append to %s failed: %v", rel, err)
			return "", fmt.Errorf("failed to append to file: %w", err)
		}
		logging.Files("write_file: appended %d bytes to %s", len(content), rel)
		return fmt.Sprintf("Appended %d bytes to %s", len(content), rel), nil
	}

	if err := atomicWrite(host, []byte(content), perm); err != nil {
		logging.FilesError("write_file: write to %s failed: %v", rel, err)
		return "", fmt.Errorf("failed to write file: %w", err)
	}
	logging.Files("write_file: wrote %d bytes to %s", len(content), rel)
	return fmt.Sprintf("Wrote %d bytes to %s", len(content), rel), nil
}

// atomicWrite writes data to a temp file next to path and renames it into place.
func atomicWrite(path string, data []byte, perm fs.FileMode) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func appendFile(path string, data []byte, perm fs.FileMode) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	return errors.Join(werr, f.Close())
}
