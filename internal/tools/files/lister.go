package files

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"autoengineer/internal/logging"
	"autoengineer/internal/tools"
)

// DirectoryListerTool returns the list_directory tool bound to ws.
func DirectoryListerTool(ws *Workspace) *tools.Tool {
	return &tools.Tool{
		Name:        "list_directory",
		Description: "List files and directories in the workspace",
		Category:    tools.CategoryFiles,
		Priority:    70,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return executeListDirectory(ctx, ws, args)
		},
		Schema: tools.ToolSchema{
			Required: []string{},
			Properties: map[string]tools.Property{
				"path": {
					Type:        "string",
					Description: "Directory to list, relative to the workspace root (default: root)",
				},
				"recursive": {
					Type:        "boolean",
					Description: "List subdirectories recursively",
					Default:     false,
				},
				"include_hidden": {
					Type:        "boolean",
					Description: "Include dot files and directories",
					Default:     false,
				},
				"max_entries": {
					Type:        "integer",
					Description: "Maximum number of entries to return",
					Default:     DefaultMaxListEntries,
				},
			},
		},
	}
}

func executeListDirectory(ctx context.Context, ws *Workspace, args map[string]any) (string, error) {
	path, err := tools.StringArg(args, "path", "")
	if err != nil {
		return "", err
	}
	recursive, err := tools.BoolArg(args, "recursive", false)
	if err != nil {
		return "", err
	}
	includeHidden, err := tools.BoolArg(args, "include_hidden", false)
	if err != nil {
		return "", err
	}
	maxEntries, err := tools.IntArg(args, "max_entries", ws.maxListEntries)
	if err != nil {
		return "", err
	}
	includeHidden = includeHidden && ws.allowHidden

	host, err := ws.Resolve(path)
	if err != nil {
		logging.FilesWarn("list_directory rejected %s: %v", path, err)
		return "", err
	}
	info, err := os.Stat(host)
	if err != nil {
		return "", fmt.Errorf("failed to list directory: %w", err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotDirectory, ws.Rel(host))
	}

	var entries []string
	if recursive {
		entries, err = walkEntries(ctx, ws, host, includeHidden)
	} else {
		entries, err = readEntries(ws, host, includeHidden)
	}
	if err != nil {
		return "", fmt.Errorf("failed to list directory: %w", err)
	}

	logging.FilesDebug("list_directory: %s recursive=%v entries=%d", ws.Rel(host), recursive, len(entries))
	return formatEntries(entries, maxEntries), nil
}

func readEntries(ws *Workspace, dir string, includeHidden bool) ([]string, error) {
	dirents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	entries := make([]string, 0, len(dirents))
	for _, d := range dirents {
		if !includeHidden && strings.HasPrefix(d.Name(), ".") {
			continue
		}
		entries = append(entries, entryName(ws, filepath.Join(dir, d.Name()), d.IsDir()))
	}
	return entries, nil
}

// walkEntries lists everything below dir. Symlinks are listed, not followed.
func walkEntries(ctx context.Context, ws *Workspace, dir string, includeHidden bool) ([]string, error) {
	var entries []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if p == dir {
			return nil
		}
		if !includeHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		entries = append(entries, entryName(ws, p, d.IsDir()))
		return nil
	})
	return entries, err
}

func entryName(ws *Workspace, host string, isDir bool) string {
	name := ws.Rel(host)
	if isDir {
		name += "/"
	}
	return name
}

func formatEntries(entries []string, maxEntries int) string {
	if len(entries) == 0 {
		return "(empty directory)"
	}
	sort.Strings(entries)

	more := 0
	if maxEntries > 0 && len(entries) > maxEntries {
		more = len(entries) - maxEntries
		entries = entries[:maxEntries]
	}

	var sb strings.Builder
	sb.WriteString(strings.Join(entries, "\n"))
	if more > 0 {
		fmt.Fprintf(&sb, "\n... (%d more entries)", more)
	}
	return sb.String()
}
