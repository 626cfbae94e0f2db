package files

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultMaxReadBytes   int64 = 1 << 20
	DefaultMaxWriteBytes  int64 = 5 << 20
	DefaultMaxListEntries       = 1000

	// StateDir holds tool state (config, logs, history). Tools may read it
	// but never write into it.
	StateDir = ".autoeng"
)

// Workspace confines file tools to a root directory.
type Workspace struct {
	root           string
	maxReadBytes   int64
	maxWriteBytes  int64
	allowHidden    bool
	maxListEntries int
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithMaxReadBytes limits the size of files read_file returns. n <= 0 keeps the default.
func WithMaxReadBytes(n int64) Option {
	return func(w *Workspace) {
		if n > 0 {
			w.maxReadBytes = n
		}
	}
}

// WithMaxWriteBytes limits the content size write_file accepts. n <= 0 keeps the default.
func WithMaxWriteBytes(n int64) Option {
	return func(w *Workspace) {
		if n > 0 {
			w.maxWriteBytes = n
		}
	}
}

// WithAllowHidden controls whether dot files and directories are reachable.
func WithAllowHidden(allow bool) Option {
	return func(w *Workspace) {
		w.allowHidden = allow
	}
}

// WithMaxListEntries sets the default list_directory entry cap.
func WithMaxListEntries(n int) Option {
	return func(w *Workspace) {
		if n > 0 {
			w.maxListEntries = n
		}
	}
}

// NewWorkspace returns a workspace rooted at root. The root must exist and be
// a directory; it is stored absolute with symlinks resolved.
func NewWorkspace(root string, opts ...Option) (*Workspace, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("workspace root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s: %w", root, ErrNotDirectory)
	}

	w := &Workspace{
		root:           resolved,
		maxReadBytes:   DefaultMaxReadBytes,
		maxWriteBytes:  DefaultMaxWriteBytes,
		allowHidden:    true,
		maxListEntries: DefaultMaxListEntries,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string { return w.root }

func (w *Workspace) MaxReadBytes() int64  { return w.maxReadBytes }
func (w *Workspace) MaxWriteBytes() int64 { return w.maxWriteBytes }
func (w *Workspace) AllowHidden() bool    { return w.allowHidden }
func (w *Workspace) MaxListEntries() int  { return w.maxListEntries }

// Resolve maps a tool-supplied path to a host path inside the root.
// Relative paths are taken from the root; the empty path is the root itself.
func (w *Workspace) Resolve(p string) (string, error) {
	if p == "" {
		return w.root, nil
	}

	var candidate string
	if filepath.IsAbs(p) {
		candidate = filepath.Clean(p)
	} else {
		candidate = filepath.Join(w.root, p)
		if !within(w.root, candidate) {
			return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
		}
	}

	resolved, err := resolveExisting(candidate)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	if !within(w.root, resolved) {
		return "", fmt.Errorf("%w: %s", ErrOutsideWorkspace, p)
	}

	if !w.allowHidden && hasHiddenComponent(w.Rel(resolved)) {
		return "", fmt.Errorf("%w: %s", ErrHiddenPath, p)
	}
	return resolved, nil
}

// ResolveWritable is Resolve plus the write protection on StateDir.
func (w *Workspace) ResolveWritable(p string) (string, error) {
	host, err := w.Resolve(p)
	if err != nil {
		return "", err
	}
	if host == w.root {
		return "", fmt.Errorf("%w: %s", ErrIsDirectory, p)
	}
	rel := w.Rel(host)
	if rel == StateDir || strings.HasPrefix(rel, StateDir+"/") {
		return "", fmt.Errorf("%w: %s", ErrProtectedPath, p)
	}
	return host, nil
}

// Rel returns the slash-separated path of host relative to the root.
// The root itself is ".".
func (w *Workspace) Rel(host string) string {
	rel, err := filepath.Rel(w.root, host)
	if err != nil {
		return filepath.ToSlash(host)
	}
	return filepath.ToSlash(rel)
}

// resolveExisting evaluates symlinks on the deepest existing ancestor of p and
// re-attaches the non-existent remainder.
func resolveExisting(p string) (string, error) {
	existing := p
	for {
		if _, err := os.Lstat(existing); err == nil {
			break
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			break
		}
		existing = parent
	}

	resolved, err := filepath.EvalSymlinks(existing)
	if err != nil {
		return "", err
	}
	rest, err := filepath.Rel(existing, p)
	if err != nil {
		return "", err
	}
	return filepath.Join(resolved, rest), nil
}

func within(root, p string) bool {
	if p == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(p, prefix)
}

func hasHiddenComponent(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if part != "." && part != ".." && strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
