package sandbox

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"autoengineer/internal/logging"
)

// scratchDir is relative to the workspace root; hidden so file listings skip it.
const scratchDir = StateDir + "/scratch"

type language struct {
	binary    string
	args      []string
	ext       string
	stdinArgs []string // nil when the interpreter cannot read source from stdin
}

var languages = map[string]language{
	"python": {binary: "python3", ext: ".py", stdinArgs: []string{"-"}},
	"sh":     {binary: "sh", ext: ".sh", stdinArgs: []string{"-s"}},
	"bash":   {binary: "bash", ext: ".sh", stdinArgs: []string{"-s"}},
	"node":   {binary: "node", ext: ".js", stdinArgs: []string{"-"}},
	"go":     {binary: "go", args: []string{"run"}, ext: ".go"},
}

var languageAliases = map[string]string{
	"python3":    "python",
	"py":         "python",
	"shell":      "sh",
	"javascript": "node",
	"js":         "node",
	"golang":     "go",
}

// Languages returns the supported language names, sorted.
func Languages() []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func lookupLanguage(name string) (language, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := languageAliases[name]; ok {
		name = alias
	}
	lang, ok := languages[name]
	return lang, ok
}

// RunCode executes a source snippet with the interpreter for lang.
//
// With a mounted workspace the snippet is written to a scratch file inside it
// and run by path. Otherwise it is piped on stdin.
func (s *PodmanSandbox) RunCode(ctx context.Context, lang, source string) (*ExecutionResult, error) {
	interp, ok := lookupLanguage(lang)
	if !ok {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLanguage, lang, strings.Join(Languages(), ", "))
	}
	if strings.TrimSpace(source) == "" {
		return nil, ErrEmptyCommand
	}

	if s.opts.WorkspaceDir == "" {
		if interp.stdinArgs == nil {
			return nil, fmt.Errorf("%w to run %s code", ErrWorkspaceRequired, lang)
		}
		args := append(append([]string(nil), interp.args...), interp.stdinArgs...)
		return s.Execute(ctx, Command{Binary: interp.binary, Arguments: args, Stdin: source})
	}

	if err := s.Validate(Command{Binary: interp.binary}); err != nil {
		return nil, err
	}

	hostDir := filepath.Join(s.opts.WorkspaceDir, filepath.FromSlash(scratchDir))
	if err := os.MkdirAll(hostDir, 0755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	file := "snippet-" + shortID() + interp.ext
	hostPath := filepath.Join(hostDir, file)
	if err := os.WriteFile(hostPath, []byte(source), 0644); err != nil {
		return nil, fmt.Errorf("write snippet: %w", err)
	}
	defer func() {
		if err := os.Remove(hostPath); err != nil && !os.IsNotExist(err) {
			logging.SandboxWarn("failed to remove snippet %s: %v", hostPath, err)
		}
	}()

	containerPath := path.Join(s.opts.MountPath, scratchDir, file)
	args := append(append([]string(nil), interp.args...), containerPath)
	logging.SandboxDebug("running %s snippet %s", lang, containerPath)
	return s.Execute(ctx, Command{Binary: interp.binary, Arguments: args})
}
