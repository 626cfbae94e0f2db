// Package toolkit is the public entry point for sandboxed command execution
// and workspace-confined file tools.
//
// It re-exports the names callers need from the internal packages:
//
//	PodmanSandbox        rootless Podman executor
//	RunInSandbox         one-shot sh -c in a fresh container
//	FileWriterTool       write_file tool constructor
//	FileReaderTool       read_file tool constructor
//	DirectoryListerTool  list_directory tool constructor
//	CreateFileTools      all three file tools for a workspace root
package toolkit

import (
	"reflect"

	"autoengineer/internal/sandbox"
	"autoengineer/internal/tools"
	"autoengineer/internal/tools/files"
	"autoengineer/internal/tools/shell"
)

type (
	PodmanSandbox   = sandbox.PodmanSandbox
	ExecutionResult = sandbox.ExecutionResult
	Command         = sandbox.Command
	ResourceLimits  = sandbox.ResourceLimits
	SandboxOptions  = sandbox.Options
	RunOption       = sandbox.RunOption

	Tool       = tools.Tool
	ToolResult = tools.ToolResult
	Registry   = tools.Registry

	Workspace  = files.Workspace
	FileOption = files.Option
)

var (
	RunInSandbox        = sandbox.RunInSandbox
	FileWriterTool      = files.FileWriterTool
	FileReaderTool      = files.FileReaderTool
	DirectoryListerTool = files.DirectoryListerTool
	CreateFileTools     = files.CreateFileTools
)

// Supporting constructors and options.
var (
	NewPodmanSandbox      = sandbox.NewPodmanSandbox
	DefaultSandboxOptions = sandbox.DefaultOptions
	NewWorkspace          = files.NewWorkspace

	WithImage             = sandbox.WithImage
	WithWorkspace         = sandbox.WithWorkspace
	WithReadOnlyWorkspace = sandbox.WithReadOnlyWorkspace
	WithTimeout           = sandbox.WithTimeout
	WithNetwork           = sandbox.WithNetwork
	WithEnv               = sandbox.WithEnv
	WithMemory            = sandbox.WithMemory
	WithCPUs              = sandbox.WithCPUs

	WithMaxReadBytes   = files.WithMaxReadBytes
	WithMaxWriteBytes  = files.WithMaxWriteBytes
	WithAllowHidden    = files.WithAllowHidden
	WithMaxListEntries = files.WithMaxListEntries
)

// Exports is the package's declared export list, in manifest order.
var Exports = []string{
	"PodmanSandbox",
	"RunInSandbox",
	"FileWriterTool",
	"FileReaderTool",
	"DirectoryListerTool",
	"CreateFileTools",
}

var bindings = map[string]any{
	"PodmanSandbox":       reflect.TypeFor[PodmanSandbox](),
	"RunInSandbox":        RunInSandbox,
	"FileWriterTool":      FileWriterTool,
	"FileReaderTool":      FileReaderTool,
	"DirectoryListerTool": DirectoryListerTool,
	"CreateFileTools":     CreateFileTools,
}

// Lookup returns what an exported name is bound to: a function value, or the
// reflect.Type of an exported type.
func Lookup(name string) (any, bool) {
	v, ok := bindings[name]
	return v, ok
}

// NewToolRegistry returns a registry holding the file tools for ws and, when
// sb is non-nil, the sandbox execution tools.
func NewToolRegistry(ws *Workspace, sb *PodmanSandbox) (*Registry, error) {
	reg := tools.NewRegistry()
	if err := files.RegisterAll(reg, ws); err != nil {
		return nil, err
	}
	if sb != nil {
		if err := shell.RegisterAll(reg, sb, ws); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
