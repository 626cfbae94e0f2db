package files

import (
	"autoengineer/internal/tools"
)

// CreateFileTools builds a workspace at root and returns its file tools in
// the order write_file, read_file, list_directory.
func CreateFileTools(root string, opts ...Option) ([]*tools.Tool, error) {
	ws, err := NewWorkspace(root, opts...)
	if err != nil {
		return nil, err
	}
	return Tools(ws), nil
}

// Tools returns the file tools bound to ws.
func Tools(ws *Workspace) []*tools.Tool {
	return []*tools.Tool{
		FileWriterTool(ws),
		FileReaderTool(ws),
		DirectoryListerTool(ws),
	}
}

// RegisterAll registers the file tools for ws with the given registry.
func RegisterAll(registry *tools.Registry, ws *Workspace) error {
	for _, tool := range Tools(ws) {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}
	return nil
}
