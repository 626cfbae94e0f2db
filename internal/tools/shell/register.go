package shell

import (
	"autoengineer/internal/tools"
	"autoengineer/internal/tools/files"
)

// RegisterAll registers all sandbox execution tools with the given registry.
func RegisterAll(registry *tools.Registry, runner Runner, ws *files.Workspace) error {
	allTools := []*tools.Tool{
		RunInSandboxTool(runner, ws),
		RunCodeTool(runner),
		RunBuildTool(runner, ws),
		RunTestsTool(runner, ws),
	}

	for _, tool := range allTools {
		if err := registry.Register(tool); err != nil {
			return err
		}
	}

	return nil
}
