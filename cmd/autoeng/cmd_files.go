package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"autoengineer/internal/tools"
)

var readCmd = &cobra.Command{
	Use:   "read PATH",
	Short: "Print a workspace file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		toolArgs := map[string]any{"path": args[0]}
		if start, _ := cmd.Flags().GetInt("start"); start > 0 {
			toolArgs["start_line"] = start
		}
		if end, _ := cmd.Flags().GetInt("end"); end > 0 {
			toolArgs["end_line"] = end
		}
		return runFileTool(cmd, "read_file", toolArgs)
	},
}

var writeCmd = &cobra.Command{
	Use:   "write PATH [CONTENT]",
	Short: "Write a workspace file",
	Long:  `Writes CONTENT to PATH inside the workspace. Without CONTENT, stdin is written.`,
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var content string
		if len(args) == 2 {
			content = args[1]
		} else {
			data, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("failed to read stdin: %w", err)
			}
			content = string(data)
		}

		mode := "overwrite"
		if appendMode, _ := cmd.Flags().GetBool("append"); appendMode {
			mode = "append"
		}
		return runFileTool(cmd, "write_file", map[string]any{
			"path":    args[0],
			"content": content,
			"mode":    mode,
		})
	},
}

var lsCmd = &cobra.Command{
	Use:   "ls [PATH]",
	Short: "List a workspace directory",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		toolArgs := map[string]any{}
		if len(args) == 1 {
			toolArgs["path"] = args[0]
		}
		recursive, _ := cmd.Flags().GetBool("recursive")
		all, _ := cmd.Flags().GetBool("all")
		toolArgs["recursive"] = recursive
		toolArgs["include_hidden"] = all
		if limit, _ := cmd.Flags().GetInt("max"); limit > 0 {
			toolArgs["max_entries"] = limit
		}
		return runFileTool(cmd, "list_directory", toolArgs)
	},
}

// runFileTool executes a file tool through the registry so the call is
// recorded like any other tool execution.
func runFileTool(cmd *cobra.Command, name string, args map[string]any) error {
	env, err := openEnv(envOptions{store: true})
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	res, err := env.reg.Execute(ctx, name, args)
	if err != nil {
		return err
	}
	printText(cmd.OutOrStdout(), res)
	return nil
}

func printText(w io.Writer, res *tools.ToolResult) {
	out := res.Result
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	fmt.Fprint(w, out)
}
