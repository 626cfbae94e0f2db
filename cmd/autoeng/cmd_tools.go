package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autoengineer/internal/tools"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools exposed to tool-calling models",
	Args:  cobra.NoArgs,
	RunE:  runTools,
}

var callCmd = &cobra.Command{
	Use:   "call TOOL",
	Short: "Execute one tool with JSON arguments",
	Example: `  autoeng call read_file --args '{"path":"go.mod"}'
  autoeng call run_in_sandbox --args '{"command":"ls -la"}' --session s1`,
	Args: cobra.ExactArgs(1),
	RunE: runCall,
}

func runTools(cmd *cobra.Command, args []string) error {
	env, err := openEnv(envOptions{sandbox: true})
	if err != nil {
		return err
	}
	defer env.Close()

	out := cmd.OutOrStdout()
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(env.reg.Definitions())
	}

	if describe, _ := cmd.Flags().GetBool("describe"); describe {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(80),
		)
		if err != nil {
			return fmt.Errorf("failed to create renderer: %w", err)
		}
		rendered, err := renderer.Render(toolsMarkdown(env.reg.All()))
		if err != nil {
			return fmt.Errorf("failed to render: %w", err)
		}
		fmt.Fprint(out, rendered)
		return nil
	}

	writeToolList(out, env.reg.All())
	return nil
}

// writeToolList groups tools by category, highest priority first.
func writeToolList(w io.Writer, all []*tools.Tool) {
	sorted := append([]*tools.Tool(nil), all...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Category != sorted[j].Category {
			return sorted[i].Category < sorted[j].Category
		}
		return sorted[i].Priority > sorted[j].Priority
	})

	var category tools.ToolCategory
	for _, tool := range sorted {
		if tool.Category != category {
			category = tool.Category
			fmt.Fprintln(w, headingStyle.Render(string(category)))
		}
		fmt.Fprintf(w, "  %-16s %s\n", tool.Name, firstLine(tool.Description))
	}
}

// toolsMarkdown documents every tool with its parameters.
func toolsMarkdown(all []*tools.Tool) string {
	var sb strings.Builder
	sb.WriteString("# Tools\n")
	for _, tool := range all {
		fmt.Fprintf(&sb, "\n## %s\n\n*%s*\n\n%s\n", tool.Name, tool.Category, tool.Description)
		if len(tool.Schema.Properties) == 0 {
			continue
		}

		required := make(map[string]bool, len(tool.Schema.Required))
		for _, name := range tool.Schema.Required {
			required[name] = true
		}
		names := make([]string, 0, len(tool.Schema.Properties))
		for name := range tool.Schema.Properties {
			names = append(names, name)
		}
		sort.Strings(names)

		sb.WriteString("\n| Parameter | Type | Required | Description |\n|---|---|---|---|\n")
		for _, name := range names {
			prop := tool.Schema.Properties[name]
			req := ""
			if required[name] {
				req = "yes"
			}
			fmt.Fprintf(&sb, "| `%s` | %s | %s | %s |\n", name, prop.Type, req, prop.Description)
		}
	}
	return sb.String()
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func runCall(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetString("args")
	toolArgs, err := decodeArgs([]byte(raw))
	if err != nil {
		return err
	}

	env, err := openEnv(envOptions{sandbox: true, store: true})
	if err != nil {
		return err
	}
	defer env.Close()

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()
	if session, _ := cmd.Flags().GetString("session"); session != "" {
		ctx = tools.WithSession(ctx, session)
	}

	res, err := env.reg.Execute(ctx, args[0], toolArgs)
	if res != nil {
		logger.Debug("Tool executed",
			zap.String("tool", res.ToolName),
			zap.Int64("duration_ms", res.DurationMs),
			zap.Bool("success", res.IsSuccess()))
		printText(cmd.OutOrStdout(), res)
	}
	return err
}

// decodeArgs parses a JSON object of tool arguments. Empty input means no arguments.
func decodeArgs(data []byte) (map[string]any, error) {
	if len(strings.TrimSpace(string(data))) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(data, &args); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
