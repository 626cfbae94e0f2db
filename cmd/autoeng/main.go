package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"autoengineer/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "autoeng",
	Short: "autoeng - sandboxed execution and workspace file tools",
	Long: `autoeng runs commands and code snippets inside rootless Podman containers
and gives tool-calling agents confined read, write and list access to a workspace.

Every execution is isolated: no network, all capabilities dropped, bounded
memory, processes and time. The workspace is the only host path mounted.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: detected from the current directory)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: <workspace>/.autoeng/config.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	runCmd.Flags().String("image", "", "Container image (default from config)")
	runCmd.Flags().String("network", "", "Network mode: none, slirp4netns, pasta, host, private")
	runCmd.Flags().StringSlice("env", nil, "Host environment variables to pass through")
	runCmd.Flags().Bool("no-workspace", false, "Do not mount the workspace")
	runCmd.Flags().Bool("read-only", false, "Mount the workspace read-only")
	codeCmd.Flags().StringP("lang", "l", "", "Language of the snippet (required)")
	_ = codeCmd.MarkFlagRequired("lang")

	writeCmd.Flags().Bool("append", false, "Append instead of overwriting")
	readCmd.Flags().Int("start", 0, "First line to print (1-indexed)")
	readCmd.Flags().Int("end", 0, "Last line to print (inclusive)")
	lsCmd.Flags().BoolP("recursive", "r", false, "List recursively")
	lsCmd.Flags().BoolP("all", "a", false, "Include hidden entries")
	lsCmd.Flags().Int("max", 0, "Maximum entries (default from config)")

	toolsCmd.Flags().Bool("json", false, "Print function-calling definitions as JSON")
	toolsCmd.Flags().Bool("describe", false, "Render full tool descriptions")
	callCmd.Flags().String("args", "{}", "Tool arguments as a JSON object")
	callCmd.Flags().String("session", "", "Session ID attached to the recorded execution")

	historyCmd.Flags().String("tool", "", "Only show executions of this tool")
	historyCmd.Flags().String("session", "", "Only show executions of this session")
	historyCmd.Flags().Int("limit", 20, "Maximum executions to show")
	historyCmd.Flags().Bool("json", false, "Print executions as JSON")
	historyPruneCmd.Flags().Duration("older-than", 0, "Delete executions older than this")
	historyPruneCmd.Flags().Int("keep", 0, "Keep only the newest N executions")
	historyCmd.AddCommand(historyPruneCmd)
	historyCmd.AddCommand(historyStatsCmd)

	doctorCmd.Flags().Bool("pull", false, "Pull the sandbox image when missing")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(codeCmd)
	rootCmd.AddCommand(readCmd)
	rootCmd.AddCommand(writeCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(doctorCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *exitCodeError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitCodeError carries a sandboxed command's non-zero exit code out of RunE.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// joinArgs joins command arguments with spaces
func joinArgs(args []string) string {
	return strings.Join(args, " ")
}
