package main

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autoengineer/internal/config"
	"autoengineer/internal/sandbox"
)

var runCmd = &cobra.Command{
	Use:   "run -- COMMAND [ARGS...]",
	Short: "Run a shell command in a fresh sandbox container",
	Long: `Runs the command with sh -c in a throwaway Podman container.

The workspace is mounted at the configured mount path unless --no-workspace
is given. The command's exit code becomes autoeng's exit code.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var codeCmd = &cobra.Command{
	Use:   "code [FILE|-]",
	Short: "Run a code snippet in the sandbox",
	Long: `Runs source code with the interpreter for --lang. The source is read
from FILE, or from stdin when FILE is "-" or omitted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCode,
}

func runRun(cmd *cobra.Command, args []string) error {
	env, err := openEnv(envOptions{})
	if err != nil {
		return err
	}
	defer env.Close()

	opts := env.cfg.ToSandboxOptions(env.root)
	runOpts := []sandbox.RunOption{sandbox.WithOptions(opts)}

	if image, _ := cmd.Flags().GetString("image"); image != "" {
		runOpts = append(runOpts, sandbox.WithImage(image))
	}
	if network, _ := cmd.Flags().GetString("network"); network != "" {
		if !slices.Contains(config.ValidNetworks, network) {
			return fmt.Errorf("invalid network %q (valid: %v)", network, config.ValidNetworks)
		}
		runOpts = append(runOpts, sandbox.WithNetwork(network))
	}
	if names, _ := cmd.Flags().GetStringSlice("env"); len(names) > 0 {
		runOpts = append(runOpts, sandbox.WithEnv(names...))
	}
	if noWS, _ := cmd.Flags().GetBool("no-workspace"); noWS {
		runOpts = append(runOpts, sandbox.WithWorkspace(""))
	} else if ro, _ := cmd.Flags().GetBool("read-only"); ro {
		runOpts = append(runOpts, sandbox.WithReadOnlyWorkspace(env.root))
	}

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	command := joinArgs(args)
	logger.Debug("Running in sandbox", zap.String("command", command))

	res, err := sandbox.RunInSandbox(ctx, command, runOpts...)
	if res != nil {
		printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
	}
	if err != nil {
		return err
	}
	return resultError(res)
}

func runCode(cmd *cobra.Command, args []string) error {
	lang, _ := cmd.Flags().GetString("lang")

	src := "-"
	if len(args) == 1 {
		src = args[0]
	}
	var data []byte
	var err error
	if src == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(src)
	}
	if err != nil {
		return fmt.Errorf("failed to read source: %w", err)
	}

	env, err := openEnv(envOptions{sandbox: true})
	if err != nil {
		return err
	}
	defer env.Close()
	if !env.sb.IsAvailable() {
		return sandbox.ErrPodmanUnavailable
	}

	ctx, cancel := commandContext(cmd.Context())
	defer cancel()

	res, err := env.sb.RunCode(ctx, lang, string(data))
	if res != nil {
		printResult(cmd.OutOrStdout(), cmd.ErrOrStderr(), res)
	}
	if err != nil {
		return err
	}
	return resultError(res)
}

// printResult writes the container's streams to the matching host streams.
func printResult(stdout, stderr io.Writer, res *sandbox.ExecutionResult) {
	fmt.Fprint(stdout, res.Stdout)
	fmt.Fprint(stderr, res.Stderr)
	if res.Truncated {
		fmt.Fprintf(stderr, "autoeng: output truncated, %d bytes dropped\n", res.TruncatedBytes)
	}
}

// resultError maps an execution outcome onto the CLI's exit status.
func resultError(res *sandbox.ExecutionResult) error {
	switch {
	case !res.Success:
		return fmt.Errorf("sandbox failure: %s", res.Error)
	case res.Killed:
		return fmt.Errorf("killed: %s", res.KillReason)
	case res.ExitCode != 0:
		return &exitCodeError{code: res.ExitCode}
	}
	return nil
}
