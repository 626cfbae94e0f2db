package sandbox

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

const fakeContainerID = "c0ffee0123456789abcdef"

// TestHelperProcess isn't a real test. It impersonates podman for the
// execCommandContext fake. Args are [binary, -test.run=..., --, podman, subcommand...].
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+2:]
			break
		}
	}
	if len(args) == 0 {
		os.Exit(2)
	}

	if logPath := os.Getenv("MOCK_LOG"); logPath != "" {
		if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644); err == nil {
			fmt.Fprintln(f, strings.Join(args, " "))
			f.Close()
		}
	}

	switch args[0] {
	case "version":
		fmt.Fprint(os.Stdout, "4.9.3")
	case "image":
		if os.Getenv("MOCK_IMAGE_EXISTS") != "1" {
			os.Exit(1)
		}
	case "create":
		if d, err := time.ParseDuration(os.Getenv("MOCK_CREATE_SLEEP")); err == nil {
			time.Sleep(d)
		}
		fmt.Fprintln(os.Stdout, fakeContainerID)
	case "inspect":
		if v := os.Getenv("MOCK_RUNNING"); v != "" {
			fmt.Fprintln(os.Stdout, v)
		} else {
			fmt.Fprintln(os.Stdout, "true")
		}
	case "run", "exec":
		if d, err := time.ParseDuration(os.Getenv("MOCK_SLEEP")); err == nil {
			time.Sleep(d)
		}
		switch {
		case os.Getenv("MOCK_STDIN_ECHO") == "1":
			io.Copy(os.Stdout, os.Stdin)
		case os.Getenv("MOCK_STDOUT") != "":
			fmt.Fprint(os.Stdout, os.Getenv("MOCK_STDOUT"))
		default:
			fmt.Fprint(os.Stdout, strings.Join(args, " "))
		}
		if v := os.Getenv("MOCK_STDERR"); v != "" {
			fmt.Fprint(os.Stderr, v)
		}
		if code, err := strconv.Atoi(os.Getenv("MOCK_EXIT_CODE")); err == nil {
			os.Exit(code)
		}
	}
	os.Exit(0)
}

func fakeExecCommandContext(ctx context.Context, command string, args ...string) *exec.Cmd {
	cs := []string{"-test.run=TestHelperProcess", "--", command}
	cs = append(cs, args...)
	return exec.CommandContext(ctx, os.Args[0], cs...)
}

// withFakePodman swaps podman for the helper process and returns the path of
// the invocation log.
func withFakePodman(t *testing.T) string {
	t.Helper()

	oldExec, oldLook := execCommandContext, lookPath
	execCommandContext = fakeExecCommandContext
	lookPath = func(file string) (string, error) { return file, nil }
	t.Cleanup(func() {
		execCommandContext = oldExec
		lookPath = oldLook
	})

	logPath := filepath.Join(t.TempDir(), "podman.log")
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("MOCK_LOG", logPath)
	return logPath
}

// withoutPodman makes the binary lookup fail.
func withoutPodman(t *testing.T) {
	t.Helper()
	oldLook := lookPath
	lookPath = func(file string) (string, error) { return "", exec.ErrNotFound }
	t.Cleanup(func() { lookPath = oldLook })
}

// podmanCalls returns the logged invocations, one per line.
func podmanCalls(t *testing.T, logPath string) []string {
	t.Helper()
	data, err := os.ReadFile(logPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read podman log: %v", err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func callsWithPrefix(calls []string, prefix string) []string {
	var out []string
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}
