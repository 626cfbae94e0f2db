package shell

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"autoengineer/internal/sandbox"
)

// MaxOutputChars caps the text a tool returns to the caller.
const MaxOutputChars = 50000

// FormatResult renders an execution result as tool output: stdout, a stderr
// section, then a status line for non-zero exits and kills.
func FormatResult(res *sandbox.ExecutionResult) string {
	if res == nil {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(res.Stdout)
	if res.Stderr != "" {
		if sb.Len() > 0 {
			if !strings.HasSuffix(res.Stdout, "\n") {
				sb.WriteByte('\n')
			}
			sb.WriteString("--- stderr ---\n")
		}
		sb.WriteString(res.Stderr)
	}

	status := ""
	switch {
	case res.Killed:
		status = fmt.Sprintf("[killed: %s]", res.KillReason)
	case res.ExitCode != 0:
		status = fmt.Sprintf("[exit code %d]", res.ExitCode)
	}
	if res.Truncated {
		if status != "" {
			status += " "
		}
		status += fmt.Sprintf("[output truncated: %d bytes dropped]", res.TruncatedBytes)
	}
	if status != "" {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString(status)
	}

	return truncate(sb.String(), MaxOutputChars)
}

// truncate cuts s to at most limit bytes on a rune boundary.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "\n...[truncated]"
}

// finish turns an Execute outcome into the tool's (string, error) pair.
// Non-zero exits are results; podman failures are errors.
func finish(res *sandbox.ExecutionResult, err error) (string, error) {
	if err != nil {
		return "", err
	}
	if res == nil {
		return "", errors.New("sandbox returned no result")
	}
	out := FormatResult(res)
	if !res.Success {
		return out, fmt.Errorf("sandbox failure: %s", res.Error)
	}
	return out, nil
}
