package shell

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// TestAnalysis summarizes test runner output.
type TestAnalysis struct {
	Passed      int      `json:"passed"`
	Failed      int      `json:"failed"`
	Skipped     int      `json:"skipped"`
	Total       int      `json:"total"`
	OverallPass bool     `json:"overall_pass"`
	FailedTests []string `json:"failed_tests,omitempty"`
	Coverage    float64  `json:"coverage,omitempty"`
}

// pytest ends with a line like "==== 3 passed, 1 failed, 2 skipped in 0.12s ====".
var pytestSummary = regexp.MustCompile(`(\d+) (passed|failed|skipped|error|errors)\b`)

// AnalyzeTestOutput extracts counts from go test and pytest output. A
// non-zero exitCode always fails the run, whatever the output says.
func AnalyzeTestOutput(output string, exitCode int) TestAnalysis {
	var a TestAnalysis
	sawVerdict := false

	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(line, "--- PASS:"):
			a.Passed++
		case strings.HasPrefix(line, "--- FAIL:"):
			a.Failed++
			if parts := strings.Fields(line); len(parts) >= 3 {
				a.FailedTests = append(a.FailedTests, parts[2])
			}
		case strings.HasPrefix(line, "--- SKIP:"):
			a.Skipped++
		case line == "PASS" || strings.HasPrefix(line, "ok "):
			if !sawVerdict {
				a.OverallPass = true
			}
			sawVerdict = true
		case line == "FAIL" || strings.HasPrefix(line, "FAIL\t") || strings.HasPrefix(line, "FAIL "):
			a.OverallPass = false
			sawVerdict = true
		case strings.HasPrefix(line, "FAILED "):
			a.FailedTests = append(a.FailedTests, strings.Fields(line)[1])
		case strings.HasPrefix(line, "=") && strings.HasSuffix(line, "=") && pytestSummary.MatchString(line):
			for _, m := range pytestSummary.FindAllStringSubmatch(line, -1) {
				n, _ := strconv.Atoi(m[1])
				switch m[2] {
				case "passed":
					a.Passed += n
				case "failed", "error", "errors":
					a.Failed += n
				case "skipped":
					a.Skipped += n
				}
			}
			a.OverallPass = a.Failed == 0
			sawVerdict = true
		}

		if strings.Contains(line, "coverage:") {
			for _, part := range strings.Fields(line) {
				if strings.HasSuffix(part, "%") {
					fmt.Sscanf(part, "%f%%", &a.Coverage)
				}
			}
		}
	}

	a.Total = a.Passed + a.Failed + a.Skipped
	if !sawVerdict {
		a.OverallPass = a.Failed == 0 && a.Total > 0
	}
	if exitCode != 0 {
		a.OverallPass = false
	}
	return a
}

// Summary renders the analysis as a single bracketed line.
func (a TestAnalysis) Summary() string {
	verdict := "failing"
	if a.OverallPass {
		verdict = "passing"
	}
	s := fmt.Sprintf("[tests %s: %d passed, %d failed, %d skipped]", verdict, a.Passed, a.Failed, a.Skipped)
	if len(a.FailedTests) > 0 {
		s += "\n[failed: " + strings.Join(a.FailedTests, ", ") + "]"
	}
	if a.Coverage > 0 {
		s += fmt.Sprintf("\n[coverage: %.1f%%]", a.Coverage)
	}
	return s
}

// BuildAnalysis summarizes compiler output.
type BuildAnalysis struct {
	Success     bool         `json:"success"`
	ExitCode    int          `json:"exit_code"`
	Errors      int          `json:"errors"`
	Warnings    int          `json:"warnings"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Diagnostic is a single compiler error or warning.
type Diagnostic struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// file:line:col: message, as printed by go, gcc, clang and rustc's short format.
var diagnosticLine = regexp.MustCompile(`^(\S+\.\w+):(\d+):(\d+):\s*(.+)$`)

// AnalyzeBuildOutput extracts file:line:col diagnostics. The build succeeded
// only if it exited 0 and printed no errors; npm and make often fail without
// a single parseable diagnostic.
func AnalyzeBuildOutput(output string, exitCode int) BuildAnalysis {
	a := BuildAnalysis{ExitCode: exitCode}
	for _, line := range strings.Split(output, "\n") {
		m := diagnosticLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		lineNum, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])

		severity := "error"
		msg := m[4]
		if strings.HasPrefix(msg, "warning") {
			severity = "warning"
			a.Warnings++
		} else {
			a.Errors++
		}
		a.Diagnostics = append(a.Diagnostics, Diagnostic{
			File:     m[1],
			Line:     lineNum,
			Column:   col,
			Message:  msg,
			Severity: severity,
		})
	}
	a.Success = exitCode == 0 && a.Errors == 0
	return a
}

// Summary renders the analysis as a single bracketed line.
func (a BuildAnalysis) Summary() string {
	verdict := "ok"
	if !a.Success {
		verdict = "failed"
	}
	return fmt.Sprintf("[build %s: %d errors, %d warnings]", verdict, a.Errors, a.Warnings)
}
