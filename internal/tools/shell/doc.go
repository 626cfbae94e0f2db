// Package shell provides sandbox-backed execution tools.
//
// Every command runs inside a Podman container through an Executor; nothing
// here starts host processes.
//
// Tools:
//   - run_in_sandbox: Execute a shell command in a sandbox container
//   - run_code: Execute a source snippet in a given language
//   - run_build: Execute the project build command
//   - run_tests: Execute the project test command
package shell
