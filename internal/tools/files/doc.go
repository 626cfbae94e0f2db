// Package files provides workspace-confined file tools.
//
// Every path a tool receives is resolved against a Workspace root. Paths that
// escape the root, lexically or through symlinks, are refused.
//
// Tools:
//   - write_file: Write or append content to a file
//   - read_file: Read a file, optionally a line range
//   - list_directory: List directory contents
package files
