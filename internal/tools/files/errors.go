package files

import "errors"

var (
	// ErrOutsideWorkspace is returned when a path resolves outside the root.
	ErrOutsideWorkspace = errors.New("path is outside the workspace")

	// ErrProtectedPath is returned when writing into the tool state directory.
	ErrProtectedPath = errors.New("path is protected")

	// ErrHiddenPath is returned for dot paths when hidden files are disallowed.
	ErrHiddenPath = errors.New("hidden paths are not allowed")

	// ErrTooLarge is returned when content exceeds the configured size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrBinaryFile is returned when reading a file that looks binary.
	ErrBinaryFile = errors.New("binary file")

	// ErrIsDirectory is returned when a file operation targets a directory.
	ErrIsDirectory = errors.New("path is a directory")

	// ErrNotDirectory is returned when a directory operation targets a file.
	ErrNotDirectory = errors.New("path is not a directory")

	// ErrInvalidMode is returned for an unknown write mode.
	ErrInvalidMode = errors.New("invalid write mode")
)
