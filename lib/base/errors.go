package base

import "errors"

var (
	// ErrUnsupportedVersion is returned when a release is not in the version table
	ErrUnsupportedVersion = errors.New("unsupported base version")

	// ErrUnsupportedArch is returned when a release has no archive for the architecture
	ErrUnsupportedArch = errors.New("unsupported architecture")

	// ErrDownloadFailed is returned when fetching the base archive fails
	ErrDownloadFailed = errors.New("download failed")

	// ErrTooLarge is returned when the archive exceeds the configured size limit
	ErrTooLarge = errors.New("base archive too large")
)
