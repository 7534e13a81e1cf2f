package images

import "errors"

var (
	// ErrUnknownFormat is returned when an archive's format cannot be recognised
	ErrUnknownFormat = errors.New("unknown archive format")
	// ErrUnknownMode is returned for an unpack mode that has no unpacker
	ErrUnknownMode = errors.New("unknown unpack mode")
	// ErrArchiveTooLarge is returned when extracted content exceeds the size limit
	ErrArchiveTooLarge = errors.New("archive content exceeds size limit")
	// ErrInvalidArchivePath is returned when a tar entry has a malicious path
	ErrInvalidArchivePath = errors.New("invalid archive path")
	// ErrNotFound is returned when an image reference does not resolve
	ErrNotFound = errors.New("image not found")
	// ErrInvalidName is returned for unparseable image references
	ErrInvalidName = errors.New("invalid image name")
)
