// Package packaging turns a pruned jail directory into a single crate file.
package packaging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kernel/crate/lib/command"
)

// Format is the on-disk format of a crate file
type Format string

const (
	// FormatTarZstd is a zstd-compressed tar stream, byte-identical for identical trees
	FormatTarZstd Format = "tzst"
	// FormatCpio is a gzip-compressed newc cpio archive
	FormatCpio Format = "cpio"
	// FormatErofs is an erofs image built by mkfs.erofs
	FormatErofs Format = "erofs"
)

// DefaultFormat is used when none is configured
const DefaultFormat = FormatTarZstd

// ErrUnknownFormat is returned for an unsupported crate format
var ErrUnknownFormat = errors.New("unknown crate format")

// Packager writes the contents of srcDir into dstFile and returns its size
type Packager interface {
	Create(ctx context.Context, srcDir, dstFile string) (int64, error)
}

// ParseFormat validates a format name; "" selects DefaultFormat
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return DefaultFormat, nil
	case FormatTarZstd, FormatCpio, FormatErofs:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// New returns the Packager for format. runner is used by formats relying on
// external tools.
func New(format Format, runner command.Runner) (Packager, error) {
	switch format {
	case FormatTarZstd, "":
		return &TarZstd{}, nil
	case FormatCpio:
		return &Cpio{}, nil
	case FormatErofs:
		if runner == nil {
			runner = command.NewRunner()
		}
		return &Erofs{Runner: runner}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
}

// writeAtomic creates dstFile through a temp file in the same directory, renamed
// into place only when write succeeds
func writeAtomic(dstFile string, write func(f *os.File) error) (int64, error) {
	dir := filepath.Dir(dstFile)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dstFile)+".*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close crate file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return 0, fmt.Errorf("chmod crate file: %w", err)
	}
	if err := os.Rename(tmp.Name(), dstFile); err != nil {
		return 0, fmt.Errorf("move crate file into place: %w", err)
	}
	info, err := os.Stat(dstFile)
	if err != nil {
		return 0, fmt.Errorf("stat crate file: %w", err)
	}
	return info.Size(), nil
}
