// Package images unpacks a base system into a jail directory, from a release
// archive, a local OCI layout or a registry image.
package images

import (
	"context"
	"fmt"
)

// Unpacker populates dest from src. dest exists and is empty.
type Unpacker interface {
	Unpack(ctx context.Context, src, dest string) error
}

// Mode selects an Unpacker
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeXz       Mode = "xz"
	ModeTar      Mode = "tar"
	ModeOCI      Mode = "oci"
	ModeRegistry Mode = "registry"
)

// Options configures the unpackers built by NewUnpacker
type Options struct {
	XzThreads int
	MaxBytes  int64
	// OCITag names the image in a local layout for ModeOCI
	OCITag string
	// CacheDir is the OCI layout registry images are cached in
	CacheDir string
	Insecure bool
}

// NewUnpacker returns the Unpacker for mode
func NewUnpacker(mode Mode, opts Options) (Unpacker, error) {
	switch mode {
	case ModeAuto, "":
		return &AutoUnpacker{opts: opts}, nil
	case ModeXz:
		return &XZUnpacker{Threads: opts.XzThreads}, nil
	case ModeTar:
		return &TarUnpacker{MaxBytes: opts.MaxBytes}, nil
	case ModeOCI:
		return &OCIUnpacker{Tag: opts.OCITag}, nil
	case ModeRegistry:
		return &RegistryUnpacker{MaxBytes: opts.MaxBytes, CacheDir: opts.CacheDir, Insecure: opts.Insecure}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// AutoUnpacker picks an unpacker from the format of src
type AutoUnpacker struct {
	opts Options
}

func (u *AutoUnpacker) Unpack(ctx context.Context, src, dest string) error {
	format, err := DetectFormat(src)
	if err != nil {
		return fmt.Errorf("detect base format: %w", err)
	}

	var next Unpacker
	switch format {
	case FormatXz:
		next = &XZUnpacker{Threads: u.opts.XzThreads}
	case FormatGzip, FormatZstd, FormatTar:
		next = &TarUnpacker{MaxBytes: u.opts.MaxBytes}
	case FormatOCILayout:
		next = &OCIUnpacker{Tag: u.opts.OCITag}
	default:
		return fmt.Errorf("%w: %s", ErrUnknownFormat, format)
	}
	return next.Unpack(ctx, src, dest)
}
