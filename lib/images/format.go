package images

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Format is the container format of a base archive
type Format string

const (
	FormatXz        Format = "xz"
	FormatGzip      Format = "gzip"
	FormatZstd      Format = "zstd"
	FormatTar       Format = "tar"
	FormatOCILayout Format = "oci-layout"
)

var (
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	tarMagic  = []byte("ustar")
)

// tarMagicOffset is where the ustar magic lives in a tar header block
const tarMagicOffset = 257

// DetectFormat sniffs the format of path. A directory holding an oci-layout file is
// reported as FormatOCILayout.
func DetectFormat(path string) (Format, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		if _, err := os.Stat(filepath.Join(path, "oci-layout")); err == nil {
			return FormatOCILayout, nil
		}
		return "", fmt.Errorf("%w: %s is a directory", ErrUnknownFormat, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	head := make([]byte, tarMagicOffset+len(tarMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read archive header: %w", err)
	}
	return sniff(head[:n])
}

func sniff(head []byte) (Format, error) {
	switch {
	case bytes.HasPrefix(head, xzMagic):
		return FormatXz, nil
	case bytes.HasPrefix(head, gzipMagic):
		return FormatGzip, nil
	case bytes.HasPrefix(head, zstdMagic):
		return FormatZstd, nil
	case len(head) >= tarMagicOffset+len(tarMagic) &&
		bytes.Equal(head[tarMagicOffset:tarMagicOffset+len(tarMagic)], tarMagic):
		return FormatTar, nil
	}
	return "", ErrUnknownFormat
}
