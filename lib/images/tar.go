package images

import (
	"archive/tar"
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/kernel/crate/lib/logger"
)

// TarUnpacker extracts tar, tar.gz and tar.zst archives in-process
type TarUnpacker struct {
	// MaxBytes bounds the extracted content; zero means unlimited
	MaxBytes int64
}

func (u *TarUnpacker) Unpack(ctx context.Context, src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	start := time.Now()
	n, err := ExtractArchive(f, dest, u.MaxBytes)
	if err != nil {
		return err
	}
	logger.FromContext(ctx).InfoContext(ctx, "extracted archive",
		"src", src, "bytes", n, "duration", time.Since(start))
	return nil
}

// ExtractArchive decompresses r according to its magic and extracts the tar stream
func ExtractArchive(r io.Reader, destDir string, maxBytes int64) (int64, error) {
	br := bufio.NewReaderSize(r, 4096)
	head, _ := br.Peek(tarMagicOffset + len(tarMagic))
	format, err := sniff(head)
	if err != nil {
		return 0, err
	}

	var stream io.Reader = br
	switch format {
	case FormatGzip:
		gzr, err := pgzip.NewReader(br)
		if err != nil {
			return 0, fmt.Errorf("gzip reader: %w", err)
		}
		defer gzr.Close()
		stream = gzr
	case FormatZstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return 0, fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		stream = zr
	case FormatTar:
	default:
		return 0, fmt.Errorf("%w: %s cannot be extracted in-process", ErrUnknownFormat, format)
	}
	return ExtractTar(stream, destDir, maxBytes)
}

// ExtractTar extracts an uncompressed tar stream to destDir, aborting once the
// extracted content exceeds maxBytes (zero means unlimited). Every entry path is
// resolved inside destDir so that symlinks extracted earlier cannot redirect writes
// outside it. Symlink targets are stored verbatim: absolute targets are meant to be
// read relative to the jail root.
func ExtractTar(r io.Reader, destDir string, maxBytes int64) (int64, error) {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return 0, fmt.Errorf("create dest dir: %w", err)
	}
	limited := maxBytes > 0

	tr := tar.NewReader(r)
	asRoot := os.Geteuid() == 0
	var extractedBytes int64
	var dirs []*tar.Header

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return extractedBytes, fmt.Errorf("read tar header: %w", err)
		}

		targetPath, err := sanitizePath(destDir, header.Name)
		if err != nil {
			return extractedBytes, err
		}
		if targetPath == filepath.Clean(destDir) {
			continue
		}

		if limited && header.Size > maxBytes-extractedBytes {
			return extractedBytes, fmt.Errorf("%w: would exceed %d bytes", ErrArchiveTooLarge, maxBytes)
		}

		mode := header.FileInfo().Mode()
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, 0755); err != nil {
				return extractedBytes, fmt.Errorf("create dir %s: %w", header.Name, err)
			}
			// modes are applied after extraction so read-only dirs can be filled
			dirs = append(dirs, header)
			continue

		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return extractedBytes, fmt.Errorf("create parent dir: %w", err)
			}
			if err := removeExisting(targetPath); err != nil {
				return extractedBytes, err
			}
			f, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, mode.Perm())
			if err != nil {
				return extractedBytes, fmt.Errorf("create file %s: %w", header.Name, err)
			}

			var src io.Reader = tr
			if limited {
				src = io.LimitReader(tr, limitFor(maxBytes-extractedBytes))
			}
			n, err := io.Copy(f, src)
			f.Close()
			if err != nil {
				return extractedBytes, fmt.Errorf("write file %s: %w", header.Name, err)
			}
			extractedBytes += n
			if limited && extractedBytes > maxBytes {
				return extractedBytes, fmt.Errorf("%w: exceeded %d bytes", ErrArchiveTooLarge, maxBytes)
			}

		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return extractedBytes, fmt.Errorf("create parent dir for symlink: %w", err)
			}
			if err := removeExisting(targetPath); err != nil {
				return extractedBytes, err
			}
			if err := os.Symlink(header.Linkname, targetPath); err != nil {
				return extractedBytes, fmt.Errorf("create symlink %s: %w", header.Name, err)
			}

		case tar.TypeLink:
			linkTarget, err := sanitizePath(destDir, header.Linkname)
			if err != nil {
				return extractedBytes, err
			}
			if err := os.MkdirAll(filepath.Dir(targetPath), 0755); err != nil {
				return extractedBytes, fmt.Errorf("create parent dir for hardlink: %w", err)
			}
			if err := removeExisting(targetPath); err != nil {
				return extractedBytes, err
			}
			if err := os.Link(linkTarget, targetPath); err != nil {
				return extractedBytes, fmt.Errorf("create hardlink %s: %w", header.Name, err)
			}
			continue

		default:
			// devices and fifos have no place in a crate
			continue
		}

		if err := applyMetadata(targetPath, header, asRoot); err != nil {
			return extractedBytes, err
		}
	}

	for i := len(dirs) - 1; i >= 0; i-- {
		targetPath, _ := sanitizePath(destDir, dirs[i].Name)
		if err := applyMetadata(targetPath, dirs[i], asRoot); err != nil {
			return extractedBytes, err
		}
	}
	return extractedBytes, nil
}

// limitFor reads one byte past remaining so an oversized entry is detected
func limitFor(remaining int64) int64 {
	if remaining < math.MaxInt64 {
		return remaining + 1
	}
	return remaining
}

func applyMetadata(path string, h *tar.Header, asRoot bool) error {
	if asRoot {
		if err := os.Lchown(path, h.Uid, h.Gid); err != nil {
			return fmt.Errorf("chown %s: %w", h.Name, err)
		}
	}
	if h.Typeflag == tar.TypeSymlink {
		return nil
	}
	if err := os.Chmod(path, h.FileInfo().Mode()&(os.ModePerm|os.ModeSetuid|os.ModeSetgid|os.ModeSticky)); err != nil {
		return fmt.Errorf("chmod %s: %w", h.Name, err)
	}
	if !h.ModTime.IsZero() {
		if err := os.Chtimes(path, h.ModTime, h.ModTime); err != nil {
			return fmt.Errorf("set times on %s: %w", h.Name, err)
		}
	}
	return nil
}

func removeExisting(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// sanitizePath returns the location of an archive entry inside destDir. The parent is
// resolved with symlinks scoped to destDir; the last element is left unresolved so the
// entry itself can be a symlink.
func sanitizePath(destDir, name string) (string, error) {
	for _, part := range strings.Split(filepath.ToSlash(name), "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: path traversal in %s", ErrInvalidArchivePath, name)
		}
	}
	name = filepath.Clean("/" + name)
	if name == "/" {
		return filepath.Clean(destDir), nil
	}

	parent, err := securejoin.SecureJoin(destDir, filepath.Dir(name))
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidArchivePath, name, err)
	}
	return filepath.Join(parent, filepath.Base(name)), nil
}
