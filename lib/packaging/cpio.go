package packaging

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/u-root/u-root/pkg/cpio"
)

// Cpio writes a gzip-compressed newc cpio archive with reproducible records
type Cpio struct{}

func (p *Cpio) Create(ctx context.Context, srcDir, dstFile string) (int64, error) {
	return writeAtomic(dstFile, func(f *os.File) error {
		gz, err := gzip.NewWriterLevel(f, gzip.BestCompression)
		if err != nil {
			return fmt.Errorf("gzip writer: %w", err)
		}
		if err := writeCpio(ctx, gz, srcDir); err != nil {
			gz.Close()
			return err
		}
		if err := gz.Close(); err != nil {
			return fmt.Errorf("flush gzip stream: %w", err)
		}
		return nil
	})
}

func writeCpio(ctx context.Context, w io.Writer, root string) error {
	rw := cpio.Newc.Writer(w)
	// one recorder per archive so hardlinks share an inode number
	recorder := cpio.NewRecorder()

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		rec, err := recorder.GetRecord(path)
		if err != nil {
			return fmt.Errorf("cpio record for %s: %w", rel, err)
		}
		if c, ok := rec.ReaderAt.(io.Closer); ok {
			defer c.Close()
		}
		rec.Name = filepath.ToSlash(rel)
		out := cpio.MakeReproducible(rec)
		out.Ino, out.NLink = rec.Ino, rec.NLink
		if err := rw.WriteRecord(out); err != nil {
			return fmt.Errorf("write cpio record %s: %w", rel, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", root, err)
	}
	return cpio.WriteTrailer(rw)
}
