package images

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/kernel/crate/lib/command"
	"github.com/kernel/crate/lib/logger"
	"golang.org/x/sync/errgroup"
)

// DefaultXzThreads is the decompression parallelism used when none is configured
const DefaultXzThreads = 8

// XZUnpacker runs "xz --decompress" piped into "tar -xf - -C dest"
type XZUnpacker struct {
	Threads int
	// XzPath and TarPath default to the binaries found in PATH
	XzPath  string
	TarPath string
}

func (u *XZUnpacker) Unpack(ctx context.Context, src, dest string) error {
	log := logger.FromContext(ctx)
	threads := u.Threads
	if threads <= 0 {
		threads = DefaultXzThreads
	}
	xzPath, tarPath := u.XzPath, u.TarPath
	if xzPath == "" {
		xzPath = "xz"
	}
	if tarPath == "" {
		tarPath = "tar"
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open base archive: %w", err)
	}
	defer in.Close()

	what := fmt.Sprintf("unpack %s into %s", src, dest)
	pr, pw, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create pipe: %w", err)
	}

	xz := exec.CommandContext(ctx, xzPath, "--decompress", "--threads="+strconv.Itoa(threads))
	xz.Stdin = in
	xz.Stdout = pw
	var xzErr bytes.Buffer
	xz.Stderr = &xzErr

	tar := exec.CommandContext(ctx, tarPath, "-xf", "-", "-C", dest)
	tar.Stdin = pr
	var tarOut bytes.Buffer
	tar.Stdout = &tarOut
	tar.Stderr = &tarOut

	start := time.Now()
	log.DebugContext(ctx, "starting unpack pipeline", "src", src, "dest", dest, "threads", threads)

	if err := xz.Start(); err != nil {
		pr.Close()
		pw.Close()
		return command.AsCommandError(err, what+" (xz)", nil)
	}
	if err := tar.Start(); err != nil {
		pr.Close()
		pw.Close()
		xz.Process.Kill()
		xz.Wait()
		return command.AsCommandError(err, what+" (tar)", nil)
	}
	// the children hold their own copies; xz sees EPIPE if tar exits early
	pr.Close()
	pw.Close()

	var g errgroup.Group
	g.Go(func() error {
		return command.AsCommandError(xz.Wait(), what+" (xz)", xzErr.Bytes())
	})
	g.Go(func() error {
		return command.AsCommandError(tar.Wait(), what+" (tar)", tarOut.Bytes())
	})
	if err := g.Wait(); err != nil {
		return err
	}

	log.InfoContext(ctx, "unpacked base archive", "src", src, "duration", time.Since(start))
	return nil
}
