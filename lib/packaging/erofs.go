package packaging

import (
	"context"
	"os"

	"github.com/kernel/crate/lib/command"
)

// Erofs builds an erofs image with LZ4 compression through mkfs.erofs
type Erofs struct {
	Runner command.Runner
}

func (p *Erofs) Create(ctx context.Context, srcDir, dstFile string) (int64, error) {
	return writeAtomic(dstFile, func(f *os.File) error {
		// mkfs.erofs creates the image itself
		return p.Runner.Run(ctx, "create the erofs image", "mkfs.erofs", "-zlz4", f.Name(), srcDir)
	})
}
