// Package prune deletes filesystem trees while preserving an exact set of kept paths
// and every ancestor directory of a kept path.
//
// Removals go straight to the FS. A removal refused with EPERM gets its file flags
// cleared and is retried exactly once; any other failure aborts the prune.
package prune

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/kernel/crate/lib/sys"
	"golang.org/x/sys/unix"
)

// Stats counts what a Pruner did
type Stats struct {
	RemovedFiles int
	RemovedDirs  int
	Kept         int
	FlagRetries  int
}

// Removed returns the total number of removed entries
func (s Stats) Removed() int {
	return s.RemovedFiles + s.RemovedDirs
}

// Pruner removes files and directories through a sys.FS
type Pruner struct {
	fs    sys.FS
	guard *sys.Guard
	stats Stats
}

// New creates a Pruner; a nil fs means the real OS
func New(fs sys.FS) *Pruner {
	if fs == nil {
		fs = sys.OS{}
	}
	return &Pruner{fs: fs, guard: sys.NewGuard(fs)}
}

// FS returns the filesystem the Pruner works on
func (p *Pruner) FS() sys.FS {
	return p.fs
}

// Stats returns the counters accumulated so far
func (p *Pruner) Stats() Stats {
	return p.stats
}

// RemoveEntry unlinks a file, symlink or other non-directory entry
func (p *Pruner) RemoveEntry(path string) error {
	return wrap("remove", path, p.removeEntry(path))
}

// RemoveEmptyDir removes an empty directory
func (p *Pruner) RemoveEmptyDir(dir string) error {
	return wrap("rmdir", dir, p.removeDir(dir))
}

// PruneFlat removes every entry of dir and then dir itself. dir must not contain
// subdirectories; this is checked before anything is deleted.
func (p *Pruner) PruneFlat(dir string) error {
	return wrap("prune flat", dir, p.pruneFlat(dir))
}

// PruneHierarchical removes dir and everything below it. Symlinks are removed, never followed.
func (p *Pruner) PruneHierarchical(dir string) error {
	return wrap("prune", dir, p.pruneHier(dir))
}

// PruneHierarchicalExcept removes everything below dir that is not in keep and not
// an ancestor of something in keep. dir itself is removed only when nothing below it
// was kept. It reports whether anything was kept.
func (p *Pruner) PruneHierarchicalExcept(dir string, keep KeepSet) (bool, error) {
	kept, err := p.pruneHierExcept(dir, keep)
	return kept, wrap("prune except", dir, err)
}

// PruneFlatExcept removes the non-kept entries of dir, which must not hold any
// non-kept subdirectory. dir is removed only when nothing was skipped. It reports
// whether anything was skipped.
func (p *Pruner) PruneFlatExcept(dir string, keep KeepSet) (bool, error) {
	skipped, err := p.pruneFlatExcept(dir, keep)
	return skipped, wrap("prune flat except", dir, err)
}

func (p *Pruner) removeEntry(path string) error {
	err := p.fs.Unlink(path)
	if errors.Is(err, unix.EPERM) {
		if err := p.clearFlags(path); err != nil {
			return err
		}
		if err := sys.Check(p.fs.Unlink(path), "unlink (2)", path); err != nil {
			return err
		}
	} else if err := sys.Check(err, "unlink (1)", path); err != nil {
		return err
	}
	p.stats.RemovedFiles++
	return nil
}

func (p *Pruner) removeDir(dir string) error {
	err := p.fs.Rmdir(dir)
	if errors.Is(err, unix.EPERM) {
		if err := p.clearFlags(dir); err != nil {
			return err
		}
		if err := sys.Check(p.fs.Rmdir(dir), "rmdir (2)", dir); err != nil {
			return err
		}
	} else if err := sys.Check(err, "rmdir (1)", dir); err != nil {
		return err
	}
	p.stats.RemovedDirs++
	return nil
}

func (p *Pruner) clearFlags(path string) error {
	p.stats.FlagRetries++
	return p.guard.ClearFlags(path)
}

func (p *Pruner) readDir(dir string) ([]os.DirEntry, error) {
	entries, err := p.fs.ReadDir(dir)
	if err != nil {
		return nil, sys.Check(err, "readdir", dir)
	}
	return entries, nil
}

// isSubdir reports whether e is a real directory; symlinks to directories are leaves
func isSubdir(e os.DirEntry) bool {
	return e.Type()&os.ModeType == os.ModeDir
}

func (p *Pruner) pruneFlat(dir string) error {
	entries, err := p.readDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if isSubdir(e) {
			return &Error{Op: "check flat", Path: filepath.Join(dir, e.Name()), Err: ErrNotFlat}
		}
	}
	for _, e := range entries {
		if err := p.removeEntry(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return p.removeDir(dir)
}

func (p *Pruner) pruneHier(dir string) error {
	entries, err := p.readDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if isSubdir(e) {
			err = p.pruneHier(path)
		} else {
			err = p.removeEntry(path)
		}
		if err != nil {
			return err
		}
	}
	return p.removeDir(dir)
}

func (p *Pruner) pruneHierExcept(dir string, keep KeepSet) (bool, error) {
	if keep.Contains(dir) {
		p.stats.Kept++
		return true, nil
	}
	if !keep.Covers(dir) {
		return false, p.pruneHier(dir)
	}

	entries, err := p.readDir(dir)
	if err != nil {
		return false, err
	}
	skipped := 0
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if isSubdir(e) {
			kept, err := p.pruneHierExcept(path, keep)
			if err != nil {
				return false, err
			}
			if kept {
				skipped++
			}
			continue
		}
		if keep.Contains(path) {
			p.stats.Kept++
			skipped++
			continue
		}
		if err := p.removeEntry(path); err != nil {
			return false, err
		}
	}
	if skipped > 0 {
		return true, nil
	}
	return false, p.removeDir(dir)
}

func (p *Pruner) pruneFlatExcept(dir string, keep KeepSet) (bool, error) {
	entries, err := p.readDir(dir)
	if err != nil {
		return false, err
	}
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if isSubdir(e) && !keep.Contains(path) {
			return false, &Error{Op: "check flat", Path: path, Err: ErrNotFlat}
		}
	}
	skipped := 0
	for _, e := range entries {
		path := filepath.Join(dir, e.Name())
		if keep.Contains(path) {
			p.stats.Kept++
			skipped++
			continue
		}
		if err := p.removeEntry(path); err != nil {
			return false, err
		}
	}
	if skipped > 0 {
		return true, nil
	}
	return false, p.removeDir(dir)
}
