package prune

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"testing"

	"github.com/kernel/crate/lib/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// flagFS refuses removals of selected paths with EPERM a fixed number of times
type flagFS struct {
	sys.OS
	refuse     map[string]int
	clearCalls []string
	// hostFlags passes ClearFlags through to the real implementation
	hostFlags bool
}

func newFlagFS() *flagFS {
	return &flagFS{refuse: map[string]int{}}
}

func (f *flagFS) refused(path string) bool {
	if f.refuse[path] > 0 {
		f.refuse[path]--
		return true
	}
	return false
}

func (f *flagFS) Unlink(path string) error {
	if f.refused(path) {
		return unix.EPERM
	}
	return f.OS.Unlink(path)
}

func (f *flagFS) Rmdir(path string) error {
	if f.refused(path) {
		return unix.EPERM
	}
	return f.OS.Rmdir(path)
}

func (f *flagFS) ClearFlags(path string) error {
	f.clearCalls = append(f.clearCalls, path)
	if f.hostFlags {
		return f.OS.ClearFlags(path)
	}
	return nil
}

func writeTree(t *testing.T, root string, files ...string) {
	t.Helper()
	for _, f := range files {
		p := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, []byte(f), 0644))
	}
}

// listTree returns every path below root, relative to it
func listTree(t *testing.T, root string) []string {
	t.Helper()
	var out []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		out = append(out, rel)
		return nil
	})
	require.NoError(t, err)
	sort.Strings(out)
	return out
}

func TestHierarchicalExceptScenario(t *testing.T) {
	base := t.TempDir()
	j := filepath.Join(base, "j")
	writeTree(t, j, "bin/a", "lib/libc.so.7", "lib/libfoo.so")

	p := New(nil)
	kept, err := p.PruneHierarchicalExcept(j, NewKeepSet(filepath.Join(j, "lib/libc.so.7")))
	require.NoError(t, err)

	assert.True(t, kept)
	assert.Equal(t, []string{"lib", "lib/libc.so.7"}, listTree(t, j))

	st := p.Stats()
	assert.Equal(t, 2, st.RemovedFiles)
	assert.Equal(t, 1, st.RemovedDirs)
	assert.Equal(t, 1, st.Kept)
	assert.Equal(t, 0, st.FlagRetries)
}

func TestHierarchicalExceptEmptyKeep(t *testing.T) {
	base := t.TempDir()
	j := filepath.Join(base, "j")
	writeTree(t, j, "bin/a", "lib/libc.so.7", "lib/libfoo.so")

	kept, err := New(nil).PruneHierarchicalExcept(j, NewKeepSet())
	require.NoError(t, err)

	assert.False(t, kept)
	assert.NoDirExists(t, j)
}

func TestHierarchicalExceptKeepsExactlyKeptAndAncestors(t *testing.T) {
	files := []string{
		"a/b/c/one", "a/b/c/two", "a/b/three", "a/four",
		"x/y/five", "x/six", "seven",
	}
	tests := []struct {
		name string
		keep []string
		want []string
	}{
		{
			name: "deep file",
			keep: []string{"a/b/c/one"},
			want: []string{"a", "a/b", "a/b/c", "a/b/c/one"},
		},
		{
			name: "two subtrees",
			keep: []string{"a/four", "x/y/five"},
			want: []string{"a", "a/four", "x", "x/y", "x/y/five"},
		},
		{
			name: "whole directory",
			keep: []string{"a/b/c"},
			want: []string{"a", "a/b", "a/b/c", "a/b/c/one", "a/b/c/two"},
		},
		{
			name: "top-level file",
			keep: []string{"seven"},
			want: []string{"seven"},
		},
		{
			name: "missing path keeps nothing",
			keep: []string{"a/b/nope"},
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := filepath.Join(t.TempDir(), "t")
			writeTree(t, root, files...)

			keep := NewKeepSet()
			for _, k := range tt.keep {
				keep.Add(filepath.Join(root, k))
			}
			kept, err := New(nil).PruneHierarchicalExcept(root, keep)
			require.NoError(t, err)

			if tt.want == nil {
				assert.False(t, kept)
				assert.NoDirExists(t, root)
				return
			}
			assert.True(t, kept)
			assert.Equal(t, tt.want, listTree(t, root))
		})
	}
}

func TestHierarchicalTreatsSymlinksAsLeaves(t *testing.T) {
	base := t.TempDir()
	outside := filepath.Join(base, "outside")
	writeTree(t, outside, "precious")

	root := filepath.Join(base, "root")
	writeTree(t, root, "etc/file")
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "etc/link")))

	require.NoError(t, New(nil).PruneHierarchical(root))

	assert.NoDirExists(t, root)
	assert.FileExists(t, filepath.Join(outside, "precious"))
}

func TestPruneFlat(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bin")
	writeTree(t, dir, "sh", "ls", "cat")

	p := New(nil)
	require.NoError(t, p.PruneFlat(dir))
	assert.NoDirExists(t, dir)
	assert.Equal(t, 3, p.Stats().RemovedFiles)
	assert.Equal(t, 1, p.Stats().RemovedDirs)
}

func TestPruneFlatRefusesSubdirectories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "bin")
	writeTree(t, dir, "sh", "sub/file")

	err := New(nil).PruneFlat(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFlat)

	// nothing was removed
	assert.Equal(t, []string{"sh", "sub", "sub/file"}, listTree(t, dir))
}

func TestPruneFlatExcept(t *testing.T) {
	t.Run("skips kept entries", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		writeTree(t, dir, "sh", "ls", "cat")

		skipped, err := New(nil).PruneFlatExcept(dir, NewKeepSet(filepath.Join(dir, "sh")))
		require.NoError(t, err)
		assert.True(t, skipped)
		assert.Equal(t, []string{"sh"}, listTree(t, dir))
	})

	t.Run("removes directory with zero skips", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		writeTree(t, dir, "sh", "ls")

		skipped, err := New(nil).PruneFlatExcept(dir, NewKeepSet("/elsewhere/sh"))
		require.NoError(t, err)
		assert.False(t, skipped)
		assert.NoDirExists(t, dir)
	})

	t.Run("kept subdirectory is allowed", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		writeTree(t, dir, "sh", "sub/file")

		skipped, err := New(nil).PruneFlatExcept(dir, NewKeepSet(filepath.Join(dir, "sub")))
		require.NoError(t, err)
		assert.True(t, skipped)
		assert.Equal(t, []string{"sub", "sub/file"}, listTree(t, dir))
	})

	t.Run("unkept subdirectory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "bin")
		writeTree(t, dir, "sh", "sub/file")

		_, err := New(nil).PruneFlatExcept(dir, NewKeepSet())
		assert.ErrorIs(t, err, ErrNotFlat)
		assert.FileExists(t, filepath.Join(dir, "sh"))
	})
}

func TestRemoveEntryRetriesOnceAfterEPERM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "immutable")
	writeTree(t, dir, "immutable")

	fs := newFlagFS()
	fs.refuse[path] = 1

	p := New(fs)
	require.NoError(t, p.RemoveEntry(path))

	assert.NoFileExists(t, path)
	assert.Equal(t, []string{path}, fs.clearCalls)
	assert.Equal(t, 1, p.Stats().FlagRetries)
	assert.Equal(t, 1, p.Stats().RemovedFiles)
}

func TestRemoveEntryRetriesSymlinkAfterEPERM(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "freebsd" {
		t.Skip("file flags are not supported on " + runtime.GOOS)
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "libc.so.7")
	writeTree(t, dir, "libc.so.7")
	link := filepath.Join(dir, "libc.so")
	require.NoError(t, os.Symlink(target, link))
	abs := filepath.Join(dir, "abs")
	require.NoError(t, os.Symlink("/lib/libc.so.7", abs))

	fs := newFlagFS()
	fs.hostFlags = true
	fs.refuse[link] = 1
	fs.refuse[abs] = 1

	p := New(fs)
	require.NoError(t, p.RemoveEntry(link))
	require.NoError(t, p.RemoveEntry(abs))

	_, err := os.Lstat(link)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Lstat(abs)
	assert.True(t, os.IsNotExist(err))
	assert.FileExists(t, target, "the link target is untouched")
	assert.Equal(t, 2, p.Stats().FlagRetries)
}

func TestRemoveEntrySecondEPERMIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "immutable")
	writeTree(t, dir, "immutable")

	fs := newFlagFS()
	fs.refuse[path] = 2

	p := New(fs)
	err := p.RemoveEntry(path)
	require.Error(t, err)

	var se *sys.SyscallError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "unlink (2)", se.Call)
	assert.Equal(t, path, se.Arg)
	assert.ErrorIs(t, err, unix.EPERM)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "remove", pe.Op)

	assert.Len(t, fs.clearCalls, 1)
	assert.FileExists(t, path)
}

func TestRemoveEntryOtherErrorsDoNotRetry(t *testing.T) {
	fs := newFlagFS()
	missing := filepath.Join(t.TempDir(), "missing")

	err := New(fs).RemoveEntry(missing)
	require.Error(t, err)

	var se *sys.SyscallError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "unlink (1)", se.Call)
	assert.ErrorIs(t, err, unix.ENOENT)
	assert.Empty(t, fs.clearCalls)
}

func TestRemoveEmptyDirRetriesOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "d")
	require.NoError(t, os.Mkdir(dir, 0755))

	fs := newFlagFS()
	fs.refuse[dir] = 1

	p := New(fs)
	require.NoError(t, p.RemoveEmptyDir(dir))
	assert.NoDirExists(t, dir)
	assert.Equal(t, 1, p.Stats().FlagRetries)
}

func TestHierarchicalRetriesNestedEntry(t *testing.T) {
	root := filepath.Join(t.TempDir(), "boot")
	writeTree(t, root, "kernel/kernel", "loader.conf")

	fs := newFlagFS()
	fs.refuse[filepath.Join(root, "kernel/kernel")] = 1

	p := New(fs)
	require.NoError(t, p.PruneHierarchical(root))
	assert.NoDirExists(t, root)
	assert.Equal(t, 1, p.Stats().FlagRetries)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{
		Op:   "remove",
		Path: "/j/bin/sh",
		Err:  &sys.SyscallError{Call: "unlink (2)", Arg: "/j/bin/sh", Err: unix.EPERM},
	}
	assert.Equal(t,
		"remove /j/bin/sh: system call: 'unlink (2)' failed, arg=/j/bin/sh: operation not permitted",
		err.Error())
}
