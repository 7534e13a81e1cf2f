package sys

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestCheck(t *testing.T) {
	t.Run("NilPassesThrough", func(t *testing.T) {
		assert.NoError(t, Check(nil, "unlink", "/x"))
	})

	t.Run("TypedError", func(t *testing.T) {
		err := Check(unix.EPERM, "unlink (1)", "/j/bin/ls")
		require.Error(t, err)

		var se *SyscallError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "unlink (1)", se.Call)
		assert.Equal(t, "/j/bin/ls", se.Arg)
		assert.ErrorIs(t, err, unix.EPERM)
		assert.ErrorIs(t, err, fs.ErrPermission)
		assert.Equal(t, "system call: 'unlink (1)' failed, arg=/j/bin/ls: operation not permitted", err.Error())
	})

	t.Run("Tolerated", func(t *testing.T) {
		assert.NoError(t, Check(unix.EEXIST, "mkdir", "/x", Errnos(unix.EEXIST)))
		assert.Error(t, Check(unix.ENOENT, "mkdir", "/x", Errnos(unix.EEXIST)))
	})
}

func TestGuard(t *testing.T) {
	dir := t.TempDir()
	g := NewGuard(nil)

	sub := filepath.Join(dir, "sub")
	require.NoError(t, g.Mkdir(sub, 0700))

	err := g.Mkdir(sub, 0700)
	assert.ErrorIs(t, err, unix.EEXIST)
	assert.NoError(t, g.Mkdir(sub, 0700, Errnos(unix.EEXIST)))

	info, err := os.Stat(sub)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	err = g.Mkdir(filepath.Join(dir, "missing", "sub"), 0700)
	var se *SyscallError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "mkdir", se.Call)
	assert.ErrorIs(t, err, unix.ENOENT)

	if runtime.GOOS == "linux" || runtime.GOOS == "freebsd" {
		err = g.ClearFlags(filepath.Join(dir, "missing"))
		require.ErrorAs(t, err, &se)
		assert.Equal(t, "chflags", se.Call)
		assert.NoError(t, g.ClearFlags(filepath.Join(dir, "missing"), Errnos(unix.ENOENT)))
	}
}

func TestClearFlagsSymlink(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "freebsd" {
		t.Skip("file flags are not supported on " + runtime.GOOS)
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	require.NoError(t, os.WriteFile(target, []byte("x"), 0644))
	link := filepath.Join(dir, "link")
	require.NoError(t, os.Symlink(target, link))
	dangling := filepath.Join(dir, "dangling")
	require.NoError(t, os.Symlink("/nonexistent/absolute/target", dangling))

	osFS := OS{}
	assert.NoError(t, osFS.ClearFlags(link))
	assert.NoError(t, osFS.ClearFlags(dangling))
	assert.NoError(t, osFS.ClearFlags(target))
	assert.ErrorIs(t, osFS.ClearFlags(filepath.Join(dir, "missing")), unix.ENOENT)
}
