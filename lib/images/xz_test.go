package images

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/kernel/crate/lib/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireTools(t *testing.T, tools ...string) {
	t.Helper()
	for _, tool := range tools {
		if _, err := exec.LookPath(tool); err != nil {
			t.Skipf("%s not available", tool)
		}
	}
}

func TestXZUnpacker(t *testing.T) {
	requireTools(t, "xz", "tar")

	dir := t.TempDir()
	src := filepath.Join(dir, "base.tar")
	require.NoError(t, os.WriteFile(src, baseTar(t), 0644))
	require.NoError(t, exec.Command("xz", "-z", src).Run())
	src += ".xz"
	format, err := DetectFormat(src)
	require.NoError(t, err)
	require.Equal(t, FormatXz, format)

	dest := filepath.Join(dir, "jail")
	require.NoError(t, os.Mkdir(dest, 0700))

	require.NoError(t, (&XZUnpacker{Threads: 2}).Unpack(context.Background(), src, dest))
	data, err := os.ReadFile(filepath.Join(dest, "etc/rc.conf"))
	require.NoError(t, err)
	assert.Equal(t, "sshd_enable=NO\n", string(data))

	// the auto unpacker takes the same route
	dest2 := filepath.Join(dir, "jail2")
	require.NoError(t, os.Mkdir(dest2, 0700))
	u, err := NewUnpacker(ModeAuto, Options{XzThreads: 2})
	require.NoError(t, err)
	require.NoError(t, u.Unpack(context.Background(), src, dest2))
	assert.FileExists(t, filepath.Join(dest2, "bin/sh"))
}

func TestXZUnpackerCorruptArchive(t *testing.T) {
	requireTools(t, "xz", "tar")

	dir := t.TempDir()
	src := filepath.Join(dir, "base.txz")
	require.NoError(t, os.WriteFile(src, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00, 0xde, 0xad}, 0644))

	err := (&XZUnpacker{}).Unpack(context.Background(), src, dir)
	require.Error(t, err)

	var ce *command.CommandError
	require.True(t, errors.As(err, &ce))
	assert.NotZero(t, ce.ExitCode)
}

func TestXZUnpackerMissingBinary(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "base.txz")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0644))

	err := (&XZUnpacker{XzPath: filepath.Join(dir, "no-such-xz")}).Unpack(context.Background(), src, dir)
	assert.Error(t, err)
}
