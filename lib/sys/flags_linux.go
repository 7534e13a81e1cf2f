package sys

import (
	"errors"

	"golang.org/x/sys/unix"
)

// inode flags from linux/fs.h
const (
	fsImmutableFl = 0x00000010
	fsAppendFl    = 0x00000020
)

// Symlinks carry no inode flags on Linux, and file systems without the flags ioctl
// (tmpfs, overlayfs) have nothing to clear.
func clearFlags(path string) error {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return err
	}
	if st.Mode&unix.S_IFMT == unix.S_IFLNK {
		return nil
	}

	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NOFOLLOW|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return err
	}
	defer unix.Close(fd)

	flags, err := unix.IoctlGetInt(fd, unix.FS_IOC_GETFLAGS)
	if noFlags(err) {
		return nil
	}
	if err != nil {
		return err
	}
	cleared := flags &^ (fsImmutableFl | fsAppendFl)
	if cleared == flags {
		return nil
	}
	return unix.IoctlSetPointerInt(fd, unix.FS_IOC_SETFLAGS, cleared)
}

func noFlags(err error) bool {
	return errors.Is(err, unix.ENOTTY) || errors.Is(err, unix.EOPNOTSUPP) || errors.Is(err, unix.EINVAL)
}
