package sys

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// schg, uchg, sappnd and friends all go away with a zero flag word. lchflags acts on
// a symlink itself, so an absolute link inside a jail never reaches a host file.
func clearFlags(path string) error {
	p, err := unix.BytePtrFromString(path)
	if err != nil {
		return err
	}
	_, _, errno := unix.Syscall(unix.SYS_LCHFLAGS, uintptr(unsafe.Pointer(p)), 0, 0)
	if errno != 0 {
		return errno
	}
	return nil
}
